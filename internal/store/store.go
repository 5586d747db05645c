package store

import (
	"errors"
	"sort"
)

var (
	// ErrStorage marks failures on the write path. Reads never return it.
	ErrStorage = errors.New("storage error")

	ErrUserExists = errors.New("user already exists")
)

// RecordStore persists diagnosis records. Reads skip corrupt units and return
// an empty slice when nothing valid is stored.
type RecordStore interface {
	Append(rec *DiagnosisRecord) error
	ListAll() []DiagnosisRecord
	ListForUser(user string) []DiagnosisRecord
	AggregateBy(field AggregateField) []Count
}

// sortNewestFirst orders by timestamp, then id, both descending.
func sortNewestFirst(records []DiagnosisRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp != records[j].Timestamp {
			return records[i].Timestamp > records[j].Timestamp
		}
		return records[i].ID > records[j].ID
	})
}

func filterByUser(records []DiagnosisRecord, user string) []DiagnosisRecord {
	out := make([]DiagnosisRecord, 0, len(records))
	for _, r := range records {
		if r.User == user {
			out = append(out, r)
		}
	}
	return out
}

func fieldValue(r DiagnosisRecord, field AggregateField) string {
	switch field {
	case FieldDisease:
		return r.Disease
	case FieldPlantType:
		return r.PlantType
	case FieldLocation:
		if r.Location == "" {
			return DefaultLocation
		}
		return r.Location
	}
	return ""
}

// aggregate counts records per field value, highest count first and ties by value.
func aggregate(records []DiagnosisRecord, field AggregateField) []Count {
	counts := make(map[string]int)
	for _, r := range records {
		counts[fieldValue(r, field)]++
	}

	out := make([]Count, 0, len(counts))
	for value, n := range counts {
		out = append(out, Count{Value: value, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
