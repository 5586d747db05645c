package store

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"plantguard.io/leaf-doctor/internal/utils"
)

const (
	TimestampLayout = "2006-01-02 15:04:05"
	DefaultLocation = "unknown"

	idTimestampLayout = "20060102150405"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

// DiagnosisRecord is one detected disease from one upload. Confidence is a
// percentage rounded to two decimals.
type DiagnosisRecord struct {
	ID         string  `json:"id,omitempty"`
	User       string  `json:"user"`
	PlantType  string  `json:"plant_type"`
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
	Location   string  `json:"location"`
	Timestamp  string  `json:"timestamp"`
}

// NewDiagnosisRecord converts a raw [0,1] confidence into a percentage. This is
// the only place that conversion happens.
func NewDiagnosisRecord(user, plantType, disease string, rawConfidence float64, summary, location string, now time.Time) DiagnosisRecord {
	if location == "" {
		location = DefaultLocation
	}
	return DiagnosisRecord{
		ID:         NewRecordID(user, now),
		User:       user,
		PlantType:  plantType,
		Disease:    disease,
		Confidence: utils.Percent(rawConfidence),
		Summary:    summary,
		Location:   location,
		Timestamp:  now.Format(TimestampLayout),
	}
}

func (r DiagnosisRecord) valid() bool {
	return r.User != ""
}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// NewRecordID builds "<user>_<yyyymmddhhmmss>_<random>". The random suffix keeps
// two records written in the same second for the same user apart.
func NewRecordID(user string, now time.Time) string {
	safeUser := unsafeIDChars.ReplaceAllString(user, "-")
	if safeUser == "" {
		safeUser = "anonymous"
	}
	return fmt.Sprintf("%s_%s_%s", safeUser, now.Format(idTimestampLayout), uuid.NewString()[:8])
}

type AggregateField string

const (
	FieldDisease   AggregateField = "disease"
	FieldPlantType AggregateField = "plant_type"
	FieldLocation  AggregateField = "location"
)

func ParseAggregateField(s string) (AggregateField, error) {
	switch f := AggregateField(s); f {
	case FieldDisease, FieldPlantType, FieldLocation:
		return f, nil
	}
	return "", fmt.Errorf("unknown aggregate field %q", s)
}

type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
