package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"plantguard.io/leaf-doctor/internal/logger"
)

const recordExt = ".json"

// FileStore keeps one JSON file per record in a single directory.
type FileStore struct {
	dir string
	now func() time.Time
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, now: time.Now}
}

func (s *FileStore) Append(rec *DiagnosisRecord) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create records directory %s: %v", ErrStorage, s.dir, err)
	}

	if rec.ID == "" || unsafeIDChars.MatchString(rec.ID) {
		rec.ID = NewRecordID(rec.User, s.now())
	}
	if rec.Location == "" {
		rec.Location = DefaultLocation
	}

	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal record: %v", ErrStorage, err)
	}

	// O_EXCL refuses to replace an existing unit; a clash only gets a fresh id.
	for attempt := 0; attempt < 3; attempt++ {
		path := filepath.Join(s.dir, rec.ID+recordExt)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			rec.ID = NewRecordID(rec.User, s.now())
			if data, err = json.MarshalIndent(rec, "", "    "); err != nil {
				return fmt.Errorf("%w: failed to marshal record: %v", ErrStorage, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: failed to create record file: %v", ErrStorage, err)
		}

		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			_ = os.Remove(path)
			return fmt.Errorf("%w: failed to write record %s: %v", ErrStorage, rec.ID, errors.Join(werr, cerr))
		}

		logger.Debug("Diagnosis record written", zap.String("id", rec.ID), zap.String("user", rec.User))
		return nil
	}
	return fmt.Errorf("%w: could not allocate a unique id for record", ErrStorage)
}

func (s *FileStore) ListAll() []DiagnosisRecord {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Failed to read records directory", zap.String("dir", s.dir), zap.Error(err))
		}
		return []DiagnosisRecord{}
	}

	records := make([]DiagnosisRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}
		rec, ok := s.readRecord(entry.Name())
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	sortNewestFirst(records)
	return records
}

func (s *FileStore) readRecord(name string) (DiagnosisRecord, bool) {
	var rec DiagnosisRecord
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		logger.Debug("Skipping unreadable record", zap.String("file", name), zap.Error(err))
		return rec, false
	}
	if err := json.Unmarshal(data, &rec); err != nil || !rec.valid() {
		logger.Debug("Skipping corrupt record", zap.String("file", name), zap.Error(err))
		return rec, false
	}
	if rec.ID == "" {
		rec.ID = strings.TrimSuffix(name, recordExt)
	}
	return rec, true
}

func (s *FileStore) ListForUser(user string) []DiagnosisRecord {
	return filterByUser(s.ListAll(), user)
}

func (s *FileStore) AggregateBy(field AggregateField) []Count {
	return aggregate(s.ListAll(), field)
}
