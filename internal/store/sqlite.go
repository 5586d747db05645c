package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"plantguard.io/leaf-doctor/internal/logger"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS records (
        id TEXT PRIMARY KEY,
        user TEXT NOT NULL,
        plant_type TEXT,
        disease TEXT,
        confidence REAL,
        summary TEXT,
        location TEXT,
        timestamp TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_records_user ON records(user);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods
func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(username, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (username, password_hash) VALUES (?, ?)", username, passwordHash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.getUserByID(id)
}

func (s *SQLiteStore) getUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, password_hash, created_at FROM users WHERE id = ?", id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Record methods

// Append inserts without OR REPLACE, so an id clash fails instead of overwriting.
func (s *SQLiteStore) Append(rec *DiagnosisRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record id is required", ErrStorage)
	}
	if rec.Location == "" {
		rec.Location = DefaultLocation
	}

	stmt, err := s.db.Prepare("INSERT INTO records (id, user, plant_type, disease, confidence, summary, location, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("%w: failed to prepare record insert: %v", ErrStorage, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(rec.ID, rec.User, rec.PlantType, rec.Disease, rec.Confidence, rec.Summary, rec.Location, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: failed to execute record insert: %v", ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStore) ListAll() []DiagnosisRecord {
	return s.queryRecords("SELECT id, user, plant_type, disease, confidence, summary, location, timestamp FROM records ORDER BY timestamp DESC, id DESC")
}

func (s *SQLiteStore) ListForUser(user string) []DiagnosisRecord {
	return s.queryRecords("SELECT id, user, plant_type, disease, confidence, summary, location, timestamp FROM records WHERE user = ? ORDER BY timestamp DESC, id DESC", user)
}

func (s *SQLiteStore) queryRecords(query string, args ...any) []DiagnosisRecord {
	records := []DiagnosisRecord{}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		logger.Warn("Failed to query records", zap.Error(err))
		return records
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, user                                     string
			plantType, disease, summary, location, stamp sql.NullString
			confidence                                   sql.NullFloat64
		)
		if err := rows.Scan(&id, &user, &plantType, &disease, &confidence, &summary, &location, &stamp); err != nil {
			logger.Debug("Skipping unreadable record row", zap.Error(err))
			continue
		}
		rec := DiagnosisRecord{
			ID:         id,
			User:       user,
			PlantType:  plantType.String,
			Disease:    disease.String,
			Confidence: confidence.Float64,
			Summary:    summary.String,
			Location:   location.String,
			Timestamp:  stamp.String,
		}
		if !rec.valid() {
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		logger.Warn("Record iteration stopped early", zap.Error(err))
	}
	return records
}

func (s *SQLiteStore) AggregateBy(field AggregateField) []Count {
	switch field {
	case FieldDisease, FieldPlantType, FieldLocation:
	default:
		return []Count{}
	}

	// field is one of the fixed column names above
	query := fmt.Sprintf(`SELECT COALESCE(NULLIF(%[1]s, ''), ?) AS value, COUNT(*) AS n
        FROM records GROUP BY value ORDER BY n DESC, value ASC`, string(field))

	fallback := ""
	if field == FieldLocation {
		fallback = DefaultLocation
	}

	counts := []Count{}
	rows, err := s.db.Query(query, fallback)
	if err != nil {
		logger.Warn("Failed to aggregate records", zap.String("field", string(field)), zap.Error(err))
		return counts
	}
	defer rows.Close()

	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Value, &c.Count); err != nil {
			continue
		}
		counts = append(counts, c)
	}
	return counts
}
