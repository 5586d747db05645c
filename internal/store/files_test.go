package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 7, 8, 14, 30, 5, 0, time.UTC)

func TestNewDiagnosisRecordConvertsConfidence(t *testing.T) {
	rec := NewDiagnosisRecord("alice", "tomato", "early_blight", 0.87, "summary", "", fixedNow)

	assert.Equal(t, 87.0, rec.Confidence)
	assert.Equal(t, DefaultLocation, rec.Location)
	assert.Equal(t, "2025-07-08 14:30:05", rec.Timestamp)
	assert.Regexp(t, `^alice_20250708143005_[0-9a-f]{8}$`, rec.ID)
}

func TestNewRecordIDSanitizesUser(t *testing.T) {
	id := NewRecordID("../../etc/passwd", fixedNow)
	assert.NotContains(t, id, "/")
	assert.NotContains(t, id, ".")

	assert.Regexp(t, `^anonymous_`, NewRecordID("", fixedNow))
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "records"))

	rec := NewDiagnosisRecord("alice", "tomato", "early_blight", 0.87, "### Disease:\nEarly blight", "hanoi", fixedNow)
	require.NoError(t, s.Append(&rec))

	got := s.ListForUser("alice")
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])
	assert.Empty(t, s.ListForUser("bob"))
}

func TestFileStoreSameSecondWritesDoNotCollide(t *testing.T) {
	s := NewFileStore(t.TempDir())

	for i := 0; i < 5; i++ {
		rec := NewDiagnosisRecord("alice", "tomato", "leaf_mold", 0.5, "", "", fixedNow)
		require.NoError(t, s.Append(&rec))
	}
	assert.Len(t, s.ListForUser("alice"), 5)
}

func TestFileStoreRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	first := DiagnosisRecord{ID: "alice_fixed", User: "alice", Disease: "rust", Timestamp: "2025-07-08 14:30:05"}
	require.NoError(t, s.Append(&first))

	second := DiagnosisRecord{ID: "alice_fixed", User: "alice", Disease: "scab", Timestamp: "2025-07-08 14:30:05"}
	require.NoError(t, s.Append(&second))
	assert.NotEqual(t, "alice_fixed", second.ID)

	diseases := []string{}
	for _, r := range s.ListAll() {
		diseases = append(diseases, r.Disease)
	}
	assert.ElementsMatch(t, []string{"rust", "scab"}, diseases)
}

func TestFileStoreMissingDirectory(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "does-not-exist"))

	assert.NotNil(t, s.ListAll())
	assert.Empty(t, s.ListAll())
	assert.Empty(t, s.AggregateBy(FieldDisease))
}

func TestFileStoreSkipsCorruptUnits(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	rec := NewDiagnosisRecord("alice", "apple", "scab", 0.4, "", "", fixedNow)
	require.NoError(t, s.Append(&rec))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"user": "alice", "disease":`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "array.json"), []byte(`[1,2,3]`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nouser.json"), []byte(`{"disease": "rust"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0755))

	got := s.ListAll()
	require.Len(t, got, 1)
	assert.Equal(t, "scab", got[0].Disease)
}

func TestFileStoreListsNewestFirst(t *testing.T) {
	s := NewFileStore(t.TempDir())

	older := NewDiagnosisRecord("alice", "apple", "scab", 0.4, "", "", fixedNow)
	newer := NewDiagnosisRecord("alice", "apple", "rust", 0.4, "", "", fixedNow.Add(time.Hour))
	require.NoError(t, s.Append(&older))
	require.NoError(t, s.Append(&newer))

	got := s.ListForUser("alice")
	require.Len(t, got, 2)
	assert.Equal(t, "rust", got[0].Disease)
	assert.Equal(t, "scab", got[1].Disease)
}

func TestFileStoreAggregateBy(t *testing.T) {
	s := NewFileStore(t.TempDir())

	for _, r := range []struct{ plant, disease, location string }{
		{"tomato", "early_blight", "hanoi"},
		{"tomato", "early_blight", ""},
		{"tomato", "leaf_mold", "hue"},
		{"apple", "scab", "hanoi"},
	} {
		rec := NewDiagnosisRecord("alice", r.plant, r.disease, 0.9, "", r.location, fixedNow)
		require.NoError(t, s.Append(&rec))
	}

	assert.Equal(t, []Count{
		{Value: "early_blight", Count: 2},
		{Value: "leaf_mold", Count: 1},
		{Value: "scab", Count: 1},
	}, s.AggregateBy(FieldDisease))

	assert.Equal(t, []Count{
		{Value: "tomato", Count: 3},
		{Value: "apple", Count: 1},
	}, s.AggregateBy(FieldPlantType))

	assert.Equal(t, []Count{
		{Value: "hanoi", Count: 2},
		{Value: "hue", Count: 1},
		{Value: "unknown", Count: 1},
	}, s.AggregateBy(FieldLocation))
}

func TestParseAggregateField(t *testing.T) {
	f, err := ParseAggregateField("plant_type")
	require.NoError(t, err)
	assert.Equal(t, FieldPlantType, f)

	_, err = ParseAggregateField("user")
	assert.Error(t, err)
}
