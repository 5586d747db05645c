package core

import (
	"context"
	"fmt"
	"sync"

	"plantguard.io/leaf-doctor/internal/store"
)

var (
	pngImage  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR fake png body")
	jpegImage = []byte("\xff\xd8\xff\xe0\x00\x10JFIF fake jpeg body")
)

type fakeInference struct {
	leafPayload    []byte
	leafErr        error
	diseasePayload []byte
	diseaseErr     error

	leafCalls     int
	diseaseCalls  int
	gotPlantType  string
	gotLeafImage  string
	gotDiseaseImg string
}

func (f *fakeInference) ClassifyLeaf(_ context.Context, encodedImage string) ([]byte, error) {
	f.leafCalls++
	f.gotLeafImage = encodedImage
	return f.leafPayload, f.leafErr
}

func (f *fakeInference) DetectDisease(_ context.Context, encodedImage, plantType string) ([]byte, error) {
	f.diseaseCalls++
	f.gotDiseaseImg = encodedImage
	f.gotPlantType = plantType
	return f.diseasePayload, f.diseaseErr
}

// fakeCompleter replies with the result of reply, recording every message list.
type fakeCompleter struct {
	mu    sync.Mutex
	reply func(messages []Message) (string, error)
	calls [][]Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages []Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]Message, len(messages))
	copy(cp, messages)
	f.calls = append(f.calls, cp)
	return f.reply(messages)
}

func replyWith(text string) *fakeCompleter {
	return &fakeCompleter{reply: func([]Message) (string, error) { return text, nil }}
}

func failWith(err error) *fakeCompleter {
	return &fakeCompleter{reply: func([]Message) (string, error) { return "", err }}
}

type fakeStore struct {
	records []store.DiagnosisRecord
	failOn  map[string]bool
}

func (f *fakeStore) Append(rec *store.DiagnosisRecord) error {
	if f.failOn[rec.Disease] {
		return fmt.Errorf("%w: disk full", store.ErrStorage)
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeStore) ListAll() []store.DiagnosisRecord { return f.records }

func (f *fakeStore) ListForUser(user string) []store.DiagnosisRecord {
	var out []store.DiagnosisRecord
	for _, r := range f.records {
		if r.User == user {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeStore) AggregateBy(store.AggregateField) []store.Count { return []store.Count{} }
