package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"plantguard.io/leaf-doctor/internal/logger"
)

// SessionContext holds per-session conversation history and the last
// diagnosis. One exists per logged-in session and is never shared across
// sessions. Callers hold the session lock for the duration of an operation
// so turns stay in order when requests for the same session overlap.
type SessionContext struct {
	ID        string
	Username  string
	CreatedAt time.Time

	mu            sync.Mutex
	history       []Message
	lastDiagnosis *DiagnosisResult
	lastSummary   string
}

func NewSessionContext(id, username string) *SessionContext {
	return &SessionContext{ID: id, Username: username, CreatedAt: time.Now().UTC()}
}

// History returns a copy of the conversation turns, oldest first.
func (s *SessionContext) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// LastDiagnosis returns the most recent diagnosis run in this session and the
// rendered summary used to ground conversation. The result is nil before the
// first run.
func (s *SessionContext) LastDiagnosis() (*DiagnosisResult, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDiagnosis, s.lastSummary
}

func (s *SessionContext) recordDiagnosis(res *DiagnosisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDiagnosis = res
	if n := len(res.Diagnoses); n > 0 {
		s.lastSummary = res.Diagnoses[n-1].Rendered
	}
}

// SessionManager keeps live sessions in a bounded LRU. Entries expire ttl
// after creation; the oldest entry is evicted when size is reached.
type SessionManager struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *SessionContext]
}

func NewSessionManager(size int, ttl time.Duration) *SessionManager {
	if size <= 0 {
		size = 1024
	}
	onEvict := func(id string, sess *SessionContext) {
		logger.Debug("Session evicted", zap.String("session_id", id), zap.String("username", sess.Username))
	}
	return &SessionManager{sessions: expirable.NewLRU[string, *SessionContext](size, onEvict, ttl)}
}

func (m *SessionManager) Create(username string) *SessionContext {
	sess := NewSessionContext(uuid.NewString(), username)
	m.sessions.Add(sess.ID, sess)
	return sess
}

func (m *SessionManager) Get(id string) (*SessionContext, bool) {
	return m.sessions.Get(id)
}

// GetOrCreate returns the live session for id, or starts an empty one under
// the same id when it has expired. A session owned by another user is never
// returned.
func (m *SessionManager) GetOrCreate(id, username string) *SessionContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions.Get(id); ok && sess.Username == username {
		return sess
	}
	if id == "" {
		id = uuid.NewString()
	}
	sess := NewSessionContext(id, username)
	m.sessions.Add(id, sess)
	return sess
}

func (m *SessionManager) Delete(id string) {
	m.sessions.Remove(id)
}

func (m *SessionManager) Len() int {
	return m.sessions.Len()
}
