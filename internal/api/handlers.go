package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"plantguard.io/leaf-doctor/internal/auth"
	"plantguard.io/leaf-doctor/internal/core"
	"plantguard.io/leaf-doctor/internal/logger"
	"plantguard.io/leaf-doctor/internal/store"
)

const (
	multipartMemory       = 32 << 20
	defaultMaxUploadBytes = 10 << 20
)

// UserStore is the account lookup the handlers need.
type UserStore interface {
	GetUserByUsername(username string) (*store.User, error)
	CreateUser(username, passwordHash string) (*store.User, error)
}

type APIHandler struct {
	users          UserStore
	records        store.RecordStore
	sessions       *core.SessionManager
	diagnosis      *core.DiagnosisService
	chatService    *core.ChatService
	maxUploadBytes int64
}

type HandlerDeps struct {
	Users          UserStore
	Records        store.RecordStore
	Sessions       *core.SessionManager
	Diagnosis      *core.DiagnosisService
	Chat           *core.ChatService
	MaxUploadBytes int64
}

func NewAPIHandler(deps HandlerDeps) *APIHandler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &APIHandler{
		users:          deps.Users,
		records:        deps.Records,
		sessions:       deps.Sessions,
		diagnosis:      deps.Diagnosis,
		chatService:    deps.Chat,
		maxUploadBytes: deps.MaxUploadBytes,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", zap.Error(err))
	}
}

// statusForError maps error kinds to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrTransport), errors.Is(err, core.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type SignupRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		http.Error(w, "Passwords do not match", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("Error hashing password", zap.String("username", req.Username), zap.Error(err))
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.users.CreateUser(req.Username, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			http.Error(w, "Username already exists", http.StatusConflict)
			return
		}
		logger.Error("Error creating user", zap.String("username", req.Username), zap.Error(err))
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetUserByUsername(req.Username)
	if err != nil {
		logger.Error("Error getting user", zap.String("username", req.Username), zap.Error(err))
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	sess := h.sessions.Create(user.Username)
	token, err := auth.GenerateJWT(user.Username, sess.ID)
	if err != nil {
		h.sessions.Delete(sess.ID)
		logger.Error("Error generating JWT", zap.String("username", user.Username), zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, SessionID: sess.ID})
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	h.sessions.Delete(sessionFrom(r.Context()).ID)
	w.WriteHeader(http.StatusNoContent)
}

// DiagnoseHandler accepts a multipart upload with an image under "file" and
// an optional "location" field.
func (h *APIHandler) DiagnoseHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	sess := sessionFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		http.Error(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "An image file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	location := strings.TrimSpace(r.FormValue("location"))
	res, err := h.diagnosis.Run(r.Context(), sess, image, user.Username, location)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	status := http.StatusOK
	switch {
	case res.Has(core.CodeDiseaseFailed):
		status = http.StatusBadGateway
	case res.Has(core.CodeRecordFailed):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func (h *APIHandler) ListDiagnosesHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	writeJSON(w, http.StatusOK, h.records.ListForUser(user.Username))
}

func (h *APIHandler) LastDiagnosisHandler(w http.ResponseWriter, r *http.Request) {
	last, _ := sessionFrom(r.Context()).LastDiagnosis()
	if last == nil {
		http.Error(w, "No diagnosis in this session yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, last)
}

// StatsHandler returns counts for one field when ?field= is set, otherwise
// for every aggregate field.
func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("field"); raw != "" {
		field, err := store.ParseAggregateField(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]store.Count{string(field): h.records.AggregateBy(field)})
		return
	}

	stats := make(map[string][]store.Count)
	for _, field := range []store.AggregateField{store.FieldDisease, store.FieldPlantType, store.FieldLocation} {
		stats[string(field)] = h.records.AggregateBy(field)
	}
	writeJSON(w, http.StatusOK, stats)
}

type ChatRequest struct {
	Question string `json:"question"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
}

type ChatHistoryResponse struct {
	History []core.Message `json:"history"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	_, grounding := sess.LastDiagnosis()
	answer, err := h.chatService.Ask(r.Context(), sess, req.Question, grounding)
	if err != nil {
		http.Error(w, "Failed to answer question", statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Answer: answer})
}

func (h *APIHandler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ChatHistoryResponse{History: h.chatService.History(sessionFrom(r.Context()))})
}

func (h *APIHandler) ResetChatHandler(w http.ResponseWriter, r *http.Request) {
	h.chatService.Reset(sessionFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
