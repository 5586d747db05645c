package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"plantguard.io/leaf-doctor/internal/logger"
	"plantguard.io/leaf-doctor/internal/metrics"
)

const (
	chatSystemPrompt = "You are a helpful assistant that answers questions about plant diseases. " +
		"Answer in simple, clear language. Keep answers concise and practical for farmers."

	// EmptyQuestionAdvisory is returned instead of calling the model when the question is blank.
	EmptyQuestionAdvisory = "Please enter a question."

	contextPrefix = "Here is some context: "
)

// ChatService answers follow-up questions inside a session, keeping the
// session's turn history.
type ChatService struct {
	completer Completer
}

func NewChatService(completer Completer) *ChatService {
	return &ChatService{completer: completer}
}

// Ask sends the question with the full session history. grounding, when set,
// is passed as a context turn ahead of the history. On success the user turn
// and the reply are appended together; on failure history is unchanged.
func (s *ChatService) Ask(ctx context.Context, sess *SessionContext, question, grounding string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		metrics.ChatRequests.WithLabelValues("empty").Inc()
		return EmptyQuestionAdvisory, nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	messages := buildChatMessages(sess.history, question, grounding)
	reply, err := s.completer.Complete(ctx, messages)
	if err != nil {
		metrics.ChatRequests.WithLabelValues("error").Inc()
		logger.Error("Chat completion failed", zap.String("session_id", sess.ID), zap.Error(err))
		return "", fmt.Errorf("failed to answer question: %w", err)
	}

	sess.history = append(sess.history,
		Message{Role: RoleUser, Content: question},
		Message{Role: RoleAssistant, Content: reply},
	)
	metrics.ChatRequests.WithLabelValues("ok").Inc()
	return reply, nil
}

// Reset clears the session's history. The last diagnosis is kept.
func (s *ChatService) Reset(sess *SessionContext) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.history = nil
}

// History returns the session's stored turns, oldest first.
func (s *ChatService) History(sess *SessionContext) []Message {
	return sess.History()
}

func buildChatMessages(history []Message, question, grounding string) []Message {
	messages := make([]Message, 0, len(history)+3)
	messages = append(messages, Message{Role: RoleSystem, Content: chatSystemPrompt})
	if grounding = strings.TrimSpace(grounding); grounding != "" {
		messages = append(messages, Message{Role: RoleUser, Content: contextPrefix + grounding})
	}
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: question})
	return messages
}
