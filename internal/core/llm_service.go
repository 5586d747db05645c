package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"plantguard.io/leaf-doctor/internal/config"
	"plantguard.io/leaf-doctor/internal/logger"
)

const (
	defaultOpenRouterModel = "mistralai/mistral-7b-instruct"
	defaultGeminiModel     = "gemini-1.5-flash-latest"

	diseaseSystemInstruction = "You are a plant disease assistant."

	diseasePromptTemplate = `You are a plant disease expert helping farmers.
For the disease '%s' on plant '%s', please write a short explanation (no more than 80 words) including:

- Cause
- Symptoms
- Treatment and prevention tips

Use simple language and return the result in this format:

Disease: ...
Cause: ...
Symptoms: ...
Treatment & Prevention: ...`
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer turns an ordered message list into a single text completion.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// NewCompleter builds the backend selected by cfg.LLMProvider. The returned
// close func is always safe to call.
func NewCompleter(ctx context.Context, cfg config.Config) (Completer, func(), error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		model := cfg.LLMModel
		if model == "" {
			model = defaultGeminiModel
		}
		g, err := NewGeminiCompleter(ctx, cfg.GeminiAPIKey, model, cfg.LLMTimeout)
		if err != nil {
			return nil, func() {}, err
		}
		return g, g.Close, nil
	case config.ProviderOpenRouter:
		model := cfg.LLMModel
		if model == "" {
			model = defaultOpenRouterModel
		}
		return NewOpenAICompleter(cfg.OpenRouterAPIKey, cfg.LLMBaseURL, model, cfg.LLMTimeout), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

// GetDiseaseInfo asks for a short labeled explanation of one disease.
func GetDiseaseInfo(ctx context.Context, c Completer, diseaseName, plantType string) (string, error) {
	return c.Complete(ctx, []Message{
		{Role: RoleSystem, Content: diseaseSystemInstruction},
		{Role: RoleUser, Content: fmt.Sprintf(diseasePromptTemplate, diseaseName, plantType)},
	})
}

// OpenAICompleter talks to any OpenAI-compatible chat endpoint, OpenRouter by default.
type OpenAICompleter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAICompleter(apiKey, baseURL, model string, timeout time.Duration) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	logger.Info("LLM client initialized", zap.String("base_url", cfg.BaseURL), zap.String("model", model))

	return &OpenAICompleter{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: chatMessages,
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion failed: %v", ErrTransport, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion had no choices", ErrMalformedResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: completion was empty", ErrMalformedResponse)
	}

	logger.Debug("LLM completion generated",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return content, nil
}

// GeminiCompleter maps the same message list onto a Gemini chat session.
type GeminiCompleter struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiCompleter(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	logger.Info("LLM client initialized", zap.String("provider", "gemini"), zap.String("model", model))

	return &GeminiCompleter{client: client, model: model, timeout: timeout}, nil
}

func (g *GeminiCompleter) Close() {
	if g.client != nil {
		if err := g.client.Close(); err != nil {
			logger.Warn("Error closing GenAI client", zap.Error(err))
		} else {
			logger.Info("GenAI client closed.")
		}
	}
}

func (g *GeminiCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	system, history := toGeminiContents(messages)
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return "", fmt.Errorf("%w: last message must come from the user", ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model := g.client.GenerativeModel(g.model)
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: system}
	}

	last := history[len(history)-1]
	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]

	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", fmt.Errorf("%w: gemini chat SendMessage failed: %v", ErrTransport, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini response had no candidates", ErrMalformedResponse)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			logger.Debug("Gemini response part was not text", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}

	content := strings.TrimSpace(responseText.String())
	if content == "" {
		return "", fmt.Errorf("%w: gemini response was empty", ErrMalformedResponse)
	}
	return content, nil
}

// toGeminiContents splits out system turns and merges consecutive turns of the
// same role, since Gemini expects user and model turns to alternate.
func toGeminiContents(messages []Message) ([]genai.Part, []*genai.Content) {
	var system []genai.Part
	var history []*genai.Content
	for _, m := range messages {
		role := "user"
		switch m.Role {
		case RoleSystem:
			system = append(system, genai.Text(m.Content))
			continue
		case RoleAssistant:
			role = "model"
		}
		if n := len(history); n > 0 && history[n-1].Role == role {
			history[n-1].Parts = append(history[n-1].Parts, genai.Text(m.Content))
			continue
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return system, history
}
