package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"finetune-console/pkg/api"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var ErrEmptyReply = errors.New("model returned no reply")

// ChatInput is one completion request against a trained adapter.
type ChatInput struct {
	BaseModel   string
	AdapterPath string
	Messages    []api.ChatMessage
	Temperature float64
	MaxTokens   int
}

type ChatResponder interface {
	Reply(ctx context.Context, input ChatInput) (string, error)
}

type LangchainConfig struct {
	APIKey  string
	BaseURL string
	// Model overrides the base model name sent to the endpoint.
	Model string
}

// LangchainResponder forwards chat turns to an OpenAI compatible inference
// endpoint, such as a vLLM server hosting the adapters.
type LangchainResponder struct {
	llm   *openai.LLM
	model string
}

func NewLangchainResponder(cfg LangchainConfig) (*LangchainResponder, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create chat client: %w", err)
	}

	return &LangchainResponder{llm: llm, model: cfg.Model}, nil
}

func (r *LangchainResponder) Reply(ctx context.Context, input ChatInput) (string, error) {
	messages := make([]llms.MessageContent, 0, len(input.Messages))
	for _, msg := range input.Messages {
		role := llms.ChatMessageTypeHuman
		switch msg.Role {
		case api.RoleAssistant:
			role = llms.ChatMessageTypeAI
		case api.RoleSystem:
			role = llms.ChatMessageTypeSystem
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}

	model := r.model
	if model == "" {
		model = input.BaseModel
	}

	resp, err := r.llm.GenerateContent(ctx, messages,
		llms.WithModel(model),
		llms.WithTemperature(input.Temperature),
		llms.WithMaxTokens(input.MaxTokens),
	)
	if err != nil {
		slog.Error("error calling chat endpoint", "model", model, "adapter", input.AdapterPath, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Content, nil
}

// EchoResponder answers without a model. Used when no inference endpoint is
// configured.
type EchoResponder struct{}

func (EchoResponder) Reply(ctx context.Context, input ChatInput) (string, error) {
	var last string
	for i := len(input.Messages) - 1; i >= 0; i-- {
		if input.Messages[i].Role == api.RoleUser {
			last = input.Messages[i].Content
			break
		}
	}
	if strings.TrimSpace(last) == "" {
		return "", ErrEmptyReply
	}
	return fmt.Sprintf("[%s] %s", input.BaseModel, last), nil
}
