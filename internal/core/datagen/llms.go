package datagen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var ErrEmptyCompletion = errors.New("llm returned no content")

type LLM interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type OpenAI struct {
	client  openai.Client
	model   string
	temp    float64
	timeout time.Duration
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &OpenAI{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		temp:    cfg.Temperature,
		timeout: timeout,
	}
}

func (o *OpenAI) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)

	if len(systemPrompt) > 0 {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	chatOpts := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       o.model,
		Temperature: openai.Float(o.temp),
	}

	res, err := o.client.Chat.Completions.New(ctx, chatOpts)
	if err != nil {
		slog.Error("openai error: chat completions failed", "model", o.model, "error", err)
		return "", fmt.Errorf("openai generation failed: %w", err)
	}

	if len(res.Choices) == 0 || res.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}

	return res.Choices[0].Message.Content, nil
}
