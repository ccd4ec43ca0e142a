package client

import (
	"context"
	"net/http"

	"finetune-console/internal/transport"
	"finetune-console/pkg/api"
)

type ChatClient struct {
	doer transport.Doer
}

func NewChatClient(doer transport.Doer) *ChatClient {
	return &ChatClient{doer: doer}
}

func (c *ChatClient) Completion(ctx context.Context, req api.ChatRequest) (api.ChatMessage, error) {
	var res api.ChatResponse
	if err := c.doer.Do(ctx, transport.Request{Method: http.MethodPost, Path: "/chat/completion", Body: req}, &res); err != nil {
		return api.ChatMessage{}, err
	}
	return res.Message(), nil
}
