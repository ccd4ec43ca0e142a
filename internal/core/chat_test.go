package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"finetune-console/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoResponder(t *testing.T) {
	reply, err := EchoResponder{}.Reply(context.Background(), ChatInput{
		BaseModel: "Qwen/Qwen2-0.5B",
		Messages: []api.ChatMessage{
			{Role: api.RoleUser, Content: "first"},
			{Role: api.RoleAssistant, Content: "ok"},
			{Role: api.RoleUser, Content: "second"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "[Qwen/Qwen2-0.5B] second", reply)

	_, err = EchoResponder{}.Reply(context.Background(), ChatInput{})
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestLangchainResponder(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"base","choices":[{"index":0,"message":{"role":"assistant","content":"hello from the adapter"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer server.Close()

	responder, err := NewLangchainResponder(LangchainConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	reply, err := responder.Reply(context.Background(), ChatInput{
		BaseModel:   "Qwen/Qwen2-0.5B",
		AdapterPath: "/data/u1/models/t1",
		Messages:    []api.ChatMessage{{Role: api.RoleUser, Content: "hi"}},
		Temperature: 0.7,
		MaxTokens:   2048,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from the adapter", reply)

	assert.Equal(t, "Qwen/Qwen2-0.5B", received["model"])
	assert.EqualValues(t, 0.7, received["temperature"])
	messages, ok := received["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 1)
}
