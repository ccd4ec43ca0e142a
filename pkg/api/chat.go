package api

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

type ChatRequest struct {
	ModelPath   string        `json:"model_path" validate:"required"`
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Temperature *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int          `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
}

type ChatResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r ChatResponse) Message() ChatMessage {
	return ChatMessage{Role: r.Role, Content: r.Content}
}

const (
	DefaultChatTemperature = 0.7
	DefaultChatMaxTokens   = 2048
)
