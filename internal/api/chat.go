package api

import (
	"errors"
	"log/slog"
	"net/http"

	"finetune-console/internal/core"
	"finetune-console/internal/database"
	"finetune-console/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type ChatService struct {
	db        *gorm.DB
	responder core.ChatResponder
}

func NewChatService(db *gorm.DB, responder core.ChatResponder) *ChatService {
	return &ChatService{db: db, responder: responder}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Post("/completion", RestHandler(s.Completion))
}

func (s *ChatService) Completion(r *http.Request) (any, error) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.ChatRequest](r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var model database.Model
	if err := s.db.WithContext(ctx).Where("user_id = ? AND model_path = ?", user.Id, req.ModelPath).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusBadRequest, "Model not found or access denied")
		}
		slog.Error("error loading chat model", "model_path", req.ModelPath, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error loading model")
	}

	if !model.BaseModelPath.Valid || model.BaseModelPath.String == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "Model has no base model path")
	}

	input := core.ChatInput{
		BaseModel:   model.BaseModelPath.String,
		AdapterPath: model.ModelPath,
		Messages:    req.Messages,
		Temperature: api.DefaultChatTemperature,
		MaxTokens:   api.DefaultChatMaxTokens,
	}
	if req.Temperature != nil {
		input.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		input.MaxTokens = *req.MaxTokens
	}

	reply, err := s.responder.Reply(ctx, input)
	if err != nil {
		slog.Error("chat completion failed", "model_id", model.Id, "error", err)
		return nil, CodedErrorf(http.StatusBadGateway, "Chat inference failed")
	}

	return api.ChatResponse{Role: api.RoleAssistant, Content: reply}, nil
}
