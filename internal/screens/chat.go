package screens

import (
	"context"
	"slices"
	"strings"

	"finetune-console/pkg/api"
)

// Chat holds one conversation. History lives only as long as the screen.
type Chat struct {
	status

	Models    []api.ModelFile
	ModelPath string
	Messages  []api.ChatMessage

	chat  ChatService
	files FileService
}

func NewChat(chat ChatService, files FileService) *Chat {
	return &Chat{chat: chat, files: files}
}

func (s *Chat) Load(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	models, err := s.files.AvailableModels(ctx)
	if err != nil {
		return s.fail(err, "failed to load models")
	}
	s.Models = models

	if s.ModelPath == "" && len(models) > 0 {
		s.ModelPath = models[0].ModelPath
	}
	return nil
}

// SelectModel picks the model by path or by name.
func (s *Chat) SelectModel(ref string) error {
	for _, m := range s.Models {
		if m.ModelPath == ref || m.Name == ref {
			s.ModelPath = m.ModelPath
			s.Error = ""
			return nil
		}
	}
	return s.invalid("model_path", "unknown model: "+ref)
}

// Send appends the user turn immediately and the reply once it arrives. If the
// completion fails the user turn stays in the history with no reply.
func (s *Chat) Send(ctx context.Context, text string) (api.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return api.ChatMessage{}, s.invalid("message", "message is empty")
	}
	if s.ModelPath == "" {
		return api.ChatMessage{}, s.invalid("model_path", "no model selected")
	}

	if err := s.begin(); err != nil {
		return api.ChatMessage{}, err
	}
	defer s.end()

	s.Messages = append(s.Messages, api.ChatMessage{Role: api.RoleUser, Content: text})

	reply, err := s.chat.Completion(ctx, api.ChatRequest{
		ModelPath: s.ModelPath,
		Messages:  slices.Clone(s.Messages),
	})
	if err != nil {
		return api.ChatMessage{}, s.fail(err, "failed to send message")
	}

	if reply.Role == "" {
		reply.Role = api.RoleAssistant
	}
	s.Messages = append(s.Messages, reply)
	return reply, nil
}

func (s *Chat) Clear() {
	s.Messages = nil
	s.Error = ""
}
