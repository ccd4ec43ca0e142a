// Package screens holds the controllers behind each console view. A screen owns
// its busy flag, its displayed error, and its data. It refuses a second
// dispatch while busy, and clears busy on every exit path.
package screens

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"finetune-console/internal/router"
	"finetune-console/internal/transport"
	"finetune-console/pkg/api"
)

var ErrBusy = errors.New("a request is already in progress")

// ValidationError rejects input locally before anything is dispatched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type AuthService interface {
	Register(ctx context.Context, req api.RegisterRequest) error
	Login(ctx context.Context, req api.LoginRequest) (api.LoginResponse, error)
}

type TaskService interface {
	List(ctx context.Context) ([]api.Task, error)
	Create(ctx context.Context, req api.TaskCreate) (api.Task, error)
	Get(ctx context.Context, taskId string) (api.Task, error)
	Logs(ctx context.Context, taskId string) (string, error)
}

type FileService interface {
	ListDatasets(ctx context.Context) ([]api.DatasetFile, error)
	UploadDataset(ctx context.Context, filename string, data io.Reader) (api.DatasetFile, error)
	DeleteDataset(ctx context.Context, fileId string) error
	GenerateDataset(ctx context.Context, topic string, filename *string) (api.DatasetFile, error)
	ListModels(ctx context.Context) ([]api.ModelFile, error)
	AvailableModels(ctx context.Context) ([]api.ModelFile, error)
}

type ChatService interface {
	Completion(ctx context.Context, req api.ChatRequest) (api.ChatMessage, error)
}

type SessionWriter interface {
	SetSession(cred api.Credential, user api.User) error
}

type Navigator interface {
	Generation() uint64
	NavigateFrom(generation uint64, path string) bool
}

var _ Navigator = (*router.Navigator)(nil)

// status is embedded in every screen.
type status struct {
	Busy  bool
	Error string
}

func (s *status) begin() error {
	if s.Busy {
		return ErrBusy
	}
	s.Busy = true
	s.Error = ""
	return nil
}

func (s *status) end() {
	s.Busy = false
}

func (s *status) invalid(field, msg string) error {
	s.Error = msg
	return &ValidationError{Field: field, Message: msg}
}

// fail records the display message for err and returns err. A rejected
// credential is already handled by the session policy, so it is not logged
// again here.
func (s *status) fail(err error, fallback string) error {
	s.Error = transport.Message(err, fallback)
	if !transport.IsAuthentication(err) {
		slog.Warn(fallback, "error", err)
	}
	return err
}
