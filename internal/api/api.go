package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// BackendService mounts the platform endpoints. Everything except register,
// login and health requires a bearer token.
type BackendService struct {
	auth  *AuthService
	tasks *TaskService
	files *FileService
	chat  *ChatService
}

func NewBackendService(auth *AuthService, tasks *TaskService, files *FileService, chat *ChatService) *BackendService {
	return &BackendService{auth: auth, tasks: tasks, files: files, chat: chat}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", RestHandlerWithStatus(http.StatusCreated, s.auth.Register))
		r.Post("/login", RestHandler(s.auth.Login))
		r.With(s.auth.RequireUser).Get("/me", RestHandler(s.auth.Me))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth.RequireUser)
		r.Route("/tasks", s.tasks.AddRoutes)
		r.Route("/files", s.files.AddRoutes)
		r.Route("/chat", s.chat.AddRoutes)
	})
}
