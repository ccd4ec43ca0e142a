package console_test

import (
	"bytes"
	"context"
	"database/sql"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	backend "finetune-console/internal/api"
	"finetune-console/internal/console"
	"finetune-console/internal/core"
	"finetune-console/internal/core/datagen"
	"finetune-console/internal/database"
	"finetune-console/internal/messaging"
	"finetune-console/internal/session"
	"finetune-console/internal/storage"
	"finetune-console/internal/transport"
	"finetune-console/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubLLM struct{}

func (stubLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "```json\n[{\"instruction\":\"explain\",\"input\":\"\",\"output\":\"ok\"}]\n```", nil
}

type harness struct {
	db        *gorm.DB
	baseURL   string
	persister *session.MemoryPersister
	app       *console.App
}

func newHarness(t *testing.T) *harness {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "backend.db"))
	require.NoError(t, err)

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	queue := messaging.NewInMemoryQueue()
	t.Cleanup(queue.Close)

	service := backend.NewBackendService(
		backend.NewAuthService(db, "test-secret", 0),
		backend.NewTaskService(db, store, queue),
		backend.NewFileService(db, store, datagen.NewGenerator(stubLLM{}, 0), 1024),
		backend.NewChatService(db, core.EchoResponder{}),
	)

	router := chi.NewRouter()
	router.Route("/api", service.AddRoutes)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	h := &harness{db: db, baseURL: server.URL + "/api", persister: session.NewMemoryPersister()}
	h.restart(t)
	return h
}

// restart starts a new console process over the same persisted state.
func (h *harness) restart(t *testing.T) {
	app, err := console.NewApp(transport.Config{BaseURL: h.baseURL, Timeout: 10 * time.Second}, h.persister)
	require.NoError(t, err)
	h.app = app
	app.Store.Resolve(context.Background(), app.Auth)
}

func (h *harness) run(t *testing.T, lines ...string) string {
	var out bytes.Buffer
	c := console.New(h.app, console.Options{
		In:      strings.NewReader(strings.Join(lines, "\n") + "\n"),
		Out:     &out,
		BaseURL: h.baseURL,
		Timeout: 10 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))
	return out.String()
}

func (h *harness) signUp(t *testing.T, username string) {
	out := h.run(t,
		"register "+username, username+"@example.com", "secret1", "secret1",
		"login "+username, "secret1",
	)
	require.Contains(t, out, "logged in as "+username)
}

func (h *harness) userId(t *testing.T, username string) uuid.UUID {
	var user database.User
	require.NoError(t, h.db.Where("username = ?", username).First(&user).Error)
	return user.Id
}

func TestProtectedCommandsNeedLogin(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "tasks", "datasets", "whoami")
	assert.Contains(t, out, "not logged in; use login or register")
	assert.Equal(t, 2, strings.Count(out, "error: not logged in"))
	assert.Contains(t, out, "not logged in\n")
	assert.Contains(t, out, "login> ")
}

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "register alice", "alice@example.com", "secret1", "other1")
	assert.Contains(t, out, "error: passwords do not match")

	out = h.run(t, "login alice", "wrong-pass")
	assert.Contains(t, out, "error: Incorrect username or password")
	_, ok := h.app.Store.Credential()
	assert.False(t, ok)

	h.signUp(t, "alice")

	out = h.run(t, "whoami", "tasks")
	assert.Contains(t, out, "alice <alice@example.com>")
	assert.Contains(t, out, "no tasks")
	assert.Contains(t, out, "tasks> ")

	user, ok := h.app.Store.User()
	require.True(t, ok)
	assert.Equal(t, "alice", user.Username)
}

func TestSessionSurvivesRestart(t *testing.T) {
	h := newHarness(t)
	h.signUp(t, "alice")

	h.restart(t)
	out := h.run(t, "tasks")
	assert.Contains(t, out, "logged in as alice")
	assert.Contains(t, out, "no tasks")

	out = h.run(t, "logout", "tasks")
	assert.Contains(t, out, "logged out")
	assert.Contains(t, out, "error: not logged in")

	h.restart(t)
	out = h.run(t)
	assert.Contains(t, out, "not logged in; use login or register")
}

func TestRejectedSessionRedirectsToLogin(t *testing.T) {
	h := newHarness(t)
	h.signUp(t, "alice")

	require.NoError(t, h.app.Store.SetSession(api.Credential{AccessToken: "forged"}, api.User{Username: "alice"}))

	out := h.run(t, "datasets")
	assert.Contains(t, out, "session expired; log in again")
	assert.Contains(t, out, "login> ")
	_, ok := h.app.Store.Credential()
	assert.False(t, ok)
}

func TestDatasetCommands(t *testing.T) {
	h := newHarness(t)
	h.signUp(t, "alice")

	path := filepath.Join(t.TempDir(), "qa.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"instruction":"a","input":"","output":"b"}]`), 0644))

	out := h.run(t, "upload "+path)
	assert.Contains(t, out, "uploaded qa.json (45 B)")

	var dataset database.Dataset
	require.NoError(t, h.db.Where("filename = ?", "qa.json").First(&dataset).Error)
	id := dataset.Id.String()

	out = h.run(t, "delete "+id, "n")
	assert.Contains(t, out, "Delete dataset qa.json? [y/N]")
	assert.Contains(t, out, "cancelled")

	out = h.run(t, "delete "+id, "y", "datasets")
	assert.Contains(t, out, "deleted qa.json")
	assert.Contains(t, out, "no datasets")

	out = h.run(t, "delete "+id, "yes")
	assert.Contains(t, out, "error: File not found")

	out = h.run(t, `generate "机器学习"`)
	assert.Contains(t, out, "generated 机器学习.json")

	out = h.run(t, `generate machine learning --filename "ml basics"`, "datasets")
	assert.Contains(t, out, "generated ml basics.json")
	assert.Contains(t, out, "机器学习.json")

	out = h.run(t, "generate")
	assert.Contains(t, out, "error: topic is required")
}

func TestSubmitAndInspectTask(t *testing.T) {
	h := newHarness(t)
	h.signUp(t, "alice")

	path := filepath.Join(t.TempDir(), "qa.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0644))
	h.run(t, "upload "+path)

	out := h.run(t, "submit --model Qwen/Qwen2-0.5B --dataset qa.json")
	assert.Contains(t, out, "error: task name is required")

	out = h.run(t, "submit --name qa --model Qwen/Qwen2-0.5B --dataset missing.json")
	assert.Contains(t, out, "error: Dataset not found")

	out = h.run(t, "submit --name qa --model Qwen/Qwen2-0.5B --dataset qa.json --epochs 0")
	assert.Contains(t, out, "error: epochs must be positive")

	out = h.run(t, "submit --name qa --model Qwen/Qwen2-0.5B --dataset qa.json --epochs 1 --no-fp16", "tasks")
	assert.Contains(t, out, "submitted task")
	assert.Contains(t, out, "qa  ")
	assert.Contains(t, out, "pending")

	var task database.Task
	require.NoError(t, h.db.Where("name = ?", "qa").First(&task).Error)
	assert.False(t, task.FP16)
	assert.Equal(t, 1.0, task.Epochs)

	out = h.run(t, "logs", "task "+task.Id.String(), "logs")
	assert.Contains(t, out, "error: open a task first")
	assert.Contains(t, out, "status:")
	assert.Contains(t, out, "Qwen/Qwen2-0.5B")
	assert.Contains(t, out, "no logs yet")

	out = h.run(t, "task "+uuid.NewString())
	assert.Contains(t, out, "not found")
}

func TestChatCommands(t *testing.T) {
	h := newHarness(t)
	h.signUp(t, "alice")

	out := h.run(t, "chat", "hello", "say hi")
	assert.Contains(t, out, "no models available yet")
	assert.Contains(t, out, "error: no model selected")

	require.NoError(t, h.db.Create(&database.Model{
		Id:            uuid.New(),
		UserId:        h.userId(t, "alice"),
		Name:          "qa_model",
		ModelPath:     "alice/models/qa",
		BaseModelPath: sql.NullString{String: "Qwen/Qwen2-0.5B", Valid: true},
		CreationTime:  time.Now(),
	}).Error)

	out = h.run(t, "say hi", "chat", "hello", "what's up", "model", "/model nope", "clear", "tasks", "clear")
	assert.Contains(t, out, "error: open the chat screen first")
	assert.Contains(t, out, "chatting with qa_model")
	assert.Contains(t, out, "assistant> [Qwen/Qwen2-0.5B] hello")
	assert.Contains(t, out, "assistant> [Qwen/Qwen2-0.5B] what's up")
	assert.Contains(t, out, "* qa_model")
	assert.Contains(t, out, "error: unknown model: nope")
	assert.Contains(t, out, "chat history cleared")
	assert.Equal(t, 2, strings.Count(out, "error: open the chat screen first"))
}

func TestChatTextStartingWithCommandWord(t *testing.T) {
	h := newHarness(t)
	h.signUp(t, "alice")
	require.NoError(t, h.db.Create(&database.Model{
		Id:            uuid.New(),
		UserId:        h.userId(t, "alice"),
		Name:          "qa_model",
		ModelPath:     "alice/models/qa",
		BaseModelPath: sql.NullString{String: "Qwen/Qwen2-0.5B", Valid: true},
		CreationTime:  time.Now(),
	}).Error)

	out := h.run(t,
		"chat",
		"help me write a poem",
		"Exit strategies for a startup?",
		"tasks are piling up",
		"hello",
		"/tasks",
	)
	assert.Contains(t, out, "assistant> [Qwen/Qwen2-0.5B] help me write a poem")
	assert.Contains(t, out, "assistant> [Qwen/Qwen2-0.5B] Exit strategies for a startup?")
	assert.Contains(t, out, "assistant> [Qwen/Qwen2-0.5B] tasks are piling up")
	assert.Contains(t, out, "assistant> [Qwen/Qwen2-0.5B] hello")
	assert.NotContains(t, out, "Commands:")
	assert.Contains(t, out, "no tasks")
	assert.Contains(t, out, "tasks> ")

	out = h.run(t, "chat", "/frobnicate now", "/help", "exit", "hello")
	assert.Contains(t, out, `unknown command "frobnicate"`)
	assert.Contains(t, out, "Commands:")
	assert.NotContains(t, out, "assistant> [Qwen/Qwen2-0.5B] hello")
}

func TestUnknownCommandAndExit(t *testing.T) {
	h := newHarness(t)

	out := h.run(t, "frobnicate", `login "alice`, "help", "exit", "tasks")
	assert.Contains(t, out, `unknown command "frobnicate"`)
	assert.Contains(t, out, "error: invalid command line string")
	assert.Contains(t, out, "Commands:")
	assert.NotContains(t, out, "error: not logged in")
}
