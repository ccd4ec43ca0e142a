package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finetune-console/internal/client"
	"finetune-console/internal/transport"
	"finetune-console/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenSource string

func (s tokenSource) Credential() (api.Credential, bool) {
	return api.Credential{AccessToken: string(s)}, s != ""
}

type recorded struct {
	method string
	path   string
	auth   string
	body   string
}

func newServer(t *testing.T, responses map[string]string) (transport.Doer, *[]recorded) {
	var calls []recorded
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization"), body: string(body)})

		res, ok := responses[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not Found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(res))
	}))
	t.Cleanup(server.Close)

	return transport.New(transport.Config{BaseURL: server.URL + "/api"}, tokenSource("tok")), &calls
}

func TestAuthClient(t *testing.T) {
	doer, calls := newServer(t, map[string]string{
		"POST /api/auth/register": `{"message":"User registered successfully"}`,
		"POST /api/auth/login":    `{"access_token":"tok123","token_type":"bearer","user":{"user_id":"u1","username":"alice","email":"a@x.io"}}`,
		"GET /api/auth/me":        `{"user_id":"u1","username":"alice","email":"a@x.io"}`,
	})
	auth := client.NewAuthClient(doer)
	ctx := context.Background()

	require.NoError(t, auth.Register(ctx, api.RegisterRequest{Username: "alice", Email: "a@x.io", Password: "secret1"}))

	res, err := auth.Login(ctx, api.LoginRequest{UsernameOrEmail: "alice", Password: "secret1", RememberMe: true})
	require.NoError(t, err)
	assert.Equal(t, api.Credential{AccessToken: "tok123", TokenType: "bearer"}, res.Credential())
	assert.Equal(t, "alice", res.User.Username)

	user, err := auth.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserId)

	require.Len(t, *calls, 3)
	assert.Empty(t, (*calls)[0].auth)
	assert.Empty(t, (*calls)[1].auth)
	assert.Equal(t, "Bearer tok", (*calls)[2].auth)

	var login map[string]any
	require.NoError(t, json.Unmarshal([]byte((*calls)[1].body), &login))
	assert.Equal(t, "alice", login["username_or_email"])
	assert.Equal(t, true, login["remember_me"])
}

func TestTaskClient(t *testing.T) {
	doer, calls := newServer(t, map[string]string{
		"GET /api/tasks":         `[{"task_id":"t1","name":"a","status":"running"}]`,
		"POST /api/tasks":        `{"task_id":"t2","name":"b","status":"pending"}`,
		"GET /api/tasks/t2":      `{"task_id":"t2","name":"b","status":"pending"}`,
		"GET /api/tasks/t2/logs": `{"logs":"step 1\n"}`,
	})
	tasks := client.NewTaskClient(doer)
	ctx := context.Background()

	list, err := tasks.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, api.TaskRunning, list[0].Status)

	req := api.NewTaskCreate()
	req.Name, req.ModelName, req.DatasetPath = "b", "Qwen/Qwen2-0.5B", "/data/u1/datasets/x.json"
	created, err := tasks.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "t2", created.TaskId)

	got, err := tasks.Get(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)

	logs, err := tasks.Logs(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "step 1\n", logs)

	_, err = tasks.Get(ctx, "missing")
	assert.True(t, transport.IsNotFound(err))

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte((*calls)[1].body), &body))
	assert.Equal(t, "sft", body["stage"])
	assert.EqualValues(t, 4, body["batch_size"])
	assert.NotContains(t, body, "fp16")
}

func TestFileClient(t *testing.T) {
	doer, calls := newServer(t, map[string]string{
		"GET /api/files/datasets":           `[{"file_id":"f1","filename":"a.json","size":10}]`,
		"POST /api/files/datasets":          `{"file_id":"f2","filename":"b.json","size":2}`,
		"DELETE /api/files/datasets/f1":     ``,
		"POST /api/files/datasets/generate": `{"file_id":"f3","filename":"ml.json","size":100}`,
		"GET /api/files/models":             `[{"model_id":"m1","name":"a_model","model_path":"/m/a"}]`,
		"GET /api/files/models/available":   `[{"model_id":"m1","name":"a_model","model_path":"/m/a","base_model_path":"Qwen"}]`,
	})
	files := client.NewFileClient(doer)
	ctx := context.Background()

	datasets, err := files.ListDatasets(ctx)
	require.NoError(t, err)
	assert.Len(t, datasets, 1)

	uploaded, err := files.UploadDataset(ctx, "b.json", strings.NewReader("[]"))
	require.NoError(t, err)
	assert.Equal(t, "f2", uploaded.FileId)

	require.NoError(t, files.DeleteDataset(ctx, "f1"))

	generated, err := files.GenerateDataset(ctx, "machine learning", nil)
	require.NoError(t, err)
	assert.Equal(t, "ml.json", generated.Filename)
	assert.JSONEq(t, `{"topic":"machine learning"}`, (*calls)[3].body)

	name := "custom"
	_, err = files.GenerateDataset(ctx, "ml", &name)
	require.NoError(t, err)
	assert.JSONEq(t, `{"topic":"ml","filename":"custom"}`, (*calls)[4].body)

	models, err := files.ListModels(ctx)
	require.NoError(t, err)
	assert.Nil(t, models[0].BaseModelPath)

	available, err := files.AvailableModels(ctx)
	require.NoError(t, err)
	require.NotNil(t, available[0].BaseModelPath)
	assert.Equal(t, "Qwen", *available[0].BaseModelPath)
}

func TestChatClient(t *testing.T) {
	doer, calls := newServer(t, map[string]string{
		"POST /api/chat/completion": `{"role":"assistant","content":"hello there"}`,
	})
	chat := client.NewChatClient(doer)

	reply, err := chat.Completion(context.Background(), api.ChatRequest{
		ModelPath: "/m/a",
		Messages:  []api.ChatMessage{{Role: api.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, api.ChatMessage{Role: api.RoleAssistant, Content: "hello there"}, reply)
	assert.JSONEq(t, `{"model_path":"/m/a","messages":[{"role":"user","content":"hi"}]}`, (*calls)[0].body)
}
