package transport_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finetune-console/internal/transport"
	"finetune-console/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCreds struct {
	token string
}

func (s staticCreds) Credential() (api.Credential, bool) {
	if s.token == "" {
		return api.Credential{}, false
	}
	return api.Credential{AccessToken: s.token, TokenType: "bearer"}, true
}

func TestBearerHeaderAttached(t *testing.T) {
	var authHeaders []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := transport.New(transport.Config{BaseURL: server.URL + "/api"}, staticCreds{token: "tok123"})

	var tasks []api.Task
	require.NoError(t, client.Do(context.Background(), transport.Request{Method: http.MethodGet, Path: "/tasks"}, &tasks))
	require.NoError(t, client.Do(context.Background(), transport.Request{Method: http.MethodPost, Path: "/auth/login", Anonymous: true}, nil))

	assert.Equal(t, []string{"Bearer tok123", ""}, authHeaders)
}

func TestNoHeaderWithoutCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := transport.New(transport.Config{BaseURL: server.URL}, staticCreds{})
	require.NoError(t, client.Do(context.Background(), transport.Request{Method: http.MethodDelete, Path: "/files/datasets/1"}, nil))
}

func TestJSONBodyAndDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body api.TaskCreate
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "job", body.Name)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task_id":"t1","name":"job","status":"pending","created_at":"2024-05-01T10:00:00.123456"}`))
	}))
	defer server.Close()

	client := transport.New(transport.Config{BaseURL: server.URL + "/api/"}, staticCreds{token: "x"})

	var task api.Task
	err := client.Do(context.Background(), transport.Request{
		Method: http.MethodPost,
		Path:   "/tasks",
		Body:   api.TaskCreate{Name: "job", ModelName: "m", DatasetPath: "d"},
	}, &task)
	require.NoError(t, err)
	assert.Equal(t, "t1", task.TaskId)
	assert.Equal(t, api.TaskPending, task.Status)
	assert.Equal(t, 2024, task.CreatedAt.Year())
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		check      func(t *testing.T, err error)
		wantDetail string
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"detail":"invalid credentials"}`,
			check: func(t *testing.T, err error) {
				var authErr *transport.AuthenticationError
				require.ErrorAs(t, err, &authErr)
				assert.Equal(t, "tok", authErr.Token())
			},
			wantDetail: "invalid credentials",
		},
		{
			name:   "not found with detail",
			status: http.StatusNotFound,
			body:   `{"detail":"file not found"}`,
			check: func(t *testing.T, err error) {
				assert.True(t, transport.IsNotFound(err))
			},
			wantDetail: "file not found",
		},
		{
			name:   "validation list",
			status: http.StatusUnprocessableEntity,
			body:   `{"detail":[{"loc":["body","topic"],"msg":"field required"},{"msg":"value is not a valid email"}]}`,
			check: func(t *testing.T, err error) {
				var reqErr *transport.RequestError
				require.ErrorAs(t, err, &reqErr)
				assert.Equal(t, http.StatusUnprocessableEntity, reqErr.Status)
			},
			wantDetail: "field required; value is not a valid email",
		},
		{
			name:   "plain text body",
			status: http.StatusInternalServerError,
			body:   `boom`,
			check: func(t *testing.T, err error) {
				var reqErr *transport.RequestError
				require.ErrorAs(t, err, &reqErr)
				assert.Empty(t, reqErr.Detail)
			},
			wantDetail: "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := transport.New(transport.Config{BaseURL: server.URL}, staticCreds{token: "tok"})
			err := client.Do(context.Background(), transport.Request{Method: http.MethodGet, Path: "/x"}, nil)
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, tt.wantDetail, transport.Message(err, "fallback"))
		})
	}
}

func TestNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := transport.New(transport.Config{BaseURL: url}, staticCreds{})
	err := client.Do(context.Background(), transport.Request{Method: http.MethodGet, Path: "/tasks"}, nil)

	var netErr *transport.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "request failed", transport.Message(err, "request failed"))
}

func TestMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client := transport.New(transport.Config{BaseURL: server.URL}, staticCreds{})
	var task api.Task
	err := client.Do(context.Background(), transport.Request{Method: http.MethodGet, Path: "/tasks/1"}, &task)
	assert.ErrorIs(t, err, transport.ErrMalformedResponse)
}

func TestMultipartUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "train.json", header.Filename)
		assert.Equal(t, `[{"instruction":"hi"}]`, string(data))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"file_id":"f1","filename":"train.json","size":21}`))
	}))
	defer server.Close()

	client := transport.New(transport.Config{BaseURL: server.URL}, staticCreds{token: "t"})

	var out api.DatasetFile
	err := client.Do(context.Background(), transport.Request{
		Method: http.MethodPost,
		Path:   "/files/datasets",
		File:   &transport.File{Param: "file", Name: "train.json", Reader: strings.NewReader(`[{"instruction":"hi"}]`)},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "f1", out.FileId)
	assert.EqualValues(t, 21, out.Size)
}
