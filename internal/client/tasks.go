package client

import (
	"context"
	"net/http"
	"net/url"

	"finetune-console/internal/transport"
	"finetune-console/pkg/api"
)

type TaskClient struct {
	doer transport.Doer
}

func NewTaskClient(doer transport.Doer) *TaskClient {
	return &TaskClient{doer: doer}
}

func (c *TaskClient) List(ctx context.Context) ([]api.Task, error) {
	var tasks []api.Task
	err := c.doer.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/tasks"}, &tasks)
	return tasks, err
}

func (c *TaskClient) Create(ctx context.Context, req api.TaskCreate) (api.Task, error) {
	var task api.Task
	err := c.doer.Do(ctx, transport.Request{Method: http.MethodPost, Path: "/tasks", Body: req}, &task)
	return task, err
}

func (c *TaskClient) Get(ctx context.Context, taskId string) (api.Task, error) {
	var task api.Task
	err := c.doer.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/tasks/" + url.PathEscape(taskId)}, &task)
	return task, err
}

func (c *TaskClient) Logs(ctx context.Context, taskId string) (string, error) {
	var logs api.TaskLogs
	err := c.doer.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/tasks/" + url.PathEscape(taskId) + "/logs"}, &logs)
	return logs.Logs, err
}
