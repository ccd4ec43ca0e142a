package screens

import (
	"context"
	"fmt"
	"strings"

	"finetune-console/internal/router"
	"finetune-console/internal/transport"
	"finetune-console/pkg/api"
)

var statusLabels = map[string]string{
	api.TaskPending:   "pending",
	api.TaskRunning:   "running",
	api.TaskCompleted: "completed",
	api.TaskFailed:    "failed",
}

// StatusLabel is the display text for a task status. Unknown statuses are shown
// as sent.
func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

type TaskList struct {
	status

	Tasks []api.Task

	tasks TaskService
}

func NewTaskList(tasks TaskService) *TaskList {
	return &TaskList{tasks: tasks}
}

func (s *TaskList) Load(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	tasks, err := s.tasks.List(ctx)
	if err != nil {
		return s.fail(err, "failed to load tasks")
	}
	s.Tasks = tasks
	return nil
}

// SubmitTask is the job submission form. Datasets and base models are loaded on
// mount; the first available model is preselected.
type SubmitTask struct {
	status

	Form     api.TaskCreate
	Datasets []api.DatasetFile
	Models   []api.ModelFile

	tasks TaskService
	files FileService
	nav   Navigator
}

func NewSubmitTask(tasks TaskService, files FileService, nav Navigator) *SubmitTask {
	return &SubmitTask{Form: api.NewTaskCreate(), tasks: tasks, files: files, nav: nav}
}

// Load fetches the dataset and model choices. Either list failing leaves the
// other usable.
func (s *SubmitTask) Load(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	var firstErr error

	datasets, err := s.files.ListDatasets(ctx)
	if err != nil {
		firstErr = s.fail(err, "failed to load datasets")
	} else {
		s.Datasets = datasets
	}

	models, err := s.files.AvailableModels(ctx)
	if err != nil {
		if firstErr == nil {
			firstErr = s.fail(err, "failed to load models")
		}
		return firstErr
	}
	s.Models = models

	if s.Form.ModelName == "" && len(models) > 0 {
		s.Form.ModelName = models[0].Name
	}
	return firstErr
}

func (s *SubmitTask) validate() error {
	switch {
	case strings.TrimSpace(s.Form.Name) == "":
		return s.invalid("name", "task name is required")
	case strings.TrimSpace(s.Form.ModelName) == "":
		return s.invalid("model_name", "model is required")
	case strings.TrimSpace(s.Form.DatasetPath) == "":
		return s.invalid("dataset_path", "dataset is required")
	case s.Form.Epochs <= 0:
		return s.invalid("epochs", "epochs must be positive")
	case s.Form.LearningRate <= 0:
		return s.invalid("learning_rate", "learning rate must be positive")
	case s.Form.BatchSize <= 0:
		return s.invalid("batch_size", "batch size must be positive")
	case s.Form.GradientAccumulationSteps <= 0:
		return s.invalid("gradient_accumulation_steps", "gradient accumulation steps must be positive")
	}
	return nil
}

// Submit creates the task and returns to the task list. On failure the form
// stays populated.
func (s *SubmitTask) Submit(ctx context.Context) (api.Task, error) {
	if err := s.validate(); err != nil {
		return api.Task{}, err
	}

	if err := s.begin(); err != nil {
		return api.Task{}, err
	}
	defer s.end()

	gen := s.nav.Generation()

	task, err := s.tasks.Create(ctx, s.Form)
	if err != nil {
		return api.Task{}, s.fail(err, "failed to submit task")
	}

	s.nav.NavigateFrom(gen, router.PathTasks)
	return task, nil
}

const NoLogs = "no logs yet"

type TaskDetail struct {
	status

	TaskId   string
	Task     *api.Task
	NotFound bool
	Logs     string

	tasks TaskService
}

func NewTaskDetail(tasks TaskService, taskId string) *TaskDetail {
	return &TaskDetail{tasks: tasks, TaskId: taskId}
}

func (s *TaskDetail) Load(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	task, err := s.tasks.Get(ctx, s.TaskId)
	if transport.IsNotFound(err) || (err == nil && task.TaskId == "") {
		s.Task = nil
		s.NotFound = true
		return nil
	}
	if err != nil {
		return s.fail(err, "failed to load task")
	}

	s.Task = &task
	s.NotFound = false
	return nil
}

// FetchLogs loads the training log on demand.
func (s *TaskDetail) FetchLogs(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	logs, err := s.tasks.Logs(ctx, s.TaskId)
	if err != nil {
		return s.fail(err, "failed to load logs")
	}
	s.Logs = logs
	return nil
}

// DisplayLogs is what the log panel shows.
func (s *TaskDetail) DisplayLogs() string {
	if strings.TrimSpace(s.Logs) == "" {
		return NoLogs
	}
	return s.Logs
}

func (s *TaskDetail) String() string {
	if s.NotFound || s.Task == nil {
		return fmt.Sprintf("task %s not found", s.TaskId)
	}
	return fmt.Sprintf("%s (%s)", s.Task.Name, StatusLabel(s.Task.Status))
}
