package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"finetune-console/internal/core"
	"finetune-console/internal/database"
	"finetune-console/internal/messaging"
	"finetune-console/internal/storage"
	"finetune-console/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TaskService struct {
	db        *gorm.DB
	storage   storage.ObjectStore
	publisher messaging.Publisher
}

func NewTaskService(db *gorm.DB, storage storage.ObjectStore, publisher messaging.Publisher) *TaskService {
	return &TaskService{db: db, storage: storage, publisher: publisher}
}

func (s *TaskService) AddRoutes(r chi.Router) {
	r.Get("/", RestHandler(s.List))
	r.Post("/", RestHandlerWithStatus(http.StatusCreated, s.Create))
	r.Get("/{task_id}", RestHandler(s.Get))
	r.Get("/{task_id}/logs", RestHandler(s.Logs))
}

func (s *TaskService) List(r *http.Request) (any, error) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		return nil, err
	}

	var tasks []database.Task
	if err := s.db.WithContext(r.Context()).Where("user_id = ?", user.Id).Order("creation_time DESC").Find(&tasks).Error; err != nil {
		slog.Error("error listing tasks", "user_id", user.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing tasks")
	}

	return convertTasks(tasks), nil
}

func applyTaskDefaults(req *api.TaskCreate) bool {
	if req.Stage == "" {
		req.Stage = api.DefaultStage
	}
	if req.Template == "" {
		req.Template = api.DefaultTemplate
	}
	if req.Epochs == 0 {
		req.Epochs = api.DefaultEpochs
	}
	if req.LearningRate == 0 {
		req.LearningRate = api.DefaultLearningRate
	}
	if req.BatchSize == 0 {
		req.BatchSize = api.DefaultBatchSize
	}
	if req.GradientAccumulationSteps == 0 {
		req.GradientAccumulationSteps = api.DefaultGradientAccumulationSteps
	}
	return req.FP16 == nil || *req.FP16
}

func (s *TaskService) Create(r *http.Request) (any, error) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.TaskCreate](r)
	if err != nil {
		return nil, err
	}
	fp16 := applyTaskDefaults(&req)

	ctx := r.Context()

	var dataset database.Dataset
	if err := s.db.WithContext(ctx).Where("user_id = ? AND file_path = ?", user.Id, req.DatasetPath).First(&dataset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusBadRequest, "Dataset not found")
		}
		slog.Error("error checking dataset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error creating task")
	}

	submission, err := json.Marshal(req)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error encoding task request")
	}

	now := time.Now().UTC()
	task := database.Task{
		Id:                        uuid.New(),
		UserId:                    user.Id,
		Name:                      req.Name,
		ModelName:                 req.ModelName,
		DatasetPath:               req.DatasetPath,
		OutputDir:                 req.OutputDir,
		Stage:                     req.Stage,
		Template:                  req.Template,
		Epochs:                    req.Epochs,
		LearningRate:              req.LearningRate,
		BatchSize:                 req.BatchSize,
		GradientAccumulationSteps: req.GradientAccumulationSteps,
		FP16:                      fp16,
		Request:                   datatypes.JSON(submission),
		Status:                    database.TaskPending,
		CreationTime:              now,
		UpdateTime:                now,
	}
	if task.OutputDir == "" {
		task.OutputDir = s.storage.Location(core.ModelKey(user.Id, task.Id))
	}

	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		slog.Error("error creating task", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create task entry")
	}

	if err := s.publisher.PublishTrainTask(ctx, messaging.TrainTaskPayload{TaskId: task.Id}); err != nil {
		slog.Error("error publishing training task", "task_id", task.Id, "error", err)
		if err := database.UpdateTaskStatus(ctx, s.db, task.Id, database.TaskFailed); err != nil {
			slog.Error("error marking unqueued task failed", "task_id", task.Id, "error", err)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue training task")
	}

	slog.Info("submitted training task", "task_id", task.Id, "user_id", user.Id, "model", task.ModelName)
	return convertTask(task), nil
}

func (s *TaskService) taskForUser(r *http.Request) (database.Task, error) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		return database.Task{}, err
	}

	taskId, err := URLParamUUID(r, "task_id", "Task not found")
	if err != nil {
		return database.Task{}, err
	}

	var task database.Task
	if err := s.db.WithContext(r.Context()).Where("id = ? AND user_id = ?", taskId, user.Id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Task{}, CodedErrorf(http.StatusNotFound, "Task not found")
		}
		slog.Error("error getting task", "task_id", taskId, "error", err)
		return database.Task{}, CodedErrorf(http.StatusInternalServerError, "error retrieving task record")
	}
	return task, nil
}

func (s *TaskService) Get(r *http.Request) (any, error) {
	task, err := s.taskForUser(r)
	if err != nil {
		return nil, err
	}
	return convertTask(task), nil
}

func (s *TaskService) Logs(r *http.Request) (any, error) {
	task, err := s.taskForUser(r)
	if err != nil {
		return nil, err
	}

	logs, err := database.TaskLogText(r.Context(), s.db, task.Id)
	if err != nil {
		slog.Error("error loading task logs", "task_id", task.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error loading task logs")
	}
	return api.TaskLogs{Logs: logs}, nil
}
