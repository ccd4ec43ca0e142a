package core

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"finetune-console/internal/database"
	"finetune-console/internal/messaging"
	"finetune-console/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInterrupted = errors.New("training interrupted")

// ModelKey is the storage key under which a task's adapter is written. Its
// Location is the default output_dir of the task.
func ModelKey(userId, taskId uuid.UUID) string {
	return fmt.Sprintf("%s/models/%s", userId, taskId)
}

type TrainerConfig struct {
	Workers int
	// StepDelay is the simulated duration of one epoch.
	StepDelay time.Duration
}

// TaskProcessor consumes the training queue and runs a simulated fine-tuning
// job for each task: the task moves pending -> running -> completed (or
// failed), log lines are appended per epoch and a model record is registered
// on success.
type TaskProcessor struct {
	db       *gorm.DB
	storage  storage.ObjectStore
	receiver messaging.Receiver

	workers   int
	stepDelay time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewTaskProcessor(db *gorm.DB, storage storage.ObjectStore, receiver messaging.Receiver, cfg TrainerConfig) *TaskProcessor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &TaskProcessor{
		db:        db,
		storage:   storage,
		receiver:  receiver,
		workers:   workers,
		stepDelay: cfg.StepDelay,
		stop:      make(chan struct{}),
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor", "workers", proc.workers)

	for i := 0; i < proc.workers; i++ {
		proc.wg.Add(1)
		go func() {
			defer proc.wg.Done()
			for {
				select {
				case task, ok := <-proc.receiver.Tasks():
					if !ok {
						return
					}
					proc.ProcessTask(task)
				case <-proc.stop:
					return
				}
			}
		}()
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.stopOnce.Do(func() { close(proc.stop) })
	proc.receiver.Close()
	proc.wg.Wait()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {
	case messaging.TrainingQueue:
		var payload messaging.TrainTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling training task", "error", err)
			if err := task.Reject(); err != nil {
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processTrainTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) processTrainTask(ctx context.Context, payload messaging.TrainTaskPayload) error {
	var task database.Task
	if err := proc.db.WithContext(ctx).First(&task, "id = ?", payload.TaskId).Error; err != nil {
		slog.Error("error fetching training task", "task_id", payload.TaskId, "error", err)
		return fmt.Errorf("error getting training task: %w", err)
	}

	if task.Status != database.TaskPending {
		slog.Info("task already started, skipping", "task_id", task.Id, "status", task.Status)
		return nil
	}

	slog.Info("processing training task", "task_id", task.Id, "model", task.ModelName)

	if err := database.UpdateTaskStatus(ctx, proc.db, task.Id, database.TaskRunning); err != nil {
		return fmt.Errorf("error marking task running: %w", err)
	}

	size, err := proc.train(ctx, task)
	if err != nil {
		proc.log(ctx, task.Id, "training failed: %v", err)
		if err := database.UpdateTaskStatus(ctx, proc.db, task.Id, database.TaskFailed); err != nil {
			slog.Error("error marking task failed", "task_id", task.Id, "error", err)
		}
		return err
	}

	err = proc.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := database.UpdateTaskStatus(ctx, txn, task.Id, database.TaskCompleted); err != nil {
			return fmt.Errorf("error marking task completed: %w", err)
		}

		model := database.Model{
			Id:            uuid.New(),
			UserId:        task.UserId,
			Name:          task.Name + "_model",
			ModelPath:     task.OutputDir,
			BaseModelPath: sql.NullString{String: task.ModelName, Valid: true},
			TaskId:        uuid.NullUUID{UUID: task.Id, Valid: true},
			Size:          sql.NullInt64{Int64: size, Valid: true},
			CreationTime:  time.Now().UTC(),
		}
		if err := txn.Create(&model).Error; err != nil {
			slog.Error("error registering trained model", "task_id", task.Id, "error", err)
			return fmt.Errorf("error registering trained model: %w", err)
		}
		return nil
	})
	if err != nil {
		proc.log(ctx, task.Id, "training finished but the model could not be registered")
		if err := database.UpdateTaskStatus(ctx, proc.db, task.Id, database.TaskFailed); err != nil {
			slog.Error("error marking task failed", "task_id", task.Id, "error", err)
		}
		return err
	}
	return nil
}

func (proc *TaskProcessor) train(ctx context.Context, task database.Task) (int64, error) {
	proc.log(ctx, task.Id, "loading base model %s", task.ModelName)

	var dataset database.Dataset
	if err := proc.db.WithContext(ctx).Where("user_id = ? AND file_path = ?", task.UserId, task.DatasetPath).First(&dataset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("dataset %s is no longer available", task.DatasetPath)
		}
		return 0, fmt.Errorf("error loading dataset: %w", err)
	}
	proc.log(ctx, task.Id, "loaded dataset %s (%d bytes), stage=%s template=%s", dataset.Filename, dataset.Size, task.Stage, task.Template)

	epochs := int(math.Ceil(task.Epochs))
	if epochs < 1 {
		return 0, fmt.Errorf("invalid epoch count %v", task.Epochs)
	}

	for epoch := 1; epoch <= epochs; epoch++ {
		if err := proc.wait(ctx); err != nil {
			return 0, err
		}
		loss := 2.0 / float64(epoch+1)
		proc.log(ctx, task.Id, "epoch %d/%d loss=%.4f lr=%g batch_size=%d", epoch, epochs, loss, task.LearningRate, task.BatchSize*task.GradientAccumulationSteps)
	}

	adapter, err := json.MarshalIndent(map[string]any{
		"base_model_name_or_path": task.ModelName,
		"task_type":               "CAUSAL_LM",
		"peft_type":               "LORA",
		"fp16":                    task.FP16,
	}, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("error encoding adapter config: %w", err)
	}

	key := ModelKey(task.UserId, task.Id) + "/adapter_config.json"
	size, err := proc.storage.PutObject(ctx, key, bytes.NewReader(adapter))
	if err != nil {
		return 0, fmt.Errorf("error saving adapter: %w", err)
	}
	proc.log(ctx, task.Id, "saved adapter to %s", task.OutputDir)

	return size, nil
}

func (proc *TaskProcessor) wait(ctx context.Context) error {
	if proc.stepDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(proc.stepDelay):
		return nil
	case <-proc.stop:
		return ErrInterrupted
	case <-ctx.Done():
		return ErrInterrupted
	}
}

func (proc *TaskProcessor) log(ctx context.Context, taskId uuid.UUID, format string, args ...any) {
	line := fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.DateTime), fmt.Sprintf(format, args...))
	// Log lines are best effort; a lost line does not fail the task.
	_ = database.AppendTaskLog(ctx, proc.db, taskId, line)
}
