package core

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finetune-console/internal/database"
	"finetune-console/internal/messaging"
	"finetune-console/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

type fixture struct {
	db    *gorm.DB
	store *storage.LocalObjectStore
	queue *messaging.InMemoryQueue
	proc  *TaskProcessor
	user  database.User
}

func newFixture(t *testing.T) *fixture {
	db := createDB(t)
	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	queue := messaging.NewInMemoryQueue()

	user := database.User{Id: uuid.New(), Username: "alice", Email: "alice@example.com", PasswordHash: "x", CreationTime: time.Now()}
	require.NoError(t, db.Create(&user).Error)

	return &fixture{
		db:    db,
		store: store,
		queue: queue,
		proc:  NewTaskProcessor(db, store, queue, TrainerConfig{}),
		user:  user,
	}
}

func (f *fixture) addTask(t *testing.T, datasetPath string, epochs float64) database.Task {
	task := database.Task{
		Id:           uuid.New(),
		UserId:       f.user.Id,
		Name:         "qa",
		ModelName:    "Qwen/Qwen2-0.5B",
		DatasetPath:  datasetPath,
		Stage:        "sft",
		Template:     "qwen2",
		Epochs:       epochs,
		LearningRate: 5e-5,
		BatchSize:    4,
		Status:       database.TaskPending,
		CreationTime: time.Now().UTC(),
		UpdateTime:   time.Now().UTC(),
	}
	task.OutputDir = f.store.Location(ModelKey(task.UserId, task.Id))
	require.NoError(t, f.db.Create(&task).Error)
	return task
}

func (f *fixture) addDataset(t *testing.T) database.Dataset {
	dataset := database.Dataset{
		Id:           uuid.New(),
		UserId:       f.user.Id,
		Filename:     "qa.json",
		StorageKey:   "k",
		FilePath:     "/data/qa.json",
		Size:         42,
		CreationTime: time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(&dataset).Error)
	return dataset
}

func (f *fixture) process(t *testing.T, taskId uuid.UUID) {
	require.NoError(t, f.queue.PublishTrainTask(context.Background(), messaging.TrainTaskPayload{TaskId: taskId}))
	f.proc.ProcessTask(<-f.queue.Tasks())
}

func TestTrainingCompletesAndRegistersModel(t *testing.T) {
	f := newFixture(t)
	dataset := f.addDataset(t)
	task := f.addTask(t, dataset.FilePath, 2.5)

	f.process(t, task.Id)

	var updated database.Task
	require.NoError(t, f.db.First(&updated, "id = ?", task.Id).Error)
	assert.Equal(t, database.TaskCompleted, updated.Status)
	assert.True(t, updated.CompletionTime.Valid)

	var model database.Model
	require.NoError(t, f.db.First(&model, "task_id = ?", task.Id).Error)
	assert.Equal(t, "qa_model", model.Name)
	assert.Equal(t, task.OutputDir, model.ModelPath)
	assert.Equal(t, "Qwen/Qwen2-0.5B", model.BaseModelPath.String)
	assert.Positive(t, model.Size.Int64)

	logs, err := database.TaskLogText(context.Background(), f.db, task.Id)
	require.NoError(t, err)
	assert.Contains(t, logs, "loading base model Qwen/Qwen2-0.5B")
	assert.Contains(t, logs, "epoch 3/3")

	adapter, err := f.store.GetObject(context.Background(), ModelKey(task.UserId, task.Id)+"/adapter_config.json")
	require.NoError(t, err)
	defer adapter.Close()
	var cfg map[string]any
	require.NoError(t, json.NewDecoder(adapter).Decode(&cfg))
	assert.Equal(t, "Qwen/Qwen2-0.5B", cfg["base_model_name_or_path"])
}

func TestTrainingFailsWithoutDataset(t *testing.T) {
	f := newFixture(t)
	task := f.addTask(t, "/data/removed.json", 3)

	f.process(t, task.Id)

	var updated database.Task
	require.NoError(t, f.db.First(&updated, "id = ?", task.Id).Error)
	assert.Equal(t, database.TaskFailed, updated.Status)

	logs, err := database.TaskLogText(context.Background(), f.db, task.Id)
	require.NoError(t, err)
	assert.Contains(t, logs, "training failed: dataset /data/removed.json is no longer available")

	var count int64
	require.NoError(t, f.db.Model(&database.Model{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTrainingFailsWhenModelCannotBeRegistered(t *testing.T) {
	f := newFixture(t)
	dataset := f.addDataset(t)
	task := f.addTask(t, dataset.FilePath, 1)

	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:reject_model", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Name == "Model" {
			tx.AddError(errors.New("disk full"))
		}
	}))

	f.process(t, task.Id)

	var updated database.Task
	require.NoError(t, f.db.First(&updated, "id = ?", task.Id).Error)
	assert.Equal(t, database.TaskFailed, updated.Status)
	assert.True(t, updated.CompletionTime.Valid)

	logs, err := database.TaskLogText(context.Background(), f.db, task.Id)
	require.NoError(t, err)
	assert.Contains(t, logs, "the model could not be registered")

	var count int64
	require.NoError(t, f.db.Model(&database.Model{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTrainingSkipsStartedTask(t *testing.T) {
	f := newFixture(t)
	dataset := f.addDataset(t)
	task := f.addTask(t, dataset.FilePath, 1)
	require.NoError(t, database.UpdateTaskStatus(context.Background(), f.db, task.Id, database.TaskRunning))

	f.process(t, task.Id)

	var updated database.Task
	require.NoError(t, f.db.First(&updated, "id = ?", task.Id).Error)
	assert.Equal(t, database.TaskRunning, updated.Status)
}

func TestProcessorWorkers(t *testing.T) {
	f := newFixture(t)
	f.proc = NewTaskProcessor(f.db, f.store, f.queue, TrainerConfig{Workers: 2, StepDelay: time.Millisecond})
	f.proc.Start()
	defer f.proc.Stop()

	dataset := f.addDataset(t)
	ids := make([]uuid.UUID, 0, 3)
	for i := 0; i < 3; i++ {
		task := f.addTask(t, dataset.FilePath, 1)
		ids = append(ids, task.Id)
		require.NoError(t, f.queue.PublishTrainTask(context.Background(), messaging.TrainTaskPayload{TaskId: task.Id}))
	}

	assert.Eventually(t, func() bool {
		var completed int64
		if err := f.db.Model(&database.Task{}).Where("id IN ? AND status = ?", ids, database.TaskCompleted).Count(&completed).Error; err != nil {
			return false
		}
		return completed == 3
	}, 5*time.Second, 10*time.Millisecond)
}
