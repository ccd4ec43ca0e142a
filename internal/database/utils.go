package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func NewDatabase(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// sqlite allows one writer; serialize instead of surfacing SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := GetMigrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func UpdateTaskStatus(ctx context.Context, txn *gorm.DB, taskId uuid.UUID, status string) error {
	now := time.Now().UTC()
	updates := map[string]any{"status": status, "update_time": now}
	if status == TaskCompleted || status == TaskFailed {
		updates["completion_time"] = sql.NullTime{Time: now, Valid: true}
	}

	if err := txn.WithContext(ctx).Model(&Task{Id: taskId}).Updates(updates).Error; err != nil {
		slog.Error("error updating task status", "task_id", taskId, "status", status, "error", err)
		return err
	}
	return nil
}

func AppendTaskLog(ctx context.Context, txn *gorm.DB, taskId uuid.UUID, line string) error {
	entry := TaskLog{TaskId: taskId, Line: line, Timestamp: time.Now().UTC()}
	if err := txn.WithContext(ctx).Create(&entry).Error; err != nil {
		slog.Error("error saving task log line", "task_id", taskId, "error", err)
		return err
	}
	return nil
}

// TaskLogText joins the stored log lines of a task in order.
func TaskLogText(ctx context.Context, txn *gorm.DB, taskId uuid.UUID) (string, error) {
	var lines []TaskLog
	if err := txn.WithContext(ctx).Where("task_id = ?", taskId).Order("id").Find(&lines).Error; err != nil {
		return "", fmt.Errorf("error loading task logs: %w", err)
	}

	var out []byte
	for _, l := range lines {
		out = append(out, l.Line...)
		out = append(out, '\n')
	}
	return string(out), nil
}
