package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type User struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"size:50;uniqueIndex;not null"`
	Email        string    `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreationTime time.Time
}

const (
	TaskPending   string = "pending"
	TaskRunning   string = "running"
	TaskCompleted string = "completed"
	TaskFailed    string = "failed"
)

type Task struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId uuid.UUID `gorm:"type:uuid;index;not null"`
	User   *User     `gorm:"foreignKey:UserId;constraint:OnDelete:CASCADE"`

	Name        string `gorm:"not null"`
	ModelName   string `gorm:"not null"`
	DatasetPath string `gorm:"not null"`
	OutputDir   string

	Stage                     string `gorm:"size:20"`
	Template                  string `gorm:"size:50"`
	Epochs                    float64
	LearningRate              float64
	BatchSize                 int
	GradientAccumulationSteps int
	FP16                      bool

	// Submission as received, kept for audit.
	Request datatypes.JSON

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	UpdateTime     time.Time
	CompletionTime sql.NullTime

	Logs []TaskLog `gorm:"foreignKey:TaskId;constraint:OnDelete:CASCADE"`
}

type TaskLog struct {
	Id        uint      `gorm:"primaryKey;autoIncrement"`
	TaskId    uuid.UUID `gorm:"type:uuid;index;not null"`
	Line      string
	Timestamp time.Time
}

type Dataset struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId       uuid.UUID `gorm:"type:uuid;index;not null"`
	Filename     string    `gorm:"not null"`
	StorageKey   string    `gorm:"not null"`
	FilePath     string    `gorm:"not null"`
	Size         int64
	CreationTime time.Time
}

type Model struct {
	Id            uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId        uuid.UUID `gorm:"type:uuid;index;not null"`
	Name          string    `gorm:"not null"`
	ModelPath     string    `gorm:"not null"`
	BaseModelPath sql.NullString
	TaskId        uuid.NullUUID `gorm:"type:uuid"`
	Size          sql.NullInt64
	CreationTime  time.Time
}
