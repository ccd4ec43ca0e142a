package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	TrainingQueue   = "training_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

var ErrQueueClosed = errors.New("training queue is closed")

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type TrainTaskPayload struct {
	TaskId uuid.UUID
}

type Publisher interface {
	PublishTrainTask(ctx context.Context, payload TrainTaskPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
