package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// dial connects to the broker, retrying up to MaxConnectRetry times, and opens
// a channel with the durable training queue declared.
func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error
	for attempt := 1; attempt <= MaxConnectRetry; attempt++ {
		if conn, err = amqp.Dial(url); err == nil {
			break
		}
		slog.Warn("error connecting to rabbitmq", "attempt", attempt, "max_attempts", MaxConnectRetry, "error", err)
		time.Sleep(RetryDelay)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to rabbitmq after %d attempts: %w", MaxConnectRetry, err)
	}

	ch, err := conn.Channel()
	if err == nil {
		_, err = ch.QueueDeclare(TrainingQueue, true, false, false, false, nil)
	}
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("error opening %s: %w", TrainingQueue, err)
	}

	slog.Info("connected to rabbitmq", "queue", TrainingQueue)
	return conn, ch, nil
}

type RabbitMQPublisher struct {
	url string

	mu   sync.RWMutex
	conn *amqp.Connection
	ch   *amqp.Channel

	closed    chan struct{}
	closeOnce sync.Once
}

var (
	_ Publisher = (*RabbitMQPublisher)(nil)
	_ Receiver  = (*RabbitMQReceiver)(nil)
)

func NewRabbitMQPublisher(url string) (*RabbitMQPublisher, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}

	p := &RabbitMQPublisher{url: url, closed: make(chan struct{})}
	p.use(conn, ch)
	return p, nil
}

func (p *RabbitMQPublisher) use(conn *amqp.Connection, ch *amqp.Channel) {
	p.mu.Lock()
	p.conn, p.ch = conn, ch
	p.mu.Unlock()

	go p.redialOnClose(ch)
}

// redialOnClose replaces ch once the broker drops it. Publishing fails with
// ErrQueueClosed until the new channel is up.
func (p *RabbitMQPublisher) redialOnClose(ch *amqp.Channel) {
	err, ok := <-ch.NotifyClose(make(chan *amqp.Error, 1))
	if !ok {
		return
	}
	slog.Warn("rabbitmq publisher channel closed, redialing", "error", err)

	p.mu.Lock()
	p.ch = nil
	p.mu.Unlock()

	for {
		select {
		case <-p.closed:
			return
		default:
		}

		conn, ch, err := dial(p.url)
		if err == nil {
			p.use(conn, ch)
			return
		}
		time.Sleep(10 * RetryDelay)
	}
}

func (p *RabbitMQPublisher) PublishTrainTask(ctx context.Context, payload TrainTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding training job: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.ch == nil || p.ch.IsClosed() {
		return ErrQueueClosed
	}

	// Persistent so queued jobs survive a broker restart.
	err = p.ch.PublishWithContext(ctx, "", TrainingQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		slog.Error("error publishing training job", "task_id", payload.TaskId, "error", err)
		return fmt.Errorf("error publishing training job: %w", err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.conn != nil {
			if err := p.conn.Close(); err != nil {
				slog.Error("error closing rabbitmq connection", "error", err)
			}
		}
	})
}

type rabbitMQTask struct {
	d amqp.Delivery
}

func (t *rabbitMQTask) Type() string    { return t.d.RoutingKey }
func (t *rabbitMQTask) Payload() []byte { return t.d.Body }
func (t *rabbitMQTask) Ack() error      { return t.d.Ack(false) }
func (t *rabbitMQTask) Reject() error   { return t.d.Reject(false) }

// Nack drops the delivery. A failed training run is recorded on the task
// itself; requeueing would rerun it.
func (t *rabbitMQTask) Nack() error { return t.d.Nack(false, false) }

type RabbitMQReceiver struct {
	url   string
	tasks chan Task

	stop     chan struct{}
	stopOnce sync.Once
}

func NewRabbitMQReceiver(url string) (*RabbitMQReceiver, error) {
	r := &RabbitMQReceiver{
		url:   url,
		tasks: make(chan Task),
		stop:  make(chan struct{}),
	}

	conn, deliveries, err := r.subscribe()
	if err != nil {
		return nil, err
	}
	go r.run(conn, deliveries)
	return r, nil
}

func (r *RabbitMQReceiver) subscribe() (*amqp.Connection, <-chan amqp.Delivery, error) {
	conn, ch, err := dial(r.url)
	if err != nil {
		return nil, nil, err
	}

	// One unacknowledged training job per consumer.
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("error setting rabbitmq prefetch: %w", err)
	}

	deliveries, err := ch.Consume(TrainingQueue, "", false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("error consuming %s: %w", TrainingQueue, err)
	}
	return conn, deliveries, nil
}

// run hands deliveries to Tasks until Close, resubscribing whenever the broker
// drops the connection.
func (r *RabbitMQReceiver) run(conn *amqp.Connection, deliveries <-chan amqp.Delivery) {
	for {
		stopped := r.forward(deliveries)
		if err := conn.Close(); err != nil {
			slog.Debug("error closing rabbitmq connection", "error", err)
		}
		if stopped {
			slog.Info("rabbitmq consumer stopped")
			return
		}

		slog.Warn("rabbitmq consumer lost its channel, resubscribing")
		for {
			select {
			case <-r.stop:
				return
			case <-time.After(RetryDelay):
			}

			var err error
			if conn, deliveries, err = r.subscribe(); err == nil {
				break
			}
			slog.Error("error resubscribing to rabbitmq", "error", err)
		}
	}
}

// forward reports true when it returned because of Close and false when the
// delivery channel closed underneath it.
func (r *RabbitMQReceiver) forward(deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return false
			}
			select {
			case r.tasks <- &rabbitMQTask{d: d}:
			case <-r.stop:
				return true
			}
		case <-r.stop:
			return true
		}
	}
}

func (r *RabbitMQReceiver) Tasks() <-chan Task {
	return r.tasks
}

func (r *RabbitMQReceiver) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}
