package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hszk-dev/countrytube/internal/domain/repository"
	"github.com/hszk-dev/countrytube/internal/logging"
)

// ClientConfig holds configuration for the RabbitMQ prefetch queue.
type ClientConfig struct {
	URL       string
	QueueName string
	Prefetch  int // consumer QoS

	// MaxLength bounds the queue; beyond it the oldest tasks are dropped.
	// Zero leaves the queue unbounded.
	MaxLength int

	// TaskTTL expires tasks nobody consumed in time. A page warmed after its
	// cache TTL has passed is useless, so this tracks the cache TTL.
	TaskTTL time.Duration
}

// DefaultClientConfig returns defaults for warm-up traffic: short tasks, a
// bounded backlog and a TTL matching the default page cache TTL.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:       url,
		QueueName: "prefetch_tasks",
		Prefetch:  4,
		MaxLength: 10000,
		TaskTTL:   20 * time.Minute,
	}
}

type amqpConnection interface {
	Close() error
	IsClosed() bool
}

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

// Client carries prefetch tasks between API replicas and workers over RabbitMQ.
type Client struct {
	conn    amqpConnection
	channel amqpChannel
	config  ClientConfig
}

var _ repository.PrefetchQueue = (*Client)(nil)

// NewClient dials RabbitMQ and declares the task queue.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return newClient(conn, ch, cfg)
}

func newClient(conn amqpConnection, ch amqpChannel, cfg ClientConfig) (*Client, error) {
	closeAll := func() {
		_ = ch.Close()
		_ = conn.Close()
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, queueArgs(cfg)); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.QueueName, err)
	}

	return &Client{conn: conn, channel: ch, config: cfg}, nil
}

// queueArgs must stay stable across deployments: RabbitMQ rejects a
// redeclaration whose arguments differ from the existing queue.
func queueArgs(cfg ClientConfig) amqp.Table {
	if cfg.MaxLength <= 0 {
		return nil
	}
	return amqp.Table{
		"x-max-length": int64(cfg.MaxLength),
		"x-overflow":   "drop-head",
	}
}

// PublishPrefetchTask sends task through the default exchange.
func (c *Client) PublishPrefetchTask(ctx context.Context, task repository.PrefetchTask) error {
	msg, err := c.publishing(task)
	if err != nil {
		return err
	}
	if err := c.channel.PublishWithContext(ctx, "", c.config.QueueName, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish task %s: %w", task.ID, err)
	}
	return nil
}

func (c *Client) publishing(task repository.PrefetchTask) (amqp.Publishing, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal task: %w", err)
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    task.ID.String(),
		Timestamp:    time.Now().UTC(),
		Headers: amqp.Table{
			"country":     task.Country,
			"retry_count": int64(task.RetryCount),
		},
		Body: body,
	}
	if c.config.TaskTTL > 0 {
		msg.Expiration = strconv.FormatInt(c.config.TaskTTL.Milliseconds(), 10)
	}
	return msg, nil
}

// ConsumePrefetchTasks hands each delivery to handler until ctx is done.
//
// A malformed body is rejected without requeue. A failed task is
// republished with RetryCount+1 and the original acked, since a plain
// requeue would redeliver the old count forever.
func (c *Client) ConsumePrefetchTasks(ctx context.Context, handler func(ctx context.Context, task repository.PrefetchTask) error) error {
	msgs, err := c.channel.Consume(c.config.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed by broker")
			}
			c.handleDelivery(ctx, msg, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, msg amqp.Delivery, handler func(ctx context.Context, task repository.PrefetchTask) error) {
	logger := logging.FromContext(ctx)

	var task repository.PrefetchTask
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		logger.Warn("discarding malformed prefetch task",
			"message_id", msg.MessageId,
			"error", err,
		)
		_ = msg.Nack(false, false)
		return
	}

	if err := handler(ctx, task); err != nil {
		task.RetryCount++
		if pubErr := c.PublishPrefetchTask(ctx, task); pubErr != nil {
			// The pages stay cold and are computed on demand.
			logger.Error("failed to republish prefetch task",
				"task_id", task.ID,
				"country", task.Country,
				"retry_count", task.RetryCount,
				"error", pubErr,
			)
			_ = msg.Nack(false, false)
			return
		}
		logger.Warn("prefetch task failed, retrying",
			"task_id", task.ID,
			"country", task.Country,
			"retry_count", task.RetryCount,
			"error", err,
		)
	}
	_ = msg.Ack(false)
}

// Close closes the channel, then the connection.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
