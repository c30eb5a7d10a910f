package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hszk-dev/countrytube/internal/domain/repository"
)

type fakeConn struct {
	closeErr error
	closed   bool
}

func (c *fakeConn) Close() error   { c.closed = true; return c.closeErr }
func (c *fakeConn) IsClosed() bool { return c.closed }

// fakeChannel records what the client sends and replays scripted deliveries.
type fakeChannel struct {
	mu         sync.Mutex
	qosErr     error
	declareErr error
	publishErr error
	consumeErr error
	closeErr   error
	deliveries chan amqp.Delivery

	declaredName string
	declaredArgs amqp.Table
	published    []amqp.Publishing
	publishKeys  []string
	closed       bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if !durable || autoDelete || exclusive {
		return amqp.Queue{}, errors.New("prefetch queue must be durable and shared")
	}
	f.declaredName, f.declaredArgs = name, args
	return amqp.Queue{Name: name}, f.declareErr
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	f.publishKeys = append(f.publishKeys, exchange+"/"+key)
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if autoAck {
		return nil, errors.New("consumer must ack manually")
	}
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	return f.deliveries, nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error { return f.qosErr }
func (f *fakeChannel) Close() error                                           { f.closed = true; return f.closeErr }

func (f *fakeChannel) publishedTasks(t *testing.T) []repository.PrefetchTask {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]repository.PrefetchTask, len(f.published))
	for i, msg := range f.published {
		if err := json.Unmarshal(msg.Body, &out[i]); err != nil {
			t.Fatalf("published body %d is not a task: %v", i, err)
		}
	}
	return out
}

// ackRecorder implements amqp.Acknowledger.
type ackRecorder struct {
	acks, nacks int
	requeued    bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error { a.acks++; return nil }
func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	a.requeued = a.requeued || requeue
	return nil
}
func (a *ackRecorder) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func sampleTask() repository.PrefetchTask {
	return repository.PrefetchTask{
		ID:       uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		Country:  "NL",
		Version:  0xdeadbeef,
		Offset:   5,
		PageSize: 5,
		Pages:    3,
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig("amqp://u:p@mq:5672/")

	if cfg.QueueName != "prefetch_tasks" || cfg.Prefetch != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MaxLength <= 0 || cfg.TaskTTL != 20*time.Minute {
		t.Errorf("MaxLength = %d, TaskTTL = %v; want bounded queue and 20m TTL", cfg.MaxLength, cfg.TaskTTL)
	}
}

func TestNewClient_DeclaresBoundedQueue(t *testing.T) {
	ch := &fakeChannel{}
	cfg := DefaultClientConfig("amqp://localhost")
	cfg.MaxLength = 500

	if _, err := newClient(&fakeConn{}, ch, cfg); err != nil {
		t.Fatalf("newClient() unexpected error = %v", err)
	}

	if ch.declaredName != "prefetch_tasks" {
		t.Errorf("declared %q, want prefetch_tasks", ch.declaredName)
	}
	if got := ch.declaredArgs["x-max-length"]; got != int64(500) {
		t.Errorf("x-max-length = %v, want 500", got)
	}
	if got := ch.declaredArgs["x-overflow"]; got != "drop-head" {
		t.Errorf("x-overflow = %v, want drop-head", got)
	}
}

func TestNewClient_UnboundedQueueHasNoArgs(t *testing.T) {
	ch := &fakeChannel{}
	cfg := DefaultClientConfig("amqp://localhost")
	cfg.MaxLength = 0

	if _, err := newClient(&fakeConn{}, ch, cfg); err != nil {
		t.Fatalf("newClient() unexpected error = %v", err)
	}
	if ch.declaredArgs != nil {
		t.Errorf("args = %v, want nil", ch.declaredArgs)
	}
}

func TestNewClient_SetupErrorsCloseEverything(t *testing.T) {
	tests := []struct {
		name    string
		ch      *fakeChannel
		errText string
	}{
		{name: "qos", ch: &fakeChannel{qosErr: errors.New("qos rejected")}, errText: "failed to set QoS"},
		{name: "declare", ch: &fakeChannel{declareErr: errors.New("PRECONDITION_FAILED")}, errText: "failed to declare queue prefetch_tasks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{}
			_, err := newClient(conn, tt.ch, DefaultClientConfig("amqp://localhost"))

			if err == nil || !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("error = %v, want containing %q", err, tt.errText)
			}
			if !conn.closed || !tt.ch.closed {
				t.Errorf("conn closed = %v, channel closed = %v; want both", conn.closed, tt.ch.closed)
			}
		})
	}
}

func TestClient_PublishPrefetchTask(t *testing.T) {
	ch := &fakeChannel{}
	client := &Client{channel: ch, config: ClientConfig{QueueName: "prefetch_tasks", TaskTTL: 90 * time.Second}}
	task := sampleTask()
	task.RetryCount = 2

	if err := client.PublishPrefetchTask(context.Background(), task); err != nil {
		t.Fatalf("PublishPrefetchTask() unexpected error = %v", err)
	}

	if len(ch.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(ch.published))
	}
	msg := ch.published[0]

	if ch.publishKeys[0] != "/prefetch_tasks" {
		t.Errorf("exchange/key = %q, want default exchange routed to prefetch_tasks", ch.publishKeys[0])
	}
	if msg.DeliveryMode != amqp.Persistent || msg.ContentType != "application/json" {
		t.Errorf("DeliveryMode = %d, ContentType = %q", msg.DeliveryMode, msg.ContentType)
	}
	if msg.MessageId != task.ID.String() {
		t.Errorf("MessageId = %q, want %q", msg.MessageId, task.ID)
	}
	if msg.Expiration != "90000" {
		t.Errorf("Expiration = %q, want 90000", msg.Expiration)
	}
	if msg.Headers["country"] != "NL" || msg.Headers["retry_count"] != int64(2) {
		t.Errorf("Headers = %v", msg.Headers)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}

	if got := ch.publishedTasks(t)[0]; got != task {
		t.Errorf("body = %+v, want %+v", got, task)
	}
}

func TestClient_PublishPrefetchTask_NoTTL(t *testing.T) {
	ch := &fakeChannel{}
	client := &Client{channel: ch, config: ClientConfig{QueueName: "prefetch_tasks"}}

	if err := client.PublishPrefetchTask(context.Background(), sampleTask()); err != nil {
		t.Fatalf("PublishPrefetchTask() unexpected error = %v", err)
	}
	if ch.published[0].Expiration != "" {
		t.Errorf("Expiration = %q, want empty", ch.published[0].Expiration)
	}
}

func TestClient_PublishPrefetchTask_Error(t *testing.T) {
	client := &Client{channel: &fakeChannel{publishErr: errors.New("channel closed")}, config: DefaultClientConfig("")}

	err := client.PublishPrefetchTask(context.Background(), sampleTask())
	if err == nil || !strings.Contains(err.Error(), "failed to publish task") {
		t.Errorf("error = %v", err)
	}
}

func TestClient_ConsumePrefetchTasks_Stops(t *testing.T) {
	handler := func(ctx context.Context, task repository.PrefetchTask) error { return nil }

	t.Run("registration error", func(t *testing.T) {
		client := &Client{channel: &fakeChannel{consumeErr: errors.New("NOT_FOUND")}, config: DefaultClientConfig("")}

		err := client.ConsumePrefetchTasks(context.Background(), handler)
		if err == nil || !strings.Contains(err.Error(), "failed to register consumer") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("context done", func(t *testing.T) {
		client := &Client{channel: &fakeChannel{deliveries: make(chan amqp.Delivery)}, config: DefaultClientConfig("")}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if err := client.ConsumePrefetchTasks(ctx, handler); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want %v", err, context.DeadlineExceeded)
		}
	})

	t.Run("broker closes deliveries", func(t *testing.T) {
		deliveries := make(chan amqp.Delivery)
		close(deliveries)
		client := &Client{channel: &fakeChannel{deliveries: deliveries}, config: DefaultClientConfig("")}

		err := client.ConsumePrefetchTasks(context.Background(), handler)
		if err == nil || !strings.Contains(err.Error(), "closed by broker") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestClient_ConsumePrefetchTasks_Deliveries(t *testing.T) {
	body, _ := json.Marshal(sampleTask())

	tests := []struct {
		name          string
		body          []byte
		handlerErr    error
		publishErr    error
		wantHandled   bool
		wantAcks      int
		wantNacks     int
		wantRepublish bool
	}{
		{name: "handled", body: body, wantHandled: true, wantAcks: 1},
		{name: "malformed body", body: []byte("{not json"), wantNacks: 1},
		{name: "handler error retries", body: body, handlerErr: errors.New("redis down"), wantHandled: true, wantAcks: 1, wantRepublish: true},
		{name: "retry publish error", body: body, handlerErr: errors.New("redis down"), publishErr: errors.New("channel closed"), wantHandled: true, wantNacks: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &ackRecorder{}
			ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 1), publishErr: tt.publishErr}
			ch.deliveries <- amqp.Delivery{Body: tt.body, Acknowledger: ack}
			client := &Client{channel: ch, config: DefaultClientConfig("")}

			var received []repository.PrefetchTask
			done := make(chan struct{})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				defer close(done)
				_ = client.ConsumePrefetchTasks(ctx, func(ctx context.Context, task repository.PrefetchTask) error {
					received = append(received, task)
					return tt.handlerErr
				})
			}()

			// The single delivery is processed before the consumer blocks again.
			time.Sleep(50 * time.Millisecond)
			cancel()
			<-done

			if tt.wantHandled != (len(received) == 1) {
				t.Errorf("handled %d tasks, want handled=%v", len(received), tt.wantHandled)
			}
			if ack.acks != tt.wantAcks || ack.nacks != tt.wantNacks {
				t.Errorf("acks = %d, nacks = %d; want %d, %d", ack.acks, ack.nacks, tt.wantAcks, tt.wantNacks)
			}
			if ack.requeued {
				t.Error("deliveries must never be requeued")
			}

			republished := ch.publishedTasks(t)
			if !tt.wantRepublish {
				if len(republished) != 0 {
					t.Errorf("republished %v, want none", republished)
				}
				return
			}
			if len(republished) != 1 {
				t.Fatalf("republished %d tasks, want 1", len(republished))
			}
			want := sampleTask()
			want.RetryCount = 1
			if republished[0] != want {
				t.Errorf("republished %+v, want %+v", republished[0], want)
			}
		})
	}
}

func TestClient_Close(t *testing.T) {
	tests := []struct {
		name    string
		client  *Client
		errText []string
	}{
		{name: "clean", client: &Client{conn: &fakeConn{}, channel: &fakeChannel{}}},
		{name: "nil fields", client: &Client{}},
		{
			name:    "both fail",
			client:  &Client{conn: &fakeConn{closeErr: errors.New("conn")}, channel: &fakeChannel{closeErr: errors.New("chan")}},
			errText: []string{"failed to close channel", "failed to close connection"},
		},
		{
			name:   "connection already closed",
			client: &Client{conn: &fakeConn{closed: true, closeErr: errors.New("double close")}, channel: &fakeChannel{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.client.Close()
			if len(tt.errText) == 0 {
				if err != nil {
					t.Errorf("Close() unexpected error = %v", err)
				}
				return
			}
			for _, want := range tt.errText {
				if err == nil || !strings.Contains(err.Error(), want) {
					t.Errorf("Close() error = %v, want containing %q", err, want)
				}
			}
		})
	}
}
