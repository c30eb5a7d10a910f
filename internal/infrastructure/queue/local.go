package queue

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hszk-dev/countrytube/internal/domain/repository"
	"github.com/hszk-dev/countrytube/internal/logging"
)

// ErrQueueClosed is returned when publishing to a closed LocalQueue.
var ErrQueueClosed = errors.New("queue closed")

// LocalQueue implements repository.PrefetchQueue in process with a bounded
// buffer drained by a fixed pool of workers. Publishing never blocks: a full
// buffer rejects the task with repository.ErrQueueFull.
type LocalQueue struct {
	tasks   chan repository.PrefetchTask
	workers int

	mu     sync.RWMutex
	closed bool
}

// Compile-time verification that LocalQueue implements repository.PrefetchQueue.
var _ repository.PrefetchQueue = (*LocalQueue)(nil)

// NewLocalQueue creates a queue holding up to size pending tasks, consumed by
// workers goroutines.
func NewLocalQueue(size, workers int) *LocalQueue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &LocalQueue{
		tasks:   make(chan repository.PrefetchTask, size),
		workers: workers,
	}
}

// PublishPrefetchTask enqueues task without blocking.
func (q *LocalQueue) PublishPrefetchTask(ctx context.Context, task repository.PrefetchTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		return repository.ErrQueueFull
	}
}

// ConsumePrefetchTasks runs the worker pool until ctx is cancelled or the
// queue is closed and drained. A failed task is re-enqueued with its
// RetryCount incremented, the same way the RabbitMQ client retries.
func (q *LocalQueue) ConsumePrefetchTasks(ctx context.Context, handler func(ctx context.Context, task repository.PrefetchTask) error) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case task, ok := <-q.tasks:
					if !ok {
						return nil
					}
					q.handle(ctx, task, handler)
				}
			}
		})
	}

	return g.Wait()
}

func (q *LocalQueue) handle(ctx context.Context, task repository.PrefetchTask, handler func(ctx context.Context, task repository.PrefetchTask) error) {
	err := handler(ctx, task)
	if err == nil {
		return
	}

	task.RetryCount++
	if pubErr := q.PublishPrefetchTask(ctx, task); pubErr != nil {
		logging.FromContext(ctx).Error("failed to re-enqueue task for retry",
			"task_id", task.ID,
			"country", task.Country,
			"retry_count", task.RetryCount,
			"handler_error", err,
			"error", pubErr,
		)
	}
}

// Len returns the number of pending tasks.
func (q *LocalQueue) Len() int {
	return len(q.tasks)
}

// Close stops accepting tasks. Consumers finish the tasks already queued and
// then return.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	return nil
}
