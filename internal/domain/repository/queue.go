package repository

import (
	"context"

	"github.com/google/uuid"
)

// PrefetchTask describes cache warm-up work for one country.
type PrefetchTask struct {
	ID         uuid.UUID `json:"id"`
	Country    string    `json:"country"`
	Version    uint64    `json:"version"`
	Epoch      int64     `json:"epoch"`
	Offset     int       `json:"offset"`
	PageSize   int       `json:"page_size"`
	Pages      int       `json:"pages"`
	RetryCount int       `json:"retry_count"`
}

// PrefetchQueue defines the interface for prefetch task transport.
// Implementations should be provided by the infrastructure layer
// (an in-process queue or RabbitMQ).
type PrefetchQueue interface {
	// PublishPrefetchTask enqueues a warm-up task.
	// Used by the API when a country is fetched cold.
	PublishPrefetchTask(ctx context.Context, task PrefetchTask) error

	// ConsumePrefetchTasks processes tasks until ctx is cancelled.
	// The handler function is called for each received task.
	ConsumePrefetchTasks(ctx context.Context, handler func(ctx context.Context, task PrefetchTask) error) error

	// Close releases the underlying transport.
	Close() error
}
