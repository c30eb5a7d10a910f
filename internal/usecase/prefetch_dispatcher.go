package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/domain/repository"
	"github.com/hszk-dev/countrytube/internal/infrastructure/cache"
	"github.com/hszk-dev/countrytube/internal/infrastructure/metrics"
	"github.com/hszk-dev/countrytube/internal/logging"
)

// PrefetchDispatcherConfig holds configuration for PrefetchDispatcher.
type PrefetchDispatcherConfig struct {
	// Pages is the number of following pages a warm-up task computes.
	Pages int
	// PublishTimeout bounds the asynchronous publish of a warm-up task.
	PublishTimeout time.Duration
}

// DefaultPrefetchDispatcherConfig returns the default configuration.
func DefaultPrefetchDispatcherConfig() PrefetchDispatcherConfig {
	return PrefetchDispatcherConfig{
		Pages:          3,
		PublishTimeout: 5 * time.Second,
	}
}

// PrefetchDispatcher fires the warm-up for a country at most once between resets.
type PrefetchDispatcher interface {
	// DispatchOnce claims q.Country and, for the single winner, publishes a
	// warm-up task for the pages following page without waiting for it.
	// It returns true only for the winner. Faults are logged and reported as false.
	DispatchOnce(ctx context.Context, q model.PageQuery, page *model.PageResult) bool

	// Reset re-arms every country.
	Reset(ctx context.Context) error

	// Wait blocks until in-flight publishes have finished.
	Wait()
}

type prefetchDispatcher struct {
	state cache.DispatchState
	queue repository.PrefetchQueue

	pages          int
	publishTimeout time.Duration
	inflight       sync.WaitGroup
}

// NewPrefetchDispatcher creates a new PrefetchDispatcher.
func NewPrefetchDispatcher(
	state cache.DispatchState,
	queue repository.PrefetchQueue,
	cfg PrefetchDispatcherConfig,
) PrefetchDispatcher {
	return &prefetchDispatcher{
		state:          state,
		queue:          queue,
		pages:          cfg.Pages,
		publishTimeout: cfg.PublishTimeout,
	}
}

func (d *prefetchDispatcher) DispatchOnce(ctx context.Context, q model.PageQuery, page *model.PageResult) bool {
	logger := logging.FromContext(ctx)

	// Read before claiming so a task never carries an epoch newer than its claim.
	epoch, err := d.state.Epoch(ctx)
	if err != nil {
		metrics.PrefetchDispatchTotal.WithLabelValues(metrics.DispatchError).Inc()
		logger.Warn("prefetch epoch read failed",
			"country", q.Country,
			"error", err,
		)
		return false
	}

	won, err := d.state.Claim(ctx, q.Country)
	if err != nil {
		metrics.PrefetchDispatchTotal.WithLabelValues(metrics.DispatchError).Inc()
		logger.Warn("prefetch claim failed",
			"country", q.Country,
			"error", err,
		)
		return false
	}
	if !won {
		metrics.PrefetchDispatchTotal.WithLabelValues(metrics.DispatchSuppressed).Inc()
		return false
	}
	metrics.PrefetchDispatchTotal.WithLabelValues(metrics.DispatchDispatched).Inc()

	if page.NextToken == nil || d.pages <= 0 {
		logger.Debug("prefetch dispatched with nothing to warm", "country", q.Country)
		return true
	}

	task := repository.PrefetchTask{
		ID:       uuid.New(),
		Country:  q.Country,
		Version:  q.Version,
		Epoch:    epoch,
		Offset:   *page.NextToken,
		PageSize: q.PageSize,
		Pages:    d.pages,
	}

	// The response must not wait for the publish, and the publish must
	// outlive the request that triggered it.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.publishTimeout)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer cancel()
		d.publish(pubCtx, task)
	}()

	return true
}

func (d *prefetchDispatcher) publish(ctx context.Context, task repository.PrefetchTask) {
	logger := logging.FromContext(ctx)

	if err := d.queue.PublishPrefetchTask(ctx, task); err != nil {
		metrics.PrefetchTasksTotal.WithLabelValues(metrics.TaskPublishError).Inc()
		logger.Warn("failed to publish prefetch task",
			"task_id", task.ID,
			"country", task.Country,
			"error", err,
		)
		return
	}

	metrics.PrefetchTasksTotal.WithLabelValues(metrics.TaskPublished).Inc()
	logger.Debug("prefetch task published",
		"task_id", task.ID,
		"country", task.Country,
		"epoch", task.Epoch,
		"offset", task.Offset,
		"pages", task.Pages,
	)
}

func (d *prefetchDispatcher) Reset(ctx context.Context) error {
	return d.state.Reset(ctx)
}

func (d *prefetchDispatcher) Wait() {
	d.inflight.Wait()
}
