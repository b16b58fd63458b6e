package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/madcok-co/relay/core/pkg/contracts"
	"github.com/madcok-co/relay/core/pkg/telemetry"
)

// WorkerConfig tunes the polling loop.
type WorkerConfig struct {
	// PollInterval between drain passes when the table is quiet.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"omitempty,gt=0"`

	// BatchSize caps rows per fetch. A full batch triggers an immediate
	// follow-up pass to drain backlog faster than the tick.
	BatchSize int `mapstructure:"batch_size" validate:"omitempty,gte=1"`

	// Ownership scopes which rows this worker may load.
	Ownership contracts.OwnershipFilter
}

// DefaultWorkerConfig returns single-node defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: time.Second,
		BatchSize:    100,
	}
}

// Worker drains staged rows to the broker. Rows are fetched oldest
// first and published serially, preserving per-aggregate order; a
// publish failure aborts the pass so no later row overtakes it.
type Worker struct {
	cfg    WorkerConfig
	store  contracts.OutboxStore
	router *Router
	diag   *telemetry.Diagnostics
	log    contracts.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	// unroutable tags already warned about, to keep the log quiet while
	// a row waits for its producer to be registered.
	warned map[string]struct{}
}

// NewWorker builds a worker over the store and router.
func NewWorker(store contracts.OutboxStore, router *Router, diag *telemetry.Diagnostics, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Worker{
		cfg:    cfg,
		store:  store,
		router: router,
		diag:   diag,
		log:    diag.Logger().Named("outbox"),
		warned: make(map[string]struct{}),
	}
}

// Start launches the polling loop. It returns immediately; use Wait or
// Stop to observe shutdown.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.New("outbox: worker already started")
	}
	w.started = true

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx)
	return nil
}

// Wait blocks until the loop has exited.
func (w *Worker) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.log.Info("outbox worker started",
		"poll_interval", w.cfg.PollInterval,
		"batch_size", w.cfg.BatchSize,
		"buckets", w.cfg.Ownership.Buckets,
		"index", w.cfg.Ownership.Index,
	)

	for {
		full, err := w.drainOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.log.WithError(err).Error("outbox drain pass failed")
		}
		if full {
			// Backlog: go again without waiting for the tick.
			select {
			case <-ctx.Done():
				w.log.Info("outbox worker stopped")
				return
			default:
				continue
			}
		}

		select {
		case <-ctx.Done():
			w.log.Info("outbox worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// drainOnce fetches one batch and publishes it. Returns whether the
// batch was full, hinting at remaining backlog.
func (w *Worker) drainOnce(ctx context.Context) (bool, error) {
	rows, err := w.store.FetchBatch(ctx, w.cfg.Ownership, w.cfg.BatchSize)
	if err != nil {
		return false, err
	}
	if pending, err := w.store.Pending(ctx); err == nil {
		w.diag.Gauge(contracts.MetricOutboxPending).Set(float64(pending))
	}
	if len(rows) == 0 {
		return false, nil
	}

	publishedCount := 0
	var passErr error

	for _, rec := range rows {
		if ctx.Err() != nil {
			passErr = ctx.Err()
			break
		}

		fn, ok := w.router.Route(rec.Type)
		if !ok {
			if _, seen := w.warned[rec.Type]; !seen {
				w.warned[rec.Type] = struct{}{}
				w.log.Warn("no producer registered for staged type, rows held",
					"type", rec.Type, "topic", rec.Topic)
			}
			w.diag.Counter(contracts.MetricOutboxUnroutable,
				contracts.T(contracts.TagType, rec.Type)).Inc()
			continue
		}

		start := time.Now()
		if err := fn(ctx, rec); err != nil {
			w.diag.Counter(contracts.MetricOutboxPublishErrors,
				contracts.T(contracts.TagTopic, rec.Topic)).Inc()
			w.log.WithError(err).Warn("publish failed, pass aborted",
				"outbox_id", rec.ID, "topic", rec.Topic)
			passErr = err
			break
		}
		w.diag.Histogram(contracts.MetricOutboxPublishDuration,
			contracts.T(contracts.TagTopic, rec.Topic)).Observe(time.Since(start).Seconds())

		// Delete each row right after its publish, in its own small
		// transaction with a background-derived ctx: a crash or a
		// shutdown mid-pass republishes at most the row in flight.
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		err := w.store.Delete(delCtx, rec.ID)
		cancel()
		if err != nil {
			passErr = err
			break
		}
		publishedCount++
	}

	// Only published rows count toward the backlog hint. Held rows
	// (unroutable types) must not keep the poll loop spinning.
	return passErr == nil && publishedCount == w.cfg.BatchSize, passErr
}
