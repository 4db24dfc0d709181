package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/metrics"
	"leadmarket-backend/internal/repository"
)

var errQueueFull = errors.New("notification queue is full")

// Deliverer performs one delivery attempt for a dispatch record.
type Deliverer interface {
	Deliver(ctx context.Context, rec domain.DispatchRecord) error
}

type Config struct {
	Workers     int
	QueueSize   int
	MaxRetries  int
	BaseBackoff time.Duration
}

// Dispatcher delivers post-commit events on a worker pool. Publish never
// blocks the caller; events that cannot be delivered in-line are parked in
// the outbox for RetryFailed.
type Dispatcher struct {
	deliverer Deliverer
	outbox    repository.DispatchRepository
	metrics   *metrics.Metrics
	cfg       Config
	jobs      chan domain.DispatchRecord

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

func NewDispatcher(deliverer Deliverer, outbox repository.DispatchRepository, cfg Config, m *metrics.Metrics) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Dispatcher{
		deliverer: deliverer,
		outbox:    outbox,
		metrics:   m,
		cfg:       cfg,
		jobs:      make(chan domain.DispatchRecord, cfg.QueueSize),
	}
}

// Start launches the workers. They run until Stop or ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil || d.stopped {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	logger.Info("Notification dispatcher started", "workers", d.cfg.Workers, "queueSize", d.cfg.QueueSize)
}

// Stop halts the workers and moves anything still queued to the outbox.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()

	for {
		select {
		case rec := <-d.jobs:
			d.metrics.NotificationsQueued.Dec()
			d.park(context.Background(), rec, errors.New("dispatcher stopped"))
		default:
			logger.Info("Notification dispatcher stopped")
			return
		}
	}
}

// Publish queues an event for delivery. The returned error is only non-nil
// when the event could neither be queued nor parked.
func (d *Dispatcher) Publish(ctx context.Context, kind domain.DispatchKind, eventID uuid.UUID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", kind, err)
	}
	rec := domain.DispatchRecord{
		EventID:   eventID,
		Kind:      kind,
		Payload:   data,
		CreatedAt: time.Now(),
	}

	// The stopped check and the send share the lock so Stop's drain sees
	// every queued event.
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return d.park(ctx, rec, errors.New("dispatcher stopped"))
	}
	select {
	case d.jobs <- rec:
		d.metrics.NotificationsQueued.Inc()
		d.mu.Unlock()
		return nil
	default:
		d.mu.Unlock()
		logger.Warn("Notification queue full, parking event", "eventID", eventID, "kind", kind)
		return d.park(ctx, rec, errQueueFull)
	}
}

// RetryFailed makes one delivery attempt for up to limit parked events.
func (d *Dispatcher) RetryFailed(ctx context.Context, limit int32) (delivered, failed int, err error) {
	pending, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pending notifications: %w", err)
	}

	for _, rec := range pending {
		if ctx.Err() != nil {
			return delivered, failed, ctx.Err()
		}
		if deliverErr := d.deliverer.Deliver(ctx, rec); deliverErr != nil {
			failed++
			d.metrics.NotificationsSent.WithLabelValues(string(rec.Kind), "failed").Inc()
			logger.Warn("Redelivery failed", "eventID", rec.EventID, "attempts", rec.Attempts+1, "error", deliverErr)
			if err := d.outbox.RecordFailure(ctx, rec.EventID, deliverErr.Error()); err != nil {
				logger.Error("Failed to record redelivery failure", "eventID", rec.EventID, "error", err)
			}
			continue
		}
		delivered++
		d.metrics.NotificationsSent.WithLabelValues(string(rec.Kind), "delivered").Inc()
		if err := d.outbox.MarkDelivered(ctx, rec.EventID); err != nil {
			logger.Error("Failed to mark notification delivered", "eventID", rec.EventID, "error", err)
		}
	}
	return delivered, failed, nil
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	logger.Debug("Notification worker started", "worker", id)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Notification worker stopping", "worker", id)
			return
		case rec := <-d.jobs:
			d.metrics.NotificationsQueued.Dec()
			d.process(ctx, rec)
		}
	}
}

// process retries with quadratic backoff, then parks the event.
func (d *Dispatcher) process(ctx context.Context, rec domain.DispatchRecord) {
	for attempt := 1; ; attempt++ {
		err := d.deliverer.Deliver(ctx, rec)
		if err == nil {
			d.metrics.NotificationsSent.WithLabelValues(string(rec.Kind), "delivered").Inc()
			logger.Debug("Notification delivered", "eventID", rec.EventID, "kind", rec.Kind, "attempt", attempt)
			return
		}

		rec.Attempts = attempt
		rec.LastError = err.Error()
		d.metrics.NotificationsSent.WithLabelValues(string(rec.Kind), "failed").Inc()

		if attempt > d.cfg.MaxRetries {
			logger.Warn("Notification failed after retries", "eventID", rec.EventID, "attempts", attempt, "error", err)
			d.park(ctx, rec, err)
			return
		}

		backoff := time.Duration(attempt*attempt) * d.cfg.BaseBackoff
		logger.Debug("Retrying notification", "eventID", rec.EventID, "backoff", backoff, "attempt", attempt)
		select {
		case <-ctx.Done():
			d.park(ctx, rec, err)
			return
		case <-time.After(backoff):
		}
	}
}

func (d *Dispatcher) park(ctx context.Context, rec domain.DispatchRecord, cause error) error {
	if rec.LastError == "" {
		rec.LastError = cause.Error()
	}
	if err := d.outbox.Save(context.WithoutCancel(ctx), &rec); err != nil {
		logger.Error("Failed to park notification", "eventID", rec.EventID, "kind", rec.Kind, "error", err)
		return fmt.Errorf("failed to park notification %s: %w", rec.EventID, err)
	}
	return nil
}
