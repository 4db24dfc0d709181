package jobs

import (
	"context"
	"fmt"
	"time"

	"leadmarket-backend/internal/config"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/service"
)

// NotificationRetrier re-drives parked notification events.
type NotificationRetrier interface {
	RetryFailed(ctx context.Context, limit int32) (delivered, failed int, err error)
}

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	config   *config.Config
	now      func() time.Time
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Ledger        service.LedgerService
	Leads         service.LeadService
	Notifications NotificationRetrier
}

const (
	JobReconcileLedgers   = "reconcile-ledgers"
	JobExpireLeads        = "expire-leads"
	JobRetryNotifications = "retry-notifications"
	JobAll                = "all"
)

// retryBatchSize bounds how many parked events one retry pass re-drives.
const retryBatchSize = 100

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		services: services,
		config:   cfg,
		now:      time.Now,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
	}()

	start := jr.now()
	logger.Info("Starting job", "job", jobName)
	if err = jobFunc(); err != nil {
		logger.Error("Job failed", "job", jobName, "error", err, "duration", time.Since(start))
		return err
	}
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
	return nil
}

// Run executes a single job by name. Used by --run-once.
func (jr *JobRunner) Run(name string) error {
	switch name {
	case JobReconcileLedgers:
		return jr.reconcileLedgers()
	case JobExpireLeads:
		return jr.expireLeads()
	case JobRetryNotifications:
		return jr.retryNotifications()
	case JobAll:
		return jr.RunAll()
	default:
		return fmt.Errorf("unknown job %q", name)
	}
}

// RunAll runs every job once, in order, and returns the first failure.
func (jr *JobRunner) RunAll() error {
	var first error
	for _, run := range []func() error{jr.expireLeads, jr.retryNotifications, jr.reconcileLedgers} {
		if err := run(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
