package jobs

import (
	"context"
	"log/slog"
	"time"

	"storage-booking-backend/internal/config"
	"storage-booking-backend/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	bookings service.BookingService
	config   *config.Config
	log      *slog.Logger
	timeout  time.Duration
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(bookings service.BookingService, cfg *config.Config, log *slog.Logger) *JobRunner {
	return &JobRunner{
		bookings: bookings,
		config:   cfg,
		log:      log,
		timeout:  10 * time.Minute,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			jr.log.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
	defer cancel()

	started := time.Now()
	jr.log.Info("Starting job", "job", jobName)
	if err := jobFunc(ctx); err != nil {
		jr.log.Error("Job failed", "job", jobName, "error", err, "elapsed", time.Since(started))
		return
	}
	jr.log.Info("Job completed", "job", jobName, "elapsed", time.Since(started))
}

// SendOverdueReminders mails the owners of bookings holding picked-up items
// past their end date.
func (jr *JobRunner) SendOverdueReminders() {
	jr.runWithRecovery("SendOverdueReminders", func(ctx context.Context) error {
		sent, err := jr.bookings.SendOverdueReminders(ctx)
		if err != nil {
			return err
		}
		jr.log.Info("Overdue reminders queued", "count", sent)
		return nil
	})
}

// RunAllNightlyJobs runs all nightly jobs (for manual execution)
func (jr *JobRunner) RunAllNightlyJobs() {
	jr.SendOverdueReminders()
}
