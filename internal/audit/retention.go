package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger deletes audit records older than a cutoff
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention periodically removes audit records past the retention window.
type Retention struct {
	cron   *cron.Cron
	store  Purger
	keep   time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewRetention schedules purges with a standard 5-field cron expression or
// a descriptor such as "@daily". A non-positive retentionDays keeps records forever.
func NewRetention(store Purger, retentionDays int, schedule string, logger *zap.Logger) (*Retention, error) {
	r := &Retention{
		cron:   cron.New(),
		store:  store,
		keep:   time.Duration(retentionDays) * 24 * time.Hour,
		logger: logger,
		now:    time.Now,
	}

	if retentionDays <= 0 {
		return r, nil
	}

	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("registering retention schedule %q: %w", schedule, err)
	}

	return r, nil
}

func (r *Retention) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("Audit retention purge failed", zap.Error(err))
	}
}

// RunOnce purges immediately and returns the number of deleted records
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	if r.keep <= 0 {
		return 0, nil
	}

	cutoff := r.now().Add(-r.keep)
	deleted, err := r.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	r.logger.Info("Audit retention purge completed",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted))

	return deleted, nil
}

// Start begins executing the schedule
func (r *Retention) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running purge to finish
func (r *Retention) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of scheduled jobs
func (r *Retention) Entries() int {
	return len(r.cron.Entries())
}
