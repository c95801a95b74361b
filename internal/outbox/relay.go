package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"groupchat/internal/logger"
	"groupchat/internal/metrics"
)

// Applier performs one job. It must be idempotent: a job may be applied
// again after a crash between apply and delete.
type Applier func(ctx context.Context, job Job) error

const (
	sweepBatch  = 500
	maxAttempts = 20
)

// Relay applies jobs right away and retries failures on a cron schedule.
type Relay struct {
	store Store
	apply Applier
	cron  string
}

func NewRelay(store Store, apply Applier, cronExpr string) (*Relay, error) {
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid outbox cron expression: %s", cronExpr)
	}
	return &Relay{store: store, apply: apply, cron: cronExpr}, nil
}

// Deliver records jobs and then tries each once. Jobs that fail stay in the
// store for the next sweep. The returned error only reports a failure to
// record the jobs.
func (r *Relay) Deliver(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}
	if err := r.store.Put(ctx, jobs...); err != nil {
		// Nothing recorded; still make a best-effort attempt.
		logger.Log.Error("outbox_put_failed", zap.Int("jobs", len(jobs)), zap.Error(err))
		r.run(ctx, jobs, false)
		return err
	}
	r.run(ctx, jobs, true)
	return nil
}

// Sweep retries every pending job and returns how many were applied.
func (r *Relay) Sweep(ctx context.Context) (int, error) {
	jobs, err := r.store.List(ctx, sweepBatch)
	if err != nil {
		return 0, err
	}
	n := r.run(ctx, jobs, true)
	if pending, err := r.store.Len(ctx); err == nil {
		metrics.OutboxPending.Set(float64(pending))
	}
	return n, nil
}

func (r *Relay) run(ctx context.Context, jobs []Job, recorded bool) int {
	applied := 0
	var done []string
	for _, j := range jobs {
		err := r.apply(ctx, j)
		if err == nil {
			applied++
			done = append(done, j.Key())
			continue
		}
		metrics.OutboxFailures.Inc()
		j.Attempts++
		logger.Log.Warn("outbox_apply_failed",
			zap.String("job", j.Key()),
			zap.Int("attempts", j.Attempts),
			zap.Error(err))
		if !recorded {
			continue
		}
		if j.Attempts >= maxAttempts {
			logger.Log.Error("outbox_job_abandoned", zap.String("job", j.Key()))
			done = append(done, j.Key())
			continue
		}
		if err := r.store.Put(ctx, j); err != nil {
			logger.Log.Error("outbox_requeue_failed", zap.String("job", j.Key()), zap.Error(err))
		}
	}
	if recorded && len(done) > 0 {
		if err := r.store.Delete(ctx, done...); err != nil {
			logger.Log.Error("outbox_delete_failed", zap.Int("jobs", len(done)), zap.Error(err))
		}
	}
	return applied
}

// Run sweeps on every tick of the cron expression until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	logger.Log.Info("outbox_relay_started", zap.String("cron", r.cron))
	for {
		next, err := gronx.NextTickAfter(r.cron, time.Now().UTC(), false)
		wait := time.Until(next)
		if err != nil {
			logger.Log.Error("outbox_nexttick_failed", zap.String("cron", r.cron), zap.Error(err))
			wait = 30 * time.Second
		}
		select {
		case <-ctx.Done():
			logger.Log.Info("outbox_relay_stopping")
			return
		case <-time.After(wait):
		}
		if err == nil {
			if n, err := r.Sweep(ctx); err != nil {
				logger.Log.Error("outbox_sweep_failed", zap.Error(err))
			} else if n > 0 {
				logger.Log.Info("outbox_sweep_applied", zap.Int("jobs", n))
			}
		}
	}
}
