package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner triggers dispatcher sweeps on a recurring schedule: a fixed ticker
// by default, or a cron expression when one is configured. The dispatcher
// itself owns no cadence.
type Runner struct {
	mu         sync.RWMutex
	dispatcher *Dispatcher
	interval   time.Duration
	cronSpec   string
	logger     *slog.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewRunner creates a sweep runner. cronSpec, when non-empty, overrides the
// interval (standard 5-field cron syntax).
func NewRunner(d *Dispatcher, interval time.Duration, cronSpec string, logger *slog.Logger) *Runner {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Runner{
		dispatcher: d,
		interval:   interval,
		cronSpec:   cronSpec,
		logger:     logger,
	}
}

// Start begins triggering sweeps until Stop is called or ctx is cancelled.
// One catch-up sweep runs immediately so jobs missed while the process was
// down fire on startup.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)

		r.dispatcher.Sweep(ctx)

		if r.cronSpec != "" {
			r.runCron(ctx)
			return
		}
		r.runTicker(ctx)
	}()
}

// Stop gracefully stops the runner.
func (r *Runner) Stop() {
	r.mu.RLock()
	cancel := r.cancel
	done := r.done
	r.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (r *Runner) runTicker(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.dispatcher.Sweep(ctx)
		}
	}
}

func (r *Runner) runCron(ctx context.Context) {
	c := cron.New()
	if _, err := c.AddFunc(r.cronSpec, func() { r.dispatcher.Sweep(ctx) }); err != nil {
		r.logger.Error("invalid sweep cron, falling back to ticker", "spec", r.cronSpec, "error", err)
		r.runTicker(ctx)
		return
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}
