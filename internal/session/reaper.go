package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Reaper periodically closes sessions that stopped sending frames.
type Reaper struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

// NewReaper creates an idle-session reaper. The sweep interval is a quarter
// of the idle timeout, clamped to [1s, 30s].
func NewReaper(manager *Manager, logger *slog.Logger) *Reaper {
	interval := min(max(manager.cfg.IdleTimeout/4, time.Second), 30*time.Second)
	return &Reaper{
		manager:  manager,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the reaper loop is actively running.
func (r *Reaper) Running() bool {
	return r.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (r *Reaper) Start(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.safeSweep(ctx)
		}
	}
}

// Stop signals the reaper to stop. It is safe to call more than once.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Reaper) safeSweep(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in session reaper", "panic", fmt.Sprint(p))
		}
	}()
	r.sweep(ctx, time.Now())
}

func (r *Reaper) sweep(ctx context.Context, now time.Time) {
	n := r.manager.reapIdle(ctx, now.Add(-r.manager.cfg.IdleTimeout))
	if n == 0 {
		return
	}
	sessionsReaped.Add(float64(n))
	r.logger.Info("closed idle sessions", "count", n, "active", r.manager.Active())
}
