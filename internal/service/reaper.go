package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Skotchmaster/auth_service/internal/repo"
)

// Reaper periodically deletes refresh rows flagged invalidated. Expiry of
// still-active tokens is enforced at verification time, never here.
type Reaper struct {
	Tokens   *repo.TokenRepo
	Interval time.Duration
	Log      *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReaper(tokens *repo.TokenRepo, interval time.Duration, log *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Reaper{Tokens: tokens, Interval: interval, Log: log}
}

func (r *Reaper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Sweeps run on a background context so shutdown waits for
				// the in-flight delete instead of cancelling it halfway.
				r.Sweep(context.Background())
			}
		}
	}()
}

// Stop halts the loop and blocks until any in-flight sweep has finished.
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Sweep is one reaper run. A run with nothing to delete is a no-op.
func (r *Reaper) Sweep(ctx context.Context) {
	count, err := r.Tokens.DeleteInvalidated(ctx)
	if err != nil {
		r.Log.Error("reaper_sweep_failed", "error", err)
		return
	}
	if count > 0 {
		r.Log.Info("reaper_sweep", "deleted", count)
	}
}
