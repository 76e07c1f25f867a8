// Package runner owns the background tasks of one SDK client: a context,
// the goroutines bound to it, and an explicit shutdown.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Runner is an explicitly owned execution context with Go/Shutdown.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	logger *slog.Logger

	mu       sync.Mutex
	shutdown bool
}

// New creates a Runner whose tasks stop when parent is done or Shutdown is called.
func New(parent context.Context, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)

	return &Runner{
		ctx:    gctx,
		cancel: cancel,
		group:  group,
		logger: logger.With("component", "runner"),
	}
}

// Context returns the context handed to every task.
func (r *Runner) Context() context.Context {
	return r.ctx
}

// Go starts a named task. A task returning an error other than its context
// ending cancels the others. Go after Shutdown is a no-op.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		r.logger.Debug("task not started, runner is shut down", "task", name)
		return
	}

	r.group.Go(func() error {
		err := fn(r.ctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("task exited with error", "task", name, "error", err)
			return err
		}
		r.logger.Debug("task exited", "task", name)
		return nil
	})
}

// Shutdown cancels the context and waits for every task. Safe to call twice.
func (r *Runner) Shutdown() error {
	r.mu.Lock()
	r.shutdown = true
	r.mu.Unlock()

	r.cancel()
	return r.group.Wait()
}
