package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownWaitsForTasks(t *testing.T) {
	r := New(context.Background(), nil)

	var exited atomic.Int32
	for i := 0; i < 3; i++ {
		r.Go("loop", func(ctx context.Context) error {
			<-ctx.Done()
			exited.Add(1)
			return ctx.Err()
		})
	}

	assert.NoError(t, r.Shutdown())
	assert.Equal(t, int32(3), exited.Load())
	assert.NoError(t, r.Shutdown())
}

func TestParentCancellationStopsTasks(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	r := New(parent, nil)

	done := make(chan struct{})
	r.Go("watch", func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		return nil
	})

	cancel()
	<-done
	assert.NoError(t, r.Shutdown())
}

func TestTaskErrorIsReturned(t *testing.T) {
	r := New(context.Background(), nil)
	boom := errors.New("boom")
	r.Go("fail", func(ctx context.Context) error { return boom })

	assert.ErrorIs(t, r.Shutdown(), boom)
}

func TestGoAfterShutdownIsNoop(t *testing.T) {
	r := New(context.Background(), nil)
	assert.NoError(t, r.Shutdown())

	var ran atomic.Bool
	r.Go("late", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	assert.NoError(t, r.Shutdown())
	assert.False(t, ran.Load())
}

func TestParentDeadlineIsNotATaskError(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r := New(parent, nil)

	done := make(chan struct{})
	r.Go("loop", func(ctx context.Context) error {
		defer close(done)
		<-ctx.Done()
		return ctx.Err()
	})

	<-done
	assert.NoError(t, r.Shutdown())
}
