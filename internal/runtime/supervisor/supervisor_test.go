package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("failing", func(context.Context) error { return boom })
	s.Go("waiting", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.Zero(t, s.Counters().Active)
	assert.Equal(t, uint64(2), s.Counters().Started)
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go0("panicky", func(context.Context) { panic("bad") })

	waitIdle(t, s)
	snap := s.Snapshot()
	require.Len(t, snap.Goroutines, 1)
	assert.Equal(t, uint64(1), snap.Goroutines[0].Panics)
	assert.Equal(t, "bad", snap.Goroutines[0].LastPanic)
	assert.Contains(t, snap.FirstError, "panic in panicky")
}

func TestGoRestartUntilSuccess(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond))

	waitIdle(t, s)
	assert.Equal(t, int32(3), runs.Load())
	assert.Equal(t, uint64(2), s.Snapshot().Goroutines[0].Restarts)
	require.NoError(t, s.Stop(context.Background()))
}

func TestGoRestartGivesUp(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.GoRestart("broken", func(context.Context) error { return errors.New("down") },
		WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	require.Eventually(t, func() bool { return s.Err() != nil }, 3*time.Second, 5*time.Millisecond)
	assert.Contains(t, s.Err().Error(), "broken")
	require.Error(t, s.Stop(context.Background()))
}

func TestStopHonorsDeadline(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	release := make(chan struct{})
	defer close(release)
	s.Go0("stuck", func(context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}

func waitIdle(t *testing.T, s *Supervisor) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Counters().Active == 0 }, 3*time.Second, 5*time.Millisecond)
}
