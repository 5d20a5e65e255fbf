package mutex

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "idserver/pkg/domain"
	dErrors "idserver/pkg/domain-errors"
)

func TestWithLock(t *testing.T) {
	ctx := context.Background()

	t.Run("releases after success", func(t *testing.T) {
		l := NewInMemoryLocker(time.Minute)
		sid := id.NewSessionID()
		err := WithLock(ctx, l, sid, func(context.Context) error {
			assert.True(t, l.Held(sid))
			return nil
		})
		require.NoError(t, err)
		assert.False(t, l.Held(sid))
	})

	t.Run("releases after error", func(t *testing.T) {
		l := NewInMemoryLocker(time.Minute)
		sid := id.NewSessionID()
		boom := errors.New("refund api down")
		err := WithLock(ctx, l, sid, func(context.Context) error { return boom })
		require.ErrorIs(t, err, boom)
		assert.False(t, l.Held(sid))
	})

	t.Run("releases after panic", func(t *testing.T) {
		l := NewInMemoryLocker(time.Minute)
		sid := id.NewSessionID()
		assert.Panics(t, func() {
			_ = WithLock(ctx, l, sid, func(context.Context) error { panic("boom") })
		})
		assert.False(t, l.Held(sid))
	})

	t.Run("releases when the context is cancelled", func(t *testing.T) {
		l := NewInMemoryLocker(time.Minute)
		sid := id.NewSessionID()
		cctx, cancel := context.WithCancel(ctx)
		err := WithLock(cctx, l, sid, func(context.Context) error {
			cancel()
			return nil
		})
		require.NoError(t, err)
		assert.False(t, l.Held(sid))
	})

	t.Run("second holder fails fast", func(t *testing.T) {
		l := NewInMemoryLocker(time.Minute)
		sid := id.NewSessionID()
		require.NoError(t, l.Acquire(ctx, sid))

		called := false
		err := WithLock(ctx, l, sid, func(context.Context) error {
			called = true
			return nil
		})
		require.ErrorIs(t, err, ErrRefundInProgress)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeRefundInProgress))
		assert.Equal(t, "Refund already in progress", err.Error())
		assert.False(t, called)
		// a failed acquire must not release the other holder's lock
		assert.True(t, l.Held(sid))
	})
}

func TestInMemoryLockerStaleLockIsReclaimed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewInMemoryLocker(10 * time.Minute)
	l.clock = func() time.Time { return now }
	sid := id.NewSessionID()

	require.NoError(t, l.Acquire(ctx, sid))
	require.ErrorIs(t, l.Acquire(ctx, sid), ErrRefundInProgress)

	now = now.Add(10 * time.Minute)
	require.NoError(t, l.Acquire(ctx, sid))
}

func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLocker(time.Minute)
	sid := id.NewSessionID()

	const goroutines = 20
	var (
		wg       sync.WaitGroup
		wins     atomic.Int32
		busy     atomic.Int32
		start    = make(chan struct{})
		inside   = make(chan struct{})
		finished = make(chan struct{})
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := WithLock(ctx, l, sid, func(context.Context) error {
				wins.Add(1)
				close(inside)
				<-finished
				return nil
			})
			if errors.Is(err, ErrRefundInProgress) {
				busy.Add(1)
			}
		}()
	}
	close(start)
	<-inside
	// every loser has either returned or will fail while the winner is parked
	for busy.Load() < goroutines-1 {
		time.Sleep(time.Millisecond)
	}
	close(finished)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(goroutines-1), busy.Load())
	assert.False(t, l.Held(sid))
}
