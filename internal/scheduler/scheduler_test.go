package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/deepwater-mud/economy/internal/logging"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client), mr
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "economy:task:sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "economy:task:sweep", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists("economy:task:sweep"))

	_, ok, err = locker.TryLock(ctx, "economy:task:sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "economy:task:emissions", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = locker.TryLock(ctx, "economy:task:emissions", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, release(ctx))
	require.True(t, mr.Exists("economy:task:emissions"))
}

func TestRunSkipsTaskHeldElsewhere(t *testing.T) {
	locker, _ := newRedisLocker(t)
	ctx := context.Background()
	s := New(locker, logging.Discard())

	var calls int32
	task := &Task{Name: "auction-sweep", Interval: time.Minute, Fn: func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}}

	_, ok, err := locker.TryLock(ctx, "economy:task:auction-sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.False(t, s.Run(ctx, task))
	require.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestRunReleasesLockAfterFailure(t *testing.T) {
	locker, mr := newRedisLocker(t)
	s := New(locker, logging.Discard())
	task := &Task{Name: "trade-sweep", Interval: time.Minute, Fn: func(context.Context) error {
		return errors.New("boom")
	}}

	require.True(t, s.Run(context.Background(), task))
	require.False(t, mr.Exists("economy:task:trade-sweep"))
}

func TestStartRunsImmediatelyAndStopWaits(t *testing.T) {
	s := New(NewLocalLocker(), logging.Discard())
	ran := make(chan struct{}, 1)
	s.AddTask("outbox", time.Hour, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	s.AddTask("disabled", 0, func(context.Context) error {
		t.Error("disabled task ran")
		return nil
	})

	s.Start(context.Background())
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run on start")
	}
	s.Stop()
	s.Stop()
}

func TestLocalLockerSerialises(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	release, ok, _ := l.TryLock(ctx, "k", time.Minute)
	require.True(t, ok)
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	require.False(t, ok)
	require.NoError(t, release(ctx))
	_, ok, _ = l.TryLock(ctx, "k", time.Minute)
	require.True(t, ok)
}
