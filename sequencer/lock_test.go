package sequencer

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	t.Run("second holder waits for release", func(t *testing.T) {
		l := NewMemoryLocker()
		unlock, err := l.Lock(context.Background(), 1)
		require.NoError(t, err)

		acquired := make(chan struct{})
		go func() {
			unlock2, err := l.Lock(context.Background(), 1)
			if err == nil {
				unlock2()
			}
			close(acquired)
		}()

		select {
		case <-acquired:
			t.Fatal("lock acquired while held")
		case <-time.After(50 * time.Millisecond):
		}

		unlock()
		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("lock not handed over after release")
		}
	})

	t.Run("different ids do not contend", func(t *testing.T) {
		l := NewMemoryLocker()
		unlock1, err := l.Lock(context.Background(), 1)
		require.NoError(t, err)
		defer unlock1()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		unlock2, err := l.Lock(ctx, 2)
		require.NoError(t, err)
		unlock2()
	})

	t.Run("gives up when the context ends", func(t *testing.T) {
		l := NewMemoryLocker()
		unlock, err := l.Lock(context.Background(), 1)
		require.NoError(t, err)
		defer unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, 1)
		assert.ErrorIs(t, err, ErrLockHeld)
	})

	t.Run("unlock twice is harmless", func(t *testing.T) {
		l := NewMemoryLocker()
		unlock, err := l.Lock(context.Background(), 1)
		require.NoError(t, err)
		unlock()
		unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		again, err := l.Lock(ctx, 1)
		require.NoError(t, err)
		again()
	})
	t.Run("entries are dropped once released", func(t *testing.T) {
		l := NewMemoryLocker()
		for id := uint(1); id <= 100; id++ {
			unlock, err := l.Lock(context.Background(), id)
			require.NoError(t, err)
			unlock()
		}
		assert.Zero(t, l.size())
	})

	t.Run("a waiter that gives up leaves no entry behind", func(t *testing.T) {
		l := NewMemoryLocker()
		unlock, err := l.Lock(context.Background(), 7)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, 7)
		require.ErrorIs(t, err, ErrLockHeld)
		assert.Equal(t, 1, l.size(), "the holder keeps the entry")

		unlock()
		assert.Zero(t, l.size())

		again, err := l.Lock(context.Background(), 7)
		require.NoError(t, err)
		again()
	})
}

func TestRedisLockerReleaseFailureIsLogged(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewRedisLocker(client, time.Second, time.Second)
	err := l.release(42, lockKey(42), "token")
	require.Error(t, err)

	var entry *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Data["error_type"] == "lock_release_failed" {
			entry = e
		}
	}
	require.NotNil(t, entry, "release failure must be logged")
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, uint(42), entry.Data["sequence_id"])
	assert.Equal(t, "lock:sequence:42", entry.Data["key"])
}
