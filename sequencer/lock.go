package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mailsequence/utils"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker serializes scheduling of a single sequence id
type Locker interface {
	Lock(ctx context.Context, sequenceID uint) (unlock func(), err error)
}

// MemoryLocker serializes per id within one process. An id's entry lives
// only while someone holds or waits for it.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[uint]*memoryLock
}

type memoryLock struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[uint]*memoryLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, sequenceID uint) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[sequenceID]
	if !ok {
		entry = &memoryLock{ch: make(chan struct{}, 1)}
		l.locks[sequenceID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-entry.ch
				l.drop(sequenceID, entry)
			})
		}, nil
	case <-ctx.Done():
		l.drop(sequenceID, entry)
		return nil, fmt.Errorf("%w: %v", ErrLockHeld, ctx.Err())
	}
}

func (l *MemoryLocker) drop(sequenceID uint, entry *memoryLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, sequenceID)
	}
}

// size reports how many ids currently have an entry
func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker serializes per id across processes with SET NX PX. The TTL
// bounds how long a crashed holder blocks the id.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
		retry:  50 * time.Millisecond,
	}
}

func lockKey(sequenceID uint) string {
	return fmt.Sprintf("lock:sequence:%d", sequenceID)
}

func (l *RedisLocker) Lock(ctx context.Context, sequenceID uint) (func(), error) {
	key := lockKey(sequenceID)
	token := uuid.New().String()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, persistenceError("acquire lock", err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() { l.release(sequenceID, key, token) })
			}, nil
		}

		select {
		case <-time.After(l.retry):
		case <-waitCtx.Done():
			return nil, fmt.Errorf("%w: sequence %d", ErrLockHeld, sequenceID)
		}
	}
}

// release deletes the key only if this holder still owns it. A failure
// leaves the key to expire with its TTL.
func (l *RedisLocker) release(sequenceID uint, key, token string) error {
	// Use a fresh context so a cancelled request still releases.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := unlockScript.Run(ctx, l.client, []string{key}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		utils.LogError("lock_release_failed", err, map[string]interface{}{
			"sequence_id": sequenceID,
			"key":         key,
		})
		return err
	}
	return nil
}
