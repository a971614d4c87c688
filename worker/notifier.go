package worker

import (
	"context"
	"log"

	"github.com/go-redis/redis/v8"
)

// WakeupChannel is the Redis pub/sub channel announcing newly committed jobs
const WakeupChannel = "scheduler:wakeup"

// ChannelNotifier wakes a worker in the same process
type ChannelNotifier struct {
	ch chan struct{}
}

func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{ch: make(chan struct{}, 1)}
}

func (n *ChannelNotifier) Notify(_ context.Context) error {
	select {
	case n.ch <- struct{}{}:
	default:
	}
	return nil
}

func (n *ChannelNotifier) Wakeups() <-chan struct{} {
	return n.ch
}

// RedisNotifier wakes every worker subscribed to WakeupChannel, in any process
type RedisNotifier struct {
	client *redis.Client
	logger *log.Logger
}

func NewRedisNotifier(client *redis.Client, logger *log.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: logger}
}

func (n *RedisNotifier) Notify(ctx context.Context) error {
	return n.client.Publish(ctx, WakeupChannel, "jobs").Err()
}

// Subscribe forwards wake-up messages until ctx is done
func (n *RedisNotifier) Subscribe(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	sub := n.client.Subscribe(ctx, WakeupChannel)

	go func() {
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					n.logger.Println("Wake-up subscription closed")
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out
}
