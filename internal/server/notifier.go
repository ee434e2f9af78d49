package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Notifier wakes stream handlers when a game changes. Delivery is best
// effort; subscribers also poll on an interval.
type Notifier interface {
	Publish(ctx context.Context, gameID uint)
	// Subscribe returns a channel that receives at least one value after each
	// burst of publishes, and a function that releases the subscription.
	Subscribe(ctx context.Context, gameID uint) (<-chan struct{}, func())
}

// LocalNotifier fans out within one process.
type LocalNotifier struct {
	mu   sync.Mutex
	subs map[uint]map[chan struct{}]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[uint]map[chan struct{}]struct{})}
}

func (n *LocalNotifier) Publish(ctx context.Context, gameID uint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[gameID] {
		wake(ch)
	}
}

func (n *LocalNotifier) Subscribe(ctx context.Context, gameID uint) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	group := n.subs[gameID]
	if group == nil {
		group = make(map[chan struct{}]struct{})
		n.subs[gameID] = group
	}
	group[ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs[gameID], ch)
			if len(n.subs[gameID]) == 0 {
				delete(n.subs, gameID)
			}
		})
	}
}

// wake never blocks: a pending value already covers this publish.
func wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// RedisNotifier publishes change signals on a per-game Redis channel so
// streams served by other processes wake too.
type RedisNotifier struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisNotifier(client *redis.Client, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: logger}
}

func changeChannel(gameID uint) string {
	return fmt.Sprintf("game:%d:changed", gameID)
}

func (n *RedisNotifier) Publish(ctx context.Context, gameID uint) {
	if err := n.client.Publish(ctx, changeChannel(gameID), "1").Err(); err != nil {
		n.logger.Warn("change publish failed", "game_id", gameID, "error", err)
	}
}

func (n *RedisNotifier) Subscribe(ctx context.Context, gameID uint) (<-chan struct{}, func()) {
	out := make(chan struct{}, 1)
	pubsub := n.client.Subscribe(ctx, changeChannel(gameID))
	if _, err := pubsub.Receive(ctx); err != nil {
		n.logger.Warn("change subscribe failed", "game_id", gameID, "error", err)
		_ = pubsub.Close()
		return out, func() {}
	}

	done := make(chan struct{})
	go func() {
		messages := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				wake(out)
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
}
