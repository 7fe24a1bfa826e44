// Package sink mirrors live leaderboard snapshots into Redis for out-of-process readers.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/arena/internal/realtime/feed"
	"github.com/wonny/arena/pkg/logger"
	"github.com/wonny/arena/pkg/redis"
)

// Subscriber is the feed surface the mirror attaches to
type Subscriber interface {
	Subscribe(competitionID string, interval time.Duration, callback feed.Callback) (func(), error)
}

// Cache stores the latest snapshot
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Broadcaster publishes snapshots to a channel
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisMirror writes every pushed snapshot to
// <prefix>:cache:leaderboard:<id> and publishes it on <prefix>:leaderboard:<id>.
type RedisMirror struct {
	feed    Subscriber
	cache   Cache
	pub     Broadcaster
	ttl     time.Duration
	timeout time.Duration
	logger  *logger.Logger

	mu      sync.Mutex
	tracked map[string]func()
}

// NewRedisMirror creates a mirror
func NewRedisMirror(f Subscriber, cache Cache, pub Broadcaster, log *logger.Logger) *RedisMirror {
	return &RedisMirror{
		feed:    f,
		cache:   cache,
		pub:     pub,
		ttl:     redis.TTLSnapshot,
		timeout: 2 * time.Second,
		logger:  log.Component("redis_mirror"),
		tracked: make(map[string]func()),
	}
}

// Track starts mirroring a competition. Tracking twice is a no-op.
func (m *RedisMirror) Track(competitionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracked[competitionID]; ok {
		return nil
	}

	unsubscribe, err := m.feed.Subscribe(competitionID, 0, m.write)
	if err != nil {
		return fmt.Errorf("failed to subscribe mirror: %w", err)
	}
	m.tracked[competitionID] = unsubscribe

	m.logger.WithField("competition_id", competitionID).Info("Mirroring leaderboard to Redis")
	return nil
}

// Untrack stops mirroring a competition
func (m *RedisMirror) Untrack(competitionID string) {
	m.mu.Lock()
	unsubscribe, ok := m.tracked[competitionID]
	delete(m.tracked, competitionID)
	m.mu.Unlock()

	if ok {
		unsubscribe()
	}
}

// Tracked returns the number of mirrored competitions
func (m *RedisMirror) Tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracked)
}

// Close stops every mirror subscription
func (m *RedisMirror) Close() {
	m.mu.Lock()
	all := m.tracked
	m.tracked = make(map[string]func())
	m.mu.Unlock()

	for _, unsubscribe := range all {
		unsubscribe()
	}
}

func (m *RedisMirror) write(snap feed.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.cache.Set(ctx, redis.LeaderboardKey(snap.CompetitionID), snap, m.ttl); err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := m.pub.Publish(ctx, redis.LeaderboardChannel(snap.CompetitionID), payload); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}
