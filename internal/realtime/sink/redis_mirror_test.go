package sink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/realtime/feed"
	"github.com/wonny/arena/pkg/logger"
)

type fakeFeed struct {
	mu        sync.Mutex
	callbacks map[string]feed.Callback
	unsubs    int
}

func (f *fakeFeed) Subscribe(id string, interval time.Duration, cb feed.Callback) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callbacks == nil {
		f.callbacks = make(map[string]feed.Callback)
	}
	f.callbacks[id] = cb
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubs++
	}, nil
}

type fakeRedis struct {
	mu        sync.Mutex
	sets      map[string]interface{}
	published map[string][]byte
	fail      error
}

func (r *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.sets[key] = value
	return nil
}

func (r *fakeRedis) Publish(ctx context.Context, channel string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[channel] = payload
	return nil
}

func newFakes() (*fakeFeed, *fakeRedis) {
	return &fakeFeed{}, &fakeRedis{sets: map[string]interface{}{}, published: map[string][]byte{}}
}

func TestRedisMirror_WritesAndPublishes(t *testing.T) {
	f, r := newFakes()
	m := NewRedisMirror(f, r, r, logger.NewNop())

	require.NoError(t, m.Track("c1"))
	require.NoError(t, m.Track("c1"))
	assert.Equal(t, 1, m.Tracked())

	snap := feed.Snapshot{CompetitionID: "c1", Version: 3, Entries: []contracts.LeaderboardEntry{{Rank: 1, UserID: "u1"}}}
	require.NoError(t, f.callbacks["c1"](snap))

	assert.Contains(t, r.sets, "leaderboard:c1")
	payload, ok := r.published["leaderboard:c1"]
	require.True(t, ok)

	var decoded feed.Snapshot
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, uint64(3), decoded.Version)
	assert.Equal(t, "u1", decoded.Entries[0].UserID)
}

func TestRedisMirror_ErrorsSurfaceToFeed(t *testing.T) {
	f, r := newFakes()
	r.fail = errors.New("redis down")
	m := NewRedisMirror(f, r, r, logger.NewNop())
	require.NoError(t, m.Track("c1"))

	err := f.callbacks["c1"](feed.Snapshot{CompetitionID: "c1"})
	assert.ErrorContains(t, err, "redis down")
	assert.Empty(t, r.published)
}

func TestRedisMirror_UntrackAndClose(t *testing.T) {
	f, r := newFakes()
	m := NewRedisMirror(f, r, r, logger.NewNop())
	require.NoError(t, m.Track("c1"))
	require.NoError(t, m.Track("c2"))

	m.Untrack("c1")
	m.Untrack("c1")
	assert.Equal(t, 1, m.Tracked())
	assert.Equal(t, 1, f.unsubs)

	m.Close()
	assert.Equal(t, 0, m.Tracked())
	assert.Equal(t, 2, f.unsubs)
}
