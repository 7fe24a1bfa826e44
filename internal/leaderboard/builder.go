// Package leaderboard ranks participants and publishes immutable snapshots.
package leaderboard

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/scoring"
	"github.com/wonny/arena/pkg/logger"
	"github.com/wonny/arena/pkg/metrics"
)

// ChangeWindow is the lookback of LeaderboardEntry.ScoreChange24h
const ChangeWindow = 24 * time.Hour

// Snapshot is one immutable ranking of a competition.
// Readers must not modify Entries.
type Snapshot struct {
	CompetitionID string                       `json:"competition_id"`
	Version       uint64                       `json:"version"`
	Entries       []contracts.LeaderboardEntry `json:"entries"`
	BuiltAt       time.Time                    `json:"built_at"`
}

type scorePoint struct {
	at    time.Time
	score float64
}

// board holds the published snapshot of one competition and its score history
type board struct {
	current atomic.Pointer[Snapshot]

	mu      sync.Mutex // serializes rebuilds of this board
	history map[string][]scorePoint
}

// Builder rebuilds leaderboards wholesale and swaps them in atomically.
// ⭐ SSOT: 순위 계산 및 정렬은 여기서만
type Builder struct {
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	boards map[string]*board
}

// NewBuilder creates a builder. m may be nil.
func NewBuilder(log *logger.Logger, m *metrics.Metrics) *Builder {
	return &Builder{
		logger:  log.Component("leaderboard"),
		metrics: m,
		boards:  make(map[string]*board),
	}
}

type scored struct {
	p     *contracts.Participant
	score float64
}

// Build is a scored ranking that has not been published yet
type Build struct {
	Snapshot *Snapshot

	board   *board
	history map[string][]scorePoint
}

// Rebuild prepares and publishes a new snapshot in one step.
// On any scoring error the previous snapshot stays visible.
func (b *Builder) Rebuild(c *contracts.Competition, participants []*contracts.Participant, now time.Time) (*Snapshot, error) {
	build, err := b.Prepare(c, participants, now)
	if err != nil {
		return nil, err
	}
	return b.Publish(build), nil
}

// Prepare scores participants and sorts them without touching the published
// snapshot or the score history. Disqualified participants are skipped.
// Ties go to the earlier join, then the lower user id.
// Prepare and Publish of one competition must be serialized by the caller.
func (b *Builder) Prepare(c *contracts.Competition, participants []*contracts.Participant, now time.Time) (*Build, error) {
	started := time.Now()
	build, err := b.prepare(c, participants, now.UTC())
	b.metrics.ObserveRebuild(started, err)

	if err != nil {
		b.logger.WithFields(map[string]interface{}{
			"competition_id": c.ID,
			"error":          err.Error(),
		}).Error("Leaderboard rebuild aborted")
		return nil, err
	}

	b.logger.WithFields(map[string]interface{}{
		"competition_id": c.ID,
		"version":        build.Snapshot.Version,
		"ranked":         len(build.Snapshot.Entries),
		"duration":       time.Since(started),
	}).Debug("Leaderboard prepared")
	return build, nil
}

// Publish swaps a prepared snapshot in and commits its score history
func (b *Builder) Publish(build *Build) *Snapshot {
	bd := build.board
	bd.mu.Lock()
	defer bd.mu.Unlock()

	bd.history = build.history
	bd.current.Store(build.Snapshot)
	return build.Snapshot
}

func (b *Builder) prepare(c *contracts.Competition, participants []*contracts.Participant, now time.Time) (*Build, error) {
	ranked := make([]scored, 0, len(participants))
	for _, p := range participants {
		if p.IsDisqualified {
			continue
		}
		score, err := scoring.ComputeScore(c.ScoringMetric, p)
		if err != nil {
			return nil, fmt.Errorf("failed to score %s: %w", p.UserID, err)
		}
		ranked = append(ranked, scored{p: p, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if !ranked[i].p.JoinedAt.Equal(ranked[j].p.JoinedAt) {
			return ranked[i].p.JoinedAt.Before(ranked[j].p.JoinedAt)
		}
		return ranked[i].p.UserID < ranked[j].p.UserID
	})

	bd := b.board(c.ID)
	bd.mu.Lock()
	defer bd.mu.Unlock()

	prev := bd.current.Load()
	prevRanks := make(map[string]int)
	var version uint64 = 1
	if prev != nil {
		version = prev.Version + 1
		for _, e := range prev.Entries {
			prevRanks[e.UserID] = e.Rank
		}
	}

	entries := make([]contracts.LeaderboardEntry, len(ranked))
	history := make(map[string][]scorePoint, len(ranked))
	for i, r := range ranked {
		points := bd.history[r.p.UserID]

		entries[i] = contracts.LeaderboardEntry{
			Rank:             i + 1,
			PreviousRank:     prevRanks[r.p.UserID],
			UserID:           r.p.UserID,
			Username:         r.p.Username,
			Score:            r.score,
			ScoreChange24h:   r.score - baseline(points, now, r.score),
			TotalReturn:      scoring.TotalReturn(r.p),
			ReturnPercentage: scoring.ReturnPercentage(r.p),
			WinRate:          scoring.WinRate(r.p),
			TotalTrades:      r.p.TotalTrades,
			JoinedAt:         r.p.JoinedAt,
			LastUpdateTime:   now,
		}
		history[r.p.UserID] = record(points, now, r.score)
	}

	return &Build{
		Snapshot: &Snapshot{
			CompetitionID: c.ID,
			Version:       version,
			Entries:       entries,
			BuiltAt:       now,
		},
		board:   bd,
		history: history,
	}, nil
}

// baseline is the latest score at or before now-24h, else the oldest known score
func baseline(points []scorePoint, now time.Time, fallback float64) float64 {
	if len(points) == 0 {
		return fallback
	}
	cutoff := now.Add(-ChangeWindow)
	base := points[0].score
	for _, pt := range points {
		if pt.at.After(cutoff) {
			break
		}
		base = pt.score
	}
	return base
}

// record appends a point and prunes everything older than the one point the
// next baseline lookup can still need.
func record(points []scorePoint, now time.Time, score float64) []scorePoint {
	out := append(append([]scorePoint(nil), points...), scorePoint{at: now, score: score})
	cutoff := now.Add(-ChangeWindow)
	for len(out) > 1 && !out[1].at.After(cutoff) {
		out = out[1:]
	}
	return out
}

func (b *Builder) board(id string) *board {
	b.mu.RLock()
	bd, ok := b.boards[id]
	b.mu.RUnlock()
	if ok {
		return bd
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if bd, ok = b.boards[id]; !ok {
		bd = &board{history: make(map[string][]scorePoint)}
		b.boards[id] = bd
	}
	return bd
}

// Snapshot returns the current snapshot, lock-free
func (b *Builder) Snapshot(id string) (*Snapshot, bool) {
	b.mu.RLock()
	bd, ok := b.boards[id]
	b.mu.RUnlock()
	if !ok {
		return nil, false
	}
	snap := bd.current.Load()
	return snap, snap != nil
}

// Page returns a copy of entries[offset:offset+limit] and the total count.
// limit <= 0 means everything after offset.
func (b *Builder) Page(id string, limit, offset int) ([]contracts.LeaderboardEntry, int) {
	snap, ok := b.Snapshot(id)
	if !ok {
		return []contracts.LeaderboardEntry{}, 0
	}
	total := len(snap.Entries)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []contracts.LeaderboardEntry{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return append([]contracts.LeaderboardEntry(nil), snap.Entries[offset:end]...), total
}

// Top returns a copy of the first n entries
func (b *Builder) Top(id string, n int) []contracts.LeaderboardEntry {
	if n <= 0 {
		return []contracts.LeaderboardEntry{}
	}
	entries, _ := b.Page(id, n, 0)
	return entries
}

// Entry returns the ranked entry of one user
func (b *Builder) Entry(id, userID string) (contracts.LeaderboardEntry, bool) {
	snap, ok := b.Snapshot(id)
	if !ok {
		return contracts.LeaderboardEntry{}, false
	}
	for _, e := range snap.Entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return contracts.LeaderboardEntry{}, false
}

// Drop forgets a competition's snapshot and history
func (b *Builder) Drop(id string) {
	b.mu.Lock()
	delete(b.boards, id)
	b.mu.Unlock()
}
