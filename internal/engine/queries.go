package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/prize"
	"github.com/wonny/arena/internal/realtime/feed"
	"github.com/wonny/arena/internal/registry"
)

// LeaderboardPage is one page of a competition's ranking
type LeaderboardPage struct {
	CompetitionID string                       `json:"competition_id"`
	Version       uint64                       `json:"version"`
	Entries       []contracts.LeaderboardEntry `json:"entries"`
	Total         int                          `json:"total"`
	Limit         int                          `json:"limit"`
	Offset        int                          `json:"offset"`
	BuiltAt       *time.Time                   `json:"built_at,omitempty"`
}

// GetCompetition returns one competition
func (e *Engine) GetCompetition(ctx context.Context, id string) (*contracts.Competition, error) {
	return e.registry.Get(ctx, id)
}

// ListCompetitions returns competitions ordered by start date
func (e *Engine) ListCompetitions(ctx context.Context, filter registry.ListFilter) ([]*contracts.Competition, error) {
	return e.registry.List(ctx, filter)
}

// ListByUser returns every participation of a user
func (e *Engine) ListByUser(userID string) []*contracts.Participant {
	return e.roster.ListByUser(userID)
}

// Participants returns the roster of a competition in join order
func (e *Engine) Participants(ctx context.Context, id string) ([]*contracts.Participant, error) {
	if _, err := e.registry.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.roster.Participants(id), nil
}

// GetLeaderboard pages through the current snapshot without taking the competition lock
func (e *Engine) GetLeaderboard(ctx context.Context, id string, limit, offset int) (*LeaderboardPage, error) {
	if _, err := e.registry.Get(ctx, id); err != nil {
		return nil, err
	}
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", contracts.ErrInvalidRequest)
	}

	page := &LeaderboardPage{CompetitionID: id, Limit: limit, Offset: offset, Entries: []contracts.LeaderboardEntry{}}
	if snap, ok := e.builder.Snapshot(id); ok {
		page.Version = snap.Version
		builtAt := snap.BuiltAt
		page.BuiltAt = &builtAt
	}
	page.Entries, page.Total = e.builder.Page(id, limit, offset)
	return page, nil
}

// GetUserRank returns the ranked entry of one participant
func (e *Engine) GetUserRank(ctx context.Context, id, userID string) (contracts.LeaderboardEntry, error) {
	if _, err := e.registry.Get(ctx, id); err != nil {
		return contracts.LeaderboardEntry{}, err
	}
	p, err := e.roster.Get(id, userID)
	if err != nil {
		return contracts.LeaderboardEntry{}, err
	}
	if p.IsDisqualified {
		return contracts.LeaderboardEntry{}, fmt.Errorf("%w: user %s is disqualified", contracts.ErrParticipantNotFound, userID)
	}
	entry, ok := e.builder.Entry(id, userID)
	if !ok {
		return contracts.LeaderboardEntry{}, fmt.Errorf("%w: user %s not ranked yet", contracts.ErrParticipantNotFound, userID)
	}
	return entry, nil
}

// GetCompetitionStats summarizes the current snapshot
func (e *Engine) GetCompetitionStats(ctx context.Context, id string) (*contracts.CompetitionStats, error) {
	c, err := e.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := &contracts.CompetitionStats{
		CompetitionID: c.ID,
		Status:        c.Status,
		Participants:  c.CurrentParticipants,
		PrizePool:     c.PrizePool,
	}
	if !c.Status.IsTerminal() {
		if remaining := c.EndDate.Sub(e.now()); remaining > 0 {
			stats.TimeRemaining = remaining
		}
	}

	snap, ok := e.builder.Snapshot(id)
	if !ok || len(snap.Entries) == 0 {
		return stats, nil
	}

	builtAt := snap.BuiltAt
	stats.LastRebuildAt = &builtAt
	stats.RankedParticipants = len(snap.Entries)
	stats.TopScore = snap.Entries[0].Score

	returns := make([]float64, len(snap.Entries))
	var sumReturn, sumWinRate float64
	for i, en := range snap.Entries {
		returns[i] = en.ReturnPercentage
		sumReturn += en.ReturnPercentage
		sumWinRate += en.WinRate
		stats.TotalTrades += en.TotalTrades
	}
	n := float64(len(snap.Entries))
	stats.AverageReturnPct = sumReturn / n
	stats.AverageWinRate = sumWinRate / n
	stats.MedianReturnPct = median(returns)

	return stats, nil
}

// PrizeTiers returns the tiers the pool would pay over the current ranked field
func (e *Engine) PrizeTiers(ctx context.Context, id string) ([]contracts.PrizeTier, error) {
	c, err := e.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	count := c.CurrentParticipants
	if snap, ok := e.builder.Snapshot(id); ok {
		count = len(snap.Entries)
	}
	return prize.Allocate(c.PrizePool, count), nil
}

// Results returns the materialized results of a completed competition
func (e *Engine) Results(ctx context.Context, id string) (*contracts.Results, error) {
	c, err := e.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != contracts.StatusCompleted {
		return nil, fmt.Errorf("%w: competition %s is %s", contracts.ErrResultsNotAvailable, id, c.Status)
	}
	return e.store.LoadResults(ctx, id)
}

// Subscribe attaches a live feed callback to an existing competition
func (e *Engine) Subscribe(ctx context.Context, id string, interval time.Duration, callback feed.Callback) (func(), error) {
	if _, err := e.registry.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.feed.Subscribe(id, interval, callback)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
