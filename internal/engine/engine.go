// Package engine is the entry point of the ranking engine. It serializes every
// mutation of a competition, drives rebuilds, and answers queries.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/leaderboard"
	"github.com/wonny/arena/internal/realtime/cache"
	"github.com/wonny/arena/internal/realtime/feed"
	"github.com/wonny/arena/internal/registry"
	"github.com/wonny/arena/internal/roster"
	"github.com/wonny/arena/pkg/logger"
	"github.com/wonny/arena/pkg/metrics"
)

// Config tunes the engine
type Config struct {
	RegistrationLeadTime time.Duration
	FeedTopN             int
	Clock                func() time.Time
}

// Mirror receives lifecycle hints so it can follow active competitions
type Mirror interface {
	Track(competitionID string) error
	Untrack(competitionID string)
}

// Engine wires registry, roster, builder and feed together.
// ⭐ SSOT: 대회 단위 직렬화(per-competition lock)는 Engine에서만
type Engine struct {
	store      contracts.CompetitionStore
	registry   *registry.Registry
	roster     *roster.Roster
	builder    *leaderboard.Builder
	feed       *feed.Publisher
	valuations *cache.ValuationCache
	mirror     Mirror

	locks   *competitionLocks
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// New builds an engine on top of store. m may be nil.
func New(store contracts.CompetitionStore, cfg Config, log *logger.Logger, m *metrics.Metrics) *Engine {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	leadTime := cfg.RegistrationLeadTime
	if leadTime <= 0 {
		leadTime = registry.DefaultRegistrationLeadTime
	}

	reg := registry.New(store, log, registry.WithLeadTime(leadTime), registry.WithClock(now))
	ros := roster.New(store, reg, log)
	ros.SetClock(now)
	builder := leaderboard.NewBuilder(log, m)

	return &Engine{
		store:      store,
		registry:   reg,
		roster:     ros,
		builder:    builder,
		feed:       feed.NewPublisher(builder, cfg.FeedTopN, log, m),
		valuations: cache.NewValuationCache(48*time.Hour, log),
		locks:      newCompetitionLocks(),
		now:        now,
		metrics:    m,
		logger:     log.Component("engine"),
	}
}

// Feed exposes the live feed publisher
func (e *Engine) Feed() *feed.Publisher {
	return e.feed
}

// SetMirror attaches a mirror. Call before Hydrate.
func (e *Engine) SetMirror(m Mirror) {
	e.mirror = m
}

// Close stops the live feed
func (e *Engine) Close() {
	e.feed.Close()
}

// Hydrate restores competitions and rosters from the store and rebuilds every
// leaderboard that has participants.
func (e *Engine) Hydrate(ctx context.Context) error {
	n, err := e.registry.Hydrate(ctx)
	if err != nil {
		return err
	}

	competitions, err := e.registry.List(ctx, registry.ListFilter{})
	if err != nil {
		return err
	}
	ids := make([]string, len(competitions))
	for i, c := range competitions {
		ids[i] = c.ID
	}

	participants, err := e.roster.Hydrate(ctx, ids)
	if err != nil {
		return err
	}

	for _, c := range competitions {
		unlock := e.locks.lock(c.ID)
		if e.roster.Size(c.ID) > 0 {
			if _, err := e.rebuildLocked(ctx, c); err != nil {
				e.logger.WithError(err).WithField("competition_id", c.ID).Warn("Rebuild after hydrate failed")
			}
		}
		unlock()

		if c.Status == contracts.StatusActive {
			e.track(c.ID)
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"competitions": n,
		"participants": participants,
	}).Info("Engine hydrated")
	return nil
}

// rebuildLocked rebuilds one leaderboard, mirrors ranks onto the roster and
// wakes push subscribers. The competition lock must be held.
func (e *Engine) rebuildLocked(ctx context.Context, c *contracts.Competition) (*leaderboard.Snapshot, error) {
	return e.commitLocked(ctx, c, e.roster.Participants(c.ID))
}

// commitLocked ranks participants, whose state must already be persisted, and publishes the result
func (e *Engine) commitLocked(ctx context.Context, c *contracts.Competition, participants []*contracts.Participant) (*leaderboard.Snapshot, error) {
	build, err := e.builder.Prepare(c, participants, e.now())
	if err != nil {
		return nil, err
	}
	return e.publishLocked(ctx, c.ID, build), nil
}

// publishLocked swaps build in, copies its ranks onto the roster and wakes push subscribers
func (e *Engine) publishLocked(ctx context.Context, competitionID string, build *leaderboard.Build) *leaderboard.Snapshot {
	snap := e.builder.Publish(build)
	if err := e.roster.ApplyRanking(ctx, competitionID, snap.Entries); err != nil {
		// rank columns lag until the next rebuild saves them again
		e.logger.WithError(err).WithField("competition_id", competitionID).Warn("Failed to persist ranking")
	}
	e.feed.Notify(competitionID)
	return snap
}

func (e *Engine) track(competitionID string) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.Track(competitionID); err != nil {
		e.logger.WithError(err).WithField("competition_id", competitionID).Warn("Failed to mirror competition")
	}
}

func (e *Engine) untrack(competitionID string) {
	if e.mirror != nil {
		e.mirror.Untrack(competitionID)
	}
}

// resultLabel is the metrics label of an operation outcome
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(contracts.ErrorCode(err))
}
