package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/leaderboard"
	"github.com/wonny/arena/internal/prize"
	"github.com/wonny/arena/internal/registry"
	"github.com/wonny/arena/internal/roster"
)

// CreateCompetition validates and registers a competition
func (e *Engine) CreateCompetition(ctx context.Context, req registry.CreateRequest) (*contracts.Competition, error) {
	return e.registry.Create(ctx, req)
}

// TransitionStatus advances a competition's lifecycle.
// ACTIVE and COMPLETED rebuild the leaderboard; COMPLETED also materializes results.
func (e *Engine) TransitionStatus(ctx context.Context, id string, next contracts.Status) (*contracts.Competition, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	if next == contracts.StatusCompleted {
		return e.completeLocked(ctx, id)
	}

	c, err := e.registry.TransitionStatus(ctx, id, next)
	if err != nil {
		return nil, err
	}

	switch next {
	case contracts.StatusActive:
		if _, err := e.rebuildLocked(ctx, c); err != nil {
			e.logger.WithError(err).WithField("competition_id", id).Error("Rebuild on activation failed")
		}
		e.track(id)

	case contracts.StatusCancelled:
		e.untrack(id)
	}

	return c, nil
}

// completeLocked saves the results first and only then marks the competition
// COMPLETED, so a failed save leaves it ACTIVE and the transition can be retried.
func (e *Engine) completeLocked(ctx context.Context, id string) (*contracts.Competition, error) {
	c, err := e.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(contracts.StatusCompleted) {
		return nil, fmt.Errorf("%w: %s -> %s", contracts.ErrInvalidStatusTransition, c.Status, contracts.StatusCompleted)
	}

	if _, err := e.rebuildLocked(ctx, c); err != nil {
		e.logger.WithError(err).WithField("competition_id", id).Error("Final rebuild failed, using last snapshot")
	}
	if _, err := e.materializeLocked(ctx, c); err != nil {
		return nil, err
	}

	done, err := e.registry.TransitionStatus(ctx, id, contracts.StatusCompleted)
	if err != nil {
		return nil, err
	}
	e.untrack(id)
	return done, nil
}

// materializeLocked freezes standings, tiers and payouts of a completed competition
func (e *Engine) materializeLocked(ctx context.Context, c *contracts.Competition) (*contracts.Results, error) {
	standings := []contracts.LeaderboardEntry{}
	if snap, ok := e.builder.Snapshot(c.ID); ok {
		standings = append(standings, snap.Entries...)
	}

	results := &contracts.Results{
		CompetitionID: c.ID,
		Standings:     standings,
		Tiers:         prize.Allocate(c.PrizePool, len(standings)),
		Payouts:       prize.Distribute(c.PrizePool, standings),
		CompletedAt:   e.now().UTC(),
	}
	if err := e.store.SaveResults(ctx, results); err != nil {
		return nil, fmt.Errorf("failed to save results of %s: %w", c.ID, err)
	}

	e.logger.WithFields(map[string]interface{}{
		"competition_id": c.ID,
		"ranked":         len(standings),
		"payouts":        len(results.Payouts),
		"paid":           prize.Total(results.Payouts).String(),
	}).Info("Competition results materialized")
	return results, nil
}

// UpdateRules replaces rules while the competition is UPCOMING
func (e *Engine) UpdateRules(ctx context.Context, id string, rules contracts.Rules) (*contracts.Competition, error) {
	unlock := e.locks.lock(id)
	defer unlock()
	return e.registry.UpdateRules(ctx, id, rules)
}

// Join enrolls a user and re-ranks the competition
func (e *Engine) Join(ctx context.Context, req roster.JoinRequest) (*contracts.Participant, error) {
	unlock := e.locks.lock(req.CompetitionID)
	defer unlock()

	p, err := e.roster.Join(ctx, req)
	if e.metrics != nil {
		e.metrics.Joins.WithLabelValues(resultLabel(err)).Inc()
	}
	if err != nil {
		return nil, err
	}

	if c, err := e.registry.Get(ctx, req.CompetitionID); err == nil {
		if _, err := e.rebuildLocked(ctx, c); err != nil {
			e.logger.WithError(err).WithField("competition_id", c.ID).Warn("Rebuild after join failed")
		}
	}
	return p, nil
}

// Leave removes a participant and re-ranks the rest
func (e *Engine) Leave(ctx context.Context, competitionID, userID string) error {
	unlock := e.locks.lock(competitionID)
	defer unlock()

	c, err := e.registry.Get(ctx, competitionID)
	if err != nil {
		return err
	}
	if err := e.roster.Leave(ctx, competitionID, userID); err != nil {
		return err
	}
	e.valuations.Forget(competitionID, userID)

	c.CurrentParticipants = e.roster.Size(competitionID)
	if _, err := e.rebuildLocked(ctx, c); err != nil {
		return fmt.Errorf("participant removed but rebuild failed: %w", err)
	}
	return nil
}

// Disqualify removes a participant from the ranking while keeping the enrollment
func (e *Engine) Disqualify(ctx context.Context, competitionID, userID, reason string) (*contracts.Participant, error) {
	unlock := e.locks.lock(competitionID)
	defer unlock()

	c, err := e.registry.Get(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	p, err := e.roster.Disqualify(ctx, competitionID, userID, reason)
	if err != nil {
		return nil, err
	}
	if _, err := e.rebuildLocked(ctx, c); err != nil {
		return p, fmt.Errorf("participant disqualified but rebuild failed: %w", err)
	}
	return p, nil
}

// ReportValuation applies one valuation and re-ranks the competition as a single unit.
// Only ACTIVE competitions accept valuations. The new ranking becomes visible only
// after the participant is persisted; on any failure nothing is applied.
func (e *Engine) ReportValuation(ctx context.Context, v contracts.Valuation) (entry contracts.LeaderboardEntry, err error) {
	defer func() {
		if e.metrics != nil {
			e.metrics.Valuations.WithLabelValues(resultLabel(err)).Inc()
		}
	}()

	unlock := e.locks.lock(v.CompetitionID)
	defer unlock()

	c, err := e.registry.Get(ctx, v.CompetitionID)
	if err != nil {
		return entry, err
	}
	if c.Status != contracts.StatusActive {
		return entry, fmt.Errorf("%w: competition %s is %s", contracts.ErrCompetitionNotActive, c.ID, c.Status)
	}

	merged, err := e.roster.ApplyValuation(v)
	if err != nil {
		return entry, err
	}
	if e.valuations.IsStale(v) {
		return entry, fmt.Errorf("%w: report for %s at %s", contracts.ErrStaleValuation, v.UserID, v.ReportedAt.Format(time.RFC3339))
	}

	participants := e.roster.Participants(c.ID)
	for i, p := range participants {
		if p.UserID == merged.UserID {
			participants[i] = merged
		}
	}

	build, err := e.builder.Prepare(c, participants, e.now())
	if err != nil {
		return entry, err
	}
	if err := e.roster.Update(ctx, merged); err != nil {
		return entry, err
	}
	e.valuations.Accept(v)
	snap := e.publishLocked(ctx, c.ID, build)

	for _, en := range snap.Entries {
		if en.UserID == v.UserID {
			return en, nil
		}
	}
	// disqualified participants are not ranked
	return contracts.LeaderboardEntry{UserID: v.UserID, Score: merged.Score}, nil
}

// Rebuild forces a rebuild of one competition
func (e *Engine) Rebuild(ctx context.Context, id string) (*leaderboard.Snapshot, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	c, err := e.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.rebuildLocked(ctx, c)
}

// ApplyDueTransitions moves every competition whose dates say so.
// Failures are logged and skipped; the applied transitions are returned.
func (e *Engine) ApplyDueTransitions(ctx context.Context) ([]registry.Transition, error) {
	due, err := e.registry.DueTransitions(ctx, e.now())
	if err != nil {
		return nil, err
	}

	applied := make([]registry.Transition, 0, len(due))
	for _, t := range due {
		if _, err := e.TransitionStatus(ctx, t.CompetitionID, t.To); err != nil {
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"competition_id": t.CompetitionID,
				"from":           t.From,
				"to":             t.To,
			}).Warn("Scheduled transition failed")
			continue
		}
		e.logger.WithFields(map[string]interface{}{
			"competition_id": t.CompetitionID,
			"to":             t.To,
			"reason":         t.Reason,
		}).Info("Scheduled transition applied")
		applied = append(applied, t)
	}
	return applied, nil
}

// PruneValuations drops valuation watermarks that have not moved within the cache TTL
func (e *Engine) PruneValuations() int {
	return e.valuations.CleanStale()
}
