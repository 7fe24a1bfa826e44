// Package roster tracks competition membership and participant performance.
package roster

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/pkg/logger"
)

// Competitions is the part of the registry the roster depends on
type Competitions interface {
	Get(ctx context.Context, id string) (*contracts.Competition, error)
	SetParticipantCount(ctx context.Context, id string, count int) (*contracts.Competition, error)
}

// JoinRequest enrolls a user in a competition
type JoinRequest struct {
	CompetitionID string `json:"competition_id"`
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	PortfolioID   string `json:"portfolio_id"`
}

// Roster is the per-competition membership set.
// Callers serialize mutations per competition; the roster lock only guards its maps.
// ⭐ SSOT: 참가자 레코드는 Roster만 소유
type Roster struct {
	store        contracts.CompetitionStore
	competitions Competitions
	now          func() time.Time
	logger       *logger.Logger

	mu      sync.RWMutex
	members map[string]map[string]*contracts.Participant // competitionID -> userID
	byUser  map[string][]string                          // userID -> competitionIDs in join order
}

// New creates a roster
func New(store contracts.CompetitionStore, competitions Competitions, log *logger.Logger) *Roster {
	return &Roster{
		store:        store,
		competitions: competitions,
		now:          time.Now,
		logger:       log.Component("roster"),
		members:      make(map[string]map[string]*contracts.Participant),
		byUser:       make(map[string][]string),
	}
}

// SetClock overrides the time source
func (r *Roster) SetClock(now func() time.Time) {
	r.now = now
}

// Hydrate loads stored participants of the given competitions
func (r *Roster) Hydrate(ctx context.Context, competitionIDs []string) (int, error) {
	total := 0
	for _, id := range competitionIDs {
		list, err := r.store.ListParticipants(ctx, id)
		if err != nil {
			return total, fmt.Errorf("failed to load participants of %s: %w", id, err)
		}

		r.mu.Lock()
		for _, p := range list {
			r.put(p.Clone())
		}
		r.mu.Unlock()
		total += len(list)
	}
	return total, nil
}

// Join enrolls a user. Checks run in order: not found, registration closed,
// full, already joined.
func (r *Roster) Join(ctx context.Context, req JoinRequest) (*contracts.Participant, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", contracts.ErrInvalidRequest)
	}

	c, err := r.competitions.Get(ctx, req.CompetitionID)
	if err != nil {
		return nil, err
	}
	if !c.Status.AcceptsJoins() {
		return nil, fmt.Errorf("%w: competition %s is %s", contracts.ErrRegistrationClosed, c.ID, c.Status)
	}

	size := r.Size(c.ID)
	if size >= c.MaxParticipants {
		return nil, fmt.Errorf("%w: %d/%d participants", contracts.ErrCompetitionFull, size, c.MaxParticipants)
	}
	if _, err := r.Get(c.ID, req.UserID); err == nil {
		return nil, fmt.Errorf("%w: user %s in competition %s", contracts.ErrAlreadyJoined, req.UserID, c.ID)
	}

	portfolioID := req.PortfolioID
	if portfolioID == "" {
		portfolioID = req.UserID
	}

	p := &contracts.Participant{
		UserID:          req.UserID,
		Username:        req.Username,
		CompetitionID:   c.ID,
		PortfolioID:     portfolioID,
		JoinedAt:        r.now().UTC(),
		StartingBalance: c.Rules.StartingBalance,
		CurrentBalance:  c.Rules.StartingBalance,
		CurrentRank:     size + 1,
	}

	if err := r.store.SaveParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save participant: %w", err)
	}
	if _, err := r.competitions.SetParticipantCount(ctx, c.ID, size+1); err != nil {
		// keep store and roster consistent
		if delErr := r.store.DeleteParticipant(ctx, c.ID, p.UserID); delErr != nil {
			r.logger.WithError(delErr).Error("Failed to roll back participant")
		}
		return nil, err
	}

	r.mu.Lock()
	r.put(p)
	r.mu.Unlock()

	r.logger.WithFields(map[string]interface{}{
		"competition_id": c.ID,
		"user_id":        p.UserID,
		"participants":   size + 1,
	}).Info("Participant joined")

	return p.Clone(), nil
}

// Leave removes a participant. The caller rebuilds the leaderboard afterwards.
func (r *Roster) Leave(ctx context.Context, competitionID, userID string) error {
	if _, err := r.Get(competitionID, userID); err != nil {
		return err
	}

	if err := r.store.DeleteParticipant(ctx, competitionID, userID); err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}

	r.mu.Lock()
	r.remove(competitionID, userID)
	size := len(r.members[competitionID])
	r.mu.Unlock()

	if _, err := r.competitions.SetParticipantCount(ctx, competitionID, size); err != nil {
		return fmt.Errorf("failed to update participant count: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"competition_id": competitionID,
		"user_id":        userID,
		"participants":   size,
	}).Info("Participant left")
	return nil
}

// Get returns a copy of one participant
func (r *Roster) Get(competitionID, userID string) (*contracts.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.members[competitionID][userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s in competition %s", contracts.ErrParticipantNotFound, userID, competitionID)
	}
	return p.Clone(), nil
}

// Size returns the roster size of a competition
func (r *Roster) Size(competitionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[competitionID])
}

// Participants returns copies of a competition's participants in join order
func (r *Roster) Participants(competitionID string) []*contracts.Participant {
	r.mu.RLock()
	out := make([]*contracts.Participant, 0, len(r.members[competitionID]))
	for _, p := range r.members[competitionID] {
		out = append(out, p.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// ListByUser returns the user's participations in join order
func (r *Roster) ListByUser(userID string) []*contracts.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byUser[userID]
	out := make([]*contracts.Participant, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.members[id][userID]; ok {
			out = append(out, p.Clone())
		}
	}
	return out
}

// ApplyValuation returns the participant with the valuation applied. The roster is not changed.
func (r *Roster) ApplyValuation(v contracts.Valuation) (*contracts.Participant, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	p, err := r.Get(v.CompetitionID, v.UserID)
	if err != nil {
		return nil, err
	}

	if v.TotalTrades > p.TotalTrades {
		at := v.ReportedAt
		if at.IsZero() {
			at = r.now()
		}
		at = at.UTC()
		p.LastTradeAt = &at
	}
	p.CurrentBalance = v.CurrentBalance
	p.TotalTrades = v.TotalTrades
	p.WinningTrades = v.WinningTrades
	p.LosingTrades = v.LosingTrades
	p.BestTrade = v.BestTrade
	p.WorstTrade = v.WorstTrade
	return p, nil
}

// Update replaces a participant record and persists it
func (r *Roster) Update(ctx context.Context, p *contracts.Participant) error {
	if _, err := r.Get(p.CompetitionID, p.UserID); err != nil {
		return err
	}
	if err := r.store.SaveParticipant(ctx, p); err != nil {
		return fmt.Errorf("failed to save participant: %w", err)
	}

	r.mu.Lock()
	r.members[p.CompetitionID][p.UserID] = p.Clone()
	r.mu.Unlock()
	return nil
}

// Disqualify flags a participant; it stays on the roster but leaves the ranking
func (r *Roster) Disqualify(ctx context.Context, competitionID, userID, reason string) (*contracts.Participant, error) {
	p, err := r.Get(competitionID, userID)
	if err != nil {
		return nil, err
	}
	p.IsDisqualified = true
	p.DisqualifiedReason = reason
	p.CurrentRank = 0

	if err := r.Update(ctx, p); err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"competition_id": competitionID,
		"user_id":        userID,
		"reason":         reason,
	}).Warn("Participant disqualified")
	return p, nil
}

// ApplyRanking mirrors leaderboard ranks and scores onto participants.
// Participants missing from entries are left unranked. Only changed records are
// persisted, and a record changes in memory only after its save succeeded so
// the next call retries whatever failed.
func (r *Roster) ApplyRanking(ctx context.Context, competitionID string, entries []contracts.LeaderboardEntry) error {
	byUser := make(map[string]contracts.LeaderboardEntry, len(entries))
	for _, e := range entries {
		byUser[e.UserID] = e
	}

	var changed []*contracts.Participant
	r.mu.RLock()
	for userID, p := range r.members[competitionID] {
		rank, score := 0, p.Score
		if e, ok := byUser[userID]; ok {
			rank, score = e.Rank, e.Score
		}
		if p.CurrentRank == rank && p.Score == score {
			continue
		}
		next := p.Clone()
		next.CurrentRank = rank
		next.Score = score
		changed = append(changed, next)
	}
	r.mu.RUnlock()

	for _, p := range changed {
		if err := r.store.SaveParticipant(ctx, p); err != nil {
			return fmt.Errorf("failed to save ranking for %s: %w", p.UserID, err)
		}
		r.mu.Lock()
		if cur, ok := r.members[competitionID][p.UserID]; ok {
			cur.CurrentRank = p.CurrentRank
			cur.Score = p.Score
		}
		r.mu.Unlock()
	}
	return nil
}

// put indexes p; caller holds mu
func (r *Roster) put(p *contracts.Participant) {
	byUser, ok := r.members[p.CompetitionID]
	if !ok {
		byUser = make(map[string]*contracts.Participant)
		r.members[p.CompetitionID] = byUser
	}
	if _, exists := byUser[p.UserID]; !exists {
		r.byUser[p.UserID] = append(r.byUser[p.UserID], p.CompetitionID)
	}
	byUser[p.UserID] = p
}

// remove unindexes a participant; caller holds mu
func (r *Roster) remove(competitionID, userID string) {
	delete(r.members[competitionID], userID)

	ids := r.byUser[userID]
	for i, id := range ids {
		if id == competitionID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.byUser, userID)
	} else {
		r.byUser[userID] = ids
	}
}
