// Package memory is an in-process CompetitionStore used by tests and the memory store mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wonny/arena/internal/contracts"
)

// Store keeps competitions, participants and results in maps
type Store struct {
	mu           sync.RWMutex
	competitions map[string]*contracts.Competition
	participants map[string]map[string]*contracts.Participant // competitionID -> userID
	results      map[string]*contracts.Results
}

var _ contracts.CompetitionStore = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		competitions: make(map[string]*contracts.Competition),
		participants: make(map[string]map[string]*contracts.Participant),
		results:      make(map[string]*contracts.Results),
	}
}

func (s *Store) Save(ctx context.Context, c *contracts.Competition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.competitions[c.ID] = c.Clone()
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*contracts.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.competitions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrCompetitionNotFound, id)
	}
	return c.Clone(), nil
}

func (s *Store) List(ctx context.Context) ([]*contracts.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*contracts.Competition, 0, len(s.competitions))
	for _, c := range s.competitions {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveParticipant(ctx context.Context, p *contracts.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.participants[p.CompetitionID]
	if !ok {
		byUser = make(map[string]*contracts.Participant)
		s.participants[p.CompetitionID] = byUser
	}
	byUser[p.UserID] = p.Clone()
	return nil
}

func (s *Store) DeleteParticipant(ctx context.Context, competitionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[competitionID][userID]; !ok {
		return fmt.Errorf("%w: %s in %s", contracts.ErrParticipantNotFound, userID, competitionID)
	}
	delete(s.participants[competitionID], userID)
	return nil
}

// ListParticipants returns participants in join order
func (s *Store) ListParticipants(ctx context.Context, competitionID string) ([]*contracts.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser := s.participants[competitionID]
	out := make([]*contracts.Participant, 0, len(byUser))
	for _, p := range byUser {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *Store) SaveResults(ctx context.Context, r *contracts.Results) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.Standings = append([]contracts.LeaderboardEntry(nil), r.Standings...)
	cp.Tiers = append([]contracts.PrizeTier(nil), r.Tiers...)
	cp.Payouts = append([]contracts.Payout(nil), r.Payouts...)
	s.results[r.CompetitionID] = &cp
	return nil
}

func (s *Store) LoadResults(ctx context.Context, competitionID string) (*contracts.Results, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[competitionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrResultsNotAvailable, competitionID)
	}
	cp := *r
	return &cp, nil
}
