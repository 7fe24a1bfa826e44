// Package registry owns competitions and their lifecycle.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/pkg/logger"
)

// DefaultRegistrationLeadTime is how long before the start registration opens
const DefaultRegistrationLeadTime = 7 * 24 * time.Hour

// CreateRequest describes a competition to create
type CreateRequest struct {
	Name            string                    `json:"name"`
	Description     string                    `json:"description"`
	Type            contracts.CompetitionType `json:"type"`
	StartDate       time.Time                 `json:"start_date"`
	EndDate         time.Time                 `json:"end_date"`
	EntryFee        decimal.Decimal           `json:"entry_fee"`
	PrizePool       decimal.Decimal           `json:"prize_pool"`
	MinParticipants int                       `json:"min_participants"`
	MaxParticipants int                       `json:"max_participants"`
	ScoringMetric   contracts.ScoringMetric   `json:"scoring_metric"`
	Rules           contracts.Rules           `json:"rules"`
	CreatedBy       string                    `json:"created_by"`
}

// ListFilter narrows List results. Zero value lists everything.
type ListFilter struct {
	Status contracts.Status
}

// Transition is a status change the calendar says is due
type Transition struct {
	CompetitionID string
	From          contracts.Status
	To            contracts.Status
	Reason        string
}

// Registry validates and owns competitions.
// ⭐ SSOT: 대회 메타데이터/상태는 Registry를 통해서만 변경
type Registry struct {
	store    contracts.CompetitionStore
	leadTime time.Duration
	now      func() time.Time
	logger   *logger.Logger

	mu           sync.RWMutex
	competitions map[string]*contracts.Competition
}

// Option configures a Registry
type Option func(*Registry)

// WithLeadTime sets how long before StartDate registration opens
func WithLeadTime(d time.Duration) Option {
	return func(r *Registry) { r.leadTime = d }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates a registry backed by store
func New(store contracts.CompetitionStore, log *logger.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:        store,
		leadTime:     DefaultRegistrationLeadTime,
		now:          time.Now,
		logger:       log.Component("registry"),
		competitions: make(map[string]*contracts.Competition),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hydrate loads every stored competition into memory
func (r *Registry) Hydrate(ctx context.Context) (int, error) {
	list, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load competitions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range list {
		r.competitions[c.ID] = c.Clone()
	}
	return len(list), nil
}

// Create validates req and registers a new competition
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*contracts.Competition, error) {
	if req.Type == "" {
		req.Type = contracts.TypeCustom
	}
	if req.ScoringMetric == "" {
		req.ScoringMetric = contracts.MetricTotalReturn
	}
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	status := contracts.StatusUpcoming
	if !now.Before(req.StartDate.Add(-r.leadTime)) {
		status = contracts.StatusRegistrationOpen
	}

	c := &contracts.Competition{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		Type:            req.Type,
		Status:          status,
		StartDate:       req.StartDate.UTC(),
		EndDate:         req.EndDate.UTC(),
		EntryFee:        req.EntryFee,
		PrizePool:       req.PrizePool,
		MinParticipants: req.MinParticipants,
		MaxParticipants: req.MaxParticipants,
		ScoringMetric:   req.ScoringMetric,
		Rules:           req.Rules.Clone(),
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := r.store.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save competition: %w", err)
	}

	r.mu.Lock()
	r.competitions[c.ID] = c
	r.mu.Unlock()

	r.logger.WithFields(map[string]interface{}{
		"competition_id": c.ID,
		"name":           c.Name,
		"status":         c.Status,
		"metric":         c.ScoringMetric,
	}).Info("Competition created")

	return c.Clone(), nil
}

// Get returns a copy of the competition
func (r *Registry) Get(ctx context.Context, id string) (*contracts.Competition, error) {
	r.mu.RLock()
	c, ok := r.competitions[id]
	r.mu.RUnlock()
	if ok {
		return c.Clone(), nil
	}

	loaded, err := r.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, contracts.ErrCompetitionNotFound) {
			return nil, fmt.Errorf("%w: %s", contracts.ErrCompetitionNotFound, id)
		}
		return nil, fmt.Errorf("failed to load competition %s: %w", id, err)
	}

	r.mu.Lock()
	if existing, ok := r.competitions[id]; ok {
		loaded = existing
	} else {
		r.competitions[id] = loaded
	}
	r.mu.Unlock()

	return loaded.Clone(), nil
}

// List returns competitions ordered by start date
func (r *Registry) List(ctx context.Context, filter ListFilter) ([]*contracts.Competition, error) {
	r.mu.RLock()
	out := make([]*contracts.Competition, 0, len(r.competitions))
	for _, c := range r.competitions {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// TransitionStatus moves a competition to next when the lifecycle allows it
func (r *Registry) TransitionStatus(ctx context.Context, id string, next contracts.Status) (*contracts.Competition, error) {
	return r.mutate(ctx, id, func(c *contracts.Competition) error {
		if !c.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", contracts.ErrInvalidStatusTransition, c.Status, next)
		}
		r.logger.WithFields(map[string]interface{}{
			"competition_id": id,
			"from":           c.Status,
			"to":             next,
		}).Info("Competition status changed")
		c.Status = next
		return nil
	})
}

// UpdateRules replaces the rules while the competition is still UPCOMING
func (r *Registry) UpdateRules(ctx context.Context, id string, rules contracts.Rules) (*contracts.Competition, error) {
	if err := validateRules(rules); err != nil {
		return nil, err
	}
	return r.mutate(ctx, id, func(c *contracts.Competition) error {
		if c.Status != contracts.StatusUpcoming {
			return fmt.Errorf("%w: competition %s is %s", contracts.ErrRulesLocked, id, c.Status)
		}
		c.Rules = rules.Clone()
		return nil
	})
}

// SetParticipantCount records the roster size on the competition
func (r *Registry) SetParticipantCount(ctx context.Context, id string, count int) (*contracts.Competition, error) {
	return r.mutate(ctx, id, func(c *contracts.Competition) error {
		if count < 0 || count > c.MaxParticipants {
			return fmt.Errorf("%w: participant count %d outside 0..%d", contracts.ErrCompetitionFull, count, c.MaxParticipants)
		}
		c.CurrentParticipants = count
		return nil
	})
}

// DueTransitions lists the status changes the calendar calls for at now.
// A competition that reaches its start below MinParticipants is cancelled.
func (r *Registry) DueTransitions(ctx context.Context, now time.Time) ([]Transition, error) {
	list, err := r.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}

	var due []Transition
	for _, c := range list {
		if c.Status.IsTerminal() {
			continue
		}
		started := !now.Before(c.StartDate)
		ended := !now.Before(c.EndDate)

		switch {
		case c.Status == contracts.StatusActive && ended:
			due = append(due, Transition{c.ID, c.Status, contracts.StatusCompleted, "end date reached"})
		case c.Status != contracts.StatusActive && started && c.CurrentParticipants < c.MinParticipants:
			due = append(due, Transition{c.ID, c.Status, contracts.StatusCancelled,
				fmt.Sprintf("only %d of %d required participants", c.CurrentParticipants, c.MinParticipants)})
		case c.Status != contracts.StatusActive && started:
			due = append(due, Transition{c.ID, c.Status, contracts.StatusActive, "start date reached"})
		case c.Status == contracts.StatusUpcoming && !now.Before(c.StartDate.Add(-r.leadTime)):
			due = append(due, Transition{c.ID, c.Status, contracts.StatusRegistrationOpen, "registration window opened"})
		}
	}
	return due, nil
}

// mutate applies fn to a working copy, persists it, then publishes it.
// The cached competition is untouched when fn or the store fails.
func (r *Registry) mutate(ctx context.Context, id string, fn func(c *contracts.Competition) error) (*contracts.Competition, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(current); err != nil {
		return nil, err
	}
	current.UpdatedAt = r.now().UTC()

	if err := r.store.Save(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to save competition %s: %w", id, err)
	}

	r.mu.Lock()
	r.competitions[id] = current
	r.mu.Unlock()

	return current.Clone(), nil
}

func validateCreate(req CreateRequest) error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", contracts.ErrInvalidCompetitionSpec, fmt.Sprintf(format, args...))
	}

	switch {
	case strings.TrimSpace(req.Name) == "":
		return invalid("name is required")
	case req.StartDate.IsZero() || req.EndDate.IsZero():
		return invalid("start_date and end_date are required")
	case !req.StartDate.Before(req.EndDate):
		return invalid("start_date must be before end_date")
	case req.MinParticipants < 0:
		return invalid("min_participants must not be negative")
	case req.MaxParticipants <= 0:
		return invalid("max_participants must be positive")
	case req.MinParticipants > req.MaxParticipants:
		return invalid("min_participants %d exceeds max_participants %d", req.MinParticipants, req.MaxParticipants)
	case req.PrizePool.IsNegative():
		return invalid("prize_pool must not be negative")
	case req.EntryFee.IsNegative():
		return invalid("entry_fee must not be negative")
	case !req.Type.Valid():
		return invalid("unknown type %q", req.Type)
	case !req.ScoringMetric.Known():
		return invalid("unknown scoring metric %q", req.ScoringMetric)
	}

	if err := validateRules(req.Rules); err != nil {
		return fmt.Errorf("%w: %w", contracts.ErrInvalidCompetitionSpec, err)
	}
	return nil
}

func validateRules(rules contracts.Rules) error {
	switch {
	case rules.StartingBalance <= 0:
		return fmt.Errorf("%w: starting_balance must be positive", contracts.ErrInvalidRulesConfiguration)
	case rules.MaxTradesPerDay != nil && *rules.MaxTradesPerDay <= 0:
		return fmt.Errorf("%w: max_trades_per_day must be positive", contracts.ErrInvalidRulesConfiguration)
	case rules.MaxPositionSizePct != nil && (*rules.MaxPositionSizePct <= 0 || *rules.MaxPositionSizePct > 100):
		return fmt.Errorf("%w: max_position_size_pct must be in (0, 100]", contracts.ErrInvalidRulesConfiguration)
	}
	return nil
}
