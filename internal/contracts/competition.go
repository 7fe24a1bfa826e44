package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a competition
// ⭐ SSOT: 대회 상태 전이 규칙은 여기서만 정의
type Status string

const (
	StatusUpcoming         Status = "UPCOMING"
	StatusRegistrationOpen Status = "REGISTRATION_OPEN"
	StatusActive           Status = "ACTIVE"
	StatusCompleted        Status = "COMPLETED"
	StatusCancelled        Status = "CANCELLED"
)

// AllStatuses returns every status in lifecycle order
func AllStatuses() []Status {
	return []Status{
		StatusUpcoming,
		StatusRegistrationOpen,
		StatusActive,
		StatusCompleted,
		StatusCancelled,
	}
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusRegistrationOpen, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// AcceptsJoins reports whether participants may join in this status
func (s Status) AcceptsJoins() bool {
	return s == StatusRegistrationOpen || s == StatusActive
}

// CanTransitionTo reports whether next is reachable from s.
// Transitions only move forward: UPCOMING → REGISTRATION_OPEN → ACTIVE may skip steps,
// COMPLETED requires ACTIVE, CANCELLED is reachable from any non-terminal status.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.Valid() || !next.Valid() || s.IsTerminal() || s == next {
		return false
	}

	switch next {
	case StatusCancelled:
		return true
	case StatusCompleted:
		return s == StatusActive
	case StatusRegistrationOpen:
		return s == StatusUpcoming
	case StatusActive:
		return s == StatusUpcoming || s == StatusRegistrationOpen
	}
	return false
}

// ScoringMetric selects the score formula of a competition
type ScoringMetric string

const (
	MetricTotalReturn      ScoringMetric = "TOTAL_RETURN"
	MetricPercentageReturn ScoringMetric = "PERCENTAGE_RETURN"
	MetricSharpeRatio      ScoringMetric = "SHARPE_RATIO"
	MetricWinRate          ScoringMetric = "WIN_RATE"
)

// Known reports whether the metric has a dedicated formula
func (m ScoringMetric) Known() bool {
	switch m {
	case MetricTotalReturn, MetricPercentageReturn, MetricSharpeRatio, MetricWinRate:
		return true
	}
	return false
}

// CompetitionType is the cadence of a competition
type CompetitionType string

const (
	TypeDaily   CompetitionType = "DAILY"
	TypeWeekly  CompetitionType = "WEEKLY"
	TypeMonthly CompetitionType = "MONTHLY"
	TypeCustom  CompetitionType = "CUSTOM"
)

// Valid reports whether t is a known type
func (t CompetitionType) Valid() bool {
	switch t {
	case TypeDaily, TypeWeekly, TypeMonthly, TypeCustom:
		return true
	}
	return false
}

// Rules are the trading constraints of a competition.
// Rules are frozen once the competition leaves UPCOMING.
type Rules struct {
	StartingBalance    float64  `json:"starting_balance"`
	MaxTradesPerDay    *int     `json:"max_trades_per_day,omitempty"`
	MaxPositionSizePct *float64 `json:"max_position_size_pct,omitempty"` // 0 < x ≤ 100
	AllowedSymbols     []string `json:"allowed_symbols,omitempty"`
	AllowShortSelling  bool     `json:"allow_short_selling"`
	AllowMargin        bool     `json:"allow_margin"`
}

// Competition is a time-boxed trading contest
type Competition struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Description         string          `json:"description,omitempty"`
	Type                CompetitionType `json:"type"`
	Status              Status          `json:"status"`
	StartDate           time.Time       `json:"start_date"`
	EndDate             time.Time       `json:"end_date"`
	EntryFee            decimal.Decimal `json:"entry_fee"`
	PrizePool           decimal.Decimal `json:"prize_pool"`
	MinParticipants     int             `json:"min_participants"`
	MaxParticipants     int             `json:"max_participants"`
	CurrentParticipants int             `json:"current_participants"`
	ScoringMetric       ScoringMetric   `json:"scoring_metric"`
	Rules               Rules           `json:"rules"`
	CreatedBy           string          `json:"created_by,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// IsFull reports whether the roster is at capacity
func (c *Competition) IsFull() bool {
	return c.CurrentParticipants >= c.MaxParticipants
}

// Clone returns a deep copy so callers never alias registry state
func (c *Competition) Clone() *Competition {
	if c == nil {
		return nil
	}
	out := *c
	out.Rules = c.Rules.Clone()
	return &out
}

// Clone returns a deep copy of the rules
func (r Rules) Clone() Rules {
	out := r
	if r.MaxTradesPerDay != nil {
		v := *r.MaxTradesPerDay
		out.MaxTradesPerDay = &v
	}
	if r.MaxPositionSizePct != nil {
		v := *r.MaxPositionSizePct
		out.MaxPositionSizePct = &v
	}
	if r.AllowedSymbols != nil {
		out.AllowedSymbols = append([]string(nil), r.AllowedSymbols...)
	}
	return out
}
