package contracts

import (
	"fmt"
	"time"
)

// Participant is a user's enrollment in one competition together with the
// latest performance snapshot reported by the portfolio service.
type Participant struct {
	UserID             string     `json:"user_id"`
	Username           string     `json:"username,omitempty"`
	CompetitionID      string     `json:"competition_id"`
	PortfolioID        string     `json:"portfolio_id"`
	JoinedAt           time.Time  `json:"joined_at"`
	StartingBalance    float64    `json:"starting_balance"` // copied from rules at join time
	CurrentBalance     float64    `json:"current_balance"`
	TotalTrades        int        `json:"total_trades"`
	WinningTrades      int        `json:"winning_trades"`
	LosingTrades       int        `json:"losing_trades"`
	BestTrade          float64    `json:"best_trade"`
	WorstTrade         float64    `json:"worst_trade"`
	Score              float64    `json:"score"`
	CurrentRank        int        `json:"current_rank"` // 0 = unranked
	LastTradeAt        *time.Time `json:"last_trade_at,omitempty"`
	IsDisqualified     bool       `json:"is_disqualified"`
	DisqualifiedReason string     `json:"disqualified_reason,omitempty"`
}

// Clone returns a copy safe to hand out of the roster
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	out := *p
	if p.LastTradeAt != nil {
		t := *p.LastTradeAt
		out.LastTradeAt = &t
	}
	return &out
}

// Valuation is the inbound performance report from the portfolio service
type Valuation struct {
	CompetitionID  string    `json:"competition_id"`
	UserID         string    `json:"user_id"`
	CurrentBalance float64   `json:"current_balance"`
	TotalTrades    int       `json:"total_trades"`
	WinningTrades  int       `json:"winning_trades"`
	LosingTrades   int       `json:"losing_trades"`
	BestTrade      float64   `json:"best_trade"`
	WorstTrade     float64   `json:"worst_trade"`
	ReportedAt     time.Time `json:"reported_at"`
	Source         string    `json:"source,omitempty"` // ValuationSourcePush or ValuationSourceSync
}

// Valuation sources, in increasing priority
const (
	ValuationSourceSync = "sync"
	ValuationSourcePush = "push"
)

// Validate rejects reports that cannot describe a real portfolio
func (v Valuation) Validate() error {
	switch {
	case v.CompetitionID == "" || v.UserID == "":
		return fmt.Errorf("%w: competition_id and user_id are required", ErrInvalidValuation)
	case v.CurrentBalance < 0:
		return fmt.Errorf("%w: current_balance must not be negative", ErrInvalidValuation)
	case v.TotalTrades < 0 || v.WinningTrades < 0 || v.LosingTrades < 0:
		return fmt.Errorf("%w: trade counters must not be negative", ErrInvalidValuation)
	case v.WinningTrades+v.LosingTrades > v.TotalTrades:
		return fmt.Errorf("%w: winning + losing trades exceed total trades", ErrInvalidValuation)
	}
	return nil
}
