package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeaderboardEntry is a read-only projection of a ranked participant.
// Entries are recomputed wholesale on every rebuild.
type LeaderboardEntry struct {
	Rank             int       `json:"rank"`
	PreviousRank     int       `json:"previous_rank,omitempty"` // 0 = not ranked before
	UserID           string    `json:"user_id"`
	Username         string    `json:"username,omitempty"`
	Score            float64   `json:"score"`
	ScoreChange24h   float64   `json:"score_change_24h"`
	TotalReturn      float64   `json:"total_return"`
	ReturnPercentage float64   `json:"return_percentage"`
	WinRate          float64   `json:"win_rate"`
	TotalTrades      int       `json:"total_trades"`
	JoinedAt         time.Time `json:"joined_at"`
	LastUpdateTime   time.Time `json:"last_update_time"`
}

// RankChange returns how many places the entry moved up (negative = down)
func (e LeaderboardEntry) RankChange() int {
	if e.PreviousRank == 0 {
		return 0
	}
	return e.PreviousRank - e.Rank
}

// PrizeType is the payout kind of a tier
type PrizeType string

const (
	PrizeCash PrizeType = "CASH"
)

// PrizeTier maps a final rank to a payout
type PrizeTier struct {
	Rank        int             `json:"rank"`
	PrizeAmount decimal.Decimal `json:"prize_amount"`
	PrizeType   PrizeType       `json:"prize_type"`
	Description string          `json:"description"`
}

// Payout is the amount owed to one winner after ties are resolved
type Payout struct {
	UserID     string          `json:"user_id"`
	Rank       int             `json:"rank"`
	Amount     decimal.Decimal `json:"amount"`
	SharedWith int             `json:"shared_with"` // number of tied winners splitting the tiers, 1 = no tie
}

// Results is materialized when a competition completes
type Results struct {
	CompetitionID string             `json:"competition_id"`
	Standings     []LeaderboardEntry `json:"standings"`
	Tiers         []PrizeTier        `json:"tiers"`
	Payouts       []Payout           `json:"payouts"`
	CompletedAt   time.Time          `json:"completed_at"`
}

// CompetitionStats summarizes a competition for the query API
type CompetitionStats struct {
	CompetitionID      string          `json:"competition_id"`
	Status             Status          `json:"status"`
	Participants       int             `json:"participants"`
	RankedParticipants int             `json:"ranked_participants"`
	AverageReturnPct   float64         `json:"average_return_pct"`
	MedianReturnPct    float64         `json:"median_return_pct"`
	TopScore           float64         `json:"top_score"`
	TotalTrades        int             `json:"total_trades"`
	AverageWinRate     float64         `json:"average_win_rate"`
	PrizePool          decimal.Decimal `json:"prize_pool"`
	TimeRemaining      time.Duration   `json:"time_remaining"`
	LastRebuildAt      *time.Time      `json:"last_rebuild_at,omitempty"`
}
