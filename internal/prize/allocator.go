// Package prize splits a competition's prize pool into rank tiers and payouts.
package prize

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/arena/internal/contracts"
)

// cents is the payout precision
const cents = 2

var hundred = decimal.NewFromInt(100)

// Split percentages by participant count
// ⭐ SSOT: 상금 분배 비율은 여기서만
var (
	splitLarge  = []int64{50, 30, 20} // 10+ participants
	splitMedium = []int64{70, 30}     // 5-9 participants
	splitSmall  = []int64{100}        // fewer than 5: winner takes all
)

// Split returns the percentage of the pool paid to each rank
func Split(participantCount int) []int64 {
	switch {
	case participantCount <= 0:
		return nil
	case participantCount >= 10:
		return splitLarge
	case participantCount >= 5:
		return splitMedium
	default:
		return splitSmall
	}
}

// Allocate derives the prize tiers for a pool and participant count.
// Amounts are rounded to cents; the last tier absorbs the rounding so tiers sum to the pool.
func Allocate(pool decimal.Decimal, participantCount int) []contracts.PrizeTier {
	split := Split(participantCount)
	if len(split) == 0 || !pool.IsPositive() {
		return []contracts.PrizeTier{}
	}

	tiers := make([]contracts.PrizeTier, 0, len(split))
	allocated := decimal.Zero
	for i, pct := range split {
		amount := pool.Mul(decimal.NewFromInt(pct)).Div(hundred).Round(cents)
		if i == len(split)-1 {
			amount = pool.Sub(allocated)
		}
		allocated = allocated.Add(amount)

		tiers = append(tiers, contracts.PrizeTier{
			Rank:        i + 1,
			PrizeAmount: amount,
			PrizeType:   contracts.PrizeCash,
			Description: describe(i+1, len(split)),
		})
	}
	return tiers
}

func describe(rank, tierCount int) string {
	if tierCount == 1 {
		return "Winner takes all"
	}
	switch rank {
	case 1:
		return "1st place"
	case 2:
		return "2nd place"
	case 3:
		return "3rd place"
	default:
		return ordinal(rank) + " place"
	}
}

// ordinal formats n as 4th, 11th, 21st, 102nd and so on
func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
