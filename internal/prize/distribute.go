package prize

import (
	"github.com/shopspring/decimal"

	"github.com/wonny/arena/internal/contracts"
)

// Distribute turns final standings into payouts.
//
// Entries with equal scores that reach a payable position share the sum of
// every tier they occupy, split evenly and rounded down to cents. The rounding
// remainder goes to the first entry of the tie so payouts always sum to the
// tiers they cover. Standings must be sorted by rank.
func Distribute(pool decimal.Decimal, standings []contracts.LeaderboardEntry) []contracts.Payout {
	tiers := Allocate(pool, len(standings))
	payouts := make([]contracts.Payout, 0, len(tiers))

	for start := 0; start < len(standings) && start < len(tiers); {
		end := start + 1
		for end < len(standings) && standings[end].Score == standings[start].Score {
			end++
		}
		group := standings[start:end]

		sum := decimal.Zero
		for pos := start; pos < end && pos < len(tiers); pos++ {
			sum = sum.Add(tiers[pos].PrizeAmount)
		}

		n := decimal.NewFromInt(int64(len(group)))
		share := sum.Div(n).RoundFloor(cents)
		remainder := sum.Sub(share.Mul(n))

		for i, entry := range group {
			amount := share
			if i == 0 {
				amount = amount.Add(remainder)
			}
			payouts = append(payouts, contracts.Payout{
				UserID:     entry.UserID,
				Rank:       start + 1,
				Amount:     amount,
				SharedWith: len(group),
			})
		}
		start = end
	}

	return payouts
}

// Total sums payout amounts
func Total(payouts []contracts.Payout) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payouts {
		total = total.Add(p.Amount)
	}
	return total
}
