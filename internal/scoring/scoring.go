// Package scoring computes participant scores. Every function here is pure.
package scoring

import (
	"fmt"

	"github.com/wonny/arena/internal/contracts"
)

// AssumedVolatility is the fixed denominator of the Sharpe-like metric.
// No volatility series is available, so this is not a rigorous Sharpe ratio.
const AssumedVolatility = 0.15

// TotalReturn = currentBalance - startingBalance
func TotalReturn(p *contracts.Participant) float64 {
	return p.CurrentBalance - p.StartingBalance
}

// ReturnPercentage returns the percent return, or 0 when the starting balance is 0
func ReturnPercentage(p *contracts.Participant) float64 {
	if p.StartingBalance == 0 {
		return 0
	}
	return TotalReturn(p) / p.StartingBalance * 100
}

// WinRate returns winning trades as a percent of all trades (0 when no trades)
func WinRate(p *contracts.Participant) float64 {
	if p.TotalTrades <= 0 {
		return 0
	}
	return float64(p.WinningTrades) / float64(p.TotalTrades) * 100
}

// ComputeScore scores a participant under the given metric.
// Unrecognized metrics fall back to TOTAL_RETURN.
// ⭐ SSOT: 점수 계산 공식은 여기서만
func ComputeScore(metric contracts.ScoringMetric, p *contracts.Participant) (float64, error) {
	if !metric.Known() {
		metric = contracts.MetricTotalReturn
	}
	return ComputeScoreStrict(metric, p)
}

// ComputeScoreStrict is ComputeScore without the fallback: an unrecognized
// metric fails with ErrInvalidScoringMetric.
func ComputeScoreStrict(metric contracts.ScoringMetric, p *contracts.Participant) (float64, error) {
	if p == nil {
		return 0, fmt.Errorf("%w: nil participant", contracts.ErrInvalidRulesConfiguration)
	}

	switch metric {
	case contracts.MetricTotalReturn:
		return TotalReturn(p), nil

	case contracts.MetricPercentageReturn:
		if p.StartingBalance == 0 {
			return 0, fmt.Errorf("%w: starting balance is 0 for user %s", contracts.ErrInvalidRulesConfiguration, p.UserID)
		}
		return ReturnPercentage(p), nil

	case contracts.MetricSharpeRatio:
		if p.StartingBalance == 0 {
			return 0, fmt.Errorf("%w: starting balance is 0 for user %s", contracts.ErrInvalidRulesConfiguration, p.UserID)
		}
		return (TotalReturn(p) / p.StartingBalance) / AssumedVolatility, nil

	case contracts.MetricWinRate:
		return WinRate(p), nil
	}

	return 0, fmt.Errorf("%w: %q", contracts.ErrInvalidScoringMetric, metric)
}
