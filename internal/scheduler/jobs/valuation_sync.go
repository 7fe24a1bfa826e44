package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/registry"
	"github.com/wonny/arena/pkg/logger"
)

// Fetcher fetches JSON documents. *httputil.Client satisfies it.
type Fetcher interface {
	GetJSON(ctx context.Context, url string, dest interface{}) error
}

// ValuationSink is the part of the engine the sync job feeds
type ValuationSink interface {
	ListCompetitions(ctx context.Context, filter registry.ListFilter) ([]*contracts.Competition, error)
	Participants(ctx context.Context, competitionID string) ([]*contracts.Participant, error)
	ReportValuation(ctx context.Context, v contracts.Valuation) (contracts.LeaderboardEntry, error)
}

// PortfolioPerformance is the portfolio service's view of one portfolio
type PortfolioPerformance struct {
	CurrentBalance float64   `json:"current_balance"`
	TotalTrades    int       `json:"total_trades"`
	WinningTrades  int       `json:"winning_trades"`
	LosingTrades   int       `json:"losing_trades"`
	BestTrade      float64   `json:"best_trade"`
	WorstTrade     float64   `json:"worst_trade"`
	AsOf           time.Time `json:"as_of"`
}

// SyncReport counts the outcome of one sync pass
type SyncReport struct {
	Competitions int
	Applied      int
	Skipped      int
	Failed       int
}

// ValuationSyncJob pulls participant performance from the portfolio service
// for every ACTIVE competition.
// ⭐ SSOT: 포트폴리오 서비스 pull 동기화는 이 Job에서만
type ValuationSyncJob struct {
	engine   ValuationSink
	fetcher  Fetcher
	baseURL  string
	schedule string
	limiter  *rate.Limiter
	logger   *logger.Logger
}

// NewValuationSyncJob creates a sync job. requestsPerSec <= 0 disables pacing.
func NewValuationSyncJob(e ValuationSink, fetcher Fetcher, baseURL, schedule string, requestsPerSec float64, log *logger.Logger) *ValuationSyncJob {
	limit := rate.Inf
	if requestsPerSec > 0 {
		limit = rate.Limit(requestsPerSec)
	}
	return &ValuationSyncJob{
		engine:   e,
		fetcher:  fetcher,
		baseURL:  strings.TrimRight(baseURL, "/"),
		schedule: schedule,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   log.Component("valuation_sync"),
	}
}

// Name returns the job name
func (j *ValuationSyncJob) Name() string {
	return "valuation_sync"
}

// Schedule returns the cron schedule
func (j *ValuationSyncJob) Schedule() string {
	return j.schedule
}

// Run syncs every participant of every ACTIVE competition.
// Individual failures are logged; the run fails only when nothing could be fetched.
func (j *ValuationSyncJob) Run(ctx context.Context) error {
	report, err := j.Sync(ctx)
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"competitions": report.Competitions,
		"applied":      report.Applied,
		"skipped":      report.Skipped,
		"failed":       report.Failed,
	}).Debug("Valuation sync finished")

	if report.Failed > 0 && report.Applied == 0 && report.Skipped == 0 {
		return fmt.Errorf("valuation sync: all %d fetches failed", report.Failed)
	}
	return nil
}

// Sync performs one pass and reports what happened
func (j *ValuationSyncJob) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	active, err := j.engine.ListCompetitions(ctx, registry.ListFilter{Status: contracts.StatusActive})
	if err != nil {
		return report, fmt.Errorf("list active competitions: %w", err)
	}

	for _, c := range active {
		participants, err := j.engine.Participants(ctx, c.ID)
		if err != nil {
			j.logger.WithError(err).WithField("competition_id", c.ID).Warn("Failed to list participants")
			continue
		}
		report.Competitions++

		for _, p := range participants {
			if p.IsDisqualified || p.PortfolioID == "" {
				report.Skipped++
				continue
			}
			if err := j.limiter.Wait(ctx); err != nil {
				return report, err
			}

			switch err := j.syncOne(ctx, p); {
			case err == nil:
				report.Applied++
			case errors.Is(err, contracts.ErrStaleValuation), errors.Is(err, contracts.ErrCompetitionNotActive):
				// push 보고가 더 최신이거나 그 사이 대회가 종료됨
				report.Skipped++
			default:
				report.Failed++
				j.logger.WithError(err).WithFields(map[string]interface{}{
					"competition_id": p.CompetitionID,
					"user_id":        p.UserID,
				}).Warn("Valuation sync failed")
			}
		}
	}
	return report, nil
}

func (j *ValuationSyncJob) syncOne(ctx context.Context, p *contracts.Participant) error {
	var perf PortfolioPerformance
	endpoint := j.baseURL + "/portfolios/" + url.PathEscape(p.PortfolioID) + "/performance"
	if err := j.fetcher.GetJSON(ctx, endpoint, &perf); err != nil {
		return fmt.Errorf("fetch %s: %w", endpoint, err)
	}

	_, err := j.engine.ReportValuation(ctx, contracts.Valuation{
		CompetitionID:  p.CompetitionID,
		UserID:         p.UserID,
		CurrentBalance: perf.CurrentBalance,
		TotalTrades:    perf.TotalTrades,
		WinningTrades:  perf.WinningTrades,
		LosingTrades:   perf.LosingTrades,
		BestTrade:      perf.BestTrade,
		WorstTrade:     perf.WorstTrade,
		ReportedAt:     perf.AsOf,
		Source:         contracts.ValuationSourceSync,
	})
	return err
}
