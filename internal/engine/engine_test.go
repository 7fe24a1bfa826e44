package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/realtime/feed"
	"github.com/wonny/arena/internal/registry"
	"github.com/wonny/arena/internal/roster"
	"github.com/wonny/arena/internal/store/memory"
	"github.com/wonny/arena/pkg/logger"
	"github.com/wonny/arena/pkg/metrics"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errStoreDown = errors.New("db down")

// failingStore is a memory store whose participant and result writes can be switched off
type failingStore struct {
	*memory.Store

	mu               sync.Mutex
	failParticipants bool
	failResults      bool
}

func (s *failingStore) fail(participants, results bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failParticipants, s.failResults = participants, results
}

func (s *failingStore) SaveParticipant(ctx context.Context, p *contracts.Participant) error {
	s.mu.Lock()
	fail := s.failParticipants
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.Store.SaveParticipant(ctx, p)
}

func (s *failingStore) SaveResults(ctx context.Context, r *contracts.Results) error {
	s.mu.Lock()
	fail := s.failResults
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.Store.SaveResults(ctx, r)
}

type harness struct {
	engine  *Engine
	store   *failingStore
	clock   *clock
	metrics *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := &clock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	store := &failingStore{Store: memory.New()}
	m := metrics.New()
	e := New(store, Config{FeedTopN: 5, Clock: clk.Now}, logger.NewNop(), m)
	t.Cleanup(e.Close)
	return &harness{engine: e, store: store, clock: clk, metrics: m}
}

func (h *harness) competition(t *testing.T, maxParticipants int, metric contracts.ScoringMetric) *contracts.Competition {
	t.Helper()
	start := h.clock.Now().Add(time.Hour)
	c, err := h.engine.CreateCompetition(context.Background(), registry.CreateRequest{
		Name:            "Summer Cup",
		StartDate:       start,
		EndDate:         start.Add(7 * 24 * time.Hour),
		PrizePool:       decimal.NewFromInt(10000),
		MaxParticipants: maxParticipants,
		ScoringMetric:   metric,
		Rules:           contracts.Rules{StartingBalance: 100000},
	})
	require.NoError(t, err)
	return c
}

func (h *harness) join(t *testing.T, id string, users ...string) {
	t.Helper()
	for _, u := range users {
		_, err := h.engine.Join(context.Background(), roster.JoinRequest{CompetitionID: id, UserID: u, Username: "user-" + u})
		require.NoError(t, err)
		h.clock.Advance(time.Second)
	}
}

func (h *harness) activate(t *testing.T, id string) {
	t.Helper()
	_, err := h.engine.TransitionStatus(context.Background(), id, contracts.StatusActive)
	require.NoError(t, err)
}

func (h *harness) report(t *testing.T, id, user string, balance float64) contracts.LeaderboardEntry {
	t.Helper()
	entry, err := h.engine.ReportValuation(context.Background(), contracts.Valuation{
		CompetitionID: id, UserID: user, CurrentBalance: balance,
	})
	require.NoError(t, err)
	return entry
}

func TestScoringExampleEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 10, contracts.MetricTotalReturn)
	h.join(t, c.ID, "A", "B")
	h.activate(t, c.ID)

	h.report(t, c.ID, "A", 115000)
	entry := h.report(t, c.ID, "B", 120000)
	assert.Equal(t, 1, entry.Rank)

	page, err := h.engine.GetLeaderboard(ctx, c.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "B", page.Entries[0].UserID)
	assert.Equal(t, 20000.0, page.Entries[0].Score)
	assert.Equal(t, "A", page.Entries[1].UserID)
	assert.Equal(t, 15000.0, page.Entries[1].Score)

	rank, err := h.engine.GetUserRank(ctx, c.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, rank.Rank)

	// ranks are mirrored onto the roster and persisted
	stored, err := h.store.ListParticipants(ctx, c.ID)
	require.NoError(t, err)
	for _, p := range stored {
		if p.UserID == "B" {
			assert.Equal(t, 1, p.CurrentRank)
			assert.Equal(t, 120000.0, p.CurrentBalance)
		}
	}
}

func TestReportValuation_RequiresActive(t *testing.T) {
	h := newHarness(t)
	c := h.competition(t, 10, contracts.MetricTotalReturn)
	h.join(t, c.ID, "A")

	_, err := h.engine.ReportValuation(context.Background(), contracts.Valuation{CompetitionID: c.ID, UserID: "A", CurrentBalance: 1})
	assert.ErrorIs(t, err, contracts.ErrCompetitionNotActive)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Valuations.WithLabelValues("competition_not_active")))

	_, err = h.engine.ReportValuation(context.Background(), contracts.Valuation{CompetitionID: "nope", UserID: "A"})
	assert.ErrorIs(t, err, contracts.ErrCompetitionNotFound)
}

func TestReportValuation_StaleRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 10, contracts.MetricTotalReturn)
	h.join(t, c.ID, "A")
	h.activate(t, c.ID)

	at := h.clock.Now()
	_, err := h.engine.ReportValuation(ctx, contracts.Valuation{CompetitionID: c.ID, UserID: "A", CurrentBalance: 110000, ReportedAt: at})
	require.NoError(t, err)

	_, err = h.engine.ReportValuation(ctx, contracts.Valuation{CompetitionID: c.ID, UserID: "A", CurrentBalance: 90000, ReportedAt: at.Add(-time.Minute)})
	assert.ErrorIs(t, err, contracts.ErrStaleValuation)

	rank, err := h.engine.GetUserRank(ctx, c.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, 10000.0, rank.Score)
}

func TestReportValuation_StoreFailureAppliesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 10, contracts.MetricTotalReturn)
	h.join(t, c.ID, "A", "B")
	h.activate(t, c.ID)
	h.report(t, c.ID, "A", 110000)

	before, err := h.engine.GetLeaderboard(ctx, c.ID, 0, 0)
	require.NoError(t, err)

	h.store.fail(true, false)
	_, err = h.engine.ReportValuation(ctx, contracts.Valuation{CompetitionID: c.ID, UserID: "B", CurrentBalance: 150000})
	require.ErrorIs(t, err, errStoreDown)

	after, err := h.engine.GetLeaderboard(ctx, c.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	require.Len(t, after.Entries, 2)
	assert.Equal(t, "A", after.Entries[0].UserID)
	assert.Equal(t, "B", after.Entries[1].UserID)
	assert.Zero(t, after.Entries[1].Score)

	participants, err := h.engine.Participants(ctx, c.ID)
	require.NoError(t, err)
	for _, p := range participants {
		if p.UserID == "B" {
			assert.Equal(t, 100000.0, p.CurrentBalance)
		}
	}

	// the same report goes through once the store is back
	h.store.fail(false, false)
	entry := h.report(t, c.ID, "B", 150000)
	assert.Equal(t, 1, entry.Rank)
	assert.Equal(t, 2, entry.PreviousRank)
	assert.Equal(t, 50000.0, entry.Score)
	assert.Equal(t, 50000.0, entry.ScoreChange24h)
}

func TestCompletion_ResultsSaveFailureCanBeRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 10, contracts.MetricTotalReturn)
	h.join(t, c.ID, "A", "B")
	h.activate(t, c.ID)
	h.report(t, c.ID, "A", 120000)

	h.store.fail(false, true)
	_, err := h.engine.TransitionStatus(ctx, c.ID, contracts.StatusCompleted)
	require.ErrorIs(t, err, errStoreDown)

	got, err := h.engine.GetCompetition(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusActive, got.Status)
	_, err = h.engine.Results(ctx, c.ID)
	assert.ErrorIs(t, err, contracts.ErrResultsNotAvailable)

	h.store.fail(false, false)
	done, err := h.engine.TransitionStatus(ctx, c.ID, contracts.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCompleted, done.Status)

	results, err := h.engine.Results(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, results.Payouts, 1)
	assert.Equal(t, "A", results.Payouts[0].UserID)
	assert.Equal(t, "10000.00", results.Payouts[0].Amount.StringFixed(2))

	_, err = h.engine.TransitionStatus(ctx, c.ID, contracts.StatusCompleted)
	assert.ErrorIs(t, err, contracts.ErrInvalidStatusTransition)
}

func TestJoinCapacityAndUniqueness(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 3, contracts.MetricTotalReturn)
	h.join(t, c.ID, "A", "B")

	_, err := h.engine.Join(ctx, roster.JoinRequest{CompetitionID: c.ID, UserID: "A"})
	assert.ErrorIs(t, err, contracts.ErrAlreadyJoined)

	h.join(t, c.ID, "C")
	_, err = h.engine.Join(ctx, roster.JoinRequest{CompetitionID: c.ID, UserID: "D"})
	assert.ErrorIs(t, err, contracts.ErrCompetitionFull)
	// capacity is checked before membership
	_, err = h.engine.Join(ctx, roster.JoinRequest{CompetitionID: c.ID, UserID: "A"})
	assert.ErrorIs(t, err, contracts.ErrCompetitionFull)

	got, err := h.engine.GetCompetition(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentParticipants)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Joins.WithLabelValues("competition_full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Joins.WithLabelValues("already_joined")))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.Joins.WithLabelValues("ok")))
}

func TestLeaveRecontiguatesRanks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 10, contracts.MetricTotalReturn)
	h.join(t, c.ID, "A", "B", "C")
	h.activate(t, c.ID)
	h.report(t, c.ID, "A", 130000)
	h.report(t, c.ID, "B", 120000)
	h.report(t, c.ID, "C", 110000)

	require.NoError(t, h.engine.Leave(ctx, c.ID, "B"))

	page, err := h.engine.GetLeaderboard(ctx, c.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, []int{1, 2}, []int{page.Entries[0].Rank, page.Entries[1].Rank})
	assert.Equal(t, "C", page.Entries[1].UserID)
	assert.Equal(t, 3, page.Entries[1].PreviousRank)

	got, err := h.engine.GetCompetition(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentParticipants)
	assert.Empty(t, h.engine.ListByUser("B"))

	assert.ErrorIs(t, h.engine.Leave(ctx, c.ID, "B"), contracts.ErrParticipantNotFound)
}

func TestDisqualify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 10, contracts.MetricTotalReturn)
	h.join(t, c.ID, "A", "B")
	h.activate(t, c.ID)
	h.report(t, c.ID, "A", 200000)
	h.report(t, c.ID, "B", 110000)

	_, err := h.engine.Disqualify(ctx, c.ID, "A", "wash trading")
	require.NoError(t, err)

	page, err := h.engine.GetLeaderboard(ctx, c.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "B", page.Entries[0].UserID)
	assert.Equal(t, 1, page.Entries[0].Rank)

	_, err = h.engine.GetUserRank(ctx, c.ID, "A")
	assert.ErrorIs(t, err, contracts.ErrParticipantNotFound)

	got, err := h.engine.GetCompetition(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentParticipants)
}

func TestCompletionMaterializesResults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 10, contracts.MetricTotalReturn)
	h.join(t, c.ID, "A", "B", "C")
	h.activate(t, c.ID)
	h.report(t, c.ID, "A", 110000)
	h.report(t, c.ID, "B", 130000)
	h.report(t, c.ID, "C", 120000)

	_, err := h.engine.Results(ctx, c.ID)
	assert.ErrorIs(t, err, contracts.ErrResultsNotAvailable)

	done, err := h.engine.TransitionStatus(ctx, c.ID, contracts.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCompleted, done.Status)

	results, err := h.engine.Results(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, results.Standings, 3)
	require.Len(t, results.Payouts, 1)
	assert.Equal(t, "B", results.Payouts[0].UserID)
	assert.Equal(t, "10000.00", results.Payouts[0].Amount.StringFixed(2))

	_, err = h.engine.ReportValuation(ctx, contracts.Valuation{CompetitionID: c.ID, UserID: "A", CurrentBalance: 1e6})
	assert.ErrorIs(t, err, contracts.ErrCompetitionNotActive)
	_, err = h.engine.Join(ctx, roster.JoinRequest{CompetitionID: c.ID, UserID: "late"})
	assert.ErrorIs(t, err, contracts.ErrRegistrationClosed)
}

func TestStatsAndPrizeTiers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 10, contracts.MetricPercentageReturn)
	h.join(t, c.ID, "A", "B", "C", "D", "E")
	h.activate(t, c.ID)
	for i, u := range []string{"A", "B", "C", "D", "E"} {
		h.report(t, c.ID, u, 100000+float64(i)*1000)
	}

	stats, err := h.engine.GetCompetitionStats(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Participants)
	assert.Equal(t, 5, stats.RankedParticipants)
	assert.InDelta(t, 4.0, stats.TopScore, 1e-9)
	assert.InDelta(t, 2.0, stats.AverageReturnPct, 1e-9)
	assert.InDelta(t, 2.0, stats.MedianReturnPct, 1e-9)
	assert.Greater(t, stats.TimeRemaining, time.Duration(0))
	assert.NotNil(t, stats.LastRebuildAt)

	tiers, err := h.engine.PrizeTiers(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.Equal(t, "7000.00", tiers[0].PrizeAmount.StringFixed(2))
}

func TestLeaderboardPaging(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 20, contracts.MetricTotalReturn)
	for i := 0; i < 12; i++ {
		h.join(t, c.ID, fmt.Sprintf("u%02d", i))
	}

	page, err := h.engine.GetLeaderboard(ctx, c.ID, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, 11, page.Entries[0].Rank)

	_, err = h.engine.GetLeaderboard(ctx, c.ID, -1, 0)
	assert.ErrorIs(t, err, contracts.ErrInvalidRequest)
	_, err = h.engine.GetLeaderboard(ctx, "nope", 5, 0)
	assert.ErrorIs(t, err, contracts.ErrCompetitionNotFound)
}

func TestSubscribeReceivesPushAfterValuation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 10, contracts.MetricTotalReturn)
	h.join(t, c.ID, "A", "B")
	h.activate(t, c.ID)

	got := make(chan feed.Snapshot, 16)
	unsubscribe, err := h.engine.Subscribe(ctx, c.ID, 0, func(s feed.Snapshot) error {
		got <- s
		return nil
	})
	require.NoError(t, err)
	defer unsubscribe()

	h.report(t, c.ID, "B", 150000)

	assert.Eventually(t, func() bool {
		for {
			select {
			case s := <-got:
				if len(s.Entries) > 0 && s.Entries[0].UserID == "B" {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)

	_, err = h.engine.Subscribe(ctx, "nope", 0, func(feed.Snapshot) error { return nil })
	assert.ErrorIs(t, err, contracts.ErrCompetitionNotFound)
}

func TestConcurrentValuationsKeepInvariants(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 50, contracts.MetricTotalReturn)
	users := make([]string, 20)
	for i := range users {
		users[i] = fmt.Sprintf("u%02d", i)
	}
	h.join(t, c.ID, users...)
	h.activate(t, c.ID)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				u := users[(w*7+i)%len(users)]
				_, err := h.engine.ReportValuation(ctx, contracts.Valuation{
					CompetitionID:  c.ID,
					UserID:         u,
					CurrentBalance: 90000 + float64((w*31+i*17)%400)*100,
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	page, err := h.engine.GetLeaderboard(ctx, c.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, len(users))
	for i, e := range page.Entries {
		assert.Equal(t, i+1, e.Rank)
		if i > 0 {
			assert.GreaterOrEqual(t, page.Entries[i-1].Score, e.Score)
		}
	}

	got, err := h.engine.GetCompetition(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, len(users), got.CurrentParticipants)
}

func TestApplyDueTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 10, contracts.MetricTotalReturn)
	h.join(t, c.ID, "A")

	h.clock.Advance(2 * time.Hour)
	applied, err := h.engine.ApplyDueTransitions(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, contracts.StatusActive, applied[0].To)

	h.clock.Advance(8 * 24 * time.Hour)
	applied, err = h.engine.ApplyDueTransitions(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, contracts.StatusCompleted, applied[0].To)

	results, err := h.engine.Results(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, results.Payouts, 1)
	assert.Equal(t, "A", results.Payouts[0].UserID)
}

type recordingMirror struct {
	mu      sync.Mutex
	tracked map[string]bool
}

func (m *recordingMirror) Track(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked[id] = true
	return nil
}

func (m *recordingMirror) Untrack(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracked, id)
}

func TestHydrateRestoresState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.competition(t, 10, contracts.MetricTotalReturn)
	h.join(t, c.ID, "A", "B")
	h.activate(t, c.ID)
	h.report(t, c.ID, "B", 120000)

	restarted := New(h.store, Config{Clock: h.clock.Now}, logger.NewNop(), nil)
	defer restarted.Close()
	mirror := &recordingMirror{tracked: map[string]bool{}}
	restarted.SetMirror(mirror)
	require.NoError(t, restarted.Hydrate(ctx))

	page, err := restarted.GetLeaderboard(ctx, c.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "B", page.Entries[0].UserID)
	assert.Len(t, restarted.ListByUser("A"), 1)
	assert.True(t, mirror.tracked[c.ID])

	_, err = restarted.TransitionStatus(ctx, c.ID, contracts.StatusCancelled)
	require.NoError(t, err)
	assert.False(t, mirror.tracked[c.ID])
}
