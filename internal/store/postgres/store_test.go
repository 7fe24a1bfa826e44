package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/pkg/config"
	"github.com/wonny/arena/pkg/database"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	db, err := database.New(&config.Config{Database: config.DatabaseConfig{
		URL:             url,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	}})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	s := New(db.Pool)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleCompetition() *contracts.Competition {
	now := time.Now().UTC().Truncate(time.Microsecond)
	trades := 20
	return &contracts.Competition{
		ID:              uuid.NewString(),
		Name:            "integration cup",
		Type:            contracts.TypeWeekly,
		Status:          contracts.StatusRegistrationOpen,
		StartDate:       now.Add(time.Hour),
		EndDate:         now.Add(8 * 24 * time.Hour),
		EntryFee:        decimal.RequireFromString("5.50"),
		PrizePool:       decimal.NewFromInt(1000),
		MaxParticipants: 10,
		ScoringMetric:   contracts.MetricPercentageReturn,
		Rules:           contracts.Rules{StartingBalance: 100000, MaxTradesPerDay: &trades, AllowedSymbols: []string{"AAPL"}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestCompetitionRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	c := sampleCompetition()

	require.NoError(t, s.Save(ctx, c))
	c.CurrentParticipants = 3
	require.NoError(t, s.Save(ctx, c))

	got, err := s.Load(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentParticipants)
	assert.True(t, c.EntryFee.Equal(got.EntryFee))
	assert.Equal(t, 20, *got.Rules.MaxTradesPerDay)
	assert.Equal(t, []string{"AAPL"}, got.Rules.AllowedSymbols)

	_, err = s.Load(ctx, uuid.NewString())
	assert.ErrorIs(t, err, contracts.ErrCompetitionNotFound)
}

func TestParticipantsAndResults(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	c := sampleCompetition()
	require.NoError(t, s.Save(ctx, c))

	joined := time.Now().UTC().Truncate(time.Microsecond)
	for i, u := range []string{"b", "a"} {
		require.NoError(t, s.SaveParticipant(ctx, &contracts.Participant{
			CompetitionID: c.ID, UserID: u, JoinedAt: joined.Add(time.Duration(i) * time.Second),
			StartingBalance: 100000, CurrentBalance: 100000,
		}))
	}

	list, err := s.ListParticipants(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].UserID)

	require.NoError(t, s.DeleteParticipant(ctx, c.ID, "b"))
	assert.ErrorIs(t, s.DeleteParticipant(ctx, c.ID, "b"), contracts.ErrParticipantNotFound)

	_, err = s.LoadResults(ctx, c.ID)
	assert.ErrorIs(t, err, contracts.ErrResultsNotAvailable)

	results := &contracts.Results{
		CompetitionID: c.ID,
		Standings:     []contracts.LeaderboardEntry{{Rank: 1, UserID: "a", Score: 12.5}},
		Tiers:         []contracts.PrizeTier{{Rank: 1, PrizeAmount: decimal.NewFromInt(1000), PrizeType: contracts.PrizeCash}},
		Payouts:       []contracts.Payout{{UserID: "a", Rank: 1, Amount: decimal.NewFromInt(1000), SharedWith: 1}},
		CompletedAt:   joined,
	}
	require.NoError(t, s.SaveResults(ctx, results))

	got, err := s.LoadResults(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Payouts, 1)
	assert.True(t, got.Payouts[0].Amount.Equal(decimal.NewFromInt(1000)))

	list, err = s.ListParticipants(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].CurrentRank)
}
