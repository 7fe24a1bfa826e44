// Package postgres is the PostgreSQL CompetitionStore
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/pkg/database"
)

//go:embed schema.sql
var schema string

// Store persists competitions, participants and results in the arena schema
// ⭐ SSOT: 대회 데이터 저장/조회는 여기서만
type Store struct {
	pool *pgxpool.Pool
}

var _ contracts.CompetitionStore = (*Store)(nil)

// New creates a store on an existing pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the arena schema if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const competitionColumns = `
	id, name, description, type, status, start_date, end_date,
	entry_fee::text, prize_pool::text, min_participants, max_participants,
	current_participants, scoring_metric, rules, created_by, created_at, updated_at`

// Save upserts a competition
func (s *Store) Save(ctx context.Context, c *contracts.Competition) error {
	rules, err := json.Marshal(c.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	query := `
		INSERT INTO arena.competitions (
			id, name, description, type, status, start_date, end_date,
			entry_fee, prize_pool, min_participants, max_participants,
			current_participants, scoring_metric, rules, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			entry_fee = EXCLUDED.entry_fee,
			prize_pool = EXCLUDED.prize_pool,
			min_participants = EXCLUDED.min_participants,
			max_participants = EXCLUDED.max_participants,
			current_participants = EXCLUDED.current_participants,
			scoring_metric = EXCLUDED.scoring_metric,
			rules = EXCLUDED.rules,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, query,
		c.ID, c.Name, c.Description, string(c.Type), string(c.Status), c.StartDate, c.EndDate,
		c.EntryFee.String(), c.PrizePool.String(), c.MinParticipants, c.MaxParticipants,
		c.CurrentParticipants, string(c.ScoringMetric), rules, c.CreatedBy, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save competition %s: %w", c.ID, err)
	}
	return nil
}

// Load returns one competition
func (s *Store) Load(ctx context.Context, id string) (*contracts.Competition, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+competitionColumns+` FROM arena.competitions WHERE id = $1`, id)
	c, err := scanCompetition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", contracts.ErrCompetitionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load competition %s: %w", id, err)
	}
	return c, nil
}

// List returns every competition
func (s *Store) List(ctx context.Context) ([]*contracts.Competition, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+competitionColumns+` FROM arena.competitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query competitions: %w", err)
	}
	defer rows.Close()

	list := make([]*contracts.Competition, 0)
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan competition: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return list, nil
}

func scanCompetition(row pgx.Row) (*contracts.Competition, error) {
	var (
		c                   contracts.Competition
		typ, status, metric string
		entryFee, prizePool string
		rules               []byte
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &typ, &status, &c.StartDate, &c.EndDate,
		&entryFee, &prizePool, &c.MinParticipants, &c.MaxParticipants,
		&c.CurrentParticipants, &metric, &rules, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Type = contracts.CompetitionType(typ)
	c.Status = contracts.Status(status)
	c.ScoringMetric = contracts.ScoringMetric(metric)
	if c.EntryFee, err = decimal.NewFromString(entryFee); err != nil {
		return nil, fmt.Errorf("bad entry_fee %q: %w", entryFee, err)
	}
	if c.PrizePool, err = decimal.NewFromString(prizePool); err != nil {
		return nil, fmt.Errorf("bad prize_pool %q: %w", prizePool, err)
	}
	if err := json.Unmarshal(rules, &c.Rules); err != nil {
		return nil, fmt.Errorf("bad rules: %w", err)
	}
	return &c, nil
}

// SaveParticipant upserts a participant
func (s *Store) SaveParticipant(ctx context.Context, p *contracts.Participant) error {
	query := `
		INSERT INTO arena.participants (
			competition_id, user_id, username, portfolio_id, joined_at,
			starting_balance, current_balance, total_trades, winning_trades, losing_trades,
			best_trade, worst_trade, score, current_rank, last_trade_at,
			is_disqualified, disqualified_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (competition_id, user_id) DO UPDATE SET
			username = EXCLUDED.username,
			current_balance = EXCLUDED.current_balance,
			total_trades = EXCLUDED.total_trades,
			winning_trades = EXCLUDED.winning_trades,
			losing_trades = EXCLUDED.losing_trades,
			best_trade = EXCLUDED.best_trade,
			worst_trade = EXCLUDED.worst_trade,
			score = EXCLUDED.score,
			current_rank = EXCLUDED.current_rank,
			last_trade_at = EXCLUDED.last_trade_at,
			is_disqualified = EXCLUDED.is_disqualified,
			disqualified_reason = EXCLUDED.disqualified_reason
	`
	_, err := s.pool.Exec(ctx, query,
		p.CompetitionID, p.UserID, p.Username, p.PortfolioID, p.JoinedAt,
		p.StartingBalance, p.CurrentBalance, p.TotalTrades, p.WinningTrades, p.LosingTrades,
		p.BestTrade, p.WorstTrade, p.Score, p.CurrentRank, p.LastTradeAt,
		p.IsDisqualified, p.DisqualifiedReason,
	)
	if err != nil {
		return fmt.Errorf("failed to save participant %s/%s: %w", p.CompetitionID, p.UserID, err)
	}
	return nil
}

// DeleteParticipant removes one enrollment
func (s *Store) DeleteParticipant(ctx context.Context, competitionID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM arena.participants WHERE competition_id = $1 AND user_id = $2`,
		competitionID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete participant %s/%s: %w", competitionID, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s in %s", contracts.ErrParticipantNotFound, userID, competitionID)
	}
	return nil
}

// ListParticipants returns a competition's roster in join order
func (s *Store) ListParticipants(ctx context.Context, competitionID string) ([]*contracts.Participant, error) {
	query := `
		SELECT
			competition_id, user_id, username, portfolio_id, joined_at,
			starting_balance, current_balance, total_trades, winning_trades, losing_trades,
			best_trade, worst_trade, score, current_rank, last_trade_at,
			is_disqualified, disqualified_reason
		FROM arena.participants
		WHERE competition_id = $1
		ORDER BY joined_at, user_id
	`
	rows, err := s.pool.Query(ctx, query, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	list := make([]*contracts.Participant, 0)
	for rows.Next() {
		var p contracts.Participant
		err := rows.Scan(
			&p.CompetitionID, &p.UserID, &p.Username, &p.PortfolioID, &p.JoinedAt,
			&p.StartingBalance, &p.CurrentBalance, &p.TotalTrades, &p.WinningTrades, &p.LosingTrades,
			&p.BestTrade, &p.WorstTrade, &p.Score, &p.CurrentRank, &p.LastTradeAt,
			&p.IsDisqualified, &p.DisqualifiedReason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		list = append(list, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return list, nil
}

// SaveResults stores final results and the ranks they freeze in one transaction
func (s *Store) SaveResults(ctx context.Context, r *contracts.Results) error {
	standings, err := json.Marshal(r.Standings)
	if err != nil {
		return fmt.Errorf("failed to encode standings: %w", err)
	}
	tiers, err := json.Marshal(r.Tiers)
	if err != nil {
		return fmt.Errorf("failed to encode tiers: %w", err)
	}
	payouts, err := json.Marshal(r.Payouts)
	if err != nil {
		return fmt.Errorf("failed to encode payouts: %w", err)
	}

	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO arena.results (competition_id, standings, tiers, payouts, completed_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (competition_id) DO UPDATE SET
				standings = EXCLUDED.standings,
				tiers = EXCLUDED.tiers,
				payouts = EXCLUDED.payouts,
				completed_at = EXCLUDED.completed_at
		`, r.CompetitionID, standings, tiers, payouts, r.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to save results of %s: %w", r.CompetitionID, err)
		}

		for _, e := range r.Standings {
			_, err := tx.Exec(ctx,
				`UPDATE arena.participants SET current_rank = $3, score = $4 WHERE competition_id = $1 AND user_id = $2`,
				r.CompetitionID, e.UserID, e.Rank, e.Score,
			)
			if err != nil {
				return fmt.Errorf("failed to freeze rank of %s: %w", e.UserID, err)
			}
		}
		return nil
	})
}

// LoadResults returns the results of a completed competition
func (s *Store) LoadResults(ctx context.Context, competitionID string) (*contracts.Results, error) {
	var (
		r                         contracts.Results
		standings, tiers, payouts []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT competition_id, standings, tiers, payouts, completed_at FROM arena.results WHERE competition_id = $1`,
		competitionID,
	).Scan(&r.CompetitionID, &standings, &tiers, &payouts, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", contracts.ErrResultsNotAvailable, competitionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load results of %s: %w", competitionID, err)
	}

	if err := json.Unmarshal(standings, &r.Standings); err != nil {
		return nil, fmt.Errorf("bad standings: %w", err)
	}
	if err := json.Unmarshal(tiers, &r.Tiers); err != nil {
		return nil, fmt.Errorf("bad tiers: %w", err)
	}
	if err := json.Unmarshal(payouts, &r.Payouts); err != nil {
		return nil, fmt.Errorf("bad payouts: %w", err)
	}
	return &r, nil
}
