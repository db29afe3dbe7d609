package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/marketd/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketUpsert = `
	INSERT INTO markets (
		id, question, slug, condition_id, end_time,
		state, outcome, yes_price_bp,
		yes_reserve, no_reserve, total_volume, pool, winning_shares,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8,
		$9::numeric, $10::numeric, $11::numeric, $12::numeric, $13::numeric,
		$14, NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		question       = EXCLUDED.question,
		slug           = EXCLUDED.slug,
		condition_id   = EXCLUDED.condition_id,
		end_time       = EXCLUDED.end_time,
		state          = EXCLUDED.state,
		outcome        = EXCLUDED.outcome,
		yes_price_bp   = EXCLUDED.yes_price_bp,
		yes_reserve    = EXCLUDED.yes_reserve,
		no_reserve     = EXCLUDED.no_reserve,
		total_volume   = EXCLUDED.total_volume,
		pool           = EXCLUDED.pool,
		winning_shares = EXCLUDED.winning_shares,
		updated_at     = NOW()`

func marketArgs(m domain.Market) []any {
	return []any{
		m.ID, m.Question, m.Slug, m.ConditionID, m.EndTime,
		string(m.State), string(m.Outcome), m.YesPrice,
		numericArg(m.YesReserve), numericArg(m.NoReserve),
		numericArg(m.TotalVolume), numericArg(m.Pool), numericArg(m.WinningShares),
		m.CreatedAt,
	}
}

// Upsert inserts or updates a single market snapshot.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	if _, err := s.pool.Exec(ctx, marketUpsert, marketArgs(m)...); err != nil {
		return fmt.Errorf("postgres: upsert market %d: %w", m.ID, err)
	}
	return nil
}


const marketCols = `id, question, slug, condition_id, end_time,
	state, outcome, yes_price_bp,
	yes_reserve::text, no_reserve::text, total_volume::text,
	pool::text, winning_shares::text,
	created_at, updated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m              domain.Market
		state, outcome string
		yesReserve     string
		noReserve      string
		totalVolume    string
		pool           string
		winningShares  string
	)
	err := row.Scan(
		&m.ID, &m.Question, &m.Slug, &m.ConditionID, &m.EndTime,
		&state, &outcome, &m.YesPrice,
		&yesReserve, &noReserve, &totalVolume, &pool, &winningShares,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.State = domain.MarketState(state)
	m.Outcome = domain.Outcome(outcome)
	m.YesReserve = numericValue(yesReserve)
	m.NoReserve = numericValue(noReserve)
	m.TotalVolume = numericValue(totalVolume)
	m.Pool = numericValue(pool)
	m.WinningShares = numericValue(winningShares)
	return m, nil
}

// GetByID retrieves a market snapshot by its id.
func (s *MarketStore) GetByID(ctx context.Context, id uint32) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// List returns market snapshots in id order with pagination.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY id`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// numericArg converts an optional big integer into its NUMERIC text form.
func numericArg(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// numericValue parses a NUMERIC text value back into a big integer.
func numericValue(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
