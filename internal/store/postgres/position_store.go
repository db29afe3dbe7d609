package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/marketd/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionUpsert = `
	INSERT INTO positions (
		market_id, holder, yes_shares, no_shares, claimed, updated_at
	) VALUES (
		$1, $2, $3::numeric, $4::numeric, $5, NOW()
	)
	ON CONFLICT (market_id, holder) DO UPDATE SET
		yes_shares = EXCLUDED.yes_shares,
		no_shares  = EXCLUDED.no_shares,
		claimed    = EXCLUDED.claimed,
		updated_at = NOW()`

func positionArgs(p domain.Position) []any {
	return []any{
		p.MarketID, p.Holder.Hex(),
		numericArg(p.YesShares), numericArg(p.NoShares), p.Claimed,
	}
}

// Upsert inserts or updates a single position snapshot.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	_, err := s.pool.Exec(ctx, positionUpsert, positionArgs(p)...)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %d/%s: %w", p.MarketID, p.Holder.Hex(), err)
	}
	return nil
}

// UpsertBatch inserts or updates multiple position snapshots in a single
// round trip. Resolution uses this to persist the whole market's positions.
func (s *PositionStore) UpsertBatch(ctx context.Context, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(positionUpsert, positionArgs(p)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range positions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert position batch item %d: %w", i, err)
		}
	}
	return nil
}

const positionCols = `market_id, holder, yes_shares::text, no_shares::text, claimed, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p         domain.Position
		holder    string
		yesShares string
		noShares  string
	)
	err := row.Scan(&p.MarketID, &holder, &yesShares, &noShares, &p.Claimed, &p.UpdatedAt)
	if err != nil {
		return domain.Position{}, err
	}
	p.Holder = common.HexToAddress(holder)
	p.YesShares = numericValue(yesShares)
	p.NoShares = numericValue(noShares)
	return p, nil
}

// Get retrieves the position snapshot for one holder in one market.
func (s *PositionStore) Get(ctx context.Context, marketID uint32, holder common.Address) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = $1 AND holder = $2`,
		marketID, holder.Hex())
	p, err := scanPosition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %d/%s: %w", marketID, holder.Hex(), err)
	}
	return p, nil
}

// ListByMarket returns every position snapshot in a market.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID uint32) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = $1 ORDER BY holder`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for market %d: %w", marketID, err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

// ListByHolder returns every position snapshot held by one address.
func (s *PositionStore) ListByHolder(ctx context.Context, holder common.Address) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE holder = $1 ORDER BY market_id`,
		holder.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for holder %s: %w", holder.Hex(), err)
	}
	defer rows.Close()
	return collectPositions(rows)
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: position rows: %w", err)
	}
	return positions, nil
}
