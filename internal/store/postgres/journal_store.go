package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/marketd/internal/domain"
)

// JournalStore implements domain.Journal using PostgreSQL. Each committed
// mutation gets a UUID settlement reference assigned on append.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a new JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Append writes a new journal entry and returns its settlement reference.
// The detail map is stored as JSONB.
func (s *JournalStore) Append(ctx context.Context, entry domain.JournalEntry) (string, error) {
	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return "", fmt.Errorf("postgres: marshal journal detail: %w", err)
	}

	ref := uuid.NewString()
	var holder *string
	if entry.Holder != nil {
		h := entry.Holder.Hex()
		holder = &h
	}

	const query = `
		INSERT INTO journal (ref, op, market_id, holder, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.pool.Exec(ctx, query,
		ref, entry.Op, entry.MarketID, holder, detailJSON, entry.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("postgres: append journal entry %s: %w", entry.Op, err)
	}
	return ref, nil
}

// List returns journal entries newest first with pagination.
func (s *JournalStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.JournalEntry, error) {
	query := `SELECT ref, op, market_id, holder, detail, created_at
		FROM journal ORDER BY created_at DESC, ref`
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
		return nil, fmt.Errorf("postgres: list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var (
			e          domain.JournalEntry
			holder     *string
			detailJSON []byte
		)
		if err := rows.Scan(&e.Ref, &e.Op, &e.MarketID, &holder, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan journal entry: %w", err)
		}
		if holder != nil {
			addr := common.HexToAddress(*holder)
			e.Holder = &addr
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal journal detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: journal rows: %w", err)
	}
	return entries, nil
}
