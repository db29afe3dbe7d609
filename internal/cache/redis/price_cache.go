package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openpredict/marketd/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// price is stored as a hash at key "price:{marketID}" with fields "bp"
// (basis points) and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID uint32) string {
	return "price:" + strconv.FormatUint(uint64(marketID), 10)
}

// SetPrice stores the latest basis-point price and timestamp for a market.
func (pc *PriceCache) SetPrice(ctx context.Context, marketID uint32, priceBp int64, ts time.Time) error {
	fields := map[string]interface{}{
		"bp": strconv.FormatInt(priceBp, 10),
		"ts": strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(marketID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %d: %w", marketID, err)
	}
	return nil
}

// GetPrice retrieves the latest basis-point price and timestamp for a
// market. It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, marketID uint32) (int64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(marketID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %d: %w", marketID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	bpStr, ok := vals["bp"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	priceBp, err := strconv.ParseInt(bpStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %d: %w", marketID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %d: %w", marketID, err)
	}

	return priceBp, time.Unix(0, tsNano), nil
}

// GetPrices retrieves the latest prices for multiple markets using a
// pipeline. Markets whose keys do not exist are silently omitted from the
// result map.
func (pc *PriceCache) GetPrices(ctx context.Context, marketIDs []uint32) (map[uint32]int64, error) {
	if len(marketIDs) == 0 {
		return map[uint32]int64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(marketIDs))
	for i, id := range marketIDs {
		cmds[i] = pipe.HGet(ctx, priceKey(id), "bp")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	out := make(map[uint32]int64, len(marketIDs))
	for i, cmd := range cmds {
		bpStr, err := cmd.Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("redis: get price %d: %w", marketIDs[i], err)
		}
		priceBp, err := strconv.ParseInt(bpStr, 10, 64)
		if err != nil {
			continue
		}
		out[marketIDs[i]] = priceBp
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
