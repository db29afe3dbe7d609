package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/engine"
)

var (
	testOwner  = common.HexToAddress("0x0000000000000000000000000000000000000aa1")
	testOracle = common.HexToAddress("0x0000000000000000000000000000000000000aa2")
	testUser   = common.HexToAddress("0x0000000000000000000000000000000000000aa3")
)

// memJournal is an in-memory journal that can be told to fail.
type memJournal struct {
	mu      sync.Mutex
	entries []domain.JournalEntry
	err     error
}

func (j *memJournal) Append(_ context.Context, entry domain.JournalEntry) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return "", j.err
	}
	entry.Ref = "ref-test"
	j.entries = append(j.entries, entry)
	return entry.Ref, nil
}

func (j *memJournal) List(_ context.Context, _ domain.ListOpts) ([]domain.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.JournalEntry(nil), j.entries...), nil
}

// memBus collects published payloads per channel.
type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][][]byte),
	}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *memBus) StreamRead(_ context.Context, _ string, _ string, _ int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// memPositions records whether snapshots arrived one at a time or batched.
type memPositions struct {
	mu      sync.Mutex
	single  []domain.Position
	batches [][]domain.Position
}

func (p *memPositions) Upsert(_ context.Context, pos domain.Position) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.single = append(p.single, pos)
	return nil
}

func (p *memPositions) UpsertBatch(_ context.Context, positions []domain.Position) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]domain.Position(nil), positions...))
	return nil
}

func (p *memPositions) Get(_ context.Context, _ uint32, _ common.Address) (domain.Position, error) {
	return domain.Position{}, domain.ErrNotFound
}

func (p *memPositions) ListByMarket(_ context.Context, _ uint32) ([]domain.Position, error) {
	return nil, nil
}

func (p *memPositions) ListByHolder(_ context.Context, _ common.Address) ([]domain.Position, error) {
	return nil, nil
}

type memArchiver struct {
	reports []domain.SettlementReport
	err     error
}

func (a *memArchiver) ArchiveSettlement(_ context.Context, report domain.SettlementReport) error {
	if a.err != nil {
		return a.err
	}
	a.reports = append(a.reports, report)
	return nil
}

type memNotifier struct {
	subjects []string
	err      error
}

func (n *memNotifier) Notify(_ context.Context, subject, _ string) error {
	if n.err != nil {
		return n.err
	}
	n.subjects = append(n.subjects, subject)
	return nil
}

type fixture struct {
	engine     *engine.Engine
	journal    *memJournal
	bus        *memBus
	positions  *memPositions
	markets    *MarketService
	trades     *TradeService
	oracle     *OracleService
	resolution *ResolutionService
	archiver   *memArchiver
	notifier   *memNotifier
	clock      *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{
		journal:   &memJournal{},
		bus:       newMemBus(),
		positions: &memPositions{},
		archiver:  &memArchiver{},
		notifier:  &memNotifier{},
		clock:     &now,
	}
	logger := slog.Default()
	f.engine = engine.New(testOwner, logger, engine.WithClock(func() time.Time { return *f.clock }))
	require.NoError(t, f.engine.AuthorizeUpdater(testOwner, testOracle))

	rec := NewRecorder(f.journal, nil, f.positions, nil, f.bus, logger)
	f.markets = NewMarketService(f.engine, rec, logger)
	f.trades = NewTradeService(f.engine, rec, logger)
	f.oracle = NewOracleService(f.engine, rec, testOracle, logger)
	f.resolution = NewResolutionService(f.engine, rec, f.archiver, f.notifier, logger)
	return f
}

func (f *fixture) createMarket(t *testing.T) uint32 {
	t.Helper()
	id, err := f.markets.CreateMarket(context.Background(), "Will it settle?", f.clock.Add(24*time.Hour))
	require.NoError(t, err)
	return id
}

func TestMarketService_CreateJournalsAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.markets.CreateMarket(ctx, "Will it settle?", f.clock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)

	entries, err := f.journal.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "create_market", entries[0].Op)
	assert.Nil(t, entries[0].Holder)

	assert.Len(t, f.bus.published[ChannelMarkets], 1)
}

func TestMarketService_FeedIdentifiersPropagate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.markets.CreateMarketWithLiquidity(ctx, "Feed bound?", f.clock.Add(time.Hour),
		big.NewInt(500), big.NewInt(500), 5000, "0xcond", "feed-bound")
	require.NoError(t, err)

	m, err := f.markets.GetMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "0xcond", m.ConditionID)
	assert.Equal(t, "feed-bound", m.Slug)
}

func TestTradeService_OrderRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createMarket(t)

	shares, err := f.trades.PlaceOrder(ctx, testUser, id, true, big.NewInt(100), 5000)
	require.NoError(t, err)
	assert.Equal(t, "200", shares.String())

	proceeds, err := f.trades.SellShares(ctx, testUser, id, true, big.NewInt(200))
	require.NoError(t, err)
	assert.Equal(t, "199", proceeds.String())

	entries, err := f.journal.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	// create + order + sell
	require.Len(t, entries, 3)
	assert.Equal(t, "place_order", entries[1].Op)
	require.NotNil(t, entries[1].Holder)
	assert.Equal(t, testUser, *entries[1].Holder)
	assert.Equal(t, "sell_shares", entries[2].Op)

	assert.Len(t, f.bus.published[ChannelOrders], 2)
}

func TestTradeService_EngineErrorPropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createMarket(t)

	_, err := f.trades.PlaceOrder(ctx, testUser, id, true, big.NewInt(0), 5000)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// The failed mutation must not reach the journal.
	entries, err := f.journal.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTradeService_JournalFailureDoesNotBlockTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createMarket(t)
	f.journal.err = errors.New("ledger down")

	shares, err := f.trades.PlaceOrder(ctx, testUser, id, true, big.NewInt(100), 5000)
	require.NoError(t, err)
	assert.Equal(t, "200", shares.String())

	pos, err := f.markets.GetPosition(ctx, id, testUser)
	require.NoError(t, err)
	assert.Equal(t, "200", pos.YesShares.String())
}

func TestOracleService_SubmitAndRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createMarket(t)

	require.NoError(t, f.oracle.SubmitPrice(ctx, id, 6200))

	price, err := f.oracle.CurrentPrice(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(6200), price)

	assert.Len(t, f.bus.published[ChannelPrices], 1)
}

func TestOracleService_BatchPublishesOnlySuccesses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createMarket(t)

	results, err := f.oracle.BatchUpdatePrices(ctx, testOracle, []uint32{id, 99}, []int64{7000, 3000})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, domain.ErrNotFound)

	assert.Len(t, f.bus.published[ChannelPrices], 1)
}

func TestOracleService_UnauthorizedCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createMarket(t)

	err := f.oracle.UpdatePrice(ctx, testUser, id, 6000)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestResolutionService_ArchivesAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createMarket(t)

	_, err := f.trades.PlaceOrder(ctx, testUser, id, true, big.NewInt(100), 5000)
	require.NoError(t, err)

	*f.clock = f.clock.Add(25 * time.Hour)
	require.NoError(t, f.resolution.ResolveMarket(ctx, id, domain.OutcomeYes))

	require.Len(t, f.archiver.reports, 1)
	report := f.archiver.reports[0]
	assert.Equal(t, id, report.MarketID)
	assert.Equal(t, domain.OutcomeYes, report.Outcome)
	assert.Equal(t, "100", report.Pool.String())
	require.Len(t, report.Positions, 1)

	require.Len(t, f.notifier.subjects, 1)
	assert.Contains(t, f.notifier.subjects[0], "resolved")

	// market_resolved event on the settlements channel plus the durable
	// stream copy.
	assert.Len(t, f.bus.published[ChannelSettlements], 1)
	assert.Len(t, f.bus.streamed[domain.SettlementStream], 1)
}

func TestResolutionService_SnapshotsPositionsInOneBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createMarket(t)

	other := common.HexToAddress("0x0000000000000000000000000000000000000aa4")
	_, err := f.trades.PlaceOrder(ctx, testUser, id, true, big.NewInt(100), 5000)
	require.NoError(t, err)
	_, err = f.trades.PlaceOrder(ctx, other, id, false, big.NewInt(50), 5000)
	require.NoError(t, err)

	f.positions.mu.Lock()
	singlesBefore := len(f.positions.single)
	f.positions.mu.Unlock()
	assert.Equal(t, 2, singlesBefore)

	*f.clock = f.clock.Add(25 * time.Hour)
	require.NoError(t, f.resolution.ResolveMarket(ctx, id, domain.OutcomeYes))

	f.positions.mu.Lock()
	defer f.positions.mu.Unlock()
	// Resolution writes all of the market's positions in a single batch
	// rather than one row at a time.
	assert.Len(t, f.positions.single, singlesBefore)
	require.Len(t, f.positions.batches, 1)
	assert.Len(t, f.positions.batches[0], 2)
}

func TestResolutionService_SideEffectFailuresAreSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createMarket(t)
	f.archiver.err = errors.New("bucket gone")
	f.notifier.err = errors.New("webhook down")

	*f.clock = f.clock.Add(25 * time.Hour)
	require.NoError(t, f.resolution.ResolveMarket(ctx, id, domain.OutcomeNo))

	m, err := f.markets.GetMarket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStateResolved, m.State)
}

func TestResolutionService_EngineErrorPropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createMarket(t)

	err := f.resolution.ResolveMarket(ctx, id, domain.OutcomeYes)
	assert.ErrorIs(t, err, domain.ErrTooEarly)
	assert.Empty(t, f.archiver.reports)
}
