package driver

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/feed"
)

var errFeedDown = errors.New("feed down")

type fakeFetcher struct {
	records []feed.Record
	err     error
	calls   int
}

func (f *fakeFetcher) GetMarkets(_ context.Context, _ int) ([]feed.Record, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fakeLister struct {
	markets []domain.Market
}

func (l *fakeLister) ListMarkets(_ context.Context) ([]domain.Market, error) {
	return l.markets, nil
}

func localMarket(id uint32, conditionID, slug string, priceBp int64) domain.Market {
	return domain.Market{
		ID:          id,
		ConditionID: conditionID,
		Slug:        slug,
		YesPrice:    priceBp,
		State:       domain.MarketStateActive,
		EndTime:     time.Now().Add(time.Hour),
	}
}

func testSyncer(fetcher *fakeFetcher, lister *fakeLister, book *fakeBook) *Syncer {
	return NewSyncer(fetcher, lister, book, DefaultSyncerConfig(), slog.Default())
}

func TestSyncer_MatchesByConditionIDAndSlug(t *testing.T) {
	fetcher := &fakeFetcher{records: []feed.Record{
		{ConditionID: "0xaaa", Slug: "first", YesPrice: 0.62},
		{ConditionID: "0xbbb", Slug: "second", YesPrice: 0.31},
	}}
	lister := &fakeLister{markets: []domain.Market{
		localMarket(0, "0xaaa", "", 5000),
		localMarket(1, "", "second", 5000),
	}}
	book := newFakeBook(map[uint32]int64{0: 5000, 1: 5000})

	require.NoError(t, testSyncer(fetcher, lister, book).Tick(context.Background()))

	require.Len(t, book.submitted, 2)
	assert.Equal(t, submission{marketID: 0, priceBp: 6200}, book.submitted[0])
	assert.Equal(t, submission{marketID: 1, priceBp: 3100}, book.submitted[1])
}

func TestSyncer_ClampsExtremePrices(t *testing.T) {
	fetcher := &fakeFetcher{records: []feed.Record{
		{ConditionID: "0xaaa", YesPrice: 0.999},
		{ConditionID: "0xbbb", YesPrice: 0.001},
	}}
	lister := &fakeLister{markets: []domain.Market{
		localMarket(0, "0xaaa", "", 5000),
		localMarket(1, "0xbbb", "", 5000),
	}}
	book := newFakeBook(map[uint32]int64{0: 5000, 1: 5000})

	require.NoError(t, testSyncer(fetcher, lister, book).Tick(context.Background()))

	require.Len(t, book.submitted, 2)
	assert.Equal(t, domain.MaxPriceBp, book.submitted[0].priceBp)
	assert.Equal(t, domain.MinPriceBp, book.submitted[1].priceBp)
}

func TestSyncer_SkipsSmallDeltas(t *testing.T) {
	// 0.5020 is 5020 bp: only 20 bp away from the current 5000.
	fetcher := &fakeFetcher{records: []feed.Record{{ConditionID: "0xaaa", YesPrice: 0.502}}}
	lister := &fakeLister{markets: []domain.Market{localMarket(0, "0xaaa", "", 5000)}}
	book := newFakeBook(map[uint32]int64{0: 5000})

	require.NoError(t, testSyncer(fetcher, lister, book).Tick(context.Background()))
	assert.Empty(t, book.submitted)
}

func TestSyncer_UnmatchedMarketIsSkipped(t *testing.T) {
	fetcher := &fakeFetcher{records: []feed.Record{{ConditionID: "0xother", YesPrice: 0.9}}}
	lister := &fakeLister{markets: []domain.Market{localMarket(0, "0xaaa", "btc", 5000)}}
	book := newFakeBook(map[uint32]int64{0: 5000})

	require.NoError(t, testSyncer(fetcher, lister, book).Tick(context.Background()))
	assert.Empty(t, book.submitted)
}

func TestSyncer_ConsecutiveFailuresHalt(t *testing.T) {
	fetcher := &fakeFetcher{err: errFeedDown}
	s := testSyncer(fetcher, &fakeLister{}, newFakeBook(nil))

	// The first five consecutive failures are tolerated.
	for i := 0; i < 5; i++ {
		assert.NoError(t, s.Tick(context.Background()), "failure %d should be tolerated", i+1)
	}

	err := s.Tick(context.Background())
	assert.ErrorIs(t, err, errFeedDown)
}

func TestSyncer_FailureCounterResetsOnSuccess(t *testing.T) {
	fetcher := &fakeFetcher{err: errFeedDown}
	s := testSyncer(fetcher, &fakeLister{}, newFakeBook(nil))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Tick(context.Background()))
	}

	// A single success resets the counter.
	fetcher.err = nil
	require.NoError(t, s.Tick(context.Background()))

	fetcher.err = errFeedDown
	for i := 0; i < 5; i++ {
		assert.NoError(t, s.Tick(context.Background()))
	}
	assert.Error(t, s.Tick(context.Background()))
}

func TestSyncer_ResourceExhaustionIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{records: []feed.Record{{ConditionID: "0xaaa", YesPrice: 0.9}}}
	lister := &fakeLister{markets: []domain.Market{localMarket(0, "0xaaa", "", 5000)}}
	book := newFakeBook(map[uint32]int64{0: 5000})
	book.submitErr = domain.ErrResourceExhausted

	err := testSyncer(fetcher, lister, book).Tick(context.Background())
	assert.ErrorIs(t, err, domain.ErrResourceExhausted)
}

func TestSyncer_RejectionContinuesWithOtherMarkets(t *testing.T) {
	fetcher := &fakeFetcher{records: []feed.Record{
		{ConditionID: "0xaaa", YesPrice: 0.9},
		{ConditionID: "0xbbb", YesPrice: 0.2},
	}}
	lister := &fakeLister{markets: []domain.Market{
		localMarket(0, "0xaaa", "", 5000),
		localMarket(1, "0xbbb", "", 5000),
	}}
	book := newFakeBook(map[uint32]int64{0: 5000, 1: 5000})
	sub := &rejectFirst{inner: book}

	s := NewSyncer(fetcher, lister, sub, DefaultSyncerConfig(), slog.Default())
	require.NoError(t, s.Tick(context.Background()))

	// Market 0 was rejected; market 1 still synced.
	require.Len(t, book.submitted, 1)
	assert.Equal(t, uint32(1), book.submitted[0].marketID)
}

// rejectFirst rejects updates for market 0 with a state error and passes
// everything else through.
type rejectFirst struct {
	inner *fakeBook
}

func (r *rejectFirst) SubmitPrice(ctx context.Context, id uint32, priceBp int64) error {
	if id == 0 {
		return domain.ErrInvalidState
	}
	return r.inner.SubmitPrice(ctx, id, priceBp)
}
