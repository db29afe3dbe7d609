package engine

import (
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpredict/marketd/internal/domain"
)

var (
	owner  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	oracle = common.HexToAddress("0x2000000000000000000000000000000000000002")
	user1  = common.HexToAddress("0x3000000000000000000000000000000000000003")
	user2  = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

// fakeClock is a controllable time source for the engine.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	e := New(owner, slog.Default(), WithClock(clock.Now))
	require.NoError(t, e.AuthorizeUpdater(owner, oracle))
	return e, clock
}

// createTestMarket creates a market ending one day after the clock's now.
func createTestMarket(t *testing.T, e *Engine, clock *fakeClock) uint32 {
	t.Helper()
	id, err := e.CreateMarket("Will Bitcoin reach $100,000?", clock.now.Add(24*time.Hour))
	require.NoError(t, err)
	return id
}

func amt(v int64) *big.Int { return big.NewInt(v) }

func TestCreateMarket_Defaults(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	m, err := e.GetMarketInfo(id)
	require.NoError(t, err)
	assert.Equal(t, "Will Bitcoin reach $100,000?", m.Question)
	assert.Equal(t, domain.MarketStateActive, m.State)
	assert.Equal(t, domain.OutcomeUnset, m.Outcome)
	assert.Equal(t, domain.DefaultPriceBp, m.YesPrice)
	assert.Zero(t, m.TotalVolume.Sign())
}

func TestCreateMarket_SequentialIDs(t *testing.T) {
	e, clock := newTestEngine(t)
	a := createTestMarket(t, e, clock)
	b := createTestMarket(t, e, clock)
	assert.Equal(t, uint32(0), a)
	assert.Equal(t, uint32(1), b)
	assert.Equal(t, uint32(2), e.MarketCount())
}

func TestCreateMarket_PastEndTime(t *testing.T) {
	e, clock := newTestEngine(t)
	_, err := e.CreateMarket("Invalid", clock.now.Add(-time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)

	// endTime == now is also invalid: it must be strictly in the future.
	_, err = e.CreateMarket("Invalid", clock.now)
	assert.ErrorIs(t, err, domain.ErrInvalidSchedule)
}

func TestCreateMarketWithLiquidity(t *testing.T) {
	e, clock := newTestEngine(t)
	id, err := e.CreateMarketWithLiquidity("Seeded", clock.now.Add(24*time.Hour), amt(5000), amt(5000), 6500)
	require.NoError(t, err)

	m, err := e.GetMarketInfo(id)
	require.NoError(t, err)
	assert.Equal(t, int64(6500), m.YesPrice)
	assert.Equal(t, int64(5000), m.YesReserve.Int64())
	assert.Equal(t, int64(5000), m.NoReserve.Int64())

	_, err = e.CreateMarketWithLiquidity("Bad price", clock.now.Add(24*time.Hour), amt(1), amt(1), 9950)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestGetMarketInfo_NotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.GetMarketInfo(7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPlaceOrder_BuyYesAndNo(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	// At 5000 bp, 100 units buy 200 shares on either side.
	shares, err := e.PlaceOrder(user1, id, true, amt(100), 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(200), shares.Int64())

	shares, err = e.PlaceOrder(user2, id, false, amt(100), 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(200), shares.Int64())

	p1, err := e.GetPosition(id, user1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), p1.YesShares.Int64())
	assert.Zero(t, p1.NoShares.Sign())

	p2, err := e.GetPosition(id, user2)
	require.NoError(t, err)
	assert.Equal(t, int64(200), p2.NoShares.Int64())
}

func TestPlaceOrder_UpdatesVolumeAndReserves(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	_, err := e.PlaceOrder(user1, id, true, amt(100), 5000)
	require.NoError(t, err)
	_, err = e.PlaceOrder(user1, id, false, amt(40), 5000)
	require.NoError(t, err)

	m, err := e.GetMarketInfo(id)
	require.NoError(t, err)
	assert.Equal(t, int64(140), m.TotalVolume.Int64())
	assert.Equal(t, int64(100), m.YesReserve.Int64())
	assert.Equal(t, int64(40), m.NoReserve.Int64())
}

func TestPlaceOrder_NoSideUsesComplementPrice(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)
	require.NoError(t, e.UpdatePrice(oracle, id, 6500))

	// No side trades at 10000-6500 = 3500 bp: 70 units -> 200 shares.
	shares, err := e.PlaceOrder(user1, id, false, amt(70), 3500)
	require.NoError(t, err)
	assert.Equal(t, int64(200), shares.Int64())
}

func TestPlaceOrder_ZeroAmount(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)
	_, err := e.PlaceOrder(user1, id, true, amt(0), 5000)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestPlaceOrder_InvalidPrice(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	_, err := e.PlaceOrder(user1, id, true, amt(100), 50)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
	_, err = e.PlaceOrder(user1, id, true, amt(100), 9950)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestPlaceOrder_AfterEndTime(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	clock.Advance(24*time.Hour + time.Second)

	// Rejected even though the market was never explicitly resolved.
	_, err := e.PlaceOrder(user1, id, true, amt(100), 5000)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestSellShares_FeeAndBalance(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	_, err := e.PlaceOrder(user1, id, true, amt(100), 5000)
	require.NoError(t, err)

	// Selling 100 shares nets 99.70, floored to 99 whole liquidity units.
	proceeds, err := e.SellShares(user1, id, true, amt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(99), proceeds.Int64())

	proceeds, err = e.SellShares(user1, id, true, amt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(99), proceeds.Int64())

	pos, err := e.GetPosition(id, user1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos.YesShares.Int64())

	m, err := e.GetMarketInfo(id)
	require.NoError(t, err)
	assert.Equal(t, int64(100), m.TotalVolume.Int64(), "selling never decrements volume")
}

func TestSellShares_ExactFee(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	_, err := e.PlaceOrder(user1, id, true, amt(10000), 5000)
	require.NoError(t, err)

	proceeds, err := e.SellShares(user1, id, true, amt(10000))
	require.NoError(t, err)
	assert.Equal(t, int64(9970), proceeds.Int64())
}

func TestSellShares_Insufficient(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	_, err := e.PlaceOrder(user1, id, true, amt(100), 5000)
	require.NoError(t, err)

	_, err = e.SellShares(user1, id, true, amt(201))
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	_, err = e.SellShares(user2, id, true, amt(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestUpdatePrice_RoundTrip(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	for _, p := range []int64{100, 101, 4999, 6500, 9899, 9900} {
		require.NoError(t, e.UpdatePrice(oracle, id, p))
		m, err := e.GetMarketInfo(id)
		require.NoError(t, err)
		assert.Equal(t, p, m.YesPrice)
	}
}

func TestUpdatePrice_OutOfBounds(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	for _, p := range []int64{0, 50, 99, 9901, 10000, 20000, -100} {
		err := e.UpdatePrice(oracle, id, p)
		assert.ErrorIs(t, err, domain.ErrOutOfBounds, "price %d", p)
	}
}

func TestUpdatePrice_Unauthorized(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	err := e.UpdatePrice(user1, id, 6500)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Owner is not implicitly an updater.
	err = e.UpdatePrice(owner, id, 6500)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthorizeUpdater_OwnerOnly(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.AuthorizeUpdater(user1, user2)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, e.IsAuthorizedUpdater(user2))
}

func TestUpdatePrice_UnknownMarket(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.UpdatePrice(oracle, 42, 6500)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBatchUpdatePrices_BestEffort(t *testing.T) {
	e, clock := newTestEngine(t)
	a := createTestMarket(t, e, clock)
	b := createTestMarket(t, e, clock)

	results, err := e.BatchUpdatePrices(oracle,
		[]uint32{a, 99, b},
		[]int64{6000, 5000, 4000},
	)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, domain.ErrNotFound)
	assert.NoError(t, results[2].Err)

	ma, _ := e.GetMarketInfo(a)
	mb, _ := e.GetMarketInfo(b)
	assert.Equal(t, int64(6000), ma.YesPrice)
	assert.Equal(t, int64(4000), mb.YesPrice)
}

func TestBatchUpdatePrices_LengthMismatch(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.BatchUpdatePrices(oracle, []uint32{0, 1}, []int64{5000})
	assert.Error(t, err)
}

func TestResolveMarket(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	err := e.ResolveMarket(id, domain.OutcomeYes)
	assert.ErrorIs(t, err, domain.ErrTooEarly)

	clock.Advance(24*time.Hour + time.Second)

	err = e.ResolveMarket(id, domain.Outcome("maybe"))
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
	err = e.ResolveMarket(id, domain.OutcomeUnset)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	require.NoError(t, e.ResolveMarket(id, domain.OutcomeYes))

	m, err := e.GetMarketInfo(id)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStateResolved, m.State)
	assert.Equal(t, domain.OutcomeYes, m.Outcome)

	// Resolution is permanent: a second attempt fails regardless of outcome.
	assert.ErrorIs(t, e.ResolveMarket(id, domain.OutcomeYes), domain.ErrInvalidState)
	assert.ErrorIs(t, e.ResolveMarket(id, domain.OutcomeNo), domain.ErrInvalidState)
}

func TestResolvedMarket_RejectsTradesAndUpdates(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)
	clock.Advance(25 * time.Hour)
	require.NoError(t, e.ResolveMarket(id, domain.OutcomeNo))

	_, err := e.PlaceOrder(user1, id, true, amt(100), 5000)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = e.SellShares(user1, id, true, amt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.ErrorIs(t, e.UpdatePrice(oracle, id, 6000), domain.ErrInvalidState)
}

func TestClaimRewards_ProRataAndConservation(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	// user1: 300 on Yes, user2: 100 on Yes, a third party stakes the No side.
	_, err := e.PlaceOrder(user1, id, true, amt(300), 5000)
	require.NoError(t, err)
	_, err = e.PlaceOrder(user2, id, true, amt(100), 5000)
	require.NoError(t, err)
	_, err = e.PlaceOrder(owner, id, false, amt(400), 5000)
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	require.NoError(t, e.ResolveMarket(id, domain.OutcomeYes))

	// Pool = 800; user1 holds 600 of 800 winning shares, user2 holds 200.
	p1, err := e.ClaimRewards(user1, id)
	require.NoError(t, err)
	assert.Equal(t, int64(600), p1.Int64())

	p2, err := e.ClaimRewards(user2, id)
	require.NoError(t, err)
	assert.Equal(t, int64(200), p2.Int64())

	// The pool is fully distributed.
	m, err := e.GetMarketInfo(id)
	require.NoError(t, err)
	assert.Zero(t, m.Pool.Sign())
}

func TestClaimRewards_DoubleClaim(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	_, err := e.PlaceOrder(user1, id, true, amt(100), 5000)
	require.NoError(t, err)
	_, err = e.PlaceOrder(user2, id, false, amt(100), 5000)
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	require.NoError(t, e.ResolveMarket(id, domain.OutcomeYes))

	payout, err := e.ClaimRewards(user1, id)
	require.NoError(t, err)
	assert.Positive(t, payout.Sign())

	_, err = e.ClaimRewards(user1, id)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	// Claiming zeroes both balances.
	pos, err := e.GetPosition(id, user1)
	require.NoError(t, err)
	assert.True(t, pos.Claimed)
	assert.Zero(t, pos.YesShares.Sign())
	assert.Zero(t, pos.NoShares.Sign())
}

func TestClaimRewards_LoserAndNonParticipant(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	_, err := e.PlaceOrder(user1, id, true, amt(100), 5000)
	require.NoError(t, err)
	_, err = e.PlaceOrder(user2, id, false, amt(100), 5000)
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	require.NoError(t, e.ResolveMarket(id, domain.OutcomeYes))

	_, err = e.ClaimRewards(user2, id)
	assert.ErrorIs(t, err, domain.ErrNoPosition)

	_, err = e.ClaimRewards(owner, id)
	assert.ErrorIs(t, err, domain.ErrNoPosition)
}

func TestRejectedOperations_LeaveNoPositionBehind(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	_, err := e.PlaceOrder(user1, id, true, amt(100), 5000)
	require.NoError(t, err)
	_, err = e.PlaceOrder(user2, id, false, amt(100), 5000)
	require.NoError(t, err)

	// A stranger selling shares is rejected without opening a position.
	_, err = e.SellShares(owner, id, true, amt(10))
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	clock.Advance(25 * time.Hour)
	require.NoError(t, e.ResolveMarket(id, domain.OutcomeYes))

	// Same for a stranger's claim on the resolved market.
	_, err = e.ClaimRewards(owner, id)
	assert.ErrorIs(t, err, domain.ErrNoPosition)

	positions, err := e.PositionsByMarket(id)
	require.NoError(t, err)
	assert.Len(t, positions, 2)
	for _, p := range positions {
		assert.NotEqual(t, owner, p.Holder)
	}
}

func TestClaimRewards_BeforeResolution(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	_, err := e.PlaceOrder(user1, id, true, amt(100), 5000)
	require.NoError(t, err)

	_, err = e.ClaimRewards(user1, id)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestClaimRewards_SeededLiquidityJoinsPool(t *testing.T) {
	e, clock := newTestEngine(t)
	id, err := e.CreateMarketWithLiquidity("Seeded", clock.now.Add(24*time.Hour), amt(500), amt(500), 5000)
	require.NoError(t, err)

	_, err = e.PlaceOrder(user1, id, true, amt(100), 5000)
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	require.NoError(t, e.ResolveMarket(id, domain.OutcomeYes))

	// Pool = 500 + 500 + 100; user1 holds all 200 winning shares.
	payout, err := e.ClaimRewards(user1, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), payout.Int64())
}

func TestClaimRewards_DustGoesToLastClaimant(t *testing.T) {
	e, clock := newTestEngine(t)
	id := createTestMarket(t, e, clock)

	// Three equal Yes holders; pool of 1000 does not divide by 3 evenly.
	users := []common.Address{user1, user2, owner}
	for _, u := range users {
		_, err := e.PlaceOrder(u, id, true, amt(100), 5000)
		require.NoError(t, err)
	}
	_, err := e.PlaceOrder(oracle, id, false, amt(700), 5000)
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	require.NoError(t, e.ResolveMarket(id, domain.OutcomeYes))

	total := new(big.Int)
	for _, u := range users {
		payout, err := e.ClaimRewards(u, id)
		require.NoError(t, err)
		total.Add(total, payout)
	}

	// Every unit of the 1000-unit pool is paid out, none minted.
	assert.Equal(t, int64(1000), total.Int64())
	m, err := e.GetMarketInfo(id)
	require.NoError(t, err)
	assert.Zero(t, m.Pool.Sign())
}
