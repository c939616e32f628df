package testutil

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leviathan-news/auction-block/house"
	"github.com/leviathan-news/auction-block/token"
	"github.com/leviathan-news/auction-block/zap"
)

// Well-known fixture accounts.
const (
	Deployer    = token.Account("deployer")
	FeeReceiver = token.Account("fee-receiver")
	Escrow      = token.Account("house-escrow")
	Alice       = token.Account("alice")
	Bob         = token.Account("bob")
	Charlie     = token.Account("charlie")
)

// UserMintAmount is the payment-token balance every fixture user starts with.
var UserMintAmount = E18(1_000_000)

// E18 returns n scaled to 18 decimals.
func E18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed reference instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the clock's current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Fixture bundles a wired House with its collaborators.
type Fixture struct {
	House   *house.House
	Payment *token.Ledger
	Clock   *Clock
}

// NewFixture builds a House with the reference deployment parameters and
// funds the standard users, each with an unlimited approval to the escrow.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()
	return newFixture(t, false)
}

// NewFixtureStrict is NewFixture with withdrawals gated on settlement.
func NewFixtureStrict(t *testing.T) *Fixture {
	t.Helper()
	return newFixture(t, true)
}

func newFixture(t *testing.T, settledOnly bool) *Fixture {
	t.Helper()

	clock := NewClock()
	payment := token.NewLedger("SQUID")

	h, err := house.New(&house.Config{
		Payment:                payment,
		Account:                Escrow,
		Owner:                  Deployer,
		FeeReceiver:            FeeReceiver,
		SettledOnlyWithdrawals: settledOnly,
		Clock:                  clock,
	})
	require.NoError(t, err)

	for _, user := range []token.Account{Alice, Bob, Charlie} {
		require.NoError(t, payment.Mint(user, new(big.Int).Set(UserMintAmount)))
		require.NoError(t, payment.Approve(user, Escrow, new(big.Int).Set(UserMintAmount)))
	}

	return &Fixture{House: h, Payment: payment, Clock: clock}
}

// CreateAuction opens an auction with default params and returns its id.
func (f *Fixture) CreateAuction(t *testing.T) uint64 {
	t.Helper()
	id, err := f.House.CreateAuction(Deployer, "QmX7L1eLwg9vZ4VBWwHx5KPByYdqhMDDWBJkV8oNJPpqbN")
	require.NoError(t, err)
	return id
}

// Bid places a plain bid and fails the test on error.
func (f *Fixture) Bid(t *testing.T, bidder token.Account, auctionID uint64, total *big.Int) {
	t.Helper()
	require.NoError(t, f.House.PlaceBid(bidder, auctionID, total, house.BidOptions{}))
}

// MinTotal returns the current minimum total bid.
func (f *Fixture) MinTotal(t *testing.T, auctionID uint64) *big.Int {
	t.Helper()
	min, err := f.House.MinimumTotalBid(auctionID)
	require.NoError(t, err)
	return min
}

// EndAuction advances the clock past the auction's end.
func (f *Fixture) EndAuction(t *testing.T, auctionID uint64) {
	t.Helper()
	remaining, err := f.House.RemainingTime(auctionID)
	require.NoError(t, err)
	f.Clock.Advance(remaining + time.Second)
}

// RequireConservation asserts the escrow invariant: the payment balance held
// by the engine equals live winning bids plus all pending returns.
func (f *Fixture) RequireConservation(t *testing.T) {
	t.Helper()
	balance := f.Payment.BalanceOf(Escrow)
	obligations := f.House.Obligations()
	require.Zero(t, balance.Cmp(obligations),
		"conservation violated: escrow balance %s, obligations %s", balance, obligations)
}

// PoolFixture bundles a funded two-coin pool and its adapter.
type PoolFixture struct {
	Pool *zap.Pool
	Zap  *zap.PoolZap
	WETH *token.Ledger
}

// NewPoolFixture seeds a WETH/payment pool at roughly a 2:1 rate and funds
// the standard users with WETH approved to the pool.
func NewPoolFixture(t *testing.T, payment *token.Ledger) *PoolFixture {
	t.Helper()

	weth := token.NewLedger("WETH")
	pool := zap.NewPool("pool", weth, payment, 30)

	lp := token.Account("lp")
	require.NoError(t, weth.Mint(lp, E18(100_000)))
	require.NoError(t, payment.Mint(lp, E18(200_000)))
	require.NoError(t, weth.Approve(lp, pool.Account(), E18(100_000)))
	require.NoError(t, payment.Approve(lp, pool.Account(), E18(200_000)))
	require.NoError(t, pool.AddLiquidity(lp, E18(100_000), E18(200_000)))

	for _, user := range []token.Account{Alice, Bob, Charlie} {
		require.NoError(t, weth.Mint(user, E18(10_000)))
		require.NoError(t, weth.Approve(user, pool.Account(), E18(10_000)))
	}

	return &PoolFixture{
		Pool: pool,
		Zap:  zap.NewPoolZap(pool, 0, 1, 0),
		WETH: weth,
	}
}
