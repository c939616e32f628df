package house_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leviathan-news/auction-block/house"
	"github.com/leviathan-news/auction-block/testutil"
)

func customAuction(t *testing.T, f *testutil.Fixture, p house.Params) uint64 {
	t.Helper()
	id, err := f.House.CreateCustomAuction(testutil.Deployer, p, "")
	require.NoError(t, err)
	return id
}

func smallAuctionParams() house.Params {
	p := house.DefaultParams()
	p.ReservePrice = testutil.E18(100)
	return p
}

func TestPlaceBid_ReserveAndIncrementScenario(t *testing.T) {
	f := testutil.NewFixture(t)
	id := customAuction(t, f, smallAuctionParams())

	// Reserve 100, increment 5%.
	require.ErrorIs(t,
		f.House.PlaceBid(testutil.Alice, id, testutil.E18(99), house.BidOptions{}),
		house.ErrBelowReserve)

	f.Bid(t, testutil.Alice, id, testutil.E18(100))

	require.ErrorIs(t,
		f.House.PlaceBid(testutil.Bob, id, testutil.E18(104), house.BidOptions{}),
		house.ErrBelowIncrement)

	f.Bid(t, testutil.Bob, id, testutil.E18(105))

	// Alice was displaced: her full 100 is now pending.
	assert.Zero(t, f.House.AuctionPendingReturns(id, testutil.Alice).Cmp(testutil.E18(100)))

	// Rebidding to 111 consumes the 100 credit: only 11 moves.
	before := f.Payment.BalanceOf(testutil.Alice)
	f.Bid(t, testutil.Alice, id, testutil.E18(111))
	after := f.Payment.BalanceOf(testutil.Alice)

	assert.Zero(t, new(big.Int).Sub(before, after).Cmp(testutil.E18(11)))
	assert.Zero(t, f.House.AuctionPendingReturns(id, testutil.Alice).Sign())

	a, err := f.House.Auction(id)
	require.NoError(t, err)
	assert.Equal(t, testutil.Alice, a.Bidder)
	assert.Zero(t, a.Amount.Cmp(testutil.E18(111)))

	f.RequireConservation(t)
}

func TestPlaceBid_MinimumViews(t *testing.T) {
	f := testutil.NewFixture(t)
	id := f.CreateAuction(t)

	min := f.MinTotal(t, id)
	assert.Zero(t, min.Cmp(f.House.Defaults().ReservePrice))

	f.Bid(t, testutil.Alice, id, min)

	// Next minimum is winning amount plus 5%.
	expected := new(big.Int).Mul(min, big.NewInt(105))
	expected.Div(expected, big.NewInt(100))
	assert.Zero(t, f.MinTotal(t, id).Cmp(expected))

	// Bob has no credit, so his additional equals the total.
	additional, err := f.House.MinimumAdditionalBidFor(id, testutil.Bob)
	require.NoError(t, err)
	assert.Zero(t, additional.Cmp(expected))

	// Outbid Alice; her additional nets out the pending credit.
	f.Bid(t, testutil.Bob, id, expected)
	nextMin := f.MinTotal(t, id)
	aliceAdditional, err := f.House.MinimumAdditionalBidFor(id, testutil.Alice)
	require.NoError(t, err)
	wantAdditional := new(big.Int).Sub(nextMin, f.House.PendingReturns(testutil.Alice))
	assert.Zero(t, aliceAdditional.Cmp(wantAdditional))
}

func TestPlaceBid_MinimumViewsErrorStates(t *testing.T) {
	f := testutil.NewFixture(t)

	_, err := f.House.MinimumTotalBid(999)
	require.ErrorIs(t, err, house.ErrAuctionNotFound)
	_, err = f.House.MinimumAdditionalBidFor(999, testutil.Alice)
	require.ErrorIs(t, err, house.ErrAuctionNotFound)

	id := f.CreateAuction(t)
	f.EndAuction(t, id)
	_, err = f.House.Settle(id)
	require.NoError(t, err)

	_, err = f.House.MinimumTotalBid(id)
	require.ErrorIs(t, err, house.ErrAuctionSettled)
	_, err = f.House.MinimumAdditionalBidFor(id, testutil.Alice)
	require.ErrorIs(t, err, house.ErrAuctionSettled)
}

func TestPlaceBid_BidByUser(t *testing.T) {
	f := testutil.NewFixture(t)
	id := f.CreateAuction(t)

	stake, err := f.House.BidByUser(id, testutil.Alice)
	require.NoError(t, err)
	assert.Zero(t, stake.Sign())

	min := f.MinTotal(t, id)
	f.Bid(t, testutil.Alice, id, min)
	stake, err = f.House.BidByUser(id, testutil.Alice)
	require.NoError(t, err)
	assert.Zero(t, stake.Cmp(min))

	// After displacement the stake is the pending return.
	f.Bid(t, testutil.Bob, id, f.MinTotal(t, id))
	stake, err = f.House.BidByUser(id, testutil.Alice)
	require.NoError(t, err)
	assert.Zero(t, stake.Cmp(min))
}

func TestPlaceBid_SelfTopUp(t *testing.T) {
	f := testutil.NewFixture(t)
	id := customAuction(t, f, smallAuctionParams())

	f.Bid(t, testutil.Alice, id, testutil.E18(100))

	// Raising one's own winning bid transfers only the delta, and still
	// has to clear the increment over the previous amount.
	require.ErrorIs(t,
		f.House.PlaceBid(testutil.Alice, id, testutil.E18(101), house.BidOptions{}),
		house.ErrBelowIncrement)

	before := f.Payment.BalanceOf(testutil.Alice)
	f.Bid(t, testutil.Alice, id, testutil.E18(120))
	spent := new(big.Int).Sub(before, f.Payment.BalanceOf(testutil.Alice))
	assert.Zero(t, spent.Cmp(testutil.E18(20)))

	f.RequireConservation(t)
}

func TestPlaceBid_StateErrors(t *testing.T) {
	f := testutil.NewFixture(t)

	err := f.House.PlaceBid(testutil.Alice, 42, testutil.E18(100), house.BidOptions{})
	require.ErrorIs(t, err, house.ErrAuctionNotFound)

	id := f.CreateAuction(t)
	f.EndAuction(t, id)
	err = f.House.PlaceBid(testutil.Alice, id, f.House.Defaults().ReservePrice, house.BidOptions{})
	require.ErrorIs(t, err, house.ErrAuctionExpired)

	_, err = f.House.Settle(id)
	require.NoError(t, err)
	err = f.House.PlaceBid(testutil.Alice, id, f.House.Defaults().ReservePrice, house.BidOptions{})
	require.ErrorIs(t, err, house.ErrAuctionSettled)
}

func TestPlaceBid_Paused(t *testing.T) {
	f := testutil.NewFixture(t)
	id := f.CreateAuction(t)

	require.NoError(t, f.House.Pause(testutil.Deployer))
	err := f.House.PlaceBid(testutil.Alice, id, f.House.Defaults().ReservePrice, house.BidOptions{})
	require.ErrorIs(t, err, house.ErrPaused)

	require.NoError(t, f.House.Unpause(testutil.Deployer))
	f.Bid(t, testutil.Alice, id, f.House.Defaults().ReservePrice)
}

func TestPlaceBid_Delegation(t *testing.T) {
	f := testutil.NewFixture(t)
	id := f.CreateAuction(t)
	min := f.MinTotal(t, id)

	// Bob may not bid for Alice without approval.
	err := f.House.PlaceBid(testutil.Bob, id, min, house.BidOptions{OnBehalfOf: testutil.Alice})
	require.ErrorIs(t, err, house.ErrNotApproved)

	// WithdrawOnly does not grant bidding.
	require.NoError(t, f.House.SetApprovedCaller(testutil.Alice, testutil.Bob, house.ApprovalWithdrawOnly))
	err = f.House.PlaceBid(testutil.Bob, id, min, house.BidOptions{OnBehalfOf: testutil.Alice})
	require.ErrorIs(t, err, house.ErrNotApproved)

	// BidOnly does; the funds are pulled from Alice, never from Bob.
	require.NoError(t, f.House.SetApprovedCaller(testutil.Alice, testutil.Bob, house.ApprovalBidOnly))
	bobBefore := f.Payment.BalanceOf(testutil.Bob)
	aliceBefore := f.Payment.BalanceOf(testutil.Alice)
	require.NoError(t, f.House.PlaceBid(testutil.Bob, id, min, house.BidOptions{OnBehalfOf: testutil.Alice}))

	assert.Zero(t, f.Payment.BalanceOf(testutil.Bob).Cmp(bobBefore))
	assert.Zero(t, new(big.Int).Sub(aliceBefore, f.Payment.BalanceOf(testutil.Alice)).Cmp(min))

	a, err := f.House.Auction(id)
	require.NoError(t, err)
	assert.Equal(t, testutil.Alice, a.Bidder)

	// Revocation takes effect on the next call.
	require.NoError(t, f.House.SetApprovedCaller(testutil.Alice, testutil.Bob, house.ApprovalNone))
	err = f.House.PlaceBid(testutil.Bob, id, f.MinTotal(t, id), house.BidOptions{OnBehalfOf: testutil.Alice})
	require.ErrorIs(t, err, house.ErrNotApproved)
}

func TestPlaceBid_AntiSnipeExtension(t *testing.T) {
	f := testutil.NewFixture(t)
	id := f.CreateAuction(t)

	before, err := f.House.Auction(id)
	require.NoError(t, err)

	// A bid well before the buffer window leaves the deadline alone.
	f.Bid(t, testutil.Alice, id, f.MinTotal(t, id))
	mid, err := f.House.Auction(id)
	require.NoError(t, err)
	assert.True(t, mid.EndTime.Equal(before.EndTime))

	// A bid inside the buffer window pushes the deadline to now+buffer.
	f.Clock.Advance(23*time.Hour + 30*time.Minute)
	f.Bid(t, testutil.Bob, id, f.MinTotal(t, id))
	after, err := f.House.Auction(id)
	require.NoError(t, err)

	wantEnd := f.Clock.Now().Add(f.House.Defaults().TimeBuffer)
	assert.True(t, after.EndTime.Equal(wantEnd))
	assert.True(t, after.EndTime.After(before.EndTime), "extension never shortens the auction")
}

func TestPlaceBid_Instabuy(t *testing.T) {
	f := testutil.NewFixture(t)

	p := smallAuctionParams()
	p.InstabuyPrice = testutil.E18(200)
	id := customAuction(t, f, p)

	// Below the instabuy price, the auction stays live.
	f.Bid(t, testutil.Alice, id, testutil.E18(150))
	live, err := f.House.IsLive(id)
	require.NoError(t, err)
	assert.True(t, live)

	// Meeting it settles immediately, fee split included.
	feeBefore := f.Payment.BalanceOf(testutil.FeeReceiver)
	f.Bid(t, testutil.Bob, id, testutil.E18(200))

	a, err := f.House.Auction(id)
	require.NoError(t, err)
	assert.True(t, a.Settled)

	fee := new(big.Int).Sub(f.Payment.BalanceOf(testutil.FeeReceiver), feeBefore)
	assert.Zero(t, fee.Cmp(testutil.E18(10))) // 5% of 200

	// Alice's displaced 150 is still recoverable.
	assert.Zero(t, f.House.AuctionPendingReturns(id, testutil.Alice).Cmp(testutil.E18(150)))
	f.RequireConservation(t)
}

func TestPlaceBid_InsufficientFunds(t *testing.T) {
	f := testutil.NewFixture(t)
	id := f.CreateAuction(t)

	// Bids above Alice's balance fail atomically: no auction mutation,
	// no stranded pending entry.
	huge := new(big.Int).Mul(testutil.UserMintAmount, big.NewInt(2))
	err := f.House.PlaceBid(testutil.Alice, id, huge, house.BidOptions{})
	require.Error(t, err)

	a, err := f.House.Auction(id)
	require.NoError(t, err)
	assert.Zero(t, a.Amount.Sign())
	assert.Empty(t, string(a.Bidder))
	f.RequireConservation(t)
}

func TestPlaceBid_DisplacementRollback(t *testing.T) {
	f := testutil.NewFixture(t)
	id := customAuction(t, f, smallAuctionParams())

	f.Bid(t, testutil.Alice, id, testutil.E18(100))

	// Bob's failed overbid must not leave Alice displaced.
	huge := new(big.Int).Mul(testutil.UserMintAmount, big.NewInt(2))
	err := f.House.PlaceBid(testutil.Bob, id, huge, house.BidOptions{})
	require.Error(t, err)

	a, err := f.House.Auction(id)
	require.NoError(t, err)
	assert.Equal(t, testutil.Alice, a.Bidder)
	assert.Zero(t, f.House.PendingReturns(testutil.Alice).Sign())
	f.RequireConservation(t)
}

func TestBidMetadata(t *testing.T) {
	f := testutil.NewFixture(t)
	id := customAuction(t, f, smallAuctionParams())

	require.NoError(t, f.House.PlaceBid(testutil.Alice, id, testutil.E18(100),
		house.BidOptions{Metadata: "ipfs://first"}))
	assert.Equal(t, "ipfs://first", f.House.BidMetadata(id, testutil.Alice))

	// A later bid without metadata keeps the original.
	f.Bid(t, testutil.Bob, id, testutil.E18(105))
	require.NoError(t, f.House.PlaceBid(testutil.Alice, id, testutil.E18(120), house.BidOptions{}))
	assert.Equal(t, "ipfs://first", f.House.BidMetadata(id, testutil.Alice))

	// The owner can overwrite their own entry.
	require.NoError(t, f.House.UpdateBidMetadata(testutil.Alice, id, "ipfs://second"))
	assert.Equal(t, "ipfs://second", f.House.BidMetadata(id, testutil.Alice))

	// Another account writes its own key, not Alice's.
	require.NoError(t, f.House.UpdateBidMetadata(testutil.Bob, id, "ipfs://bob"))
	assert.Equal(t, "ipfs://second", f.House.BidMetadata(id, testutil.Alice))

	require.ErrorIs(t, f.House.UpdateBidMetadata(testutil.Alice, 999, "x"), house.ErrAuctionNotFound)
}

func TestCreateAuction_Permissions(t *testing.T) {
	f := testutil.NewFixture(t)

	_, err := f.House.CreateAuction(testutil.Alice, "")
	require.ErrorIs(t, err, house.ErrNotManager)

	require.NoError(t, f.House.SetAuctionManager(testutil.Deployer, testutil.Alice, true))
	id, err := f.House.CreateAuction(testutil.Alice, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	require.NoError(t, f.House.SetAuctionManager(testutil.Deployer, testutil.Alice, false))
	_, err = f.House.CreateAuction(testutil.Alice, "")
	require.ErrorIs(t, err, house.ErrNotManager)
}

func TestCreateCustomAuction_Validation(t *testing.T) {
	f := testutil.NewFixture(t)

	p := house.DefaultParams()
	p.MinIncrementPct = house.Precision / 2 // 50%
	_, err := f.House.CreateCustomAuction(testutil.Deployer, p, "")
	require.ErrorIs(t, err, house.ErrInvalidParams)

	p = house.DefaultParams()
	p.Duration = time.Minute
	_, err = f.House.CreateCustomAuction(testutil.Deployer, p, "")
	require.ErrorIs(t, err, house.ErrInvalidParams)

	p = house.DefaultParams()
	p.ReservePrice = big.NewInt(0)
	_, err = f.House.CreateCustomAuction(testutil.Deployer, p, "")
	require.ErrorIs(t, err, house.ErrInvalidParams)
}

func TestCreateAuctionByDeadline(t *testing.T) {
	f := testutil.NewFixture(t)

	deadline := f.Clock.Now().Add(48 * time.Hour)
	id, err := f.House.CreateAuctionByDeadline(testutil.Deployer, deadline, smallAuctionParams(), "")
	require.NoError(t, err)

	a, err := f.House.Auction(id)
	require.NoError(t, err)
	assert.True(t, a.EndTime.Equal(deadline))

	// A deadline in the past fails the duration bound.
	_, err = f.House.CreateAuctionByDeadline(testutil.Deployer, f.Clock.Now().Add(-time.Hour), smallAuctionParams(), "")
	require.ErrorIs(t, err, house.ErrInvalidParams)
}

func TestActiveAuctions(t *testing.T) {
	f := testutil.NewFixture(t)

	assert.Empty(t, f.House.ActiveAuctions())

	first := f.CreateAuction(t)
	second := f.CreateAuction(t)
	third := f.CreateAuction(t)
	assert.Equal(t, []uint64{first, second, third}, f.House.ActiveAuctions())

	// All three share a deadline, so advancing past it empties the set.
	f.EndAuction(t, first)
	assert.Empty(t, f.House.ActiveAuctions())
}
