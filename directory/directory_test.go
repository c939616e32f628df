package directory_test

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leviathan-news/auction-block/directory"
	"github.com/leviathan-news/auction-block/house"
	"github.com/leviathan-news/auction-block/services"
	"github.com/leviathan-news/auction-block/testutil"
	"github.com/leviathan-news/auction-block/token"
)

const dirAccount = token.Account("directory")

type countingMinter struct {
	next   uint64
	minted []token.Account
	fail   bool
}

func (m *countingMinter) Mint(recipient token.Account, houseName string, auctionID uint64) (uint64, error) {
	if m.fail {
		return 0, errors.New("mint refused")
	}
	m.next++
	m.minted = append(m.minted, recipient)
	return m.next, nil
}

type fixedOracle struct{ price *big.Int }

func (o *fixedOracle) PriceUSD() (*big.Int, error) { return new(big.Int).Set(o.price), nil }

type dirFixture struct {
	*testutil.Fixture
	Dir    *directory.Directory
	Minter *countingMinter
	Store  *services.MemoryStore
}

// newDirFixture wires a house that trusts the directory account, with an
// award minter and an in-memory settlement store attached.
func newDirFixture(t *testing.T) *dirFixture {
	t.Helper()
	f := testutil.NewFixture(t)

	minter := &countingMinter{}
	store := services.NewMemoryStore()
	d, err := directory.New(&directory.Config{
		Account: dirAccount,
		Owner:   testutil.Deployer,
		Payment: f.Payment,
		Minter:  minter,
		Store:   store,
	})
	require.NoError(t, err)

	require.NoError(t, f.House.SetApprovedDirectory(testutil.Deployer, dirAccount))
	require.NoError(t, d.RegisterHouse(testutil.Deployer, "main", f.House))

	return &dirFixture{Fixture: f, Dir: d, Minter: minter, Store: store}
}

func TestRegisterHouse(t *testing.T) {
	df := newDirFixture(t)

	other, err := house.New(&house.Config{
		Payment:     df.Payment,
		Account:     "second-escrow",
		Owner:       testutil.Deployer,
		FeeReceiver: testutil.FeeReceiver,
		Clock:       df.Clock,
	})
	require.NoError(t, err)

	require.ErrorIs(t, df.Dir.RegisterHouse(testutil.Alice, "side", other), directory.ErrNotOwner)
	require.ErrorIs(t, df.Dir.RegisterHouse(testutil.Deployer, "", other), directory.ErrInvalidName)
	require.ErrorIs(t, df.Dir.RegisterHouse(testutil.Deployer, "main", other), directory.ErrHouseExists)

	foreign, err := house.New(&house.Config{
		Payment:     token.NewLedger("OTHER"),
		Account:     "foreign-escrow",
		Owner:       testutil.Deployer,
		FeeReceiver: testutil.FeeReceiver,
		Clock:       df.Clock,
	})
	require.NoError(t, err)
	require.ErrorIs(t, df.Dir.RegisterHouse(testutil.Deployer, "foreign", foreign), directory.ErrPaymentMismatch)

	require.NoError(t, df.Dir.RegisterHouse(testutil.Deployer, "side", other))
	assert.Equal(t, []string{"main", "side"}, df.Dir.Houses())

	got, err := df.Dir.House("side")
	require.NoError(t, err)
	assert.Same(t, other, got)
	_, err = df.Dir.House("nope")
	require.ErrorIs(t, err, directory.ErrHouseNotFound)
}

func TestRegisterHouse_Cap(t *testing.T) {
	df := newDirFixture(t)

	for i := 1; i < directory.MaxHouses; i++ {
		h, err := house.New(&house.Config{
			Payment:     df.Payment,
			Account:     token.Account(fmt.Sprintf("escrow-%d", i)),
			Owner:       testutil.Deployer,
			FeeReceiver: testutil.FeeReceiver,
			Clock:       df.Clock,
		})
		require.NoError(t, err)
		require.NoError(t, df.Dir.RegisterHouse(testutil.Deployer, fmt.Sprintf("house-%d", i), h))
	}

	extra, err := house.New(&house.Config{
		Payment:     df.Payment,
		Account:     "escrow-overflow",
		Owner:       testutil.Deployer,
		FeeReceiver: testutil.FeeReceiver,
		Clock:       df.Clock,
	})
	require.NoError(t, err)
	require.ErrorIs(t, df.Dir.RegisterHouse(testutil.Deployer, "overflow", extra), directory.ErrTooManyHouses)
}

func TestCreateBid_Forwarding(t *testing.T) {
	df := newDirFixture(t)
	id := df.CreateAuction(t)
	min := df.MinTotal(t, id)

	// Self-service needs no directory grant; funds come from the bidder.
	before := df.Payment.BalanceOf(testutil.Alice)
	require.NoError(t, df.Dir.CreateBid(testutil.Alice, "main", id, min, house.BidOptions{}))
	spent := new(big.Int).Sub(before, df.Payment.BalanceOf(testutil.Alice))
	assert.Zero(t, spent.Cmp(min))

	a, err := df.House.Auction(id)
	require.NoError(t, err)
	assert.Equal(t, testutil.Alice, a.Bidder)

	require.ErrorIs(t,
		df.Dir.CreateBid(testutil.Alice, "nope", id, min, house.BidOptions{}),
		directory.ErrHouseNotFound)
}

func TestCreateBid_DirectoryDelegation(t *testing.T) {
	df := newDirFixture(t)
	id := df.CreateAuction(t)
	min := df.MinTotal(t, id)

	// The house's own table does not know Bob; only the directory's grant
	// matters here.
	err := df.Dir.CreateBid(testutil.Bob, "main", id, min, house.BidOptions{OnBehalfOf: testutil.Alice})
	require.ErrorIs(t, err, directory.ErrNotApproved)

	require.NoError(t, df.Dir.SetApprovedCaller(testutil.Alice, testutil.Bob, house.ApprovalBidOnly))
	require.NoError(t,
		df.Dir.CreateBid(testutil.Bob, "main", id, min, house.BidOptions{OnBehalfOf: testutil.Alice}))

	a, err := df.House.Auction(id)
	require.NoError(t, err)
	assert.Equal(t, testutil.Alice, a.Bidder)
}

func TestCreateBid_UntrustedDirectory(t *testing.T) {
	f := testutil.NewFixture(t)
	d, err := directory.New(&directory.Config{
		Account: dirAccount,
		Owner:   testutil.Deployer,
		Payment: f.Payment,
	})
	require.NoError(t, err)
	require.NoError(t, d.RegisterHouse(testutil.Deployer, "main", f.House))

	// Without SetApprovedDirectory the house rejects the forwarded call.
	id := f.CreateAuction(t)
	err = d.CreateBid(testutil.Bob, "main", id, f.MinTotal(t, id), house.BidOptions{OnBehalfOf: testutil.Alice})
	require.Error(t, err)
	require.NoError(t, d.SetApprovedCaller(testutil.Alice, testutil.Bob, house.ApprovalBidOnly))
	err = d.CreateBid(testutil.Bob, "main", id, f.MinTotal(t, id), house.BidOptions{OnBehalfOf: testutil.Alice})
	require.ErrorIs(t, err, house.ErrNotApproved)
}

func TestWithdraw_Forwarding(t *testing.T) {
	df := newDirFixture(t)
	p := house.DefaultParams()
	p.ReservePrice = testutil.E18(100)
	id, err := df.House.CreateCustomAuction(testutil.Deployer, p, "")
	require.NoError(t, err)

	df.Bid(t, testutil.Alice, id, testutil.E18(100))
	df.Bid(t, testutil.Bob, id, testutil.E18(105))

	err = df.Dir.Withdraw(testutil.Charlie, "main", id, testutil.Alice)
	require.ErrorIs(t, err, directory.ErrNotApproved)

	require.NoError(t, df.Dir.SetApprovedCaller(testutil.Alice, testutil.Charlie, house.ApprovalWithdrawOnly))
	before := df.Payment.BalanceOf(testutil.Alice)
	require.NoError(t, df.Dir.Withdraw(testutil.Charlie, "main", id, testutil.Alice))
	gained := new(big.Int).Sub(df.Payment.BalanceOf(testutil.Alice), before)
	assert.Zero(t, gained.Cmp(testutil.E18(100)))

	df.RequireConservation(t)
}

func TestWithdrawMany_Forwarding(t *testing.T) {
	df := newDirFixture(t)
	p := house.DefaultParams()
	p.ReservePrice = testutil.E18(50)

	var ids []uint64
	for i := 0; i < 2; i++ {
		id, err := df.House.CreateCustomAuction(testutil.Deployer, p, "")
		require.NoError(t, err)
		df.Bid(t, testutil.Alice, id, testutil.E18(50))
		df.Bid(t, testutil.Bob, id, testutil.E18(60))
		ids = append(ids, id)
	}

	total, err := df.Dir.WithdrawMany(testutil.Alice, "main", ids, "")
	require.NoError(t, err)
	assert.Zero(t, total.Cmp(testutil.E18(100)))
	df.RequireConservation(t)
}

func TestSettleAuction(t *testing.T) {
	df := newDirFixture(t)
	p := house.DefaultParams()
	p.ReservePrice = testutil.E18(100)
	id, err := df.House.CreateCustomAuction(testutil.Deployer, p, "")
	require.NoError(t, err)
	df.Bid(t, testutil.Alice, id, testutil.E18(100))
	df.EndAuction(t, id)

	result, err := df.Dir.SettleAuction("main", id)
	require.NoError(t, err)

	assert.Equal(t, "main", result.House)
	assert.Equal(t, testutil.Alice, result.Winner)
	assert.Equal(t, uint64(1), result.AwardTokenID)
	assert.Equal(t, []token.Account{testutil.Alice}, df.Minter.minted)

	recs, err := df.Store.LoadSettlements("main")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, string(testutil.Alice), recs[0].Winner)
	assert.Equal(t, testutil.E18(100).String(), recs[0].Amount)
	assert.Equal(t, uint64(1), recs[0].AwardTokenID)

	_, err = df.Dir.SettleAuction("main", id)
	require.ErrorIs(t, err, house.ErrAuctionSettled)
	_, err = df.Dir.SettleAuction("nope", id)
	require.ErrorIs(t, err, directory.ErrHouseNotFound)
}

func TestSettleAuction_NoWinnerSkipsMint(t *testing.T) {
	df := newDirFixture(t)
	id := df.CreateAuction(t)
	df.EndAuction(t, id)

	result, err := df.Dir.SettleAuction("main", id)
	require.NoError(t, err)
	assert.Empty(t, string(result.Winner))
	assert.Zero(t, result.AwardTokenID)
	assert.Empty(t, df.Minter.minted)

	// The empty settlement is still recorded.
	recs, err := df.Store.LoadSettlements("main")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestSettleAuction_MintFailureIsNotFatal(t *testing.T) {
	df := newDirFixture(t)
	df.Minter.fail = true

	p := house.DefaultParams()
	p.ReservePrice = testutil.E18(100)
	id, err := df.House.CreateCustomAuction(testutil.Deployer, p, "")
	require.NoError(t, err)
	df.Bid(t, testutil.Alice, id, testutil.E18(100))
	df.EndAuction(t, id)

	result, err := df.Dir.SettleAuction("main", id)
	require.Error(t, err, "the mint failure is surfaced")

	// But the settlement itself went through and was recorded.
	assert.Equal(t, testutil.Alice, result.Winner)
	a, err2 := df.House.Auction(id)
	require.NoError(t, err2)
	assert.True(t, a.Settled)

	recs, err2 := df.Store.LoadSettlements("main")
	require.NoError(t, err2)
	require.Len(t, recs, 1)
	assert.Zero(t, recs[0].AwardTokenID)
}

func TestActiveAuctionsAcrossHouses(t *testing.T) {
	df := newDirFixture(t)

	second, err := house.New(&house.Config{
		Payment:     df.Payment,
		Account:     "second-escrow",
		Owner:       testutil.Deployer,
		FeeReceiver: testutil.FeeReceiver,
		Clock:       df.Clock,
	})
	require.NoError(t, err)
	require.NoError(t, df.Dir.RegisterHouse(testutil.Deployer, "side", second))

	assert.Empty(t, df.Dir.ActiveAuctions())

	first := df.CreateAuction(t)
	sideID, err := second.CreateAuction(testutil.Deployer, "")
	require.NoError(t, err)

	got := df.Dir.ActiveAuctions()
	require.Len(t, got, 2)
	assert.Equal(t, "main", got[0].House)
	assert.Equal(t, []uint64{first}, got[0].AuctionIDs)
	assert.Equal(t, "side", got[1].House)
	assert.Equal(t, []uint64{sideID}, got[1].AuctionIDs)
}

func TestDeprecation(t *testing.T) {
	df := newDirFixture(t)

	assert.True(t, df.Dir.IsCurrent())
	require.ErrorIs(t, df.Dir.Deprecate(testutil.Alice, "v2"), directory.ErrNotOwner)

	require.NoError(t, df.Dir.Deprecate(testutil.Deployer, "directory-v2"))
	assert.False(t, df.Dir.IsCurrent())
	assert.Equal(t, "directory-v2", df.Dir.Successor())

	// Advisory only: operations keep working.
	id := df.CreateAuction(t)
	require.NoError(t, df.Dir.CreateBid(testutil.Alice, "main", id, df.MinTotal(t, id), house.BidOptions{}))
}

func TestPaymentTokenOracle(t *testing.T) {
	df := newDirFixture(t)

	_, err := df.Dir.PaymentTokenPriceUSD()
	require.ErrorIs(t, err, directory.ErrNoOracle)

	oracle := &fixedOracle{price: big.NewInt(123_456)}
	require.ErrorIs(t, df.Dir.SetPaymentTokenOracle(testutil.Alice, oracle), directory.ErrNotOwner)
	require.NoError(t, df.Dir.SetPaymentTokenOracle(testutil.Deployer, oracle))

	price, err := df.Dir.PaymentTokenPriceUSD()
	require.NoError(t, err)
	assert.Zero(t, price.Cmp(big.NewInt(123_456)))
}

func TestTransferOwnership(t *testing.T) {
	df := newDirFixture(t)

	require.ErrorIs(t, df.Dir.TransferOwnership(testutil.Alice, testutil.Alice), directory.ErrNotOwner)
	require.NoError(t, df.Dir.TransferOwnership(testutil.Deployer, testutil.Alice))
	assert.Equal(t, testutil.Alice, df.Dir.Owner())
	require.ErrorIs(t, df.Dir.Deprecate(testutil.Deployer, "x"), directory.ErrNotOwner)
}
