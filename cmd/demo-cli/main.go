// Command demo-cli runs a scripted auction against the in-memory ledger.
//
// The script mirrors a typical lot lifecycle: a bid war with a displaced
// bidder, a credit-funded rebid, settlement with the fee split, and the
// loser withdrawing their pending return. After every step it checks that
// the escrow balance matches the engine's outstanding obligations.
//
// # Usage
//
//	go run ./cmd/demo-cli
package main

import (
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/leviathan-news/auction-block/house"
	"github.com/leviathan-news/auction-block/token"
)

// manualClock lets the demo jump past the auction deadline.
type manualClock struct {
	now time.Time
}

func newManualClock() *manualClock             { return &manualClock{now: time.Now()} }
func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) advance(d time.Duration) { c.now = c.now.Add(d) }

const (
	deployer = token.Account("deployer")
	escrow   = token.Account("demo-escrow")
	alice    = token.Account("alice")
	bob      = token.Account("bob")
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func main() {
	if err := run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	payment := token.NewLedger("SQUID")
	clock := newManualClock()

	h, err := house.New(&house.Config{
		Payment: payment,
		Account: escrow,
		Owner:   deployer,
		Clock:   clock,
		Log:     log,
	})
	if err != nil {
		return err
	}

	for _, user := range []token.Account{alice, bob} {
		if err := payment.Mint(user, e18(10_000)); err != nil {
			return err
		}
		if err := payment.Approve(user, escrow, e18(10_000)); err != nil {
			return err
		}
	}

	params := house.DefaultParams()
	params.ReservePrice = e18(100)
	id, err := h.CreateCustomAuction(deployer, params, "demo lot")
	if err != nil {
		return err
	}
	fmt.Printf("Auction %d open: reserve %s, increment 5%%\n", id, params.ReservePrice)

	steps := []struct {
		desc   string
		bidder token.Account
		total  *big.Int
	}{
		{"alice opens at the reserve", alice, e18(100)},
		{"bob outbids", bob, e18(110)},
		{"alice rebids, credit covers all but the gap", alice, e18(120)},
	}
	for _, step := range steps {
		before := payment.BalanceOf(step.bidder)
		if err := h.PlaceBid(step.bidder, id, step.total, house.BidOptions{}); err != nil {
			return fmt.Errorf("%s: %w", step.desc, err)
		}
		moved := new(big.Int).Sub(before, payment.BalanceOf(step.bidder))
		fmt.Printf("%-45s total %s, transferred %s\n", step.desc, step.total, moved)
		if err := checkConservation(h, payment); err != nil {
			return err
		}
	}

	clock.advance(params.Duration + params.TimeBuffer)

	s, err := h.Settle(id)
	if err != nil {
		return err
	}
	fmt.Printf("Settled: winner %s paid %s (fee %s, proceeds %s)\n", s.Winner, s.Amount, s.Fee, s.Proceeds)
	if err := checkConservation(h, payment); err != nil {
		return err
	}

	if err := h.Withdraw(bob, id, ""); err != nil {
		return err
	}
	fmt.Printf("Bob withdrew his displaced bid; balance %s\n", payment.BalanceOf(bob))
	if err := checkConservation(h, payment); err != nil {
		return err
	}

	fmt.Println("Conservation held after every step.")
	return nil
}

func checkConservation(h *house.House, payment *token.Ledger) error {
	balance := payment.BalanceOf(escrow)
	obligations := h.Obligations()
	if balance.Cmp(obligations) != 0 {
		return fmt.Errorf("conservation violated: escrow %s, obligations %s", balance, obligations)
	}
	return nil
}
