package house

import (
	"math/big"
	"time"

	"github.com/leviathan-news/auction-block/token"
)

// Precision is the denominator for all scaled percentages: a value of
// Precision is 100%, so 5% is 5e8.
const Precision = 10_000_000_000

// Parameter bounds. Increments outside this window either stall an auction
// or lock bidders out; durations outside it are either unsettleable dust or
// effectively permanent escrow.
const (
	MinIncrementPct = Precision / 100      // 1%
	MaxIncrementPct = 15 * Precision / 100 // 15%
	MinDuration     = time.Hour
	MaxDuration     = 30 * 24 * time.Hour
)

// Scan caps, enforced rather than assumed.
const (
	// MaxActiveAuctions bounds the ActiveAuctions view.
	MaxActiveAuctions = 1000
	// MaxWithdrawBatch bounds WithdrawMany lists.
	MaxWithdrawBatch = 100
	// MaxSupportedTokens bounds the trading registry.
	MaxSupportedTokens = 100
)

// Params are the per-auction knobs. A zero Beneficiary routes proceeds to
// the protocol owner; a zero or nil InstabuyPrice disables instant buyout.
type Params struct {
	TimeBuffer      time.Duration
	ReservePrice    *big.Int
	MinIncrementPct uint64
	Duration        time.Duration
	InstabuyPrice   *big.Int
	Beneficiary     token.Account
}

// Validate checks the parameter bounds.
func (p *Params) Validate() error {
	if p.ReservePrice == nil || p.ReservePrice.Sign() <= 0 {
		return errInvalid("reserve price must be positive")
	}
	if p.MinIncrementPct < MinIncrementPct || p.MinIncrementPct > MaxIncrementPct {
		return errInvalid("increment percentage out of range")
	}
	if p.Duration < MinDuration || p.Duration > MaxDuration {
		return errInvalid("duration out of range")
	}
	if p.TimeBuffer < 0 || p.TimeBuffer > p.Duration {
		return errInvalid("time buffer out of range")
	}
	if p.InstabuyPrice != nil && p.InstabuyPrice.Sign() < 0 {
		return errInvalid("instabuy price must not be negative")
	}
	return nil
}

// clone deep-copies the params so callers cannot alias engine state.
func (p Params) clone() Params {
	out := p
	if p.ReservePrice != nil {
		out.ReservePrice = new(big.Int).Set(p.ReservePrice)
	}
	if p.InstabuyPrice != nil {
		out.InstabuyPrice = new(big.Int).Set(p.InstabuyPrice)
	}
	return out
}

// instabuyEnabled reports whether the lot can be bought out instantly.
func (p *Params) instabuyEnabled() bool {
	return p.InstabuyPrice != nil && p.InstabuyPrice.Sign() > 0
}

// Auction is a single-lot English auction. Amount and Bidder track the
// current winning position; Amount == 0 exactly when Bidder is empty. Once
// Settled flips, the auction is terminal.
type Auction struct {
	ID        uint64
	Amount    *big.Int
	Bidder    token.Account
	StartTime time.Time
	EndTime   time.Time
	Settled   bool
	Metadata  string
	Params    Params
}

// clone returns a detached copy safe to hand to callers.
func (a *Auction) clone() Auction {
	out := *a
	out.Amount = new(big.Int).Set(a.Amount)
	out.Params = a.Params.clone()
	return out
}

// live reports whether the auction accepts bids at the given time.
func (a *Auction) live(now time.Time) bool {
	return !a.Settled && !now.Before(a.StartTime) && !now.After(a.EndTime)
}

func errInvalid(msg string) error {
	return &paramError{msg: msg}
}

// paramError carries a detail message while matching ErrInvalidParams.
type paramError struct {
	msg string
}

func (e *paramError) Error() string { return "invalid auction parameters: " + e.msg }

func (e *paramError) Is(target error) bool { return target == ErrInvalidParams }
