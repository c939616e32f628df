package house

import (
	"fmt"
	"math/big"
	"time"

	"github.com/leviathan-news/auction-block/token"
)

// Settlement is the outcome of closing an auction. A no-bid settlement has
// an empty Winner and zero amounts.
type Settlement struct {
	AuctionID   uint64        `json:"auction_id"`
	Winner      token.Account `json:"winner,omitempty"`
	Amount      *big.Int      `json:"amount"`
	Fee         *big.Int      `json:"fee"`
	Proceeds    *big.Int      `json:"proceeds"`
	Beneficiary token.Account `json:"beneficiary,omitempty"`
	SettledAt   time.Time     `json:"settled_at"`
}

// Settle closes an ended auction: exactly once, callable by anyone. A
// winning bid is split between the fee receiver and the beneficiary (the
// protocol owner unless the lot overrides it); a no-bid auction settles
// distributing nothing. Other accounts' pending returns are untouched.
func (h *House) Settle(auctionID uint64) (Settlement, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.paused.Load() {
		return Settlement{}, ErrPaused
	}
	a, ok := h.auctions[auctionID]
	if !ok {
		return Settlement{}, ErrAuctionNotFound
	}
	if a.Settled {
		return Settlement{}, ErrAuctionSettled
	}
	if !h.clock.Now().After(a.EndTime) {
		return Settlement{}, ErrAuctionNotEnded
	}
	return h.settleLocked(a, false)
}

// settleLocked marks the auction settled and distributes proceeds. The
// settled flag is committed before the outbound transfers and restored if
// one fails. Lock held.
func (h *House) settleLocked(a *Auction, instabuy bool) (Settlement, error) {
	s := Settlement{
		AuctionID: a.ID,
		Winner:    a.Bidder,
		Amount:    new(big.Int).Set(a.Amount),
		Fee:       new(big.Int),
		Proceeds:  new(big.Int),
		SettledAt: h.clock.Now(),
	}

	a.Settled = true

	if a.Bidder == "" {
		h.log.Info("auction settled with no bids", "auction", a.ID)
		return s, nil
	}

	beneficiary := a.Params.Beneficiary
	if beneficiary == "" {
		beneficiary = h.owner
	}
	s.Beneficiary = beneficiary
	s.Fee = pctOf(a.Amount, h.feePercent)
	s.Proceeds = new(big.Int).Sub(a.Amount, s.Fee)

	if s.Fee.Sign() > 0 {
		if err := h.payment.Transfer(h.account, h.feeReceiver, s.Fee); err != nil {
			a.Settled = false
			return Settlement{}, fmt.Errorf("paying settlement fee: %w", err)
		}
	}
	if s.Proceeds.Sign() > 0 {
		if err := h.payment.Transfer(h.account, beneficiary, s.Proceeds); err != nil {
			if s.Fee.Sign() > 0 {
				h.payment.Transfer(h.feeReceiver, h.account, s.Fee)
			}
			a.Settled = false
			return Settlement{}, fmt.Errorf("paying proceeds: %w", err)
		}
	}

	h.log.Info("auction settled",
		"auction", a.ID,
		"winner", string(a.Bidder),
		"amount", s.Amount.String(),
		"fee", s.Fee.String(),
		"beneficiary", string(beneficiary),
		"instabuy", instabuy,
	)
	return s, nil
}

// Nullify voids an unsettled lot: owner only, available even while paused.
// The winning amount, if any, becomes a pending return for the displaced
// winner instead of being distributed; no fee is taken.
func (h *House) Nullify(caller token.Account, auctionID uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if caller != h.owner {
		return ErrNotOwner
	}
	a, ok := h.auctions[auctionID]
	if !ok {
		return ErrAuctionNotFound
	}
	if a.Settled {
		return ErrAuctionSettled
	}

	if a.Bidder != "" {
		h.addPending(a.ID, a.Bidder, a.Amount)
	}
	voided := a.Bidder
	a.Amount = new(big.Int)
	a.Bidder = ""
	a.Settled = true

	h.log.Info("auction nullified", "auction", a.ID, "displaced", string(voided))
	return nil
}
