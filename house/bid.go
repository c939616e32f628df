package house

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/leviathan-news/auction-block/token"
	"github.com/leviathan-news/auction-block/zap"
)

// BidOptions carries the optional parts of a bid. An empty OnBehalfOf means
// the caller bids for themselves; Metadata, when set, is attached to the
// (auction, bidder) pair and is only ever overwritten by its owner.
type BidOptions struct {
	OnBehalfOf token.Account
	Metadata   string
}

// MinimumTotalBid returns the smallest acceptable total bid: the reserve
// price while the auction has no bids, afterwards the winning amount plus
// the minimum increment. Errors on unknown or settled auctions.
func (h *House) MinimumTotalBid(auctionID uint64) (*big.Int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.auctions[auctionID]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	if a.Settled {
		return nil, ErrAuctionSettled
	}
	return h.minimumTotalLocked(a), nil
}

// MinimumAdditionalBidFor returns how much an account would actually have to
// transfer for a minimal bid, net of the credit they already hold on this
// auction (their winning amount or pending return).
func (h *House) MinimumAdditionalBidFor(auctionID uint64, account token.Account) (*big.Int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.auctions[auctionID]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	if a.Settled {
		return nil, ErrAuctionSettled
	}
	min := h.minimumTotalLocked(a)
	min.Sub(min, h.creditLocked(a, account))
	if min.Sign() < 0 {
		min.SetInt64(0)
	}
	return min, nil
}

// BidByUser returns the account's total stake in an auction: their winning
// amount if they hold the lead, else their pending return, else zero.
func (h *House) BidByUser(auctionID uint64, account token.Account) (*big.Int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.auctions[auctionID]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return h.creditLocked(a, account), nil
}

// PlaceBid places a bid of total (the full bid amount, not the delta) on an
// auction. Only the marginal amount beyond the bidder's existing credit is
// pulled from their balance.
func (h *House) PlaceBid(caller token.Account, auctionID uint64, total *big.Int, opts BidOptions) error {
	if total == nil || total.Sign() <= 0 {
		return errInvalid("bid amount must be positive")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	bidder := opts.OnBehalfOf
	if bidder == "" {
		bidder = caller
	}

	if h.paused.Load() {
		return ErrPaused
	}
	if !h.canActFor(caller, bidder, ApprovalBidOnly) {
		return ErrNotApproved
	}
	a, err := h.liveAuctionLocked(auctionID)
	if err != nil {
		return err
	}
	return h.acceptBidLocked(a, bidder, new(big.Int).Set(total), new(big.Int), opts.Metadata)
}

// PlaceBidWithToken bids by first converting tokenAmount of a registered
// secondary token through its adapter. The converted output plus the
// bidder's existing credit forms the total bid, which must clear both the
// auction minimum and minTotalOut; the conversion is only executed once the
// quote clears, so a failed bid moves nothing. The secondary token is pulled
// from the caller, the account actually paying.
func (h *House) PlaceBidWithToken(caller token.Account, auctionID uint64, tokenAmount *big.Int, tok token.Token, minTotalOut *big.Int, opts BidOptions) error {
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return errInvalid("token amount must be positive")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	bidder := opts.OnBehalfOf
	if bidder == "" {
		bidder = caller
	}

	if h.paused.Load() {
		return ErrPaused
	}
	if !h.canActFor(caller, bidder, ApprovalBidOnly) {
		return ErrNotApproved
	}
	adapter := h.adapterForLocked(tok)
	if adapter == nil {
		return ErrUnsupportedToken
	}
	a, err := h.liveAuctionLocked(auctionID)
	if err != nil {
		return err
	}

	credit := h.creditLocked(a, bidder)
	quoted, err := adapter.GetDY(tokenAmount)
	if err != nil {
		return fmt.Errorf("quoting conversion: %w", err)
	}

	expected := new(big.Int).Add(quoted, credit)
	min := h.minimumTotalLocked(a)
	if err := h.checkMinimumLocked(a, expected); err != nil {
		return err
	}
	if minTotalOut != nil && expected.Cmp(minTotalOut) < 0 {
		return fmt.Errorf("%w: total %s, need %s", ErrSlippage, expected, minTotalOut)
	}

	// Execution floor: the realized output must still clear the auction
	// minimum and the caller's slippage bound net of their credit.
	needed := new(big.Int).Set(min)
	if minTotalOut != nil && minTotalOut.Cmp(needed) > 0 {
		needed.Set(minTotalOut)
	}
	needed.Sub(needed, credit)
	if needed.Sign() < 0 {
		needed.SetInt64(0)
	}

	received, err := adapter.Exchange(caller, tokenAmount, needed, h.account)
	if err != nil {
		if errors.Is(err, zap.ErrMinOut) {
			return fmt.Errorf("%w: %v", ErrSlippage, err)
		}
		return fmt.Errorf("converting token: %w", err)
	}

	total := new(big.Int).Add(received, credit)
	return h.acceptBidLocked(a, bidder, total, received, opts.Metadata)
}

// liveAuctionLocked fetches an auction that can accept bids now.
func (h *House) liveAuctionLocked(auctionID uint64) (*Auction, error) {
	a, ok := h.auctions[auctionID]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	if a.Settled {
		return nil, ErrAuctionSettled
	}
	if h.clock.Now().After(a.EndTime) {
		return nil, ErrAuctionExpired
	}
	return a, nil
}

// minimumTotalLocked computes the smallest acceptable total bid.
func (h *House) minimumTotalLocked(a *Auction) *big.Int {
	if a.Amount.Sign() == 0 {
		return new(big.Int).Set(a.Params.ReservePrice)
	}
	min := pctOf(a.Amount, a.Params.MinIncrementPct)
	return min.Add(min, a.Amount)
}

// checkMinimumLocked distinguishes a reserve failure from an increment
// failure.
func (h *House) checkMinimumLocked(a *Auction, total *big.Int) error {
	if a.Amount.Sign() == 0 {
		if total.Cmp(a.Params.ReservePrice) < 0 {
			return fmt.Errorf("%w: reserve %s", ErrBelowReserve, a.Params.ReservePrice)
		}
		return nil
	}
	if min := h.minimumTotalLocked(a); total.Cmp(min) < 0 {
		return fmt.Errorf("%w: minimum %s", ErrBelowIncrement, min)
	}
	return nil
}

// creditLocked returns the amount the account already has escrowed on this
// auction: the winning amount when they hold the lead, otherwise their
// pending return. The two are mutually exclusive.
func (h *House) creditLocked(a *Auction, account token.Account) *big.Int {
	if a.Bidder == account {
		return new(big.Int).Set(a.Amount)
	}
	if entry := h.pendingOf(a.ID, account); entry != nil {
		return new(big.Int).Set(entry)
	}
	return new(big.Int)
}

// acceptBidLocked is the bid-acceptance state machine. total is the full new
// bid; escrowed is payment-asset value that already arrived at the escrow
// within this call (a token conversion). The ledger is committed before the
// marginal pull from the bidder, and restored if that pull fails.
func (h *House) acceptBidLocked(a *Auction, bidder token.Account, total, escrowed *big.Int, metadata string) error {
	if err := h.checkMinimumLocked(a, total); err != nil {
		return err
	}

	credit := h.creditLocked(a, bidder)
	transfer := new(big.Int).Sub(total, credit)
	transfer.Sub(transfer, escrowed)
	if transfer.Sign() < 0 {
		return fmt.Errorf("%w: credit %s", ErrBelowCredit, credit)
	}

	prevAmount := a.Amount
	prevBidder := a.Bidder
	prevEnd := a.EndTime

	creditFromPending := a.Bidder != bidder && h.pendingOf(a.ID, bidder) != nil
	if creditFromPending {
		h.clearPending(a.ID, bidder)
	}

	// A displaced winner holds no pending entry on this auction, so this
	// creates one holding exactly their full amount.
	displaced := prevBidder != "" && prevBidder != bidder
	if displaced {
		h.addPending(a.ID, prevBidder, prevAmount)
	}

	a.Amount = new(big.Int).Set(total)
	a.Bidder = bidder

	metaKey := bidMetaKey{auctionID: a.ID, account: bidder}
	prevMeta, hadMeta := h.bidMetadata[metaKey]
	if metadata != "" {
		h.bidMetadata[metaKey] = metadata
	}

	now := h.clock.Now()
	if now.After(a.EndTime.Add(-a.Params.TimeBuffer)) {
		a.EndTime = now.Add(a.Params.TimeBuffer)
	}

	if transfer.Sign() > 0 {
		if err := h.payment.TransferFrom(h.account, bidder, h.account, transfer); err != nil {
			a.Amount = prevAmount
			a.Bidder = prevBidder
			a.EndTime = prevEnd
			if displaced {
				h.clearPending(a.ID, prevBidder)
			}
			if creditFromPending {
				h.addPending(a.ID, bidder, credit)
			}
			if metadata != "" {
				if hadMeta {
					h.bidMetadata[metaKey] = prevMeta
				} else {
					delete(h.bidMetadata, metaKey)
				}
			}
			return fmt.Errorf("escrowing bid: %w", err)
		}
	}

	h.log.Info("bid accepted",
		"auction", a.ID,
		"bidder", string(bidder),
		"total", total.String(),
		"transferred", transfer.String(),
	)

	if a.Params.instabuyEnabled() && total.Cmp(a.Params.InstabuyPrice) >= 0 {
		// The escrow is solvent at this point; settlement transfers can
		// only fail on a broken token, in which case the bid stands and
		// the lot stays open.
		if _, err := h.settleLocked(a, true); err != nil {
			return fmt.Errorf("instabuy settlement: %w", err)
		}
	}
	return nil
}
