package house

import (
	"fmt"
	"math/big"

	"github.com/leviathan-news/auction-block/token"
)

// Withdraw releases an account's pending return for one auction. A zero
// pending balance is an error, never a silent no-op. The entry is zeroed
// before the outbound transfer and restored if the transfer fails.
//
// Withdrawal succeeds whether or not the auction has settled: a pending
// return can never belong to the winning bid of a live auction, so releasing
// it never touches escrowed principal still at risk. The superseded strict
// rule is available through Config.SettledOnlyWithdrawals.
func (h *House) Withdraw(caller token.Account, auctionID uint64, onBehalfOf token.Account) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	account := onBehalfOf
	if account == "" {
		account = caller
	}

	if h.paused.Load() {
		return ErrPaused
	}
	if !h.canActFor(caller, account, ApprovalWithdrawOnly) {
		return ErrNotApproved
	}
	if err := h.withdrawableLocked(auctionID); err != nil {
		return err
	}

	amount := h.clearPending(auctionID, account)
	if amount == nil || amount.Sign() == 0 {
		return fmt.Errorf("%w: auction %d, account %s", ErrNothingPending, auctionID, account)
	}

	if err := h.payment.Transfer(h.account, account, amount); err != nil {
		h.addPending(auctionID, account, amount)
		return fmt.Errorf("releasing pending return: %w", err)
	}

	h.log.Info("pending return withdrawn",
		"auction", auctionID,
		"account", string(account),
		"amount", amount.String(),
	)
	return nil
}

// WithdrawMany releases pending returns across several auctions in one
// transfer. The permission check runs once; the list is bounded by
// MaxWithdrawBatch and oversized lists are rejected outright. Duplicate ids
// contribute nothing on their second occurrence because each entry is zeroed
// as it is processed. An all-zero result is an error.
func (h *House) WithdrawMany(caller token.Account, auctionIDs []uint64, onBehalfOf token.Account) (*big.Int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	account := onBehalfOf
	if account == "" {
		account = caller
	}

	if h.paused.Load() {
		return nil, ErrPaused
	}
	if len(auctionIDs) > MaxWithdrawBatch {
		return nil, fmt.Errorf("%w: %d ids, limit %d", ErrBatchTooLarge, len(auctionIDs), MaxWithdrawBatch)
	}
	if !h.canActFor(caller, account, ApprovalWithdrawOnly) {
		return nil, ErrNotApproved
	}

	total := new(big.Int)
	released := make(map[uint64]*big.Int)
	for _, id := range auctionIDs {
		if err := h.withdrawableLocked(id); err != nil {
			h.restorePendingLocked(account, released)
			return nil, err
		}
		if amount := h.clearPending(id, account); amount != nil {
			released[id] = amount
			total.Add(total, amount)
		}
	}
	if total.Sign() == 0 {
		return nil, fmt.Errorf("%w: account %s", ErrNothingPending, account)
	}

	if err := h.payment.Transfer(h.account, account, total); err != nil {
		h.restorePendingLocked(account, released)
		return nil, fmt.Errorf("releasing pending returns: %w", err)
	}

	h.log.Info("pending returns withdrawn",
		"auctions", len(released),
		"account", string(account),
		"amount", total.String(),
	)
	return total, nil
}

// SweepStale is the owner's last-resort release of abandoned pending
// returns. Each account's aggregate pending balance is forwarded to them
// minus a handling fee at the settlement fee rate. Only pending entries are
// reachable; live winning bids cannot be swept.
func (h *House) SweepStale(caller token.Account, accounts []token.Account) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if caller != h.owner {
		return ErrNotOwner
	}
	if h.paused.Load() {
		return ErrPaused
	}

	for _, account := range accounts {
		released := make(map[uint64]*big.Int)
		total := new(big.Int)
		for id := range h.pending {
			if amount := h.clearPending(id, account); amount != nil {
				released[id] = amount
				total.Add(total, amount)
			}
		}
		if total.Sign() == 0 {
			continue
		}

		fee := pctOf(total, h.feePercent)
		remainder := new(big.Int).Sub(total, fee)

		if fee.Sign() > 0 {
			if err := h.payment.Transfer(h.account, h.feeReceiver, fee); err != nil {
				h.restorePendingLocked(account, released)
				return fmt.Errorf("sweeping fee for %s: %w", account, err)
			}
		}
		if remainder.Sign() > 0 {
			if err := h.payment.Transfer(h.account, account, remainder); err != nil {
				if fee.Sign() > 0 {
					h.payment.Transfer(h.feeReceiver, h.account, fee)
				}
				h.restorePendingLocked(account, released)
				return fmt.Errorf("sweeping returns for %s: %w", account, err)
			}
		}

		h.log.Info("stale returns swept",
			"account", string(account),
			"amount", total.String(),
			"fee", fee.String(),
		)
	}
	return nil
}

// withdrawableLocked applies the optional strict settled-only rule.
func (h *House) withdrawableLocked(auctionID uint64) error {
	if !h.settledOnlyWithdrawals {
		return nil
	}
	a, ok := h.auctions[auctionID]
	if !ok {
		return ErrAuctionNotFound
	}
	if !a.Settled {
		return ErrWithdrawalLocked
	}
	return nil
}

// restorePendingLocked undoes a batch of clearPending calls.
func (h *House) restorePendingLocked(account token.Account, released map[uint64]*big.Int) {
	for id, amount := range released {
		h.addPending(id, account, amount)
	}
}
