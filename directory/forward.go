package directory

import (
	"fmt"
	"math/big"

	"github.com/leviathan-news/auction-block/house"
	"github.com/leviathan-news/auction-block/services"
	"github.com/leviathan-news/auction-block/token"
)

// CreateBid forwards a plain bid to a registered house after checking the
// directory's own delegation table. The house sees the directory as the
// caller and pulls the payment from the principal, so the principal's escrow
// allowance is what funds the bid.
func (d *Directory) CreateBid(caller token.Account, houseName string, auctionID uint64, total *big.Int, opts house.BidOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	principal := opts.OnBehalfOf
	if principal == "" {
		principal = caller
	}
	if !d.canActForLocked(caller, principal, house.ApprovalBidOnly) {
		return ErrNotApproved
	}
	h, ok := d.houses[houseName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHouseNotFound, houseName)
	}

	opts.OnBehalfOf = principal
	return h.PlaceBid(d.account, auctionID, total, opts)
}

// CreateBidWithToken forwards a secondary-token bid. The token is first
// pulled from the caller into the directory's account, which then funds the
// conversion; a bid that fails at any later point returns the tokens to the
// caller. The caller therefore needs a token allowance for the directory,
// not for the house.
func (d *Directory) CreateBidWithToken(caller token.Account, houseName string, auctionID uint64, tokenAmount *big.Int, tok token.Token, minTotalOut *big.Int, opts house.BidOptions) error {
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return fmt.Errorf("token amount must be positive")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	principal := opts.OnBehalfOf
	if principal == "" {
		principal = caller
	}
	if !d.canActForLocked(caller, principal, house.ApprovalBidOnly) {
		return ErrNotApproved
	}
	adapter := d.adapterForLocked(tok)
	if adapter == nil {
		return ErrUnsupportedToken
	}
	h, ok := d.houses[houseName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHouseNotFound, houseName)
	}

	if err := tok.TransferFrom(d.account, caller, d.account, tokenAmount); err != nil {
		return fmt.Errorf("pulling token: %w", err)
	}
	if err := tok.Approve(d.account, adapter.Spender(), tokenAmount); err != nil {
		tok.Transfer(d.account, caller, tokenAmount)
		return fmt.Errorf("approving conversion: %w", err)
	}

	opts.OnBehalfOf = principal
	if err := h.PlaceBidWithToken(d.account, auctionID, tokenAmount, tok, minTotalOut, opts); err != nil {
		tok.Approve(d.account, adapter.Spender(), new(big.Int))
		tok.Transfer(d.account, caller, tokenAmount)
		return err
	}
	return nil
}

// Withdraw forwards a single-auction withdrawal. Funds go straight from the
// house escrow to the principal.
func (d *Directory) Withdraw(caller token.Account, houseName string, auctionID uint64, onBehalfOf token.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	principal := onBehalfOf
	if principal == "" {
		principal = caller
	}
	if !d.canActForLocked(caller, principal, house.ApprovalWithdrawOnly) {
		return ErrNotApproved
	}
	h, ok := d.houses[houseName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHouseNotFound, houseName)
	}
	return h.Withdraw(d.account, auctionID, principal)
}

// WithdrawMany forwards a batched withdrawal for one house.
func (d *Directory) WithdrawMany(caller token.Account, houseName string, auctionIDs []uint64, onBehalfOf token.Account) (*big.Int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	principal := onBehalfOf
	if principal == "" {
		principal = caller
	}
	if !d.canActForLocked(caller, principal, house.ApprovalWithdrawOnly) {
		return nil, ErrNotApproved
	}
	h, ok := d.houses[houseName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHouseNotFound, houseName)
	}
	return h.WithdrawMany(d.account, auctionIDs, principal)
}

// SettlementResult is a settlement together with its directory context.
type SettlementResult struct {
	House string `json:"house"`
	house.Settlement
	AwardTokenID uint64 `json:"award_token_id,omitempty"`
}

// SettleAuction settles an auction on a registered house, mints the award
// when a minter is configured and the auction had a winner, and records the
// outcome in the settlement store when one is configured.
//
// The settlement itself is final once the house accepts it: a failing minter
// or store is reported through the returned error, but the returned result
// still describes the completed settlement.
func (d *Directory) SettleAuction(houseName string, auctionID uint64) (SettlementResult, error) {
	d.mu.Lock()
	h, ok := d.houses[houseName]
	minter := d.minter
	store := d.store
	d.mu.Unlock()
	if !ok {
		return SettlementResult{}, fmt.Errorf("%w: %s", ErrHouseNotFound, houseName)
	}

	s, err := h.Settle(auctionID)
	if err != nil {
		return SettlementResult{}, err
	}
	result := SettlementResult{House: houseName, Settlement: s}

	var followupErr error
	if minter != nil && s.Winner != "" {
		tokenID, err := minter.Mint(s.Winner, houseName, auctionID)
		if err != nil {
			followupErr = fmt.Errorf("minting award: %w", err)
			d.log.Error("award mint failed", "house", houseName, "auction", auctionID, "err", err)
		} else {
			result.AwardTokenID = tokenID
			d.log.Info("award minted",
				"house", houseName,
				"auction", auctionID,
				"winner", string(s.Winner),
				"award", tokenID,
			)
		}
	}

	if store != nil {
		rec := services.NewSettlementRecord(houseName, s, result.AwardTokenID)
		if err := store.SaveSettlement(rec); err != nil {
			if followupErr == nil {
				followupErr = fmt.Errorf("recording settlement: %w", err)
			}
			d.log.Error("settlement record failed", "house", houseName, "auction", auctionID, "err", err)
		}
	}

	return result, followupErr
}
