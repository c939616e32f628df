package house

import "errors"

// Authorization errors.
var (
	ErrNotOwner    = errors.New("caller is not the owner")
	ErrNotManager  = errors.New("caller is not the owner or an auction manager")
	ErrNotApproved = errors.New("caller is not approved to act for this account")
)

// State errors.
var (
	ErrPaused            = errors.New("house is paused")
	ErrAuctionNotFound   = errors.New("unknown auction")
	ErrAuctionSettled    = errors.New("auction already settled")
	ErrAuctionNotEnded   = errors.New("auction has not ended")
	ErrAuctionExpired    = errors.New("auction has ended")
	ErrWithdrawalLocked  = errors.New("withdrawals locked until settlement")
	ErrInvalidParams     = errors.New("invalid auction parameters")
)

// Economic errors.
var (
	ErrBelowReserve   = errors.New("bid below reserve price")
	ErrBelowIncrement = errors.New("bid below minimum increment")
	ErrBelowCredit    = errors.New("bid below existing credit")
	ErrSlippage       = errors.New("converted amount below requested minimum")
)

// Bookkeeping errors.
var (
	ErrNothingPending     = errors.New("no pending return")
	ErrBatchTooLarge      = errors.New("withdrawal batch too large")
	ErrUnsupportedToken   = errors.New("token has no registered adapter")
	ErrPaymentTokenTrade  = errors.New("payment asset cannot be registered for trading")
	ErrNilAdapter         = errors.New("adapter must not be nil")
	ErrAdapterMismatch    = errors.New("adapter does not trade the given token")
)

// Resource-protection errors.
var (
	ErrNoSurplus = errors.New("amount exceeds recoverable surplus")
)
