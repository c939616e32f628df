package house

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/leviathan-news/auction-block/token"
	"github.com/leviathan-news/auction-block/zap"
)

// Clock supplies the current time. Injectable so tests drive auction
// deadlines deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config carries the immutable construction parameters of a House. The
// deployment layer supplies these; the engine never reads configuration
// from the environment itself.
type Config struct {
	// Payment is the single asset every auction settles in.
	Payment token.Token

	// Account is the escrow account all bid funds are held under.
	Account token.Account

	// Owner is the initial protocol owner.
	Owner token.Account

	// FeeReceiver collects the settlement fee. Defaults to Owner.
	FeeReceiver token.Account

	// FeePercent is the settlement fee, scaled by Precision. Defaults to
	// 5% when zero.
	FeePercent uint64

	// Defaults are the parameters applied by CreateAuction.
	Defaults Params

	// SettledOnlyWithdrawals restores the superseded strict rule that a
	// pending return is only withdrawable once its auction has settled.
	// Off by default; the canonical rule releases displaced funds any
	// time, since a pending return never belongs to a live winning bid.
	SettledOnlyWithdrawals bool

	Clock Clock
	Log   *slog.Logger
}

// DefaultFeePercent is the settlement fee applied when none is configured.
const DefaultFeePercent = 5 * Precision / 100

// DefaultParams are the auction parameters of the reference deployment.
func DefaultParams() Params {
	return Params{
		TimeBuffer:      time.Hour,
		ReservePrice:    new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)),
		MinIncrementPct: 5 * Precision / 100,
		Duration:        24 * time.Hour,
	}
}

type supportedToken struct {
	tok     token.Token
	adapter zap.Adapter
}

type bidMetaKey struct {
	auctionID uint64
	account   token.Account
}

// House owns the auction registry, the pending-returns ledger, the
// delegation table and the fee logic. All state is guarded by one mutex;
// each exported call either fully applies or fully rolls back.
type House struct {
	payment token.Token
	account token.Account

	clock Clock
	log   *slog.Logger

	paused atomic.Bool

	mu                     sync.Mutex
	owner                  token.Account
	feeReceiver            token.Account
	feePercent             uint64
	defaults               Params
	settledOnlyWithdrawals bool

	nextID   uint64
	auctions map[uint64]*Auction

	// pending is the per-auction refund ledger; pendingTotal is kept in
	// lockstep so an account's aggregate is always the sum of its
	// entries.
	pending      map[uint64]map[token.Account]*big.Int
	pendingTotal map[token.Account]*big.Int

	bidMetadata map[bidMetaKey]string

	approvals         map[approvalKey]ApprovalLevel
	managers          map[token.Account]bool
	approvedDirectory token.Account

	supported []supportedToken
}

// New creates a House from its construction parameters.
func New(cfg *Config) (*House, error) {
	if cfg.Payment == nil {
		return nil, errInvalid("payment token is required")
	}
	if cfg.Account == "" || cfg.Owner == "" {
		return nil, errInvalid("escrow account and owner are required")
	}
	if cfg.FeePercent > Precision {
		return nil, errInvalid("fee percentage above 100%")
	}

	defaults := cfg.Defaults
	if defaults.ReservePrice == nil {
		defaults = DefaultParams()
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}

	feeReceiver := cfg.FeeReceiver
	if feeReceiver == "" {
		feeReceiver = cfg.Owner
	}
	feePercent := cfg.FeePercent
	if feePercent == 0 {
		feePercent = DefaultFeePercent
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &House{
		payment:                cfg.Payment,
		account:                cfg.Account,
		clock:                  clock,
		log:                    log.With("component", "house", "escrow", string(cfg.Account)),
		owner:                  cfg.Owner,
		feeReceiver:            feeReceiver,
		feePercent:             feePercent,
		defaults:               defaults.clone(),
		settledOnlyWithdrawals: cfg.SettledOnlyWithdrawals,
		auctions:               make(map[uint64]*Auction),
		pending:                make(map[uint64]map[token.Account]*big.Int),
		pendingTotal:           make(map[token.Account]*big.Int),
		bidMetadata:            make(map[bidMetaKey]string),
		approvals:              make(map[approvalKey]ApprovalLevel),
		managers:               make(map[token.Account]bool),
	}, nil
}

// Account returns the escrow account.
func (h *House) Account() token.Account { return h.account }

// Payment returns the settlement asset.
func (h *House) Payment() token.Token { return h.payment }

// Owner returns the current protocol owner.
func (h *House) Owner() token.Account {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.owner
}

// FeeReceiver returns the current fee recipient.
func (h *House) FeeReceiver() token.Account {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.feeReceiver
}

// FeePercent returns the settlement fee, scaled by Precision.
func (h *House) FeePercent() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.feePercent
}

// Defaults returns a copy of the default auction parameters.
func (h *House) Defaults() Params {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.defaults.clone()
}

// Paused reports whether state-mutating entry points are gated.
func (h *House) Paused() bool { return h.paused.Load() }

// Pause gates every state-mutating entry point except Nullify.
func (h *House) Pause(caller token.Account) error {
	if err := h.requireOwner(caller); err != nil {
		return err
	}
	h.paused.Store(true)
	h.log.Info("house paused", "caller", string(caller))
	return nil
}

// Unpause lifts the gate.
func (h *House) Unpause(caller token.Account) error {
	if err := h.requireOwner(caller); err != nil {
		return err
	}
	h.paused.Store(false)
	h.log.Info("house unpaused", "caller", string(caller))
	return nil
}

// TransferOwnership hands the protocol owner role to a new account.
func (h *House) TransferOwnership(caller, newOwner token.Account) error {
	if newOwner == "" {
		return errInvalid("new owner must not be empty")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if caller != h.owner {
		return ErrNotOwner
	}
	h.owner = newOwner
	return nil
}

// SetFeePercent updates the settlement fee. Bounded at 100%.
func (h *House) SetFeePercent(caller token.Account, pct uint64) error {
	if pct > Precision {
		return errInvalid("fee percentage above 100%")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if caller != h.owner {
		return ErrNotOwner
	}
	h.feePercent = pct
	return nil
}

// SetFeeReceiver updates the fee recipient.
func (h *House) SetFeeReceiver(caller, receiver token.Account) error {
	if receiver == "" {
		return errInvalid("fee receiver must not be empty")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if caller != h.owner {
		return ErrNotOwner
	}
	h.feeReceiver = receiver
	return nil
}

// SetDefaultParams replaces the parameters applied by CreateAuction.
func (h *House) SetDefaultParams(caller token.Account, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if caller != h.owner {
		return ErrNotOwner
	}
	h.defaults = p.clone()
	return nil
}

// SetAuctionManager grants or revokes the ability to create auctions.
func (h *House) SetAuctionManager(caller, manager token.Account, enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if caller != h.owner {
		return ErrNotOwner
	}
	if enabled {
		h.managers[manager] = true
	} else {
		delete(h.managers, manager)
	}
	return nil
}

// SetApprovedDirectory registers the directory whose delegation checks this
// house trusts for forwarded calls.
func (h *House) SetApprovedDirectory(caller, directory token.Account) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if caller != h.owner {
		return ErrNotOwner
	}
	h.approvedDirectory = directory
	return nil
}

// CreateAuction opens a new auction with the default parameters.
func (h *House) CreateAuction(caller token.Account, metadata string) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.createAuctionLocked(caller, h.defaults.clone(), metadata)
}

// CreateCustomAuction opens a new auction with explicit parameters.
func (h *House) CreateCustomAuction(caller token.Account, p Params, metadata string) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.createAuctionLocked(caller, p.clone(), metadata)
}

// CreateAuctionByDeadline opens an auction whose duration is derived from an
// absolute deadline instead of a relative duration.
func (h *House) CreateAuctionByDeadline(caller token.Account, deadline time.Time, p Params, metadata string) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p = p.clone()
	p.Duration = deadline.Sub(h.clock.Now())
	return h.createAuctionLocked(caller, p, metadata)
}

func (h *House) createAuctionLocked(caller token.Account, p Params, metadata string) (uint64, error) {
	if h.paused.Load() {
		return 0, ErrPaused
	}
	if caller != h.owner && !h.managers[caller] {
		return 0, ErrNotManager
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}

	now := h.clock.Now()
	live := 0
	for _, a := range h.auctions {
		if a.live(now) {
			live++
		}
	}
	if live >= MaxActiveAuctions {
		return 0, fmt.Errorf("%w: active auction limit %d reached", ErrInvalidParams, MaxActiveAuctions)
	}

	h.nextID++
	a := &Auction{
		ID:        h.nextID,
		Amount:    new(big.Int),
		StartTime: now,
		EndTime:   now.Add(p.Duration),
		Metadata:  metadata,
		Params:    p,
	}
	h.auctions[a.ID] = a

	h.log.Info("auction created",
		"auction", a.ID,
		"reserve", p.ReservePrice.String(),
		"ends", a.EndTime,
	)
	return a.ID, nil
}

// LatestAuctionID returns the most recently created auction id, or zero.
func (h *House) LatestAuctionID() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextID
}

// Auction returns a detached copy of an auction.
func (h *House) Auction(id uint64) (Auction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.auctions[id]
	if !ok {
		return Auction{}, ErrAuctionNotFound
	}
	return a.clone(), nil
}

// IsLive reports whether an auction currently accepts bids.
func (h *House) IsLive(id uint64) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.auctions[id]
	if !ok {
		return false, ErrAuctionNotFound
	}
	return a.live(h.clock.Now()), nil
}

// RemainingTime returns the time until an auction's end, or zero once past.
func (h *House) RemainingTime(id uint64) (time.Duration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.auctions[id]
	if !ok {
		return 0, ErrAuctionNotFound
	}
	remaining := a.EndTime.Sub(h.clock.Now())
	if remaining < 0 || a.Settled {
		return 0, nil
	}
	return remaining, nil
}

// ActiveAuctions lists the ids of live auctions in ascending order. The
// scan is capped at MaxActiveAuctions entries.
func (h *House) ActiveAuctions() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	ids := make([]uint64, 0, len(h.auctions))
	for id, a := range h.auctions {
		if a.live(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > MaxActiveAuctions {
		ids = ids[:MaxActiveAuctions]
	}
	return ids
}

// Metadata returns the opaque metadata attached to an auction.
func (h *House) Metadata(id uint64) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.auctions[id]
	if !ok {
		return "", ErrAuctionNotFound
	}
	return a.Metadata, nil
}

// BidMetadata returns the metadata a bidder attached to their bid.
func (h *House) BidMetadata(id uint64, account token.Account) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bidMetadata[bidMetaKey{auctionID: id, account: account}]
}

// UpdateBidMetadata overwrites a bidder's own bid metadata.
func (h *House) UpdateBidMetadata(caller token.Account, id uint64, metadata string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.auctions[id]; !ok {
		return ErrAuctionNotFound
	}
	h.bidMetadata[bidMetaKey{auctionID: id, account: caller}] = metadata
	return nil
}

// Obligations returns the total the escrow owes: live winning bids of
// unsettled auctions plus every pending return. The payment-asset balance of
// the escrow account must never fall below this.
func (h *House) Obligations() *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.obligationsLocked()
}

func (h *House) obligationsLocked() *big.Int {
	total := new(big.Int)
	for _, a := range h.auctions {
		if !a.Settled {
			total.Add(total, a.Amount)
		}
	}
	for _, p := range h.pendingTotal {
		total.Add(total, p)
	}
	return total
}

// RecoverToken releases balance held under the escrow account to the owner.
// For the payment asset only the surplus above outstanding obligations is
// reachable; live winning bids and pending returns are never recoverable.
// Foreign tokens are recoverable in full.
func (h *House) RecoverToken(caller token.Account, tok token.Token, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalid("recovery amount must be positive")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if caller != h.owner {
		return ErrNotOwner
	}

	if tok == h.payment {
		surplus := h.payment.BalanceOf(h.account)
		surplus.Sub(surplus, h.obligationsLocked())
		if amount.Cmp(surplus) > 0 {
			return fmt.Errorf("%w: surplus %s", ErrNoSurplus, surplus)
		}
	}
	return tok.Transfer(h.account, h.owner, amount)
}

func (h *House) requireOwner(caller token.Account) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if caller != h.owner {
		return ErrNotOwner
	}
	return nil
}

// pendingOf returns the live pending-return entry, or nil. Lock held.
func (h *House) pendingOf(auctionID uint64, account token.Account) *big.Int {
	return h.pending[auctionID][account]
}

// addPending credits a displaced bidder. Lock held.
func (h *House) addPending(auctionID uint64, account token.Account, amount *big.Int) {
	byAccount := h.pending[auctionID]
	if byAccount == nil {
		byAccount = make(map[token.Account]*big.Int)
		h.pending[auctionID] = byAccount
	}
	if entry, ok := byAccount[account]; ok {
		entry.Add(entry, amount)
	} else {
		byAccount[account] = new(big.Int).Set(amount)
	}
	if total, ok := h.pendingTotal[account]; ok {
		total.Add(total, amount)
	} else {
		h.pendingTotal[account] = new(big.Int).Set(amount)
	}
}

// clearPending zeroes a pending entry and returns the released amount.
// Lock held.
func (h *House) clearPending(auctionID uint64, account token.Account) *big.Int {
	entry, ok := h.pending[auctionID][account]
	if !ok {
		return nil
	}
	delete(h.pending[auctionID], account)
	if len(h.pending[auctionID]) == 0 {
		delete(h.pending, auctionID)
	}

	total := h.pendingTotal[account]
	total.Sub(total, entry)
	if total.Sign() == 0 {
		delete(h.pendingTotal, account)
	}
	return entry
}

// PendingReturns returns an account's aggregate refundable balance.
func (h *House) PendingReturns(account token.Account) *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if total, ok := h.pendingTotal[account]; ok {
		return new(big.Int).Set(total)
	}
	return new(big.Int)
}

// AuctionPendingReturns returns an account's refundable balance for one
// auction.
func (h *House) AuctionPendingReturns(auctionID uint64, account token.Account) *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if entry := h.pendingOf(auctionID, account); entry != nil {
		return new(big.Int).Set(entry)
	}
	return new(big.Int)
}

// pctOf returns amount*pct/Precision, rounded down.
func pctOf(amount *big.Int, pct uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(pct))
	return out.Div(out, big.NewInt(Precision))
}
