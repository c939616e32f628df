package directory

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"go.uber.org/atomic"

	"github.com/leviathan-news/auction-block/house"
	"github.com/leviathan-news/auction-block/services"
	"github.com/leviathan-news/auction-block/token"
	"github.com/leviathan-news/auction-block/zap"
)

// MaxHouses bounds the append-only house registry.
const MaxHouses = 100

var (
	ErrNotOwner        = errors.New("caller is not the directory owner")
	ErrNotApproved     = errors.New("caller lacks the required directory approval")
	ErrHouseNotFound   = errors.New("house is not registered")
	ErrHouseExists     = errors.New("house is already registered")
	ErrTooManyHouses   = errors.New("house registry is full")
	ErrPaymentMismatch = errors.New("house uses a different payment asset")
	ErrNoOracle        = errors.New("no payment token oracle configured")
	ErrInvalidName     = errors.New("house name must not be empty")
)

// Token-registry failures carry the same identities as the house ones so
// callers can test either surface with one sentinel.
var (
	ErrUnsupportedToken  = house.ErrUnsupportedToken
	ErrPaymentTokenTrade = house.ErrPaymentTokenTrade
	ErrNilAdapter        = house.ErrNilAdapter
	ErrAdapterMismatch   = house.ErrAdapterMismatch
)

// Minter awards the prize for a settled auction, returning the award token
// id it minted.
type Minter interface {
	Mint(recipient token.Account, houseName string, auctionID uint64) (uint64, error)
}

// Oracle reports the payment asset's USD price, scaled by the
// implementation's own convention.
type Oracle interface {
	PriceUSD() (*big.Int, error)
}

// Config wires a Directory's collaborators. Minter, Oracle and Store are
// optional.
type Config struct {
	// Account is the identity the directory uses against houses. Every
	// registered house must trust it through SetApprovedDirectory.
	Account token.Account
	Owner   token.Account
	Payment token.Token
	Minter  Minter
	Oracle  Oracle
	Store   services.SettlementStore
	Log     *slog.Logger
}

type approvalKey struct {
	principal token.Account
	delegate  token.Account
}

type supportedToken struct {
	tok     token.Token
	adapter zap.Adapter
}

// Directory multiplexes auction houses behind one delegation table.
type Directory struct {
	mu      sync.Mutex
	account token.Account
	owner   token.Account
	payment token.Token
	minter  Minter
	oracle  Oracle
	store   services.SettlementStore
	log     *slog.Logger

	names  []string
	houses map[string]*house.House

	approvals map[approvalKey]house.ApprovalLevel
	supported []supportedToken

	deprecated atomic.Bool
	successor  string
}

// New creates a Directory from its configuration.
func New(cfg *Config) (*Directory, error) {
	if cfg.Payment == nil {
		return nil, errors.New("payment token is required")
	}
	if cfg.Account == "" {
		return nil, errors.New("directory account is required")
	}
	if cfg.Owner == "" {
		return nil, errors.New("owner is required")
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Directory{
		account:   cfg.Account,
		owner:     cfg.Owner,
		payment:   cfg.Payment,
		minter:    cfg.Minter,
		oracle:    cfg.Oracle,
		store:     cfg.Store,
		log:       log,
		houses:    make(map[string]*house.House),
		approvals: make(map[approvalKey]house.ApprovalLevel),
	}, nil
}

// Account returns the identity the directory presents to houses.
func (d *Directory) Account() token.Account { return d.account }

// Owner returns the current directory owner.
func (d *Directory) Owner() token.Account {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.owner
}

// TransferOwnership hands directory administration to a new owner.
func (d *Directory) TransferOwnership(caller, newOwner token.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if caller != d.owner {
		return ErrNotOwner
	}
	if newOwner == "" {
		return errors.New("new owner must not be empty")
	}
	d.owner = newOwner
	d.log.Info("directory ownership transferred", "owner", string(newOwner))
	return nil
}

// RegisterHouse adds a house under a unique name. Registration is
// append-only: there is no removal, and the registry is capped at MaxHouses.
func (d *Directory) RegisterHouse(caller token.Account, name string, h *house.House) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if caller != d.owner {
		return ErrNotOwner
	}
	if name == "" {
		return ErrInvalidName
	}
	if h == nil {
		return errors.New("house must not be nil")
	}
	if _, ok := d.houses[name]; ok {
		return fmt.Errorf("%w: %s", ErrHouseExists, name)
	}
	if len(d.names) >= MaxHouses {
		return fmt.Errorf("%w: limit %d", ErrTooManyHouses, MaxHouses)
	}
	if h.Payment() != d.payment {
		return ErrPaymentMismatch
	}

	d.names = append(d.names, name)
	d.houses[name] = h
	d.log.Info("house registered", "house", name, "count", len(d.names))
	return nil
}

// House returns a registered house by name.
func (d *Directory) House(name string) (*house.House, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.houses[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHouseNotFound, name)
	}
	return h, nil
}

// Houses lists the registered house names in registration order.
func (d *Directory) Houses() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// SetApprovedCaller grants or revokes a delegate's standing in the
// directory's own table. ApprovalNone revokes.
func (d *Directory) SetApprovedCaller(principal, delegate token.Account, level house.ApprovalLevel) error {
	if !level.Valid() {
		return fmt.Errorf("unknown approval level %d", level)
	}
	if principal == delegate {
		return errors.New("cannot approve yourself")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	key := approvalKey{principal: principal, delegate: delegate}
	if level == house.ApprovalNone {
		delete(d.approvals, key)
		return nil
	}
	d.approvals[key] = level
	return nil
}

// ApprovedCaller returns the delegate's current approval level.
func (d *Directory) ApprovedCaller(principal, delegate token.Account) house.ApprovalLevel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.approvals[approvalKey{principal: principal, delegate: delegate}]
}

func (d *Directory) canActForLocked(caller, principal token.Account, permit house.ApprovalLevel) bool {
	if caller == principal {
		return true
	}
	level := d.approvals[approvalKey{principal: principal, delegate: caller}]
	return house.CheckCaller(level, permit)
}

// HouseAuctions pairs a house name with its live auction ids.
type HouseAuctions struct {
	House      string   `json:"house"`
	AuctionIDs []uint64 `json:"auction_ids"`
}

// ActiveAuctions lists the live auctions of every registered house, in
// registration order, skipping houses with none.
func (d *Directory) ActiveAuctions() []HouseAuctions {
	d.mu.Lock()
	names := make([]string, len(d.names))
	copy(names, d.names)
	houses := make([]*house.House, len(names))
	for i, name := range names {
		houses[i] = d.houses[name]
	}
	d.mu.Unlock()

	var out []HouseAuctions
	for i, h := range houses {
		ids := h.ActiveAuctions()
		if len(ids) == 0 {
			continue
		}
		out = append(out, HouseAuctions{House: names[i], AuctionIDs: ids})
	}
	return out
}

// SetPaymentTokenOracle installs or replaces the USD price oracle.
func (d *Directory) SetPaymentTokenOracle(caller token.Account, oracle Oracle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if caller != d.owner {
		return ErrNotOwner
	}
	d.oracle = oracle
	return nil
}

// PaymentTokenPriceUSD reads the configured oracle.
func (d *Directory) PaymentTokenPriceUSD() (*big.Int, error) {
	d.mu.Lock()
	oracle := d.oracle
	d.mu.Unlock()
	if oracle == nil {
		return nil, ErrNoOracle
	}
	return oracle.PriceUSD()
}

// Deprecate marks this directory as superseded. Advisory only: every
// operation keeps working, but IsCurrent flips and clients should move to
// the successor.
func (d *Directory) Deprecate(caller token.Account, successor string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if caller != d.owner {
		return ErrNotOwner
	}
	d.successor = successor
	d.deprecated.Store(true)
	d.log.Info("directory deprecated", "successor", successor)
	return nil
}

// IsCurrent reports whether this directory is still the canonical one.
func (d *Directory) IsCurrent() bool {
	return !d.deprecated.Load()
}

// Successor returns the directory clients should migrate to, or empty.
func (d *Directory) Successor() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.successor
}
