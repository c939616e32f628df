package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// Ledger errors.
var (
	ErrInvalidAmount         = errors.New("amount must be non-negative")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Ledger is an in-memory Token implementation with ERC20-style allowance
// semantics. All operations are guarded by a single mutex and are atomic.
type Ledger struct {
	symbol string

	mu         sync.Mutex
	balances   map[Account]*big.Int
	allowances map[Account]map[Account]*big.Int
}

// NewLedger creates an empty ledger for the given asset symbol.
func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol:     symbol,
		balances:   make(map[Account]*big.Int),
		allowances: make(map[Account]map[Account]*big.Int),
	}
}

// Symbol returns the asset symbol.
func (l *Ledger) Symbol() string {
	return l.symbol
}

// Mint credits amount to an account out of thin air. Test and demo helper;
// a production deployment fronts a real asset instead.
func (l *Ledger) Mint(to Account, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(to, amount)
	return nil
}

// BalanceOf returns a copy of the account's balance.
func (l *Ledger) BalanceOf(account Account) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Allowance returns a copy of spender's remaining allowance over owner.
func (l *Ledger) Allowance(owner, spender Account) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.allowances[owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Approve sets spender's allowance over owner's balance.
func (l *Ledger) Approve(owner, spender Account, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[Account]*big.Int)
	}
	l.allowances[owner][spender] = new(big.Int).Set(amount)
	return nil
}

// Transfer moves amount between accounts.
func (l *Ledger) Transfer(from, to Account, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

// TransferFrom moves amount from the from account, consuming spender's
// allowance. The allowance is decremented only when the transfer succeeds.
func (l *Ledger) TransferFrom(spender, from, to Account, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance, ok := l.allowances[from][spender]
	if !ok || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s spending for %s", ErrInsufficientAllowance, spender, from)
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return nil
}

// move transfers balance with the lock held.
func (l *Ledger) move(from, to Account, amount *big.Int) error {
	balance, ok := l.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: account %s", ErrInsufficientBalance, from)
	}
	balance.Sub(balance, amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(to Account, amount *big.Int) {
	if b, ok := l.balances[to]; ok {
		b.Add(b, amount)
		return
	}
	l.balances[to] = new(big.Int).Set(amount)
}
