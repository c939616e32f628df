package token

import "math/big"

// Account identifies a balance holder. Accounts are opaque strings; the
// engine never interprets them beyond equality checks.
type Account string

// Token is the fungible-asset interface the auction engine settles in.
// Implementations must apply each call atomically: either the full amount
// moves, or an error is returned and no balance changes.
type Token interface {
	// Symbol returns a short human-readable asset identifier.
	Symbol() string

	// BalanceOf returns the current balance of an account. The returned
	// value is a copy and safe to mutate.
	BalanceOf(account Account) *big.Int

	// Allowance returns how much spender may pull from owner.
	Allowance(owner, spender Account) *big.Int

	// Approve sets spender's allowance over owner's balance.
	Approve(owner, spender Account, amount *big.Int) error

	// Transfer moves amount from one account to another.
	Transfer(from, to Account, amount *big.Int) error

	// TransferFrom moves amount from the from account to the to account,
	// consuming spender's allowance. It is the pull half of the escrow
	// flow: the engine never takes funds without a prior approval.
	TransferFrom(spender, from, to Account, amount *big.Int) error
}
