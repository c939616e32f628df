package zap

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/leviathan-news/auction-block/token"
)

// Pool is a two-coin constant-product venue with a flat swap fee, in the
// shape of the pools the production adapters trade against. It holds its
// reserves in real token balances under its own account, so conversions move
// actual funds and tests can audit them.
type Pool struct {
	account token.Account
	coins   [2]token.Token
	feeBps  int64

	mu       sync.Mutex
	reserves [2]*big.Int
}

// NewPool creates an empty pool between two tokens. feeBps is the swap fee
// in basis points, taken on the input side.
func NewPool(account token.Account, coin0, coin1 token.Token, feeBps int64) *Pool {
	return &Pool{
		account:  account,
		coins:    [2]token.Token{coin0, coin1},
		feeBps:   feeBps,
		reserves: [2]*big.Int{new(big.Int), new(big.Int)},
	}
}

// Account returns the pool's escrow account.
func (p *Pool) Account() token.Account {
	return p.account
}

// Coin returns the token at a pool index.
func (p *Pool) Coin(i int) token.Token {
	return p.coins[i]
}

// AddLiquidity pulls both coins from the provider and grows the reserves.
// The provider must have approved the pool account on both tokens.
func (p *Pool) AddLiquidity(provider token.Account, amount0, amount1 *big.Int) error {
	if amount0 == nil || amount0.Sign() <= 0 || amount1 == nil || amount1.Sign() <= 0 {
		return ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.coins[0].TransferFrom(p.account, provider, p.account, amount0); err != nil {
		return fmt.Errorf("pulling coin0: %w", err)
	}
	if err := p.coins[1].TransferFrom(p.account, provider, p.account, amount1); err != nil {
		// Undo the first pull so a failed deposit leaves no partial state.
		p.coins[0].Transfer(p.account, provider, amount0)
		return fmt.Errorf("pulling coin1: %w", err)
	}
	p.reserves[0].Add(p.reserves[0], amount0)
	p.reserves[1].Add(p.reserves[1], amount1)
	return nil
}

// GetDY quotes the output of swapping dx of coin i for coin j.
func (p *Pool) GetDY(i, j int, dx *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getDY(i, j, dx)
}

// getDY computes x*y=k output with the fee applied to the input. Lock held.
func (p *Pool) getDY(i, j int, dx *big.Int) (*big.Int, error) {
	if dx == nil || dx.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	dxAfterFee := new(big.Int).Mul(dx, big.NewInt(10_000-p.feeBps))
	dxAfterFee.Div(dxAfterFee, big.NewInt(10_000))

	// dy = reserveJ * dx' / (reserveI + dx'), rounded down.
	num := new(big.Int).Mul(p.reserves[j], dxAfterFee)
	den := new(big.Int).Add(p.reserves[i], dxAfterFee)
	return num.Div(num, den), nil
}

// GetDX quotes the coin-i input required to receive exactly dy of coin j.
// The quote rounds up, so swapping the quoted input yields at least dy.
func (p *Pool) GetDX(i, j int, dy *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if dy == nil || dy.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if dy.Cmp(p.reserves[j]) >= 0 {
		return nil, ErrDrainedPool
	}

	// dx' = reserveI * dy / (reserveJ - dy), then gross up the fee.
	num := new(big.Int).Mul(p.reserves[i], dy)
	den := new(big.Int).Sub(p.reserves[j], dy)
	dxAfterFee := ceilDiv(num, den)

	dx := new(big.Int).Mul(dxAfterFee, big.NewInt(10_000))
	dx = ceilDiv(dx, big.NewInt(10_000-p.feeBps))
	return dx, nil
}

// Exchange swaps dx of coin i for coin j. Funds only move when the computed
// output clears minOut: the shortfall check happens before any transfer.
func (p *Pool) Exchange(i, j int, payer token.Account, dx, minOut *big.Int, recipient token.Account) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dy, err := p.getDY(i, j, dx)
	if err != nil {
		return nil, err
	}
	if minOut != nil && dy.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("%w: quoted %s, need %s", ErrMinOut, dy, minOut)
	}

	if err := p.coins[i].TransferFrom(p.account, payer, p.account, dx); err != nil {
		return nil, fmt.Errorf("pulling input: %w", err)
	}
	if err := p.coins[j].Transfer(p.account, recipient, dy); err != nil {
		p.coins[i].Transfer(p.account, payer, dx)
		return nil, fmt.Errorf("paying output: %w", err)
	}

	p.reserves[i].Add(p.reserves[i], dx)
	p.reserves[j].Sub(p.reserves[j], dy)
	return dy, nil
}

// ceilDiv returns a/b rounded up, for positive b.
func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
