package zap

import (
	"errors"
	"math/big"

	"github.com/leviathan-news/auction-block/token"
)

// Adapter errors.
var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrMinOut        = errors.New("output below requested minimum")
	ErrDrainedPool   = errors.New("requested output exceeds pool reserve")
)

// Adapter converts a secondary token into the payment asset.
type Adapter interface {
	// GetDY quotes the payment-asset output for an input amount.
	GetDY(amountIn *big.Int) (*big.Int, error)

	// GetDX quotes the input required to obtain an exact output.
	GetDX(amountOut *big.Int) (*big.Int, error)

	// SafeGetDX quotes an over-estimated input such that exchanging it is
	// guaranteed to yield at least amountOut.
	SafeGetDX(amountOut *big.Int) (*big.Int, error)

	// Exchange pulls amountIn of the secondary token from payer, converts
	// it and sends the payment-asset output to recipient. It returns the
	// output amount and fails, moving nothing, if the output would be
	// below minOut.
	Exchange(payer token.Account, amountIn, minOut *big.Int, recipient token.Account) (*big.Int, error)

	// TokenIn returns the secondary token this adapter converts from.
	TokenIn() token.Token

	// Spender returns the account Exchange pulls the input through. A
	// payer must hold an allowance for it before exchanging.
	Spender() token.Account
}

// PoolZap adapts a two-coin Pool into an Adapter for a fixed trade
// direction. PadBps widens SafeGetDX quotes beyond the exact inverse so the
// quote survives the pool's own rounding.
type PoolZap struct {
	pool   *Pool
	in     int // pool index of the secondary token
	out    int // pool index of the payment asset
	padBps int64
}

// DefaultPadBps is the SafeGetDX over-estimation applied when none is
// configured: 30 bps, well inside the 0.1%-2% envelope observed on live
// pools.
const DefaultPadBps = 30

// NewPoolZap creates an adapter trading pool index in for index out.
func NewPoolZap(pool *Pool, in, out int, padBps int64) *PoolZap {
	if padBps <= 0 {
		padBps = DefaultPadBps
	}
	return &PoolZap{pool: pool, in: in, out: out, padBps: padBps}
}

// TokenIn returns the secondary token side of the pool.
func (z *PoolZap) TokenIn() token.Token {
	return z.pool.Coin(z.in)
}

// Spender returns the pool account, which pulls the input side of every
// exchange.
func (z *PoolZap) Spender() token.Account {
	return z.pool.Account()
}

// GetDY quotes the payment-asset output for amountIn of the secondary token.
func (z *PoolZap) GetDY(amountIn *big.Int) (*big.Int, error) {
	return z.pool.GetDY(z.in, z.out, amountIn)
}

// GetDX quotes the secondary-token input needed for an exact output.
func (z *PoolZap) GetDX(amountOut *big.Int) (*big.Int, error) {
	return z.pool.GetDX(z.in, z.out, amountOut)
}

// SafeGetDX quotes GetDX padded by the configured bps so that executing with
// the quoted input yields at least amountOut.
func (z *PoolZap) SafeGetDX(amountOut *big.Int) (*big.Int, error) {
	dx, err := z.pool.GetDX(z.in, z.out, amountOut)
	if err != nil {
		return nil, err
	}
	pad := new(big.Int).Mul(dx, big.NewInt(z.padBps))
	pad.Div(pad, big.NewInt(10_000))
	if pad.Sign() == 0 {
		pad.SetInt64(1)
	}
	return dx.Add(dx, pad), nil
}

// Exchange converts amountIn from payer, enforcing minOut, and credits the
// output to recipient.
func (z *PoolZap) Exchange(payer token.Account, amountIn, minOut *big.Int, recipient token.Account) (*big.Int, error) {
	return z.pool.Exchange(z.in, z.out, payer, amountIn, minOut, recipient)
}
