// Package zap implements trading adapters: collaborators that convert a
// secondary token into the payment asset so bidders can bid without holding
// the payment asset directly.
//
// An Adapter exposes a forward quote (GetDY), an inverse quote (GetDX), a
// slippage-padded inverse quote (SafeGetDX) that over-estimates the required
// input, and a minimum-output-enforcing Exchange. One adapter is registered
// per supported secondary token.
//
// PoolZap adapts a two-coin constant-product Pool, which doubles as the
// liquidity venue for tests and local demos.
package zap
