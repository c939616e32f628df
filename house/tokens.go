package house

import (
	"math/big"

	"github.com/leviathan-news/auction-block/token"
	"github.com/leviathan-news/auction-block/zap"
)

// AddTokenSupport registers an adapter for a secondary token, or replaces
// the adapter of an already supported token in place. The payment asset
// itself can never be registered.
func (h *House) AddTokenSupport(caller token.Account, tok token.Token, adapter zap.Adapter) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if caller != h.owner {
		return ErrNotOwner
	}
	if tok == nil || tok == h.payment {
		return ErrPaymentTokenTrade
	}
	if adapter == nil {
		return ErrNilAdapter
	}
	if adapter.TokenIn() != tok {
		return ErrAdapterMismatch
	}

	for i := range h.supported {
		if h.supported[i].tok == tok {
			h.supported[i].adapter = adapter
			return nil
		}
	}
	if len(h.supported) >= MaxSupportedTokens {
		return errInvalid("supported token list full")
	}
	h.supported = append(h.supported, supportedToken{tok: tok, adapter: adapter})
	return nil
}

// RevokeTokenSupport removes a token from the registry, preserving the
// relative order of the remaining entries.
func (h *House) RevokeTokenSupport(caller token.Account, tok token.Token) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if caller != h.owner {
		return ErrNotOwner
	}
	for i := range h.supported {
		if h.supported[i].tok == tok {
			h.supported = append(h.supported[:i], h.supported[i+1:]...)
			return nil
		}
	}
	return ErrUnsupportedToken
}

// SupportedTokens lists the registered secondary tokens in registration
// order.
func (h *House) SupportedTokens() []token.Token {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]token.Token, len(h.supported))
	for i := range h.supported {
		out[i] = h.supported[i].tok
	}
	return out
}

// adapterForLocked returns the adapter for a token, or nil.
func (h *House) adapterForLocked(tok token.Token) zap.Adapter {
	for i := range h.supported {
		if h.supported[i].tok == tok {
			return h.supported[i].adapter
		}
	}
	return nil
}

// GetDY quotes the payment-asset output of converting amount of tok.
func (h *House) GetDY(tok token.Token, amount *big.Int) (*big.Int, error) {
	h.mu.Lock()
	adapter := h.adapterForLocked(tok)
	h.mu.Unlock()
	if adapter == nil {
		return nil, ErrUnsupportedToken
	}
	return adapter.GetDY(amount)
}

// GetDX quotes the tok input required for an exact payment-asset output.
func (h *House) GetDX(tok token.Token, amount *big.Int) (*big.Int, error) {
	h.mu.Lock()
	adapter := h.adapterForLocked(tok)
	h.mu.Unlock()
	if adapter == nil {
		return nil, ErrUnsupportedToken
	}
	return adapter.GetDX(amount)
}

// SafeGetDX quotes a slippage-padded tok input guaranteed to convert to at
// least the requested payment-asset output.
func (h *House) SafeGetDX(tok token.Token, amount *big.Int) (*big.Int, error) {
	h.mu.Lock()
	adapter := h.adapterForLocked(tok)
	h.mu.Unlock()
	if adapter == nil {
		return nil, ErrUnsupportedToken
	}
	return adapter.SafeGetDX(amount)
}
