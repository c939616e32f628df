package directory

import (
	"fmt"
	"math/big"

	"github.com/leviathan-news/auction-block/house"
	"github.com/leviathan-news/auction-block/token"
	"github.com/leviathan-news/auction-block/zap"
)

// AddTokenSupport registers a secondary token with its trading adapter for
// every house behind the directory. The rules match the per-house registry:
// no nil adapters, no trading the payment asset for itself, and the adapter
// must consume the token it is registered under. Re-registering replaces the
// adapter in place.
func (d *Directory) AddTokenSupport(caller token.Account, tok token.Token, adapter zap.Adapter) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if caller != d.owner {
		return ErrNotOwner
	}
	if tok == nil || tok == d.payment {
		return ErrPaymentTokenTrade
	}
	if adapter == nil {
		return ErrNilAdapter
	}
	if adapter.TokenIn() != tok {
		return ErrAdapterMismatch
	}

	for i := range d.supported {
		if d.supported[i].tok == tok {
			d.supported[i].adapter = adapter
			return nil
		}
	}
	if len(d.supported) >= house.MaxSupportedTokens {
		return fmt.Errorf("supported token limit %d reached", house.MaxSupportedTokens)
	}
	d.supported = append(d.supported, supportedToken{tok: tok, adapter: adapter})
	d.log.Info("token support added", "token", tok.Symbol())
	return nil
}

// RevokeTokenSupport removes a token, preserving the order of the rest.
func (d *Directory) RevokeTokenSupport(caller token.Account, tok token.Token) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if caller != d.owner {
		return ErrNotOwner
	}
	for i := range d.supported {
		if d.supported[i].tok == tok {
			d.supported = append(d.supported[:i], d.supported[i+1:]...)
			d.log.Info("token support revoked", "token", tok.Symbol())
			return nil
		}
	}
	return ErrUnsupportedToken
}

// SupportedTokens lists the registered tokens in registration order.
func (d *Directory) SupportedTokens() []token.Token {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]token.Token, len(d.supported))
	for i, s := range d.supported {
		out[i] = s.tok
	}
	return out
}

func (d *Directory) adapterForLocked(tok token.Token) zap.Adapter {
	for _, s := range d.supported {
		if s.tok == tok {
			return s.adapter
		}
	}
	return nil
}

// GetDY quotes the payment output for a secondary-token input.
func (d *Directory) GetDY(tok token.Token, amount *big.Int) (*big.Int, error) {
	d.mu.Lock()
	adapter := d.adapterForLocked(tok)
	d.mu.Unlock()
	if adapter == nil {
		return nil, ErrUnsupportedToken
	}
	return adapter.GetDY(amount)
}

// GetDX quotes the secondary-token input for an exact payment output.
func (d *Directory) GetDX(tok token.Token, amount *big.Int) (*big.Int, error) {
	d.mu.Lock()
	adapter := d.adapterForLocked(tok)
	d.mu.Unlock()
	if adapter == nil {
		return nil, ErrUnsupportedToken
	}
	return adapter.GetDX(amount)
}

// SafeGetDX quotes a padded input guaranteed to buy at least amount.
func (d *Directory) SafeGetDX(tok token.Token, amount *big.Int) (*big.Int, error) {
	d.mu.Lock()
	adapter := d.adapterForLocked(tok)
	d.mu.Unlock()
	if adapter == nil {
		return nil, ErrUnsupportedToken
	}
	return adapter.SafeGetDX(amount)
}
