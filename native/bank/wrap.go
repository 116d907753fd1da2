package bank

import (
	"errors"
	"fmt"
	"math/big"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
)

var errNotWrappedToken = errors.New("bank: token does not wrap the native asset")

// WrappedNative converts between native value and its wrapped token 1:1.
// Wrapping burns native value and mints the token; unwrapping reverses it.
type WrappedNative struct {
	ledger *Ledger
	token  crypto.Address
}

// NewWrappedNative binds the helper to a token registered with WrapsNative.
func NewWrappedNative(ledger *Ledger, token crypto.Address) (*WrappedNative, error) {
	cfg, err := ledger.Token(token)
	if err != nil {
		return nil, err
	}
	if !cfg.WrapsNative {
		return nil, fmt.Errorf("%w: %s", errNotWrappedToken, cfg.Symbol)
	}
	return &WrappedNative{ledger: ledger, token: token}, nil
}

// Token returns the wrapped token address.
func (w *WrappedNative) Token() crypto.Address { return w.token }

// Wrap converts the holder's native value into wrapped tokens.
func (w *WrappedNative) Wrap(holder crypto.Address, amount *big.Int) error {
	if err := w.ledger.Burn(types.NativeAsset(), holder, amount); err != nil {
		return err
	}
	return w.ledger.Mint(types.TokenAsset(w.token), holder, amount)
}

// Unwrap converts the holder's wrapped tokens into native value and returns
// the native amount credited.
func (w *WrappedNative) Unwrap(holder crypto.Address, amount *big.Int) (*big.Int, error) {
	before, err := w.ledger.BalanceOf(types.NativeAsset(), holder)
	if err != nil {
		return nil, err
	}
	if err := w.ledger.Burn(types.TokenAsset(w.token), holder, amount); err != nil {
		return nil, err
	}
	if err := w.ledger.Mint(types.NativeAsset(), holder, amount); err != nil {
		return nil, err
	}
	after, err := w.ledger.BalanceOf(types.NativeAsset(), holder)
	if err != nil {
		return nil, err
	}
	return after.Sub(after, before), nil
}
