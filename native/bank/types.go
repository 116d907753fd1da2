package bank

import (
	"math/big"

	"github.com/holiman/uint256"

	"yieldfarm/crypto"
)

// MaxAllowance is the sentinel allowance (2^256-1) that is never decremented
// by TransferFrom.
var MaxAllowance = new(uint256.Int).SetAllOne().ToBig()

// TokenConfig describes a registered fungible token.
type TokenConfig struct {
	Token    crypto.Address
	Symbol   string
	Decimals uint8
	// TransferTaxBps is deducted from every transfer and burned, modelling
	// fee-on-transfer tokens.
	TransferTaxBps uint64
	// WrapsNative marks the token as the wrapped form of the native asset.
	WrapsNative bool
}

// Clone returns a copy of the token configuration.
func (c *TokenConfig) Clone() *TokenConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// IsUnlimited reports whether the allowance is the MaxAllowance sentinel.
func IsUnlimited(allowance *big.Int) bool {
	return allowance != nil && allowance.Cmp(MaxAllowance) == 0
}
