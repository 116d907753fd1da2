package vault

import (
	"math/big"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
)

// Meta is the persisted configuration and running totals of a vault.
type Meta struct {
	Address          crypto.Address
	Asset            types.Asset
	Farm             crypto.Address
	Owner            crypto.Address
	FeeRecipient     crypto.Address
	Strategy         crypto.Address
	TotalPrincipal   *big.Int
	TotalWithdrawFee *big.Int
}

// Clone returns a deep copy of the metadata.
func (m *Meta) Clone() *Meta {
	if m == nil {
		return nil
	}
	clone := *m
	clone.TotalPrincipal = copyBig(m.TotalPrincipal)
	clone.TotalWithdrawFee = copyBig(m.TotalWithdrawFee)
	return &clone
}

// Account is a depositor's principal record.
type Account struct {
	Principal *big.Int
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	return &Account{Principal: copyBig(a.Principal)}
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
