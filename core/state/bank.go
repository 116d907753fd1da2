package state

import (
	"fmt"
	"math/big"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
	"yieldfarm/native/bank"
)

// BankBalance returns the holder's balance of the asset, zero when unset.
func (m *Manager) BankBalance(asset types.Asset, holder crypto.Address) (*big.Int, error) {
	return m.getAmount(BankBalanceKey(asset, holder))
}

// BankSetBalance overwrites the holder's balance of the asset.
func (m *Manager) BankSetBalance(asset types.Asset, holder crypto.Address, amount *big.Int) error {
	if holder.IsZero() {
		return fmt.Errorf("state: balance holder must not be zero")
	}
	return m.putAmount(BankBalanceKey(asset, holder), amount)
}

// BankAllowance returns the spender's remaining allowance over the owner's
// tokens.
func (m *Manager) BankAllowance(token, owner, spender crypto.Address) (*big.Int, error) {
	return m.getAmount(BankAllowanceKey(token, owner, spender))
}

// BankSetAllowance overwrites an allowance.
func (m *Manager) BankSetAllowance(token, owner, spender crypto.Address, amount *big.Int) error {
	return m.putAmount(BankAllowanceKey(token, owner, spender), amount)
}

// BankTokenGet loads a token configuration.
func (m *Manager) BankTokenGet(token crypto.Address) (*bank.TokenConfig, bool, error) {
	cfg := new(bank.TokenConfig)
	ok, err := m.KVGet(joinKey(bankTokenPrefix, addrPart(token)), cfg)
	if err != nil || !ok {
		return nil, ok, err
	}
	return cfg, true, nil
}

// BankTokenPut stores a token configuration.
func (m *Manager) BankTokenPut(cfg *bank.TokenConfig) error {
	if cfg == nil {
		return fmt.Errorf("state: nil token config")
	}
	return m.KVPut(joinKey(bankTokenPrefix, addrPart(cfg.Token)), cfg)
}
