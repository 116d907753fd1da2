package state

import (
	"fmt"
	"math/big"

	"yieldfarm/crypto"
	"yieldfarm/native/vault"
)

// VaultMeta loads the vault record stored at the address.
func (m *Manager) VaultMeta(addr crypto.Address) (*vault.Meta, bool, error) {
	meta := new(vault.Meta)
	ok, err := m.KVGet(joinKey(vaultMetaPrefix, addrPart(addr)), meta)
	if err != nil || !ok {
		return nil, ok, err
	}
	return meta.Clone(), true, nil
}

// VaultPutMeta stores the vault record.
func (m *Manager) VaultPutMeta(meta *vault.Meta) error {
	if meta == nil {
		return fmt.Errorf("state: nil vault meta")
	}
	if err := checkAmounts(meta.TotalPrincipal, meta.TotalWithdrawFee); err != nil {
		return err
	}
	return m.KVPut(joinKey(vaultMetaPrefix, addrPart(meta.Address)), meta.Clone())
}

// VaultAccount loads a depositor record, zero when absent.
func (m *Manager) VaultAccount(vaultAddr, user crypto.Address) (*vault.Account, error) {
	account := new(vault.Account)
	ok, err := m.KVGet(VaultAccountKey(vaultAddr, user), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &vault.Account{Principal: big.NewInt(0)}, nil
	}
	return account.Clone(), nil
}

// VaultPutAccount stores a depositor record.
func (m *Manager) VaultPutAccount(vaultAddr, user crypto.Address, account *vault.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil vault account")
	}
	if err := checkAmounts(account.Principal); err != nil {
		return err
	}
	return m.KVPut(VaultAccountKey(vaultAddr, user), account.Clone())
}

// VaultAddUser appends the depositor to the vault's ordered user set.
func (m *Manager) VaultAddUser(vaultAddr, user crypto.Address) error {
	return m.addToSet(joinKey(vaultUsersPrefix, addrPart(vaultAddr)), joinKey(vaultMemberPrefix, addrPart(vaultAddr), addrPart(user)), user)
}

// VaultUsers lists the vault's depositors in first-deposit order.
func (m *Manager) VaultUsers(vaultAddr crypto.Address) ([]crypto.Address, error) {
	return m.loadSet(joinKey(vaultUsersPrefix, addrPart(vaultAddr)))
}
