package vault

import (
	"math/big"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
)

// Strategy is the yield-generating collaborator a vault may deploy capital
// into. Calls are made on behalf of the bound vault.
type Strategy interface {
	Address() crypto.Address
	WantAsset() types.Asset
	// PreDeposit runs before the vault moves any funds on deposit.
	PreDeposit() error
	// Deposit pulls amount of the want token from the vault's allowance.
	Deposit(from crypto.Address, amount *big.Int) error
	// DepositNative books native value the vault already sent.
	DepositNative(from crypto.Address, value *big.Int) error
	Withdraw(to crypto.Address, amount *big.Int) error
	WithdrawNative(to crypto.Address, amount *big.Int) error
	ReportedBalance() (*big.Int, error)
	PendingYield() (*big.Int, error)
	Claim(to crypto.Address) (*big.Int, error)
}

// TokenLedger is the fungible transfer primitive the vault moves funds with.
type TokenLedger interface {
	BalanceOf(asset types.Asset, holder crypto.Address) (*big.Int, error)
	Transfer(asset types.Asset, from, to crypto.Address, amount *big.Int) error
	TransferFrom(token, spender, from, to crypto.Address, amount *big.Int) error
	Approve(token, owner, spender crypto.Address, amount *big.Int) error
}
