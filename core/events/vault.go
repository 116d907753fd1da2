package events

import (
	"math/big"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
)

const (
	// TypeVaultDeposited captures principal credited to a vault account.
	TypeVaultDeposited = "vault.deposited"
	// TypeVaultWithdrawn captures principal released from a vault account.
	TypeVaultWithdrawn = "vault.withdrawn"
	// TypeVaultStrategyBound is emitted when the vault swaps its strategy.
	TypeVaultStrategyBound = "vault.strategy.bound"
	// TypeVaultYieldClaimed is emitted when strategy yield is claimed.
	TypeVaultYieldClaimed = "vault.yield.claimed"
)

// VaultDeposited records the measured deposit for a user.
type VaultDeposited struct {
	Vault     crypto.Address
	User      crypto.Address
	Requested *big.Int
	Received  *big.Int
	Strategy  crypto.Address
}

// EventType satisfies the Event interface.
func (VaultDeposited) EventType() string { return TypeVaultDeposited }

// Event converts the structured payload into a broadcastable event.
func (e VaultDeposited) Event() *types.Event {
	return &types.Event{Type: TypeVaultDeposited, Attributes: map[string]string{
		"vault":     formatAddress(e.Vault),
		"user":      formatAddress(e.User),
		"requested": formatAmount(e.Requested),
		"received":  formatAmount(e.Received),
		"strategy":  formatAddress(e.Strategy),
	}}
}

// VaultWithdrawn records a withdrawal and the fee carved out of it.
type VaultWithdrawn struct {
	Vault        crypto.Address
	User         crypto.Address
	Amount       *big.Int
	Net          *big.Int
	Fee          *big.Int
	FeeRecipient crypto.Address
}

// EventType satisfies the Event interface.
func (VaultWithdrawn) EventType() string { return TypeVaultWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e VaultWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeVaultWithdrawn, Attributes: map[string]string{
		"vault":        formatAddress(e.Vault),
		"user":         formatAddress(e.User),
		"amount":       formatAmount(e.Amount),
		"net":          formatAmount(e.Net),
		"fee":          formatAmount(e.Fee),
		"feeRecipient": formatAddress(e.FeeRecipient),
	}}
}

// VaultStrategyBound records a strategy swap and the idle funds swept into it.
type VaultStrategyBound struct {
	Vault         crypto.Address
	Previous      crypto.Address
	Strategy      crypto.Address
	Swept         *big.Int
	PriorDeployed *big.Int
}

// EventType satisfies the Event interface.
func (VaultStrategyBound) EventType() string { return TypeVaultStrategyBound }

// Event converts the structured payload into a broadcastable event.
func (e VaultStrategyBound) Event() *types.Event {
	return &types.Event{Type: TypeVaultStrategyBound, Attributes: map[string]string{
		"vault":         formatAddress(e.Vault),
		"previous":      formatAddress(e.Previous),
		"strategy":      formatAddress(e.Strategy),
		"swept":         formatAmount(e.Swept),
		"priorDeployed": formatAmount(e.PriorDeployed),
	}}
}

// VaultYieldClaimed records strategy yield forwarded to a recipient.
type VaultYieldClaimed struct {
	Vault    crypto.Address
	Strategy crypto.Address
	To       crypto.Address
	Amount   *big.Int
}

// EventType satisfies the Event interface.
func (VaultYieldClaimed) EventType() string { return TypeVaultYieldClaimed }

// Event converts the structured payload into a broadcastable event.
func (e VaultYieldClaimed) Event() *types.Event {
	return &types.Event{Type: TypeVaultYieldClaimed, Attributes: map[string]string{
		"vault":    formatAddress(e.Vault),
		"strategy": formatAddress(e.Strategy),
		"to":       formatAddress(e.To),
		"amount":   formatAmount(e.Amount),
	}}
}
