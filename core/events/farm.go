package events

import (
	"math/big"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
)

const (
	// TypeFarmMiningStarted is emitted once when reward emission is enabled.
	TypeFarmMiningStarted = "farm.mining.started"
	// TypeFarmPoolAdded is emitted when a new pool is registered.
	TypeFarmPoolAdded = "farm.pool.added"
	// TypeFarmPoolUpdated is emitted when a pool weight or fee rate changes.
	TypeFarmPoolUpdated = "farm.pool.updated"
	// TypeFarmDeposited captures stake growth in a pool.
	TypeFarmDeposited = "farm.deposited"
	// TypeFarmWithdrawn captures stake reduction in a pool.
	TypeFarmWithdrawn = "farm.withdrawn"
	// TypeFarmEmergencyWithdrawn captures a withdrawal that forfeited rewards.
	TypeFarmEmergencyWithdrawn = "farm.emergencyWithdrawn"
	// TypeFarmHarvested captures a reward payout.
	TypeFarmHarvested = "farm.harvested"
)

// FarmMiningStarted records the configured emission start.
type FarmMiningStarted struct {
	StartTime uint64
	Rate      *big.Int
	BonusEnd  uint64
}

// EventType satisfies the Event interface.
func (FarmMiningStarted) EventType() string { return TypeFarmMiningStarted }

// Event converts the structured payload into a broadcastable event.
func (e FarmMiningStarted) Event() *types.Event {
	return &types.Event{Type: TypeFarmMiningStarted, Attributes: map[string]string{
		"startTime": formatUint(e.StartTime),
		"rate":      formatAmount(e.Rate),
		"bonusEnd":  formatUint(e.BonusEnd),
	}}
}

// FarmPoolAdded records a newly registered pool.
type FarmPoolAdded struct {
	PoolID   uint64
	Asset    types.Asset
	Kind     string
	Weight   uint64
	FeeRate  uint64
	Vault    crypto.Address
	StartsAt uint64
}

// EventType satisfies the Event interface.
func (FarmPoolAdded) EventType() string { return TypeFarmPoolAdded }

// Event converts the structured payload into a broadcastable event.
func (e FarmPoolAdded) Event() *types.Event {
	return &types.Event{Type: TypeFarmPoolAdded, Attributes: map[string]string{
		"pid":      formatUint(e.PoolID),
		"asset":    e.Asset.String(),
		"kind":     e.Kind,
		"weight":   formatUint(e.Weight),
		"feeRate":  formatUint(e.FeeRate),
		"vault":    formatAddress(e.Vault),
		"startsAt": formatUint(e.StartsAt),
	}}
}

// FarmPoolUpdated records admin changes to a pool.
type FarmPoolUpdated struct {
	PoolID      uint64
	Weight      uint64
	FeeRate     uint64
	TotalWeight uint64
}

// EventType satisfies the Event interface.
func (FarmPoolUpdated) EventType() string { return TypeFarmPoolUpdated }

// Event converts the structured payload into a broadcastable event.
func (e FarmPoolUpdated) Event() *types.Event {
	return &types.Event{Type: TypeFarmPoolUpdated, Attributes: map[string]string{
		"pid":         formatUint(e.PoolID),
		"weight":      formatUint(e.Weight),
		"feeRate":     formatUint(e.FeeRate),
		"totalWeight": formatUint(e.TotalWeight),
	}}
}

// FarmDeposited captures the credited stake for a deposit.
type FarmDeposited struct {
	PoolID    uint64
	User      crypto.Address
	Requested *big.Int
	Credited  *big.Int
	NewStake  *big.Int
}

// EventType satisfies the Event interface.
func (FarmDeposited) EventType() string { return TypeFarmDeposited }

// Event converts the structured payload into a broadcastable event.
func (e FarmDeposited) Event() *types.Event {
	return &types.Event{Type: TypeFarmDeposited, Attributes: map[string]string{
		"pid":       formatUint(e.PoolID),
		"user":      formatAddress(e.User),
		"requested": formatAmount(e.Requested),
		"credited":  formatAmount(e.Credited),
		"newStake":  formatAmount(e.NewStake),
	}}
}

// FarmWithdrawn captures a stake withdrawal and its fee split.
type FarmWithdrawn struct {
	PoolID   uint64
	User     crypto.Address
	Amount   *big.Int
	Net      *big.Int
	Fee      *big.Int
	NewStake *big.Int
}

// EventType satisfies the Event interface.
func (FarmWithdrawn) EventType() string { return TypeFarmWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e FarmWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeFarmWithdrawn, Attributes: map[string]string{
		"pid":      formatUint(e.PoolID),
		"user":     formatAddress(e.User),
		"amount":   formatAmount(e.Amount),
		"net":      formatAmount(e.Net),
		"fee":      formatAmount(e.Fee),
		"newStake": formatAmount(e.NewStake),
	}}
}

// FarmEmergencyWithdrawn captures a withdrawal that skipped reward settlement.
type FarmEmergencyWithdrawn struct {
	PoolID    uint64
	User      crypto.Address
	Amount    *big.Int
	Net       *big.Int
	Forfeited *big.Int
}

// EventType satisfies the Event interface.
func (FarmEmergencyWithdrawn) EventType() string { return TypeFarmEmergencyWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e FarmEmergencyWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeFarmEmergencyWithdrawn, Attributes: map[string]string{
		"pid":       formatUint(e.PoolID),
		"user":      formatAddress(e.User),
		"amount":    formatAmount(e.Amount),
		"net":       formatAmount(e.Net),
		"forfeited": formatAmount(e.Forfeited),
	}}
}

// FarmHarvested captures a reward settlement. Paid may be lower than Pending
// when the farm's reward balance cannot cover the full amount.
type FarmHarvested struct {
	PoolID  uint64
	User    crypto.Address
	Pending *big.Int
	Paid    *big.Int
}

// EventType satisfies the Event interface.
func (FarmHarvested) EventType() string { return TypeFarmHarvested }

// Event converts the structured payload into a broadcastable event.
func (e FarmHarvested) Event() *types.Event {
	return &types.Event{Type: TypeFarmHarvested, Attributes: map[string]string{
		"pid":     formatUint(e.PoolID),
		"user":    formatAddress(e.User),
		"pending": formatAmount(e.Pending),
		"paid":    formatAmount(e.Paid),
	}}
}
