package farm

import (
	"fmt"
	"math/big"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
)

// PoolKind fixes how a pool pulls deposits from users. It is decided when the
// pool is added and never re-derived from the asset address.
type PoolKind uint8

const (
	// PoolToken pulls a fungible token and measures the received delta.
	PoolToken PoolKind = iota + 1
	// PoolNative pulls native value.
	PoolNative
	// PoolWrappedNative pulls the wrapped-native token and unwraps it before
	// handing native value to the vault.
	PoolWrappedNative
)

func (k PoolKind) String() string {
	switch k {
	case PoolToken:
		return "token"
	case PoolNative:
		return "native"
	case PoolWrappedNative:
		return "wrapped-native"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParsePoolKind converts a configuration string into a PoolKind.
func ParsePoolKind(s string) (PoolKind, error) {
	switch s {
	case "token":
		return PoolToken, nil
	case "native":
		return PoolNative, nil
	case "wrapped-native", "wrapped":
		return PoolWrappedNative, nil
	default:
		return 0, fmt.Errorf("farm: unknown pool kind %q", s)
	}
}

// Pool is one farming slot. Pools are append-only and indexed by position.
type Pool struct {
	ID                uint64
	Asset             types.Asset
	Kind              PoolKind
	AllocWeight       uint64
	TotalStaked       *big.Int
	WithdrawFeeRate   uint64
	LastRewardTime    uint64
	AccRewardPerShare *big.Int
	Vault             crypto.Address
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalStaked = copyBig(p.TotalStaked)
	clone.AccRewardPerShare = copyBig(p.AccRewardPerShare)
	return &clone
}

// UserStake tracks a user's position in one pool.
type UserStake struct {
	Amount     *big.Int
	RewardDebt *big.Int
}

// Clone returns a deep copy of the stake.
func (s *UserStake) Clone() *UserStake {
	if s == nil {
		return nil
	}
	return &UserStake{Amount: copyBig(s.Amount), RewardDebt: copyBig(s.RewardDebt)}
}

// Globals holds farm wide configuration and counters.
type Globals struct {
	Account          crypto.Address
	Owner            crypto.Address
	RewardToken      crypto.Address
	BaseEmissionRate *big.Int
	BonusEndTime     uint64
	MiningStarted    bool
	MiningStartTime  uint64
	TotalAllocWeight uint64
	TotalPaidRewards *big.Int
	PoolCount        uint64
}

// Clone returns a deep copy of the globals.
func (g *Globals) Clone() *Globals {
	if g == nil {
		return nil
	}
	clone := *g
	clone.BaseEmissionRate = copyBig(g.BaseEmissionRate)
	clone.TotalPaidRewards = copyBig(g.TotalPaidRewards)
	return &clone
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
