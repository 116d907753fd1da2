package state

import (
	"fmt"
	"math/big"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
	"yieldfarm/native/farm"
)

// FarmGlobals loads the farm wide configuration.
func (m *Manager) FarmGlobals() (*farm.Globals, bool, error) {
	globals := new(farm.Globals)
	ok, err := m.KVGet(farmGlobalsKeyBytes, globals)
	if err != nil || !ok {
		return nil, ok, err
	}
	return globals.Clone(), true, nil
}

// FarmPutGlobals stores the farm wide configuration.
func (m *Manager) FarmPutGlobals(globals *farm.Globals) error {
	if globals == nil {
		return fmt.Errorf("state: nil farm globals")
	}
	if err := checkAmounts(globals.BaseEmissionRate, globals.TotalPaidRewards); err != nil {
		return err
	}
	return m.KVPut(farmGlobalsKeyBytes, globals.Clone())
}

// FarmPool loads a pool by position.
func (m *Manager) FarmPool(id uint64) (*farm.Pool, bool, error) {
	pool := new(farm.Pool)
	ok, err := m.KVGet(FarmPoolKey(id), pool)
	if err != nil || !ok {
		return nil, ok, err
	}
	return pool.Clone(), true, nil
}

// FarmPutPool stores a pool record.
func (m *Manager) FarmPutPool(pool *farm.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil pool")
	}
	if err := checkAmounts(pool.TotalStaked, pool.AccRewardPerShare); err != nil {
		return err
	}
	return m.KVPut(FarmPoolKey(pool.ID), pool.Clone())
}

// FarmPoolIDByAsset resolves the pool registered for the asset.
func (m *Manager) FarmPoolIDByAsset(asset types.Asset) (uint64, bool, error) {
	var id uint64
	ok, err := m.KVGet(joinKey(farmPoolAssetPrefix, assetPart(asset)), &id)
	return id, ok, err
}

// FarmIndexPoolAsset records the asset to pool mapping.
func (m *Manager) FarmIndexPoolAsset(asset types.Asset, id uint64) error {
	return m.KVPut(joinKey(farmPoolAssetPrefix, assetPart(asset)), id)
}

// FarmStake loads the user's stake in a pool. Missing stakes are returned as
// zero values.
func (m *Manager) FarmStake(pid uint64, user crypto.Address) (*farm.UserStake, error) {
	stake := new(farm.UserStake)
	ok, err := m.KVGet(FarmStakeKey(pid, user), stake)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &farm.UserStake{Amount: big.NewInt(0), RewardDebt: big.NewInt(0)}, nil
	}
	return stake.Clone(), nil
}

// FarmPutStake stores a user's stake. Zero stakes are kept.
func (m *Manager) FarmPutStake(pid uint64, user crypto.Address, stake *farm.UserStake) error {
	if stake == nil {
		return fmt.Errorf("state: nil stake")
	}
	if err := checkAmounts(stake.Amount, stake.RewardDebt); err != nil {
		return err
	}
	return m.KVPut(FarmStakeKey(pid, user), stake.Clone())
}

// FarmAddPoolUser appends the user to the pool's ordered user set.
func (m *Manager) FarmAddPoolUser(pid uint64, user crypto.Address) error {
	return m.addToSet(joinKey(farmPoolUsersPrefix, poolPart(pid)), joinKey(farmPoolMemberPrefix, poolPart(pid), addrPart(user)), user)
}

// FarmPoolUsers lists the pool's users in first-deposit order.
func (m *Manager) FarmPoolUsers(pid uint64) ([]crypto.Address, error) {
	return m.loadSet(joinKey(farmPoolUsersPrefix, poolPart(pid)))
}

func (m *Manager) addToSet(listKey, memberKey []byte, addr crypto.Address) error {
	if addr.IsZero() {
		return fmt.Errorf("state: set member must not be zero")
	}
	ok, err := m.KVGet(memberKey, nil)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	list, err := m.loadSet(listKey)
	if err != nil {
		return err
	}
	list = append(list, addr)
	if err := m.KVPut(listKey, list); err != nil {
		return err
	}
	return m.KVPut(memberKey, true)
}

func (m *Manager) loadSet(listKey []byte) ([]crypto.Address, error) {
	var list []crypto.Address
	if _, err := m.KVGet(listKey, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []crypto.Address{}
	}
	return list, nil
}
