package state

import (
	"fmt"

	"yieldfarm/crypto"
	"yieldfarm/native/strategy"
)

// StrategyPosition loads a custody strategy's book.
func (m *Manager) StrategyPosition(addr crypto.Address) (*strategy.Position, bool, error) {
	pos := new(strategy.Position)
	ok, err := m.KVGet(joinKey(strategyPositionPrefix, addrPart(addr)), pos)
	if err != nil || !ok {
		return nil, ok, err
	}
	return pos.Clone(), true, nil
}

// StrategyPutPosition stores a custody strategy's book.
func (m *Manager) StrategyPutPosition(pos *strategy.Position) error {
	if pos == nil {
		return fmt.Errorf("state: nil strategy position")
	}
	if err := checkAmounts(pos.Principal, pos.Claimed); err != nil {
		return err
	}
	return m.KVPut(joinKey(strategyPositionPrefix, addrPart(pos.Address)), pos.Clone())
}
