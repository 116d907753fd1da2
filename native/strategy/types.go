package strategy

import (
	"math/big"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
)

// Position is the persisted book of a custody strategy.
type Position struct {
	Address   crypto.Address
	Want      types.Asset
	Vault     crypto.Address
	Principal *big.Int
	Claimed   *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Principal = copyBig(p.Principal)
	clone.Claimed = copyBig(p.Claimed)
	return &clone
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
