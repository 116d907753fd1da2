package farm

import "math/big"

// accPrecision scales AccRewardPerShare.
var accPrecision = big.NewInt(1_000_000_000_000_000_000)

// Emission integrates the emission rate over [from, to). The base rate applies
// strictly before bonusEnd and half of it (truncated) from bonusEnd on. A zero
// bonusEnd disables halving. The result depends only on the timestamps, so
// checkpointing one pool never changes another pool's accrual.
func Emission(rate *big.Int, bonusEnd, from, to uint64) *big.Int {
	if rate == nil || rate.Sign() <= 0 || to <= from {
		return big.NewInt(0)
	}
	var full, halved uint64
	switch {
	case bonusEnd == 0 || to <= bonusEnd:
		full = to - from
	case from >= bonusEnd:
		halved = to - from
	default:
		full = bonusEnd - from
		halved = to - bonusEnd
	}
	total := new(big.Int).Mul(rate, new(big.Int).SetUint64(full))
	if halved > 0 {
		half := new(big.Int).Rsh(rate, 1)
		total.Add(total, half.Mul(half, new(big.Int).SetUint64(halved)))
	}
	return total
}

// RateAt returns the emission rate in force at ts.
func RateAt(rate *big.Int, bonusEnd, ts uint64) *big.Int {
	if rate == nil {
		return big.NewInt(0)
	}
	if bonusEnd != 0 && ts >= bonusEnd {
		return new(big.Int).Rsh(rate, 1)
	}
	return new(big.Int).Set(rate)
}

// poolReward is the pool's weighted share of emission since its checkpoint.
func poolReward(g *Globals, pool *Pool, now uint64) *big.Int {
	if g.TotalAllocWeight == 0 || pool.AllocWeight == 0 {
		return big.NewInt(0)
	}
	reward := Emission(g.BaseEmissionRate, g.BonusEndTime, pool.LastRewardTime, now)
	reward.Mul(reward, new(big.Int).SetUint64(pool.AllocWeight))
	return reward.Quo(reward, new(big.Int).SetUint64(g.TotalAllocWeight))
}

// projectAccRewardPerShare returns the accumulator as of now without mutating
// the pool.
func projectAccRewardPerShare(g *Globals, pool *Pool, now uint64) *big.Int {
	acc := new(big.Int).Set(pool.AccRewardPerShare)
	if now <= pool.LastRewardTime || pool.TotalStaked.Sign() == 0 {
		return acc
	}
	reward := poolReward(g, pool, now)
	reward.Mul(reward, accPrecision)
	reward.Quo(reward, pool.TotalStaked)
	return acc.Add(acc, reward)
}

// updatePool checkpoints the pool at now. It is a no-op when now is not after
// the last checkpoint, and an empty pool only advances its checkpoint so the
// emission of that interval is never credited to anyone.
func updatePool(g *Globals, pool *Pool, now uint64) {
	if now <= pool.LastRewardTime {
		return
	}
	pool.AccRewardPerShare = projectAccRewardPerShare(g, pool, now)
	pool.LastRewardTime = now
}

// accumulated returns amount*acc/1e18.
func accumulated(amount, acc *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, acc)
	return out.Quo(out, accPrecision)
}

// pendingFor returns the unsettled reward of the stake at acc, never negative.
func pendingFor(stake *UserStake, acc *big.Int) *big.Int {
	pending := accumulated(stake.Amount, acc)
	pending.Sub(pending, stake.RewardDebt)
	if pending.Sign() < 0 {
		return big.NewInt(0)
	}
	return pending
}
