package genesis

import (
	"bytes"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"yieldfarm/config"
	"yieldfarm/core/state"
	"yieldfarm/core/types"
	"yieldfarm/crypto"
	"yieldfarm/native/farm"
	"yieldfarm/storage"
)

func account(b byte) crypto.Address {
	return crypto.MustNewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{b}, crypto.AddressLength))
}

func sampleFarm() *config.Farm {
	start := uint64(1_000)
	return &config.Farm{
		Owner:         account(0x01).String(),
		RewardToken:   "RWD",
		EmissionRate:  "100",
		StartTime:     &start,
		RewardReserve: "1000000",
		Tokens: []config.Token{
			{Symbol: "RWD", Decimals: 18},
			{Symbol: "LP", Decimals: 18},
		},
		Pools: []config.Pool{
			{Asset: "LP", Kind: "token", Weight: 1, WithdrawFeeRate: 10},
			{Asset: config.NativeSymbol, Kind: "native", Weight: 3, Strategy: "custody"},
		},
		Alloc: map[string]map[string]string{
			account(0x0a).String(): {"LP": "1000", config.NativeSymbol: "500"},
		},
	}
}

func TestBuildFreshDeployment(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	now := int64(1_000)
	cfg := sampleFarm()
	require.NoError(t, cfg.Validate())

	dep, err := Build(cfg, mgr, Options{Now: func() int64 { return now }})
	require.NoError(t, err)
	require.Len(t, dep.Vaults, 2)
	require.Len(t, dep.Strategies, 1)
	require.Nil(t, dep.Unwrapper)

	length, err := dep.Farm.PoolLength()
	require.NoError(t, err)
	require.EqualValues(t, 2, length)

	globals, err := dep.Farm.Globals()
	require.NoError(t, err)
	require.True(t, globals.MiningStarted)
	require.EqualValues(t, 1_000, globals.MiningStartTime)
	require.EqualValues(t, 4, globals.TotalAllocWeight)

	reward := types.TokenAsset(crypto.TokenAddress("RWD"))
	reserve, err := dep.Ledger.BalanceOf(reward, FarmAddress)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000), reserve)

	alice := account(0x0a)
	lp, err := dep.Ledger.BalanceOf(AssetForSymbol("LP"), alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000), lp)
	native, err := dep.Ledger.BalanceOf(types.NativeAsset(), alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), native)

	credited, err := dep.Farm.Deposit(alice, 0, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), credited)

	now += 10
	pending, err := dep.Farm.PendingReward(0, alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(250), pending)
}

func TestBuildReattachesOnRestart(t *testing.T) {
	db := storage.NewMemDB()
	mgr := state.NewManager(db)
	now := int64(1_000)
	clock := func() int64 { return now }

	dep, err := Build(sampleFarm(), mgr, Options{Now: clock})
	require.NoError(t, err)
	alice := account(0x0a)
	_, err = dep.Farm.Deposit(alice, 1, big.NewInt(200))
	require.NoError(t, err)
	require.NoError(t, mgr.Commit())

	restarted := state.NewManager(db)
	again, err := Build(sampleFarm(), restarted, Options{Now: clock})
	require.NoError(t, err)
	require.Zero(t, restarted.Pending())

	length, err := again.Farm.PoolLength()
	require.NoError(t, err)
	require.EqualValues(t, 2, length)
	require.NotNil(t, again.Vaults[1].Strategy())
	require.Nil(t, again.Vaults[0].Strategy())

	// Balances minted at genesis are not minted twice.
	native, err := again.Ledger.BalanceOf(types.NativeAsset(), alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(300), native)

	net, err := again.Farm.Withdraw(alice, 1, big.NewInt(200))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(200), net)
}

func TestBuildRejectsReorderedPools(t *testing.T) {
	db := storage.NewMemDB()
	mgr := state.NewManager(db)
	_, err := Build(sampleFarm(), mgr, Options{Now: func() int64 { return 1_000 }})
	require.NoError(t, err)
	require.NoError(t, mgr.Commit())

	cfg := sampleFarm()
	cfg.Pools[0], cfg.Pools[1] = cfg.Pools[1], cfg.Pools[0]
	_, err = Build(cfg, state.NewManager(db), Options{Now: func() int64 { return 1_000 }})
	require.ErrorContains(t, err, "stored pool holds")
}

func TestBuildWiresWrappedNative(t *testing.T) {
	cfg := sampleFarm()
	cfg.Tokens = append(cfg.Tokens, config.Token{Symbol: "WNAT", Decimals: 18, WrapsNative: true})
	cfg.Pools = append(cfg.Pools, config.Pool{Asset: "WNAT", Kind: "wrapped-native", Weight: 1})
	require.NoError(t, cfg.Validate())

	dep, err := Build(cfg, state.NewManager(storage.NewMemDB()), Options{Now: func() int64 { return 1_000 }})
	require.NoError(t, err)
	require.NotNil(t, dep.Unwrapper)
	require.Equal(t, crypto.TokenAddress("WNAT"), dep.Unwrapper.Token())

	asset, err := dep.Vaults[2].Asset()
	require.NoError(t, err)
	require.True(t, asset.IsNative())
}

func TestDeploymentAddPoolAtRuntime(t *testing.T) {
	db := storage.NewMemDB()
	mgr := state.NewManager(db)
	clock := func() int64 { return 1_000 }
	dep, err := Build(sampleFarm(), mgr, Options{Now: clock})
	require.NoError(t, err)
	require.NoError(t, mgr.Commit())

	_, err = dep.AddPool(account(0x0b), config.Pool{Asset: "RWD", Kind: "token", Weight: 1})
	require.ErrorIs(t, err, farm.ErrUnauthorized)

	pid, err := dep.AddPool(dep.Owner(), config.Pool{Asset: "RWD", Kind: "token", Weight: 2, Strategy: "custody"})
	require.NoError(t, err)
	require.EqualValues(t, 2, pid)

	v, err := dep.VaultFor(pid)
	require.NoError(t, err)
	require.Equal(t, VaultAddress("RWD"), v.Address())
	require.NotNil(t, v.Strategy())
	require.Len(t, dep.Strategies, 2)
	require.NoError(t, mgr.Commit())

	_, err = dep.AddPool(dep.Owner(), config.Pool{Asset: "LP2", Kind: "token", Weight: math.MaxUint64, Strategy: "custody"})
	require.ErrorIs(t, err, farm.ErrInvalidWeight)
	mgr.Discard()
	require.Len(t, dep.Strategies, 2)
	require.Len(t, dep.Vaults, 3)
	_, tracked := dep.Strategies[StrategyAddress("LP2")]
	require.False(t, tracked)

	again, err := Build(sampleFarm(), state.NewManager(db), Options{Now: clock})
	require.NoError(t, err)
	length, err := again.Farm.PoolLength()
	require.NoError(t, err)
	require.EqualValues(t, 3, length)
	restored, err := again.VaultFor(pid)
	require.NoError(t, err)
	require.NotNil(t, restored.Strategy())
}
