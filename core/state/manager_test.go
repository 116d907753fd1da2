package state

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
	"yieldfarm/native/farm"
	"yieldfarm/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func TestSnapshotRevertRestoresPriorValues(t *testing.T) {
	mgr, _ := newTestManager(t)
	holder := crypto.ModuleAddress("holder")
	native := types.NativeAsset()

	require.NoError(t, mgr.BankSetBalance(native, holder, big.NewInt(10)))
	snap := mgr.Snapshot()

	require.NoError(t, mgr.BankSetBalance(native, holder, big.NewInt(25)))
	require.NoError(t, mgr.BankSetBalance(native, crypto.ModuleAddress("other"), big.NewInt(5)))
	mgr.RevertToSnapshot(snap)

	bal, err := mgr.BankBalance(native, holder)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), bal)

	other, err := mgr.BankBalance(native, crypto.ModuleAddress("other"))
	require.NoError(t, err)
	require.Zero(t, other.Sign())
}

func TestCommitFlushesToDatabase(t *testing.T) {
	mgr, db := newTestManager(t)
	holder := crypto.ModuleAddress("holder")

	require.NoError(t, mgr.BankSetBalance(types.NativeAsset(), holder, big.NewInt(7)))
	require.Equal(t, 0, db.Len())
	require.Equal(t, 1, mgr.Pending())

	require.NoError(t, mgr.Commit())
	require.Equal(t, 1, db.Len())
	require.Equal(t, 0, mgr.Pending())

	reopened := NewManager(db)
	bal, err := reopened.BankBalance(types.NativeAsset(), holder)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(7), bal)
}

func TestDiscardDropsUncommittedWrites(t *testing.T) {
	mgr, _ := newTestManager(t)
	holder := crypto.ModuleAddress("holder")

	require.NoError(t, mgr.BankSetBalance(types.NativeAsset(), holder, big.NewInt(3)))
	mgr.Discard()

	bal, err := mgr.BankBalance(types.NativeAsset(), holder)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}

func TestAmountsBoundedTo256Bits(t *testing.T) {
	mgr, _ := newTestManager(t)
	holder := crypto.ModuleAddress("holder")

	max := new(uint256.Int).SetAllOne().ToBig()
	require.NoError(t, mgr.BankSetBalance(types.NativeAsset(), holder, max))

	tooLarge := new(big.Int).Add(max, big.NewInt(1))
	err := mgr.BankSetBalance(types.NativeAsset(), holder, tooLarge)
	require.ErrorIs(t, err, ErrAmountOverflow)

	require.Error(t, mgr.BankSetBalance(types.NativeAsset(), holder, big.NewInt(-1)))
}

func TestPoolUserSetIsUniqueAndOrdered(t *testing.T) {
	mgr, _ := newTestManager(t)
	alice := crypto.ModuleAddress("alice")
	bob := crypto.ModuleAddress("bob")

	for _, user := range []crypto.Address{alice, bob, alice, alice, bob} {
		require.NoError(t, mgr.FarmAddPoolUser(0, user))
	}
	users, err := mgr.FarmPoolUsers(0)
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{alice, bob}, users)

	empty, err := mgr.FarmPoolUsers(1)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestFarmRecordsRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	token := crypto.TokenAddress("LP")
	pool := &farm.Pool{
		ID:                0,
		Asset:             types.TokenAsset(token),
		Kind:              farm.PoolToken,
		AllocWeight:       100,
		TotalStaked:       big.NewInt(50),
		WithdrawFeeRate:   5,
		LastRewardTime:    42,
		AccRewardPerShare: big.NewInt(1e18),
		Vault:             crypto.ModuleAddress("vault/lp"),
	}
	require.NoError(t, mgr.FarmPutPool(pool))
	require.NoError(t, mgr.FarmIndexPoolAsset(pool.Asset, pool.ID))
	require.NoError(t, mgr.Commit())

	loaded, ok, err := mgr.FarmPool(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pool, loaded)

	id, ok, err := mgr.FarmPoolIDByAsset(types.TokenAsset(token))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), id)

	_, ok, err = mgr.FarmPoolIDByAsset(types.NativeAsset())
	require.NoError(t, err)
	require.False(t, ok)

	stake, err := mgr.FarmStake(0, crypto.ModuleAddress("nobody"))
	require.NoError(t, err)
	require.Zero(t, stake.Amount.Sign())
	require.Zero(t, stake.RewardDebt.Sign())
}
