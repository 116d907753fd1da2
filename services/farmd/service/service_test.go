package service

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	farmconfig "yieldfarm/config"
	"yieldfarm/core/events"
	"yieldfarm/core/state"
	"yieldfarm/crypto"
	"yieldfarm/native/bank"
	"yieldfarm/native/common"
	"yieldfarm/native/farm"
	"yieldfarm/storage"
)

type recorder struct {
	types []string
}

func (r *recorder) Emit(evt events.Event) { r.types = append(r.types, evt.EventType()) }

func account(b byte) crypto.Address {
	return crypto.MustNewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{b}, crypto.AddressLength))
}

var (
	owner = account(0x01)
	alice = account(0x0a)
)

type fixture struct {
	svc  *Service
	db   *storage.MemDB
	sink *recorder
	now  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	start := uint64(1_000)
	cfg := &farmconfig.Farm{
		Owner:         owner.String(),
		RewardToken:   "RWD",
		EmissionRate:  "10",
		StartTime:     &start,
		RewardReserve: "1000000",
		Tokens: []farmconfig.Token{
			{Symbol: "RWD", Decimals: 18},
			{Symbol: "LP", Decimals: 18},
		},
		Pools: []farmconfig.Pool{
			{Asset: "LP", Kind: "token", Weight: 100, WithdrawFeeRate: 50},
		},
		Alloc: map[string]map[string]string{
			alice.String(): {"LP": "1000"},
		},
	}
	require.NoError(t, cfg.Validate())

	f := &fixture{db: storage.NewMemDB(), sink: &recorder{}, now: 1_000}
	svc, err := New(state.NewManager(f.db), cfg, Options{
		Now:  func() int64 { return f.now },
		Sink: f.sink,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestServiceCommitsAndFlushesOnSuccess(t *testing.T) {
	f := newFixture(t)
	require.Contains(t, f.sink.types, events.TypeFarmPoolAdded)
	require.Contains(t, f.sink.types, events.TypeFarmMiningStarted)
	f.sink.types = nil

	credited, err := f.svc.Deposit(alice, 0, big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), credited)
	require.Equal(t, []string{events.TypeVaultDeposited, events.TypeFarmDeposited}, f.sink.types)
	require.Zero(t, f.svc.mgr.Pending())

	f.now = 1_010
	pos, err := f.svc.Position(0, alice)
	require.NoError(t, err)
	require.Equal(t, "100", pos.Amount)
	require.Equal(t, "100", pos.Pending)
	require.Equal(t, "95", pos.PendingAfterFee)
	require.Equal(t, "100", pos.Principal)

	net, err := f.svc.Withdraw(alice, 0, big.NewInt(50))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(48), net)

	pools, err := f.svc.Pools()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	require.Equal(t, "50", pools[0].TotalStaked)
	require.Equal(t, "50", pools[0].VaultBalance)

	g, err := f.svc.Globals()
	require.NoError(t, err)
	require.Equal(t, "100", g.TotalPaidRewards)
	require.Equal(t, "999900", g.RewardBalance)
	require.Equal(t, "10", g.CurrentRate)
}

func TestServiceFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.sink.types = nil

	_, err := f.svc.Deposit(alice, 0, big.NewInt(5_000))
	require.ErrorIs(t, err, bank.ErrInsufficientBalance)
	require.Empty(t, f.sink.types)
	require.Zero(t, f.svc.mgr.Pending())

	_, err = f.svc.Withdraw(alice, 0, big.NewInt(1))
	require.ErrorIs(t, err, farm.ErrInsufficientStake)
	require.Empty(t, f.sink.types)
}

func TestServiceAdminSurface(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.svc.SetPool(alice, 0, 5), farm.ErrUnauthorized)
	require.NoError(t, f.svc.SetPool(owner, 0, 5))
	require.NoError(t, f.svc.SetWithdrawFee(owner, 0, 10))
	require.ErrorIs(t, f.svc.StartMining(owner, 2_000), farm.ErrMiningStarted)

	pid, err := f.svc.AddPool(owner, farmconfig.Pool{Asset: "RWD", Kind: "token", Weight: 5, Strategy: "custody"})
	require.NoError(t, err)
	require.EqualValues(t, 1, pid)

	view, err := f.svc.Pool(pid)
	require.NoError(t, err)
	require.NotEmpty(t, view.Strategy)
	require.Equal(t, "0", view.PendingYield)

	claimed, err := f.svc.ClaimYield(owner, pid, owner)
	require.NoError(t, err)
	require.Zero(t, claimed.Sign())

	pool, err := f.svc.Pool(0)
	require.NoError(t, err)
	require.EqualValues(t, 5, pool.Weight)
	require.EqualValues(t, 10, pool.WithdrawFeeRate)

	f.now = 1_100
	require.NoError(t, f.svc.Checkpoint())
}

func TestServicePauseBlocksUsers(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Deposit(alice, 0, big.NewInt(100))
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Pause(alice, "farm"), farm.ErrUnauthorized)
	require.ErrorIs(t, f.svc.Pause(owner, "bank"), common.ErrUnknownModule)
	require.NoError(t, f.svc.Pause(owner, "farm"))

	_, err = f.svc.Harvest(alice, 0)
	require.ErrorIs(t, err, common.ErrModulePaused)
	g, err := f.svc.Globals()
	require.NoError(t, err)
	require.Equal(t, []string{"farm"}, g.Paused)

	net, err := f.svc.EmergencyWithdraw(alice, 0)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(95), net)

	require.NoError(t, f.svc.Resume(owner, "farm"))
	_, err = f.svc.Harvest(alice, 0)
	require.NoError(t, err)
}

func TestServiceRestartKeepsState(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Deposit(alice, 0, big.NewInt(100))
	require.NoError(t, err)

	start := uint64(1_000)
	cfg := &farmconfig.Farm{
		Owner:        owner.String(),
		RewardToken:  "RWD",
		EmissionRate: "10",
		StartTime:    &start,
		Tokens:       []farmconfig.Token{{Symbol: "RWD"}, {Symbol: "LP"}},
		Pools:        []farmconfig.Pool{{Asset: "LP", Kind: "token", Weight: 100, WithdrawFeeRate: 50}},
	}
	restarted, err := New(state.NewManager(f.db), cfg, Options{Now: func() int64 { return 1_010 }})
	require.NoError(t, err)
	pos, err := restarted.Position(0, alice)
	require.NoError(t, err)
	require.Equal(t, "100", pos.Amount)
	require.Equal(t, "100", pos.Pending)
}

func TestServicePauseSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Pause(owner, "Vault"))
	require.Zero(t, f.svc.mgr.Pending())

	start := uint64(1_000)
	cfg := &farmconfig.Farm{
		Owner:        owner.String(),
		RewardToken:  "RWD",
		EmissionRate: "10",
		StartTime:    &start,
		Tokens:       []farmconfig.Token{{Symbol: "RWD"}, {Symbol: "LP"}},
		Pools:        []farmconfig.Pool{{Asset: "LP", Kind: "token", Weight: 100, WithdrawFeeRate: 50}},
	}
	restarted, err := New(state.NewManager(f.db), cfg, Options{Now: func() int64 { return 1_010 }})
	require.NoError(t, err)
	g, err := restarted.Globals()
	require.NoError(t, err)
	require.Equal(t, []string{"vault"}, g.Paused)
	_, err = restarted.Deposit(alice, 0, big.NewInt(100))
	require.ErrorIs(t, err, common.ErrModulePaused)

	require.NoError(t, restarted.Resume(owner, "vault"))
	again, err := New(state.NewManager(f.db), cfg, Options{Now: func() int64 { return 1_010 }})
	require.NoError(t, err)
	g, err = again.Globals()
	require.NoError(t, err)
	require.Empty(t, g.Paused)
	_, err = again.Deposit(alice, 0, big.NewInt(100))
	require.NoError(t, err)
}
