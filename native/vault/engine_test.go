package vault_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"yieldfarm/core/events"
	"yieldfarm/core/state"
	"yieldfarm/core/types"
	"yieldfarm/crypto"
	"yieldfarm/native/bank"
	"yieldfarm/native/common"
	"yieldfarm/native/strategy"
	"yieldfarm/native/vault"
	"yieldfarm/storage"
)

type recorder struct {
	events []events.Event
}

func (r *recorder) Emit(evt events.Event) { r.events = append(r.events, evt) }

type fixture struct {
	mgr    *state.Manager
	ledger *bank.Ledger
	vault  *vault.Engine
	events *recorder
	asset  types.Asset
	farm   crypto.Address
	owner  crypto.Address
	fees   crypto.Address
	alice  crypto.Address
	bob    crypto.Address
}

func newFixture(t *testing.T, native bool, taxBps uint64) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := state.NewManager(db)
	ledger := bank.NewLedger(mgr)

	f := &fixture{
		mgr:    mgr,
		ledger: ledger,
		events: &recorder{},
		farm:   crypto.ModuleAddress("farm"),
		owner:  crypto.ModuleAddress("owner"),
		fees:   crypto.ModuleAddress("fees"),
		alice:  crypto.ModuleAddress("alice"),
		bob:    crypto.ModuleAddress("bob"),
	}
	f.asset = types.NativeAsset()
	if !native {
		token := crypto.TokenAddress("LP")
		require.NoError(t, ledger.RegisterToken(bank.TokenConfig{Token: token, Symbol: "LP", Decimals: 18, TransferTaxBps: taxBps}))
		f.asset = types.TokenAsset(token)
	}
	require.NoError(t, ledger.Mint(f.asset, f.farm, big.NewInt(1_000_000)))

	f.vault = vault.NewEngine(crypto.ModuleAddress("vault/lp"))
	f.vault.SetState(mgr)
	f.vault.SetLedger(ledger)
	f.vault.SetEmitter(f.events)
	require.NoError(t, f.vault.Init(f.asset, f.farm, f.owner, f.fees))
	if !native {
		require.NoError(t, ledger.Approve(f.asset.Token, f.farm, f.vault.Address(), bank.MaxAllowance))
	}
	require.NoError(t, mgr.Commit())
	return f
}

func (f *fixture) balance(t *testing.T, holder crypto.Address) int64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(f.asset, holder)
	require.NoError(t, err)
	return bal.Int64()
}

func (f *fixture) principal(t *testing.T, user crypto.Address) int64 {
	t.Helper()
	account, err := f.vault.Account(user)
	require.NoError(t, err)
	return account.Principal.Int64()
}

func (f *fixture) custody(t *testing.T, name string) *strategy.Custody {
	t.Helper()
	s, err := strategy.NewCustody(crypto.ModuleAddress(name), f.asset, f.vault.Address(), f.mgr, f.ledger)
	require.NoError(t, err)
	return s
}

func TestDepositRecordsMeasuredDelta(t *testing.T) {
	f := newFixture(t, false, 100)

	received, err := f.vault.Deposit(f.farm, f.alice, big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, int64(990), received.Int64())
	require.Equal(t, int64(990), f.principal(t, f.alice))

	total, err := f.vault.TotalPrincipal()
	require.NoError(t, err)
	require.Equal(t, int64(990), total.Int64())

	bal, err := f.vault.Balance()
	require.NoError(t, err)
	require.Equal(t, int64(990), bal.Int64())

	evt, ok := f.events.events[len(f.events.events)-1].(events.VaultDeposited)
	require.True(t, ok)
	require.Equal(t, int64(1000), evt.Requested.Int64())
	require.Equal(t, int64(990), evt.Received.Int64())
}

func TestTaxedDepositCreditsWhatTheStrategyHolds(t *testing.T) {
	f := newFixture(t, false, 100)
	custody := f.custody(t, "strategy/custody")
	require.NoError(t, f.vault.SetStrategy(f.owner, custody))

	received, err := f.vault.Deposit(f.farm, f.alice, big.NewInt(1000))
	require.NoError(t, err)
	// 1000 lands as 990 in the vault and as 981 in custody.
	require.Equal(t, int64(981), received.Int64())
	require.Equal(t, int64(981), f.principal(t, f.alice))

	total, err := f.vault.TotalPrincipal()
	require.NoError(t, err)
	bal, err := f.vault.Balance()
	require.NoError(t, err)
	require.True(t, total.Cmp(bal) <= 0)

	net, err := f.vault.Withdraw(f.farm, f.alice, big.NewInt(981), 0)
	require.NoError(t, err)
	require.Equal(t, int64(981), net.Int64())
	require.Zero(t, f.principal(t, f.alice))
	require.Zero(t, f.balance(t, custody.Address()))
}

func TestSetStrategyRefusesTaxedSweep(t *testing.T) {
	f := newFixture(t, false, 100)
	_, err := f.vault.Deposit(f.farm, f.alice, big.NewInt(1000))
	require.NoError(t, err)
	require.NoError(t, f.mgr.Commit())

	custody := f.custody(t, "strategy/custody")
	require.NoError(t, f.mgr.Commit())
	require.Error(t, f.vault.SetStrategy(f.owner, custody))
	require.Zero(t, f.mgr.Pending())
	require.Nil(t, f.vault.Strategy())
	require.Equal(t, int64(990), f.balance(t, f.vault.Address()))
}

func TestDepositNativeRecordsValue(t *testing.T) {
	f := newFixture(t, true, 0)

	received, err := f.vault.Deposit(f.farm, f.alice, big.NewInt(250))
	require.NoError(t, err)
	require.Equal(t, int64(250), received.Int64())
	require.Equal(t, int64(250), f.balance(t, f.vault.Address()))
}

func TestDepositRejectsBadCallers(t *testing.T) {
	f := newFixture(t, false, 0)

	_, err := f.vault.Deposit(f.alice, f.alice, big.NewInt(10))
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	_, err = f.vault.Deposit(f.farm, crypto.Address{}, big.NewInt(10))
	require.ErrorIs(t, err, vault.ErrZeroAddress)

	_, err = f.vault.Withdraw(f.owner, f.alice, big.NewInt(10), 0)
	require.ErrorIs(t, err, vault.ErrUnauthorized)
	require.Zero(t, f.mgr.Pending())
}

func TestWithdrawSplitsFee(t *testing.T) {
	f := newFixture(t, false, 0)
	_, err := f.vault.Deposit(f.farm, f.alice, big.NewInt(1000))
	require.NoError(t, err)

	net, err := f.vault.Withdraw(f.farm, f.alice, big.NewInt(500), 50)
	require.NoError(t, err)
	require.Equal(t, int64(475), net.Int64())
	require.Equal(t, int64(475), f.balance(t, f.alice))
	require.Equal(t, int64(25), f.balance(t, f.fees))
	require.Equal(t, int64(500), f.principal(t, f.alice))

	meta, err := f.vault.Meta()
	require.NoError(t, err)
	require.Equal(t, int64(25), meta.TotalWithdrawFee.Int64())
	require.Equal(t, int64(500), meta.TotalPrincipal.Int64())
}

func TestSplitFeeTruncates(t *testing.T) {
	fee, net := vault.SplitFee(big.NewInt(50), 50)
	require.Equal(t, int64(2), fee.Int64())
	require.Equal(t, int64(48), net.Int64())

	fee, net = vault.SplitFee(big.NewInt(19), 50)
	require.Zero(t, fee.Sign())
	require.Equal(t, int64(19), net.Int64())
}

func TestWithdrawRejectsExcessWithoutSideEffects(t *testing.T) {
	f := newFixture(t, false, 0)
	_, err := f.vault.Deposit(f.farm, f.alice, big.NewInt(100))
	require.NoError(t, err)
	require.NoError(t, f.mgr.Commit())

	_, err = f.vault.Withdraw(f.farm, f.alice, big.NewInt(101), 0)
	require.ErrorIs(t, err, vault.ErrInsufficientPrincipal)
	require.Zero(t, f.mgr.Pending())
	require.Equal(t, int64(100), f.principal(t, f.alice))
}

func TestSetStrategySweepsIdleHoldings(t *testing.T) {
	f := newFixture(t, false, 0)
	_, err := f.vault.Deposit(f.farm, f.alice, big.NewInt(600))
	require.NoError(t, err)
	_, err = f.vault.Deposit(f.farm, f.bob, big.NewInt(400))
	require.NoError(t, err)

	custody := f.custody(t, "strategy/custody")
	require.ErrorIs(t, f.vault.SetStrategy(f.alice, custody), vault.ErrUnauthorized)
	require.NoError(t, f.vault.SetStrategy(f.owner, custody))

	require.Zero(t, f.balance(t, f.vault.Address()))
	require.Equal(t, int64(1000), f.balance(t, custody.Address()))

	bal, err := f.vault.Balance()
	require.NoError(t, err)
	require.Equal(t, int64(1000), bal.Int64())

	bound, ok := f.events.events[len(f.events.events)-1].(events.VaultStrategyBound)
	require.True(t, ok)
	require.Equal(t, int64(1000), bound.Swept.Int64())

	// Later deposits are forwarded straight through.
	_, err = f.vault.Deposit(f.farm, f.alice, big.NewInt(50))
	require.NoError(t, err)
	require.Equal(t, int64(1050), f.balance(t, custody.Address()))

	net, err := f.vault.Withdraw(f.farm, f.bob, big.NewInt(400), 10)
	require.NoError(t, err)
	require.Equal(t, int64(396), net.Int64())
	require.Equal(t, int64(396), f.balance(t, f.bob))
	require.Equal(t, int64(4), f.balance(t, f.fees))

	users, err := f.vault.Users()
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{f.alice, f.bob}, users)
}

func TestNativeVaultForwardsToStrategy(t *testing.T) {
	f := newFixture(t, true, 0)
	custody := f.custody(t, "strategy/native")
	require.NoError(t, f.vault.SetStrategy(f.owner, custody))

	_, err := f.vault.Deposit(f.farm, f.alice, big.NewInt(300))
	require.NoError(t, err)
	require.Equal(t, int64(300), f.balance(t, custody.Address()))

	net, err := f.vault.Withdraw(f.farm, f.alice, big.NewInt(300), 0)
	require.NoError(t, err)
	require.Equal(t, int64(300), net.Int64())
	require.Equal(t, int64(300), f.balance(t, f.alice))
}

func TestSetStrategyRejectsWrongAsset(t *testing.T) {
	f := newFixture(t, false, 0)
	s, err := strategy.NewCustody(crypto.ModuleAddress("strategy/native"), types.NativeAsset(), f.vault.Address(), f.mgr, f.ledger)
	require.NoError(t, err)
	require.Error(t, f.vault.SetStrategy(f.owner, s))
}

func TestClaimYieldForwardsStrategyYield(t *testing.T) {
	f := newFixture(t, false, 0)
	custody := f.custody(t, "strategy/custody")
	require.NoError(t, f.vault.SetStrategy(f.owner, custody))
	_, err := f.vault.Deposit(f.farm, f.alice, big.NewInt(100))
	require.NoError(t, err)

	require.NoError(t, f.ledger.Mint(f.asset, custody.Address(), big.NewInt(7)))
	pending, err := f.vault.PendingYield()
	require.NoError(t, err)
	require.Equal(t, int64(7), pending.Int64())

	claimed, err := f.vault.ClaimYield(f.owner, f.owner)
	require.NoError(t, err)
	require.Equal(t, int64(7), claimed.Int64())
	require.Equal(t, int64(7), f.balance(t, f.owner))

	bal, err := f.vault.Balance()
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.Int64())
}

type hookStrategy struct {
	*strategy.Custody
	onDeposit    func() error
	withdrawFail error
}

func (h *hookStrategy) Deposit(from crypto.Address, amount *big.Int) error {
	if h.onDeposit != nil {
		if err := h.onDeposit(); err != nil {
			return err
		}
	}
	return h.Custody.Deposit(from, amount)
}

func (h *hookStrategy) Withdraw(to crypto.Address, amount *big.Int) error {
	if h.withdrawFail != nil {
		return h.withdrawFail
	}
	return h.Custody.Withdraw(to, amount)
}

func TestReentrantStrategyCallIsRejected(t *testing.T) {
	f := newFixture(t, false, 0)
	hook := &hookStrategy{Custody: f.custody(t, "strategy/evil")}
	require.NoError(t, f.vault.SetStrategy(f.owner, hook))
	require.NoError(t, f.mgr.Commit())

	hook.onDeposit = func() error {
		_, err := f.vault.Deposit(f.farm, f.bob, big.NewInt(1))
		return err
	}
	_, err := f.vault.Deposit(f.farm, f.alice, big.NewInt(100))
	require.ErrorIs(t, err, common.ErrReentrantCall)
	require.ErrorIs(t, err, vault.ErrStrategyFailed)
	require.Zero(t, f.mgr.Pending())
	require.Zero(t, f.principal(t, f.alice))
	require.Equal(t, int64(1_000_000), f.balance(t, f.farm))
}

func TestStrategyFailureRollsBackWithdraw(t *testing.T) {
	f := newFixture(t, false, 0)
	hook := &hookStrategy{Custody: f.custody(t, "strategy/flaky")}
	require.NoError(t, f.vault.SetStrategy(f.owner, hook))
	_, err := f.vault.Deposit(f.farm, f.alice, big.NewInt(100))
	require.NoError(t, err)
	require.NoError(t, f.mgr.Commit())

	hook.withdrawFail = errors.New("strategy offline")
	_, err = f.vault.Withdraw(f.farm, f.alice, big.NewInt(40), 0)
	require.ErrorIs(t, err, vault.ErrStrategyFailed)
	require.Zero(t, f.mgr.Pending())
	require.Equal(t, int64(100), f.principal(t, f.alice))
	require.Zero(t, f.balance(t, f.alice))
}

func TestAttachStrategyMustMatchBinding(t *testing.T) {
	f := newFixture(t, false, 0)
	custody := f.custody(t, "strategy/custody")
	require.NoError(t, f.vault.SetStrategy(f.owner, custody))

	restarted := vault.NewEngine(f.vault.Address())
	restarted.SetState(f.mgr)
	restarted.SetLedger(f.ledger)
	require.Error(t, restarted.AttachStrategy(f.custody(t, "strategy/other")))
	require.Error(t, restarted.AttachStrategy(nil))
	require.NoError(t, restarted.AttachStrategy(custody))

	bal, err := restarted.Balance()
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}
