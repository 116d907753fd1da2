package farm

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/bits"
	"time"

	"yieldfarm/core/events"
	"yieldfarm/core/types"
	"yieldfarm/crypto"
	"yieldfarm/native/bank"
	"yieldfarm/native/common"
)

const (
	moduleName = common.ModuleFarm
	// MaxWithdrawFeeRate caps pool withdrawal fees at 100% in permille.
	MaxWithdrawFeeRate = 1000
)

var (
	errNilState           = errors.New("farm engine: state not configured")
	errNilLedger          = errors.New("farm engine: ledger not configured")
	errNotInitialised     = errors.New("farm engine: farm not initialised")
	errInvalidAmount      = errors.New("farm engine: amount must not be negative")
	errInvalidFeeRate     = errors.New("farm engine: fee rate exceeds 1000 permille")
	errInvalidRate        = errors.New("farm engine: emission rate must be positive")
	errNilVault           = errors.New("farm engine: vault required")
	errVaultAsset         = errors.New("farm engine: vault asset does not match pool")
	errVaultNotAttached   = errors.New("farm engine: vault not attached")
	errPoolKind           = errors.New("farm engine: pool kind does not match asset")
	errUnwrapperNotSet    = errors.New("farm engine: unwrapper not configured")
	errUnwrapperToken     = errors.New("farm engine: unwrapper token does not match pool asset")
	ErrUnauthorized       = errors.New("farm engine: caller not authorised")
	ErrZeroAddress        = errors.New("farm engine: zero address")
	ErrPoolNotFound       = errors.New("farm engine: pool not found")
	ErrDuplicatePool      = errors.New("farm engine: asset already has a pool")
	ErrMiningStarted      = errors.New("farm engine: mining already started")
	ErrMiningNotStarted   = errors.New("farm engine: mining not started")
	ErrInsufficientStake  = errors.New("farm engine: insufficient stake")
	ErrAlreadyInitialised = errors.New("farm engine: farm already initialised")
	ErrInvalidWeight      = errors.New("farm engine: total allocation weight overflows")
)

type engineState interface {
	Snapshot() int
	RevertToSnapshot(id int)
	FarmGlobals() (*Globals, bool, error)
	FarmPutGlobals(globals *Globals) error
	FarmPool(id uint64) (*Pool, bool, error)
	FarmPutPool(pool *Pool) error
	FarmPoolIDByAsset(asset types.Asset) (uint64, bool, error)
	FarmIndexPoolAsset(asset types.Asset, id uint64) error
	FarmStake(pid uint64, user crypto.Address) (*UserStake, error)
	FarmPutStake(pid uint64, user crypto.Address, stake *UserStake) error
	FarmAddPoolUser(pid uint64, user crypto.Address) error
	FarmPoolUsers(pid uint64) ([]crypto.Address, error)
}

// TokenLedger is the transfer primitive the farm pulls deposits and pays
// rewards with.
type TokenLedger interface {
	BalanceOf(asset types.Asset, holder crypto.Address) (*big.Int, error)
	Transfer(asset types.Asset, from, to crypto.Address, amount *big.Int) error
	Approve(token, owner, spender crypto.Address, amount *big.Int) error
}

// Vault is the principal ledger wrapped by a pool.
type Vault interface {
	Address() crypto.Address
	Asset() (types.Asset, error)
	Deposit(caller, user crypto.Address, amount *big.Int) (*big.Int, error)
	Withdraw(caller, user crypto.Address, amount *big.Int, feeRate uint64) (*big.Int, error)
	Balance() (*big.Int, error)
}

// Unwrapper converts the wrapped-native token held by an account into native
// value.
type Unwrapper interface {
	Token() crypto.Address
	Unwrap(holder crypto.Address, amount *big.Int) (*big.Int, error)
}

// Params configures a new farm.
type Params struct {
	Owner            crypto.Address
	RewardToken      crypto.Address
	BaseEmissionRate *big.Int
	BonusEndTime     uint64
}

// PoolParams describes a pool to add.
type PoolParams struct {
	Weight  uint64
	Asset   types.Asset
	Kind    PoolKind
	FeeRate uint64
	Vault   Vault
}

// Engine is the multi-pool reward ledger. It checkpoints pool accumulators,
// settles rewards before any stake change and delegates principal movement to
// each pool's vault.
type Engine struct {
	addr      crypto.Address
	state     engineState
	ledger    TokenLedger
	vaults    map[crypto.Address]Vault
	unwrapper Unwrapper
	emitter   events.Emitter
	logger    *slog.Logger
	pauses    common.PauseView
	nowFn     func() int64
	guard     common.ReentrancyGuard
}

// NewEngine constructs a farm engine operating the farm account at addr.
func NewEngine(addr crypto.Address) *Engine {
	return &Engine{
		addr:    addr,
		vaults:  make(map[crypto.Address]Vault),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the transfer primitive.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetPauses wires the pause view consulted before user operations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Address returns the farm account.
func (e *Engine) Address() crypto.Address { return e.addr }

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// Init stores the farm configuration on first use. Calling it again with the
// same owner is a no-op so daemons can re-attach on restart.
func (e *Engine) Init(params Params) error {
	if e.state == nil {
		return errNilState
	}
	if params.Owner.IsZero() || params.RewardToken.IsZero() {
		return ErrZeroAddress
	}
	if params.BaseEmissionRate == nil || params.BaseEmissionRate.Sign() <= 0 {
		return errInvalidRate
	}
	existing, ok, err := e.state.FarmGlobals()
	if err != nil {
		return err
	}
	if ok {
		if !existing.Owner.Equal(params.Owner) {
			return ErrAlreadyInitialised
		}
		return nil
	}
	return e.state.FarmPutGlobals(&Globals{
		Account:          e.addr,
		Owner:            params.Owner,
		RewardToken:      params.RewardToken,
		BaseEmissionRate: new(big.Int).Set(params.BaseEmissionRate),
		BonusEndTime:     params.BonusEndTime,
		TotalPaidRewards: big.NewInt(0),
	})
}

// AttachVault registers a vault implementation for a pool restored from
// state.
func (e *Engine) AttachVault(v Vault) error {
	if v == nil {
		return errNilVault
	}
	e.vaults[v.Address()] = v
	return nil
}

// SetUnwrapper configures the wrapped-native helper used by wrapped pools.
func (e *Engine) SetUnwrapper(caller crypto.Address, u Unwrapper) error {
	globals, err := e.globals()
	if err != nil {
		return err
	}
	if !caller.Equal(globals.Owner) {
		return ErrUnauthorized
	}
	e.unwrapper = u
	return nil
}

// StartMining enables emission from startTime. It can be called once.
func (e *Engine) StartMining(caller crypto.Address, startTime uint64) (err error) {
	release, err := e.enter(false)
	if err != nil {
		return err
	}
	defer release()
	snap := e.state.Snapshot()
	defer e.revertOnError(snap, &err)

	globals, err := e.globals()
	if err != nil {
		return err
	}
	if !caller.Equal(globals.Owner) {
		return ErrUnauthorized
	}
	if globals.MiningStarted {
		return ErrMiningStarted
	}
	globals.MiningStarted = true
	globals.MiningStartTime = startTime
	for pid := uint64(0); pid < globals.PoolCount; pid++ {
		pool, err := e.pool(pid)
		if err != nil {
			return err
		}
		if pool.LastRewardTime < startTime {
			pool.LastRewardTime = startTime
			if err := e.state.FarmPutPool(pool); err != nil {
				return err
			}
		}
	}
	if err := e.state.FarmPutGlobals(globals); err != nil {
		return err
	}
	e.emitter.Emit(events.FarmMiningStarted{
		StartTime: startTime,
		Rate:      new(big.Int).Set(globals.BaseEmissionRate),
		BonusEnd:  globals.BonusEndTime,
	})
	e.logger.Info("farm: mining started", "start", startTime, "rate", globals.BaseEmissionRate.String(), "bonusEnd", globals.BonusEndTime)
	return nil
}

// AddPool registers a pool for an asset that has none yet. Token pools grant
// the vault an unlimited allowance once.
func (e *Engine) AddPool(caller crypto.Address, params PoolParams) (pid uint64, err error) {
	release, err := e.enter(false)
	if err != nil {
		return 0, err
	}
	defer release()
	snap := e.state.Snapshot()
	defer e.revertOnError(snap, &err)

	globals, err := e.globals()
	if err != nil {
		return 0, err
	}
	if !caller.Equal(globals.Owner) {
		return 0, ErrUnauthorized
	}
	if params.FeeRate > MaxWithdrawFeeRate {
		return 0, errInvalidFeeRate
	}
	if params.Vault == nil {
		return 0, errNilVault
	}
	if err := params.Asset.Validate(); err != nil {
		return 0, fmt.Errorf("farm engine: %w", err)
	}
	if err := checkKind(params.Kind, params.Asset); err != nil {
		return 0, err
	}
	vaultAsset, err := params.Vault.Asset()
	if err != nil {
		return 0, err
	}
	want := params.Asset
	if params.Kind != PoolToken {
		want = types.NativeAsset()
	}
	if !vaultAsset.Equal(want) {
		return 0, errVaultAsset
	}
	if _, exists, err := e.state.FarmPoolIDByAsset(params.Asset); err != nil {
		return 0, err
	} else if exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicatePool, params.Asset)
	}
	totalWeight, err := addWeight(globals.TotalAllocWeight, params.Weight)
	if err != nil {
		return 0, err
	}

	now := e.now()
	if err := e.massUpdate(globals, now); err != nil {
		return 0, err
	}
	if params.Kind == PoolToken {
		if err := e.ledger.Approve(params.Asset.Token, e.addr, params.Vault.Address(), bank.MaxAllowance); err != nil {
			return 0, err
		}
	}

	start := now
	if globals.MiningStarted && globals.MiningStartTime > start {
		start = globals.MiningStartTime
	}
	pool := &Pool{
		ID:                globals.PoolCount,
		Asset:             params.Asset,
		Kind:              params.Kind,
		AllocWeight:       params.Weight,
		TotalStaked:       big.NewInt(0),
		WithdrawFeeRate:   params.FeeRate,
		LastRewardTime:    start,
		AccRewardPerShare: big.NewInt(0),
		Vault:             params.Vault.Address(),
	}
	globals.TotalAllocWeight = totalWeight
	globals.PoolCount++
	if err := e.state.FarmPutPool(pool); err != nil {
		return 0, err
	}
	if err := e.state.FarmIndexPoolAsset(pool.Asset, pool.ID); err != nil {
		return 0, err
	}
	if err := e.state.FarmPutGlobals(globals); err != nil {
		return 0, err
	}
	e.vaults[pool.Vault] = params.Vault

	e.emitter.Emit(events.FarmPoolAdded{
		PoolID:   pool.ID,
		Asset:    pool.Asset,
		Kind:     pool.Kind.String(),
		Weight:   pool.AllocWeight,
		FeeRate:  pool.WithdrawFeeRate,
		Vault:    pool.Vault,
		StartsAt: pool.LastRewardTime,
	})
	e.logger.Info("farm: pool added", "pid", pool.ID, "asset", pool.Asset.String(), "kind", pool.Kind.String(), "weight", pool.AllocWeight)
	return pool.ID, nil
}

// SetPool changes a pool's allocation weight after checkpointing every pool.
func (e *Engine) SetPool(caller crypto.Address, pid, weight uint64) (err error) {
	release, err := e.enter(false)
	if err != nil {
		return err
	}
	defer release()
	snap := e.state.Snapshot()
	defer e.revertOnError(snap, &err)

	globals, err := e.globals()
	if err != nil {
		return err
	}
	if !caller.Equal(globals.Owner) {
		return ErrUnauthorized
	}
	if _, err := e.pool(pid); err != nil {
		return err
	}
	if err := e.massUpdate(globals, e.now()); err != nil {
		return err
	}
	pool, err := e.pool(pid)
	if err != nil {
		return err
	}
	totalWeight, err := addWeight(globals.TotalAllocWeight-pool.AllocWeight, weight)
	if err != nil {
		return err
	}
	globals.TotalAllocWeight = totalWeight
	pool.AllocWeight = weight
	if err := e.state.FarmPutPool(pool); err != nil {
		return err
	}
	if err := e.state.FarmPutGlobals(globals); err != nil {
		return err
	}
	e.emitPoolUpdated(pool, globals)
	return nil
}

// SetWithdrawFee changes a pool's withdrawal fee rate (permille).
func (e *Engine) SetWithdrawFee(caller crypto.Address, pid, rate uint64) error {
	globals, err := e.globals()
	if err != nil {
		return err
	}
	if !caller.Equal(globals.Owner) {
		return ErrUnauthorized
	}
	if rate > MaxWithdrawFeeRate {
		return errInvalidFeeRate
	}
	pool, err := e.pool(pid)
	if err != nil {
		return err
	}
	pool.WithdrawFeeRate = rate
	if err := e.state.FarmPutPool(pool); err != nil {
		return err
	}
	e.emitPoolUpdated(pool, globals)
	return nil
}

// MassUpdatePools checkpoints every pool at the current time.
func (e *Engine) MassUpdatePools() (err error) {
	release, err := e.enter(false)
	if err != nil {
		return err
	}
	defer release()
	snap := e.state.Snapshot()
	defer e.revertOnError(snap, &err)

	globals, err := e.globals()
	if err != nil {
		return err
	}
	return e.massUpdate(globals, e.now())
}

// UpdatePool checkpoints a single pool at the current time.
func (e *Engine) UpdatePool(pid uint64) (err error) {
	release, err := e.enter(false)
	if err != nil {
		return err
	}
	defer release()
	snap := e.state.Snapshot()
	defer e.revertOnError(snap, &err)

	globals, err := e.globals()
	if err != nil {
		return err
	}
	pool, err := e.pool(pid)
	if err != nil {
		return err
	}
	updatePool(globals, pool, e.now())
	return e.state.FarmPutPool(pool)
}

// Deposit settles the user's pending reward, pulls amount from the user
// according to the pool kind and stakes what the vault actually credited. A
// zero amount only harvests. A transfer tax is charged on every hop (user to
// farm, farm to vault, vault to strategy), so the stake of a taxed token is
// below amount less a single tax.
func (e *Engine) Deposit(user crypto.Address, pid uint64, amount *big.Int) (credited *big.Int, err error) {
	release, err := e.enter(true)
	if err != nil {
		return nil, err
	}
	defer release()
	snap := e.state.Snapshot()
	defer e.revertOnError(snap, &err)

	if user.IsZero() {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, errInvalidAmount
	}
	globals, err := e.globals()
	if err != nil {
		return nil, err
	}
	if !globals.MiningStarted {
		return nil, ErrMiningNotStarted
	}
	pool, vault, err := e.poolWithVault(pid)
	if err != nil {
		return nil, err
	}
	updatePool(globals, pool, e.now())
	stake, err := e.state.FarmStake(pid, user)
	if err != nil {
		return nil, err
	}
	harvested, err := e.settle(globals, pool, stake, user)
	if err != nil {
		return nil, err
	}

	credited = big.NewInt(0)
	if amount.Sign() > 0 {
		pulled, err := e.pull(pool, user, amount)
		if err != nil {
			return nil, err
		}
		credited, err = vault.Deposit(e.addr, user, pulled)
		if err != nil {
			return nil, err
		}
		stake.Amount.Add(stake.Amount, credited)
		pool.TotalStaked.Add(pool.TotalStaked, credited)
		if err := e.state.FarmAddPoolUser(pid, user); err != nil {
			return nil, err
		}
	}
	stake.RewardDebt = accumulated(stake.Amount, pool.AccRewardPerShare)
	if err := e.persist(globals, pool, user, stake); err != nil {
		return nil, err
	}

	e.emitHarvest(harvested)
	e.emitter.Emit(events.FarmDeposited{
		PoolID:    pid,
		User:      user,
		Requested: new(big.Int).Set(amount),
		Credited:  new(big.Int).Set(credited),
		NewStake:  new(big.Int).Set(stake.Amount),
	})
	e.logger.Debug("farm: deposit", "pid", pid, "user", user.String(), "requested", amount.String(), "credited", credited.String())
	return credited, nil
}

// Withdraw settles the user's pending reward and releases amount of stake
// through the vault, which pays the user net of the pool fee. A zero amount
// only harvests.
func (e *Engine) Withdraw(user crypto.Address, pid uint64, amount *big.Int) (net *big.Int, err error) {
	release, err := e.enter(true)
	if err != nil {
		return nil, err
	}
	defer release()
	snap := e.state.Snapshot()
	defer e.revertOnError(snap, &err)

	if user.IsZero() {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, errInvalidAmount
	}
	globals, err := e.globals()
	if err != nil {
		return nil, err
	}
	pool, vault, err := e.poolWithVault(pid)
	if err != nil {
		return nil, err
	}
	updatePool(globals, pool, e.now())
	stake, err := e.state.FarmStake(pid, user)
	if err != nil {
		return nil, err
	}
	if stake.Amount.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: have %s, requested %s", ErrInsufficientStake, stake.Amount, amount)
	}
	harvested, err := e.settle(globals, pool, stake, user)
	if err != nil {
		return nil, err
	}

	net = big.NewInt(0)
	fee := big.NewInt(0)
	if amount.Sign() > 0 {
		stake.Amount.Sub(stake.Amount, amount)
		pool.TotalStaked.Sub(pool.TotalStaked, amount)
		net, err = vault.Withdraw(e.addr, user, amount, pool.WithdrawFeeRate)
		if err != nil {
			return nil, err
		}
		fee.Sub(amount, net)
	}
	stake.RewardDebt = accumulated(stake.Amount, pool.AccRewardPerShare)
	if err := e.persist(globals, pool, user, stake); err != nil {
		return nil, err
	}

	e.emitHarvest(harvested)
	e.emitter.Emit(events.FarmWithdrawn{
		PoolID:   pid,
		User:     user,
		Amount:   new(big.Int).Set(amount),
		Net:      new(big.Int).Set(net),
		Fee:      fee,
		NewStake: new(big.Int).Set(stake.Amount),
	})
	e.logger.Debug("farm: withdraw", "pid", pid, "user", user.String(), "amount", amount.String(), "net", net.String())
	return net, nil
}

// Harvest pays the user's pending reward, capped at the farm's reward balance.
// A shortfall is not an error.
func (e *Engine) Harvest(user crypto.Address, pid uint64) (paid *big.Int, err error) {
	release, err := e.enter(true)
	if err != nil {
		return nil, err
	}
	defer release()
	snap := e.state.Snapshot()
	defer e.revertOnError(snap, &err)

	if user.IsZero() {
		return nil, ErrZeroAddress
	}
	globals, err := e.globals()
	if err != nil {
		return nil, err
	}
	pool, err := e.pool(pid)
	if err != nil {
		return nil, err
	}
	updatePool(globals, pool, e.now())
	stake, err := e.state.FarmStake(pid, user)
	if err != nil {
		return nil, err
	}
	harvested, err := e.settle(globals, pool, stake, user)
	if err != nil {
		return nil, err
	}
	stake.RewardDebt = accumulated(stake.Amount, pool.AccRewardPerShare)
	if err := e.persist(globals, pool, user, stake); err != nil {
		return nil, err
	}
	if harvested == nil {
		return big.NewInt(0), nil
	}
	e.emitHarvest(harvested)
	e.logger.Debug("farm: harvest", "pid", pid, "user", user.String(), "paid", harvested.Paid.String())
	return new(big.Int).Set(harvested.Paid), nil
}

// EmergencyWithdraw returns the user's whole stake through the vault without
// settling rewards. The pool fee still applies. It ignores module pauses.
func (e *Engine) EmergencyWithdraw(user crypto.Address, pid uint64) (net *big.Int, err error) {
	release, err := e.enter(false)
	if err != nil {
		return nil, err
	}
	defer release()
	snap := e.state.Snapshot()
	defer e.revertOnError(snap, &err)

	if user.IsZero() {
		return nil, ErrZeroAddress
	}
	globals, err := e.globals()
	if err != nil {
		return nil, err
	}
	pool, vault, err := e.poolWithVault(pid)
	if err != nil {
		return nil, err
	}
	stake, err := e.state.FarmStake(pid, user)
	if err != nil {
		return nil, err
	}
	updatePool(globals, pool, e.now())
	amount := new(big.Int).Set(stake.Amount)
	forfeited := pendingFor(stake, pool.AccRewardPerShare)

	net = big.NewInt(0)
	stake.Amount.SetInt64(0)
	stake.RewardDebt.SetInt64(0)
	if amount.Sign() > 0 {
		pool.TotalStaked.Sub(pool.TotalStaked, amount)
		net, err = vault.Withdraw(e.addr, user, amount, pool.WithdrawFeeRate)
		if err != nil {
			return nil, err
		}
	}
	if err := e.state.FarmPutPool(pool); err != nil {
		return nil, err
	}
	if err := e.state.FarmPutStake(pid, user, stake); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.FarmEmergencyWithdrawn{
		PoolID:    pid,
		User:      user,
		Amount:    amount,
		Net:       new(big.Int).Set(net),
		Forfeited: forfeited,
	})
	e.logger.Warn("farm: emergency withdraw", "pid", pid, "user", user.String(), "amount", amount.String(), "forfeited", forfeited.String())
	return net, nil
}

// PendingReward projects the reward a harvest would pay the user now. It is
// exactly the harvest payout when the farm holds enough reward tokens.
func (e *Engine) PendingReward(pid uint64, user crypto.Address) (*big.Int, error) {
	globals, err := e.globals()
	if err != nil {
		return nil, err
	}
	pool, err := e.pool(pid)
	if err != nil {
		return nil, err
	}
	stake, err := e.state.FarmStake(pid, user)
	if err != nil {
		return nil, err
	}
	return pendingFor(stake, projectAccRewardPerShare(globals, pool, e.now())), nil
}

// PendingRewardAfterFee applies the pool's withdrawal fee rate to the pending
// reward. It is advisory display data only: harvest pays PendingReward in
// full.
func (e *Engine) PendingRewardAfterFee(pid uint64, user crypto.Address) (*big.Int, error) {
	pending, err := e.PendingReward(pid, user)
	if err != nil {
		return nil, err
	}
	pool, err := e.pool(pid)
	if err != nil {
		return nil, err
	}
	fee := new(big.Int).Mul(pending, new(big.Int).SetUint64(pool.WithdrawFeeRate))
	fee.Quo(fee, big.NewInt(MaxWithdrawFeeRate))
	return pending.Sub(pending, fee), nil
}

// PoolLength returns the number of pools.
func (e *Engine) PoolLength() (uint64, error) {
	globals, err := e.globals()
	if err != nil {
		return 0, err
	}
	return globals.PoolCount, nil
}

// Pool returns a copy of the pool at pid.
func (e *Engine) Pool(pid uint64) (*Pool, error) {
	return e.pool(pid)
}

// Stake returns the user's stake in the pool.
func (e *Engine) Stake(pid uint64, user crypto.Address) (*UserStake, error) {
	if e.state == nil {
		return nil, errNilState
	}
	if _, err := e.pool(pid); err != nil {
		return nil, err
	}
	return e.state.FarmStake(pid, user)
}

// Users lists the pool's depositors in first-deposit order.
func (e *Engine) Users(pid uint64) ([]crypto.Address, error) {
	if _, err := e.pool(pid); err != nil {
		return nil, err
	}
	return e.state.FarmPoolUsers(pid)
}

// Globals returns a copy of the farm configuration and counters.
func (e *Engine) Globals() (*Globals, error) {
	return e.globals()
}

// Vault returns the vault attached to the pool.
func (e *Engine) Vault(pid uint64) (Vault, error) {
	_, vault, err := e.poolWithVault(pid)
	return vault, err
}

// enter runs the common entry checks and takes the reentrancy guard.
func (e *Engine) enter(pausable bool) (func(), error) {
	if e.state == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if pausable {
		if err := common.Guard(e.pauses, moduleName); err != nil {
			return nil, err
		}
	}
	return e.guard.Enter()
}

func (e *Engine) revertOnError(snap int, err *error) {
	if *err != nil {
		e.state.RevertToSnapshot(snap)
	}
}

func (e *Engine) globals() (*Globals, error) {
	if e.state == nil {
		return nil, errNilState
	}
	globals, ok, err := e.state.FarmGlobals()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialised
	}
	return globals, nil
}

func (e *Engine) pool(pid uint64) (*Pool, error) {
	if e.state == nil {
		return nil, errNilState
	}
	pool, ok, err := e.state.FarmPool(pid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, pid)
	}
	return pool, nil
}

func (e *Engine) poolWithVault(pid uint64) (*Pool, Vault, error) {
	pool, err := e.pool(pid)
	if err != nil {
		return nil, nil, err
	}
	vault, ok := e.vaults[pool.Vault]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", errVaultNotAttached, pool.Vault)
	}
	return pool, vault, nil
}

func (e *Engine) massUpdate(globals *Globals, now uint64) error {
	for pid := uint64(0); pid < globals.PoolCount; pid++ {
		pool, err := e.pool(pid)
		if err != nil {
			return err
		}
		if now <= pool.LastRewardTime {
			continue
		}
		updatePool(globals, pool, now)
		if err := e.state.FarmPutPool(pool); err != nil {
			return err
		}
	}
	return nil
}

// settle pays the stake's pending reward against the already checkpointed
// pool and returns the harvest record, nil when nothing was pending. The
// caller resets the reward debt afterwards; any shortfall against the farm's
// reward balance is forfeited.
func (e *Engine) settle(globals *Globals, pool *Pool, stake *UserStake, user crypto.Address) (*events.FarmHarvested, error) {
	pending := pendingFor(stake, pool.AccRewardPerShare)
	if pending.Sign() == 0 {
		return nil, nil
	}
	rewardAsset := types.TokenAsset(globals.RewardToken)
	available, err := e.ledger.BalanceOf(rewardAsset, e.addr)
	if err != nil {
		return nil, err
	}
	paid := new(big.Int).Set(pending)
	if available.Cmp(pending) < 0 {
		paid.Set(available)
		e.logger.Warn("farm: reward balance short", "pid", pool.ID, "user", user.String(),
			"pending", pending.String(), "available", available.String())
	}
	if paid.Sign() > 0 {
		if err := e.ledger.Transfer(rewardAsset, e.addr, user, paid); err != nil {
			return nil, err
		}
		globals.TotalPaidRewards.Add(globals.TotalPaidRewards, paid)
	}
	return &events.FarmHarvested{PoolID: pool.ID, User: user, Pending: pending, Paid: paid}, nil
}

func (e *Engine) emitHarvest(evt *events.FarmHarvested) {
	if evt != nil {
		e.emitter.Emit(*evt)
	}
}

// pull moves amount from the user into the farm and returns what the vault
// should receive.
func (e *Engine) pull(pool *Pool, user crypto.Address, amount *big.Int) (*big.Int, error) {
	switch pool.Kind {
	case PoolNative:
		if err := e.ledger.Transfer(pool.Asset, user, e.addr, amount); err != nil {
			return nil, err
		}
		return new(big.Int).Set(amount), nil
	case PoolToken:
		return e.pullMeasured(pool.Asset, user, amount)
	case PoolWrappedNative:
		if e.unwrapper == nil {
			return nil, errUnwrapperNotSet
		}
		if !e.unwrapper.Token().Equal(pool.Asset.Token) {
			return nil, errUnwrapperToken
		}
		wrapped, err := e.pullMeasured(pool.Asset, user, amount)
		if err != nil {
			return nil, err
		}
		return e.unwrapper.Unwrap(e.addr, wrapped)
	default:
		return nil, fmt.Errorf("%w: %s", errPoolKind, pool.Kind)
	}
}

func (e *Engine) pullMeasured(asset types.Asset, user crypto.Address, amount *big.Int) (*big.Int, error) {
	before, err := e.ledger.BalanceOf(asset, e.addr)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(asset, user, e.addr, amount); err != nil {
		return nil, err
	}
	after, err := e.ledger.BalanceOf(asset, e.addr)
	if err != nil {
		return nil, err
	}
	return after.Sub(after, before), nil
}

func (e *Engine) persist(globals *Globals, pool *Pool, user crypto.Address, stake *UserStake) error {
	if err := e.state.FarmPutPool(pool); err != nil {
		return err
	}
	if err := e.state.FarmPutStake(pool.ID, user, stake); err != nil {
		return err
	}
	return e.state.FarmPutGlobals(globals)
}

func (e *Engine) emitPoolUpdated(pool *Pool, globals *Globals) {
	e.emitter.Emit(events.FarmPoolUpdated{
		PoolID:      pool.ID,
		Weight:      pool.AllocWeight,
		FeeRate:     pool.WithdrawFeeRate,
		TotalWeight: globals.TotalAllocWeight,
	})
}

func checkKind(kind PoolKind, asset types.Asset) error {
	switch kind {
	case PoolNative:
		if !asset.IsNative() {
			return errPoolKind
		}
	case PoolToken, PoolWrappedNative:
		if asset.Kind != types.AssetToken {
			return errPoolKind
		}
	default:
		return fmt.Errorf("%w: %s", errPoolKind, kind)
	}
	return nil
}

func addWeight(total, weight uint64) (uint64, error) {
	sum, carry := bits.Add64(total, weight, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrInvalidWeight, total, weight)
	}
	return sum, nil
}
