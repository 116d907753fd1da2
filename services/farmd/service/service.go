package service

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	farmconfig "yieldfarm/config"
	"yieldfarm/core/events"
	"yieldfarm/core/genesis"
	"yieldfarm/core/state"
	"yieldfarm/core/types"
	"yieldfarm/crypto"
	"yieldfarm/native/common"
	"yieldfarm/native/farm"
)

// Options configures a Service.
type Options struct {
	Logger *slog.Logger
	// Now overrides the engine clock in unix seconds.
	Now func() int64
	// Sink receives events once the state change that produced them is
	// committed.
	Sink events.Emitter
}

// Service serialises farm operations and commits state after each successful
// call. A failed call leaves both state and downstream subscribers untouched.
type Service struct {
	mu     sync.Mutex
	mgr    *state.Manager
	dep    *genesis.Deployment
	buffer *events.Buffer
	sink   events.Emitter
	pauses *common.PauseSet
	logger *slog.Logger
	now    func() int64
}

// New bootstraps or re-attaches the farm described by farmCfg.
func New(mgr *state.Manager, farmCfg *farmconfig.Farm, opts Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() int64 { return time.Now().Unix() }
	}
	if opts.Sink == nil {
		opts.Sink = events.NoopEmitter{}
	}
	paused, err := mgr.PausedModules()
	if err != nil {
		return nil, fmt.Errorf("farmd: load pauses: %w", err)
	}
	s := &Service{
		mgr:    mgr,
		buffer: &events.Buffer{},
		sink:   opts.Sink,
		pauses: common.NewPauseSet(paused...),
		logger: opts.Logger,
		now:    opts.Now,
	}
	if len(paused) > 0 {
		opts.Logger.Warn("farmd: restored paused modules", "modules", paused)
	}
	dep, err := genesis.Build(farmCfg, mgr, genesis.Options{
		Emitter: s.buffer,
		Logger:  opts.Logger,
		Now:     opts.Now,
		Pauses:  s.pauses,
	})
	if err != nil {
		mgr.Discard()
		s.buffer.Reset()
		return nil, err
	}
	if err := s.commit(); err != nil {
		return nil, err
	}
	s.dep = dep
	return s, nil
}

// Owner returns the farm owner account.
func (s *Service) Owner() crypto.Address { return s.dep.Owner() }

// Deposit stakes amount into pool pid for user and returns the credited stake.
func (s *Service) Deposit(user crypto.Address, pid uint64, amount *big.Int) (credited *big.Int, err error) {
	err = s.mutate(func() error {
		credited, err = s.dep.Farm.Deposit(user, pid, amount)
		return err
	})
	return credited, err
}

// Withdraw releases amount of user's stake and returns the net payout.
func (s *Service) Withdraw(user crypto.Address, pid uint64, amount *big.Int) (net *big.Int, err error) {
	err = s.mutate(func() error {
		net, err = s.dep.Farm.Withdraw(user, pid, amount)
		return err
	})
	return net, err
}

// Harvest pays out user's pending reward in pool pid.
func (s *Service) Harvest(user crypto.Address, pid uint64) (paid *big.Int, err error) {
	err = s.mutate(func() error {
		paid, err = s.dep.Farm.Harvest(user, pid)
		return err
	})
	return paid, err
}

// EmergencyWithdraw returns user's whole stake without rewards.
func (s *Service) EmergencyWithdraw(user crypto.Address, pid uint64) (net *big.Int, err error) {
	err = s.mutate(func() error {
		net, err = s.dep.Farm.EmergencyWithdraw(user, pid)
		return err
	})
	return net, err
}

// AddPool opens a vault for the pool and registers it with the farm.
func (s *Service) AddPool(caller crypto.Address, pool farmconfig.Pool) (pid uint64, err error) {
	err = s.mutate(func() error {
		pid, err = s.dep.AddPool(caller, pool)
		return err
	})
	return pid, err
}

// SetPool changes the allocation weight of pool pid.
func (s *Service) SetPool(caller crypto.Address, pid, weight uint64) error {
	return s.mutate(func() error {
		return s.dep.Farm.SetPool(caller, pid, weight)
	})
}

// SetWithdrawFee changes the withdrawal fee of pool pid in permille.
func (s *Service) SetWithdrawFee(caller crypto.Address, pid, rate uint64) error {
	return s.mutate(func() error {
		return s.dep.Farm.SetWithdrawFee(caller, pid, rate)
	})
}

// StartMining enables emission from startTime.
func (s *Service) StartMining(caller crypto.Address, startTime uint64) error {
	return s.mutate(func() error {
		return s.dep.Farm.StartMining(caller, startTime)
	})
}

// ClaimYield forwards the strategy yield of pool pid's vault to recipient.
func (s *Service) ClaimYield(caller crypto.Address, pid uint64, recipient crypto.Address) (claimed *big.Int, err error) {
	err = s.mutate(func() error {
		v, err := s.dep.VaultFor(pid)
		if err != nil {
			return err
		}
		claimed, err = v.ClaimYield(caller, recipient)
		return err
	})
	return claimed, err
}

// Checkpoint brings every pool's accumulator up to the current time.
func (s *Service) Checkpoint() error {
	return s.mutate(func() error {
		return s.dep.Farm.MassUpdatePools()
	})
}

// Pause stops user operations on module ("farm" or "vault"). The flag is
// committed to state and survives a restart.
func (s *Service) Pause(caller crypto.Address, module string) error {
	return s.setPaused(caller, module, true)
}

// Resume lifts a pause set by Pause.
func (s *Service) Resume(caller crypto.Address, module string) error {
	return s.setPaused(caller, module, false)
}

func (s *Service) setPaused(caller crypto.Address, module string, paused bool) error {
	if !caller.Equal(s.dep.Owner()) {
		return farm.ErrUnauthorized
	}
	if err := common.CheckModule(module); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := common.NewPauseSet(s.pauses.Paused()...)
	if paused {
		next.Pause(module)
	} else {
		next.Resume(module)
	}
	if err := s.mgr.PutPausedModules(next.Paused()); err != nil {
		s.mgr.Discard()
		return err
	}
	if err := s.commit(); err != nil {
		return err
	}
	if paused {
		s.pauses.Pause(module)
		s.logger.Warn("farmd: module paused", "module", module)
	} else {
		s.pauses.Resume(module)
		s.logger.Info("farmd: module resumed", "module", module)
	}
	return nil
}

// Pools lists every pool.
func (s *Service) Pools() ([]PoolView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, err := s.dep.Farm.PoolLength()
	if err != nil {
		return nil, err
	}
	out := make([]PoolView, 0, count)
	for pid := uint64(0); pid < count; pid++ {
		view, err := s.poolView(pid)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// Pool describes pool pid.
func (s *Service) Pool(pid uint64) (PoolView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poolView(pid)
}

// Position describes user's stake in pool pid.
func (s *Service) Position(pid uint64, user crypto.Address) (PositionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stake, err := s.dep.Farm.Stake(pid, user)
	if err != nil {
		return PositionView{}, err
	}
	pending, err := s.dep.Farm.PendingReward(pid, user)
	if err != nil {
		return PositionView{}, err
	}
	afterFee, err := s.dep.Farm.PendingRewardAfterFee(pid, user)
	if err != nil {
		return PositionView{}, err
	}
	v, err := s.dep.VaultFor(pid)
	if err != nil {
		return PositionView{}, err
	}
	account, err := v.Account(user)
	if err != nil {
		return PositionView{}, err
	}
	return PositionView{
		PoolID:          pid,
		User:            user.String(),
		Amount:          stake.Amount.String(),
		RewardDebt:      stake.RewardDebt.String(),
		Pending:         pending.String(),
		PendingAfterFee: afterFee.String(),
		Principal:       account.Principal.String(),
	}, nil
}

// Globals describes the farm-wide configuration and totals.
func (s *Service) Globals() (GlobalsView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.dep.Farm.Globals()
	if err != nil {
		return GlobalsView{}, err
	}
	balance, err := s.dep.Ledger.BalanceOf(types.TokenAsset(g.RewardToken), g.Account)
	if err != nil {
		return GlobalsView{}, err
	}
	now := s.now()
	if now < 0 {
		now = 0
	}
	return GlobalsView{
		Owner:            g.Owner.String(),
		RewardToken:      g.RewardToken.String(),
		BaseEmissionRate: g.BaseEmissionRate.String(),
		CurrentRate:      farm.RateAt(g.BaseEmissionRate, g.BonusEndTime, uint64(now)).String(),
		BonusEndTime:     g.BonusEndTime,
		MiningStarted:    g.MiningStarted,
		MiningStartTime:  g.MiningStartTime,
		TotalAllocWeight: g.TotalAllocWeight,
		TotalPaidRewards: g.TotalPaidRewards.String(),
		RewardBalance:    balance.String(),
		PoolCount:        g.PoolCount,
		Paused:           s.pauses.Paused(),
	}, nil
}

func (s *Service) poolView(pid uint64) (PoolView, error) {
	pool, err := s.dep.Farm.Pool(pid)
	if err != nil {
		return PoolView{}, err
	}
	v, err := s.dep.VaultFor(pid)
	if err != nil {
		return PoolView{}, err
	}
	balance, err := v.Balance()
	if err != nil {
		return PoolView{}, err
	}
	meta, err := v.Meta()
	if err != nil {
		return PoolView{}, err
	}
	view := PoolView{
		ID:                pool.ID,
		Asset:             pool.Asset.String(),
		Kind:              pool.Kind.String(),
		Weight:            pool.AllocWeight,
		TotalStaked:       pool.TotalStaked.String(),
		WithdrawFeeRate:   pool.WithdrawFeeRate,
		LastRewardTime:    pool.LastRewardTime,
		AccRewardPerShare: pool.AccRewardPerShare.String(),
		Vault:             pool.Vault.String(),
		VaultBalance:      balance.String(),
		TotalPrincipal:    meta.TotalPrincipal.String(),
		PendingYield:      "0",
	}
	if !meta.Strategy.IsZero() {
		view.Strategy = meta.Strategy.String()
		yield, err := v.PendingYield()
		if err != nil {
			return PoolView{}, err
		}
		view.PendingYield = yield.String()
	}
	return view, nil
}

// mutate runs fn under the service lock, committing on success and discarding
// pending writes and buffered events on failure.
func (s *Service) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(); err != nil {
		s.mgr.Discard()
		s.buffer.Reset()
		return err
	}
	return s.commit()
}

func (s *Service) commit() error {
	if err := s.mgr.Commit(); err != nil {
		s.mgr.Discard()
		s.buffer.Reset()
		return fmt.Errorf("farmd: commit state: %w", err)
	}
	s.buffer.Flush(s.sink)
	return nil
}
