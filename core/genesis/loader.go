package genesis

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"

	"yieldfarm/config"
	"yieldfarm/core/events"
	"yieldfarm/core/state"
	"yieldfarm/core/types"
	"yieldfarm/crypto"
	"yieldfarm/native/bank"
	"yieldfarm/native/common"
	"yieldfarm/native/farm"
	"yieldfarm/native/strategy"
	"yieldfarm/native/vault"
)

// FarmAddress is the farm's module account.
var FarmAddress = crypto.ModuleAddress("farm")

// VaultAddress derives the vault account for a pool asset symbol.
func VaultAddress(symbol string) crypto.Address {
	return crypto.ModuleAddress("vault/" + strings.ToLower(symbol))
}

// StrategyAddress derives the strategy account for a pool asset symbol.
func StrategyAddress(symbol string) crypto.Address {
	return crypto.ModuleAddress("strategy/" + strings.ToLower(symbol))
}

// AssetForSymbol maps a configured symbol onto an asset descriptor.
func AssetForSymbol(symbol string) types.Asset {
	if strings.EqualFold(symbol, config.NativeSymbol) {
		return types.NativeAsset()
	}
	return types.TokenAsset(crypto.TokenAddress(strings.ToUpper(symbol)))
}

// Options carries the runtime collaborators wired into every engine.
type Options struct {
	Emitter events.Emitter
	Logger  *slog.Logger
	Now     func() int64
	Pauses  common.PauseView
}

// Deployment is the set of engines operating one farm.
type Deployment struct {
	Ledger     *bank.Ledger
	Farm       *farm.Engine
	Vaults     []*vault.Engine
	Strategies map[crypto.Address]*strategy.Custody
	Unwrapper  *bank.WrappedNative

	mgr          *state.Manager
	opts         Options
	owner        crypto.Address
	feeRecipient crypto.Address
}

// Build applies the farm genesis to mgr on first start and re-attaches the
// runtime engines on later starts. The caller commits mgr.
func Build(cfg *config.Farm, mgr *state.Manager, opts Options) (*Deployment, error) {
	if cfg == nil {
		return nil, fmt.Errorf("genesis: farm config must not be nil")
	}
	if mgr == nil {
		return nil, fmt.Errorf("genesis: state manager must not be nil")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	owner, err := cfg.OwnerAddress()
	if err != nil {
		return nil, fmt.Errorf("genesis: owner: %w", err)
	}
	feeRecipient, err := cfg.FeeRecipientAddress()
	if err != nil {
		return nil, fmt.Errorf("genesis: fee recipient: %w", err)
	}
	rate, err := cfg.Rate()
	if err != nil {
		return nil, fmt.Errorf("genesis: emission rate: %w", err)
	}

	_, initialised, err := mgr.FarmGlobals()
	if err != nil {
		return nil, err
	}
	d := &Deployment{
		Ledger:       bank.NewLedger(mgr),
		Strategies:   make(map[crypto.Address]*strategy.Custody),
		mgr:          mgr,
		opts:         opts,
		owner:        owner,
		feeRecipient: feeRecipient,
	}

	if !initialised {
		if err := applyTokens(cfg, d.Ledger); err != nil {
			return nil, err
		}
		if err := applyAlloc(cfg, d.Ledger); err != nil {
			return nil, err
		}
	}

	engine := farm.NewEngine(FarmAddress)
	engine.SetState(mgr)
	engine.SetLedger(d.Ledger)
	engine.SetEmitter(opts.Emitter)
	engine.SetLogger(opts.Logger)
	engine.SetPauses(opts.Pauses)
	if opts.Now != nil {
		engine.SetNowFunc(opts.Now)
	}
	rewardToken := crypto.TokenAddress(cfg.RewardToken)
	if err := engine.Init(farm.Params{
		Owner:            owner,
		RewardToken:      rewardToken,
		BaseEmissionRate: rate,
		BonusEndTime:     cfg.BonusEndTime,
	}); err != nil {
		return nil, fmt.Errorf("genesis: init farm: %w", err)
	}
	d.Farm = engine

	for _, token := range cfg.Tokens {
		if !token.WrapsNative {
			continue
		}
		unwrapper, err := bank.NewWrappedNative(d.Ledger, crypto.TokenAddress(token.Symbol))
		if err != nil {
			return nil, fmt.Errorf("genesis: wrapped token %s: %w", token.Symbol, err)
		}
		if err := engine.SetUnwrapper(owner, unwrapper); err != nil {
			return nil, err
		}
		d.Unwrapper = unwrapper
	}

	poolCount, err := engine.PoolLength()
	if err != nil {
		return nil, err
	}
	for i, pc := range cfg.Pools {
		if uint64(i) >= poolCount {
			if _, err := d.AddPool(owner, pc); err != nil {
				return nil, fmt.Errorf("genesis: pools[%d]: %w", i, err)
			}
			continue
		}
		if err := d.reattach(uint64(i), pc); err != nil {
			return nil, fmt.Errorf("genesis: pools[%d]: %w", i, err)
		}
	}
	// Pools added at runtime follow the configured ones.
	for pid := uint64(len(cfg.Pools)); pid < poolCount; pid++ {
		if err := d.reattachStored(pid); err != nil {
			return nil, fmt.Errorf("genesis: pool %d: %w", pid, err)
		}
	}

	if !initialised {
		reserve, err := cfg.Reserve()
		if err != nil {
			return nil, err
		}
		if reserve.Sign() > 0 {
			if err := d.Ledger.Mint(types.TokenAsset(rewardToken), FarmAddress, reserve); err != nil {
				return nil, fmt.Errorf("genesis: reward reserve: %w", err)
			}
		}
		if cfg.StartTime != nil {
			if err := engine.StartMining(owner, *cfg.StartTime); err != nil {
				return nil, fmt.Errorf("genesis: start mining: %w", err)
			}
		}
		opts.Logger.Info("genesis: farm initialised", "pools", len(cfg.Pools), "owner", owner.String())
	}
	return d, nil
}

// AddPool opens the vault described by pc, binds its strategy and registers
// the pool with the farm. Only the farm owner may add pools.
func (d *Deployment) AddPool(caller crypto.Address, pc config.Pool) (uint64, error) {
	if !caller.Equal(d.owner) {
		return 0, farm.ErrUnauthorized
	}
	kind, err := farm.ParsePoolKind(pc.Kind)
	if err != nil {
		return 0, err
	}
	asset := AssetForSymbol(pc.Asset)
	v, err := d.openVault(pc.Asset, kind, pc.Strategy)
	if err != nil {
		return 0, err
	}
	pid, err := d.Farm.AddPool(caller, farm.PoolParams{
		Weight:  pc.Weight,
		Asset:   asset,
		Kind:    kind,
		FeeRate: pc.WithdrawFeeRate,
		Vault:   v,
	})
	if err != nil {
		return 0, err
	}
	d.attach(v)
	return pid, nil
}

// VaultFor returns the vault engine backing pool pid.
func (d *Deployment) VaultFor(pid uint64) (*vault.Engine, error) {
	pool, err := d.Farm.Pool(pid)
	if err != nil {
		return nil, err
	}
	for _, v := range d.Vaults {
		if v.Address().Equal(pool.Vault) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("genesis: no vault attached for pool %d", pid)
}

// Owner returns the farm owner account.
func (d *Deployment) Owner() crypto.Address { return d.owner }

func (d *Deployment) reattach(pid uint64, pc config.Pool) error {
	pool, err := d.Farm.Pool(pid)
	if err != nil {
		return err
	}
	asset := AssetForSymbol(pc.Asset)
	if !pool.Asset.Equal(asset) {
		return fmt.Errorf("stored pool holds %s, config declares %s", pool.Asset, asset)
	}
	v, err := d.openVault(pc.Asset, pool.Kind, pc.Strategy)
	if err != nil {
		return err
	}
	if err := d.Farm.AttachVault(v); err != nil {
		return err
	}
	d.attach(v)
	return nil
}

// reattachStored restores a pool that exists only in state, re-binding the
// strategy recorded in the vault metadata.
func (d *Deployment) reattachStored(pid uint64) error {
	pool, err := d.Farm.Pool(pid)
	if err != nil {
		return err
	}
	symbol := config.NativeSymbol
	if !pool.Asset.IsNative() {
		token, err := d.Ledger.Token(pool.Asset.Token)
		if err != nil {
			return err
		}
		symbol = token.Symbol
	}
	strategyName := ""
	if meta, ok, err := d.mgr.VaultMeta(pool.Vault); err != nil {
		return err
	} else if ok && !meta.Strategy.IsZero() {
		strategyName = "custody"
	}
	v, err := d.openVault(symbol, pool.Kind, strategyName)
	if err != nil {
		return err
	}
	if err := d.Farm.AttachVault(v); err != nil {
		return err
	}
	d.attach(v)
	return nil
}

func (d *Deployment) openVault(symbol string, kind farm.PoolKind, strategyName string) (*vault.Engine, error) {
	vaultAsset := AssetForSymbol(symbol)
	if kind != farm.PoolToken {
		vaultAsset = types.NativeAsset()
	}
	v := vault.NewEngine(VaultAddress(symbol))
	v.SetState(d.mgr)
	v.SetLedger(d.Ledger)
	v.SetEmitter(d.opts.Emitter)
	v.SetLogger(d.opts.Logger)
	v.SetPauses(d.opts.Pauses)
	if err := v.Init(vaultAsset, FarmAddress, d.owner, d.feeRecipient); err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	if strategyName != "custody" {
		return v, nil
	}
	s, err := strategy.NewCustody(StrategyAddress(symbol), vaultAsset, v.Address(), d.mgr, d.Ledger)
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	meta, err := v.Meta()
	if err != nil {
		return nil, err
	}
	if meta.Strategy.IsZero() {
		err = v.SetStrategy(d.owner, s)
	} else {
		err = v.AttachStrategy(s)
	}
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	return v, nil
}

// attach tracks a vault, and its custody strategy if any, once the farm holds
// its pool.
func (d *Deployment) attach(v *vault.Engine) {
	d.Vaults = append(d.Vaults, v)
	if s, ok := v.Strategy().(*strategy.Custody); ok {
		d.Strategies[s.Address()] = s
	}
}

func applyTokens(cfg *config.Farm, ledger *bank.Ledger) error {
	tokens := append([]config.Token(nil), cfg.Tokens...)
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Symbol < tokens[j].Symbol })
	for _, token := range tokens {
		if err := ledger.RegisterToken(bank.TokenConfig{
			Token:          crypto.TokenAddress(token.Symbol),
			Symbol:         token.Symbol,
			Decimals:       token.Decimals,
			TransferTaxBps: token.TransferTaxBps,
			WrapsNative:    token.WrapsNative,
		}); err != nil {
			return fmt.Errorf("genesis: register token %q: %w", token.Symbol, err)
		}
	}
	return nil
}

// applyAlloc mints genesis balances with addresses and symbols sorted so the
// resulting state is deterministic.
func applyAlloc(cfg *config.Farm, ledger *bank.Ledger) error {
	addresses := make([]string, 0, len(cfg.Alloc))
	for addr := range cfg.Alloc {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)
	for _, addrStr := range addresses {
		holder, err := config.AllocAddress(addrStr)
		if err != nil {
			return fmt.Errorf("genesis: alloc[%q]: %w", addrStr, err)
		}
		balances := cfg.Alloc[addrStr]
		symbols := make([]string, 0, len(balances))
		for symbol := range balances {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			amount, err := config.ParseAmount(balances[symbol])
			if err != nil {
				return fmt.Errorf("genesis: alloc[%q][%q]: %w", addrStr, symbol, err)
			}
			if err := ledger.Mint(AssetForSymbol(symbol), holder, new(big.Int).Set(amount)); err != nil {
				return fmt.Errorf("genesis: alloc[%q][%q]: %w", addrStr, symbol, err)
			}
		}
	}
	return nil
}
