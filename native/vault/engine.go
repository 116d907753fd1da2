package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"yieldfarm/core/events"
	"yieldfarm/core/types"
	"yieldfarm/crypto"
	"yieldfarm/native/common"
)

const (
	moduleName = common.ModuleVault
	// FeeDenominator expresses withdrawal fee rates in permille.
	FeeDenominator = 1000
)

var (
	errNilState              = errors.New("vault engine: state not configured")
	errNilLedger             = errors.New("vault engine: ledger not configured")
	errVaultNotFound         = errors.New("vault engine: vault not initialised")
	errVaultExists           = errors.New("vault engine: vault already initialised with a different asset")
	errInvalidAmount         = errors.New("vault engine: amount must be positive")
	errInvalidFeeRate        = errors.New("vault engine: fee rate exceeds 1000 permille")
	errStrategyAsset         = errors.New("vault engine: strategy want asset does not match vault asset")
	errStrategyMismatch      = errors.New("vault engine: strategy does not match stored binding")
	errNoStrategy            = errors.New("vault engine: no strategy bound")
	errFeeRecipientNotSet    = errors.New("vault engine: fee recipient not configured")
	errSweepShortfall        = errors.New("vault engine: sweep would leave principal uncovered")
	ErrUnauthorized          = errors.New("vault engine: caller not authorised")
	ErrZeroAddress           = errors.New("vault engine: zero address")
	ErrInsufficientPrincipal = errors.New("vault engine: insufficient principal")
	ErrStrategyFailed        = errors.New("vault engine: strategy call failed")
)

type engineState interface {
	Snapshot() int
	RevertToSnapshot(id int)
	VaultMeta(addr crypto.Address) (*Meta, bool, error)
	VaultPutMeta(meta *Meta) error
	VaultAccount(vault, user crypto.Address) (*Account, error)
	VaultPutAccount(vault, user crypto.Address, account *Account) error
	VaultAddUser(vault, user crypto.Address) error
	VaultUsers(vault crypto.Address) ([]crypto.Address, error)
}

// Engine is the per-vault principal ledger. It records measured deposits,
// carves withdrawal fees out of payouts and passes funds through an optional
// strategy.
type Engine struct {
	addr     crypto.Address
	state    engineState
	ledger   TokenLedger
	strategy Strategy
	emitter  events.Emitter
	logger   *slog.Logger
	pauses   common.PauseView
	guard    common.ReentrancyGuard
}

// NewEngine constructs the engine for the vault account at addr.
func NewEngine(addr crypto.Address) *Engine {
	return &Engine{
		addr:    addr,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
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
	e.logger = logger.With("vault", e.addr.String())
}

// SetPauses wires the pause view consulted before mutating calls.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// Address returns the vault account.
func (e *Engine) Address() crypto.Address { return e.addr }

// Init creates the vault record on first use. Re-initialising an existing
// vault with the same asset is a no-op so daemons can re-attach on restart.
func (e *Engine) Init(asset types.Asset, farm, owner, feeRecipient crypto.Address) error {
	if e.state == nil {
		return errNilState
	}
	if err := asset.Validate(); err != nil {
		return fmt.Errorf("vault engine: %w", err)
	}
	if farm.IsZero() || owner.IsZero() {
		return ErrZeroAddress
	}
	existing, ok, err := e.state.VaultMeta(e.addr)
	if err != nil {
		return err
	}
	if ok {
		if !existing.Asset.Equal(asset) {
			return errVaultExists
		}
		return nil
	}
	return e.state.VaultPutMeta(&Meta{
		Address:          e.addr,
		Asset:            asset,
		Farm:             farm,
		Owner:            owner,
		FeeRecipient:     feeRecipient,
		TotalPrincipal:   big.NewInt(0),
		TotalWithdrawFee: big.NewInt(0),
	})
}

// AttachStrategy restores the runtime strategy after a restart. The strategy
// must be the one recorded in state.
func (e *Engine) AttachStrategy(s Strategy) error {
	meta, err := e.meta()
	if err != nil {
		return err
	}
	if s == nil {
		if !meta.Strategy.IsZero() {
			return errStrategyMismatch
		}
		e.strategy = nil
		return nil
	}
	if !meta.Strategy.Equal(s.Address()) {
		return errStrategyMismatch
	}
	e.strategy = s
	return nil
}

// Meta returns a copy of the vault record.
func (e *Engine) Meta() (*Meta, error) {
	return e.meta()
}

// Asset returns the vault's asset.
func (e *Engine) Asset() (types.Asset, error) {
	meta, err := e.meta()
	if err != nil {
		return types.Asset{}, err
	}
	return meta.Asset, nil
}

// Strategy returns the bound strategy, or nil.
func (e *Engine) Strategy() Strategy { return e.strategy }

// Deposit credits user with the funds the farm sends. The recorded amount is
// the growth of Balance across the transfer in and the forward to the strategy,
// never the requested amount, so a transfer tax on either hop is borne by the
// depositor.
func (e *Engine) Deposit(caller, user crypto.Address, amount *big.Int) (received *big.Int, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()
	snap := e.state.Snapshot()
	defer func() {
		if err != nil {
			e.state.RevertToSnapshot(snap)
		}
	}()

	meta, err := e.meta()
	if err != nil {
		return nil, err
	}
	if !caller.Equal(meta.Farm) {
		return nil, ErrUnauthorized
	}
	if user.IsZero() {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if e.strategy != nil {
		if err := e.strategy.PreDeposit(); err != nil {
			return nil, fmt.Errorf("%w: pre-deposit: %w", ErrStrategyFailed, err)
		}
	}

	before, err := e.holdings(meta.Asset)
	if err != nil {
		return nil, err
	}
	if meta.Asset.IsNative() {
		if err := e.ledger.Transfer(meta.Asset, caller, e.addr, amount); err != nil {
			return nil, err
		}
	} else if err := e.ledger.TransferFrom(meta.Asset.Token, e.addr, caller, e.addr, amount); err != nil {
		return nil, err
	}
	if e.strategy != nil {
		idle, err := e.ledger.BalanceOf(meta.Asset, e.addr)
		if err != nil {
			return nil, err
		}
		if idle.Sign() > 0 {
			if err := e.forward(meta.Asset, e.strategy, idle); err != nil {
				return nil, err
			}
		}
	}
	after, err := e.holdings(meta.Asset)
	if err != nil {
		return nil, err
	}
	received = after.Sub(after, before)
	if received.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	account, err := e.state.VaultAccount(e.addr, user)
	if err != nil {
		return nil, err
	}
	account.Principal.Add(account.Principal, received)
	meta.TotalPrincipal.Add(meta.TotalPrincipal, received)
	if err := e.state.VaultPutAccount(e.addr, user, account); err != nil {
		return nil, err
	}
	if err := e.state.VaultPutMeta(meta); err != nil {
		return nil, err
	}
	if err := e.state.VaultAddUser(e.addr, user); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.VaultDeposited{
		Vault:     e.addr,
		User:      user,
		Requested: new(big.Int).Set(amount),
		Received:  new(big.Int).Set(received),
		Strategy:  meta.Strategy,
	})
	e.logger.Debug("vault: deposit", "user", user.String(), "requested", amount.String(), "received", received.String())
	return new(big.Int).Set(received), nil
}

// Withdraw releases amount of the user's principal. The fee is carved out of
// the payout at feeRate permille and sent to the fee recipient; the principal
// decreases by the full amount.
func (e *Engine) Withdraw(caller, user crypto.Address, amount *big.Int, feeRate uint64) (net *big.Int, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()
	snap := e.state.Snapshot()
	defer func() {
		if err != nil {
			e.state.RevertToSnapshot(snap)
		}
	}()

	meta, err := e.meta()
	if err != nil {
		return nil, err
	}
	if !caller.Equal(meta.Farm) {
		return nil, ErrUnauthorized
	}
	if user.IsZero() {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if feeRate > FeeDenominator {
		return nil, errInvalidFeeRate
	}
	account, err := e.state.VaultAccount(e.addr, user)
	if err != nil {
		return nil, err
	}
	if account.Principal.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: have %s, requested %s", ErrInsufficientPrincipal, account.Principal, amount)
	}
	fee, net := SplitFee(amount, feeRate)
	if fee.Sign() > 0 && meta.FeeRecipient.IsZero() {
		return nil, errFeeRecipientNotSet
	}

	account.Principal.Sub(account.Principal, amount)
	meta.TotalPrincipal.Sub(meta.TotalPrincipal, amount)
	meta.TotalWithdrawFee.Add(meta.TotalWithdrawFee, fee)
	if err := e.state.VaultPutAccount(e.addr, user, account); err != nil {
		return nil, err
	}
	if err := e.state.VaultPutMeta(meta); err != nil {
		return nil, err
	}

	if err := e.payout(meta.Asset, user, net); err != nil {
		return nil, err
	}
	if err := e.payout(meta.Asset, meta.FeeRecipient, fee); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.VaultWithdrawn{
		Vault:        e.addr,
		User:         user,
		Amount:       new(big.Int).Set(amount),
		Net:          new(big.Int).Set(net),
		Fee:          new(big.Int).Set(fee),
		FeeRecipient: meta.FeeRecipient,
	})
	e.logger.Debug("vault: withdraw", "user", user.String(), "amount", amount.String(), "net", net.String(), "fee", fee.String())
	return net, nil
}

// SplitFee returns fee = amount*feeRate/1000 (truncated) and net = amount-fee.
func SplitFee(amount *big.Int, feeRate uint64) (fee, net *big.Int) {
	fee = new(big.Int).Mul(amount, new(big.Int).SetUint64(feeRate))
	fee.Quo(fee, big.NewInt(FeeDenominator))
	net = new(big.Int).Sub(amount, fee)
	return fee, net
}

// Balance reports idle holdings plus the strategy's reported balance. It is
// computed live on every call.
func (e *Engine) Balance() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	meta, err := e.meta()
	if err != nil {
		return nil, err
	}
	return e.holdings(meta.Asset)
}

// holdings is idle funds plus whatever the bound strategy reports.
func (e *Engine) holdings(asset types.Asset) (*big.Int, error) {
	total, err := e.ledger.BalanceOf(asset, e.addr)
	if err != nil {
		return nil, err
	}
	if e.strategy != nil {
		reported, err := e.strategy.ReportedBalance()
		if err != nil {
			return nil, fmt.Errorf("%w: reported balance: %w", ErrStrategyFailed, err)
		}
		total.Add(total, reported)
	}
	return total, nil
}

// SetStrategy binds s and sweeps every idle holding into it in the same call.
// Passing nil unbinds. Capital deployed in the prior strategy is not migrated:
// the owner must withdraw it back to the vault before rebinding. A sweep that
// lands less than it sent, such as a taxed token, is refused.
func (e *Engine) SetStrategy(caller crypto.Address, s Strategy) (err error) {
	if err := e.ready(); err != nil {
		return err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	snap := e.state.Snapshot()
	defer func() {
		if err != nil {
			e.state.RevertToSnapshot(snap)
		}
	}()

	meta, err := e.meta()
	if err != nil {
		return err
	}
	if !caller.Equal(meta.Owner) {
		return ErrUnauthorized
	}
	if s != nil && !s.WantAsset().Equal(meta.Asset) {
		return errStrategyAsset
	}

	previous := meta.Strategy
	priorDeployed := big.NewInt(0)
	if e.strategy != nil {
		reported, err := e.strategy.ReportedBalance()
		if err != nil {
			return fmt.Errorf("%w: reported balance: %w", ErrStrategyFailed, err)
		}
		priorDeployed = reported
	}
	if priorDeployed.Sign() > 0 {
		e.logger.Warn("vault: rebinding strategy with deployed capital",
			"previous", previous.String(), "deployed", priorDeployed.String())
	}

	swept := big.NewInt(0)
	if s != nil {
		meta.Strategy = s.Address()
		idle, err := e.ledger.BalanceOf(meta.Asset, e.addr)
		if err != nil {
			return err
		}
		if idle.Sign() > 0 {
			before, err := s.ReportedBalance()
			if err != nil {
				return fmt.Errorf("%w: reported balance: %w", ErrStrategyFailed, err)
			}
			if err := e.forward(meta.Asset, s, idle); err != nil {
				return err
			}
			after, err := s.ReportedBalance()
			if err != nil {
				return fmt.Errorf("%w: reported balance: %w", ErrStrategyFailed, err)
			}
			if landed := after.Sub(after, before); landed.Cmp(idle) < 0 {
				return fmt.Errorf("%w: swept %s, strategy booked %s", errSweepShortfall, idle, landed)
			}
			swept = idle
		}
	} else {
		meta.Strategy = crypto.Address{}
	}
	if err := e.state.VaultPutMeta(meta); err != nil {
		return err
	}
	e.strategy = s

	e.emitter.Emit(events.VaultStrategyBound{
		Vault:         e.addr,
		Previous:      previous,
		Strategy:      meta.Strategy,
		Swept:         new(big.Int).Set(swept),
		PriorDeployed: new(big.Int).Set(priorDeployed),
	})
	e.logger.Info("vault: strategy bound", "strategy", meta.Strategy.String(), "swept", swept.String())
	return nil
}

// SetFeeRecipient updates where withdrawal fees are paid.
func (e *Engine) SetFeeRecipient(caller, recipient crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	meta, err := e.meta()
	if err != nil {
		return err
	}
	if !caller.Equal(meta.Owner) {
		return ErrUnauthorized
	}
	if recipient.IsZero() {
		return ErrZeroAddress
	}
	meta.FeeRecipient = recipient
	return e.state.VaultPutMeta(meta)
}

// ClaimYield forwards the strategy's claimable yield to the recipient.
func (e *Engine) ClaimYield(caller, to crypto.Address) (claimed *big.Int, err error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()
	snap := e.state.Snapshot()
	defer func() {
		if err != nil {
			e.state.RevertToSnapshot(snap)
		}
	}()

	meta, err := e.meta()
	if err != nil {
		return nil, err
	}
	if !caller.Equal(meta.Owner) {
		return nil, ErrUnauthorized
	}
	if to.IsZero() {
		return nil, ErrZeroAddress
	}
	if e.strategy == nil {
		return nil, errNoStrategy
	}
	claimed, err = e.strategy.Claim(to)
	if err != nil {
		return nil, fmt.Errorf("%w: claim: %w", ErrStrategyFailed, err)
	}
	e.emitter.Emit(events.VaultYieldClaimed{
		Vault:    e.addr,
		Strategy: meta.Strategy,
		To:       to,
		Amount:   new(big.Int).Set(claimed),
	})
	return claimed, nil
}

// PendingYield reports the strategy's unclaimed yield, zero when unbound.
func (e *Engine) PendingYield() (*big.Int, error) {
	if e.strategy == nil {
		return big.NewInt(0), nil
	}
	pending, err := e.strategy.PendingYield()
	if err != nil {
		return nil, fmt.Errorf("%w: pending yield: %w", ErrStrategyFailed, err)
	}
	return pending, nil
}

// Account returns the user's principal record.
func (e *Engine) Account(user crypto.Address) (*Account, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.VaultAccount(e.addr, user)
}

// Users lists depositors in first-deposit order.
func (e *Engine) Users() ([]crypto.Address, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.VaultUsers(e.addr)
}

// TotalPrincipal returns the sum of all depositor principal.
func (e *Engine) TotalPrincipal() (*big.Int, error) {
	meta, err := e.meta()
	if err != nil {
		return nil, err
	}
	return meta.TotalPrincipal, nil
}

func (e *Engine) ready() error {
	if e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

func (e *Engine) meta() (*Meta, error) {
	if e.state == nil {
		return nil, errNilState
	}
	meta, ok, err := e.state.VaultMeta(e.addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errVaultNotFound
	}
	return meta, nil
}

// forward hands amount of idle holdings to the strategy.
func (e *Engine) forward(asset types.Asset, s Strategy, amount *big.Int) error {
	if asset.IsNative() {
		if err := e.ledger.Transfer(asset, e.addr, s.Address(), amount); err != nil {
			return err
		}
		if err := s.DepositNative(e.addr, amount); err != nil {
			return fmt.Errorf("%w: deposit native: %w", ErrStrategyFailed, err)
		}
		return nil
	}
	if err := e.ledger.Approve(asset.Token, e.addr, s.Address(), amount); err != nil {
		return err
	}
	if err := s.Deposit(e.addr, amount); err != nil {
		return fmt.Errorf("%w: deposit: %w", ErrStrategyFailed, err)
	}
	return nil
}

// payout sends amount to the recipient from the strategy when bound, else from
// idle holdings.
func (e *Engine) payout(asset types.Asset, to crypto.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if e.strategy == nil {
		return e.ledger.Transfer(asset, e.addr, to, amount)
	}
	var err error
	if asset.IsNative() {
		err = e.strategy.WithdrawNative(to, amount)
	} else {
		err = e.strategy.Withdraw(to, amount)
	}
	if err != nil {
		return fmt.Errorf("%w: withdraw: %w", ErrStrategyFailed, err)
	}
	return nil
}
