package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
)

var (
	errNilState              = errors.New("bank: state not configured")
	errInvalidAmount         = errors.New("bank: amount must not be negative")
	errZeroAddress           = errors.New("bank: zero address")
	errTokenExists           = errors.New("bank: token already registered")
	errTaxTooHigh            = errors.New("bank: transfer tax exceeds 100%")
	errSymbolRequired        = errors.New("bank: token symbol required")
	ErrUnknownToken          = errors.New("bank: token not registered")
	ErrInsufficientBalance   = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
)

const basisPoints = 10_000

type bankState interface {
	BankBalance(asset types.Asset, holder crypto.Address) (*big.Int, error)
	BankSetBalance(asset types.Asset, holder crypto.Address, amount *big.Int) error
	BankAllowance(token, owner, spender crypto.Address) (*big.Int, error)
	BankSetAllowance(token, owner, spender crypto.Address, amount *big.Int) error
	BankTokenGet(token crypto.Address) (*TokenConfig, bool, error)
	BankTokenPut(cfg *TokenConfig) error
}

// Ledger moves native value and fungible tokens between accounts. Callers own
// atomicity: a failed call may leave partial writes that the caller reverts
// through its state snapshot.
type Ledger struct {
	state bankState
}

// NewLedger constructs a ledger bound to the supplied state backend.
func NewLedger(state bankState) *Ledger {
	return &Ledger{state: state}
}

// RegisterToken stores the configuration for a new token.
func (l *Ledger) RegisterToken(cfg TokenConfig) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if cfg.Token.IsZero() {
		return errZeroAddress
	}
	cfg.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Symbol))
	if cfg.Symbol == "" {
		return errSymbolRequired
	}
	if cfg.TransferTaxBps > basisPoints {
		return errTaxTooHigh
	}
	if _, ok, err := l.state.BankTokenGet(cfg.Token); err != nil {
		return err
	} else if ok {
		return errTokenExists
	}
	return l.state.BankTokenPut(&cfg)
}

// Token returns the configuration of a registered token.
func (l *Ledger) Token(token crypto.Address) (*TokenConfig, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	cfg, ok, err := l.state.BankTokenGet(token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return cfg, nil
}

// BalanceOf returns the holder's balance of the asset.
func (l *Ledger) BalanceOf(asset types.Asset, holder crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.BankBalance(asset, holder)
}

// Transfer moves amount from one holder to another. Token transfers deduct the
// configured tax from the received amount; the tax is burned.
func (l *Ledger) Transfer(asset types.Asset, from, to crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return errZeroAddress
	}
	if err := asset.Validate(); err != nil {
		return fmt.Errorf("bank: %w", err)
	}
	taxBps := uint64(0)
	if asset.Kind == types.AssetToken {
		cfg, err := l.Token(asset.Token)
		if err != nil {
			return err
		}
		taxBps = cfg.TransferTaxBps
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal, err := l.state.BankBalance(asset, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal, amount)
	}
	if err := l.state.BankSetBalance(asset, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	received := new(big.Int).Set(amount)
	if taxBps > 0 {
		tax := new(big.Int).Mul(amount, new(big.Int).SetUint64(taxBps))
		tax.Quo(tax, big.NewInt(basisPoints))
		received.Sub(received, tax)
	}
	toBal, err := l.state.BankBalance(asset, to)
	if err != nil {
		return err
	}
	return l.state.BankSetBalance(asset, to, toBal.Add(toBal, received))
}

// Approve sets the allowance the spender may pull from the owner.
func (l *Ledger) Approve(token, owner, spender crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if owner.IsZero() || spender.IsZero() {
		return errZeroAddress
	}
	if _, err := l.Token(token); err != nil {
		return err
	}
	return l.state.BankSetAllowance(token, owner, spender, amount)
}

// Allowance returns the remaining amount the spender may pull from the owner.
func (l *Ledger) Allowance(token, owner, spender crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.BankAllowance(token, owner, spender)
}

// TransferFrom moves tokens on behalf of the owner, consuming allowance. A
// MaxAllowance grant is never decremented.
func (l *Ledger) TransferFrom(token, spender, from, to crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	allowance, err := l.state.BankAllowance(token, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount)
	}
	if !IsUnlimited(allowance) {
		if err := l.state.BankSetAllowance(token, from, spender, new(big.Int).Sub(allowance, amount)); err != nil {
			return err
		}
	}
	return l.Transfer(types.TokenAsset(token), from, to, amount)
}

// Mint credits newly issued units to the holder.
func (l *Ledger) Mint(asset types.Asset, to crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if to.IsZero() {
		return errZeroAddress
	}
	if asset.Kind == types.AssetToken {
		if _, err := l.Token(asset.Token); err != nil {
			return err
		}
	}
	bal, err := l.state.BankBalance(asset, to)
	if err != nil {
		return err
	}
	return l.state.BankSetBalance(asset, to, bal.Add(bal, amount))
}

// Burn removes units from the holder.
func (l *Ledger) Burn(asset types.Asset, from crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	bal, err := l.state.BankBalance(asset, from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal, amount)
	}
	return l.state.BankSetBalance(asset, from, bal.Sub(bal, amount))
}

func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	return nil
}
