package strategy

import (
	"errors"
	"fmt"
	"math/big"

	"yieldfarm/core/types"
	"yieldfarm/crypto"
)

var (
	errNilState      = errors.New("custody strategy: state not configured")
	errNotVault      = errors.New("custody strategy: caller is not the bound vault")
	errWantMismatch  = errors.New("custody strategy: position already bound to another asset")
	errNotNative     = errors.New("custody strategy: want asset is not native")
	errNotToken      = errors.New("custody strategy: want asset is not a token")
	errInvalidAmount = errors.New("custody strategy: amount must not be negative")
)

type positionState interface {
	StrategyPosition(addr crypto.Address) (*Position, bool, error)
	StrategyPutPosition(pos *Position) error
}

// Ledger is the transfer primitive the strategy custodies funds with.
type Ledger interface {
	BalanceOf(asset types.Asset, holder crypto.Address) (*big.Int, error)
	Transfer(asset types.Asset, from, to crypto.Address, amount *big.Int) error
	TransferFrom(token, spender, from, to crypto.Address, amount *big.Int) error
}

// Custody holds deposited funds in its own account. Anything the account holds
// above the booked principal is reported as yield, so external rewards credited
// to the account become claimable.
type Custody struct {
	addr   crypto.Address
	want   types.Asset
	state  positionState
	ledger Ledger
}

// NewCustody opens or creates the position stored at addr.
func NewCustody(addr crypto.Address, want types.Asset, vault crypto.Address, state positionState, ledger Ledger) (*Custody, error) {
	if state == nil || ledger == nil {
		return nil, errNilState
	}
	if err := want.Validate(); err != nil {
		return nil, fmt.Errorf("custody strategy: %w", err)
	}
	pos, ok, err := state.StrategyPosition(addr)
	if err != nil {
		return nil, err
	}
	if ok {
		if !pos.Want.Equal(want) || !pos.Vault.Equal(vault) {
			return nil, errWantMismatch
		}
	} else {
		pos = &Position{Address: addr, Want: want, Vault: vault, Principal: big.NewInt(0), Claimed: big.NewInt(0)}
		if err := state.StrategyPutPosition(pos); err != nil {
			return nil, err
		}
	}
	return &Custody{addr: addr, want: want, state: state, ledger: ledger}, nil
}

// Address returns the strategy account.
func (c *Custody) Address() crypto.Address { return c.addr }

// WantAsset returns the asset the strategy accepts.
func (c *Custody) WantAsset() types.Asset { return c.want }

// PreDeposit has nothing to prepare for custody.
func (c *Custody) PreDeposit() error { return nil }

// Deposit pulls amount from the vault's allowance and books the measured delta.
func (c *Custody) Deposit(from crypto.Address, amount *big.Int) error {
	if c.want.IsNative() {
		return errNotToken
	}
	pos, err := c.position(from)
	if err != nil {
		return err
	}
	before, err := c.ledger.BalanceOf(c.want, c.addr)
	if err != nil {
		return err
	}
	if err := c.ledger.TransferFrom(c.want.Token, c.addr, from, c.addr, amount); err != nil {
		return err
	}
	after, err := c.ledger.BalanceOf(c.want, c.addr)
	if err != nil {
		return err
	}
	pos.Principal.Add(pos.Principal, after.Sub(after, before))
	return c.state.StrategyPutPosition(pos)
}

// DepositNative books native value the vault already transferred.
func (c *Custody) DepositNative(from crypto.Address, value *big.Int) error {
	if !c.want.IsNative() {
		return errNotNative
	}
	if value == nil || value.Sign() < 0 {
		return errInvalidAmount
	}
	pos, err := c.position(from)
	if err != nil {
		return err
	}
	pos.Principal.Add(pos.Principal, value)
	return c.state.StrategyPutPosition(pos)
}

// Withdraw sends amount of the want token to the recipient.
func (c *Custody) Withdraw(to crypto.Address, amount *big.Int) error {
	if c.want.IsNative() {
		return errNotToken
	}
	return c.release(to, amount)
}

// WithdrawNative sends native value to the recipient.
func (c *Custody) WithdrawNative(to crypto.Address, amount *big.Int) error {
	if !c.want.IsNative() {
		return errNotNative
	}
	return c.release(to, amount)
}

// ReportedBalance returns everything the strategy account holds.
func (c *Custody) ReportedBalance() (*big.Int, error) {
	return c.ledger.BalanceOf(c.want, c.addr)
}

// PendingYield returns holdings above the booked principal.
func (c *Custody) PendingYield() (*big.Int, error) {
	pos, err := c.load()
	if err != nil {
		return nil, err
	}
	held, err := c.ledger.BalanceOf(c.want, c.addr)
	if err != nil {
		return nil, err
	}
	held.Sub(held, pos.Principal)
	if held.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return held, nil
}

// Claim pays the pending yield to the recipient.
func (c *Custody) Claim(to crypto.Address) (*big.Int, error) {
	pending, err := c.PendingYield()
	if err != nil {
		return nil, err
	}
	if pending.Sign() == 0 {
		return pending, nil
	}
	if err := c.ledger.Transfer(c.want, c.addr, to, pending); err != nil {
		return nil, err
	}
	pos, err := c.load()
	if err != nil {
		return nil, err
	}
	pos.Claimed.Add(pos.Claimed, pending)
	if err := c.state.StrategyPutPosition(pos); err != nil {
		return nil, err
	}
	return pending, nil
}

// Position returns a copy of the strategy book.
func (c *Custody) Position() (*Position, error) {
	return c.load()
}

func (c *Custody) release(to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	pos, err := c.load()
	if err != nil {
		return err
	}
	if err := c.ledger.Transfer(c.want, c.addr, to, amount); err != nil {
		return err
	}
	if pos.Principal.Cmp(amount) < 0 {
		pos.Principal.SetInt64(0)
	} else {
		pos.Principal.Sub(pos.Principal, amount)
	}
	return c.state.StrategyPutPosition(pos)
}

func (c *Custody) position(from crypto.Address) (*Position, error) {
	pos, err := c.load()
	if err != nil {
		return nil, err
	}
	if !pos.Vault.Equal(from) {
		return nil, errNotVault
	}
	return pos, nil
}

func (c *Custody) load() (*Position, error) {
	pos, ok, err := c.state.StrategyPosition(c.addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("custody strategy: position %s missing", c.addr)
	}
	return pos, nil
}
