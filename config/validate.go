package config

import (
	"fmt"
	"strings"

	"yieldfarm/crypto"
)

// MaxWithdrawFeeRate caps pool fees at 100% in permille.
const MaxWithdrawFeeRate = 1000

// Validate checks the farm configuration for internal consistency.
func (f *Farm) Validate() error {
	if _, err := f.OwnerAddress(); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if _, err := f.FeeRecipientAddress(); err != nil {
		return fmt.Errorf("feeRecipient: %w", err)
	}
	rate, err := f.Rate()
	if err != nil {
		return fmt.Errorf("emissionRate: %w", err)
	}
	if rate.Sign() == 0 {
		return fmt.Errorf("emissionRate must be positive")
	}
	if _, err := f.Reserve(); err != nil {
		return fmt.Errorf("rewardReserve: %w", err)
	}
	if f.StartTime != nil && f.BonusEndTime != 0 && f.BonusEndTime < *f.StartTime {
		return fmt.Errorf("bonusEndTime precedes startTime")
	}

	symbols := make(map[string]struct{}, len(f.Tokens))
	wrapped := 0
	for _, token := range f.Tokens {
		if token.Symbol == "" {
			return fmt.Errorf("token symbol must be provided")
		}
		if token.Symbol == NativeSymbol {
			return fmt.Errorf("token symbol %s is reserved", NativeSymbol)
		}
		if _, dup := symbols[token.Symbol]; dup {
			return fmt.Errorf("token %s declared twice", token.Symbol)
		}
		if token.Decimals > 18 {
			return fmt.Errorf("token %s: decimals must be 18 or fewer", token.Symbol)
		}
		if token.TransferTaxBps > 10_000 {
			return fmt.Errorf("token %s: transfer tax exceeds 100%%", token.Symbol)
		}
		if token.WrapsNative {
			wrapped++
		}
		symbols[token.Symbol] = struct{}{}
	}
	if wrapped > 1 {
		return fmt.Errorf("at most one token may wrap the native asset")
	}
	if _, ok := symbols[f.RewardToken]; !ok {
		return fmt.Errorf("rewardToken %q is not a declared token", f.RewardToken)
	}

	assets := make(map[string]struct{}, len(f.Pools))
	for i, pool := range f.Pools {
		if err := pool.validate(f); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		if _, dup := assets[pool.Asset]; dup {
			return fmt.Errorf("pools[%d]: asset %s already has a pool", i, pool.Asset)
		}
		assets[pool.Asset] = struct{}{}
	}

	for addr, balances := range f.Alloc {
		if _, err := decodeAccount(addr); err != nil {
			return fmt.Errorf("alloc[%q]: %w", addr, err)
		}
		for symbol, amount := range balances {
			normalized := normalizeSymbol(symbol)
			if _, ok := symbols[normalized]; !ok && normalized != NativeSymbol {
				return fmt.Errorf("alloc[%q]: unknown symbol %q", addr, symbol)
			}
			if _, err := ParseAmount(amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addr, symbol, err)
			}
		}
	}
	return nil
}

func (p Pool) validate(f *Farm) error {
	if p.WithdrawFeeRate > MaxWithdrawFeeRate {
		return fmt.Errorf("withdrawFeeRate exceeds %d permille", MaxWithdrawFeeRate)
	}
	switch p.Strategy {
	case "", "custody":
	default:
		return fmt.Errorf("unknown strategy %q", p.Strategy)
	}
	switch p.Kind {
	case "native":
		if p.Asset != NativeSymbol {
			return fmt.Errorf("native pool must use asset %s", NativeSymbol)
		}
	case "token":
		if _, ok := f.Token(p.Asset); !ok {
			return fmt.Errorf("asset %q is not a declared token", p.Asset)
		}
	case "wrapped-native", "wrapped":
		token, ok := f.Token(p.Asset)
		if !ok || !token.WrapsNative {
			return fmt.Errorf("asset %q is not a wrapped-native token", p.Asset)
		}
	default:
		return fmt.Errorf("unknown pool kind %q", p.Kind)
	}
	return nil
}

func decodeAccount(addr string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("address must be provided")
	}
	return crypto.DecodeAddress(trimmed)
}

// AllocAddress decodes an Alloc key.
func AllocAddress(addr string) (crypto.Address, error) {
	return decodeAccount(addr)
}
