package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"yieldfarm/crypto"
)

// NativeSymbol names the native asset wherever a token symbol is expected.
const NativeSymbol = "NATIVE"

// Farm is the genesis description of a farm deployment.
type Farm struct {
	Owner         string  `toml:"Owner"`
	FeeRecipient  string  `toml:"FeeRecipient"`
	RewardToken   string  `toml:"RewardToken"`
	EmissionRate  string  `toml:"EmissionRate"`
	BonusEndTime  uint64  `toml:"BonusEndTime"`
	StartTime     *uint64 `toml:"StartTime"`
	RewardReserve string  `toml:"RewardReserve"`

	Tokens []Token `toml:"Tokens"`
	Pools  []Pool  `toml:"Pools"`
	// Alloc maps a bech32 account to symbol balances minted at genesis.
	Alloc map[string]map[string]string `toml:"Alloc"`
}

// Token registers a fungible token.
type Token struct {
	Symbol         string `toml:"Symbol"`
	Decimals       uint8  `toml:"Decimals"`
	TransferTaxBps uint64 `toml:"TransferTaxBps"`
	WrapsNative    bool   `toml:"WrapsNative"`
}

// Pool describes one farming pool and its vault.
type Pool struct {
	Asset           string `toml:"Asset"`
	Kind            string `toml:"Kind"`
	Weight          uint64 `toml:"Weight"`
	WithdrawFeeRate uint64 `toml:"WithdrawFeeRate"`
	Strategy        string `toml:"Strategy"`
}

// LoadFarm reads and validates a farm genesis file.
func LoadFarm(path string) (*Farm, error) {
	cfg := &Farm{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown keys: %v", path, undecoded)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// WriteFarm persists the configuration as TOML.
func WriteFarm(path string, cfg *Farm) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func (f *Farm) normalize() {
	f.RewardToken = normalizeSymbol(f.RewardToken)
	for i := range f.Tokens {
		f.Tokens[i].Symbol = normalizeSymbol(f.Tokens[i].Symbol)
	}
	for i := range f.Pools {
		f.Pools[i].Asset = normalizeSymbol(f.Pools[i].Asset)
		f.Pools[i].Kind = strings.ToLower(strings.TrimSpace(f.Pools[i].Kind))
		f.Pools[i].Strategy = strings.ToLower(strings.TrimSpace(f.Pools[i].Strategy))
		if f.Pools[i].Kind == "" {
			f.Pools[i].Kind = "token"
			if f.Pools[i].Asset == NativeSymbol {
				f.Pools[i].Kind = "native"
			}
		}
	}
	if f.Alloc == nil {
		f.Alloc = map[string]map[string]string{}
	}
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// OwnerAddress decodes the owner account.
func (f *Farm) OwnerAddress() (crypto.Address, error) {
	return crypto.DecodeAddress(strings.TrimSpace(f.Owner))
}

// FeeRecipientAddress decodes the fee recipient, defaulting to the owner.
func (f *Farm) FeeRecipientAddress() (crypto.Address, error) {
	if strings.TrimSpace(f.FeeRecipient) == "" {
		return f.OwnerAddress()
	}
	return crypto.DecodeAddress(strings.TrimSpace(f.FeeRecipient))
}

// Rate parses the base emission rate per second.
func (f *Farm) Rate() (*big.Int, error) {
	return ParseAmount(f.EmissionRate)
}

// Reserve parses the reward tokens minted to the farm at genesis.
func (f *Farm) Reserve() (*big.Int, error) {
	return ParseAmount(f.RewardReserve)
}

// Token returns the token with the symbol.
func (f *Farm) Token(symbol string) (Token, bool) {
	symbol = normalizeSymbol(symbol)
	for _, token := range f.Tokens {
		if token.Symbol == symbol {
			return token, true
		}
	}
	return Token{}, false
}

// ParseAmount parses a non-negative decimal integer; empty means zero.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
