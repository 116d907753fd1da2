package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"yieldfarm/crypto"
)

func testAccount(b byte) string {
	var raw [20]byte
	raw[0] = b
	raw[len(raw)-1] = 0x24
	return crypto.MustNewAddress(crypto.AccountPrefix, raw[:]).String()
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "farm.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func sampleConfig() string {
	return fmt.Sprintf(`Owner = "%s"
RewardToken = "rwd"
EmissionRate = "10"
BonusEndTime = 100
StartTime = 0
RewardReserve = "1000000"

[[Tokens]]
Symbol = "RWD"
Decimals = 18

[[Tokens]]
Symbol = "lp"
TransferTaxBps = 100

[[Tokens]]
Symbol = "WNAT"
WrapsNative = true

[[Pools]]
Asset = "LP"
Weight = 100
WithdrawFeeRate = 5
Strategy = "custody"

[[Pools]]
Asset = "native"
Weight = 50

[[Pools]]
Asset = "WNAT"
Kind = "wrapped-native"
Weight = 25

[Alloc."%s"]
LP = "5000"
NATIVE = "900"
`, testAccount(0x01), testAccount(0x02))
}

func TestLoadFarmParsesAndNormalizes(t *testing.T) {
	cfg, err := LoadFarm(writeConfig(t, sampleConfig()))
	require.NoError(t, err)

	require.Equal(t, "RWD", cfg.RewardToken)
	require.Len(t, cfg.Pools, 3)
	require.Equal(t, "token", cfg.Pools[0].Kind)
	require.Equal(t, "native", cfg.Pools[1].Kind)
	require.Equal(t, NativeSymbol, cfg.Pools[1].Asset)
	require.Equal(t, "custody", cfg.Pools[0].Strategy)
	require.NotNil(t, cfg.StartTime)

	rate, err := cfg.Rate()
	require.NoError(t, err)
	require.Equal(t, int64(10), rate.Int64())

	owner, err := cfg.OwnerAddress()
	require.NoError(t, err)
	recipient, err := cfg.FeeRecipientAddress()
	require.NoError(t, err)
	require.Equal(t, owner, recipient)

	token, ok := cfg.Token("lp")
	require.True(t, ok)
	require.Equal(t, uint64(100), token.TransferTaxBps)
}

func TestLoadFarmRejectsUnknownKeys(t *testing.T) {
	_, err := LoadFarm(writeConfig(t, sampleConfig()+"\nSurprise = true\n"))
	require.ErrorContains(t, err, "unknown keys")
}

func TestValidateRejectsInconsistentFarms(t *testing.T) {
	base := func() *Farm {
		cfg, err := LoadFarm(writeConfig(t, sampleConfig()))
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Pools[0].WithdrawFeeRate = 1001
	require.ErrorContains(t, cfg.Validate(), "withdrawFeeRate")

	cfg = base()
	cfg.Pools = append(cfg.Pools, Pool{Asset: "LP", Kind: "token"})
	require.ErrorContains(t, cfg.Validate(), "already has a pool")

	cfg = base()
	cfg.RewardToken = "NOPE"
	require.ErrorContains(t, cfg.Validate(), "rewardToken")

	cfg = base()
	cfg.EmissionRate = "0"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Pools[2].Asset = "LP"
	require.ErrorContains(t, cfg.Validate(), "wrapped-native")

	cfg = base()
	cfg.Owner = "not-an-address"
	require.ErrorContains(t, cfg.Validate(), "owner")
}

func TestWriteFarmRoundTrips(t *testing.T) {
	cfg, err := LoadFarm(writeConfig(t, sampleConfig()))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "farm.toml")
	require.NoError(t, WriteFarm(path, cfg))

	reloaded, err := LoadFarm(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}
