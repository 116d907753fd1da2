package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	addr := key.PubKey().Address()
	require.Equal(t, AccountPrefix, addr.Prefix())
	require.False(t, addr.IsZero())

	decoded, err := DecodeAddress(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr, decoded)
}

func TestModuleAddressDeterministic(t *testing.T) {
	a := ModuleAddress("farm")
	b := ModuleAddress("farm")
	c := ModuleAddress("vault/usdc")

	require.Equal(t, a, b)
	require.False(t, a.Equal(c))
	require.Equal(t, ModulePrefix, a.Prefix())
}

func TestNewAddressRejectsBadLength(t *testing.T) {
	_, err := NewAddress(AccountPrefix, []byte{1, 2, 3})
	require.ErrorIs(t, err, errAddressLength)
}

func TestZeroAddress(t *testing.T) {
	var zero Address
	require.True(t, zero.IsZero())
	require.Equal(t, "", zero.String())
}

func TestAddressRLPRoundTrip(t *testing.T) {
	addr := TokenAddress("USDC")

	encoded, err := rlp.EncodeToBytes(addr)
	require.NoError(t, err)

	var decoded Address
	require.NoError(t, rlp.DecodeBytes(encoded, &decoded))
	require.Equal(t, addr, decoded)
	require.Equal(t, TokenPrefix, decoded.Prefix())
}
