package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"yieldfarm/crypto"
)

func TestAssetVariants(t *testing.T) {
	native := NativeAsset()
	token := TokenAsset(crypto.TokenAddress("LP"))

	require.NoError(t, native.Validate())
	require.NoError(t, token.Validate())
	require.True(t, native.IsNative())
	require.False(t, token.IsNative())
	require.False(t, native.Equal(token))
	require.True(t, token.Equal(TokenAsset(crypto.TokenAddress("LP"))))
	require.NotEqual(t, native.Key(), token.Key())
	require.Equal(t, "native", native.String())

	require.Error(t, Asset{Kind: AssetToken}.Validate())
	require.Error(t, Asset{Kind: AssetNative, Token: crypto.TokenAddress("LP")}.Validate())
	require.Error(t, Asset{}.Validate())
}

func TestEventAttr(t *testing.T) {
	evt := &Event{Type: "farm.deposited", Attributes: map[string]string{"pid": "0", "user": ""}}

	pid, ok := evt.Attr("pid")
	require.True(t, ok)
	require.Equal(t, "0", pid)

	_, ok = evt.Attr("user")
	require.False(t, ok)

	var missing *Event
	_, ok = missing.Attr("pid")
	require.False(t, ok)
}
