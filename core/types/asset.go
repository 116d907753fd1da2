package types

import (
	"fmt"

	"yieldfarm/crypto"
)

// AssetKind tags how an asset moves between accounts.
type AssetKind uint8

const (
	// AssetNative is the chain's native value asset.
	AssetNative AssetKind = iota + 1
	// AssetToken is a fungible token identified by its address.
	AssetToken
)

func (k AssetKind) String() string {
	switch k {
	case AssetNative:
		return "native"
	case AssetToken:
		return "token"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Asset is a tagged variant: either the native asset or a token. The kind is
// fixed when the asset is created and never re-derived from the address.
type Asset struct {
	Kind  AssetKind
	Token crypto.Address
}

// NativeAsset returns the native asset descriptor.
func NativeAsset() Asset { return Asset{Kind: AssetNative} }

// TokenAsset returns the descriptor for the supplied token.
func TokenAsset(token crypto.Address) Asset {
	return Asset{Kind: AssetToken, Token: token}
}

// IsNative reports whether the asset is the native asset.
func (a Asset) IsNative() bool { return a.Kind == AssetNative }

// Validate ensures the variant is well formed.
func (a Asset) Validate() error {
	switch a.Kind {
	case AssetNative:
		if !a.Token.IsZero() {
			return fmt.Errorf("native asset must not carry a token address")
		}
		return nil
	case AssetToken:
		if a.Token.IsZero() {
			return fmt.Errorf("token asset requires a token address")
		}
		return nil
	default:
		return fmt.Errorf("unknown asset kind %d", a.Kind)
	}
}

// Key returns the identity used for duplicate detection and storage keys.
func (a Asset) Key() string {
	if a.Kind == AssetNative {
		return "native"
	}
	return a.Kind.String() + ":" + string(a.Token.Bytes())
}

func (a Asset) String() string {
	if a.Kind == AssetNative {
		return "native"
	}
	return a.Token.String()
}

// Equal compares two asset descriptors.
func (a Asset) Equal(other Asset) bool {
	if a.Kind != other.Kind {
		return false
	}
	if a.Kind == AssetNative {
		return true
	}
	return a.Token.Equal(other.Token)
}
