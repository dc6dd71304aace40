package ledger

import "fmt"

// AssetType discriminates the Asset variant.
type AssetType int32

const (
	// AssetTypeNative is the ledger's native asset (no code, no issuer).
	AssetTypeNative AssetType = iota

	// AssetTypeCreditAlphanum4 is an issued asset with a code of up to 4 characters.
	AssetTypeCreditAlphanum4

	// AssetTypeCreditAlphanum12 is an issued asset with a code of 5 to 12 characters.
	AssetTypeCreditAlphanum12
)

// Asset identifies an asset on the ledger: either the native asset or an
// issued credit identified by (code, issuer). Equality is code + issuer.
type Asset struct {
	Type   AssetType
	Code   string
	Issuer AccountID
}

// NativeAsset returns the native asset.
func NativeAsset() Asset {
	return Asset{Type: AssetTypeNative}
}

// NewCreditAsset builds an issued asset, choosing the alphanum4 or alphanum12
// variant from the code length.
func NewCreditAsset(code string, issuer AccountID) (Asset, error) {
	if len(code) == 0 || len(code) > 12 {
		return Asset{}, fmt.Errorf("invalid asset code %q", code)
	}
	t := AssetTypeCreditAlphanum4
	if len(code) > 4 {
		t = AssetTypeCreditAlphanum12
	}
	return Asset{Type: t, Code: code, Issuer: issuer}, nil
}

// MustNewCreditAsset is NewCreditAsset that panics on an invalid code.
// Intended for static configuration and tests.
func MustNewCreditAsset(code string, issuer AccountID) Asset {
	a, err := NewCreditAsset(code, issuer)
	if err != nil {
		panic(err)
	}
	return a
}

// IsNative reports whether a is the native asset.
func (a Asset) IsNative() bool {
	return a.Type == AssetTypeNative
}

// Equals reports whether two assets identify the same asset.
func (a Asset) Equals(other Asset) bool {
	return a.Type == other.Type && a.Code == other.Code && a.Issuer == other.Issuer
}

// String renders the asset for logging.
func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return fmt.Sprintf("%s:%s", a.Code, a.Issuer)
}
