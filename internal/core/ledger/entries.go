package ledger

// Account flag bits.
const (
	// AuthRequiredFlag: the issuer must authorise trustlines in its assets.
	AuthRequiredFlag uint32 = 0x1

	// AuthImmutableFlag: account flags can no longer be changed.
	AuthImmutableFlag uint32 = 0x4

	// BaseAssetIssuerFlag marks the issuer of a trading pair's base asset.
	BaseAssetIssuerFlag uint32 = 0x8
)

// TrustLine flag bits.
const (
	// AuthorizedFlag: the holder may act on the trustline.
	AuthorizedFlag uint32 = 0x1

	// LiquidationFlag marks a trustline whose account is being liquidated.
	LiquidationFlag uint32 = 0x2
)

// Offer flag bits.
const (
	// OfferPassiveFlag: the offer does not cross offers at the same price.
	OfferPassiveFlag uint32 = 0x1

	// OfferMarginFlag marks an offer placed through the margin path.
	OfferMarginFlag uint32 = 0x2

	// OfferLiquidationFlag marks a forced offer issued by liquidation.
	OfferLiquidationFlag uint32 = 0x4
)

// AccountEntry is an account's scalar ledger state.
type AccountEntry struct {
	AccountID     AccountID
	Balance       int64
	NumSubEntries uint32
	Flags         uint32

	// Liabilities is nil until the first liability edit upgrades the entry.
	Liabilities *Liabilities
}

// TrustLineEntry is an account's credit relationship with an asset, extended
// with a signed debt field for margin positions. Positive debt is borrowed
// (short); negative debt is the long counterpart; zero means no position.
type TrustLineEntry struct {
	AccountID AccountID
	Asset     Asset
	Limit     int64
	Balance   int64
	Debt      int64
	Flags     uint32

	// Liabilities is nil until the first liability edit upgrades the entry.
	Liabilities *Liabilities
}

// Price is an exact rational price n/d.
type Price struct {
	N int32
	D int32
}

// OfferEntry is a resting order selling Amount of Selling at Price
// (units of Buying per unit of Selling).
type OfferEntry struct {
	SellerID AccountID
	OfferID  uint64
	Selling  Asset
	Buying   Asset
	Amount   int64
	Price    Price
	Flags    uint32
}

// DataEntry is a named blob attached to an account. Reference price feeds
// store a UTF-8 decimal string here.
type DataEntry struct {
	AccountID AccountID
	DataName  string
	DataValue []byte
}

// LedgerHeader is the scalar state of a closed ledger.
type LedgerHeader struct {
	LedgerSeq       uint32
	LedgerVersion   uint32
	BaseReserve     uint32
	CloseTime       uint64
	IDPool          uint64
	InflationSeq    uint32
	LastFunding     uint64
	LastLiquidation uint64
}
