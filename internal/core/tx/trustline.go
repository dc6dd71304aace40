package tx

import (
	"math"

	"github.com/openmargin/margind/internal/core/ledger"
	"github.com/openmargin/margind/internal/core/ledger/state"
)

// TrustLine abstracts an account's position in an asset so that the issuer's
// own (fictional) trustline and a real trustline entry expose one capability
// set. The issuer variant reports infinite capacity and accepts every
// mutation as a successful no-op, which collapses issuer edge cases
// throughout the funding and liquidation logic.
type TrustLine interface {
	AccountID() ledger.AccountID
	Asset() ledger.Asset

	Balance() int64
	Debt() int64
	Limit() int64

	AddBalance(header *state.Header, delta int64) bool
	AddDebt(header *state.Header, delta int64) bool

	BuyingLiabilities(header *state.Header) int64
	SellingLiabilities(header *state.Header) int64
	AddBuyingLiabilities(header *state.Header, delta int64, isMarginTrade bool, calculatedMaxLiability int64) bool
	AddSellingLiabilities(header *state.Header, delta int64, isMarginTrade bool, calculatedMaxLiability int64) bool

	IsAuthorized() bool
	IsLiquidating() bool
	IsBaseAsset(ls *state.LedgerState) bool

	AvailableBalance(header *state.Header) int64
	MaxAmountReceive(header *state.Header) int64
}

// LoadTrustLine resolves the trustline (accountID, asset) through the ledger
// view. When accountID is the asset's issuer the returned TrustLine is the
// synthetic issuer variant; otherwise it is backed by the ledger entry, and
// nil is returned if no such entry exists. Native assets have no trustlines.
func LoadTrustLine(ls *state.LedgerState, accountID ledger.AccountID, asset ledger.Asset) TrustLine {
	if asset.IsNative() {
		panic("trustline for native asset")
	}
	if asset.Issuer == accountID {
		return &issuerTrustLine{accountID: accountID, asset: asset}
	}
	entry := ls.Load(ledger.TrustLineKey(accountID, asset))
	if entry == nil {
		return nil
	}
	return &nonIssuerTrustLine{entry: entry}
}

// nonIssuerTrustLine delegates to the backing trustline entry.
type nonIssuerTrustLine struct {
	entry *state.Entry
}

func (t *nonIssuerTrustLine) AccountID() ledger.AccountID {
	return t.entry.Current().MustTrustLine().AccountID
}

func (t *nonIssuerTrustLine) Asset() ledger.Asset {
	return t.entry.Current().MustTrustLine().Asset
}

func (t *nonIssuerTrustLine) Balance() int64 {
	return t.entry.Current().MustTrustLine().Balance
}

func (t *nonIssuerTrustLine) Debt() int64 {
	return t.entry.Current().MustTrustLine().Debt
}

func (t *nonIssuerTrustLine) Limit() int64 {
	return t.entry.Current().MustTrustLine().Limit
}

func (t *nonIssuerTrustLine) AddBalance(header *state.Header, delta int64) bool {
	return AddBalance(header, t.entry, delta)
}

func (t *nonIssuerTrustLine) AddDebt(header *state.Header, delta int64) bool {
	return AddDebt(header, t.entry, delta)
}

func (t *nonIssuerTrustLine) BuyingLiabilities(header *state.Header) int64 {
	return GetBuyingLiabilities(header, t.entry.Current())
}

func (t *nonIssuerTrustLine) SellingLiabilities(header *state.Header) int64 {
	return GetSellingLiabilities(header, t.entry.Current())
}

func (t *nonIssuerTrustLine) AddBuyingLiabilities(header *state.Header, delta int64, isMarginTrade bool, calculatedMaxLiability int64) bool {
	return AddBuyingLiabilities(header, t.entry, delta, isMarginTrade, calculatedMaxLiability)
}

func (t *nonIssuerTrustLine) AddSellingLiabilities(header *state.Header, delta int64, isMarginTrade bool, calculatedMaxLiability int64) bool {
	return AddSellingLiabilities(header, t.entry, delta, isMarginTrade, calculatedMaxLiability)
}

func (t *nonIssuerTrustLine) IsAuthorized() bool {
	return IsAuthorized(t.entry.Current())
}

func (t *nonIssuerTrustLine) IsLiquidating() bool {
	return IsLiquidating(t.entry.Current())
}

func (t *nonIssuerTrustLine) IsBaseAsset(ls *state.LedgerState) bool {
	return IsBaseAsset(ls, t.entry.Current())
}

func (t *nonIssuerTrustLine) AvailableBalance(header *state.Header) int64 {
	return GetAvailableBalance(header, t.entry.Current())
}

func (t *nonIssuerTrustLine) MaxAmountReceive(header *state.Header) int64 {
	return GetMaxAmountReceive(header, t.entry.Current())
}

// issuerTrustLine is the synthetic infinite-capacity position of an asset's
// issuer in its own asset. It is never materialised in the ledger.
type issuerTrustLine struct {
	accountID ledger.AccountID
	asset     ledger.Asset
}

func (t *issuerTrustLine) AccountID() ledger.AccountID { return t.accountID }
func (t *issuerTrustLine) Asset() ledger.Asset         { return t.asset }

func (t *issuerTrustLine) Balance() int64 { return math.MaxInt64 }
func (t *issuerTrustLine) Debt() int64    { return math.MaxInt64 }
func (t *issuerTrustLine) Limit() int64   { return math.MaxInt64 }

func (t *issuerTrustLine) AddBalance(header *state.Header, delta int64) bool { return true }
func (t *issuerTrustLine) AddDebt(header *state.Header, delta int64) bool    { return true }

func (t *issuerTrustLine) BuyingLiabilities(header *state.Header) int64  { return 0 }
func (t *issuerTrustLine) SellingLiabilities(header *state.Header) int64 { return 0 }

func (t *issuerTrustLine) AddBuyingLiabilities(header *state.Header, delta int64, isMarginTrade bool, calculatedMaxLiability int64) bool {
	return true
}

func (t *issuerTrustLine) AddSellingLiabilities(header *state.Header, delta int64, isMarginTrade bool, calculatedMaxLiability int64) bool {
	return true
}

func (t *issuerTrustLine) IsAuthorized() bool                        { return true }
func (t *issuerTrustLine) IsLiquidating() bool                       { return false }
func (t *issuerTrustLine) IsBaseAsset(ls *state.LedgerState) bool    { return false }
func (t *issuerTrustLine) AvailableBalance(h *state.Header) int64    { return math.MaxInt64 }
func (t *issuerTrustLine) MaxAmountReceive(h *state.Header) int64    { return math.MaxInt64 }

// ConstTrustLine is the read-only capability set over a position. Mutating
// calls do not exist on this flavour; callers that need them must load the
// read-write TrustLine.
type ConstTrustLine interface {
	Asset() ledger.Asset
	Balance() int64
	Debt() int64
	Limit() int64
	IsAuthorized() bool
	IsLiquidating() bool
	IsBaseAsset(ls *state.LedgerState) bool
	AvailableBalance(header *state.Header) int64
	MaxAmountReceive(header *state.Header) int64
}

// LoadTrustLineReadOnly resolves (accountID, asset) without recording the
// entry in the transaction write set.
func LoadTrustLineReadOnly(ls *state.LedgerState, accountID ledger.AccountID, asset ledger.Asset) ConstTrustLine {
	if asset.IsNative() {
		panic("trustline for native asset")
	}
	if asset.Issuer == accountID {
		return constIssuerTrustLine{}
	}
	entry := ls.LoadWithoutRecord(ledger.TrustLineKey(accountID, asset))
	if entry == nil {
		return nil
	}
	return &constTrustLine{entry: entry}
}

type constTrustLine struct {
	entry *state.ConstEntry
}

func (t *constTrustLine) Asset() ledger.Asset {
	return t.entry.Current().MustTrustLine().Asset
}

func (t *constTrustLine) Balance() int64 {
	return t.entry.Current().MustTrustLine().Balance
}

func (t *constTrustLine) Debt() int64 {
	return t.entry.Current().MustTrustLine().Debt
}

func (t *constTrustLine) Limit() int64 {
	return t.entry.Current().MustTrustLine().Limit
}

func (t *constTrustLine) IsAuthorized() bool {
	return IsAuthorized(t.entry.Current())
}

func (t *constTrustLine) IsLiquidating() bool {
	return IsLiquidating(t.entry.Current())
}

func (t *constTrustLine) IsBaseAsset(ls *state.LedgerState) bool {
	return IsBaseAsset(ls, t.entry.Current())
}

func (t *constTrustLine) AvailableBalance(header *state.Header) int64 {
	return GetAvailableBalance(header, t.entry.Current())
}

func (t *constTrustLine) MaxAmountReceive(header *state.Header) int64 {
	return GetMaxAmountReceive(header, t.entry.Current())
}

// constIssuerTrustLine mirrors the issuer variant for the read-only flavour.
// The read-only issuer position reports zero debt.
type constIssuerTrustLine struct{}

func (constIssuerTrustLine) Asset() ledger.Asset                     { return ledger.Asset{} }
func (constIssuerTrustLine) Balance() int64                          { return math.MaxInt64 }
func (constIssuerTrustLine) Debt() int64                             { return 0 }
func (constIssuerTrustLine) Limit() int64                            { return math.MaxInt64 }
func (constIssuerTrustLine) IsAuthorized() bool                      { return true }
func (constIssuerTrustLine) IsLiquidating() bool                     { return false }
func (constIssuerTrustLine) IsBaseAsset(ls *state.LedgerState) bool  { return false }
func (constIssuerTrustLine) AvailableBalance(h *state.Header) int64  { return math.MaxInt64 }
func (constIssuerTrustLine) MaxAmountReceive(h *state.Header) int64  { return math.MaxInt64 }
