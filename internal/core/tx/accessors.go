package tx

import (
	"fmt"
	"math"

	"github.com/openmargin/margind/internal/core/ledger"
	"github.com/openmargin/margind/internal/core/ledger/state"
)

// liabilitiesVersion is the protocol version that introduced entry
// liabilities; accessing them on an older ledger is a structural error.
const liabilitiesVersion = 10

// AddBalance applies balance += delta on an account or trustline entry,
// bounded by the entry's range and, from protocol 10, its liabilities.
// A zero delta always succeeds. Trustline edits require authorization.
func AddBalance(header *state.Header, entry *state.Entry, delta int64) bool {
	le := entry.Current()
	switch le.Data.Type {
	case ledger.EntryTypeAccount:
		if delta == 0 {
			return true
		}
		acc := le.MustAccount()
		newBalance := acc.Balance
		if !addBalanceChecked(&newBalance, delta, math.MaxInt64) {
			return false
		}
		if header.Current().LedgerVersion >= liabilitiesVersion {
			minBalance := GetMinBalance(header, acc.NumSubEntries)
			if delta < 0 && newBalance-minBalance < GetSellingLiabilities(header, le) {
				return false
			}
			if newBalance > math.MaxInt64-GetBuyingLiabilities(header, le) {
				return false
			}
		}
		acc.Balance = newBalance
		return true

	case ledger.EntryTypeTrustLine:
		if delta == 0 {
			return true
		}
		if !IsAuthorized(le) {
			return false
		}
		tl := le.MustTrustLine()
		newBalance := tl.Balance
		if !addBalanceChecked(&newBalance, delta, tl.Limit) {
			return false
		}
		if header.Current().LedgerVersion >= liabilitiesVersion {
			if newBalance < GetSellingLiabilities(header, le) {
				return false
			}
			if newBalance > tl.Limit-GetBuyingLiabilities(header, le) {
				return false
			}
		}
		tl.Balance = newBalance
		return true

	default:
		panic(fmt.Sprintf("unknown ledger entry type %s", le.Data.Type))
	}
}

// AddDebt applies debt += delta on a trustline entry, keeping |debt| within
// the trustline limit. Only valid on authorized trustlines.
func AddDebt(header *state.Header, entry *state.Entry, delta int64) bool {
	le := entry.Current()
	if le.Data.Type != ledger.EntryTypeTrustLine {
		panic(fmt.Sprintf("unknown ledger entry type %s", le.Data.Type))
	}
	if delta == 0 {
		return true
	}
	if !IsAuthorized(le) {
		return false
	}
	tl := le.MustTrustLine()
	newDebt := tl.Debt
	if !addChecked(&newDebt, delta, -tl.Limit, tl.Limit) {
		return false
	}
	tl.Debt = newDebt
	return true
}

// ensureAccountLiabilities lazily upgrades the account extension.
func ensureAccountLiabilities(acc *ledger.AccountEntry) *ledger.Liabilities {
	if acc.Liabilities == nil {
		acc.Liabilities = &ledger.Liabilities{}
	}
	return acc.Liabilities
}

// ensureTrustLineLiabilities lazily upgrades the trustline extension.
func ensureTrustLineLiabilities(tl *ledger.TrustLineEntry) *ledger.Liabilities {
	if tl.Liabilities == nil {
		tl.Liabilities = &ledger.Liabilities{}
	}
	return tl.Liabilities
}

// AddBuyingLiabilities applies buying liabilities += delta, bounded by the
// entry's remaining receive capacity. The margin arguments are accepted for
// signature parity with the selling side; buying capacity is unchanged by
// margin mode.
func AddBuyingLiabilities(header *state.Header, entry *state.Entry, delta int64, isMarginTrade bool, calculatedMaxLiability int64) bool {
	le := entry.Current()
	buyingLiab := GetBuyingLiabilities(header, le)

	if delta == 0 {
		return true
	}

	switch le.Data.Type {
	case ledger.EntryTypeAccount:
		acc := le.MustAccount()
		maxLiabilities := math.MaxInt64 - acc.Balance
		if !addBalanceChecked(&buyingLiab, delta, maxLiabilities) {
			return false
		}
		ensureAccountLiabilities(acc).Buying = buyingLiab
		return true

	case ledger.EntryTypeTrustLine:
		if !IsAuthorized(le) {
			return false
		}
		tl := le.MustTrustLine()
		maxLiabilities := tl.Limit - tl.Balance
		if !addBalanceChecked(&buyingLiab, delta, maxLiabilities) {
			return false
		}
		ensureTrustLineLiabilities(tl).Buying = buyingLiab
		return true

	default:
		panic(fmt.Sprintf("unknown ledger entry type %s", le.Data.Type))
	}
}

// AddSellingLiabilities applies selling liabilities += delta. In margin mode
// on a trustline the effective delta is delta / MaxLeverage and the cap is
// calculatedMaxLiability (the trustline limit when negative); otherwise the
// cap is the entry's spendable balance.
func AddSellingLiabilities(header *state.Header, entry *state.Entry, delta int64, isMarginTrade bool, calculatedMaxLiability int64) bool {
	le := entry.Current()
	sellingLiab := GetSellingLiabilities(header, le)

	if delta == 0 {
		return true
	}

	switch le.Data.Type {
	case ledger.EntryTypeAccount:
		acc := le.MustAccount()
		maxLiabilities := acc.Balance - GetMinBalance(header, acc.NumSubEntries)
		if maxLiabilities < 0 {
			return false
		}
		if !addBalanceChecked(&sellingLiab, delta, maxLiabilities) {
			return false
		}
		ensureAccountLiabilities(acc).Selling = sellingLiab
		return true

	case ledger.EntryTypeTrustLine:
		if !IsAuthorized(le) {
			return false
		}
		tl := le.MustTrustLine()
		if isMarginTrade {
			if calculatedMaxLiability < 0 {
				calculatedMaxLiability = tl.Limit
			}
			if !addBalanceChecked(&sellingLiab, delta/MaxLeverage, calculatedMaxLiability) {
				return false
			}
			ensureTrustLineLiabilities(tl).Selling = sellingLiab
			return true
		}
		if !addBalanceChecked(&sellingLiab, delta, tl.Balance) {
			return false
		}
		ensureTrustLineLiabilities(tl).Selling = sellingLiab
		return true

	default:
		panic(fmt.Sprintf("unknown ledger entry type %s", le.Data.Type))
	}
}

// AddNumEntries adjusts an account's sub-entry count, checking the reserve
// when adding entries.
func AddNumEntries(header *state.Header, entry *state.Entry, count int) bool {
	acc := entry.Current().MustAccount()
	newCount := int64(acc.NumSubEntries) + int64(count)
	if newCount < 0 {
		panic("invalid account state")
	}

	effMinBalance := GetMinBalance(header, uint32(newCount))
	if header.Current().LedgerVersion >= liabilitiesVersion {
		effMinBalance += GetSellingLiabilities(header, entry.Current())
	}

	if count > 0 && acc.Balance < effMinBalance {
		return false
	}
	acc.NumSubEntries = uint32(newCount)
	return true
}

// GenerateID allocates the next ledger object ID from the header pool.
func GenerateID(header *state.Header) uint64 {
	header.Current().IDPool++
	return header.Current().IDPool
}

// GetBuyingLiabilities reads an entry's buying liabilities.
func GetBuyingLiabilities(header *state.Header, le *ledger.LedgerEntry) int64 {
	if header.Current().LedgerVersion < liabilitiesVersion {
		panic("liabilities accessed before version 10")
	}
	switch le.Data.Type {
	case ledger.EntryTypeAccount:
		if le.MustAccount().Liabilities == nil {
			return 0
		}
		return le.MustAccount().Liabilities.Buying
	case ledger.EntryTypeTrustLine:
		if le.MustTrustLine().Liabilities == nil {
			return 0
		}
		return le.MustTrustLine().Liabilities.Buying
	default:
		panic(fmt.Sprintf("unknown ledger entry type %s", le.Data.Type))
	}
}

// GetSellingLiabilities reads an entry's selling liabilities.
func GetSellingLiabilities(header *state.Header, le *ledger.LedgerEntry) int64 {
	if header.Current().LedgerVersion < liabilitiesVersion {
		panic("liabilities accessed before version 10")
	}
	switch le.Data.Type {
	case ledger.EntryTypeAccount:
		if le.MustAccount().Liabilities == nil {
			return 0
		}
		return le.MustAccount().Liabilities.Selling
	case ledger.EntryTypeTrustLine:
		if le.MustTrustLine().Liabilities == nil {
			return 0
		}
		return le.MustTrustLine().Liabilities.Selling
	default:
		panic(fmt.Sprintf("unknown ledger entry type %s", le.Data.Type))
	}
}

// GetAvailableBalance is the balance an entry can spend after reserves and
// selling liabilities.
func GetAvailableBalance(header *state.Header, le *ledger.LedgerEntry) int64 {
	var avail int64
	switch le.Data.Type {
	case ledger.EntryTypeAccount:
		acc := le.MustAccount()
		avail = acc.Balance - GetMinBalance(header, acc.NumSubEntries)
	case ledger.EntryTypeTrustLine:
		avail = le.MustTrustLine().Balance
	default:
		panic(fmt.Sprintf("unknown ledger entry type %s", le.Data.Type))
	}
	if header.Current().LedgerVersion >= liabilitiesVersion {
		avail -= GetSellingLiabilities(header, le)
	}
	return avail
}

// GetMaxAmountReceive is the amount an entry can still receive after buying
// liabilities.
func GetMaxAmountReceive(header *state.Header, le *ledger.LedgerEntry) int64 {
	switch le.Data.Type {
	case ledger.EntryTypeAccount:
		maxReceive := int64(math.MaxInt64)
		if header.Current().LedgerVersion >= liabilitiesVersion {
			acc := le.MustAccount()
			maxReceive -= acc.Balance + GetBuyingLiabilities(header, le)
		}
		return maxReceive
	case ledger.EntryTypeTrustLine:
		var amount int64
		if IsAuthorized(le) {
			tl := le.MustTrustLine()
			amount = tl.Limit - tl.Balance
			if header.Current().LedgerVersion >= liabilitiesVersion {
				amount -= GetBuyingLiabilities(header, le)
			}
		}
		return amount
	default:
		panic(fmt.Sprintf("unknown ledger entry type %s", le.Data.Type))
	}
}

// GetMinBalance is the reserve an account must hold for its sub-entries.
func GetMinBalance(header *state.Header, ownerCount uint32) int64 {
	return (2 + int64(ownerCount)) * int64(header.Current().BaseReserve)
}

// GetMinimumLimit is the lowest limit a trustline can be reduced to.
func GetMinimumLimit(header *state.Header, le *ledger.LedgerEntry) int64 {
	tl := le.MustTrustLine()
	minLimit := tl.Balance
	if header.Current().LedgerVersion >= liabilitiesVersion {
		minLimit += GetBuyingLiabilities(header, le)
	}
	return minLimit
}

// GetOfferSellingLiabilities is the amount of the selling asset an offer
// reserves: the full resting amount.
func GetOfferSellingLiabilities(header *state.Header, le *ledger.LedgerEntry) int64 {
	if header.Current().LedgerVersion < liabilitiesVersion {
		panic("offer liabilities calculated before version 10")
	}
	return le.MustOffer().Amount
}

// GetOfferBuyingLiabilities is the amount of the buying asset an offer
// reserves: amount * price, rounded up so capacity is never under-reserved.
func GetOfferBuyingLiabilities(header *state.Header, le *ledger.LedgerEntry) int64 {
	if header.Current().LedgerVersion < liabilitiesVersion {
		panic("offer liabilities calculated before version 10")
	}
	offer := le.MustOffer()
	liab, ok := bigDivide(offer.Amount, int64(offer.Price.N), int64(offer.Price.D), RoundUp)
	if !ok {
		panic("offer buying liabilities overflow")
	}
	return liab
}

// IsAuthorized reports whether a trustline carries the AUTHORIZED flag.
func IsAuthorized(le *ledger.LedgerEntry) bool {
	return le.MustTrustLine().Flags&ledger.AuthorizedFlag != 0
}

// IsLiquidating reports whether a trustline carries the LIQUIDATION flag.
func IsLiquidating(le *ledger.LedgerEntry) bool {
	return le.MustTrustLine().Flags&ledger.LiquidationFlag != 0
}

// SetAuthorized sets or clears the AUTHORIZED flag on a trustline.
func SetAuthorized(entry *state.Entry, authorized bool) {
	tl := entry.Current().MustTrustLine()
	if authorized {
		tl.Flags |= ledger.AuthorizedFlag
	} else {
		tl.Flags &^= ledger.AuthorizedFlag
	}
}

// SetLiquidation sets or clears the LIQUIDATION flag on a trustline.
// Setting an already-set flag is a no-op, which makes the mark pass
// idempotent.
func SetLiquidation(entry *state.Entry, liquidate bool) {
	tl := entry.Current().MustTrustLine()
	if liquidate {
		tl.Flags |= ledger.LiquidationFlag
	} else {
		tl.Flags &^= ledger.LiquidationFlag
	}
}

// IsAuthRequired reports whether an account requires trustline authorization.
func IsAuthRequired(le *ledger.LedgerEntry) bool {
	return le.MustAccount().Flags&ledger.AuthRequiredFlag != 0
}

// IsImmutableAuth reports whether an account's flags are frozen.
func IsImmutableAuth(le *ledger.LedgerEntry) bool {
	return le.MustAccount().Flags&ledger.AuthImmutableFlag != 0
}

// IsBaseAssetIssuer reports whether an account issues a base asset.
func IsBaseAssetIssuer(le *ledger.LedgerEntry) bool {
	return le.MustAccount().Flags&ledger.BaseAssetIssuerFlag != 0
}

// IsBaseAsset reports whether a trustline's asset is a base asset, judged by
// the issuer account's flags. A missing issuer account reads as false.
func IsBaseAsset(ls *state.LedgerState, le *ledger.LedgerEntry) bool {
	issuerID := le.MustTrustLine().Asset.Issuer
	issuer := ls.LoadWithoutRecord(ledger.AccountKey(issuerID))
	if issuer == nil {
		return false
	}
	return IsBaseAssetIssuer(issuer.Current())
}
