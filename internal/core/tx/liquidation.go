package tx

import (
	"math"

	"github.com/openmargin/margind/internal/core/ledger"
	"github.com/openmargin/margind/internal/core/ledger/state"
)

// LiquidationOp is the periodic liquidation sweep. It marks trustline pairs
// whose equity has gone negative, keeps a single forced unwind offer open
// for each marked account, and clears the mark once equity recovers.
type LiquidationOp struct {
	Pairs []TradingPair

	Result LiquidationResult
}

// Apply executes the operation against ls. The caller rolls back ls on
// failure.
func (op *LiquidationOp) Apply(ls *state.LedgerState) bool {
	header := ls.LoadHeader()
	lh := header.Current()

	closeTime := lh.CloseTime
	if closeTime < lh.LastLiquidation+LiquidationInterval {
		op.Result.Code = LiquidationNotTime
		return false
	}

	op.Result.Code = LiquidationSuccess
	lh.LastLiquidation = closeTime

	for _, pair := range op.Pairs {
		refPrice, ok := ReferencePrice(ls, pair.ReferenceFeed.DataName, pair.ReferenceFeed.Issuer)
		if !ok {
			op.Result.Code = LiquidationNoReferencePrice
			return false
		}

		coin1 := pair.Coin1.Asset()
		coin2 := pair.Coin2.Asset()
		base := pair.BaseAsset.Asset()

		// Price the non-base leg in base.
		price1, price2 := 1.0, 1.0
		switch {
		case coin1.Equals(base):
			price2 = refPrice
		case coin2.Equals(base):
			price1 = refPrice
		default:
			// Pairs with no base leg are not swept.
			continue
		}

		// Mark pass: flag undercollateralised accounts and reconcile their
		// forced offers.
		for _, candidate := range ls.ShouldLiquidate(coin1, price1, coin2, price2, base) {
			accountID := candidate.MustTrustLine().AccountID

			entry1 := ls.Load(ledger.TrustLineKey(accountID, coin1))
			entry2 := ls.Load(ledger.TrustLineKey(accountID, coin2))
			if entry1 == nil || entry2 == nil {
				panic("liquidation candidate lost a trustline")
			}

			if !IsLiquidating(entry1.Current()) || !IsLiquidating(entry2.Current()) {
				SetLiquidation(entry1, true)
				SetLiquidation(entry2, true)
				op.Result.Marked = append(op.Result.Marked, accountID)
			}

			reconcileForcedOffer(ls, accountID,
				entry1.Current().MustTrustLine(), entry2.Current().MustTrustLine(),
				coin1, coin2, coin1.Equals(base), refPrice)
		}

		// Unmark pass: clear flags on accounts whose equity recovered.
		for _, recovered := range ls.UnderLiquidation(coin1, price1, coin2, price2, base, false) {
			accountID := recovered.MustTrustLine().AccountID

			entry1 := ls.Load(ledger.TrustLineKey(accountID, coin1))
			entry2 := ls.Load(ledger.TrustLineKey(accountID, coin2))
			if entry1 == nil || entry2 == nil {
				panic("liquidation candidate lost a trustline")
			}
			SetLiquidation(entry1, false)
			SetLiquidation(entry2, false)
			op.Result.Cleared = append(op.Result.Cleared, accountID)
		}
	}

	return true
}

// forcedPrice computes the liquidation price n/d from the account's current
// balances and debts, orienting the base leg by which coin is the base.
// Arithmetic that overflows or degenerates falls back to the reference
// price scaled by PriceMultiple.
func forcedPrice(tl1, tl2 *ledger.TrustLineEntry, coin1IsBase bool, refPrice float64) ledger.Price {
	pos1 := tl1.Balance - tl1.Debt
	if pos1 < 0 {
		pos1 = -pos1
	}
	pos2 := tl2.Debt - tl2.Balance
	if pos2 < 0 {
		pos2 = -pos2
	}

	fallback := func() ledger.Price {
		scaled := refPrice * float64(PriceMultiple)
		if scaled < 1 || scaled > float64(math.MaxInt32) {
			panic("reference price out of range for forced offer")
		}
		if coin1IsBase {
			return ledger.Price{N: int32(scaled), D: int32(PriceMultiple)}
		}
		return ledger.Price{N: int32(PriceMultiple), D: int32(scaled)}
	}

	if coin1IsBase {
		n, ok := bigDivide(pos2, PriceMultiple, pos1, RoundDown)
		if !ok || n <= 0 || n > math.MaxInt32 {
			return fallback()
		}
		return ledger.Price{N: int32(n), D: int32(PriceMultiple)}
	}

	d, ok := bigDivide(pos1, PriceMultiple, pos2, RoundDown)
	if !ok || d <= 0 || d > math.MaxInt32 {
		return fallback()
	}
	return ledger.Price{N: int32(PriceMultiple), D: int32(d)}
}

// reconcileForcedOffer keeps exactly one forced offer open that unwinds the
// account's position. An existing offer matching the wanted offer exactly is
// kept; anything else the account has open in the selling asset is cancelled
// before the new offer is placed.
func reconcileForcedOffer(ls *state.LedgerState, accountID ledger.AccountID, tl1, tl2 *ledger.TrustLineEntry, coin1, coin2 ledger.Asset, coin1IsBase bool, refPrice float64) {
	var selling, buying ledger.Asset
	var amount int64
	var price ledger.Price

	switch {
	case tl1.Debt > 0:
		// The account owes coin1: sell its coin2 exposure to buy it back.
		selling, buying = coin2, coin1
		amount = -tl2.Debt
		price = forcedPrice(tl1, tl2, coin1IsBase, refPrice)
	case tl2.Debt > 0:
		selling, buying = coin1, coin2
		amount = -tl1.Debt
		p := forcedPrice(tl1, tl2, coin1IsBase, refPrice)
		price = ledger.Price{N: p.D, D: p.N}
	default:
		return
	}

	if amount <= 0 {
		// Nothing to unwind on the covering leg.
		return
	}

	offers := ls.OffersByAccountAndAsset(accountID, selling)
	if len(offers) == 1 {
		for _, le := range offers {
			offer := le.MustOffer()
			if offer.Buying.Equals(buying) && offer.Amount == amount && offer.Price == price {
				return
			}
		}
	}

	for offerID, le := range offers {
		offer := le.MustOffer()
		applyCreateLiquidationOffer(ls, accountID, offer.Selling, offer.Buying, offer.Price, 0, offerID)
	}

	applyCreateLiquidationOffer(ls, accountID, selling, buying, price, amount, 0)
}
