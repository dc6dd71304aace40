package tx

import (
	"math"

	"github.com/openmargin/margind/internal/core/ledger/state"
)

// FundingOp is the periodic funding operation. For each configured trading
// pair it measures the divergence between the mid-orderbook price and the
// external reference price and shifts base-asset collateral between debt
// holders in proportion. Positive debt (shorts) is paid when the mid price
// trades below the reference, and pays when it trades above.
type FundingOp struct {
	Pairs []TradingPair

	Result FundingResult
}

// Apply executes the operation against ls. On any failure the caller must
// roll back ls; no partial pair transfers survive because each pair runs in
// its own child transaction.
func (op *FundingOp) Apply(ls *state.LedgerState) bool {
	header := ls.LoadHeader()
	lh := header.Current()

	closeTime := lh.CloseTime
	if closeTime < lh.LastFunding+FundingInterval {
		op.Result.Code = FundingNotTime
		return false
	}

	op.Result.Code = FundingSuccess
	lh.InflationSeq++
	lh.LastFunding = closeTime

	for _, pair := range op.Pairs {
		refPrice, ok := ReferencePrice(ls, pair.ReferenceFeed.DataName, pair.ReferenceFeed.Issuer)
		if !ok {
			op.Result.Code = FundingNoReferencePrice
			return false
		}

		coin1 := pair.Coin1.Asset()
		coin2 := pair.Coin2.Asset()
		base := pair.BaseAsset.Asset()

		midPrice, ok := MidOrderbookPrice(ls, coin1, coin2, base, DepthThreshold)
		if !ok {
			op.Result.Code = FundingInvalidMidPrice
			return false
		}

		if math.Abs(midPrice-refPrice) <= refPrice*DiffThreshold {
			// Divergence inside the dead band, boundary included: no
			// transfer this interval.
			continue
		}

		if !coin1.Equals(base) && !coin2.Equals(base) {
			// Pairs with no base leg are not funded.
			continue
		}

		ratio := clampRatio((midPrice-refPrice)/refPrice, MaxDiffThreshold)

		// Work through the non-base leg: its debt sums to zero across
		// holders, so the transfers conserve collateral.
		nonbase := coin1
		if coin1.Equals(base) {
			nonbase = coin2
		}

		inner := state.NewChild(ls)
		innerHeader := inner.LoadHeader()

		var debtTotal int64
		for _, debtLine := range inner.DebtHolders(nonbase) {
			tl := debtLine.MustTrustLine()
			debtTotal += tl.Debt

			// Negative because the debt is measured on the non-base leg.
			delta := int64(-float64(tl.Debt) * ratio / refPrice)

			baseLine := LoadTrustLine(inner, tl.AccountID, base)
			if baseLine == nil {
				panic("funding target has no base trustline")
			}
			if !baseLine.AddBalance(innerHeader, delta) {
				panic("funding overflowed entry limit")
			}
			op.Result.Payouts = append(op.Result.Payouts, FundingPayout{
				AccountID: tl.AccountID,
				Asset:     base,
				Amount:    delta,
			})
		}

		if debtTotal != 0 {
			inner.Rollback()
			op.Result.Code = FundingDebtNotZero
			return false
		}

		inner.Commit()
	}

	return true
}
