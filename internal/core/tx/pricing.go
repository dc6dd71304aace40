package tx

import (
	"strconv"
	"strings"

	"github.com/openmargin/margind/internal/core/ledger"
	"github.com/openmargin/margind/internal/core/ledger/state"
)

// ReferencePrice reads the oracle price published as the data entry
// (issuerKey, feedName). The data value holds a UTF-8 decimal string. Any
// parse failure or missing entry reports no price.
func ReferencePrice(ls *state.LedgerState, feedName string, issuerKey ledger.AccountID) (float64, bool) {
	inner := state.NewChild(ls)
	defer inner.Rollback()

	data := inner.LoadWithoutRecord(ledger.DataKey(issuerKey, feedName))
	if data == nil {
		return 0, false
	}

	raw := strings.TrimSpace(string(data.Current().MustData().DataValue))
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

// AvgOfferPrice walks the best offers selling coin1 for coin2 in price order
// and computes the depth-weighted average price over up to depthThreshold
// units of depth, counted in the non-base asset. One of coin1/coin2 must be
// the base asset; the probe
// fails if not a single unit of depth is consumed.
func AvgOfferPrice(lsOuter *state.LedgerState, coin1, coin2, base ledger.Asset, depthThreshold int64) (float64, bool) {
	ls := state.NewChild(lsOuter)
	defer ls.Rollback()

	var coin1IsBase bool
	switch {
	case coin1.Equals(base):
		coin1IsBase = true
	case coin2.Equals(base):
		coin1IsBase = false
	default:
		return 0, false
	}

	excludes := make(map[ledger.LedgerKey]bool)
	var total int64
	depth := depthThreshold

	for depth > 0 {
		le := ls.BestOffer(coin1, coin2, excludes)
		if le == nil {
			break
		}
		offer := le.MustOffer()
		price := offer.Price
		amount := offer.Amount

		// Normalise the walked amount so both directions of the book
		// consume depth in the same units: when coin1 is the base the
		// amount converts at the offer price, otherwise it is used as is.
		denominated := amount
		if coin1IsBase {
			v, ok := bigDivide(amount, int64(price.N), int64(price.D), RoundDown)
			if !ok {
				return 0, false
			}
			denominated = v
		}

		consumed := denominated
		if depth < consumed {
			consumed = depth
		}

		// Accumulate the base-asset consideration for the consumed depth.
		var contribution int64
		var ok bool
		if coin1IsBase {
			contribution, ok = bigDivide(consumed, int64(price.D), int64(price.N), RoundDown)
		} else {
			contribution, ok = bigDivide(consumed, int64(price.N), int64(price.D), RoundDown)
		}
		if !ok {
			return 0, false
		}
		total += contribution
		depth -= consumed

		excludes[le.Key()] = true
	}

	if depth == depthThreshold {
		return 0, false
	}
	return float64(total) / float64(depthThreshold-depth), true
}

// MidOrderbookPrice averages the depth-weighted prices of the two sides of
// the coin1/coin2 book. It fails if either side fails or reports a
// non-positive price.
func MidOrderbookPrice(ls *state.LedgerState, coin1, coin2, base ledger.Asset, depthThreshold int64) (float64, bool) {
	bidPrice, ok := AvgOfferPrice(ls, coin1, coin2, base, depthThreshold)
	if !ok {
		return 0, false
	}
	offerPrice, ok := AvgOfferPrice(ls, coin2, coin1, base, depthThreshold)
	if !ok {
		return 0, false
	}
	if bidPrice <= 0 || offerPrice <= 0 {
		return 0, false
	}
	return (bidPrice + offerPrice) / 2.0, true
}
