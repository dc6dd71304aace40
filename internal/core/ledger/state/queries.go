package state

import (
	"fmt"
	"sort"

	"github.com/openmargin/margind/internal/core/ledger"
)

// visibleEntries materialises the entries visible at this level: the root
// snapshot overlaid by every write-set from the outermost state down to s.
// Values are the working copies; callers must clone before returning them.
func (s *LedgerState) visibleEntries() map[ledger.LedgerKey]*ledger.LedgerEntry {
	// Gather the chain root-first so deeper levels overwrite shallower ones.
	var chain []*LedgerState
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}

	out := make(map[ledger.LedgerKey]*ledger.LedgerEntry)
	rootState := chain[len(chain)-1]
	err := rootState.root.ForEach(func(le *ledger.LedgerEntry) error {
		out[le.Key()] = le
		return nil
	})
	if err != nil {
		panic(fmt.Sprintf("ledger root scan failed: %v", err))
	}

	for i := len(chain) - 1; i >= 0; i-- {
		for k, le := range chain[i].writes {
			if le == nil {
				delete(out, k)
			} else {
				out[k] = le
			}
		}
	}
	return out
}

// priceLess compares offer prices exactly: a.N/a.D < b.N/b.D.
func priceLess(a, b ledger.Price) bool {
	return int64(a.N)*int64(b.D) < int64(b.N)*int64(a.D)
}

// BestOffer returns a copy of the lowest-priced offer selling `selling` for
// `buying`, skipping any key present in excludes. Ties break on ascending
// offerID so replicas walk the book identically. Returns nil when no offer
// matches.
func (s *LedgerState) BestOffer(selling, buying ledger.Asset, excludes map[ledger.LedgerKey]bool) *ledger.LedgerEntry {
	s.checkActive()

	var best *ledger.LedgerEntry
	for key, le := range s.visibleEntries() {
		if key.Type != ledger.EntryTypeOffer || excludes[key] {
			continue
		}
		offer := le.MustOffer()
		if !offer.Selling.Equals(selling) || !offer.Buying.Equals(buying) {
			continue
		}
		if best == nil {
			best = le
			continue
		}
		cur := best.MustOffer()
		if priceLess(offer.Price, cur.Price) ||
			(!priceLess(cur.Price, offer.Price) && offer.OfferID < cur.OfferID) {
			best = le
		}
	}
	if best == nil {
		return nil
	}
	return best.Clone()
}

// OffersByAccountAndAsset returns copies of all offers owned by accountID
// selling the given asset, keyed by offerID.
func (s *LedgerState) OffersByAccountAndAsset(accountID ledger.AccountID, selling ledger.Asset) map[uint64]*ledger.LedgerEntry {
	s.checkActive()

	out := make(map[uint64]*ledger.LedgerEntry)
	for key, le := range s.visibleEntries() {
		if key.Type != ledger.EntryTypeOffer {
			continue
		}
		offer := le.MustOffer()
		if offer.SellerID == accountID && offer.Selling.Equals(selling) {
			out[offer.OfferID] = le.Clone()
		}
	}
	return out
}

// DebtHolders returns copies of every trustline in the asset with a nonzero
// debt, ordered by account ID ascending.
func (s *LedgerState) DebtHolders(asset ledger.Asset) []ledger.LedgerEntry {
	s.checkActive()
	if asset.IsNative() {
		panic("debt holder should not be native asset")
	}

	var out []ledger.LedgerEntry
	for key, le := range s.visibleEntries() {
		if key.Type != ledger.EntryTypeTrustLine {
			continue
		}
		tl := le.MustTrustLine()
		if tl.Asset.Equals(asset) && tl.Debt != 0 {
			out = append(out, *le.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MustTrustLine().AccountID < out[j].MustTrustLine().AccountID
	})
	return out
}

// pairPosition is an account's combined position across the two legs of a
// trading pair.
type pairPosition struct {
	accountID ledger.AccountID
	line1     *ledger.LedgerEntry
	line2     *ledger.LedgerEntry
}

// pairPositions collects every account holding trustlines in both legs,
// ordered by account ID ascending.
func (s *LedgerState) pairPositions(coin1, coin2 ledger.Asset) []pairPosition {
	lines1 := make(map[ledger.AccountID]*ledger.LedgerEntry)
	lines2 := make(map[ledger.AccountID]*ledger.LedgerEntry)
	for key, le := range s.visibleEntries() {
		if key.Type != ledger.EntryTypeTrustLine {
			continue
		}
		tl := le.MustTrustLine()
		switch {
		case tl.Asset.Equals(coin1):
			lines1[tl.AccountID] = le
		case tl.Asset.Equals(coin2):
			lines2[tl.AccountID] = le
		}
	}

	var out []pairPosition
	for accountID, le1 := range lines1 {
		if le2, ok := lines2[accountID]; ok {
			out = append(out, pairPosition{accountID: accountID, line1: le1, line2: le2})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].accountID < out[j].accountID })
	return out
}

// equity is the net value of a pair position at the given leg prices,
// denominated in the base asset.
func (p pairPosition) equity(price1, price2 float64) float64 {
	tl1 := p.line1.MustTrustLine()
	tl2 := p.line2.MustTrustLine()
	return float64(tl1.Balance-tl1.Debt)*price1 + float64(tl2.Balance-tl2.Debt)*price2
}

// ShouldLiquidate returns copies of the coin1-leg trustlines of every
// account whose pair equity at the given prices is negative, ordered by
// account ID ascending.
func (s *LedgerState) ShouldLiquidate(coin1 ledger.Asset, price1 float64, coin2 ledger.Asset, price2 float64, base ledger.Asset) []ledger.LedgerEntry {
	s.checkActive()
	if coin1.IsNative() || coin2.IsNative() {
		panic("liquidation candidate should not be native asset")
	}

	var out []ledger.LedgerEntry
	for _, pos := range s.pairPositions(coin1, coin2) {
		if pos.equity(price1, price2) < 0 {
			out = append(out, *pos.line1.Clone())
		}
	}
	return out
}

// UnderLiquidation returns copies of the coin1-leg trustlines of accounts
// currently flagged for liquidation on both legs. With stillEligible true it
// selects those whose equity remains negative; with false, those whose
// equity has recovered to non-negative (the unmark set). Ordered by account
// ID ascending.
func (s *LedgerState) UnderLiquidation(coin1 ledger.Asset, price1 float64, coin2 ledger.Asset, price2 float64, base ledger.Asset, stillEligible bool) []ledger.LedgerEntry {
	s.checkActive()
	if coin1.IsNative() || coin2.IsNative() {
		panic("liquidation candidate should not be native asset")
	}

	var out []ledger.LedgerEntry
	for _, pos := range s.pairPositions(coin1, coin2) {
		tl1 := pos.line1.MustTrustLine()
		tl2 := pos.line2.MustTrustLine()
		if tl1.Flags&ledger.LiquidationFlag == 0 || tl2.Flags&ledger.LiquidationFlag == 0 {
			continue
		}
		eq := pos.equity(price1, price2)
		if (stillEligible && eq < 0) || (!stillEligible && eq >= 0) {
			out = append(out, *pos.line1.Clone())
		}
	}
	return out
}
