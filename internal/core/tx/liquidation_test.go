package tx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmargin/margind/internal/core/ledger"
	"github.com/openmargin/margind/internal/core/ledger/state"
)

func applyLiquidation(t *testing.T, store *state.MemStore) (*LiquidationOp, bool) {
	t.Helper()
	ls := state.New(store)
	op := &LiquidationOp{Pairs: []TradingPair{testPair()}}
	ok := op.Apply(ls)
	if ok {
		ls.Commit()
	} else {
		ls.Rollback()
	}
	return op, ok
}

func trustLineFlags(t *testing.T, store *state.MemStore, accountID ledger.AccountID, asset ledger.Asset) uint32 {
	t.Helper()
	le, err := store.GetEntry(ledger.TrustLineKey(accountID, asset))
	require.NoError(t, err)
	require.NotNil(t, le)
	return le.MustTrustLine().Flags
}

func accountOffers(t *testing.T, store *state.MemStore, accountID ledger.AccountID, selling ledger.Asset) []ledger.OfferEntry {
	t.Helper()
	ls := state.New(store)
	defer ls.Rollback()
	var out []ledger.OfferEntry
	for _, le := range ls.OffersByAccountAndAsset(accountID, selling) {
		out = append(out, *le.MustOffer())
	}
	return out
}

func TestLiquidationTooEarly(t *testing.T) {
	store := newTestStore()
	store.SetHeader(ledger.LedgerHeader{
		LedgerSeq:       2,
		LedgerVersion:   10,
		CloseTime:       1000,
		LastLiquidation: 900,
	})
	seedFeed(store, "1")

	op, ok := applyLiquidation(t, store)
	require.False(t, ok)
	assert.Equal(t, LiquidationNotTime, op.Result.Code)
}

func TestLiquidationNoReferencePrice(t *testing.T) {
	store := newTestStore()

	op, ok := applyLiquidation(t, store)
	require.False(t, ok)
	assert.Equal(t, LiquidationNoReferencePrice, op.Result.Code)
}

func TestLiquidationMarkAndUnmarkCycle(t *testing.T) {
	store := newTestStore()
	seedFeed(store, "1")

	// Equity = (10-0)*1 + (0-15)*1 = -5 < 0.
	seedAccount(store, aliceID, 1000, 0)
	seedTrustLine(store, aliceID, marginAsset(), 100, 10, 0)
	seedTrustLine(store, aliceID, baseAsset(), 100, 0, 15)

	op, ok := applyLiquidation(t, store)
	require.True(t, ok, "expected %s", op.Result.Code)
	assert.Equal(t, []string{aliceID}, op.Result.Marked)

	assert.NotZero(t, trustLineFlags(t, store, aliceID, marginAsset())&ledger.LiquidationFlag)
	assert.NotZero(t, trustLineFlags(t, store, aliceID, baseAsset())&ledger.LiquidationFlag)

	header, err := store.Header()
	require.NoError(t, err)
	assert.Equal(t, header.CloseTime, header.LastLiquidation)

	// An external credit restores the equity: (10)*1 + (20-15)*1 = 15 > 0.
	le, err := store.GetEntry(ledger.TrustLineKey(aliceID, baseAsset()))
	require.NoError(t, err)
	le.MustTrustLine().Balance = 20
	store.SeedEntry(le)

	// Advance time past the next liquidation interval.
	h, err := store.Header()
	require.NoError(t, err)
	h.CloseTime += LiquidationInterval
	store.SetHeader(h)

	op, ok = applyLiquidation(t, store)
	require.True(t, ok)
	assert.Equal(t, []string{aliceID}, op.Result.Cleared)

	assert.Zero(t, trustLineFlags(t, store, aliceID, marginAsset())&ledger.LiquidationFlag)
	assert.Zero(t, trustLineFlags(t, store, aliceID, baseAsset())&ledger.LiquidationFlag)
}

func TestLiquidationMarkIsIdempotent(t *testing.T) {
	store := newTestStore()
	seedFeed(store, "1")

	seedAccount(store, aliceID, 1000, 0)
	seedTrustLine(store, aliceID, marginAsset(), 100, 10, 0)
	seedTrustLine(store, aliceID, baseAsset(), 100, 0, 15)

	_, ok := applyLiquidation(t, store)
	require.True(t, ok)

	flags1 := trustLineFlags(t, store, aliceID, marginAsset())
	flags2 := trustLineFlags(t, store, aliceID, baseAsset())

	h, err := store.Header()
	require.NoError(t, err)
	h.CloseTime += LiquidationInterval
	store.SetHeader(h)

	op, ok := applyLiquidation(t, store)
	require.True(t, ok)
	assert.Empty(t, op.Result.Marked, "already marked accounts are not re-marked")

	assert.Equal(t, flags1, trustLineFlags(t, store, aliceID, marginAsset()))
	assert.Equal(t, flags2, trustLineFlags(t, store, aliceID, baseAsset()))
}

// seedShortPosition sets up a marked-eligible account short 5 MRG with a 3
// BAS long counterweight on the base leg of the book, per the forced-offer
// reconciliation scenario.
func seedShortPosition(store *state.MemStore) {
	seedAccount(store, aliceID, 1000, 0)
	// coin1 = MRG: debt 5, balance 0. coin2 = BAS: debt -3, balance 100.
	// Equity at ref 10: (0-5)*10 + (100+3)*1 = 53 ... must be negative to
	// mark, so shrink the base balance: (0-5)*10 + (40+3)*1 = -7 < 0.
	seedTrustLine(store, aliceID, marginAsset(), 1000, 0, 5)
	seedTrustLine(store, aliceID, baseAsset(), 1000, 40, -3)
}

func TestLiquidationForcedOfferPlacedOnce(t *testing.T) {
	store := newTestStore()
	seedFeed(store, "10")
	seedShortPosition(store)

	_, ok := applyLiquidation(t, store)
	require.True(t, ok)

	// debt1 > 0: sell coin2 (BAS) to buy back coin1 (MRG), amount -debt2.
	offers := accountOffers(t, store, aliceID, baseAsset())
	require.Len(t, offers, 1)
	offer := offers[0]
	assert.True(t, offer.Buying.Equals(marginAsset()))
	assert.Equal(t, int64(3), offer.Amount)
	assert.NotZero(t, offer.Flags&ledger.OfferLiquidationFlag)
	assert.NotZero(t, offer.Flags&ledger.OfferMarginFlag)

	// coin1 is not the base: d = |balance1-debt1| * PRICE_MULTIPLE /
	// |debt2-balance2| = 5 * 10000 / 43 = 1162, n = PRICE_MULTIPLE.
	assert.Equal(t, int32(10000), offer.Price.N)
	assert.Equal(t, int32(1162), offer.Price.D)
}

func TestLiquidationForcedOfferIdempotentAcrossTicks(t *testing.T) {
	store := newTestStore()
	seedFeed(store, "10")
	seedShortPosition(store)

	_, ok := applyLiquidation(t, store)
	require.True(t, ok)

	h, err := store.Header()
	require.NoError(t, err)
	h.CloseTime += LiquidationInterval
	store.SetHeader(h)

	_, ok = applyLiquidation(t, store)
	require.True(t, ok)

	offers := accountOffers(t, store, aliceID, baseAsset())
	assert.Len(t, offers, 1, "running the tick twice keeps exactly one offer")
}

func TestLiquidationReplacesStaleOffer(t *testing.T) {
	store := newTestStore()
	seedFeed(store, "10")
	seedShortPosition(store)

	// A stale offer in the selling asset that does not match the wanted
	// forced offer, with the liabilities that back it.
	seedOffer(store, aliceID, 77, baseAsset(), marginAsset(), 9, 1, 2)
	le, err := store.GetEntry(ledger.AccountKey(aliceID))
	require.NoError(t, err)
	le.MustAccount().NumSubEntries = 1
	store.SeedEntry(le)
	le, err = store.GetEntry(ledger.TrustLineKey(aliceID, marginAsset()))
	require.NoError(t, err)
	le.MustTrustLine().Liabilities = &ledger.Liabilities{Buying: 5, Selling: 0}
	store.SeedEntry(le)

	_, ok := applyLiquidation(t, store)
	require.True(t, ok)

	offers := accountOffers(t, store, aliceID, baseAsset())
	require.Len(t, offers, 1, "the stale offer is cancelled, the forced offer placed")
	assert.Equal(t, int64(3), offers[0].Amount)
	assert.NotEqual(t, uint64(77), offers[0].OfferID)
}

func TestLiquidationNoOfferForFlatCoveringLeg(t *testing.T) {
	store := newTestStore()
	seedFeed(store, "1")

	// debt2 > 0 path with a flat coin1 leg: amount = -debt1 = 0, no offer.
	seedAccount(store, aliceID, 1000, 0)
	seedTrustLine(store, aliceID, marginAsset(), 100, 10, 0)
	seedTrustLine(store, aliceID, baseAsset(), 100, 0, 15)

	_, ok := applyLiquidation(t, store)
	require.True(t, ok)

	assert.Empty(t, accountOffers(t, store, aliceID, marginAsset()))
	assert.Empty(t, accountOffers(t, store, aliceID, baseAsset()))
}

func TestForcedPriceFallsBackOnDegenerateInputs(t *testing.T) {
	tl1 := &ledger.TrustLineEntry{Balance: 0, Debt: 5}
	tl2 := &ledger.TrustLineEntry{Balance: 0, Debt: 0} // pos2 = 0

	price := forcedPrice(tl1, tl2, false, 10)
	assert.Equal(t, int32(PriceMultiple), price.N)
	assert.Equal(t, int32(10*PriceMultiple), price.D)
}

func TestForcedPriceOrientation(t *testing.T) {
	// coin1 is the base: n = |debt2-balance2| * PM / |balance1-debt1|.
	tl1 := &ledger.TrustLineEntry{Balance: 50, Debt: 0}
	tl2 := &ledger.TrustLineEntry{Balance: 0, Debt: 25}

	price := forcedPrice(tl1, tl2, true, 2)
	assert.Equal(t, int32(25*PriceMultiple/50), price.N)
	assert.Equal(t, int32(PriceMultiple), price.D)
}
