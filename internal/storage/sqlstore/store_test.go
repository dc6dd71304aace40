package sqlstore

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmargin/margind/internal/core/ledger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("sqlite", ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.InitSchema(ledger.LedgerHeader{
		LedgerSeq:     1,
		LedgerVersion: 10,
		BaseReserve:   5000000,
	}))
	return store
}

func TestInitSchemaSeedsHeaderOnce(t *testing.T) {
	store := openTestStore(t)

	header, err := store.Header()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), header.LedgerSeq)
	assert.Equal(t, uint32(10), header.LedgerVersion)

	// A second init must not reset the header.
	newHeader := header
	newHeader.LedgerSeq = 7
	require.NoError(t, store.Commit(&newHeader, nil))
	require.NoError(t, store.InitSchema(ledger.LedgerHeader{LedgerSeq: 1}))

	header, err = store.Header()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), header.LedgerSeq)
}

func trustLineChange(accountID string, asset ledger.Asset, limit, balance, debt int64, liab *ledger.Liabilities) *ledger.LedgerEntry {
	return &ledger.LedgerEntry{
		LastModifiedLedgerSeq: 3,
		Data: ledger.EntryData{
			Type: ledger.EntryTypeTrustLine,
			TrustLine: &ledger.TrustLineEntry{
				AccountID:   accountID,
				Asset:       asset,
				Limit:       limit,
				Balance:     balance,
				Debt:        debt,
				Flags:       ledger.AuthorizedFlag,
				Liabilities: liab,
			},
		},
	}
}

func TestTrustLineRoundTrip(t *testing.T) {
	store := openTestStore(t)
	asset := ledger.MustNewCreditAsset("MRG", "GISSUER")

	le := trustLineChange("GALICE", asset, 1000, 400, -25, &ledger.Liabilities{Buying: 7, Selling: 3})
	require.NoError(t, store.Commit(nil, map[ledger.LedgerKey]*ledger.LedgerEntry{
		le.Key(): le,
	}))

	got, err := store.GetEntry(ledger.TrustLineKey("GALICE", asset))
	require.NoError(t, err)
	require.NotNil(t, got)

	tl := got.MustTrustLine()
	assert.Equal(t, int64(1000), tl.Limit)
	assert.Equal(t, int64(400), tl.Balance)
	assert.Equal(t, int64(-25), tl.Debt)
	require.NotNil(t, tl.Liabilities)
	assert.Equal(t, int64(7), tl.Liabilities.Buying)
	assert.Equal(t, int64(3), tl.Liabilities.Selling)
	assert.Equal(t, uint32(3), got.LastModifiedLedgerSeq)
}

func TestTrustLineNullLiabilitiesStayNull(t *testing.T) {
	store := openTestStore(t)
	asset := ledger.MustNewCreditAsset("MRG", "GISSUER")

	le := trustLineChange("GALICE", asset, 1000, 400, 0, nil)
	require.NoError(t, store.Commit(nil, map[ledger.LedgerKey]*ledger.LedgerEntry{
		le.Key(): le,
	}))

	got, err := store.GetEntry(ledger.TrustLineKey("GALICE", asset))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.MustTrustLine().Liabilities,
		"both liability columns stay NULL together")
}

func TestGetEntryMissingReturnsNil(t *testing.T) {
	store := openTestStore(t)

	got, err := store.GetEntry(ledger.AccountKey("GMISSING"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCommitUpdatesAndDeletes(t *testing.T) {
	store := openTestStore(t)
	asset := ledger.MustNewCreditAsset("MRG", "GISSUER")
	key := ledger.TrustLineKey("GALICE", asset)

	le := trustLineChange("GALICE", asset, 1000, 400, 0, nil)
	require.NoError(t, store.Commit(nil, map[ledger.LedgerKey]*ledger.LedgerEntry{key: le}))

	le = trustLineChange("GALICE", asset, 1000, 250, 10, nil)
	require.NoError(t, store.Commit(nil, map[ledger.LedgerKey]*ledger.LedgerEntry{key: le}))

	got, err := store.GetEntry(key)
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.MustTrustLine().Balance)

	require.NoError(t, store.Commit(nil, map[ledger.LedgerKey]*ledger.LedgerEntry{key: nil}))
	got, err = store.GetEntry(key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteMissingEntryFails(t *testing.T) {
	store := openTestStore(t)
	key := ledger.TrustLineKey("GALICE", ledger.MustNewCreditAsset("MRG", "GISSUER"))

	err := store.Commit(nil, map[ledger.LedgerKey]*ledger.LedgerEntry{key: nil})
	assert.Error(t, err, "deleting an absent row is a divergence")
}

func TestForEachIteratesInCanonicalOrder(t *testing.T) {
	store := openTestStore(t)
	asset := ledger.MustNewCreditAsset("MRG", "GISSUER")

	changes := map[ledger.LedgerKey]*ledger.LedgerEntry{}
	for _, accountID := range []string{"GCAROL", "GALICE", "GBOB"} {
		le := trustLineChange(accountID, asset, 1000, 1, 0, nil)
		changes[le.Key()] = le
	}
	acc := &ledger.LedgerEntry{
		Data: ledger.EntryData{
			Type:    ledger.EntryTypeAccount,
			Account: &ledger.AccountEntry{AccountID: "GZED", Balance: 5},
		},
	}
	changes[acc.Key()] = acc
	require.NoError(t, store.Commit(nil, changes))

	var keys []string
	err := store.ForEach(func(le *ledger.LedgerEntry) error {
		keys = append(keys, le.Key().String())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"account/GZED",
		"trustline/GALICE/MRG:GISSUER",
		"trustline/GBOB/MRG:GISSUER",
		"trustline/GCAROL/MRG:GISSUER",
	}, keys, "accounts before trustlines, each sorted by key")
}

func TestDataEntryRoundTripsThroughBase64(t *testing.T) {
	store := openTestStore(t)

	le := &ledger.LedgerEntry{
		Data: ledger.EntryData{
			Type: ledger.EntryTypeData,
			Data: &ledger.DataEntry{
				AccountID: "GFEED",
				DataName:  "ION",
				DataValue: []byte("123.5"),
			},
		},
	}
	require.NoError(t, store.Commit(nil, map[ledger.LedgerKey]*ledger.LedgerEntry{le.Key(): le}))

	got, err := store.GetEntry(ledger.DataKey("GFEED", "ION"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("123.5"), got.MustData().DataValue)
}

func TestOfferRoundTrip(t *testing.T) {
	store := openTestStore(t)
	mrg := ledger.MustNewCreditAsset("MRG", "GISSUER")
	bas := ledger.MustNewCreditAsset("BAS", "GBASEISSUER")

	le := &ledger.LedgerEntry{
		Data: ledger.EntryData{
			Type: ledger.EntryTypeOffer,
			Offer: &ledger.OfferEntry{
				SellerID: "GALICE",
				OfferID:  42,
				Selling:  mrg,
				Buying:   bas,
				Amount:   50,
				Price:    ledger.Price{N: 2, D: 1},
				Flags:    ledger.OfferLiquidationFlag,
			},
		},
	}
	require.NoError(t, store.Commit(nil, map[ledger.LedgerKey]*ledger.LedgerEntry{le.Key(): le}))

	got, err := store.GetEntry(ledger.OfferKey("GALICE", 42))
	require.NoError(t, err)
	require.NotNil(t, got)

	offer := got.MustOffer()
	assert.True(t, offer.Selling.Equals(mrg))
	assert.True(t, offer.Buying.Equals(bas))
	assert.Equal(t, ledger.Price{N: 2, D: 1}, offer.Price)
	assert.Equal(t, ledger.OfferLiquidationFlag, offer.Flags)
}
