package tx

import (
	"github.com/openmargin/margind/internal/core/ledger"
	"github.com/openmargin/margind/internal/core/ledger/state"
)

// Test fixtures shared across the operation tests. Accounts use short
// strkey-style names; the pair under test is MRG/BAS with BAS as the base
// asset, priced by the ION feed.
const (
	issuerID     = "GISSUER"
	baseIssuerID = "GBASEISSUER"
	feedIssuerID = "GFEED"
	makerID      = "GMAKER"
	aliceID      = "GALICE"
	bobID        = "GBOB"

	feedName = "ION"
)

func marginAsset() ledger.Asset {
	return ledger.MustNewCreditAsset("MRG", issuerID)
}

func baseAsset() ledger.Asset {
	return ledger.MustNewCreditAsset("BAS", baseIssuerID)
}

func testPair() TradingPair {
	return TradingPair{
		Name:          "MRGBAS",
		Coin1:         CoinConfig{Code: "MRG", Issuer: issuerID},
		Coin2:         CoinConfig{Code: "BAS", Issuer: baseIssuerID},
		BaseAsset:     CoinConfig{Code: "BAS", Issuer: baseIssuerID},
		ReferenceFeed: FeedConfig{DataName: feedName, Issuer: feedIssuerID},
	}
}

// newTestStore builds a store whose header is past both the funding and
// the liquidation interval, with issuer accounts in place.
func newTestStore() *state.MemStore {
	store := state.NewMemStore(ledger.LedgerHeader{
		LedgerSeq:     2,
		LedgerVersion: 10,
		CloseTime:     FundingInterval + 1,
	})
	seedAccount(store, issuerID, 0, 0)
	seedAccount(store, baseIssuerID, 0, ledger.BaseAssetIssuerFlag)
	seedAccount(store, feedIssuerID, 0, 0)
	return store
}

func seedAccount(store *state.MemStore, accountID ledger.AccountID, balance int64, flags uint32) {
	store.SeedEntry(&ledger.LedgerEntry{
		Data: ledger.EntryData{
			Type: ledger.EntryTypeAccount,
			Account: &ledger.AccountEntry{
				AccountID: accountID,
				Balance:   balance,
				Flags:     flags,
			},
		},
	})
}

func seedTrustLine(store *state.MemStore, accountID ledger.AccountID, asset ledger.Asset, limit, balance, debt int64) {
	store.SeedEntry(&ledger.LedgerEntry{
		Data: ledger.EntryData{
			Type: ledger.EntryTypeTrustLine,
			TrustLine: &ledger.TrustLineEntry{
				AccountID: accountID,
				Asset:     asset,
				Limit:     limit,
				Balance:   balance,
				Debt:      debt,
				Flags:     ledger.AuthorizedFlag,
			},
		},
	})
}

func seedOffer(store *state.MemStore, seller ledger.AccountID, offerID uint64, selling, buying ledger.Asset, amount int64, n, d int32) {
	store.SeedEntry(&ledger.LedgerEntry{
		Data: ledger.EntryData{
			Type: ledger.EntryTypeOffer,
			Offer: &ledger.OfferEntry{
				SellerID: seller,
				OfferID:  offerID,
				Selling:  selling,
				Buying:   buying,
				Amount:   amount,
				Price:    ledger.Price{N: n, D: d},
			},
		},
	})
}

func seedFeed(store *state.MemStore, value string) {
	store.SeedEntry(&ledger.LedgerEntry{
		Data: ledger.EntryData{
			Type: ledger.EntryTypeData,
			Data: &ledger.DataEntry{
				AccountID: feedIssuerID,
				DataName:  feedName,
				DataValue: []byte(value),
			},
		},
	})
}

// seedBook places symmetric orders so the mid-orderbook price of MRG/BAS
// comes out at exactly n/d. Depth on each side covers the full probe depth.
func seedBook(store *state.MemStore, n, d int32) {
	// Selling MRG for BAS at n/d.
	seedOffer(store, makerID, 9001, marginAsset(), baseAsset(), DepthThreshold, n, d)
	// Selling BAS for MRG at the inverse price; sized so the converted
	// amount covers the probe depth.
	seedOffer(store, makerID, 9002, baseAsset(), marginAsset(), DepthThreshold/int64(d)*int64(n), d, n)
}

func trustLineBalance(store *state.MemStore, accountID ledger.AccountID, asset ledger.Asset) int64 {
	le, err := store.GetEntry(ledger.TrustLineKey(accountID, asset))
	if err != nil || le == nil {
		panic("missing trustline")
	}
	return le.MustTrustLine().Balance
}
