package tx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmargin/margind/internal/core/ledger"
	"github.com/openmargin/margind/internal/core/ledger/state"
)

func trustLineLiabilities(t *testing.T, store *state.MemStore, accountID ledger.AccountID, asset ledger.Asset) ledger.Liabilities {
	t.Helper()
	le, err := store.GetEntry(ledger.TrustLineKey(accountID, asset))
	require.NoError(t, err)
	require.NotNil(t, le)
	if le.MustTrustLine().Liabilities == nil {
		return ledger.Liabilities{}
	}
	return *le.MustTrustLine().Liabilities
}

func TestManageOfferCheckValid(t *testing.T) {
	tests := []struct {
		name string
		op   ManageOfferOp
	}{
		{
			name: "zero price numerator",
			op: ManageOfferOp{
				Selling: ledger.MustNewCreditAsset("MRG", issuerID),
				Buying:  ledger.MustNewCreditAsset("BAS", baseIssuerID),
				Amount:  10,
				Price:   ledger.Price{N: 0, D: 1},
			},
		},
		{
			name: "negative amount",
			op: ManageOfferOp{
				Selling: ledger.MustNewCreditAsset("MRG", issuerID),
				Buying:  ledger.MustNewCreditAsset("BAS", baseIssuerID),
				Amount:  -1,
				Price:   ledger.Price{N: 1, D: 1},
			},
		},
		{
			name: "same asset both sides",
			op: ManageOfferOp{
				Selling: ledger.MustNewCreditAsset("MRG", issuerID),
				Buying:  ledger.MustNewCreditAsset("MRG", issuerID),
				Amount:  10,
				Price:   ledger.Price{N: 1, D: 1},
			},
		},
		{
			name: "zero amount without offer id",
			op: ManageOfferOp{
				Selling: ledger.MustNewCreditAsset("MRG", issuerID),
				Buying:  ledger.MustNewCreditAsset("BAS", baseIssuerID),
				Amount:  0,
				Price:   ledger.Price{N: 1, D: 1},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			op := tc.op
			assert.False(t, op.CheckValid())
			assert.Equal(t, ManageOfferMalformed, op.Result.Code)
		})
	}
}

func TestManageOfferCreateReservesLiabilities(t *testing.T) {
	store := newTestStore()
	seedAccount(store, aliceID, 1000, 0)
	seedTrustLine(store, aliceID, marginAsset(), 1000, 100, 0)
	seedTrustLine(store, aliceID, baseAsset(), 1000, 0, 0)

	ls := state.New(store)
	op := &ManageOfferOp{
		SourceAccount: aliceID,
		Selling:       marginAsset(),
		Buying:        baseAsset(),
		Amount:        50,
		Price:         ledger.Price{N: 2, D: 1},
	}
	require.True(t, op.CheckValid())
	require.True(t, op.Apply(ls), "expected %s", op.Result.Code)
	require.Equal(t, ManageOfferCreated, op.Result.Effect)
	ls.Commit()

	// Invariant: the offer's resting amount equals the selling liabilities
	// on the (account, selling) trustline.
	selling := trustLineLiabilities(t, store, aliceID, marginAsset())
	assert.Equal(t, int64(50), selling.Selling)

	// Buying side reserves amount * price, rounded up.
	buying := trustLineLiabilities(t, store, aliceID, baseAsset())
	assert.Equal(t, int64(100), buying.Buying)

	offers := accountOffers(t, store, aliceID, marginAsset())
	require.Len(t, offers, 1)
	assert.Equal(t, int64(50), offers[0].Amount)
}

func TestManageOfferCancelRestoresLiabilities(t *testing.T) {
	store := newTestStore()
	seedAccount(store, aliceID, 1000, 0)
	seedTrustLine(store, aliceID, marginAsset(), 1000, 100, 0)
	seedTrustLine(store, aliceID, baseAsset(), 1000, 0, 0)

	ls := state.New(store)
	create := &ManageOfferOp{
		SourceAccount: aliceID,
		Selling:       marginAsset(),
		Buying:        baseAsset(),
		Amount:        50,
		Price:         ledger.Price{N: 2, D: 1},
	}
	require.True(t, create.Apply(ls))
	offerID := create.Result.Offer.OfferID

	cancel := &ManageOfferOp{
		SourceAccount: aliceID,
		Selling:       marginAsset(),
		Buying:        baseAsset(),
		Amount:        0,
		Price:         ledger.Price{N: 2, D: 1},
		OfferID:       offerID,
	}
	require.True(t, cancel.CheckValid())
	require.True(t, cancel.Apply(ls), "expected %s", cancel.Result.Code)
	assert.Equal(t, ManageOfferDeleted, cancel.Result.Effect)
	ls.Commit()

	selling := trustLineLiabilities(t, store, aliceID, marginAsset())
	assert.Equal(t, int64(0), selling.Selling, "acquire then release restores liabilities exactly")
	buying := trustLineLiabilities(t, store, aliceID, baseAsset())
	assert.Equal(t, int64(0), buying.Buying)

	assert.Empty(t, accountOffers(t, store, aliceID, marginAsset()))
}

func TestManageOfferUnderfundedWithoutBalance(t *testing.T) {
	store := newTestStore()
	seedAccount(store, aliceID, 1000, 0)
	seedTrustLine(store, aliceID, marginAsset(), 1000, 30, 0)
	seedTrustLine(store, aliceID, baseAsset(), 1000, 0, 0)

	ls := state.New(store)
	op := &ManageOfferOp{
		SourceAccount: aliceID,
		Selling:       marginAsset(),
		Buying:        baseAsset(),
		Amount:        50,
		Price:         ledger.Price{N: 2, D: 1},
	}
	require.False(t, op.Apply(ls))
	assert.Equal(t, ManageOfferUnderfunded, op.Result.Code)
	assert.Empty(t, accountOffers(t, store, aliceID, marginAsset()),
		"a failed create leaves no offer behind")
}

func TestManageOfferLineFullOnBuyingSide(t *testing.T) {
	store := newTestStore()
	seedAccount(store, aliceID, 1000, 0)
	seedTrustLine(store, aliceID, marginAsset(), 1000, 100, 0)
	// The BAS line has no headroom left.
	seedTrustLine(store, aliceID, baseAsset(), 100, 100, 0)

	ls := state.New(store)
	op := &ManageOfferOp{
		SourceAccount: aliceID,
		Selling:       marginAsset(),
		Buying:        baseAsset(),
		Amount:        50,
		Price:         ledger.Price{N: 2, D: 1},
	}
	require.False(t, op.Apply(ls))
	assert.Equal(t, ManageOfferLineFull, op.Result.Code)
}

func TestManageOfferMissingTrustLines(t *testing.T) {
	store := newTestStore()
	seedAccount(store, aliceID, 1000, 0)
	seedTrustLine(store, aliceID, baseAsset(), 1000, 0, 0)

	ls := state.New(store)
	op := &ManageOfferOp{
		SourceAccount: aliceID,
		Selling:       marginAsset(),
		Buying:        baseAsset(),
		Amount:        50,
		Price:         ledger.Price{N: 2, D: 1},
	}
	require.False(t, op.Apply(ls))
	assert.Equal(t, ManageOfferSellNoTrust, op.Result.Code)
}

func TestManageOfferCancelMissingOffer(t *testing.T) {
	store := newTestStore()
	seedAccount(store, aliceID, 1000, 0)

	ls := state.New(store)
	op := &ManageOfferOp{
		SourceAccount: aliceID,
		Selling:       marginAsset(),
		Buying:        baseAsset(),
		Amount:        0,
		Price:         ledger.Price{N: 1, D: 1},
		OfferID:       42,
	}
	require.False(t, op.Apply(ls))
	assert.Equal(t, ManageOfferNotFound, op.Result.Code)
}

func TestCreateMarginOfferUsesLeveragedReservation(t *testing.T) {
	store := newTestStore()
	seedAccount(store, aliceID, 1000, 0)
	// Selling the base asset: the margin reservation lands on the base leg
	// at amount / maxLeverage.
	seedTrustLine(store, aliceID, baseAsset(), 1000, 100, 0)
	seedTrustLine(store, aliceID, marginAsset(), 1000, 0, 0)

	ls := state.New(store)
	op := &CreateMarginOfferOp{
		SourceAccount: aliceID,
		Selling:       baseAsset(),
		Buying:        marginAsset(),
		Amount:        500,
		Price:         ledger.Price{N: 1, D: 10},
	}
	require.True(t, op.Apply(ls), "expected %s", op.Result.Code)
	ls.Commit()

	base := trustLineLiabilities(t, store, aliceID, baseAsset())
	assert.Equal(t, int64(50), base.Selling, "500 at 10x leverage reserves 50")

	offers := accountOffers(t, store, aliceID, baseAsset())
	require.Len(t, offers, 1)
	assert.NotZero(t, offers[0].Flags&ledger.OfferMarginFlag)
	assert.Zero(t, offers[0].Flags&ledger.OfferLiquidationFlag)
}

func TestManageOfferReplaceRecomputesLiabilities(t *testing.T) {
	store := newTestStore()
	seedAccount(store, aliceID, 1000, 0)
	seedTrustLine(store, aliceID, marginAsset(), 1000, 100, 0)
	seedTrustLine(store, aliceID, baseAsset(), 1000, 0, 0)

	ls := state.New(store)
	create := &ManageOfferOp{
		SourceAccount: aliceID,
		Selling:       marginAsset(),
		Buying:        baseAsset(),
		Amount:        50,
		Price:         ledger.Price{N: 2, D: 1},
	}
	require.True(t, create.Apply(ls))
	offerID := create.Result.Offer.OfferID

	replace := &ManageOfferOp{
		SourceAccount: aliceID,
		Selling:       marginAsset(),
		Buying:        baseAsset(),
		Amount:        20,
		Price:         ledger.Price{N: 3, D: 1},
		OfferID:       offerID,
	}
	require.True(t, replace.Apply(ls), "expected %s", replace.Result.Code)
	assert.Equal(t, ManageOfferUpdated, replace.Result.Effect)
	ls.Commit()

	selling := trustLineLiabilities(t, store, aliceID, marginAsset())
	assert.Equal(t, int64(20), selling.Selling)
	buying := trustLineLiabilities(t, store, aliceID, baseAsset())
	assert.Equal(t, int64(60), buying.Buying)

	offers := accountOffers(t, store, aliceID, marginAsset())
	require.Len(t, offers, 1)
	assert.Equal(t, int64(20), offers[0].Amount)
	assert.Equal(t, ledger.Price{N: 3, D: 1}, offers[0].Price)
}
