package tx

import (
	"fmt"

	"github.com/openmargin/margind/internal/core/ledger"
	"github.com/openmargin/margind/internal/core/ledger/state"
)

// ManageOfferOp places, replaces, or cancels a resting offer, maintaining
// the liability reservations that back it. Crossing against the book is the
// matching engine's concern; this frame manages the resting side that the
// margin and liquidation paths drive.
type ManageOfferOp struct {
	SourceAccount ledger.AccountID
	Selling       ledger.Asset
	Buying        ledger.Asset
	Amount        int64
	Price         ledger.Price

	// OfferID selects an existing offer to replace; zero creates a new one.
	// A zero Amount with a nonzero OfferID cancels.
	OfferID uint64

	// MarginTrade selects leveraged liability accounting.
	MarginTrade bool

	// Liquidation marks a forced offer issued by the liquidation engine.
	Liquidation bool

	Passive bool

	Result ManageOfferResult
}

// CheckValid performs stateless validation, recording a result code on
// failure.
func (op *ManageOfferOp) CheckValid() bool {
	if op.Price.N <= 0 || op.Price.D <= 0 {
		op.Result.Code = ManageOfferMalformed
		return false
	}
	if op.Amount < 0 {
		op.Result.Code = ManageOfferMalformed
		return false
	}
	if op.Selling.Equals(op.Buying) {
		op.Result.Code = ManageOfferMalformed
		return false
	}
	if op.Amount == 0 && op.OfferID == 0 {
		op.Result.Code = ManageOfferMalformed
		return false
	}
	return true
}

// Apply executes the operation in a child transaction of lsOuter, committing
// only on success.
func (op *ManageOfferOp) Apply(lsOuter *state.LedgerState) bool {
	ls := state.NewChild(lsOuter)
	header := ls.LoadHeader()

	account := ls.Load(ledger.AccountKey(op.SourceAccount))
	if account == nil {
		panic(fmt.Sprintf("manage offer source account does not exist: %s", op.SourceAccount))
	}

	if op.OfferID != 0 {
		ok := op.applyExisting(ls, header, account)
		if ok {
			ls.Commit()
		} else {
			ls.Rollback()
		}
		return ok
	}

	ok := op.applyCreate(ls, header, account)
	if ok {
		ls.Commit()
	} else {
		ls.Rollback()
	}
	return ok
}

// applyExisting cancels or replaces the offer identified by OfferID.
func (op *ManageOfferOp) applyExisting(ls *state.LedgerState, header *state.Header, account *state.Entry) bool {
	entry := ls.Load(ledger.OfferKey(op.SourceAccount, op.OfferID))
	if entry == nil {
		op.Result.Code = ManageOfferNotFound
		return false
	}
	offer := entry.Current().MustOffer()
	if !offer.Selling.Equals(op.Selling) || !offer.Buying.Equals(op.Buying) {
		op.Result.Code = ManageOfferMalformed
		return false
	}

	releaseLiabilities(ls, header, entry, op.MarginTrade, -1)

	if op.Amount == 0 {
		entry.Erase()
		if !AddNumEntries(header, account, -1) {
			panic("could not release offer sub-entry")
		}
		op.Result.Code = ManageOfferSuccess
		op.Result.Effect = ManageOfferDeleted
		return true
	}

	offer.Amount = op.Amount
	offer.Price = op.Price
	if code, ok := acquireLiabilities(ls, header, entry, op.MarginTrade, -1); !ok {
		op.Result.Code = code
		return false
	}

	op.Result.Code = ManageOfferSuccess
	op.Result.Effect = ManageOfferUpdated
	op.Result.Offer = *offer
	return true
}

// applyCreate builds a new resting offer and reserves its liabilities.
func (op *ManageOfferOp) applyCreate(ls *state.LedgerState, header *state.Header, account *state.Entry) bool {
	if code, ok := op.checkTrustLines(ls); !ok {
		op.Result.Code = code
		return false
	}

	if !AddNumEntries(header, account, 1) {
		op.Result.Code = ManageOfferLowReserve
		return false
	}

	flags := uint32(0)
	if op.Passive {
		flags |= ledger.OfferPassiveFlag
	}
	if op.MarginTrade {
		flags |= ledger.OfferMarginFlag
	}
	if op.Liquidation {
		flags |= ledger.OfferLiquidationFlag
	}

	offer := ledger.OfferEntry{
		SellerID: op.SourceAccount,
		OfferID:  GenerateID(header),
		Selling:  op.Selling,
		Buying:   op.Buying,
		Amount:   op.Amount,
		Price:    op.Price,
		Flags:    flags,
	}
	le := &ledger.LedgerEntry{
		LastModifiedLedgerSeq: header.Current().LedgerSeq,
		Data: ledger.EntryData{
			Type:  ledger.EntryTypeOffer,
			Offer: &offer,
		},
	}
	entry := ls.Create(le)

	if code, ok := acquireLiabilities(ls, header, entry, op.MarginTrade, -1); !ok {
		op.Result.Code = code
		return false
	}

	op.Result.Code = ManageOfferSuccess
	op.Result.Effect = ManageOfferCreated
	op.Result.Offer = offer
	return true
}

// checkTrustLines verifies that both non-native legs have authorized
// trustlines (or that the source is the leg's issuer).
func (op *ManageOfferOp) checkTrustLines(ls *state.LedgerState) (ManageOfferResultCode, bool) {
	if !op.Selling.IsNative() {
		sellingTrust := LoadTrustLine(ls, op.SourceAccount, op.Selling)
		if sellingTrust == nil {
			return ManageOfferSellNoTrust, false
		}
		if !sellingTrust.IsAuthorized() {
			return ManageOfferSellNotAuthorized, false
		}
	}
	if !op.Buying.IsNative() {
		buyingTrust := LoadTrustLine(ls, op.SourceAccount, op.Buying)
		if buyingTrust == nil {
			return ManageOfferBuyNoTrust, false
		}
		if !buyingTrust.IsAuthorized() {
			return ManageOfferBuyNotAuthorized, false
		}
	}
	return ManageOfferSuccess, true
}

// acquireOrReleaseLiabilities adjusts the seller's liability reservations
// for the offer. Acquisition can fail against capacity and reports which
// side ran out; release failures mean the reservations were never consistent
// and are fatal.
func acquireOrReleaseLiabilities(ls *state.LedgerState, header *state.Header, offerEntry *state.Entry, isAcquire, isMarginTrade bool, calculatedMaxLiability int64) (ManageOfferResultCode, bool) {
	offer := offerEntry.Current().MustOffer()
	if offer.Buying.Equals(offer.Selling) {
		panic("buying and selling same asset")
	}
	sellerID := offer.SellerID

	loadAccountAndValidate := func() *state.Entry {
		account := ls.Load(ledger.AccountKey(sellerID))
		if account == nil {
			panic("account does not exist")
		}
		return account
	}

	loadTrustAndValidate := func(asset ledger.Asset) TrustLine {
		trust := LoadTrustLine(ls, sellerID, asset)
		if trust == nil {
			panic("trustline does not exist")
		}
		return trust
	}

	buyingLiabilities := GetOfferBuyingLiabilities(header, offerEntry.Current())
	sellingLiabilities := GetOfferSellingLiabilities(header, offerEntry.Current())
	if !isAcquire {
		buyingLiabilities = -buyingLiabilities
		sellingLiabilities = -sellingLiabilities
	}

	failed := func(code ManageOfferResultCode) (ManageOfferResultCode, bool) {
		if !isAcquire {
			panic("could not release liabilities")
		}
		return code, false
	}

	if offer.Buying.IsNative() {
		account := loadAccountAndValidate()
		if !AddBuyingLiabilities(header, account, buyingLiabilities, false, 0) {
			return failed(ManageOfferLineFull)
		}
	} else {
		buyingTrust := loadTrustAndValidate(offer.Buying)
		if !buyingTrust.AddBuyingLiabilities(header, buyingLiabilities, false, 0) {
			return failed(ManageOfferLineFull)
		}
	}

	if offer.Selling.IsNative() {
		account := loadAccountAndValidate()
		if !AddSellingLiabilities(header, account, sellingLiabilities, false, 0) {
			return failed(ManageOfferUnderfunded)
		}
	} else if isMarginTrade {
		sellingTrust := loadTrustAndValidate(offer.Selling)
		// Margin reservations live on the base-asset leg only.
		if sellingTrust.IsBaseAsset(ls) {
			if !sellingTrust.AddSellingLiabilities(header, sellingLiabilities, true, calculatedMaxLiability) {
				return failed(ManageOfferUnderfunded)
			}
		} else {
			buyingTrust := loadTrustAndValidate(offer.Buying)
			converted, ok := bigDivide(sellingLiabilities, int64(offer.Price.N), int64(offer.Price.D), RoundDown)
			if !ok {
				return failed(ManageOfferUnderfunded)
			}
			if !buyingTrust.AddSellingLiabilities(header, converted, true, calculatedMaxLiability) {
				return failed(ManageOfferUnderfunded)
			}
		}
	} else {
		sellingTrust := loadTrustAndValidate(offer.Selling)
		if !sellingTrust.AddSellingLiabilities(header, sellingLiabilities, false, 0) {
			return failed(ManageOfferUnderfunded)
		}
	}

	return ManageOfferSuccess, true
}

// acquireLiabilities reserves the liabilities backing an offer.
func acquireLiabilities(ls *state.LedgerState, header *state.Header, offer *state.Entry, isMarginTrade bool, calculatedMaxLiability int64) (ManageOfferResultCode, bool) {
	return acquireOrReleaseLiabilities(ls, header, offer, true, isMarginTrade, calculatedMaxLiability)
}

// releaseLiabilities drops the liabilities backing an offer.
func releaseLiabilities(ls *state.LedgerState, header *state.Header, offer *state.Entry, isMarginTrade bool, calculatedMaxLiability int64) {
	acquireOrReleaseLiabilities(ls, header, offer, false, isMarginTrade, calculatedMaxLiability)
}
