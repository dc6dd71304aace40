package tx

import (
	"fmt"

	"github.com/openmargin/margind/internal/core/ledger"
	"github.com/openmargin/margind/internal/core/ledger/state"
)

// CreateMarginOfferOp is the user-facing margin trade operation. It is a
// thin holder that rewrites itself into a ManageOfferOp with margin
// accounting enabled; a margin offer always creates (offerID zero).
type CreateMarginOfferOp struct {
	SourceAccount ledger.AccountID
	Selling       ledger.Asset
	Buying        ledger.Asset
	Amount        int64
	Price         ledger.Price

	Result ManageOfferResult
}

// manageOp lowers the holder into the manage-offer frame.
func (op *CreateMarginOfferOp) manageOp() *ManageOfferOp {
	return &ManageOfferOp{
		SourceAccount: op.SourceAccount,
		Selling:       op.Selling,
		Buying:        op.Buying,
		Amount:        op.Amount,
		Price:         op.Price,
		OfferID:       0,
		MarginTrade:   true,
	}
}

// CheckValid validates the lowered operation.
func (op *CreateMarginOfferOp) CheckValid() bool {
	inner := op.manageOp()
	ok := inner.CheckValid()
	op.Result = inner.Result
	return ok
}

// Apply executes the lowered operation.
func (op *CreateMarginOfferOp) Apply(ls *state.LedgerState) bool {
	inner := op.manageOp()
	if !inner.CheckValid() {
		op.Result = inner.Result
		return false
	}
	ok := inner.Apply(ls)
	op.Result = inner.Result
	return ok
}

// CreateLiquidationOfferOp is the internal forced-offer operation emitted by
// the liquidation engine. It lowers into a ManageOfferOp with both margin
// accounting and the liquidation marker set. A zero amount with a nonzero
// offerID cancels the identified offer.
type CreateLiquidationOfferOp struct {
	SourceAccount ledger.AccountID
	OfferID       uint64
	Selling       ledger.Asset
	Buying        ledger.Asset
	Amount        int64
	Price         ledger.Price

	Result ManageOfferResult
}

func (op *CreateLiquidationOfferOp) manageOp() *ManageOfferOp {
	return &ManageOfferOp{
		SourceAccount: op.SourceAccount,
		Selling:       op.Selling,
		Buying:        op.Buying,
		Amount:        op.Amount,
		Price:         op.Price,
		OfferID:       op.OfferID,
		MarginTrade:   true,
		Liquidation:   true,
	}
}

// CheckValid validates the lowered operation.
func (op *CreateLiquidationOfferOp) CheckValid() bool {
	inner := op.manageOp()
	ok := inner.CheckValid()
	op.Result = inner.Result
	return ok
}

// Apply executes the lowered operation.
func (op *CreateLiquidationOfferOp) Apply(ls *state.LedgerState) bool {
	inner := op.manageOp()
	if !inner.CheckValid() {
		op.Result = inner.Result
		return false
	}
	ok := inner.Apply(ls)
	op.Result = inner.Result
	return ok
}

// applyCreateLiquidationOffer is the forced-offer adapter: it synthesises a
// liquidation offer operation for the account and drives it through the
// offer engine directly, with no transaction envelope involved. Stateless
// validation failure means the engine built an impossible offer and is
// fatal; inner result codes are reported back for the caller to reconcile.
func applyCreateLiquidationOffer(ls *state.LedgerState, account ledger.AccountID, selling, buying ledger.Asset, price ledger.Price, amount int64, offerID uint64) ManageOfferResult {
	op := &CreateLiquidationOfferOp{
		SourceAccount: account,
		OfferID:       offerID,
		Selling:       selling,
		Buying:        buying,
		Amount:        amount,
		Price:         price,
	}
	if !op.CheckValid() {
		panic(fmt.Sprintf("unexpected error code from liquidation process: %s", op.Result.Code))
	}
	op.Apply(ls)
	return op.Result
}
