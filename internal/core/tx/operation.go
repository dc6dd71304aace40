package tx

import (
	"fmt"

	"github.com/openmargin/margind/internal/core/ledger"
	"github.com/openmargin/margind/internal/core/ledger/state"
)

// OperationType discriminates the Operation body variant.
type OperationType int32

const (
	OperationTypeCreateMarginOffer OperationType = iota
	OperationTypeCreateLiquidationOffer
	OperationTypeInflation
	OperationTypeLiquidation
)

// String returns the operation type name.
func (t OperationType) String() string {
	switch t {
	case OperationTypeCreateMarginOffer:
		return "CREATE_MARGIN_OFFER"
	case OperationTypeCreateLiquidationOffer:
		return "CREATE_LIQUIDATION_OFFER"
	case OperationTypeInflation:
		return "INFLATION"
	case OperationTypeLiquidation:
		return "LIQUIDATION"
	default:
		return fmt.Sprintf("OperationType(%d)", int32(t))
	}
}

// CreateMarginOfferBody is the wire body of a user margin trade.
type CreateMarginOfferBody struct {
	Amount  int64
	Selling ledger.Asset
	Buying  ledger.Asset
	Price   ledger.Price
}

// CreateLiquidationOfferBody is the wire body of an internal forced offer.
type CreateLiquidationOfferBody struct {
	OfferID uint64
	Amount  int64
	Selling ledger.Asset
	Buying  ledger.Asset
	Price   ledger.Price
}

// OperationBody is the tagged union of operation payloads. Inflation and
// liquidation carry no fields.
type OperationBody struct {
	Type                   OperationType
	CreateMarginOffer      *CreateMarginOfferBody
	CreateLiquidationOffer *CreateLiquidationOfferBody
}

// Operation is one ledger operation with its source account.
type Operation struct {
	SourceAccount ledger.AccountID
	Body          OperationBody
}

// OperationResult is the union of per-type results.
type OperationResult struct {
	Type        OperationType
	ManageOffer *ManageOfferResult
	Inflation   *FundingResult
	Liquidation *LiquidationResult
}

// ApplyOperation dispatches an operation to its frame and applies it in a
// child transaction of ls, committing only on success. The trading pairs
// parameterise the inflation and liquidation operations.
func ApplyOperation(ls *state.LedgerState, op Operation, pairs []TradingPair) (OperationResult, bool) {
	inner := state.NewChild(ls)

	var res OperationResult
	var ok bool
	res.Type = op.Body.Type

	switch op.Body.Type {
	case OperationTypeCreateMarginOffer:
		body := op.Body.CreateMarginOffer
		if body == nil {
			panic("CREATE_MARGIN_OFFER operation without body")
		}
		frame := &CreateMarginOfferOp{
			SourceAccount: op.SourceAccount,
			Selling:       body.Selling,
			Buying:        body.Buying,
			Amount:        body.Amount,
			Price:         body.Price,
		}
		ok = frame.Apply(inner)
		res.ManageOffer = &frame.Result

	case OperationTypeCreateLiquidationOffer:
		body := op.Body.CreateLiquidationOffer
		if body == nil {
			panic("CREATE_LIQUIDATION_OFFER operation without body")
		}
		frame := &CreateLiquidationOfferOp{
			SourceAccount: op.SourceAccount,
			OfferID:       body.OfferID,
			Selling:       body.Selling,
			Buying:        body.Buying,
			Amount:        body.Amount,
			Price:         body.Price,
		}
		ok = frame.Apply(inner)
		res.ManageOffer = &frame.Result

	case OperationTypeInflation:
		frame := &FundingOp{Pairs: pairs}
		ok = frame.Apply(inner)
		res.Inflation = &frame.Result

	case OperationTypeLiquidation:
		frame := &LiquidationOp{Pairs: pairs}
		ok = frame.Apply(inner)
		res.Liquidation = &frame.Result

	default:
		panic(fmt.Sprintf("unknown operation type %d", int32(op.Body.Type)))
	}

	if ok {
		inner.Commit()
	} else {
		inner.Rollback()
	}
	return res, ok
}
