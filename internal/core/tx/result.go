package tx

import (
	"fmt"

	"github.com/openmargin/margind/internal/core/ledger"
)

// FundingResultCode is the outcome of a funding (inflation) operation.
type FundingResultCode int32

const (
	FundingSuccess          FundingResultCode = 0
	FundingNotTime          FundingResultCode = -1
	FundingNoReferencePrice FundingResultCode = -2
	FundingInvalidMidPrice  FundingResultCode = -3
	FundingDebtNotZero      FundingResultCode = -4
)

// String returns the code name.
func (c FundingResultCode) String() string {
	switch c {
	case FundingSuccess:
		return "FUNDING_SUCCESS"
	case FundingNotTime:
		return "FUNDING_NOT_TIME"
	case FundingNoReferencePrice:
		return "FUNDING_NO_REFERENCE_PRICE"
	case FundingInvalidMidPrice:
		return "FUNDING_INVALID_MID_PRICE"
	case FundingDebtNotZero:
		return "FUNDING_DEBT_NOT_ZERO"
	default:
		return fmt.Sprintf("FundingResultCode(%d)", int32(c))
	}
}

// FundingPayout records one collateral transfer applied by funding.
type FundingPayout struct {
	AccountID ledger.AccountID
	Asset     ledger.Asset
	Amount    int64
}

// FundingResult is the operation result container for funding.
type FundingResult struct {
	Code    FundingResultCode
	Payouts []FundingPayout
}

// LiquidationResultCode is the outcome of a liquidation operation.
type LiquidationResultCode int32

const (
	LiquidationSuccess          LiquidationResultCode = 0
	LiquidationNotTime          LiquidationResultCode = -1
	LiquidationNoReferencePrice LiquidationResultCode = -2
)

// String returns the code name.
func (c LiquidationResultCode) String() string {
	switch c {
	case LiquidationSuccess:
		return "LIQUIDATION_SUCCESS"
	case LiquidationNotTime:
		return "LIQUIDATION_NOT_TIME"
	case LiquidationNoReferencePrice:
		return "LIQUIDATION_NO_REFERENCE_PRICE"
	default:
		return fmt.Sprintf("LiquidationResultCode(%d)", int32(c))
	}
}

// LiquidationResult is the operation result container for liquidation.
type LiquidationResult struct {
	Code LiquidationResultCode

	// Marked and Cleared list the accounts whose liquidation flags were
	// set and cleared during this sweep.
	Marked  []ledger.AccountID
	Cleared []ledger.AccountID
}

// ManageOfferResultCode is the outcome of a manage-offer operation.
type ManageOfferResultCode int32

const (
	ManageOfferSuccess           ManageOfferResultCode = 0
	ManageOfferMalformed         ManageOfferResultCode = -1
	ManageOfferSellNoTrust       ManageOfferResultCode = -2
	ManageOfferBuyNoTrust        ManageOfferResultCode = -3
	ManageOfferSellNotAuthorized ManageOfferResultCode = -4
	ManageOfferBuyNotAuthorized  ManageOfferResultCode = -5
	ManageOfferLineFull          ManageOfferResultCode = -6
	ManageOfferUnderfunded       ManageOfferResultCode = -7
	ManageOfferCrossSelf         ManageOfferResultCode = -8
	ManageOfferNotFound          ManageOfferResultCode = -11
	ManageOfferLowReserve        ManageOfferResultCode = -12
)

// String returns the code name.
func (c ManageOfferResultCode) String() string {
	switch c {
	case ManageOfferSuccess:
		return "MANAGE_OFFER_SUCCESS"
	case ManageOfferMalformed:
		return "MANAGE_OFFER_MALFORMED"
	case ManageOfferSellNoTrust:
		return "MANAGE_OFFER_SELL_NO_TRUST"
	case ManageOfferBuyNoTrust:
		return "MANAGE_OFFER_BUY_NO_TRUST"
	case ManageOfferSellNotAuthorized:
		return "MANAGE_OFFER_SELL_NOT_AUTHORIZED"
	case ManageOfferBuyNotAuthorized:
		return "MANAGE_OFFER_BUY_NOT_AUTHORIZED"
	case ManageOfferLineFull:
		return "MANAGE_OFFER_LINE_FULL"
	case ManageOfferUnderfunded:
		return "MANAGE_OFFER_UNDERFUNDED"
	case ManageOfferCrossSelf:
		return "MANAGE_OFFER_CROSS_SELF"
	case ManageOfferNotFound:
		return "MANAGE_OFFER_NOT_FOUND"
	case ManageOfferLowReserve:
		return "MANAGE_OFFER_LOW_RESERVE"
	default:
		return fmt.Sprintf("ManageOfferResultCode(%d)", int32(c))
	}
}

// ManageOfferEffect describes what happened to the offer on success.
type ManageOfferEffect int32

const (
	ManageOfferCreated ManageOfferEffect = iota
	ManageOfferUpdated
	ManageOfferDeleted
)

// ManageOfferResult is the operation result container for manage-offer.
type ManageOfferResult struct {
	Code   ManageOfferResultCode
	Effect ManageOfferEffect

	// Offer is the resulting offer entry for Created/Updated effects.
	Offer ledger.OfferEntry
}
