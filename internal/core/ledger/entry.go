package ledger

import "fmt"

// AccountID is the strkey form of an account's public key.
type AccountID = string

// EntryType discriminates the LedgerEntry data variant.
type EntryType int32

const (
	EntryTypeAccount EntryType = iota
	EntryTypeTrustLine
	EntryTypeOffer
	EntryTypeData
)

// String returns the entry type name.
func (t EntryType) String() string {
	switch t {
	case EntryTypeAccount:
		return "ACCOUNT"
	case EntryTypeTrustLine:
		return "TRUSTLINE"
	case EntryTypeOffer:
		return "OFFER"
	case EntryTypeData:
		return "DATA"
	default:
		return fmt.Sprintf("EntryType(%d)", int32(t))
	}
}

// Liabilities is the reserved portion of balance/capacity committed to open
// offers. The two fields are always present together.
type Liabilities struct {
	Buying  int64
	Selling int64
}

// EntryData is the tagged union of concrete ledger entry payloads. Exactly
// one pointer matching Type is non-nil; dispatch on any other tag is a
// structural invariant violation.
type EntryData struct {
	Type      EntryType
	Account   *AccountEntry
	TrustLine *TrustLineEntry
	Offer     *OfferEntry
	Data      *DataEntry
}

// LedgerEntry is a versioned ledger record.
type LedgerEntry struct {
	LastModifiedLedgerSeq uint32
	Data                  EntryData
}

// MustAccount returns the account payload, panicking on a tag mismatch.
func (e *LedgerEntry) MustAccount() *AccountEntry {
	if e.Data.Type != EntryTypeAccount || e.Data.Account == nil {
		panic(fmt.Sprintf("ledger entry is not an account: %s", e.Data.Type))
	}
	return e.Data.Account
}

// MustTrustLine returns the trustline payload, panicking on a tag mismatch.
func (e *LedgerEntry) MustTrustLine() *TrustLineEntry {
	if e.Data.Type != EntryTypeTrustLine || e.Data.TrustLine == nil {
		panic(fmt.Sprintf("ledger entry is not a trustline: %s", e.Data.Type))
	}
	return e.Data.TrustLine
}

// MustOffer returns the offer payload, panicking on a tag mismatch.
func (e *LedgerEntry) MustOffer() *OfferEntry {
	if e.Data.Type != EntryTypeOffer || e.Data.Offer == nil {
		panic(fmt.Sprintf("ledger entry is not an offer: %s", e.Data.Type))
	}
	return e.Data.Offer
}

// MustData returns the data payload, panicking on a tag mismatch.
func (e *LedgerEntry) MustData() *DataEntry {
	if e.Data.Type != EntryTypeData || e.Data.Data == nil {
		panic(fmt.Sprintf("ledger entry is not a data entry: %s", e.Data.Type))
	}
	return e.Data.Data
}

// Key derives the ledger key identifying this entry.
func (e *LedgerEntry) Key() LedgerKey {
	switch e.Data.Type {
	case EntryTypeAccount:
		return AccountKey(e.Data.Account.AccountID)
	case EntryTypeTrustLine:
		return TrustLineKey(e.Data.TrustLine.AccountID, e.Data.TrustLine.Asset)
	case EntryTypeOffer:
		return OfferKey(e.Data.Offer.SellerID, e.Data.Offer.OfferID)
	case EntryTypeData:
		return DataKey(e.Data.Data.AccountID, e.Data.Data.DataName)
	default:
		panic(fmt.Sprintf("unknown ledger entry type %d", int32(e.Data.Type)))
	}
}

// Clone returns a deep copy of the entry.
func (e *LedgerEntry) Clone() *LedgerEntry {
	cp := &LedgerEntry{LastModifiedLedgerSeq: e.LastModifiedLedgerSeq}
	cp.Data.Type = e.Data.Type
	switch e.Data.Type {
	case EntryTypeAccount:
		acc := *e.Data.Account
		if acc.Liabilities != nil {
			liab := *acc.Liabilities
			acc.Liabilities = &liab
		}
		cp.Data.Account = &acc
	case EntryTypeTrustLine:
		tl := *e.Data.TrustLine
		if tl.Liabilities != nil {
			liab := *tl.Liabilities
			tl.Liabilities = &liab
		}
		cp.Data.TrustLine = &tl
	case EntryTypeOffer:
		offer := *e.Data.Offer
		cp.Data.Offer = &offer
	case EntryTypeData:
		data := *e.Data.Data
		data.DataValue = append([]byte(nil), e.Data.Data.DataValue...)
		cp.Data.Data = &data
	default:
		panic(fmt.Sprintf("unknown ledger entry type %d", int32(e.Data.Type)))
	}
	return cp
}
