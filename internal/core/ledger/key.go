package ledger

import "fmt"

// LedgerKey identifies a ledger entry. The struct is comparable and usable
// as a map key; only the fields relevant to Type are populated.
type LedgerKey struct {
	Type      EntryType
	AccountID AccountID
	Asset     Asset
	OfferID   uint64
	DataName  string
}

// AccountKey keys the account entry for accountID.
func AccountKey(accountID AccountID) LedgerKey {
	return LedgerKey{Type: EntryTypeAccount, AccountID: accountID}
}

// TrustLineKey keys the trustline (accountID, asset).
func TrustLineKey(accountID AccountID, asset Asset) LedgerKey {
	return LedgerKey{Type: EntryTypeTrustLine, AccountID: accountID, Asset: asset}
}

// OfferKey keys the offer (sellerID, offerID).
func OfferKey(sellerID AccountID, offerID uint64) LedgerKey {
	return LedgerKey{Type: EntryTypeOffer, AccountID: sellerID, OfferID: offerID}
}

// DataKey keys the data entry (accountID, dataName).
func DataKey(accountID AccountID, dataName string) LedgerKey {
	return LedgerKey{Type: EntryTypeData, AccountID: accountID, DataName: dataName}
}

// String renders the key for logging.
func (k LedgerKey) String() string {
	switch k.Type {
	case EntryTypeAccount:
		return fmt.Sprintf("account/%s", k.AccountID)
	case EntryTypeTrustLine:
		return fmt.Sprintf("trustline/%s/%s", k.AccountID, k.Asset)
	case EntryTypeOffer:
		return fmt.Sprintf("offer/%s/%d", k.AccountID, k.OfferID)
	case EntryTypeData:
		return fmt.Sprintf("data/%s/%s", k.AccountID, k.DataName)
	default:
		return fmt.Sprintf("unknown/%d", int32(k.Type))
	}
}

// Less imposes the canonical ordering used by deterministic scans: by entry
// type, then account ID, then the type-specific discriminants.
func (k LedgerKey) Less(other LedgerKey) bool {
	if k.Type != other.Type {
		return k.Type < other.Type
	}
	if k.AccountID != other.AccountID {
		return k.AccountID < other.AccountID
	}
	switch k.Type {
	case EntryTypeTrustLine:
		if k.Asset.Code != other.Asset.Code {
			return k.Asset.Code < other.Asset.Code
		}
		return k.Asset.Issuer < other.Asset.Issuer
	case EntryTypeOffer:
		return k.OfferID < other.OfferID
	case EntryTypeData:
		return k.DataName < other.DataName
	default:
		return false
	}
}
