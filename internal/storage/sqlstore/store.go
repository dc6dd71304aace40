// Package sqlstore persists ledger entries in a SQL database and exposes
// them as a state.Root. It supports sqlite (the standalone default) and
// postgres. Reads go through an LRU entry cache that is invalidated on
// commit.
package sqlstore

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/openmargin/margind/internal/core/ledger"
)

// entryCacheSize bounds the number of recently read entries kept in memory.
const entryCacheSize = 4096

// Store is a SQL-backed state.Root.
type Store struct {
	db       *sql.DB
	postgres bool
	log      zerolog.Logger

	entryCache *lru.Cache[ledger.LedgerKey, *ledger.LedgerEntry]
}

// Open connects to the database selected by driver ("sqlite" or "postgres")
// and dsn.
func Open(driver, dsn string, log zerolog.Logger) (*Store, error) {
	var driverName string
	switch driver {
	case "sqlite":
		driverName = "sqlite"
	case "postgres":
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cache, err := lru.New[ledger.LedgerKey, *ledger.LedgerEntry](entryCacheSize)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:         db,
		postgres:   driver == "postgres",
		log:        log,
		entryCache: cache,
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to the postgres $n form when needed.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// InitSchema creates the tables and seeds the header row when absent.
func (s *Store) InitSchema(genesis ledger.LedgerHeader) error {
	for _, stmt := range createTableStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ledgerheaders`).Scan(&count); err != nil {
		return fmt.Errorf("failed to check ledger header: %w", err)
	}
	if count == 0 {
		_, err := s.db.Exec(s.rebind(
			`INSERT INTO ledgerheaders (id, ledgerseq, ledgerversion, basereserve, closetime, idpool, inflationseq, lastfunding, lastliquidation)
			 VALUES (0, ?, ?, ?, ?, ?, ?, ?, ?)`),
			genesis.LedgerSeq, genesis.LedgerVersion, genesis.BaseReserve, genesis.CloseTime,
			genesis.IDPool, genesis.InflationSeq, genesis.LastFunding, genesis.LastLiquidation)
		if err != nil {
			return fmt.Errorf("failed to seed ledger header: %w", err)
		}
		s.log.Info().Uint32("seq", genesis.LedgerSeq).Msg("seeded genesis ledger header")
	}
	return nil
}

// Header implements state.Root.
func (s *Store) Header() (ledger.LedgerHeader, error) {
	var h ledger.LedgerHeader
	err := s.db.QueryRow(
		`SELECT ledgerseq, ledgerversion, basereserve, closetime, idpool, inflationseq, lastfunding, lastliquidation
		 FROM ledgerheaders WHERE id = 0`).
		Scan(&h.LedgerSeq, &h.LedgerVersion, &h.BaseReserve, &h.CloseTime,
			&h.IDPool, &h.InflationSeq, &h.LastFunding, &h.LastLiquidation)
	if err != nil {
		return ledger.LedgerHeader{}, fmt.Errorf("failed to load ledger header: %w", err)
	}
	return h, nil
}

// GetEntry implements state.Root.
func (s *Store) GetEntry(key ledger.LedgerKey) (*ledger.LedgerEntry, error) {
	if le, ok := s.entryCache.Get(key); ok {
		return le.Clone(), nil
	}

	var le *ledger.LedgerEntry
	var err error
	switch key.Type {
	case ledger.EntryTypeAccount:
		le, err = s.loadAccount(key.AccountID)
	case ledger.EntryTypeTrustLine:
		le, err = s.loadTrustLine(key.AccountID, key.Asset)
	case ledger.EntryTypeOffer:
		le, err = s.loadOffer(key.AccountID, key.OfferID)
	case ledger.EntryTypeData:
		le, err = s.loadData(key.AccountID, key.DataName)
	default:
		return nil, fmt.Errorf("unknown ledger key type %d", int32(key.Type))
	}
	if err != nil || le == nil {
		return nil, err
	}

	s.entryCache.Add(key, le.Clone())
	return le, nil
}

func nullableLiabilities(buying, selling sql.NullInt64) (*ledger.Liabilities, error) {
	if buying.Valid != selling.Valid {
		return nil, fmt.Errorf("liability columns out of step")
	}
	if !buying.Valid {
		return nil, nil
	}
	return &ledger.Liabilities{Buying: buying.Int64, Selling: selling.Int64}, nil
}

func (s *Store) loadAccount(accountID ledger.AccountID) (*ledger.LedgerEntry, error) {
	var acc ledger.AccountEntry
	var lastModified uint32
	var buying, selling sql.NullInt64

	err := s.db.QueryRow(s.rebind(
		`SELECT balance, numsubentries, flags, lastmodified, buyingliabilities, sellingliabilities
		 FROM accounts WHERE accountid = ?`), accountID).
		Scan(&acc.Balance, &acc.NumSubEntries, &acc.Flags, &lastModified, &buying, &selling)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	acc.AccountID = accountID
	liab, err := nullableLiabilities(buying, selling)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", accountID, err)
	}
	acc.Liabilities = liab

	return &ledger.LedgerEntry{
		LastModifiedLedgerSeq: lastModified,
		Data:                  ledger.EntryData{Type: ledger.EntryTypeAccount, Account: &acc},
	}, nil
}

func (s *Store) loadTrustLine(accountID ledger.AccountID, asset ledger.Asset) (*ledger.LedgerEntry, error) {
	if asset.IsNative() {
		return nil, fmt.Errorf("native asset has no trustline")
	}
	if asset.Issuer == accountID {
		return nil, fmt.Errorf("trustline accountid is issuer")
	}

	var tl ledger.TrustLineEntry
	var lastModified uint32
	var buying, selling sql.NullInt64

	err := s.db.QueryRow(s.rebind(
		`SELECT tlimit, balance, debt, flags, lastmodified, buyingliabilities, sellingliabilities
		 FROM trustlines WHERE accountid = ? AND issuer = ? AND assetcode = ?`),
		accountID, asset.Issuer, asset.Code).
		Scan(&tl.Limit, &tl.Balance, &tl.Debt, &tl.Flags, &lastModified, &buying, &selling)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trustline: %w", err)
	}

	tl.AccountID = accountID
	tl.Asset = asset
	liab, err := nullableLiabilities(buying, selling)
	if err != nil {
		return nil, fmt.Errorf("trustline %s/%s: %w", accountID, asset, err)
	}
	tl.Liabilities = liab

	return &ledger.LedgerEntry{
		LastModifiedLedgerSeq: lastModified,
		Data:                  ledger.EntryData{Type: ledger.EntryTypeTrustLine, TrustLine: &tl},
	}, nil
}

func (s *Store) loadOffer(sellerID ledger.AccountID, offerID uint64) (*ledger.LedgerEntry, error) {
	var offer ledger.OfferEntry
	var lastModified uint32
	var sellingCode, sellingIssuer, buyingCode, buyingIssuer string

	err := s.db.QueryRow(s.rebind(
		`SELECT sellingassetcode, sellingissuer, buyingassetcode, buyingissuer, amount, pricen, priced, flags, lastmodified
		 FROM offers WHERE sellerid = ? AND offerid = ?`), sellerID, offerID).
		Scan(&sellingCode, &sellingIssuer, &buyingCode, &buyingIssuer,
			&offer.Amount, &offer.Price.N, &offer.Price.D, &offer.Flags, &lastModified)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}

	offer.SellerID = sellerID
	offer.OfferID = offerID
	offer.Selling = ledger.MustNewCreditAsset(sellingCode, sellingIssuer)
	offer.Buying = ledger.MustNewCreditAsset(buyingCode, buyingIssuer)

	return &ledger.LedgerEntry{
		LastModifiedLedgerSeq: lastModified,
		Data:                  ledger.EntryData{Type: ledger.EntryTypeOffer, Offer: &offer},
	}, nil
}

func (s *Store) loadData(accountID ledger.AccountID, dataName string) (*ledger.LedgerEntry, error) {
	var encoded string
	var lastModified uint32

	err := s.db.QueryRow(s.rebind(
		`SELECT datavalue, lastmodified FROM dataentries WHERE accountid = ? AND dataname = ?`),
		accountID, dataName).
		Scan(&encoded, &lastModified)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load data entry: %w", err)
	}

	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("data entry %s/%s is not base64: %w", accountID, dataName, err)
	}

	data := ledger.DataEntry{AccountID: accountID, DataName: dataName, DataValue: value}
	return &ledger.LedgerEntry{
		LastModifiedLedgerSeq: lastModified,
		Data:                  ledger.EntryData{Type: ledger.EntryTypeData, Data: &data},
	}, nil
}

// ForEach implements state.Root. Entries stream in canonical key order:
// accounts, trustlines, offers, then data entries, each sorted by their key
// columns.
func (s *Store) ForEach(fn func(*ledger.LedgerEntry) error) error {
	if err := s.forEachAccount(fn); err != nil {
		return err
	}
	if err := s.forEachTrustLine(fn); err != nil {
		return err
	}
	if err := s.forEachOffer(fn); err != nil {
		return err
	}
	return s.forEachData(fn)
}

func (s *Store) forEachAccount(fn func(*ledger.LedgerEntry) error) error {
	rows, err := s.db.Query(
		`SELECT accountid, balance, numsubentries, flags, lastmodified, buyingliabilities, sellingliabilities
		 FROM accounts ORDER BY accountid`)
	if err != nil {
		return fmt.Errorf("failed to scan accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var acc ledger.AccountEntry
		var lastModified uint32
		var buying, selling sql.NullInt64
		if err := rows.Scan(&acc.AccountID, &acc.Balance, &acc.NumSubEntries, &acc.Flags, &lastModified, &buying, &selling); err != nil {
			return err
		}
		liab, err := nullableLiabilities(buying, selling)
		if err != nil {
			return fmt.Errorf("account %s: %w", acc.AccountID, err)
		}
		acc.Liabilities = liab
		le := &ledger.LedgerEntry{
			LastModifiedLedgerSeq: lastModified,
			Data:                  ledger.EntryData{Type: ledger.EntryTypeAccount, Account: &acc},
		}
		if err := fn(le); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) forEachTrustLine(fn func(*ledger.LedgerEntry) error) error {
	rows, err := s.db.Query(
		`SELECT accountid, issuer, assetcode, tlimit, balance, debt, flags, lastmodified, buyingliabilities, sellingliabilities
		 FROM trustlines ORDER BY accountid, assetcode, issuer`)
	if err != nil {
		return fmt.Errorf("failed to scan trustlines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tl ledger.TrustLineEntry
		var issuer, code string
		var lastModified uint32
		var buying, selling sql.NullInt64
		if err := rows.Scan(&tl.AccountID, &issuer, &code, &tl.Limit, &tl.Balance, &tl.Debt, &tl.Flags, &lastModified, &buying, &selling); err != nil {
			return err
		}
		tl.Asset = ledger.MustNewCreditAsset(code, issuer)
		liab, err := nullableLiabilities(buying, selling)
		if err != nil {
			return fmt.Errorf("trustline %s/%s: %w", tl.AccountID, tl.Asset, err)
		}
		tl.Liabilities = liab
		le := &ledger.LedgerEntry{
			LastModifiedLedgerSeq: lastModified,
			Data:                  ledger.EntryData{Type: ledger.EntryTypeTrustLine, TrustLine: &tl},
		}
		if err := fn(le); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) forEachOffer(fn func(*ledger.LedgerEntry) error) error {
	rows, err := s.db.Query(
		`SELECT sellerid, offerid, sellingassetcode, sellingissuer, buyingassetcode, buyingissuer, amount, pricen, priced, flags, lastmodified
		 FROM offers ORDER BY sellerid, offerid`)
	if err != nil {
		return fmt.Errorf("failed to scan offers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var offer ledger.OfferEntry
		var sellingCode, sellingIssuer, buyingCode, buyingIssuer string
		var lastModified uint32
		if err := rows.Scan(&offer.SellerID, &offer.OfferID, &sellingCode, &sellingIssuer, &buyingCode, &buyingIssuer,
			&offer.Amount, &offer.Price.N, &offer.Price.D, &offer.Flags, &lastModified); err != nil {
			return err
		}
		offer.Selling = ledger.MustNewCreditAsset(sellingCode, sellingIssuer)
		offer.Buying = ledger.MustNewCreditAsset(buyingCode, buyingIssuer)
		le := &ledger.LedgerEntry{
			LastModifiedLedgerSeq: lastModified,
			Data:                  ledger.EntryData{Type: ledger.EntryTypeOffer, Offer: &offer},
		}
		if err := fn(le); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) forEachData(fn func(*ledger.LedgerEntry) error) error {
	rows, err := s.db.Query(
		`SELECT accountid, dataname, datavalue, lastmodified FROM dataentries ORDER BY accountid, dataname`)
	if err != nil {
		return fmt.Errorf("failed to scan data entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data ledger.DataEntry
		var encoded string
		var lastModified uint32
		if err := rows.Scan(&data.AccountID, &data.DataName, &encoded, &lastModified); err != nil {
			return err
		}
		value, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("data entry %s/%s is not base64: %w", data.AccountID, data.DataName, err)
		}
		data.DataValue = value
		le := &ledger.LedgerEntry{
			LastModifiedLedgerSeq: lastModified,
			Data:                  ledger.EntryData{Type: ledger.EntryTypeData, Data: &data},
		}
		if err := fn(le); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Commit implements state.Root: all changes and the header land in one
// database transaction. An update or delete that touches anything but
// exactly one row means the write-through has diverged from storage, which
// is unrecoverable.
func (s *Store) Commit(header *ledger.LedgerHeader, changes map[ledger.LedgerKey]*ledger.LedgerEntry) error {
	dbTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer dbTx.Rollback()

	for key, le := range changes {
		if le == nil {
			if err := s.deleteEntry(dbTx, key); err != nil {
				return err
			}
		} else {
			if err := s.upsertEntry(dbTx, le); err != nil {
				return err
			}
		}
	}

	if header != nil {
		res, err := dbTx.Exec(s.rebind(
			`UPDATE ledgerheaders SET ledgerseq = ?, ledgerversion = ?, basereserve = ?, closetime = ?,
			 idpool = ?, inflationseq = ?, lastfunding = ?, lastliquidation = ? WHERE id = 0`),
			header.LedgerSeq, header.LedgerVersion, header.BaseReserve, header.CloseTime,
			header.IDPool, header.InflationSeq, header.LastFunding, header.LastLiquidation)
		if err != nil {
			return fmt.Errorf("failed to update ledger header: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return fmt.Errorf("could not update ledger header in SQL")
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	for key := range changes {
		s.entryCache.Remove(key)
	}
	return nil
}

func liabilityColumns(liab *ledger.Liabilities) (sql.NullInt64, sql.NullInt64) {
	if liab == nil {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: liab.Buying, Valid: true}, sql.NullInt64{Int64: liab.Selling, Valid: true}
}

func (s *Store) upsertEntry(dbTx *sql.Tx, le *ledger.LedgerEntry) error {
	switch le.Data.Type {
	case ledger.EntryTypeAccount:
		acc := le.MustAccount()
		buying, selling := liabilityColumns(acc.Liabilities)
		res, err := dbTx.Exec(s.rebind(
			`UPDATE accounts SET balance = ?, numsubentries = ?, flags = ?, lastmodified = ?,
			 buyingliabilities = ?, sellingliabilities = ? WHERE accountid = ?`),
			acc.Balance, acc.NumSubEntries, acc.Flags, le.LastModifiedLedgerSeq, buying, selling, acc.AccountID)
		if err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			_, err = dbTx.Exec(s.rebind(
				`INSERT INTO accounts (accountid, balance, numsubentries, flags, lastmodified, buyingliabilities, sellingliabilities)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`),
				acc.AccountID, acc.Balance, acc.NumSubEntries, acc.Flags, le.LastModifiedLedgerSeq, buying, selling)
			if err != nil {
				return fmt.Errorf("failed to insert account: %w", err)
			}
		}
		return nil

	case ledger.EntryTypeTrustLine:
		tl := le.MustTrustLine()
		if tl.AccountID == tl.Asset.Issuer {
			return fmt.Errorf("issuer's own trustline should not be persisted")
		}
		buying, selling := liabilityColumns(tl.Liabilities)
		res, err := dbTx.Exec(s.rebind(
			`UPDATE trustlines SET balance = ?, tlimit = ?, debt = ?, flags = ?, lastmodified = ?,
			 buyingliabilities = ?, sellingliabilities = ? WHERE accountid = ? AND issuer = ? AND assetcode = ?`),
			tl.Balance, tl.Limit, tl.Debt, tl.Flags, le.LastModifiedLedgerSeq, buying, selling,
			tl.AccountID, tl.Asset.Issuer, tl.Asset.Code)
		if err != nil {
			return fmt.Errorf("failed to update trustline: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			_, err = dbTx.Exec(s.rebind(
				`INSERT INTO trustlines (accountid, assettype, issuer, assetcode, tlimit, balance, debt, flags, lastmodified, buyingliabilities, sellingliabilities)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				tl.AccountID, int32(tl.Asset.Type), tl.Asset.Issuer, tl.Asset.Code,
				tl.Limit, tl.Balance, tl.Debt, tl.Flags, le.LastModifiedLedgerSeq, buying, selling)
			if err != nil {
				return fmt.Errorf("failed to insert trustline: %w", err)
			}
		}
		return nil

	case ledger.EntryTypeOffer:
		offer := le.MustOffer()
		res, err := dbTx.Exec(s.rebind(
			`UPDATE offers SET sellingassetcode = ?, sellingissuer = ?, buyingassetcode = ?, buyingissuer = ?,
			 amount = ?, pricen = ?, priced = ?, flags = ?, lastmodified = ? WHERE sellerid = ? AND offerid = ?`),
			offer.Selling.Code, offer.Selling.Issuer, offer.Buying.Code, offer.Buying.Issuer,
			offer.Amount, offer.Price.N, offer.Price.D, offer.Flags, le.LastModifiedLedgerSeq,
			offer.SellerID, offer.OfferID)
		if err != nil {
			return fmt.Errorf("failed to update offer: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			_, err = dbTx.Exec(s.rebind(
				`INSERT INTO offers (sellerid, offerid, sellingassetcode, sellingissuer, buyingassetcode, buyingissuer, amount, pricen, priced, flags, lastmodified)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				offer.SellerID, offer.OfferID, offer.Selling.Code, offer.Selling.Issuer,
				offer.Buying.Code, offer.Buying.Issuer, offer.Amount, offer.Price.N, offer.Price.D,
				offer.Flags, le.LastModifiedLedgerSeq)
			if err != nil {
				return fmt.Errorf("failed to insert offer: %w", err)
			}
		}
		return nil

	case ledger.EntryTypeData:
		data := le.MustData()
		encoded := base64.StdEncoding.EncodeToString(data.DataValue)
		res, err := dbTx.Exec(s.rebind(
			`UPDATE dataentries SET datavalue = ?, lastmodified = ? WHERE accountid = ? AND dataname = ?`),
			encoded, le.LastModifiedLedgerSeq, data.AccountID, data.DataName)
		if err != nil {
			return fmt.Errorf("failed to update data entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			_, err = dbTx.Exec(s.rebind(
				`INSERT INTO dataentries (accountid, dataname, datavalue, lastmodified) VALUES (?, ?, ?, ?)`),
				data.AccountID, data.DataName, encoded, le.LastModifiedLedgerSeq)
			if err != nil {
				return fmt.Errorf("failed to insert data entry: %w", err)
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown ledger entry type %d", int32(le.Data.Type))
	}
}

func (s *Store) deleteEntry(dbTx *sql.Tx, key ledger.LedgerKey) error {
	var res sql.Result
	var err error
	switch key.Type {
	case ledger.EntryTypeAccount:
		res, err = dbTx.Exec(s.rebind(`DELETE FROM accounts WHERE accountid = ?`), key.AccountID)
	case ledger.EntryTypeTrustLine:
		res, err = dbTx.Exec(s.rebind(
			`DELETE FROM trustlines WHERE accountid = ? AND issuer = ? AND assetcode = ?`),
			key.AccountID, key.Asset.Issuer, key.Asset.Code)
	case ledger.EntryTypeOffer:
		res, err = dbTx.Exec(s.rebind(
			`DELETE FROM offers WHERE sellerid = ? AND offerid = ?`), key.AccountID, key.OfferID)
	case ledger.EntryTypeData:
		res, err = dbTx.Exec(s.rebind(
			`DELETE FROM dataentries WHERE accountid = ? AND dataname = ?`), key.AccountID, key.DataName)
	default:
		return fmt.Errorf("unknown ledger key type %d", int32(key.Type))
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return fmt.Errorf("could not delete %s in SQL", key)
	}
	return nil
}
