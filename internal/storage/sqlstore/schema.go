package sqlstore

// Schema statements. The trustlines liability columns are NULL together or
// set together; the check constraints mirror the entry invariants so a
// divergent write is rejected at the storage boundary too.
var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts
	(
	    accountid           VARCHAR(56) NOT NULL,
	    balance             BIGINT      NOT NULL CHECK (balance >= 0),
	    numsubentries       INT         NOT NULL,
	    flags               INT         NOT NULL,
	    lastmodified        INT         NOT NULL,
	    buyingliabilities   BIGINT,
	    sellingliabilities  BIGINT,
	    PRIMARY KEY (accountid)
	)`,
	`CREATE TABLE IF NOT EXISTS trustlines
	(
	    accountid           VARCHAR(56) NOT NULL,
	    assettype           INT         NOT NULL,
	    issuer              VARCHAR(56) NOT NULL,
	    assetcode           VARCHAR(12) NOT NULL,
	    tlimit              BIGINT      NOT NULL CHECK (tlimit > 0),
	    balance             BIGINT      NOT NULL CHECK (balance >= 0),
	    debt                BIGINT      NOT NULL,
	    flags               INT         NOT NULL,
	    lastmodified        INT         NOT NULL,
	    buyingliabilities   BIGINT,
	    sellingliabilities  BIGINT,
	    PRIMARY KEY (accountid, issuer, assetcode)
	)`,
	`CREATE TABLE IF NOT EXISTS offers
	(
	    sellerid        VARCHAR(56) NOT NULL,
	    offerid         BIGINT      NOT NULL CHECK (offerid >= 0),
	    sellingassetcode VARCHAR(12) NOT NULL,
	    sellingissuer   VARCHAR(56) NOT NULL,
	    buyingassetcode VARCHAR(12) NOT NULL,
	    buyingissuer    VARCHAR(56) NOT NULL,
	    amount          BIGINT      NOT NULL CHECK (amount >= 0),
	    pricen          INT         NOT NULL,
	    priced          INT         NOT NULL,
	    flags           INT         NOT NULL,
	    lastmodified    INT         NOT NULL,
	    PRIMARY KEY (sellerid, offerid)
	)`,
	`CREATE TABLE IF NOT EXISTS dataentries
	(
	    accountid     VARCHAR(56)  NOT NULL,
	    dataname      VARCHAR(64)  NOT NULL,
	    datavalue     VARCHAR(112) NOT NULL,
	    lastmodified  INT          NOT NULL,
	    PRIMARY KEY (accountid, dataname)
	)`,
	`CREATE TABLE IF NOT EXISTS ledgerheaders
	(
	    id              INT    NOT NULL CHECK (id = 0),
	    ledgerseq       INT    NOT NULL,
	    ledgerversion   INT    NOT NULL,
	    basereserve     INT    NOT NULL,
	    closetime       BIGINT NOT NULL,
	    idpool          BIGINT NOT NULL,
	    inflationseq    INT    NOT NULL,
	    lastfunding     BIGINT NOT NULL,
	    lastliquidation BIGINT NOT NULL,
	    PRIMARY KEY (id)
	)`,
}
