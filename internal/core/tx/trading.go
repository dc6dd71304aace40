package tx

import "github.com/openmargin/margind/internal/core/ledger"

// Protocol constants shared by the funding, liquidation and offer code.
const (
	FundingInterval     uint64 = 3600
	LiquidationInterval uint64 = 300
	DepthThreshold      int64  = 100 * 10000000
	DiffThreshold              = 0.005
	MaxDiffThreshold           = 0.1
	PriceMultiple              = 10000
	MaxLeverage                = 10
)

// CoinConfig names one leg of a trading pair.
type CoinConfig struct {
	Code   string
	Issuer ledger.AccountID
}

// Asset resolves the configured coin to its ledger asset.
func (c CoinConfig) Asset() ledger.Asset {
	return ledger.MustNewCreditAsset(c.Code, c.Issuer)
}

// FeedConfig locates the oracle data entry carrying a reference price.
type FeedConfig struct {
	DataName string
	Issuer   ledger.AccountID
}

// TradingPair is the static configuration of one margin market: the two
// legs, the settlement (base) asset, and the reference price feed.
type TradingPair struct {
	Name          string
	Coin1         CoinConfig
	Coin2         CoinConfig
	BaseAsset     CoinConfig
	ReferenceFeed FeedConfig
}
