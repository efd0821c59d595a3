package source

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MarketChart is the CoinGecko market_chart payload. Each point is [timestamp_ms, value].
type MarketChart struct {
	Prices       [][2]float64 `json:"prices"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// FearGreed is the alternative.me fear & greed index response, most recent first.
type FearGreed struct {
	Name string           `json:"name"`
	Data []FearGreedPoint `json:"data"`
}

// FearGreedPoint is one daily index reading. The API encodes numbers as strings.
type FearGreedPoint struct {
	Value          string `json:"value"`
	Classification string `json:"value_classification"`
	Timestamp      string `json:"timestamp"`
}

// Int returns the reading as an integer.
func (p FearGreedPoint) Int() (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(p.Value))
	if err != nil {
		return 0, false
	}
	return v, true
}

// NetworkMetrics is a flat map of named ledger statistics. Values may arrive as
// numbers or numeric strings; anything else is ignored.
type NetworkMetrics map[string]any

// Float returns the named metric, if present and numeric.
func (m NetworkMetrics) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}

// Escrow is an on-ledger escrow entry. Amount is in drops.
type Escrow struct {
	Account     string      `json:"Account"`
	Destination string      `json:"Destination"`
	Amount      json.Number `json:"Amount"`
	FinishAfter json.Number `json:"FinishAfter,omitempty"`
}

// Holder is a rich-list entry. Balance is in XRP.
type Holder struct {
	Account string      `json:"account"`
	Name    *HolderName `json:"name,omitempty"`
	Balance json.Number `json:"balance"`
}

// HolderName is the optional well-known name attached to an account.
type HolderName struct {
	Name string `json:"name"`
	Desc string `json:"desc,omitempty"`
}

// Stablecoin is the CoinGecko coin payload for the tracked stable asset.
type Stablecoin struct {
	ID         string            `json:"id"`
	Symbol     string            `json:"symbol"`
	Name       string            `json:"name"`
	MarketData *StableMarketData `json:"market_data,omitempty"`
}

// StableMarketData holds the optional nested market fields.
type StableMarketData struct {
	CurrentPrice     *CurrencyValue `json:"current_price,omitempty"`
	MarketCap        *CurrencyValue `json:"market_cap,omitempty"`
	TotalVolume      *CurrencyValue `json:"total_volume,omitempty"`
	TotalValueLocked *CurrencyValue `json:"total_value_locked,omitempty"`
}

// CurrencyValue is a CoinGecko per-currency value map restricted to USD.
type CurrencyValue struct {
	USD *float64 `json:"usd,omitempty"`
}
