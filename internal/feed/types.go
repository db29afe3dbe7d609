// Package feed implements the REST client for the external price feed: the
// public Polymarket CLOB markets endpoint. It delivers per-market Yes-price
// records that the sync driver matches to local markets by condition id or
// slug.
package feed

import (
	"encoding/json"
	"strconv"
)

// defaultYesPrice is assumed when a record carries no usable price field.
const defaultYesPrice = 0.5

// Record is one external market price observation. YesPrice is a probability
// in [0, 1]; conversion to basis points happens in the sync driver.
type Record struct {
	ConditionID string
	Slug        string
	YesPrice    float64
}

// apiMarket mirrors the wire format of the CLOB markets endpoint. Price
// fields arrive as JSON strings or numbers depending on the market type, so
// everything is decoded leniently.
type apiMarket struct {
	ConditionID   string          `json:"condition_id"`
	MarketSlug    string          `json:"market_slug"`
	YesBid        json.RawMessage `json:"yes_bid"`
	YesPrice      json.RawMessage `json:"yes_price"`
	OutcomePrices []string        `json:"outcome_prices"`
}

// apiResponse is the paginated envelope around the market list.
type apiResponse struct {
	Data []apiMarket `json:"data"`
}

// toRecord resolves the Yes price with the same fallback chain the feed's
// consumers have always used: yes_bid, then yes_price, then the first
// outcome price, then 0.5.
func (m apiMarket) toRecord() Record {
	price, ok := parsePrice(m.YesBid)
	if !ok {
		price, ok = parsePrice(m.YesPrice)
	}
	if !ok && len(m.OutcomePrices) > 0 {
		if v, err := strconv.ParseFloat(m.OutcomePrices[0], 64); err == nil {
			price, ok = v, true
		}
	}
	if !ok {
		price = defaultYesPrice
	}
	return Record{
		ConditionID: m.ConditionID,
		Slug:        m.MarketSlug,
		YesPrice:    price,
	}
}

// parsePrice accepts a raw JSON value that may be a number, a numeric
// string, or absent.
func parsePrice(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
