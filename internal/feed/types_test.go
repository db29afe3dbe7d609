package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMarket(t *testing.T, raw string) Record {
	t.Helper()
	var m apiMarket
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m.toRecord()
}

func TestToRecord_YesBidPreferred(t *testing.T) {
	r := decodeMarket(t, `{
		"condition_id": "0xabc",
		"market_slug": "btc-100k",
		"yes_bid": "0.62",
		"yes_price": "0.60",
		"outcome_prices": ["0.58", "0.42"]
	}`)
	assert.Equal(t, "0xabc", r.ConditionID)
	assert.Equal(t, "btc-100k", r.Slug)
	assert.Equal(t, 0.62, r.YesPrice)
}

func TestToRecord_FallbackChain(t *testing.T) {
	// No yes_bid: falls back to yes_price.
	r := decodeMarket(t, `{"yes_price": 0.71}`)
	assert.Equal(t, 0.71, r.YesPrice)

	// Neither: falls back to the first outcome price.
	r = decodeMarket(t, `{"outcome_prices": ["0.33", "0.67"]}`)
	assert.Equal(t, 0.33, r.YesPrice)

	// Nothing usable: defaults to 0.5.
	r = decodeMarket(t, `{"condition_id": "0xdef"}`)
	assert.Equal(t, 0.5, r.YesPrice)
}

func TestToRecord_MalformedValues(t *testing.T) {
	r := decodeMarket(t, `{"yes_bid": "not-a-number", "yes_price": null, "outcome_prices": ["bogus"]}`)
	assert.Equal(t, 0.5, r.YesPrice)
}

func TestAPIResponse_Envelope(t *testing.T) {
	var resp apiResponse
	require.NoError(t, json.Unmarshal([]byte(`{"data": [{"condition_id": "a"}, {"condition_id": "b"}]}`), &resp))
	assert.Len(t, resp.Data, 2)
}
