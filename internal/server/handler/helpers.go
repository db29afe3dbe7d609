package handler

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// decodeJSON decodes the request body into v with a 1 MiB size cap.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// marketIDParam extracts and parses the {id} path parameter using Go 1.22+
// built-in routing (http.Request.PathValue).
func marketIDParam(r *http.Request) (uint32, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

// holderParam extracts and validates the {holder} path parameter.
func holderParam(r *http.Request) (common.Address, bool) {
	addr, err := domain.ParseAddress(r.PathValue("holder"))
	if err != nil {
		return common.Address{}, false
	}
	return addr, true
}

// parseAmount parses a decimal string into a non-nil big integer.
func parseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, false
	}
	return v, true
}

// marketView is the JSON shape of a market in API responses. Big integer
// fields are rendered as decimal strings.
type marketView struct {
	ID            uint32 `json:"id"`
	Question      string `json:"question"`
	Slug          string `json:"slug,omitempty"`
	ConditionID   string `json:"condition_id,omitempty"`
	EndTime       string `json:"end_time"`
	State         string `json:"state"`
	Outcome       string `json:"outcome"`
	YesPriceBp    int64  `json:"yes_price_bp"`
	NoPriceBp     int64  `json:"no_price_bp"`
	YesReserve    string `json:"yes_reserve"`
	NoReserve     string `json:"no_reserve"`
	TotalVolume   string `json:"total_volume"`
	Pool          string `json:"pool"`
	WinningShares string `json:"winning_shares"`
}

func viewMarket(m domain.Market) marketView {
	return marketView{
		ID:            m.ID,
		Question:      m.Question,
		Slug:          m.Slug,
		ConditionID:   m.ConditionID,
		EndTime:       m.EndTime.UTC().Format(time.RFC3339),
		State:         string(m.State),
		Outcome:       string(m.Outcome),
		YesPriceBp:    m.YesPrice,
		NoPriceBp:     m.NoPrice(),
		YesReserve:    bigString(m.YesReserve),
		NoReserve:     bigString(m.NoReserve),
		TotalVolume:   bigString(m.TotalVolume),
		Pool:          bigString(m.Pool),
		WinningShares: bigString(m.WinningShares),
	}
}

// positionView is the JSON shape of a position in API responses.
type positionView struct {
	MarketID  uint32 `json:"market_id"`
	Holder    string `json:"holder"`
	YesShares string `json:"yes_shares"`
	NoShares  string `json:"no_shares"`
	Claimed   bool   `json:"claimed"`
}

func viewPosition(p domain.Position) positionView {
	return positionView{
		MarketID:  p.MarketID,
		Holder:    p.Holder.Hex(),
		YesShares: bigString(p.YesShares),
		NoShares:  bigString(p.NoShares),
		Claimed:   p.Claimed,
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
