package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/openpredict/marketd/internal/domain"
)

// PriceHandler serves bulk price reads straight from the price cache,
// bypassing the engine lock. It is nil-safe: without a wired cache the
// endpoint reports prices as unavailable.
type PriceHandler struct {
	prices domain.PriceCache
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler over the given cache, which may be
// nil.
func NewPriceHandler(prices domain.PriceCache, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		logger: logger,
	}
}

// priceEntryView is one market's cached price pair.
type priceEntryView struct {
	YesPriceBp int64 `json:"yes_price_bp"`
	NoPriceBp  int64 `json:"no_price_bp"`
}

// ListPrices returns the latest cached prices for the requested markets.
// Markets with no cached price are omitted from the response.
// GET /api/prices?ids=0,1,2
func (h *PriceHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		writeError(w, http.StatusServiceUnavailable, "price cache is not configured")
		return
	}

	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing ids")
		return
	}
	parts := strings.Split(raw, ",")
	if len(parts) > 500 {
		writeError(w, http.StatusBadRequest, "too many ids")
		return
	}
	ids := make([]uint32, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid market id")
			return
		}
		ids = append(ids, uint32(id))
	}

	prices, err := h.prices.GetPrices(r.Context(), ids)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: bulk price read failed",
			slog.Int("ids", len(ids)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read prices")
		return
	}

	views := make(map[string]priceEntryView, len(prices))
	for id, bp := range prices {
		views[strconv.FormatUint(uint64(id), 10)] = priceEntryView{
			YesPriceBp: bp,
			NoPriceBp:  domain.PriceScaleBp - bp,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"prices": views})
}
