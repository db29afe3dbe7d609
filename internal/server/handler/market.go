package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// MarketService defines the methods the market handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, question string, endTime time.Time) (uint32, error)
	CreateMarketWithLiquidity(ctx context.Context, question string, endTime time.Time, yesReserve, noReserve *big.Int, basePrice int64, conditionID, slug string) (uint32, error)
	GetMarket(ctx context.Context, id uint32) (domain.Market, error)
	ListMarkets(ctx context.Context) ([]domain.Market, error)
	MarketCount(ctx context.Context) uint32
	GetPosition(ctx context.Context, id uint32, holder common.Address) (domain.Position, error)
}

// MarketHandler serves market lifecycle and read endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the POST /api/markets payload. Reserve and price
// fields are optional; when present they seed the market's liquidity.
type createMarketRequest struct {
	Question    string `json:"question"`
	EndTime     string `json:"end_time"`
	YesReserve  string `json:"yes_reserve,omitempty"`
	NoReserve   string `json:"no_reserve,omitempty"`
	BasePriceBp int64  `json:"base_price_bp,omitempty"`
	ConditionID string `json:"condition_id,omitempty"`
	Slug        string `json:"slug,omitempty"`
}

// CreateMarket registers a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "missing question")
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_time, expected RFC 3339")
		return
	}

	var id uint32
	if req.YesReserve != "" || req.NoReserve != "" || req.BasePriceBp != 0 || req.ConditionID != "" || req.Slug != "" {
		yesReserve, ok := parseAmount(req.YesReserve)
		if !ok {
			yesReserve = big.NewInt(0)
		}
		noReserve, ok := parseAmount(req.NoReserve)
		if !ok {
			noReserve = big.NewInt(0)
		}
		basePrice := req.BasePriceBp
		if basePrice == 0 {
			basePrice = domain.DefaultPriceBp
		}
		id, err = h.markets.CreateMarketWithLiquidity(r.Context(), req.Question, endTime,
			yesReserve, noReserve, basePrice, req.ConditionID, req.Slug)
	} else {
		id, err = h.markets.CreateMarket(r.Context(), req.Question, endTime)
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSchedule):
			writeError(w, http.StatusBadRequest, "end_time must be in the future")
		case errors.Is(err, domain.ErrInvalidPrice):
			writeError(w, http.StatusBadRequest, "base price out of range")
		case errors.Is(err, domain.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "invalid reserve amount")
		default:
			h.logger.ErrorContext(r.Context(), "handler: create market failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create market")
		}
		return
	}

	m, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusCreated, map[string]uint32{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, viewMarket(m))
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Total   uint32       `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns markets in id order with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListMarkets(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	if opts.Offset < len(markets) {
		markets = markets[opts.Offset:]
	} else {
		markets = nil
	}
	if opts.Limit > 0 && len(markets) > opts.Limit {
		markets = markets[:opts.Limit]
	}

	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, viewMarket(m))
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: views,
		Total:   h.markets.MarketCount(r.Context()),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its id.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	m, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.Uint64("market_id", uint64(id)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, viewMarket(m))
}

// GetPosition returns a holder's position in a market.
// GET /api/markets/{id}/positions/{holder}
func (h *MarketHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	holder, ok := holderParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid holder address")
		return
	}

	pos, err := h.markets.GetPosition(r.Context(), id, holder)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.Uint64("market_id", uint64(id)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, viewPosition(pos))
}
