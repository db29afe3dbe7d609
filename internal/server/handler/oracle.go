package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// OracleService defines the methods the oracle handler requires from the
// service layer.
type OracleService interface {
	AuthorizeUpdater(ctx context.Context, caller, addr common.Address) error
	UpdatePrice(ctx context.Context, caller common.Address, id uint32, priceBp int64) error
	BatchUpdatePrices(ctx context.Context, caller common.Address, ids []uint32, prices []int64) ([]domain.BatchResult, error)
}

// ResolutionService defines the resolve operation the oracle handler needs.
type ResolutionService interface {
	ResolveMarket(ctx context.Context, id uint32, outcome domain.Outcome) error
}

// OracleHandler serves price update, updater authorization, and resolution
// endpoints.
type OracleHandler struct {
	oracle     OracleService
	resolution ResolutionService
	logger     *slog.Logger
}

// NewOracleHandler creates an OracleHandler with the given services and logger.
func NewOracleHandler(oracle OracleService, resolution ResolutionService, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{
		oracle:     oracle,
		resolution: resolution,
		logger:     logger,
	}
}

func (h *OracleHandler) oracleError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "caller is not authorized")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "market not found")
	case errors.Is(err, domain.ErrOutOfBounds):
		writeError(w, http.StatusBadRequest, "price out of bounds")
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, "market state does not allow this operation")
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "ids and prices must have equal length")
	case errors.Is(err, domain.ErrTooEarly):
		writeError(w, http.StatusConflict, "market has not reached its end time")
	case errors.Is(err, domain.ErrInvalidOutcome):
		writeError(w, http.StatusBadRequest, `outcome must be "yes" or "no"`)
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+action+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, action+" failed")
	}
}

// authorizeRequest is the POST /api/oracle/updaters payload.
type authorizeRequest struct {
	Caller  string `json:"caller"`
	Updater string `json:"updater"`
}

// AuthorizeUpdater grants an address the right to push prices.
// POST /api/oracle/updaters
func (h *OracleHandler) AuthorizeUpdater(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, err := domain.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}
	updater, err := domain.ParseAddress(req.Updater)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid updater address")
		return
	}

	if err := h.oracle.AuthorizeUpdater(r.Context(), caller, updater); err != nil {
		h.oracleError(w, r, "authorize updater", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"updater": updater.Hex()})
}

// updatePriceRequest is the PUT /api/markets/{id}/price payload.
type updatePriceRequest struct {
	Caller  string `json:"caller"`
	PriceBp int64  `json:"price_bp"`
}

// UpdatePrice sets a market's yes price.
// PUT /api/markets/{id}/price
func (h *OracleHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req updatePriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, err := domain.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.oracle.UpdatePrice(r.Context(), caller, id, req.PriceBp); err != nil {
		h.oracleError(w, r, "update price", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"price_bp":  req.PriceBp,
	})
}

// batchUpdateRequest is the POST /api/oracle/prices payload.
type batchUpdateRequest struct {
	Caller   string   `json:"caller"`
	IDs      []uint32 `json:"ids"`
	PricesBp []int64  `json:"prices_bp"`
}

// batchResultView is the per-element outcome of a batch update.
type batchResultView struct {
	MarketID uint32 `json:"market_id"`
	Error    string `json:"error,omitempty"`
}

// BatchUpdatePrices applies several price updates in one request. Each
// element succeeds or fails on its own.
// POST /api/oracle/prices
func (h *OracleHandler) BatchUpdatePrices(w http.ResponseWriter, r *http.Request) {
	var req batchUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	caller, err := domain.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	results, err := h.oracle.BatchUpdatePrices(r.Context(), caller, req.IDs, req.PricesBp)
	if err != nil {
		h.oracleError(w, r, "batch update prices", err)
		return
	}

	views := make([]batchResultView, 0, len(results))
	for _, res := range results {
		v := batchResultView{MarketID: res.MarketID}
		if res.Err != nil {
			v.Error = res.Err.Error()
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": views})
}

// resolveRequest is the POST /api/markets/{id}/resolve payload.
type resolveRequest struct {
	Outcome string `json:"outcome"`
}

// ResolveMarket fixes a market's terminal outcome.
// POST /api/markets/{id}/resolve
func (h *OracleHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome := domain.Outcome(req.Outcome)
	if err := h.resolution.ResolveMarket(r.Context(), id, outcome); err != nil {
		h.oracleError(w, r, "resolve market", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"outcome":   req.Outcome,
	})
}
