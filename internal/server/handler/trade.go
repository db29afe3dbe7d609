package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/marketd/internal/domain"
)

// TradeService defines the methods the trade handler requires from the
// service layer.
type TradeService interface {
	PlaceOrder(ctx context.Context, holder common.Address, id uint32, isYes bool, amount *big.Int, expectedPrice int64) (*big.Int, error)
	SellShares(ctx context.Context, holder common.Address, id uint32, isYes bool, shareAmount *big.Int) (*big.Int, error)
	ClaimRewards(ctx context.Context, holder common.Address, id uint32) (*big.Int, error)
}

// TradeHandler serves order placement, share sales, claims, and quotes.
type TradeHandler struct {
	trades  TradeService
	markets MarketService
	logger  *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given services and logger.
func NewTradeHandler(trades TradeService, markets MarketService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades:  trades,
		markets: markets,
		logger:  logger,
	}
}

// tradeError maps engine errors onto HTTP responses shared by the trade
// endpoints.
func (h *TradeHandler) tradeError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "market not found")
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, "market state does not allow this operation")
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "amount must be positive")
	case errors.Is(err, domain.ErrInvalidPrice):
		writeError(w, http.StatusBadRequest, "price out of range")
	case errors.Is(err, domain.ErrInsufficientShares):
		writeError(w, http.StatusBadRequest, "insufficient share balance")
	case errors.Is(err, domain.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, "rewards already claimed")
	case errors.Is(err, domain.ErrNoPosition):
		writeError(w, http.StatusBadRequest, "no winning position to claim")
	default:
		h.logger.ErrorContext(r.Context(), "handler: "+action+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, action+" failed")
	}
}

// placeOrderRequest is the POST /api/markets/{id}/orders payload.
type placeOrderRequest struct {
	Holder          string `json:"holder"`
	Side            string `json:"side"` // "yes" or "no"
	Amount          string `json:"amount"`
	ExpectedPriceBp int64  `json:"expected_price_bp"`
}

// PlaceOrder buys shares on one side of a market.
// POST /api/markets/{id}/orders
func (h *TradeHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	holder, err := domain.ParseAddress(req.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid holder address")
		return
	}
	isYes, ok := parseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, `side must be "yes" or "no"`)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	shares, err := h.trades.PlaceOrder(r.Context(), holder, id, isYes, amount, req.ExpectedPriceBp)
	if err != nil {
		h.tradeError(w, r, "place order", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"holder":    holder.Hex(),
		"side":      req.Side,
		"amount":    amount.String(),
		"shares":    shares.String(),
	})
}

// sellSharesRequest is the POST /api/markets/{id}/sell payload.
type sellSharesRequest struct {
	Holder string `json:"holder"`
	Side   string `json:"side"`
	Shares string `json:"shares"`
}

// SellShares sells shares back to the market.
// POST /api/markets/{id}/sell
func (h *TradeHandler) SellShares(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req sellSharesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	holder, err := domain.ParseAddress(req.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid holder address")
		return
	}
	isYes, ok := parseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, `side must be "yes" or "no"`)
		return
	}
	shareAmount, ok := parseAmount(req.Shares)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid share amount")
		return
	}

	proceeds, err := h.trades.SellShares(r.Context(), holder, id, isYes, shareAmount)
	if err != nil {
		h.tradeError(w, r, "sell shares", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"holder":    holder.Hex(),
		"side":      req.Side,
		"shares":    shareAmount.String(),
		"proceeds":  proceeds.String(),
	})
}

// claimRequest is the POST /api/markets/{id}/claim payload.
type claimRequest struct {
	Holder string `json:"holder"`
}

// ClaimRewards settles a holder's winning position.
// POST /api/markets/{id}/claim
func (h *TradeHandler) ClaimRewards(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	holder, err := domain.ParseAddress(req.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid holder address")
		return
	}

	payout, err := h.trades.ClaimRewards(r.Context(), holder, id)
	if err != nil {
		h.tradeError(w, r, "claim rewards", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"holder":    holder.Hex(),
		"payout":    payout.String(),
	})
}

// Quote returns an indicative payout for a hypothetical buy against the
// market's current price. Display-only: the figures are floating point and
// carry no settlement guarantees.
// GET /api/markets/{id}/quote?side=yes&amount=100
func (h *TradeHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, ok := marketIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	isYes, ok := parseSide(r.URL.Query().Get("side"))
	if !ok {
		writeError(w, http.StatusBadRequest, `side must be "yes" or "no"`)
		return
	}
	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil || amount <= 0 {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	m, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	price := m.SidePrice(isYes)
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"side":      r.URL.Query().Get("side"),
		"price_bp":  price,
		"payout":    domain.QuotePayout(amount, price),
		"profit":    domain.QuoteProfit(amount, price),
	})
}

// parseSide maps "yes"/"no" onto the boolean side flag.
func parseSide(side string) (isYes, ok bool) {
	switch side {
	case "yes":
		return true, true
	case "no":
		return false, true
	default:
		return false, false
	}
}
