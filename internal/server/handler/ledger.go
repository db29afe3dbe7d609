package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/openpredict/marketd/internal/domain"
)

// LedgerHandler exposes the durable ledger layers for inspection: the
// append-only mutation journal, persisted position snapshots, and the
// settlement event stream. Every dependency is nil-safe: endpoints whose
// backing layer is not wired (engine-only mode) report it as unavailable.
type LedgerHandler struct {
	journal   domain.Journal
	positions domain.PositionStore
	bus       domain.SignalBus
	logger    *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler over the wired ledger layers.
// Any of journal, positions, and bus may be nil.
func NewLedgerHandler(journal domain.Journal, positions domain.PositionStore, bus domain.SignalBus, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		journal:   journal,
		positions: positions,
		bus:       bus,
		logger:    logger,
	}
}

// journalEntryView is the JSON shape of one journal entry.
type journalEntryView struct {
	Ref       string         `json:"ref"`
	Op        string         `json:"op"`
	MarketID  uint32         `json:"market_id"`
	Holder    string         `json:"holder,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// ListEntries returns journal entries newest first with pagination.
// GET /api/journal?limit=50&offset=0
func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal is not configured")
		return
	}

	entries, err := h.journal.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list journal failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list journal entries")
		return
	}

	views := make([]journalEntryView, 0, len(entries))
	for _, e := range entries {
		v := journalEntryView{
			Ref:       e.Ref,
			Op:        e.Op,
			MarketID:  e.MarketID,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if e.Holder != nil {
			v.Holder = e.Holder.Hex()
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": views})
}

// ListHolderPositions returns every persisted position snapshot for one
// holder across all markets.
// GET /api/holders/{holder}/positions
func (h *LedgerHandler) ListHolderPositions(w http.ResponseWriter, r *http.Request) {
	if h.positions == nil {
		writeError(w, http.StatusServiceUnavailable, "position store is not configured")
		return
	}
	holder, ok := holderParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid holder address")
		return
	}

	positions, err := h.positions.ListByHolder(r.Context(), holder)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list holder positions failed",
			slog.String("holder", holder.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, viewPosition(p))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"holder":    holder.Hex(),
		"positions": views,
	})
}

// streamEventView is one replayed settlement event. Payload carries the
// event exactly as it was appended to the stream.
type streamEventView struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// SettlementEvents replays the durable settlement stream. Clients page
// through it by re-requesting with last_id set to the id of the last event
// they saw; last_id "0" (the default) replays from the beginning.
// GET /api/settlements/stream?last_id=0&count=100
func (h *LedgerHandler) SettlementEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "settlement stream is not configured")
		return
	}

	q := r.URL.Query()
	lastID := q.Get("last_id")
	if lastID == "" {
		lastID = "0"
	}
	count := 100
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid count")
			return
		}
		count = n
	}
	if count > 500 {
		count = 500
	}

	messages, err := h.bus.StreamRead(r.Context(), domain.SettlementStream, lastID, count)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: settlement stream read failed",
			slog.String("last_id", lastID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read settlement stream")
		return
	}

	views := make([]streamEventView, 0, len(messages))
	for _, m := range messages {
		payload := m.Payload
		if !json.Valid(payload) {
			payload, _ = json.Marshal(string(m.Payload))
		}
		views = append(views, streamEventView{
			ID:      m.ID,
			Payload: payload,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": views})
}
