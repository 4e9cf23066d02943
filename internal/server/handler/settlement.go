package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// SettlementHandler serves read access to the settlement log.
type SettlementHandler struct {
	log    domain.SettlementLog
	logger *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(log domain.SettlementLog, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		log:    log,
		logger: logHandler(logger, "settlement"),
	}
}

// ListSettlements returns settlements created before the cutoff, oldest
// first. Query parameters: before (RFC 3339, default now), limit (max 500).
// GET /api/settlements
func (h *SettlementHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	before, limit := parseCutoff(r)

	settlements, err := h.log.ListSettlementsBefore(r.Context(), before, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]settlementResponse, 0, len(settlements))
	for _, s := range settlements {
		out = append(out, toSettlementResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settlements": out,
		"count":       len(out),
	})
}
