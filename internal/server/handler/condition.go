package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/registry"
)

// ConditionHandler serves condition lifecycle endpoints: preparation, pair
// registration, and oracle payout reporting.
type ConditionHandler struct {
	registry *registry.Registry
	store    domain.ConditionStore
	logger   *slog.Logger
}

// NewConditionHandler creates a ConditionHandler.
func NewConditionHandler(reg *registry.Registry, store domain.ConditionStore, logger *slog.Logger) *ConditionHandler {
	return &ConditionHandler{
		registry: reg,
		store:    store,
		logger:   logHandler(logger, "condition"),
	}
}

type conditionResponse struct {
	ID           string     `json:"id"`
	Oracle       string     `json:"oracle"`
	QuestionID   string     `json:"question_id"`
	OutcomeSlots int        `json:"outcome_slots"`
	Payouts      []uint64   `json:"payouts,omitempty"`
	PreparedAt   time.Time  `json:"prepared_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

func toConditionResponse(c domain.Condition) conditionResponse {
	return conditionResponse{
		ID:           c.ID.Hex(),
		Oracle:       c.Oracle.Hex(),
		QuestionID:   c.QuestionID.Hex(),
		OutcomeSlots: c.OutcomeSlots,
		Payouts:      c.Payouts,
		PreparedAt:   c.PreparedAt,
		ResolvedAt:   c.ResolvedAt,
	}
}

// PrepareCondition creates a new condition. Restricted to the administrator.
// POST /api/conditions
func (h *ConditionHandler) PrepareCondition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller       string `json:"caller"`
		Oracle       string `json:"oracle"`
		QuestionID   string `json:"question_id"`
		OutcomeSlots int    `json:"outcome_slots"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, ok := requestCaller(w, r, req.Caller, "caller")
	if !ok {
		return
	}
	oracle, ok := parseAddress(req.Oracle)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid oracle address")
		return
	}

	cond, err := h.registry.PrepareCondition(r.Context(), caller, oracle, common.HexToHash(req.QuestionID), req.OutcomeSlots)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConditionResponse(cond))
}

// GetCondition returns a condition by its identifier.
// GET /api/conditions/{id}
func (h *ConditionHandler) GetCondition(w http.ResponseWriter, r *http.Request) {
	id := common.HexToHash(pathParam(r, "id"))

	cond, err := h.store.GetCondition(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConditionResponse(cond))
}

// RegisterPair derives and registers the yes/no position pair for a binary
// condition. Restricted to the administrator.
// POST /api/conditions/{id}/pair
func (h *ConditionHandler) RegisterPair(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, ok := requestCaller(w, r, req.Caller, "caller")
	if !ok {
		return
	}

	conditionID := common.HexToHash(pathParam(r, "id"))
	yes, no := h.registry.DeriveBinaryPair(conditionID)
	if err := h.registry.RegisterPositionPair(r.Context(), caller, yes, no, conditionID); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"condition_id": conditionID.Hex(),
		"yes":          yes.Hex(),
		"no":           no.Hex(),
	})
}

// ReportPayouts records the oracle's payout vector for the condition tied
// to a question. Only the condition's oracle may report.
// POST /api/payouts
func (h *ConditionHandler) ReportPayouts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller     string   `json:"caller"`
		QuestionID string   `json:"question_id"`
		Payouts    []uint64 `json:"payouts"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, ok := requestCaller(w, r, req.Caller, "caller")
	if !ok {
		return
	}

	cond, err := h.registry.ReportPayouts(r.Context(), caller, common.HexToHash(req.QuestionID), req.Payouts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConditionResponse(cond))
}
