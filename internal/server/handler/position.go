package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/settlecore/internal/ctf"
	"github.com/alanyoungcy/settlecore/internal/outcome"
)

// PositionHandler serves the position lifecycle: split, merge, redeem.
type PositionHandler struct {
	engine *outcome.Engine
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(engine *outcome.Engine, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		engine: engine,
		logger: logHandler(logger, "position"),
	}
}

// splitMergeRequest is shared by Split and Merge. Partition defaults to the
// binary yes/no partition when omitted.
type splitMergeRequest struct {
	Account     string   `json:"account"`
	ConditionID string   `json:"condition_id"`
	Partition   []uint64 `json:"partition,omitempty"`
	Amount      string   `json:"amount"`
}

func (req splitMergeRequest) parse(w http.ResponseWriter, r *http.Request) (common.Address, common.Hash, []uint64, bool) {
	account, ok := requestCaller(w, r, req.Account, "account")
	if !ok {
		return common.Address{}, common.Hash{}, nil, false
	}
	partition := req.Partition
	if len(partition) == 0 {
		partition = outcome.BinaryPartition
	}
	return account, common.HexToHash(req.ConditionID), partition, true
}

// Split converts collateral into a full set of outcome positions.
// POST /api/positions/split
func (h *PositionHandler) Split(w http.ResponseWriter, r *http.Request) {
	var req splitMergeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	account, conditionID, partition, ok := req.parse(w, r)
	if !ok {
		return
	}
	amount, ok := parseBig(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	settlement, err := h.engine.Split(r.Context(), account, conditionID, partition, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(settlement))
}

// Merge converts a full set of outcome positions back into collateral.
// POST /api/positions/merge
func (h *PositionHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req splitMergeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	account, conditionID, partition, ok := req.parse(w, r)
	if !ok {
		return
	}
	amount, ok := parseBig(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	settlement, err := h.engine.Merge(r.Context(), account, conditionID, partition, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(settlement))
}

// Redeem converts the account's resolved positions into collateral at the
// reported payout. Index sets default to the binary yes/no pair.
// POST /api/positions/redeem
func (h *PositionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account     string   `json:"account"`
		ConditionID string   `json:"condition_id"`
		IndexSets   []uint64 `json:"index_sets,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	account, ok := requestCaller(w, r, req.Account, "account")
	if !ok {
		return
	}
	indexSets := req.IndexSets
	if len(indexSets) == 0 {
		indexSets = []uint64{ctf.IndexSetYes, ctf.IndexSetNo}
	}

	settlement, err := h.engine.Redeem(r.Context(), account, common.HexToHash(req.ConditionID), indexSets)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(settlement))
}
