package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/ledger"
)

// BalanceHandler serves balance queries and direct ledger operations
// (collateral deposits and transfers between accounts).
type BalanceHandler struct {
	store      domain.LedgerStore
	ledger     *ledger.Ledger
	collateral domain.AssetID
	admin      common.Address
	logger     *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler. collateral names the asset
// credited by deposits; admin is the only caller allowed to credit.
func NewBalanceHandler(store domain.LedgerStore, l *ledger.Ledger, collateral, admin common.Address, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{
		store:      store,
		ledger:     l,
		collateral: domain.CollateralAsset(collateral),
		admin:      admin,
		logger:     logHandler(logger, "balance"),
	}
}

// GetBalance returns the balance of one (account, asset). The asset path
// segment "collateral" is shorthand for the configured collateral token.
// GET /api/balances/{account}/{asset}
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(pathParam(r, "account"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	asset := h.collateral
	if raw := pathParam(r, "asset"); raw != "collateral" {
		asset = common.HexToHash(raw)
	}

	balance, err := h.store.Balance(r.Context(), account, asset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account.Hex(),
		"asset":   asset.Hex(),
		"balance": balance.String(),
	})
}

// Credit deposits collateral into an account. Deposits model the external
// collateral boundary, so only the administrator may credit.
// POST /api/balances/credit
func (h *BalanceHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller  string `json:"caller"`
		Account string `json:"account"`
		Amount  string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, ok := requestCaller(w, r, req.Caller, "caller")
	if !ok {
		return
	}
	if caller != h.admin {
		writeDomainError(w, domain.ErrUnauthorized)
		return
	}

	account, ok := parseAddress(req.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}
	amount, ok := parseBig(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	settlement, err := h.ledger.Credit(r.Context(), account, h.collateral, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(settlement))
}

// Transfer moves collateral between two accounts atomically. The from
// account is the acting caller; authenticated requests cannot spend from
// anyone else's account.
// POST /api/balances/transfer
func (h *BalanceHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	from, ok := requestCaller(w, r, req.From, "from")
	if !ok {
		return
	}
	to, ok := parseAddress(req.To)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid to address")
		return
	}
	amount, ok := parseBig(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	settlement, err := h.ledger.Transfer(r.Context(), from, to, h.collateral, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(settlement))
}
