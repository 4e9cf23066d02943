package handler

import (
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/matcher"
)

// OrderHandler serves trade matching and order cancellation.
type OrderHandler struct {
	matcher *matcher.Matcher
	logger  *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(m *matcher.Matcher, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		matcher: m,
		logger:  logHandler(logger, "order"),
	}
}

// orderPayload is the wire form of a signed order. Quantities, prices, and
// salts are decimal strings so arbitrary-precision values survive JSON.
type orderPayload struct {
	Maker     string `json:"maker"`
	TokenID   string `json:"token_id"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
	Side      string `json:"side"`
	Deadline  int64  `json:"deadline"`
	Salt      string `json:"salt"`
	Signature string `json:"signature"`
}

func (p orderPayload) toOrder() (domain.Order, error) {
	maker, ok := parseAddress(p.Maker)
	if !ok {
		return domain.Order{}, fmt.Errorf("invalid maker address %q", p.Maker)
	}
	quantity, ok := parseBig(p.Quantity)
	if !ok {
		return domain.Order{}, fmt.Errorf("invalid quantity %q", p.Quantity)
	}
	price, ok := parseBig(p.Price)
	if !ok {
		return domain.Order{}, fmt.Errorf("invalid price %q", p.Price)
	}
	salt, ok := parseBig(p.Salt)
	if !ok {
		return domain.Order{}, fmt.Errorf("invalid salt %q", p.Salt)
	}
	side := domain.OrderSide(p.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		return domain.Order{}, fmt.Errorf("invalid side %q", p.Side)
	}
	sig, err := hexutil.Decode(p.Signature)
	if err != nil {
		return domain.Order{}, fmt.Errorf("invalid signature: %v", err)
	}

	return domain.Order{
		Maker:     maker,
		TokenID:   common.HexToHash(p.TokenID),
		Quantity:  quantity,
		Price:     price,
		Side:      side,
		Deadline:  big.NewInt(p.Deadline),
		Salt:      salt,
		Signature: sig,
	}, nil
}

type deltaResponse struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

type settlementResponse struct {
	SettlementID string          `json:"settlement_id"`
	Kind         string          `json:"kind"`
	Deltas       []deltaResponse `json:"deltas"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toSettlementResponse(s domain.Settlement) settlementResponse {
	out := settlementResponse{
		SettlementID: s.ID,
		Kind:         string(s.Kind),
		Deltas:       make([]deltaResponse, 0, len(s.Deltas)),
		CreatedAt:    s.CreatedAt,
	}
	for _, d := range s.Deltas {
		out.Deltas = append(out.Deltas, deltaResponse{
			Account: d.Account.Hex(),
			Asset:   d.Asset.Hex(),
			Amount:  d.Amount.String(),
		})
	}
	return out
}

// Match settles one taker order against a batch of maker orders.
// POST /api/orders/match
func (h *OrderHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Taker      orderPayload   `json:"taker"`
		Makers     []orderPayload `json:"makers"`
		TakerFill  string         `json:"taker_fill"`
		MakerFills []string       `json:"maker_fills"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	taker, err := req.Taker.toOrder()
	if err != nil {
		writeError(w, http.StatusBadRequest, "taker: "+err.Error())
		return
	}
	makers := make([]domain.Order, len(req.Makers))
	for i, p := range req.Makers {
		if makers[i], err = p.toOrder(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("maker %d: %v", i, err))
			return
		}
	}

	takerFill, ok := parseBig(req.TakerFill)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid taker_fill")
		return
	}
	makerFills := make([]*big.Int, len(req.MakerFills))
	for i, s := range req.MakerFills {
		if makerFills[i], ok = parseBig(s); !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid maker_fills[%d]", i))
			return
		}
	}

	settlement, err := h.matcher.MatchOrders(r.Context(), taker, makers, takerFill, makerFills, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(settlement))
}

// Cancel advances the caller's replay watermark, invalidating unfilled
// orders below the given salt.
// POST /api/orders/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Maker   string `json:"maker"`
		TokenID string `json:"token_id"`
		Side    string `json:"side"`
		MinSalt string `json:"min_salt"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	maker, ok := requestCaller(w, r, req.Maker, "maker")
	if !ok {
		return
	}
	side := domain.OrderSide(req.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		writeError(w, http.StatusBadRequest, "invalid side")
		return
	}
	minSalt, ok := parseBig(req.MinSalt)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid min_salt")
		return
	}

	err := h.matcher.CancelOrders(r.Context(), maker, common.HexToHash(req.TokenID), side, minSalt, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"maker":    maker.Hex(),
		"token_id": req.TokenID,
		"side":     string(side),
		"min_salt": minSalt.String(),
	})
}
