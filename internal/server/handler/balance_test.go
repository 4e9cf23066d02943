package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/settlecore/internal/ledger"
	"github.com/alanyoungcy/settlecore/internal/store/memory"
)

var trader = common.HexToAddress("0xa11ce00000000000000000000000000000000000")

func newBalanceHandler() *BalanceHandler {
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.New(store, logger)
	return NewBalanceHandler(store, led, collateral, admin, logger)
}

func getBalance(t *testing.T, h *BalanceHandler, account, asset string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/balances/"+account+"/"+asset, nil)
	req.SetPathValue("account", account)
	req.SetPathValue("asset", asset)
	w := httptest.NewRecorder()
	h.GetBalance(w, req)
	return w
}

func TestCreditRequiresAdmin(t *testing.T) {
	h := newBalanceHandler()

	body := func(caller common.Address) string {
		return fmt.Sprintf(`{"caller":%q,"account":%q,"amount":"1000"}`, caller.Hex(), trader.Hex())
	}

	w := postJSON(t, h.Credit, "/api/balances/credit", body(trader))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postJSON(t, h.Credit, "/api/balances/credit", body(admin))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var s settlementResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, "credit", s.Kind)
	require.Len(t, s.Deltas, 1)
	assert.Equal(t, "1000", s.Deltas[0].Amount)
}

func TestCreditAuthenticatedIdentity(t *testing.T) {
	h := newBalanceHandler()

	// An authenticated admin may omit the body caller.
	w := postAs(t, h.Credit, "/api/balances/credit",
		fmt.Sprintf(`{"account":%q,"amount":"5"}`, trader.Hex()), admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// A trader key cannot name the admin as caller.
	w = postAs(t, h.Credit, "/api/balances/credit",
		fmt.Sprintf(`{"caller":%q,"account":%q,"amount":"5"}`, admin.Hex(), trader.Hex()), trader)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTransferAuthenticatedFrom(t *testing.T) {
	h := newBalanceHandler()
	other := common.HexToAddress("0xb0b0000000000000000000000000000000000000")

	w := postJSON(t, h.Credit, "/api/balances/credit",
		fmt.Sprintf(`{"caller":%q,"account":%q,"amount":"100"}`, admin.Hex(), trader.Hex()))
	require.Equal(t, http.StatusOK, w.Code)

	// Authenticated as other; spending from trader is rejected.
	w = postAs(t, h.Transfer, "/api/balances/transfer",
		fmt.Sprintf(`{"from":%q,"to":%q,"amount":"10"}`, trader.Hex(), other.Hex()), other)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postAs(t, h.Transfer, "/api/balances/transfer",
		fmt.Sprintf(`{"from":%q,"to":%q,"amount":"10"}`, trader.Hex(), other.Hex()), trader)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestGetBalanceCollateralShorthand(t *testing.T) {
	h := newBalanceHandler()

	w := postJSON(t, h.Credit, "/api/balances/credit",
		fmt.Sprintf(`{"caller":%q,"account":%q,"amount":"250"}`, admin.Hex(), trader.Hex()))
	require.Equal(t, http.StatusOK, w.Code)

	w2 := getBalance(t, h, trader.Hex(), "collateral")
	require.Equal(t, http.StatusOK, w2.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &resp))
	assert.Equal(t, "250", resp["balance"])

	// Unknown assets read as zero, not as an error.
	w3 := getBalance(t, h, trader.Hex(), common.HexToHash("0xbeef").Hex())
	require.Equal(t, http.StatusOK, w3.Code)
	require.NoError(t, json.Unmarshal(w3.Body.Bytes(), &resp))
	assert.Equal(t, "0", resp["balance"])
}

func TestTransferEndpoint(t *testing.T) {
	h := newBalanceHandler()
	other := common.HexToAddress("0xb0b0000000000000000000000000000000000000")

	w := postJSON(t, h.Credit, "/api/balances/credit",
		fmt.Sprintf(`{"caller":%q,"account":%q,"amount":"100"}`, admin.Hex(), trader.Hex()))
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, h.Transfer, "/api/balances/transfer",
		fmt.Sprintf(`{"from":%q,"to":%q,"amount":"60"}`, trader.Hex(), other.Hex()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Overdraft maps to 402 and moves nothing.
	w = postJSON(t, h.Transfer, "/api/balances/transfer",
		fmt.Sprintf(`{"from":%q,"to":%q,"amount":"41"}`, trader.Hex(), other.Hex()))
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var resp map[string]string
	w2 := getBalance(t, h, trader.Hex(), "collateral")
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &resp))
	assert.Equal(t, "40", resp["balance"])
}
