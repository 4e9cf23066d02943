package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/settlecore/internal/matcher"
	"github.com/alanyoungcy/settlecore/internal/server/middleware"
	"github.com/alanyoungcy/settlecore/internal/store/memory"
	"github.com/alanyoungcy/settlecore/internal/validator"
)

func newOrderHandler() *OrderHandler {
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := validator.New(store, 31337, common.HexToAddress("0x9CB495Ac087AA98D80a54C95121be52773704859"))
	m := matcher.New(store, v, collateral, nil, logger)
	return NewOrderHandler(m, logger)
}

func cancelBody(maker common.Address) string {
	return fmt.Sprintf(`{"maker":%q,"token_id":%q,"side":"buy","min_salt":"5"}`,
		maker.Hex(), common.HexToHash("0x01").Hex())
}

func postAs(t *testing.T, h http.HandlerFunc, target, body string, caller common.Address) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithCaller(req.Context(), caller))
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestCancelEnforcesAuthenticatedMaker(t *testing.T) {
	h := newOrderHandler()

	// An authenticated caller cannot advance another maker's watermark.
	w := postAs(t, h.Cancel, "/api/orders/cancel", cancelBody(trader), outsider)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	// The maker themselves can.
	w = postAs(t, h.Cancel, "/api/orders/cancel", cancelBody(trader), trader)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Omitting the body maker falls back to the authenticated identity.
	w = postAs(t, h.Cancel, "/api/orders/cancel",
		fmt.Sprintf(`{"token_id":%q,"side":"buy","min_salt":"6"}`, common.HexToHash("0x01").Hex()), trader)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestCancelUnauthenticatedUsesBodyMaker(t *testing.T) {
	h := newOrderHandler()

	w := postJSON(t, h.Cancel, "/api/orders/cancel", cancelBody(trader))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = postJSON(t, h.Cancel, "/api/orders/cancel", `{"maker":"junk","token_id":"0x01","side":"buy","min_salt":"1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
