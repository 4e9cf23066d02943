package handler

import (
	"encoding/json"
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

	"github.com/alanyoungcy/settlecore/internal/registry"
	"github.com/alanyoungcy/settlecore/internal/store/memory"
)

var (
	admin      = common.HexToAddress("0xAd1100000000000000000000000000000000000A")
	oracle     = common.HexToAddress("0x0Ac1e0000000000000000000000000000000000B")
	outsider   = common.HexToAddress("0x00000000000000000000000000000000000000EE")
	collateral = common.HexToAddress("0xaDD98F6E5a11a337870350dDb72eDaDFB1DFc3cc")
	questionID = common.HexToHash("0x1234000000000000000000000000000000000000000000000000000000000000")
)

func newConditionHandler() *ConditionHandler {
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(store, admin, collateral, nil, logger)
	return NewConditionHandler(reg, store, logger)
}

func postJSON(t *testing.T, h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func prepareBody(caller common.Address) string {
	return fmt.Sprintf(`{"caller":%q,"oracle":%q,"question_id":%q,"outcome_slots":2}`,
		caller.Hex(), oracle.Hex(), questionID.Hex())
}

func TestPrepareAndGetCondition(t *testing.T) {
	h := newConditionHandler()

	w := postJSON(t, h.PrepareCondition, "/api/conditions", prepareBody(admin))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created conditionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, oracle.Hex(), created.Oracle)
	assert.Equal(t, 2, created.OutcomeSlots)
	assert.Nil(t, created.ResolvedAt)

	req := httptest.NewRequest(http.MethodGet, "/api/conditions/"+created.ID, nil)
	req.SetPathValue("id", created.ID)
	w2 := httptest.NewRecorder()
	h.GetCondition(w2, req)
	require.Equal(t, http.StatusOK, w2.Code)

	var got conditionResponse
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
}

func TestPrepareConditionUnauthorized(t *testing.T) {
	h := newConditionHandler()

	w := postJSON(t, h.PrepareCondition, "/api/conditions", prepareBody(outsider))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPrepareConditionDuplicate(t *testing.T) {
	h := newConditionHandler()

	w := postJSON(t, h.PrepareCondition, "/api/conditions", prepareBody(admin))
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, h.PrepareCondition, "/api/conditions", prepareBody(admin))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetConditionUnknown(t *testing.T) {
	h := newConditionHandler()

	id := common.HexToHash("0xdead").Hex()
	req := httptest.NewRequest(http.MethodGet, "/api/conditions/"+id, nil)
	req.SetPathValue("id", id)
	w := httptest.NewRecorder()
	h.GetCondition(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterPairAndReportPayouts(t *testing.T) {
	h := newConditionHandler()

	w := postJSON(t, h.PrepareCondition, "/api/conditions", prepareBody(admin))
	require.Equal(t, http.StatusCreated, w.Code)
	var created conditionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	pairReq := httptest.NewRequest(http.MethodPost, "/api/conditions/"+created.ID+"/pair",
		strings.NewReader(fmt.Sprintf(`{"caller":%q}`, admin.Hex())))
	pairReq.SetPathValue("id", created.ID)
	pw := httptest.NewRecorder()
	h.RegisterPair(pw, pairReq)
	require.Equal(t, http.StatusCreated, pw.Code, pw.Body.String())

	var pair map[string]string
	require.NoError(t, json.Unmarshal(pw.Body.Bytes(), &pair))
	assert.NotEmpty(t, pair["yes"])
	assert.NotEmpty(t, pair["no"])
	assert.NotEqual(t, pair["yes"], pair["no"])

	// Wrong caller cannot resolve.
	payouts := func(caller common.Address) string {
		return fmt.Sprintf(`{"caller":%q,"question_id":%q,"payouts":[1,0]}`, caller.Hex(), questionID.Hex())
	}
	w = postJSON(t, h.ReportPayouts, "/api/payouts", payouts(admin))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postJSON(t, h.ReportPayouts, "/api/payouts", payouts(oracle))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resolved conditionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resolved))
	assert.Equal(t, []uint64{1, 0}, resolved.Payouts)
	assert.NotNil(t, resolved.ResolvedAt)

	// Resolving twice conflicts.
	w = postJSON(t, h.ReportPayouts, "/api/payouts", payouts(oracle))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBodyValidation(t *testing.T) {
	h := newConditionHandler()

	// Unknown fields are rejected.
	w := postJSON(t, h.PrepareCondition, "/api/conditions", `{"caller":"x","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Malformed addresses are rejected before hitting the registry.
	w = postJSON(t, h.PrepareCondition, "/api/conditions",
		`{"caller":"not-an-address","oracle":"also-bad","question_id":"0x1","outcome_slots":2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
