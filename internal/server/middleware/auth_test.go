package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	adminAddr  = common.HexToAddress("0xAd1100000000000000000000000000000000000A")
	traderAddr = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
)

// echoCaller writes the authenticated caller address, or "anonymous" when
// the request carries no identity.
func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if addr, ok := CallerFrom(r.Context()); ok {
			w.Write([]byte(addr.Hex()))
			return
		}
		w.Write([]byte("anonymous"))
	})
}

func TestAuthResolvesCallerFromKey(t *testing.T) {
	keys := map[string]common.Address{
		"admin-key":  adminAddr,
		"trader-key": traderAddr,
	}
	h := Auth(keys)(echoCaller())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer trader-key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, traderAddr.Hex(), w.Body.String())

	// Each key resolves to its own identity, not a shared one.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "admin-key")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, adminAddr.Hex(), w.Body.String())
}

func TestAuthRejectsUnknownKey(t *testing.T) {
	h := Auth(map[string]common.Address{"admin-key": adminAddr})(echoCaller())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Missing token entirely.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthDisabledWithoutKeys(t *testing.T) {
	h := Auth(nil)(echoCaller())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())
}
