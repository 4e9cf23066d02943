// Package handler implements the HTTP API of the settlement core. Handlers
// decode requests, delegate to the core engines, and translate domain
// errors into HTTP status codes.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/server/middleware"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain errors to HTTP status codes and writes the
// response. Unrecognized errors become a 500 with a generic message.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrNotOracle):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownCondition):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyPrepared),
		errors.Is(err, domain.ErrAlreadyRegistered),
		errors.Is(err, domain.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrExpired),
		errors.Is(err, domain.ErrStale),
		errors.Is(err, domain.ErrBadSignature),
		errors.Is(err, domain.ErrInvalidVector),
		errors.Is(err, domain.ErrInvalidMatch),
		errors.Is(err, domain.ErrPriceNotCrossed),
		errors.Is(err, domain.ErrInvalidFill),
		errors.Is(err, domain.ErrInvalidPartition),
		errors.Is(err, domain.ErrNotResolved),
		errors.Is(err, domain.ErrOverflow):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes the request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// requestCaller resolves the acting address for a state-changing request.
// When the auth middleware attached an identity it is authoritative: a body
// address naming anyone else is rejected, so one key cannot act for another
// account. Unauthenticated deployments fall back to the body address. On
// failure the error response has been written and ok is false.
func requestCaller(w http.ResponseWriter, r *http.Request, body, field string) (common.Address, bool) {
	authed, authenticated := middleware.CallerFrom(r.Context())
	if !authenticated {
		addr, ok := parseAddress(body)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid "+field+" address")
			return common.Address{}, false
		}
		return addr, true
	}
	if body != "" {
		addr, ok := parseAddress(body)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid "+field+" address")
			return common.Address{}, false
		}
		if addr != authed {
			writeDomainError(w, fmt.Errorf("%s %s does not match authenticated caller: %w",
				field, addr.Hex(), domain.ErrUnauthorized))
			return common.Address{}, false
		}
	}
	return authed, true
}

// parseAddress parses a 0x-prefixed hex address.
func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// parseBig parses a non-negative decimal integer of arbitrary size.
func parseBig(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// parseCutoff extracts the "before" query parameter (RFC 3339), defaulting
// to now, and the "limit" parameter capped at 500.
func parseCutoff(r *http.Request) (time.Time, int) {
	q := r.URL.Query()

	before := time.Now().UTC()
	if v := q.Get("before"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			before = t
		}
	}

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	return before, limit
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
