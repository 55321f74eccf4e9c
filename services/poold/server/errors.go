package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"coverpool/native/pool"
)

type errorBody struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// errBadRequest marks malformed input caught before the ledger is called.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps ledger error kinds onto HTTP statuses.
func statusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	switch pool.KindOf(err) {
	case pool.KindValidation:
		return http.StatusBadRequest
	case pool.KindState:
		return http.StatusConflict
	case pool.KindInvariant:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func reasonFor(err error) string {
	if errors.Is(err, errBadRequest) {
		return "BAD_REQUEST"
	}
	if reason := pool.ReasonOf(err); reason != "" {
		return reason
	}
	return "INTERNAL"
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Code: status, Reason: reasonFor(err), Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}
