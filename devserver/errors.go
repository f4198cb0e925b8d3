package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Error codes, matching what real backends put in error_code.
const (
	codeInvalidSession       = "InvalidSession"
	codeAuthProviderNotFound = "AuthProviderNotFound"
	codeInvalidPassword      = "InvalidPassword"
	codeAccountNameInUse     = "AccountNameInUse"
	codeIdentityInUse        = "IdentityAlreadyExists"
	codeFunctionNotFound     = "FunctionNotFound"
	codeFunctionExecution    = "FunctionExecutionError"
	codeInvalidParameter     = "InvalidParameter"
	codeTooManyRequests      = "TooManyRequests"
	codeUnknown              = "Unknown"
)

const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, ErrorCode: code})
}

func writeInvalidSession(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, codeInvalidSession, "invalid session")
}

// decodeJSON reads a bounded JSON body into T, writing a 400 on failure.
// An empty body decodes to the zero value.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeInvalidParameter, "invalid request body")
		return v, false
	}
	return v, true
}
