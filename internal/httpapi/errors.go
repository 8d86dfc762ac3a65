package httpapi

import (
	"encoding/json"
	"net/http"

	"kokorod/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// detailer is implemented by errors carrying caller-facing detail.
type detailer interface {
	ErrorDetail() string
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg, detail, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Detail: detail, RequestID: requestID})
}
