package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/caseledger/auth/pkg/httpx"
)

// ErrorEnvelope is the uniform error body for authentication failures. The
// message is deliberately generic: clients get the same envelope whether the
// token was expired, revoked, or forged, so failure kinds cannot be probed
// from outside. The traceId correlates the response with the server-side
// audit log entry that does carry the real reason.
type ErrorEnvelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	TraceID   string `json:"traceId"`
}

// NewTraceID mints the correlation id embedded in error envelopes.
func NewTraceID() string { return uuid.NewString() }

// WriteUnauthorized writes the generic 401 envelope and returns the traceId
// so the caller can log it alongside the actual failure kind.
func WriteUnauthorized(w http.ResponseWriter) string {
	traceID := NewTraceID()
	httpx.WriteJSON(w, http.StatusUnauthorized, ErrorEnvelope{
		Code:      http.StatusUnauthorized,
		Message:   "authentication required",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TraceID:   traceID,
	})
	return traceID
}

// WriteBadRequest writes a 400 envelope for unparseable requests.
func WriteBadRequest(w http.ResponseWriter, message string) {
	httpx.WriteJSON(w, http.StatusBadRequest, ErrorEnvelope{
		Code:      http.StatusBadRequest,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TraceID:   NewTraceID(),
	})
}
