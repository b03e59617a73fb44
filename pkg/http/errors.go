package http

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorResponse is the standard API error body
type ErrorResponse struct {
	Error      string `json:"error"`                 // Machine-readable error code
	Message    string `json:"message"`               // Human-readable message
	RetryAfter int    `json:"retryAfter,omitempty"`  // Minutes until the caller may retry
	UpgradeURL string `json:"upgradeUrl,omitempty"`  // Where to purchase access, on entitlement failures
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSONError(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

// WriteRateLimited writes a 429 carrying the wait time in both the body and
// the Retry-After header (in seconds, per RFC 9110).
func WriteRateLimited(w http.ResponseWriter, message string, retryAfterMinutes int) {
	if retryAfterMinutes > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterMinutes*60))
	}
	writeJSONError(w, http.StatusTooManyRequests, ErrorResponse{
		Error:      "rate_limited",
		Message:    message,
		RetryAfter: retryAfterMinutes,
	})
}

// WriteSubscriptionRequired writes a 403 with a pointer to the plans catalog.
func WriteSubscriptionRequired(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusForbidden, ErrorResponse{
		Error:      "subscription_required",
		Message:    message,
		UpgradeURL: "/api/v1/subscriptions/plans",
	})
}

func writeJSONError(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, "service_unavailable", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
