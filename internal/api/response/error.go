package response

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Estalvo/GeminiV26-sub001/internal/api/middleware"
)

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details
type ErrorDetail struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Error codes
const (
	ErrCodeInternalServer        = "INTERNAL_SERVER_ERROR"
	ErrCodeInvalidParameter      = "INVALID_PARAMETER"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeConflict              = "CONFLICT"
	ErrCodeUnavailable           = "SERVICE_UNAVAILABLE"
	ErrCodeExecutionHost         = "EXECUTION_HOST_ERROR"
	ErrCodeBusinessRuleViolation = "BUSINESS_RULE_VIOLATION"
)

// Error sends an error response
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	ErrorWithDetails(w, r, status, code, message, "")
}

// ErrorWithDetails sends an error response with additional details
func ErrorWithDetails(w http.ResponseWriter, r *http.Request, status int, code, message, details string) {
	resp := ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: middleware.GetRequestID(r),
			Timestamp: time.Now(),
		},
	}

	event := log.Warn()
	if status >= 500 {
		event = log.Error()
	}
	event.
		Str("request_id", resp.Error.RequestID).
		Str("error_code", code).
		Str("message", message).
		Str("details", details).
		Int("status", status).
		Msg("API error response")

	JSON(w, status, resp)
}

// BadRequest sends a 400 Bad Request error
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusBadRequest, ErrCodeInvalidParameter, message)
}

// NotFound sends a 404 Not Found error
func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusNotFound, ErrCodeNotFound, message)
}

// Conflict sends a 409 Conflict error
func Conflict(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusConflict, ErrCodeConflict, message)
}

// Unavailable sends a 503 error for a collaborator that is not wired
func Unavailable(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// BusinessRuleViolation sends a 422 error
func BusinessRuleViolation(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusUnprocessableEntity, ErrCodeBusinessRuleViolation, message)
}

// ExecutionHostError sends a 502 error for a host rejection
func ExecutionHostError(w http.ResponseWriter, r *http.Request, err error) {
	ErrorWithDetails(w, r, http.StatusBadGateway, ErrCodeExecutionHost, "Execution host error", err.Error())
}

// InternalError sends a 500 Internal Server Error
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	ErrorWithDetails(w, r, http.StatusInternalServerError, ErrCodeInternalServer, "An unexpected error occurred", details)
}
