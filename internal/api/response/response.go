package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Estalvo/GeminiV26-sub001/internal/api/middleware"
)

// SuccessResponse represents a successful API response
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// Meta represents metadata in response
type Meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
	Count     int       `json:"count,omitempty"`
}

// JSON writes v with status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func meta(r *http.Request) Meta {
	return Meta{
		RequestID: middleware.GetRequestID(r),
		Timestamp: time.Now(),
	}
}

// Success sends a successful response with data
func Success(w http.ResponseWriter, r *http.Request, data any) {
	JSON(w, http.StatusOK, SuccessResponse{Data: data, Meta: meta(r)})
}

// SuccessList sends a successful response with list data and count
func SuccessList(w http.ResponseWriter, r *http.Request, data any, count int) {
	m := meta(r)
	m.Count = count
	JSON(w, http.StatusOK, SuccessResponse{Data: data, Meta: m})
}

// Created sends a 201 Created response
func Created(w http.ResponseWriter, r *http.Request, data any, message string) {
	m := meta(r)
	m.Message = message
	JSON(w, http.StatusCreated, SuccessResponse{Data: data, Meta: m})
}

// QueryInt reads a positive integer query parameter, def when absent or invalid
func QueryInt(r *http.Request, name string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
