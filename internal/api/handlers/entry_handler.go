package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Estalvo/GeminiV26-sub001/internal/api/response"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
	"github.com/Estalvo/GeminiV26-sub001/internal/service/entry"
)

// Opener is implemented by *entry.Service
type Opener interface {
	Open(ctx context.Context, req entry.Request) (*exit.Context, error)
}

// EntryHandler accepts entry decisions
type EntryHandler struct {
	opener Opener
}

// NewEntryHandler creates a new entry handler
func NewEntryHandler(opener Opener) *EntryHandler {
	return &EntryHandler{opener: opener}
}

// OpenRequest represents POST /api/entries request
type OpenRequest struct {
	Symbol    string `json:"symbol"`
	Direction string `json:"direction"`
	Score     int    `json:"score"`
	EntryType string `json:"entry_type"`
	Reason    string `json:"reason"`
}

// Open handles POST /api/entries
func (h *EntryHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body")
		return
	}
	if req.Symbol == "" {
		response.BadRequest(w, r, "symbol is required")
		return
	}

	c, err := h.opener.Open(r.Context(), entry.Request{
		Symbol:    req.Symbol,
		Direction: exit.Direction(req.Direction),
		Score:     req.Score,
		EntryType: req.EntryType,
		Reason:    req.Reason,
	})
	if err != nil {
		writeEntryError(w, r, err)
		return
	}

	response.Created(w, r, newContextView(c), "position opened")
}

func writeEntryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, exit.ErrInvalidDirection):
		response.BadRequest(w, r, err.Error())
	case errors.Is(err, sizing.ErrUnconfiguredInstrument):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, entry.ErrEntryBlocked),
		errors.Is(err, sizing.ErrVolumeBelowMinimum),
		errors.Is(err, sizing.ErrNonPositiveRisk):
		response.BusinessRuleViolation(w, r, err.Error())
	case errors.Is(err, exit.ErrVolatilityUnavailable),
		errors.Is(err, sizing.ErrInvalidStopDistance):
		response.Conflict(w, r, err.Error())
	case errors.Is(err, exit.ErrHostRejected):
		response.ExecutionHostError(w, r, err)
	default:
		response.InternalError(w, r, err)
	}
}
