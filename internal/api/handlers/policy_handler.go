package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Estalvo/GeminiV26-sub001/internal/api/response"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
)

// PolicySource is implemented by *config.Catalog
type PolicySource interface {
	Keys() []string
	Policy(symbol string) (sizing.Policy, error)
	Instrument(symbol string) (sizing.Instrument, error)
}

// PolicyHandler evaluates sizing policies without trading
type PolicyHandler struct {
	policies PolicySource
}

// NewPolicyHandler creates a new policy handler
func NewPolicyHandler(policies PolicySource) *PolicyHandler {
	return &PolicyHandler{policies: policies}
}

// EvaluationResponse is one policy evaluation
type EvaluationResponse struct {
	Symbol    string        `json:"symbol"`
	EntryType string        `json:"entry_type,omitempty"`
	Result    sizing.Result `json:"result"`
	Blocked   bool          `json:"blocked"`
}

// ListInstruments handles GET /api/instruments
func (h *PolicyHandler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	keys := h.policies.Keys()
	response.SuccessList(w, r, keys, len(keys))
}

// Evaluate handles GET /api/policy/{symbol}?score=80&entry_type=pullback
func (h *PolicyHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	p, err := h.policies.Policy(symbol)
	if err != nil {
		response.NotFound(w, r, err.Error())
		return
	}

	score := p.NeutralScore
	if raw := r.URL.Query().Get("score"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, r, "score must be an integer")
			return
		}
		score = v
	}
	entryType := r.URL.Query().Get("entry_type")
	res := p.Evaluate(score, entryType)

	response.Success(w, r, EvaluationResponse{
		Symbol:    p.Key,
		EntryType: entryType,
		Result:    res,
		Blocked:   res.Blocked(),
	})
}
