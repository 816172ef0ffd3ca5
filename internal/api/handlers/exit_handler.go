package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Estalvo/GeminiV26-sub001/internal/api/response"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
	exitsvc "github.com/Estalvo/GeminiV26-sub001/internal/service/exit"
)

// ExitHandler exposes the per-symbol exit engines
type ExitHandler struct {
	engines EngineRegistry
}

// NewExitHandler creates a new exit handler
func NewExitHandler(engines EngineRegistry) *ExitHandler {
	return &ExitHandler{engines: engines}
}

// ContextView is a context with its derived prices
type ContextView struct {
	*exit.Context
	Phase    exit.Phase      `json:"phase"`
	TP1Price decimal.Decimal `json:"tp1_price"`
	TP2Price decimal.Decimal `json:"tp2_price"`
}

func newContextView(c *exit.Context) ContextView {
	return ContextView{
		Context:  c,
		Phase:    c.Phase(),
		TP1Price: c.TP1Price(),
		TP2Price: c.TP2Price(),
	}
}

// ProfileResponse is the exit configuration in force for a symbol
type ProfileResponse struct {
	Symbol     string            `json:"symbol"`
	Profile    exit.Profile      `json:"profile"`
	Neutral    sizing.Result     `json:"neutral"`
	Instrument sizing.Instrument `json:"instrument"`
}

// RehydrateResponse reports how many positions were adopted
type RehydrateResponse struct {
	Symbol  string `json:"symbol"`
	Adopted int    `json:"adopted"`
	Managed int    `json:"managed"`
}

func (h *ExitHandler) engine(w http.ResponseWriter, r *http.Request) (*exitsvc.Engine, bool) {
	symbol := chi.URLParam(r, "symbol")
	e, err := h.engines.Engine(symbol)
	if err != nil {
		response.NotFound(w, r, "no exit engine for "+symbol)
		return nil, false
	}
	return e, true
}

// ListContexts handles GET /api/exit/{symbol}/contexts
func (h *ExitHandler) ListContexts(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	snapshot := e.Snapshot()
	views := make([]ContextView, 0, len(snapshot))
	for _, c := range snapshot {
		views = append(views, newContextView(c))
	}
	response.SuccessList(w, r, views, len(views))
}

// GetContext handles GET /api/exit/{symbol}/contexts/{positionId}
func (h *ExitHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	positionID := chi.URLParam(r, "positionId")
	c, found := e.Context(positionID)
	if !found {
		response.NotFound(w, r, fmt.Errorf("%w: position %s", exit.ErrContextNotFound, positionID).Error())
		return
	}
	response.Success(w, r, newContextView(c))
}

// GetProfile handles GET /api/exit/{symbol}/profile
func (h *ExitHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	response.Success(w, r, ProfileResponse{
		Symbol:     e.Symbol(),
		Profile:    e.Profile(),
		Neutral:    e.Policy().Neutral(),
		Instrument: e.Instrument(),
	})
}

// Rehydrate handles POST /api/exit/{symbol}/rehydrate
func (h *ExitHandler) Rehydrate(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	n, err := e.Rehydrate(r.Context())
	if err != nil {
		if errors.Is(err, exit.ErrHostRejected) {
			response.ExecutionHostError(w, r, err)
			return
		}
		response.InternalError(w, r, err)
		return
	}

	log.Info().Str("symbol", e.Symbol()).Int("adopted", n).Msg("Rehydration requested via API")

	response.Success(w, r, RehydrateResponse{
		Symbol:  e.Symbol(),
		Adopted: n,
		Managed: e.Len(),
	})
}
