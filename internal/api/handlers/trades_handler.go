package handlers

import (
	"context"
	"net/http"

	"github.com/Estalvo/GeminiV26-sub001/internal/api/response"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
)

// TradeLister is implemented by the postgres repository and the in-memory recent sink
type TradeLister interface {
	ListRecent(ctx context.Context, symbol string, limit int) ([]*exit.TradeRecord, error)
}

// TradesHandler serves closed trade records
type TradesHandler struct {
	trades TradeLister
}

// NewTradesHandler creates a new trades handler
func NewTradesHandler(trades TradeLister) *TradesHandler {
	return &TradesHandler{trades: trades}
}

// List handles GET /api/trades?symbol=EURUSD&limit=50
func (h *TradesHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.trades == nil {
		response.Unavailable(w, r, "trade records are not retained")
		return
	}

	symbol := r.URL.Query().Get("symbol")
	limit := response.QueryInt(r, "limit", 50, 500)

	records, err := h.trades.ListRecent(r.Context(), symbol, limit)
	if err != nil {
		response.InternalError(w, r, err)
		return
	}
	if records == nil {
		records = []*exit.TradeRecord{}
	}
	response.SuccessList(w, r, records, len(records))
}
