package handlers

import (
	"net/http"

	"github.com/Estalvo/GeminiV26-sub001/internal/api/response"
	"github.com/Estalvo/GeminiV26-sub001/internal/service/pending"
)

// PendingHandler lists metadata parked before fills
type PendingHandler struct {
	store *pending.Store
}

// NewPendingHandler creates a new pending handler
func NewPendingHandler(store *pending.Store) *PendingHandler {
	return &PendingHandler{store: store}
}

// List handles GET /api/pending
func (h *PendingHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.store.Snapshot()
	if entries == nil {
		entries = []pending.Entry{}
	}
	response.SuccessList(w, r, entries, len(entries))
}
