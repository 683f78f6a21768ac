package http

import (
	"net/http"

	"github.com/fjod/corc-store/internal/store"
)

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Orders())
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req store.OrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := h.store.PlaceOrder(ctx, req)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}
