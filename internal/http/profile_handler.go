package http

import (
	"net/http"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/go-chi/chi/v5"
)

type WishlistToggleResponseDTO struct {
	ProductID int64 `json:"productId"`
	Saved     bool  `json:"saved"`
}

func (h *Handler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Wishlist())
}

func (h *Handler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	id, ok := int64Param(w, r, "product_id")
	if !ok {
		return
	}
	saved, err := h.store.ToggleWishlist(ctx, id)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, WishlistToggleResponseDTO{ProductID: id, Saved: saved})
}

func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Addresses())
}

func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req domain.Address
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.store.AddAddress(ctx, req)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (h *Handler) RemoveAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if err := h.store.RemoveAddress(ctx, chi.URLParam(r, "address_id")); err != nil {
		handleStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Cards())
}

func (h *Handler) AddCard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req domain.CardInput
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.store.AddCard(ctx, req)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handler) RemoveCard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if err := h.store.RemoveCard(ctx, chi.URLParam(r, "card_id")); err != nil {
		handleStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
