package http

import (
	"net/http"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type AddItemRequestDTO struct {
	ProductID int64  `json:"productId"`
	Size      string `json:"size"`
}

type UpdateQuantityRequestDTO struct {
	Delta int `json:"delta"`
}

type CartResponseDTO struct {
	Lines []domain.CartLine `json:"lines"`
	Total decimal.Decimal   `json:"total"`
	Count int               `json:"count"`
}

func (h *Handler) cartResponse() CartResponseDTO {
	return CartResponseDTO{
		Lines: h.store.Cart(),
		Total: h.store.CartTotal(),
		Count: h.store.CartCount(),
	}
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId must be positive")
		return
	}
	if _, err := h.store.AddToCart(ctx, req.ProductID, req.Size); err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.cartResponse())
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.store.UpdateQuantity(ctx, chi.URLParam(r, "line_key"), req.Delta); err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if err := h.store.RemoveFromCart(ctx, chi.URLParam(r, "line_key")); err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse())
}

// Quote prices the cart with the promo code in ?code=. An invalid code is reported with the
// unchanged total.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.store.Quote(r.URL.Query().Get("code"))
	if err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, q)
		return
	}
	respondJSON(w, http.StatusOK, q)
}
