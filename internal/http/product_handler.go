package http

import (
	"net/http"
	"strings"

	"github.com/fjod/corc-store/internal/catalog"
	"github.com/fjod/corc-store/internal/domain"
)

// ListProducts loads the catalog on first use, then filters by category, sort or search query.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if _, err := h.store.EnsureCatalog(ctx); err != nil {
		handleStoreError(w, err)
		return
	}

	q := r.URL.Query()
	if query := strings.TrimSpace(q.Get("q")); query != "" {
		respondJSON(w, http.StatusOK, h.store.Search(query))
		return
	}
	order, ok := catalog.ParseSortOrder(q.Get("sort"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_sort", "sort must be newest, low or high")
		return
	}
	respondJSON(w, http.StatusOK, h.store.Browse(q.Get("category"), order))
}

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Categories())
}

// GetProduct returns the product and records the view.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	id, ok := int64Param(w, r, "product_id")
	if !ok {
		return
	}
	p, err := h.store.ViewProduct(ctx, id)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) RecentlyViewed(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.RecentlyViewed())
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req domain.Product
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.store.AddProduct(ctx, req)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	id, ok := int64Param(w, r, "product_id")
	if !ok {
		return
	}
	var req domain.Product
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = id
	p, err := h.store.UpdateProduct(ctx, req)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	id, ok := int64Param(w, r, "product_id")
	if !ok {
		return
	}
	if err := h.store.DeleteProduct(ctx, id); err != nil {
		handleStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SeedCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	ps, err := h.store.SeedCatalog(ctx)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ps)
}

func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "product_id")
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.store.ReviewsFor(id))
}

type ReviewRequestDTO struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	id, ok := int64Param(w, r, "product_id")
	if !ok {
		return
	}
	var req ReviewRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	review, err := h.store.AddReview(ctx, domain.Review{ProductID: id, Rating: req.Rating, Comment: req.Comment})
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, review)
}
