package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// UIPatchDTO sets only the flags present.
type UIPatchDTO struct {
	CartOpen   *bool `json:"cartOpen"`
	SearchOpen *bool `json:"searchOpen"`
	MenuOpen   *bool `json:"menuOpen"`
}

func (h *Handler) GetUI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.UI())
}

func (h *Handler) PatchUI(w http.ResponseWriter, r *http.Request) {
	var req UIPatchDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CartOpen != nil {
		h.store.SetCartOpen(*req.CartOpen)
	}
	if req.SearchOpen != nil {
		h.store.SetSearchOpen(*req.SearchOpen)
	}
	if req.MenuOpen != nil {
		h.store.SetMenuOpen(*req.MenuOpen)
	}
	respondJSON(w, http.StatusOK, h.store.UI())
}

func (h *Handler) ListToasts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Toasts())
}

func (h *Handler) DismissToast(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "toast_id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_toast_id", "toast_id must be a positive integer")
		return
	}
	h.store.DismissToast(id)
	w.WriteHeader(http.StatusNoContent)
}
