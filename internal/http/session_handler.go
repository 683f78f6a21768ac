package http

import (
	"net/http"

	"github.com/fjod/corc-store/internal/domain"
)

type LoginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponseDTO struct {
	Identity *domain.Identity `json:"identity"`
	Token    string           `json:"token,omitempty"`
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, SessionResponseDTO{Identity: h.store.Identity(), Token: h.store.Token()})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req domain.Registration
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.store.Register(ctx, req)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, SessionResponseDTO{Identity: &id, Token: h.store.Token()})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req LoginRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.store.Login(ctx, req.Email, req.Password)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, SessionResponseDTO{Identity: &id, Token: h.store.Token()})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if err := h.store.Logout(ctx); err != nil {
		handleStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateProfile takes a partial object; only name, phone and avatar are applied.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var fields map[string]any
	if !decodeJSON(w, r, &fields) {
		return
	}
	id, err := h.store.UpdateProfile(ctx, fields)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, id)
}
