// Package http is the JSON API over the storefront state service.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/corc-store/internal/store"
	"github.com/rs/zerolog"
)

type Handler struct {
	store   *store.Service
	timeout time.Duration
	log     zerolog.Logger
}

func NewHandler(s *store.Service, timeout time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		store:   s,
		timeout: timeout,
		log:     log,
	}
}

func (h *Handler) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}
