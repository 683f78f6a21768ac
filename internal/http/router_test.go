package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/corc-store/internal/auth"
	"github.com/fjod/corc-store/internal/catalog"
	"github.com/fjod/corc-store/internal/checkout"
	"github.com/fjod/corc-store/internal/domain"
	"github.com/fjod/corc-store/internal/metrics"
	"github.com/fjod/corc-store/internal/persist"
	"github.com/fjod/corc-store/internal/snapshot"
	"github.com/fjod/corc-store/internal/store"
	"github.com/fjod/corc-store/internal/toast"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	accounts := auth.NewSnapshotAccounts(snapshot.NewMemoryStore(), zerolog.Nop())
	provider := auth.NewService(accounts, auth.NewTokens("test-secret", time.Hour), auth.Options{Cost: bcrypt.MinCost}, zerolog.Nop())
	require.NoError(t, provider.EnsureAdmin(context.Background(), "founder1"))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	bus := toast.NewBus(time.Minute)
	t.Cleanup(bus.Close)

	svc, err := store.New(store.Options{
		Backend: persist.NewInMemory(),
		Device:  snapshot.NewMemoryStore(),
		Auth:    provider,
		Source:  catalog.NewMockAPI(catalog.Delays{}),
		Toasts:  bus,
		Metrics: m,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)
	t.Cleanup(func() {
		cancel()
		svc.Close()
	})

	return NewRouter(NewHandler(svc, 5*time.Second, zerolog.Nop()), RouterConfig{
		Service:        "storefront-test",
		RequestTimeout: 5 * time.Second,
		Metrics:        m,
		Gatherer:       reg,
		Logger:         zerolog.Nop(),
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var address = domain.Address{FirstName: "Ada", LastName: "Lovelace", Street: "12 St James", City: "London", Zip: "SW1"}

func TestHealth(t *testing.T) {
	h := setupRouter(t)
	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListProducts(t *testing.T) {
	h := setupRouter(t)

	rec := do(t, h, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Product](t, rec), 6)

	rec = do(t, h, http.MethodGet, "/api/v1/products?category=Outerwear&sort=high", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ps := decode[[]domain.Product](t, rec)
	require.Len(t, ps, 2)
	assert.Equal(t, int64(5), ps[0].ID)

	rec = do(t, h, http.MethodGet, "/api/v1/products?q=kyoto", nil)
	assert.Len(t, decode[[]domain.Product](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/v1/products?sort=random", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/products/categories", nil)
	assert.Contains(t, decode[[]string](t, rec), catalog.AllCategories)
}

func TestGetProduct(t *testing.T) {
	h := setupRouter(t)
	do(t, h, http.MethodGet, "/api/v1/products", nil)

	rec := do(t, h, http.MethodGet, "/api/v1/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/products/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodGet, "/api/v1/products/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decode[domain.Product](t, rec).ID)

	rec = do(t, h, http.MethodGet, "/api/v1/recently-viewed", nil)
	assert.Len(t, decode[[]domain.ViewedProduct](t, rec), 1)
}

func TestCartAndCheckoutFlow(t *testing.T) {
	h := setupRouter(t)
	do(t, h, http.MethodGet, "/api/v1/products", nil)

	rec := do(t, h, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1, Size: "M"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, decode[CartResponseDTO](t, rec).Count)

	rec = do(t, h, http.MethodPatch, "/api/v1/cart/items/1-M", UpdateQuantityRequestDTO{Delta: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decode[CartResponseDTO](t, rec)
	assert.Equal(t, 3, cart.Count)
	assert.True(t, decimal.NewFromInt(165).Equal(cart.Total))

	rec = do(t, h, http.MethodGet, "/api/v1/cart/quote?code=CORC20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decimal.NewFromInt(132).Equal(decode[checkout.Quote](t, rec).Total))

	rec = do(t, h, http.MethodGet, "/api/v1/cart/quote?code=BOGUS", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Invalid Code", decode[checkout.Quote](t, rec).Message)

	rec = do(t, h, http.MethodPost, "/api/v1/orders", store.OrderRequest{Shipping: &address, PromoCode: "CORC20"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[domain.Order](t, rec)
	assert.True(t, decimal.NewFromInt(132).Equal(order.Total))

	rec = do(t, h, http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, 0, decode[CartResponseDTO](t, rec).Count)
	rec = do(t, h, http.MethodGet, "/api/v1/orders", nil)
	assert.Len(t, decode[[]domain.Order](t, rec), 1)

	rec = do(t, h, http.MethodPost, "/api/v1/orders", store.OrderRequest{Shipping: &address})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "empty_cart", decode[ErrorResponse](t, rec).Code)
}

func TestOversellIsConflict(t *testing.T) {
	h := setupRouter(t)
	do(t, h, http.MethodGet, "/api/v1/products", nil)
	for range 4 {
		do(t, h, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 5})
	}
	rec := do(t, h, http.MethodPost, "/api/v1/orders", store.OrderRequest{Shipping: &address})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_stock", decode[ErrorResponse](t, rec).Code)
}

func TestSessionFlow(t *testing.T) {
	h := setupRouter(t)
	registration := domain.Registration{Name: "Ada", Email: "ada@example.com", Password: "secret1"}

	rec := do(t, h, http.MethodPost, "/api/v1/session/register", registration)
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decode[SessionResponseDTO](t, rec)
	require.NotNil(t, sess.Identity)
	assert.NotEmpty(t, sess.Token)

	rec = do(t, h, http.MethodPost, "/api/v1/session/register", registration)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/session/register",
		domain.Registration{Name: "Bob", Email: "bob@example.com", Password: "123"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "weak_credential", decode[ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPatch, "/api/v1/session/profile", map[string]any{"name": "Ada L.", "isAdmin": true})
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[domain.Identity](t, rec)
	assert.Equal(t, "Ada L.", id.Name)
	assert.False(t, id.IsAdmin)

	rec = do(t, h, http.MethodDelete, "/api/v1/session/", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/session/", nil)
	assert.Nil(t, decode[SessionResponseDTO](t, rec).Identity)

	rec = do(t, h, http.MethodPost, "/api/v1/session/login", LoginRequestDTO{Email: "ada@example.com", Password: "wrong1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/session/login", LoginRequestDTO{Email: "ada@example.com", Password: "secret1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	h := setupRouter(t)
	do(t, h, http.MethodGet, "/api/v1/products", nil)
	p := domain.Product{Name: "Cap", Category: "Hats", Price: decimal.NewFromInt(30), Stock: 3, ImageURLs: []string{"x.jpg"}}

	rec := do(t, h, http.MethodPost, "/api/v1/products", p)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/v1/products/1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/session/register",
		domain.Registration{Name: "Mallory", Email: "admin@corc.com", Password: "founder1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/session/login", LoginRequestDTO{Email: "admin@corc.com", Password: "founder1"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/products", p)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[domain.Product](t, rec)

	rec = do(t, h, http.MethodDelete, fmt.Sprintf("/api/v1/products/%d", created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/products/seed", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProfileCollections(t *testing.T) {
	h := setupRouter(t)
	do(t, h, http.MethodGet, "/api/v1/products", nil)

	rec := do(t, h, http.MethodPost, "/api/v1/wishlist/3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[WishlistToggleResponseDTO](t, rec).Saved)
	assert.Len(t, decode[[]domain.Product](t, do(t, h, http.MethodGet, "/api/v1/wishlist", nil)), 1)

	rec = do(t, h, http.MethodPost, "/api/v1/addresses", address)
	require.Equal(t, http.StatusCreated, rec.Code)
	a := decode[domain.Address](t, rec)
	rec = do(t, h, http.MethodDelete, "/api/v1/addresses/"+a.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/cards",
		domain.CardInput{Number: "5555444433331111", Expiry: "01/29", CVC: "321"})
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decode[domain.Card](t, rec)
	assert.Equal(t, "1111", c.Last4)
	assert.NotContains(t, rec.Body.String(), "5555444433331111")

	rec = do(t, h, http.MethodPost, "/api/v1/products/1/reviews", ReviewRequestDTO{Rating: 5, Comment: "fits"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, decode[[]domain.Review](t, do(t, h, http.MethodGet, "/api/v1/products/1/reviews", nil)), 1)
}

func TestToastsAndUI(t *testing.T) {
	h := setupRouter(t)
	do(t, h, http.MethodGet, "/api/v1/products", nil)
	do(t, h, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{ProductID: 1})

	ts := decode[[]domain.Toast](t, do(t, h, http.MethodGet, "/api/v1/toasts", nil))
	require.Len(t, ts, 1)
	assert.Equal(t, "Added to Cart", ts[0].Message)

	rec := do(t, h, http.MethodDelete, fmt.Sprintf("/api/v1/toasts/%d", ts[0].ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, decode[[]domain.Toast](t, do(t, h, http.MethodGet, "/api/v1/toasts", nil)))
	rec = do(t, h, http.MethodDelete, "/api/v1/toasts/x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ui := decode[store.UIState](t, do(t, h, http.MethodGet, "/api/v1/ui", nil))
	assert.True(t, ui.CartOpen)
	open := true
	closed := false
	ui = decode[store.UIState](t, do(t, h, http.MethodPatch, "/api/v1/ui", UIPatchDTO{CartOpen: &closed, MenuOpen: &open}))
	assert.Equal(t, store.UIState{MenuOpen: true}, ui)
}

func TestInvalidJSONBody(t *testing.T) {
	h := setupRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, rec).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupRouter(t)
	do(t, h, http.MethodGet, "/health", nil)
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_http_requests_total")
}

func TestHandleStoreError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{domain.ErrDuplicateIdentity, http.StatusConflict, "duplicate_identity"},
		{domain.ErrWeakCredential, http.StatusUnprocessableEntity, "weak_credential"},
		{fmt.Errorf("admin only: %w", domain.ErrUnauthorized), http.StatusForbidden, "unauthorized"},
		{fmt.Errorf("%w: %w", domain.ErrOrderTransactionFailed, domain.ErrInsufficientStock), http.StatusConflict, "insufficient_stock"},
		{fmt.Errorf("%w: boom", domain.ErrOrderTransactionFailed), http.StatusBadGateway, "order_transaction_failed"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		handleStoreError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		body := decode[ErrorResponse](t, rec)
		assert.Equal(t, tc.code, body.Code)
		assert.Equal(t, domain.Describe(tc.err), body.Error)
	}
}
