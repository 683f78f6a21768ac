package store

import (
	"context"
	"testing"

	"github.com/fjod/corc-store/internal/catalog"
	"github.com/fjod/corc-store/internal/domain"
	"github.com/fjod/corc-store/internal/persist"
	"github.com/fjod/corc-store/internal/snapshot"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProduct(name string) domain.Product {
	return domain.Product{
		Name:      name,
		Category:  "Hats",
		Price:     decimal.NewFromInt(40),
		Stock:     7,
		ImageURLs: []string{"https://example.com/" + name + ".jpg"},
	}
}

func TestBrowseAndSearch(t *testing.T) {
	h := setupHarness(t, harnessOpts{})

	outer := h.svc.Browse("Outerwear", catalog.SortPriceAsc)
	require.Len(t, outer, 2)
	assert.Equal(t, int64(2), outer[0].ID)
	assert.Equal(t, int64(5), outer[1].ID)

	assert.Len(t, h.svc.Browse(catalog.AllCategories, catalog.SortNewest), 6)
	assert.Equal(t, int64(6), h.svc.Browse("", catalog.SortNewest)[0].ID)

	found := h.svc.Search("kyoto")
	require.Len(t, found, 1)
	assert.Equal(t, int64(5), found[0].ID)
	assert.Empty(t, h.svc.Search("zzz"))

	assert.Contains(t, h.svc.Categories(), "Hoodies")

	_, err := h.svc.ProductByID(99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProducts_ReturnsCopies(t *testing.T) {
	h := setupHarness(t, harnessOpts{})
	ps := h.svc.Products()
	ps[0].Stock = -1
	ps[0].ImageURLs[0] = "mutated"

	fresh := h.svc.Products()
	assert.NotEqual(t, -1, fresh[0].Stock)
	assert.NotEqual(t, "mutated", fresh[0].ImageURLs[0])
}

func TestAdmin_ProductLifecycle(t *testing.T) {
	h := setupHarness(t, harnessOpts{})
	ctx := context.Background()

	_, err := h.svc.AddProduct(ctx, newProduct("cap"))
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	register(t, h.svc, "Customer", "customer@example.com")
	_, err = h.svc.AddProduct(ctx, newProduct("cap"))
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = h.svc.Register(ctx, domain.Registration{Name: "Mallory", Email: "ADMIN@corc.com", Password: "secret1"})
	require.ErrorIs(t, err, domain.ErrDuplicateIdentity)

	admin := signInAdmin(t, h)
	require.True(t, admin.IsAdmin)

	created, err := h.svc.AddProduct(ctx, newProduct("cap"))
	require.NoError(t, err)
	assert.Greater(t, created.ID, int64(6))
	assert.Equal(t, "Product Created", lastToast(t, h.svc).Message)
	assert.Equal(t, created.ID, h.svc.Products()[0].ID)

	_, err = h.svc.AddProduct(ctx, domain.Product{Name: "no images"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	created.Stock = 1
	updated, err := h.svc.UpdateProduct(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Stock)
	assert.Equal(t, 1, stockOf(t, h.svc, created.ID))

	require.NoError(t, h.svc.DeleteProduct(ctx, created.ID))
	assert.Equal(t, "Product Deleted", lastToast(t, h.svc).Message)
	assert.ErrorIs(t, h.svc.DeleteProduct(ctx, created.ID), domain.ErrNotFound)
	assert.Len(t, h.svc.Products(), 6)
}

func TestAdmin_SeedCatalogReplacesProducts(t *testing.T) {
	h := setupHarness(t, harnessOpts{})
	ctx := context.Background()
	signInAdmin(t, h)

	_, err := h.svc.AddProduct(ctx, newProduct("cap"))
	require.NoError(t, err)
	require.NoError(t, h.svc.DeleteProduct(ctx, 1))

	seeded, err := h.svc.SeedCatalog(ctx)
	require.NoError(t, err)
	assert.Len(t, seeded, 6)
	assert.Len(t, h.svc.Products(), 6)
	_, err = h.svc.ProductByID(1)
	assert.NoError(t, err)
}

func TestViewProduct_HistoryIsDedupedAndCapped(t *testing.T) {
	h := setupHarness(t, harnessOpts{})
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3, 1} {
		_, err := h.svc.ViewProduct(ctx, id)
		require.NoError(t, err)
	}
	ids := func() []int64 {
		var out []int64
		for _, v := range h.svc.RecentlyViewed() {
			out = append(out, v.ID)
		}
		return out
	}
	assert.Equal(t, []int64{1, 3, 2}, ids())

	for _, id := range []int64{4, 5, 6, 2, 3} {
		_, err := h.svc.ViewProduct(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{3, 2, 6, 5, 4, 1}, ids())

	_, err := h.svc.ViewProduct(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLocal_StateSurvivesRestart(t *testing.T) {
	snapshots := snapshot.NewMemoryStore()
	device := snapshot.NewMemoryStore()
	provider := newAuth()
	ctx := context.Background()

	first := setupHarness(t, harnessOpts{backend: persist.NewLocal(snapshots, zerolog.Nop()), device: device, auth: provider})
	_, err := first.svc.AddToCart(ctx, 3, "S")
	require.NoError(t, err)
	_, err = first.svc.ViewProduct(ctx, 4)
	require.NoError(t, err)

	second := setupHarness(t, harnessOpts{backend: persist.NewLocal(snapshots, zerolog.Nop()), device: device, auth: provider})
	assert.Equal(t, int64(0), second.svc.loader.Fetches(), "catalog comes from the device")
	require.Len(t, second.svc.Cart(), 1)
	assert.Equal(t, "3-S", second.svc.Cart()[0].Key)
	require.Len(t, second.svc.RecentlyViewed(), 1)

	_, err = snapshots.Load(ctx, "corc-recent")
	assert.NoError(t, err)
}
