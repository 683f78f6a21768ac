package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/fjod/corc-store/internal/checkout"
	"github.com/fjod/corc-store/internal/docstore"
	"github.com/fjod/corc-store/internal/domain"
	"github.com/fjod/corc-store/internal/events"
	"github.com/fjod/corc-store/internal/persist"
	"github.com/fjod/corc-store/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const orderIDAttempts = 20

var tracer = otel.Tracer("github.com/fjod/corc-store/internal/store")

// OrderRequest selects the shipping address, either a saved one by id or an inline one.
type OrderRequest struct {
	AddressID string          `json:"addressId,omitempty"`
	Shipping  *domain.Address `json:"shipping,omitempty"`
	PromoCode string          `json:"promoCode,omitempty"`
}

// Quote prices the current cart with code.
func (s *Service) Quote(code string) (checkout.Quote, error) {
	q, err := checkout.ApplyPromo(code, s.CartTotal())
	if err != nil {
		return q, s.fail(err)
	}
	return q, nil
}

func (s *Service) Orders() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Order, len(s.orders))
	for i, o := range s.orders {
		o.Items = slices.Clone(o.Items)
		out[i] = o
	}
	return out
}

// PlaceOrder records the order, empties the cart and decrements stock as one change. Either all
// three take effect or none does.
func (s *Service) PlaceOrder(ctx context.Context, req OrderRequest) (domain.Order, error) {
	ctx, span := tracer.Start(ctx, "store.PlaceOrder")
	defer span.End()
	log := logger.WithContext(ctx, s.log)

	s.ops.Lock()
	defer s.ops.Unlock()

	colls := []persist.Collection{persist.Orders, persist.Cart, persist.Products}
	var order domain.Order
	err := s.mutateAs(ctx, colls, func() ([]persist.Op, error) {
		o, ops, err := s.prepareOrderLocked(req)
		if err != nil {
			return nil, err
		}
		order = o
		s.orders = append([]domain.Order{o}, s.orders...)
		s.cart.Clear()
		products := cloneProducts(s.products)
		for id, qty := range o.Quantities() {
			if i := slices.IndexFunc(products, func(p domain.Product) bool { return p.ID == id }); i >= 0 {
				products[i].Stock -= qty
			}
		}
		s.products = products
		return ops, nil
	}, func(err error) error {
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			return fmt.Errorf("%w: %w: %w", domain.ErrOrderTransactionFailed, domain.ErrInsufficientStock, err)
		}
		return fmt.Errorf("%w: %w", domain.ErrOrderTransactionFailed, err)
	})
	if err != nil {
		reason := failureReason(err)
		s.metrics.OrderFailed(reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		log.Warn().Err(err).Str("reason", reason).Msg("order rejected")
		return domain.Order{}, err
	}

	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.Int("order.items", len(order.Items)),
		attribute.String("order.total", order.Total.String()),
	)
	s.metrics.OrderPlaced()
	s.recordOrderPlaced(ctx, order)
	s.toasts.Success("Order Placed Successfully")
	log.Info().Str("order_id", order.ID).Str("total", order.Total.String()).Msg("order placed")
	return order, nil
}

// prepareOrderLocked validates the checkout and builds the order and its document ops.
func (s *Service) prepareOrderLocked(req OrderRequest) (domain.Order, []persist.Op, error) {
	if s.cart.Empty() {
		return domain.Order{}, nil, domain.ErrEmptyCart
	}
	if s.remote && s.identity == nil {
		return domain.Order{}, nil, fmt.Errorf("%w: sign in to checkout", domain.ErrUnauthorized)
	}

	shipping, err := s.shippingLocked(req)
	if err != nil {
		return domain.Order{}, nil, err
	}
	// An unrecognized code prices the order at zero discount, as the quote already reported.
	q, err := checkout.ApplyPromo(req.PromoCode, s.cart.Total())
	if err != nil && !errors.Is(err, domain.ErrInvalidPromoCode) {
		return domain.Order{}, nil, err
	}

	byID := make(map[int64]domain.Product, len(s.products))
	for _, p := range s.products {
		byID[p.ID] = p
	}
	want := s.cart.Quantities()
	if err := checkout.CheckStock(byID, want); err != nil {
		return domain.Order{}, nil, err
	}

	id, err := s.uniqueOrderIDLocked()
	if err != nil {
		return domain.Order{}, nil, err
	}
	var owner string
	if s.identity != nil {
		owner = s.identity.UID
	}
	lines := s.cart.Lines()
	o := checkout.NewOrder(id, owner, lines, shipping, q, s.now())

	ops := []persist.Op{persist.Put(s.refLocked(persist.Orders), o.ID, encode(o), nil)}
	cartRef := s.refLocked(persist.Cart)
	for _, l := range lines {
		ops = append(ops, persist.Delete(cartRef, l.Key, encode(l)))
	}
	productRef := persist.GlobalRef(persist.Products)
	ids := make([]int64, 0, len(want))
	for pid := range want {
		ids = append(ids, pid)
	}
	slices.Sort(ids)
	for _, pid := range ids {
		ops = append(ops, persist.Increment(productRef, byID[pid].Key(), "stock", -int64(want[pid]), 0))
	}
	return o, ops, nil
}

func (s *Service) shippingLocked(req OrderRequest) (domain.Address, error) {
	if req.AddressID != "" {
		i := slices.IndexFunc(s.addresses, func(a domain.Address) bool { return a.ID == req.AddressID })
		if i < 0 {
			return domain.Address{}, fmt.Errorf("address %q: %w", req.AddressID, domain.ErrNotFound)
		}
		return s.addresses[i], nil
	}
	if req.Shipping == nil {
		return domain.Address{}, fmt.Errorf("%w: shipping address is required", domain.ErrInvalidInput)
	}
	if err := domain.Validate(*req.Shipping); err != nil {
		return domain.Address{}, err
	}
	return *req.Shipping, nil
}

func (s *Service) uniqueOrderIDLocked() (string, error) {
	for range orderIDAttempts {
		id := s.orderID()
		if !slices.ContainsFunc(s.orders, func(o domain.Order) bool { return o.ID == id }) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate an order id", domain.ErrOrderTransactionFailed)
}

// recordOrderPlaced queues the integration event. The order is already committed, so failures are
// only logged.
func (s *Service) recordOrderPlaced(ctx context.Context, o domain.Order) {
	if s.outbox == nil {
		return
	}
	ev, err := events.NewOrderPlaced(o)
	if err != nil {
		s.log.Error().Err(err).Str("order_id", o.ID).Msg("failed to build order event")
		return
	}
	if err := s.outbox.Add(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("order_id", o.ID).Msg("failed to queue order event")
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrOrderTransactionFailed):
		return "transaction"
	}
	return "other"
}
