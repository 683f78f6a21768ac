// Package store is the storefront state service: one explicitly constructed object that owns the
// read model, serializes every mutation, mirrors changes through a persistence strategy and merges
// inbound collection snapshots.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/fjod/corc-store/internal/auth"
	"github.com/fjod/corc-store/internal/cart"
	"github.com/fjod/corc-store/internal/catalog"
	"github.com/fjod/corc-store/internal/checkout"
	"github.com/fjod/corc-store/internal/domain"
	"github.com/fjod/corc-store/internal/events"
	"github.com/fjod/corc-store/internal/metrics"
	"github.com/fjod/corc-store/internal/persist"
	"github.com/fjod/corc-store/internal/snapshot"
	"github.com/fjod/corc-store/internal/toast"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	// RecentlyViewedLimit caps the history.
	RecentlyViewedLimit = 6

	inboundBuffer = 64
)

type Options struct {
	Backend persist.Backend
	// Device holds the persisted session. Nil keeps the session in memory only.
	Device  snapshot.Store
	Auth    auth.Provider
	Source  catalog.Source
	Toasts  *toast.Bus
	Outbox  events.Outbox
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	Now     func() time.Time
	OrderID func() string
}

// UIState holds the interface flags the state service exposes.
type UIState struct {
	CartOpen   bool `json:"cartOpen"`
	SearchOpen bool `json:"searchOpen"`
	MenuOpen   bool `json:"menuOpen"`
}

type snapshotEvent struct {
	epoch      uint64
	collection persist.Collection
	raw        json.RawMessage
}

type Service struct {
	backend persist.Backend
	device  snapshot.Store
	auth    auth.Provider
	source  catalog.Source
	loader  *catalog.Loader
	toasts  *toast.Bus
	outbox  events.Outbox
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
	orderID func() string
	// remote backends push snapshots and require an identity for owned writes
	remote bool

	// ops serializes mutating operations end to end.
	ops sync.Mutex

	mu        sync.RWMutex
	epoch     uint64
	identity  *domain.Identity
	token     string
	products  []domain.Product
	cart      *cart.Cart
	wishlist  []domain.Product
	orders    []domain.Order
	addresses []domain.Address
	cards     []domain.Card
	reviews   []domain.Review
	recent    []domain.ViewedProduct
	ui        UIState

	inflight map[persist.Collection]int
	deferred map[persist.Collection]snapshotEvent
	owned    []persist.Unwatch
	global   []persist.Unwatch

	inbound chan snapshotEvent
	life    context.Context
	stop    context.CancelFunc
	closed  sync.Once

	cancelSession func()
}

func New(opts Options) (*Service, error) {
	if opts.Backend == nil {
		return nil, errors.New("store: backend is required")
	}
	if opts.Auth == nil {
		return nil, errors.New("store: identity provider is required")
	}
	if opts.Source == nil {
		return nil, errors.New("store: catalog source is required")
	}
	if opts.Toasts == nil {
		opts.Toasts = toast.NewBus(toast.DefaultTTL)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OrderID == nil {
		opts.OrderID = checkout.NewOrderID
	}

	life, stop := context.WithCancel(context.Background())
	s := &Service{
		backend:  opts.Backend,
		device:   opts.Device,
		auth:     opts.Auth,
		source:   opts.Source,
		loader:   catalog.NewLoader(opts.Source),
		toasts:   opts.Toasts,
		outbox:   opts.Outbox,
		metrics:  opts.Metrics,
		log:      opts.Logger.With().Str("component", "store").Str("backend", opts.Backend.Name()).Logger(),
		now:      opts.Now,
		orderID:  opts.OrderID,
		remote:   persist.Watchable(opts.Backend),
		cart:     cart.New(nil),
		inflight: make(map[persist.Collection]int),
		deferred: make(map[persist.Collection]snapshotEvent),
		inbound:  make(chan snapshotEvent, inboundBuffer),
		life:     life,
		stop:     stop,
	}

	s.loader.OnFailure(s.catalogFailed)
	s.toasts.OnChange(func(ts []domain.Toast) { s.metrics.SetActiveToasts(len(ts)) })
	s.cancelSession = s.auth.OnSessionChange(func(id *domain.Identity) {
		if id == nil {
			s.metrics.SessionChanged("signed_out")
			return
		}
		s.metrics.SessionChanged("signed_in")
		s.log.Debug().Str("uid", id.UID).Bool("admin", id.IsAdmin).Msg("session changed")
	})
	return s, nil
}

// Start loads persisted state, restores a saved session and, for remote backends, starts the
// global subscriptions. Read failures fall back to empty collections.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	for _, c := range []persist.Collection{persist.Products, persist.Reviews} {
		s.loadLocked(ctx, persist.GlobalRef(c))
	}
	if !s.remote {
		for _, c := range persist.OwnedCollections() {
			s.loadLocked(ctx, persist.GlobalRef(c))
		}
	}
	s.mu.Unlock()

	if s.remote {
		for _, c := range []persist.Collection{persist.Products, persist.Reviews} {
			unwatch, err := s.backend.Watch(s.life, persist.GlobalRef(c), s.deliverFunc(0, c))
			if err != nil {
				s.log.Error().Err(err).Str("collection", string(c)).Msg("global subscription failed")
				continue
			}
			s.mu.Lock()
			s.global = append(s.global, unwatch)
			s.mu.Unlock()
		}
	}

	return s.Restore(ctx)
}

// Run merges inbound snapshots until ctx is done or the service is closed.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.life.Done():
			return nil
		case ev := <-s.inbound:
			s.mu.Lock()
			s.applyInboundLocked(ev)
			s.mu.Unlock()
		}
	}
}

// Close cancels every subscription. The toast bus stays with its owner.
func (s *Service) Close() {
	s.closed.Do(func() {
		s.mu.Lock()
		s.stopWatchesLocked()
		for _, u := range s.global {
			u()
		}
		s.global = nil
		s.mu.Unlock()
		s.cancelSession()
		s.stop()
	})
}

func (s *Service) deliverFunc(epoch uint64, c persist.Collection) func(json.RawMessage) {
	return func(raw json.RawMessage) {
		select {
		case s.inbound <- snapshotEvent{epoch: epoch, collection: c, raw: raw}:
		case <-s.life.Done():
		}
	}
}

func (s *Service) applyInboundLocked(ev snapshotEvent) {
	c := ev.collection
	if !c.Global() && ev.epoch != s.epoch {
		s.metrics.Snapshot(string(c), "stale")
		return
	}
	if s.inflight[c] > 0 {
		s.deferred[c] = ev
		s.metrics.Snapshot(string(c), "deferred")
		return
	}
	if err := s.replaceLocked(c, ev.raw); err != nil {
		s.log.Warn().Err(err).Str("collection", string(c)).Msg("undecodable snapshot, keeping last state")
		s.metrics.Snapshot(string(c), "invalid")
		return
	}
	s.metrics.Snapshot(string(c), "applied")
}

// settleLocked ends the in-flight window of colls and applies the latest deferred snapshot.
func (s *Service) settleLocked(colls []persist.Collection) {
	for _, c := range colls {
		s.inflight[c]--
		if s.inflight[c] > 0 {
			continue
		}
		delete(s.inflight, c)
		if ev, ok := s.deferred[c]; ok {
			delete(s.deferred, c)
			s.applyInboundLocked(ev)
		}
	}
}

// mutate runs one optimistic mutation. fn changes the read model under the lock and returns the
// document ops; on a failed commit the touched collections are restored.
func (s *Service) mutate(ctx context.Context, colls []persist.Collection, fn func() ([]persist.Op, error)) error {
	return s.mutateAs(ctx, colls, fn, nil)
}

// mutateAs is mutate with wrap applied to commit failures.
func (s *Service) mutateAs(
	ctx context.Context,
	colls []persist.Collection,
	fn func() ([]persist.Op, error),
	wrap func(error) error,
) error {
	s.mu.Lock()
	before := s.encodeLocked(colls)
	ops, err := fn()
	if err != nil {
		s.mu.Unlock()
		return s.fail(err)
	}
	ch := persist.Change{Ops: s.scopeLocked(ops), After: s.encodeLocked(colls), Before: before}
	touched := ch.Collections()
	for _, c := range touched {
		s.inflight[c]++
	}
	s.mu.Unlock()

	cerr := s.backend.Commit(ctx, ch)
	s.metrics.Commit(s.backend.Name(), cerr)

	s.mu.Lock()
	if cerr != nil {
		for _, c := range colls {
			if err := s.replaceLocked(c, before[c]); err != nil {
				s.log.Error().Err(err).Str("collection", string(c)).Msg("failed to revert optimistic change")
			}
		}
	}
	s.settleLocked(touched)
	s.mu.Unlock()

	if cerr != nil {
		s.log.Warn().Err(cerr).Int("ops", len(ch.Ops)).Msg("commit failed, change reverted")
		if wrap != nil {
			cerr = wrap(cerr)
		}
		return s.fail(cerr)
	}
	return nil
}

// scopeLocked drops owned writes of a guest on a remote backend; they stay in memory only.
func (s *Service) scopeLocked(ops []persist.Op) []persist.Op {
	if !s.remote || s.identity != nil {
		return ops
	}
	return slices.DeleteFunc(ops, func(op persist.Op) bool { return !op.Ref.Collection.Global() })
}

// fail surfaces err to the user as a toast and returns it.
func (s *Service) fail(err error) error {
	if err == nil {
		return nil
	}
	s.toasts.Error(domain.Describe(err))
	return err
}

func (s *Service) refLocked(c persist.Collection) persist.Ref {
	if c.Global() || s.identity == nil {
		return persist.GlobalRef(c)
	}
	return persist.OwnedRef(s.identity.UID, c)
}

func (s *Service) loadLocked(ctx context.Context, ref persist.Ref) {
	var raw json.RawMessage
	if !s.backend.Load(ctx, ref, &raw) {
		return
	}
	if err := s.replaceLocked(ref.Collection, raw); err != nil {
		s.log.Warn().Err(err).Str("collection", string(ref.Collection)).Msg("corrupt collection, using defaults")
	}
}

func (s *Service) stopWatchesLocked() {
	for _, u := range s.owned {
		u()
	}
	s.owned = nil
	clear(s.deferred)
}

// Toasts lists visible notifications.
func (s *Service) Toasts() []domain.Toast {
	return s.toasts.List()
}

func (s *Service) DismissToast(id uint64) {
	if err := s.toasts.Dismiss(id); err != nil && !errors.Is(err, toast.ErrUnknownToast) {
		s.log.Warn().Err(err).Uint64("toast", id).Msg("dismiss failed")
	}
}

func (s *Service) UI() UIState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ui
}

func (s *Service) SetCartOpen(open bool) {
	s.mu.Lock()
	s.ui.CartOpen = open
	s.mu.Unlock()
}

func (s *Service) SetSearchOpen(open bool) {
	s.mu.Lock()
	s.ui.SearchOpen = open
	s.mu.Unlock()
}

func (s *Service) SetMenuOpen(open bool) {
	s.mu.Lock()
	s.ui.MenuOpen = open
	s.mu.Unlock()
}

func encode(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("store: encode %T: %v", v, err))
	}
	return b
}
