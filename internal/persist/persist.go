// Package persist holds the persistence strategies behind the state service. Every strategy
// accepts the same Change; each uses the part of it that fits its storage.
package persist

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrPartialCommit means some writes of a change were applied and then compensated.
	ErrPartialCommit    = errors.New("change partially applied and rolled back")
	ErrWatchUnsupported = errors.New("backend does not support watching")
)

type Collection string

const (
	User           Collection = "user"
	Products       Collection = "products"
	Cart           Collection = "cart"
	Wishlist       Collection = "wishlist"
	Orders         Collection = "orders"
	Addresses      Collection = "addresses"
	Cards          Collection = "cards"
	Reviews        Collection = "reviews"
	RecentlyViewed Collection = "recentlyViewed"
)

// Global collections are shared by every identity.
func (c Collection) Global() bool {
	return c == Products || c == Reviews
}

// OwnedCollections lists the identity-scoped collections in subscription order.
func OwnedCollections() []Collection {
	return []Collection{Cart, Wishlist, Orders, Addresses, Cards, RecentlyViewed}
}

// Ref addresses one collection. Owner is ignored for global collections.
type Ref struct {
	Collection Collection
	Owner      string
}

func GlobalRef(c Collection) Ref {
	return Ref{Collection: c}
}

func OwnedRef(owner string, c Collection) Ref {
	return Ref{Collection: c, Owner: owner}
}

type OpKind int

const (
	OpPut OpKind = iota
	OpDelete
	OpIncrement
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	case OpIncrement:
		return "increment"
	default:
		return "unknown"
	}
}

// Op is one document-level write. Prev is the document before the write (nil when absent) and
// is what compensation and optimistic reverts restore.
type Op struct {
	Kind  OpKind
	Ref   Ref
	ID    string
	Value json.RawMessage
	Prev  json.RawMessage

	Field string
	Delta int64
	Min   int64
}

func Put(ref Ref, id string, value, prev json.RawMessage) Op {
	return Op{Kind: OpPut, Ref: ref, ID: id, Value: value, Prev: prev}
}

func Delete(ref Ref, id string, prev json.RawMessage) Op {
	return Op{Kind: OpDelete, Ref: ref, ID: id, Prev: prev}
}

// Increment adds delta to an integer field; the write fails if the result would be below min.
func Increment(ref Ref, id, field string, delta, min int64) Op {
	return Op{Kind: OpIncrement, Ref: ref, ID: id, Field: field, Delta: delta, Min: min}
}

// Change is one logical mutation. After holds the full post-change value of every touched
// collection and Before the pre-change value; both are JSON arrays keyed by collection.
type Change struct {
	Ops    []Op
	After  map[Collection]json.RawMessage
	Before map[Collection]json.RawMessage
}

// Collections lists the collections the change touches.
func (c Change) Collections() []Collection {
	seen := make(map[Collection]bool)
	var out []Collection
	add := func(coll Collection) {
		if !seen[coll] {
			seen[coll] = true
			out = append(out, coll)
		}
	}
	for _, op := range c.Ops {
		add(op.Ref.Collection)
	}
	for coll := range c.After {
		add(coll)
	}
	return out
}

// Unwatch stops a watch.
type Unwatch func()

// Backend is a persistence strategy.
type Backend interface {
	Name() string
	// Load decodes the stored collection (a JSON array) into dst. Failures and missing data
	// leave dst untouched and report false.
	Load(ctx context.Context, ref Ref, dst any) bool
	// Commit applies the change all-or-nothing or returns an error.
	Commit(ctx context.Context, ch Change) error
	// Watch delivers the collection as a JSON array now and after every remote change.
	Watch(ctx context.Context, ref Ref, fn func(json.RawMessage)) (Unwatch, error)
	// Clear removes device-local copies of the given collections.
	Clear(ctx context.Context, colls []Collection) error
}

// Watchable reports whether b supports Watch.
func Watchable(b Backend) bool {
	w, ok := b.(interface{ Watchable() bool })
	return ok && w.Watchable()
}
