// Package docstore is the remote document store boundary. Documents are JSON objects addressed by
// a collection path and an id; owned paths live under users/<uid>/.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("document not found")
	ErrPreconditionFailed = errors.New("document precondition failed")
)

// Path addresses one collection. An empty Owner is a global collection.
type Path struct {
	Collection string
	Owner      string
}

func Global(collection string) Path {
	return Path{Collection: collection}
}

func Owned(owner, collection string) Path {
	return Path{Collection: collection, Owner: owner}
}

func (p Path) String() string {
	if p.Owner == "" {
		return p.Collection
	}
	return fmt.Sprintf("users/%s/%s", p.Owner, p.Collection)
}

type Document struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

type Store interface {
	Get(ctx context.Context, p Path, id string) (Document, error)
	// List returns every document of the collection ordered by id.
	List(ctx context.Context, p Path) ([]Document, error)
	Set(ctx context.Context, p Path, doc Document) error
	// Update merges top-level fields into an existing document.
	Update(ctx context.Context, p Path, id string, fields map[string]any) error
	// Delete is idempotent.
	Delete(ctx context.Context, p Path, id string) error
	// Subscribe delivers the full collection, first immediately and then after every change.
	// Intermediate snapshots may be skipped; the latest one is always delivered.
	Subscribe(ctx context.Context, p Path, fn func([]Document)) (Unsubscribe, error)
}

// Batch collects writes that are committed all-or-nothing.
type Batch interface {
	Set(p Path, doc Document)
	Delete(p Path, id string)
	// Increment adds delta to an integer field. The commit fails with ErrPreconditionFailed if the
	// result would drop below min, and with ErrNotFound if the document is absent.
	Increment(p Path, id, field string, delta, min int64)
	Commit(ctx context.Context) error
}

// Batcher is implemented by stores that offer multi-document atomicity.
type Batcher interface {
	Batch() Batch
}

type opKind int

const (
	opSet opKind = iota
	opDelete
	opIncrement
)

type batchOp struct {
	kind  opKind
	path  Path
	id    string
	data  json.RawMessage
	field string
	delta int64
	min   int64
}

// ops is the shared recording part of every Batch implementation.
type ops struct {
	list []batchOp
}

func (o *ops) Set(p Path, doc Document) {
	o.list = append(o.list, batchOp{kind: opSet, path: p, id: doc.ID, data: doc.Data})
}

func (o *ops) Delete(p Path, id string) {
	o.list = append(o.list, batchOp{kind: opDelete, path: p, id: id})
}

func (o *ops) Increment(p Path, id, field string, delta, min int64) {
	o.list = append(o.list, batchOp{kind: opIncrement, path: p, id: id, field: field, delta: delta, min: min})
}

// incrementField applies delta to an integer field of a JSON object.
func incrementField(data json.RawMessage, field string, delta, min int64) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	var current int64
	if raw, ok := obj[field]; ok {
		if err := json.Unmarshal(raw, &current); err != nil {
			return nil, fmt.Errorf("field %s is not an integer: %w", field, err)
		}
	}
	next := current + delta
	if next < min {
		return nil, fmt.Errorf("%w: %s would become %d", ErrPreconditionFailed, field, next)
	}
	obj[field] = json.RawMessage(fmt.Sprintf("%d", next))
	return json.Marshal(obj)
}

// mergeFields overwrites top-level fields of a JSON object.
func mergeFields(data json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	obj := make(map[string]json.RawMessage)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		obj[k] = raw
	}
	return json.Marshal(obj)
}
