package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/corc-store/internal/docstore"
	"github.com/rs/zerolog"
)

// Remote writes documents to a document store and watches collections through subscriptions.
type Remote struct {
	store docstore.Store
	log   zerolog.Logger
}

func NewRemote(store docstore.Store, log zerolog.Logger) *Remote {
	return &Remote{store: store, log: log}
}

func (*Remote) Name() string { return "remote" }

func (*Remote) Watchable() bool { return true }

// PathFor maps a ref to its document store path.
func PathFor(ref Ref) docstore.Path {
	if ref.Collection.Global() {
		return docstore.Global(string(ref.Collection))
	}
	return docstore.Owned(ref.Owner, string(ref.Collection))
}

func (r *Remote) Load(ctx context.Context, ref Ref, dst any) bool {
	docs, err := r.store.List(ctx, PathFor(ref))
	if err != nil {
		r.log.Warn().Err(err).Str("collection", string(ref.Collection)).Str("owner", ref.Owner).Msg("remote read failed, using defaults")
		return false
	}
	if err := json.Unmarshal(joinDocuments(docs), dst); err != nil {
		r.log.Warn().Err(err).Str("collection", string(ref.Collection)).Msg("undecodable remote collection, using defaults")
		return false
	}
	return true
}

// Commit uses an atomic batch when the store offers one. Otherwise ops are applied in order and,
// on failure, the applied ones are undone in reverse order.
func (r *Remote) Commit(ctx context.Context, ch Change) error {
	if len(ch.Ops) == 0 {
		return nil
	}
	if b, ok := r.store.(docstore.Batcher); ok {
		return r.commitBatch(ctx, b.Batch(), ch.Ops)
	}
	return r.commitSequential(ctx, ch.Ops)
}

func (r *Remote) commitBatch(ctx context.Context, batch docstore.Batch, ops []Op) error {
	for _, op := range ops {
		p := PathFor(op.Ref)
		switch op.Kind {
		case OpPut:
			batch.Set(p, docstore.Document{ID: op.ID, Data: op.Value})
		case OpDelete:
			batch.Delete(p, op.ID)
		case OpIncrement:
			batch.Increment(p, op.ID, op.Field, op.Delta, op.Min)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("batch commit: %w", err)
	}
	return nil
}

// undo restores one applied op.
type undo func(ctx context.Context) error

func (r *Remote) commitSequential(ctx context.Context, ops []Op) error {
	var applied []undo
	for i, op := range ops {
		u, err := r.apply(ctx, op)
		if err != nil {
			if i == 0 {
				return fmt.Errorf("%s %s/%s: %w", op.Kind, op.Ref.Collection, op.ID, err)
			}
			r.compensate(applied)
			return fmt.Errorf("%w: %s %s/%s after %d of %d ops: %w",
				ErrPartialCommit, op.Kind, op.Ref.Collection, op.ID, i, len(ops), err)
		}
		applied = append(applied, u)
	}
	return nil
}

func (r *Remote) apply(ctx context.Context, op Op) (undo, error) {
	p := PathFor(op.Ref)
	restore := func(ctx context.Context) error {
		if op.Prev == nil {
			return r.store.Delete(ctx, p, op.ID)
		}
		return r.store.Set(ctx, p, docstore.Document{ID: op.ID, Data: op.Prev})
	}

	switch op.Kind {
	case OpPut:
		if err := r.store.Set(ctx, p, docstore.Document{ID: op.ID, Data: op.Value}); err != nil {
			return nil, err
		}
		return restore, nil
	case OpDelete:
		if err := r.store.Delete(ctx, p, op.ID); err != nil {
			return nil, err
		}
		return restore, nil
	case OpIncrement:
		doc, err := r.store.Get(ctx, p, op.ID)
		if err != nil {
			return nil, err
		}
		current, err := intField(doc.Data, op.Field)
		if err != nil {
			return nil, err
		}
		next := current + op.Delta
		if next < op.Min {
			return nil, fmt.Errorf("%w: %s would become %d", docstore.ErrPreconditionFailed, op.Field, next)
		}
		if err := r.store.Update(ctx, p, op.ID, map[string]any{op.Field: next}); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return r.store.Update(ctx, p, op.ID, map[string]any{op.Field: current})
		}, nil
	default:
		return nil, fmt.Errorf("unknown op kind %d", op.Kind)
	}
}

// compensate runs with a fresh context so a cancelled request still rolls back.
func (r *Remote) compensate(applied []undo) {
	ctx := context.Background()
	for i := len(applied) - 1; i >= 0; i-- {
		if err := applied[i](ctx); err != nil {
			r.log.Error().Err(err).Int("op", i).Msg("compensating write failed")
		}
	}
}

func (r *Remote) Watch(ctx context.Context, ref Ref, fn func(json.RawMessage)) (Unwatch, error) {
	unsub, err := r.store.Subscribe(ctx, PathFor(ref), func(docs []docstore.Document) {
		fn(joinDocuments(docs))
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", ref.Collection, err)
	}
	return Unwatch(unsub), nil
}

// Clear is a no-op: remote collections belong to the identity, not the device.
func (*Remote) Clear(context.Context, []Collection) error { return nil }

// joinDocuments renders document bodies as one JSON array.
func joinDocuments(docs []docstore.Document) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, d := range docs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if len(d.Data) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(d.Data)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func intField(data json.RawMessage, field string) (int64, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return 0, fmt.Errorf("decode document: %w", err)
	}
	raw, ok := obj[field]
	if !ok {
		return 0, nil
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, errors.Join(fmt.Errorf("field %s is not an integer", field), err)
	}
	return v, nil
}
