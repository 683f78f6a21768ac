package persist

import (
	"context"
	"encoding/json"
)

// InMemory keeps nothing. State lives only in the state service's read model.
type InMemory struct{}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (*InMemory) Name() string { return "memory" }

func (*InMemory) Load(context.Context, Ref, any) bool { return false }

func (*InMemory) Commit(ctx context.Context, _ Change) error { return ctx.Err() }

func (*InMemory) Watch(context.Context, Ref, func(json.RawMessage)) (Unwatch, error) {
	return nil, ErrWatchUnsupported
}

func (*InMemory) Clear(context.Context, []Collection) error { return nil }
