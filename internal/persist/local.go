package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/fjod/corc-store/internal/snapshot"
	"github.com/rs/zerolog"
)

// Local mirrors whole collections into a snapshot store, one key per collection.
type Local struct {
	store snapshot.Store
	log   zerolog.Logger
}

func NewLocal(store snapshot.Store, log zerolog.Logger) *Local {
	return &Local{store: store, log: log}
}

func (*Local) Name() string { return "local" }

// KeyFor returns the snapshot key of a collection.
func KeyFor(c Collection) string {
	if c == RecentlyViewed {
		return snapshot.Key("recent")
	}
	return snapshot.Key(string(c))
}

func (l *Local) Load(ctx context.Context, ref Ref, dst any) bool {
	return snapshot.LoadJSON(ctx, l.store, KeyFor(ref.Collection), dst, l.log)
}

// Commit saves each touched collection. If a save fails, the collections already written are
// restored to their Before value.
func (l *Local) Commit(ctx context.Context, ch Change) error {
	colls := make([]Collection, 0, len(ch.After))
	for c := range ch.After {
		colls = append(colls, c)
	}
	slices.Sort(colls)

	for i, c := range colls {
		if err := l.store.Save(ctx, KeyFor(c), ch.After[c]); err != nil {
			if i == 0 {
				return fmt.Errorf("save %s: %w", c, err)
			}
			l.restore(ctx, colls[:i], ch.Before)
			return fmt.Errorf("%w: save %s: %w", ErrPartialCommit, c, err)
		}
	}
	return nil
}

func (l *Local) restore(ctx context.Context, colls []Collection, before map[Collection]json.RawMessage) {
	for _, c := range colls {
		var err error
		if prev, ok := before[c]; ok && prev != nil {
			err = l.store.Save(ctx, KeyFor(c), prev)
		} else {
			err = l.store.Delete(ctx, KeyFor(c))
		}
		if err != nil {
			l.log.Error().Err(err).Str("collection", string(c)).Msg("failed to restore snapshot after partial commit")
		}
	}
}

func (*Local) Watch(context.Context, Ref, func(json.RawMessage)) (Unwatch, error) {
	return nil, ErrWatchUnsupported
}

func (l *Local) Clear(ctx context.Context, colls []Collection) error {
	for _, c := range colls {
		if err := l.store.Delete(ctx, KeyFor(c)); err != nil {
			return fmt.Errorf("clear %s: %w", c, err)
		}
	}
	return nil
}
