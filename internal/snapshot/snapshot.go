// Package snapshot is the local snapshot boundary: a namespaced key-value store holding one
// JSON document per top-level collection.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var ErrKeyNotFound = errors.New("snapshot key not found")

// Namespace prefixes every key written by this application.
const Namespace = "corc-"

// Key returns the namespaced key for a collection name.
func Key(name string) string {
	return Namespace + name
}

type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// LoadJSON decodes key into dst. A missing, unreadable or corrupt snapshot leaves dst untouched
// and reports false; it is never an error because the snapshot can be rebuilt.
func LoadJSON(ctx context.Context, s Store, key string, dst any, log zerolog.Logger) bool {
	data, err := s.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("snapshot read failed, using defaults")
		}
		return false
	}
	if len(data) == 0 || string(data) == "null" {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("corrupt snapshot, using defaults")
		return false
	}
	return true
}

// ReadJSON decodes key into dst for durable records that must not be rebuilt from defaults. Only
// a missing key is reported as absent; read and decode failures are returned.
func ReadJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	data, err := s.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	if len(data) == 0 || string(data) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v and writes it under key. Write failures are returned to the caller.
func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", key, err)
	}
	if err := s.Save(ctx, key, data); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}
