package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/corc-store/internal/docstore"
	"github.com/fjod/corc-store/internal/domain"
	"github.com/fjod/corc-store/internal/snapshot"
	"github.com/rs/zerolog"
)

var ErrAccountNotFound = errors.New("account not found")

// Account is the durable identity record.
type Account struct {
	Identity     domain.Identity `json:"identity"`
	PasswordHash []byte          `json:"passwordHash"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// AccountStore persists accounts. Emails are compared in normalized form.
type AccountStore interface {
	ByEmail(ctx context.Context, email string) (Account, error)
	ByUID(ctx context.Context, uid string) (Account, error)
	// Create fails with domain.ErrDuplicateIdentity if the email is taken.
	Create(ctx context.Context, a Account) error
	Update(ctx context.Context, a Account) error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DocAccounts keeps accounts in the global "accounts" collection, one document per email.
type DocAccounts struct {
	store docstore.Store
	mu    sync.Mutex
}

var accountsPath = docstore.Global("accounts")

func NewDocAccounts(store docstore.Store) *DocAccounts {
	return &DocAccounts{store: store}
}

func (d *DocAccounts) ByEmail(ctx context.Context, email string) (Account, error) {
	doc, err := d.store.Get(ctx, accountsPath, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return decodeAccount(doc.Data)
}

func (d *DocAccounts) ByUID(ctx context.Context, uid string) (Account, error) {
	docs, err := d.store.List(ctx, accountsPath)
	if err != nil {
		return Account{}, fmt.Errorf("failed to list accounts: %w", err)
	}
	for _, doc := range docs {
		a, err := decodeAccount(doc.Data)
		if err != nil {
			continue
		}
		if a.Identity.UID == uid {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (d *DocAccounts) Create(ctx context.Context, a Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := normalizeEmail(a.Identity.Email)
	_, err := d.store.Get(ctx, accountsPath, key)
	if err == nil {
		return domain.ErrDuplicateIdentity
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("failed to check account: %w", err)
	}
	return d.put(ctx, key, a)
}

func (d *DocAccounts) Update(ctx context.Context, a Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.put(ctx, normalizeEmail(a.Identity.Email), a)
}

func (d *DocAccounts) put(ctx context.Context, key string, a Account) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}
	if err := d.store.Set(ctx, accountsPath, docstore.Document{ID: key, Data: data}); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func decodeAccount(data json.RawMessage) (Account, error) {
	var a Account
	if err := json.Unmarshal(data, &a); err != nil {
		return Account{}, fmt.Errorf("failed to decode account: %w", err)
	}
	return a, nil
}

// SnapshotAccounts keeps every account under one local snapshot key.
type SnapshotAccounts struct {
	store snapshot.Store
	log   zerolog.Logger
	mu    sync.Mutex
}

var accountsKey = snapshot.Key("accounts")

func NewSnapshotAccounts(store snapshot.Store, log zerolog.Logger) *SnapshotAccounts {
	return &SnapshotAccounts{store: store, log: log}
}

// load reads every account. Unlike collection snapshots, accounts cannot be rebuilt, so a failed
// read is returned instead of falling back to an empty list.
func (s *SnapshotAccounts) load(ctx context.Context) ([]Account, error) {
	var all []Account
	if _, err := snapshot.ReadJSON(ctx, s.store, accountsKey, &all); err != nil {
		s.log.Error().Err(err).Msg("failed to read accounts")
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}
	return all, nil
}

func (s *SnapshotAccounts) ByEmail(ctx context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeEmail(email)
	all, err := s.load(ctx)
	if err != nil {
		return Account{}, err
	}
	for _, a := range all {
		if normalizeEmail(a.Identity.Email) == key {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *SnapshotAccounts) ByUID(ctx context.Context, uid string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return Account{}, err
	}
	for _, a := range all {
		if a.Identity.UID == uid {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *SnapshotAccounts) Create(ctx context.Context, a Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	key := normalizeEmail(a.Identity.Email)
	for _, existing := range all {
		if normalizeEmail(existing.Identity.Email) == key {
			return domain.ErrDuplicateIdentity
		}
	}
	return snapshot.SaveJSON(ctx, s.store, accountsKey, append(all, a))
}

func (s *SnapshotAccounts) Update(ctx context.Context, a Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range all {
		if all[i].Identity.UID == a.Identity.UID {
			all[i] = a
			return snapshot.SaveJSON(ctx, s.store, accountsKey, all)
		}
	}
	return ErrAccountNotFound
}
