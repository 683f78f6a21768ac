// Package auth is the identity provider behind the session store: bcrypt-hashed accounts and
// signed session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6
	DefaultAdminEmail = "admin@corc.com"
)

// Provider is the identity provider boundary consumed by the session store.
type Provider interface {
	CreateIdentity(ctx context.Context, reg domain.Registration) (domain.Session, error)
	Authenticate(ctx context.Context, email, secret string) (domain.Session, error)
	Restore(ctx context.Context, token string) (domain.Session, error)
	EndSession(ctx context.Context) error
	UpdateProfile(ctx context.Context, uid string, patch domain.ProfilePatch) (domain.Identity, error)
	OnSessionChange(fn func(*domain.Identity)) (cancel func())
}

type Options struct {
	AdminEmail string
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

type Service struct {
	accounts   AccountStore
	tokens     *Tokens
	adminEmail string
	cost       int
	log        zerolog.Logger
	now        func() time.Time

	mu        sync.Mutex
	listeners map[int]func(*domain.Identity)
	nextID    int
}

var _ Provider = (*Service)(nil)

func NewService(accounts AccountStore, tokens *Tokens, opts Options, log zerolog.Logger) *Service {
	admin := opts.AdminEmail
	if admin == "" {
		admin = DefaultAdminEmail
	}
	cost := opts.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		accounts:   accounts,
		tokens:     tokens,
		adminEmail: normalizeEmail(admin),
		cost:       cost,
		log:        log,
		now:        time.Now,
		listeners:  make(map[int]func(*domain.Identity)),
	}
}

// IsAdminEmail is the only rule that grants administrator status. The reserved address can only
// be provisioned through EnsureAdmin.
func (s *Service) IsAdminEmail(email string) bool {
	return normalizeEmail(email) == s.adminEmail
}

func (s *Service) CreateIdentity(ctx context.Context, reg domain.Registration) (domain.Session, error) {
	reg.Email = normalizeEmail(reg.Email)
	reg.Name = strings.TrimSpace(reg.Name)
	if err := domain.Validate(reg); err != nil {
		return domain.Session{}, err
	}
	if len(reg.Password) < MinPasswordLength {
		return domain.Session{}, domain.ErrWeakCredential
	}
	if s.IsAdminEmail(reg.Email) {
		return domain.Session{}, fmt.Errorf("%w: %s is reserved", domain.ErrDuplicateIdentity, reg.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to hash password: %w", err)
	}

	account := Account{
		Identity: domain.Identity{
			UID:    uuid.NewString(),
			Name:   reg.Name,
			Email:  reg.Email,
			Avatar: defaultAvatar(reg.Name),
		},
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			return domain.Session{}, err
		}
		return domain.Session{}, fmt.Errorf("failed to create account: %w", err)
	}

	s.log.Info().Str("uid", account.Identity.UID).Msg("identity created")
	return s.open(account.Identity)
}

func (s *Service) Authenticate(ctx context.Context, email, secret string) (domain.Session, error) {
	account, err := s.accounts.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return domain.Session{}, domain.ErrInvalidCredentials
		}
		return domain.Session{}, fmt.Errorf("failed to look up account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(secret)); err != nil {
		return domain.Session{}, domain.ErrInvalidCredentials
	}

	id := account.Identity
	id.IsAdmin = s.IsAdminEmail(id.Email)
	return s.open(id)
}

// Restore resumes a session from a persisted token. Admin status is recomputed from the account.
func (s *Service) Restore(ctx context.Context, token string) (domain.Session, error) {
	uid, err := s.tokens.Parse(token)
	if err != nil {
		return domain.Session{}, err
	}
	account, err := s.accounts.ByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return domain.Session{}, fmt.Errorf("%w: account no longer exists", domain.ErrUnauthorized)
		}
		return domain.Session{}, fmt.Errorf("failed to look up account: %w", err)
	}
	id := account.Identity
	id.IsAdmin = s.IsAdminEmail(id.Email)
	s.notify(&id)
	return domain.Session{Identity: id, Token: token}, nil
}

// EndSession notifies listeners. Tokens are stateless; the caller forgets its copy.
func (s *Service) EndSession(context.Context) error {
	s.notify(nil)
	return nil
}

// UpdateProfile applies only the editable fields. Email and admin status cannot change here.
func (s *Service) UpdateProfile(ctx context.Context, uid string, patch domain.ProfilePatch) (domain.Identity, error) {
	account, err := s.accounts.ByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return domain.Identity{}, fmt.Errorf("account %s: %w", uid, domain.ErrNotFound)
		}
		return domain.Identity{}, fmt.Errorf("failed to look up account: %w", err)
	}
	account.Identity = patch.Apply(account.Identity)
	account.Identity.IsAdmin = s.IsAdminEmail(account.Identity.Email)
	if err := s.accounts.Update(ctx, account); err != nil {
		return domain.Identity{}, fmt.Errorf("failed to update account: %w", err)
	}
	return account.Identity, nil
}

// OnSessionChange registers fn for sign-in (non-nil identity) and sign-out (nil).
func (s *Service) OnSessionChange(fn func(*domain.Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// EnsureAdmin creates the reserved administrator account when it does not exist yet.
func (s *Service) EnsureAdmin(ctx context.Context, password string) error {
	if password == "" {
		return nil
	}
	_, err := s.accounts.ByEmail(ctx, s.adminEmail)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("failed to look up admin account: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	err = s.accounts.Create(ctx, Account{
		Identity: domain.Identity{
			UID:     uuid.NewString(),
			Name:    "Founder",
			Email:   s.adminEmail,
			Avatar:  "https://images.unsplash.com/photo-1535713875002-d1d0cf377fde?w=200",
			IsAdmin: true,
		},
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil && !errors.Is(err, domain.ErrDuplicateIdentity) {
		return fmt.Errorf("failed to create admin account: %w", err)
	}
	s.log.Info().Str("email", s.adminEmail).Msg("admin account ready")
	return nil
}

func (s *Service) open(id domain.Identity) (domain.Session, error) {
	token, err := s.tokens.Issue(id)
	if err != nil {
		return domain.Session{}, err
	}
	s.notify(&id)
	return domain.Session{Identity: id, Token: token}, nil
}

func (s *Service) notify(id *domain.Identity) {
	s.mu.Lock()
	fns := make([]func(*domain.Identity), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		if id == nil {
			fn(nil)
			continue
		}
		cp := *id
		fn(&cp)
	}
}

func defaultAvatar(name string) string {
	return fmt.Sprintf("https://ui-avatars.com/api/?name=%s&background=c6a87c&color=000", url.QueryEscape(name))
}
