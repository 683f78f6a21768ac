package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/fjod/corc-store/internal/persist"
	"github.com/fjod/corc-store/internal/snapshot"
)

var sessionKey = snapshot.Key("user")

// Identity returns the signed-in identity, or nil for a guest.
func (s *Service) Identity() *domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Token returns the session token, empty for a guest.
func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Service) Register(ctx context.Context, reg domain.Registration) (domain.Identity, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	sess, err := s.auth.CreateIdentity(ctx, reg)
	if err != nil {
		return domain.Identity{}, s.fail(err)
	}
	if err := s.startSession(ctx, sess); err != nil {
		return domain.Identity{}, s.fail(err)
	}
	s.toasts.Success(fmt.Sprintf("Welcome, %s", sess.Identity.Name))
	return sess.Identity, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (domain.Identity, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	sess, err := s.auth.Authenticate(ctx, email, password)
	if err != nil {
		return domain.Identity{}, s.fail(err)
	}
	if err := s.startSession(ctx, sess); err != nil {
		return domain.Identity{}, s.fail(err)
	}
	s.toasts.Success(fmt.Sprintf("Welcome back, %s", sess.Identity.Name))
	return sess.Identity, nil
}

// Restore resumes the session saved on this device. A missing or rejected session leaves a guest.
func (s *Service) Restore(ctx context.Context) error {
	if s.device == nil {
		return nil
	}
	s.ops.Lock()
	defer s.ops.Unlock()

	var saved domain.Session
	if !snapshot.LoadJSON(ctx, s.device, sessionKey, &saved, s.log) || saved.Token == "" {
		return nil
	}
	sess, err := s.auth.Restore(ctx, saved.Token)
	if err != nil {
		s.log.Info().Err(err).Msg("saved session rejected, continuing as guest")
		if derr := s.device.Delete(ctx, sessionKey); derr != nil && !errors.Is(derr, snapshot.ErrKeyNotFound) {
			s.log.Warn().Err(derr).Msg("failed to drop saved session")
		}
		return nil
	}
	return s.startSession(ctx, sess)
}

// startSession switches to sess. Identity-scoped state of a different previous identity is
// dropped before the new identity becomes visible; remote backends resubscribe under a new epoch.
func (s *Service) startSession(ctx context.Context, sess domain.Session) error {
	s.mu.Lock()
	prev := s.identity
	s.epoch++
	epoch := s.epoch
	s.stopWatchesLocked()
	switched := prev != nil && prev.UID != sess.Identity.UID
	if switched || s.remote {
		s.clearOwnedLocked()
	}
	id := sess.Identity
	s.identity = &id
	s.token = sess.Token
	s.mu.Unlock()

	if switched && !s.remote {
		if err := s.backend.Clear(ctx, persist.OwnedCollections()); err != nil {
			s.log.Warn().Err(err).Msg("failed to clear previous session data")
		}
	}
	if s.remote {
		s.watchOwned(epoch, id.UID)
	}
	if s.device != nil {
		if err := snapshot.SaveJSON(ctx, s.device, sessionKey, sess); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
	}
	s.log.Info().Str("uid", id.UID).Uint64("epoch", epoch).Msg("session started")
	return nil
}

func (s *Service) watchOwned(epoch uint64, uid string) {
	var unwatches []persist.Unwatch
	for _, c := range persist.OwnedCollections() {
		unwatch, err := s.backend.Watch(s.life, persist.OwnedRef(uid, c), s.deliverFunc(epoch, c))
		if err != nil {
			s.log.Error().Err(err).Str("collection", string(c)).Msg("subscription failed")
			continue
		}
		unwatches = append(unwatches, unwatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		// superseded while subscribing
		for _, u := range unwatches {
			u()
		}
		return
	}
	s.owned = append(s.owned, unwatches...)
}

// Logout ends the session and clears every identity-scoped collection in memory and on device.
func (s *Service) Logout(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	if err := s.auth.EndSession(ctx); err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	s.epoch++
	s.stopWatchesLocked()
	s.clearOwnedLocked()
	s.identity = nil
	s.token = ""
	s.mu.Unlock()

	if err := s.backend.Clear(ctx, persist.OwnedCollections()); err != nil {
		return s.fail(fmt.Errorf("failed to clear session data: %w", err))
	}
	if s.device != nil {
		if err := s.device.Delete(ctx, sessionKey); err != nil && !errors.Is(err, snapshot.ErrKeyNotFound) {
			return s.fail(fmt.Errorf("failed to drop saved session: %w", err))
		}
	}
	s.toasts.Info("Signed out")
	return nil
}

// UpdateProfile applies the editable fields of fields to the signed-in identity.
func (s *Service) UpdateProfile(ctx context.Context, fields map[string]any) (domain.Identity, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.RLock()
	cur := s.identity
	token := s.token
	s.mu.RUnlock()
	if cur == nil {
		return domain.Identity{}, s.fail(fmt.Errorf("%w: sign in first", domain.ErrUnauthorized))
	}
	patch := domain.PatchFromMap(fields)
	if patch.Empty() {
		return domain.Identity{}, s.fail(fmt.Errorf("%w: no editable fields", domain.ErrInvalidInput))
	}

	id, err := s.auth.UpdateProfile(ctx, cur.UID, patch)
	if err != nil {
		return domain.Identity{}, s.fail(err)
	}

	s.mu.Lock()
	if s.identity != nil && s.identity.UID == id.UID {
		s.identity = &id
	}
	s.mu.Unlock()

	if s.device != nil {
		if err := snapshot.SaveJSON(ctx, s.device, sessionKey, domain.Session{Identity: id, Token: token}); err != nil {
			return domain.Identity{}, s.fail(fmt.Errorf("failed to save session: %w", err))
		}
	}
	s.toasts.Success("Profile Updated")
	return id, nil
}
