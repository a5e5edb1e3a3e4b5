// Package session holds the authenticated identity and its persisted copy.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"ledgerlite/internal/core"
	applog "ledgerlite/internal/log"
	"ledgerlite/internal/remote"
	"ledgerlite/internal/storage"
)

// IdentityKey is the fixed key the identity record is persisted under.
const IdentityKey = "user"

// Observer is notified after the session starts or ends. Callbacks run
// outside the session lock and may read the session.
type Observer interface {
	SessionStarted(ctx context.Context, id core.Identity)
	SessionEnded(ctx context.Context)
}

type State struct {
	auth   remote.Authenticator
	store  storage.Store
	logger *applog.Logger

	mu        sync.RWMutex
	user      core.Identity
	lastError string
	epoch     uint64
	observers []Observer
}

func New(auth remote.Authenticator, store storage.Store, logger *applog.Logger) *State {
	if logger == nil {
		logger = applog.Discard()
	}
	return &State{
		auth:   auth,
		store:  store,
		logger: logger.WithComponent(applog.ComponentSession),
	}
}

// Subscribe registers o for session start and end notifications.
func (s *State) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Login authenticates and persists the identity. A failure leaves the
// session unchanged and records a human-readable message in LastError.
func (s *State) Login(ctx context.Context, creds core.Credentials) (core.Identity, error) {
	id, err := s.auth.Login(ctx, creds)
	if err != nil {
		msg := err.Error()
		var authErr *core.AuthError
		if errors.As(err, &authErr) {
			msg = authErr.Message
		}
		s.mu.Lock()
		s.lastError = msg
		s.mu.Unlock()

		s.logger.WarnContext(ctx, "Login failed",
			applog.FieldOperation, applog.OpLogin,
			applog.FieldError, err.Error())
		return core.Identity{}, err
	}

	s.persist(ctx, id)

	s.mu.Lock()
	s.user = id
	s.lastError = ""
	s.epoch++
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Logged in",
		applog.FieldOperation, applog.OpLogin,
		applog.FieldUserID, id.ID)

	for _, o := range observers {
		o.SessionStarted(ctx, id)
	}
	return id, nil
}

// Logout clears the identity, its persisted copy, and notifies observers so
// that derived state is reset. It is safe to call when already logged out.
func (s *State) Logout(ctx context.Context) {
	s.mu.Lock()
	prev := s.user
	s.user = core.Identity{}
	s.epoch++
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Clear(ctx, IdentityKey); err != nil {
			s.logger.WarnContext(ctx, "Failed to clear persisted identity",
				applog.FieldOperation, applog.OpLogout,
				applog.FieldError, err.Error())
		}
	}

	s.logger.InfoContext(ctx, "Logged out",
		applog.FieldOperation, applog.OpLogout,
		applog.FieldUserID, prev.ID)

	for _, o := range observers {
		o.SessionEnded(ctx)
	}
}

// Restore loads a previously persisted identity without contacting the
// collaborator. A missing or unreadable record leaves the session logged out.
func (s *State) Restore(ctx context.Context) (core.Identity, bool) {
	if s.store == nil {
		return core.Identity{}, false
	}

	raw, err := s.store.Read(ctx, IdentityKey)
	if errors.Is(err, storage.ErrNotFound) {
		return core.Identity{}, false
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read persisted identity",
			applog.FieldOperation, applog.OpRestore,
			applog.FieldError, err.Error())
		return core.Identity{}, false
	}

	var id core.Identity
	if err := json.Unmarshal(raw, &id); err != nil || id.IsZero() {
		s.logger.WarnContext(ctx, "Discarding corrupt persisted identity",
			applog.FieldOperation, applog.OpRestore)
		if err := s.store.Clear(ctx, IdentityKey); err != nil {
			s.logger.WarnContext(ctx, "Failed to clear persisted identity", applog.FieldError, err.Error())
		}
		return core.Identity{}, false
	}

	s.mu.Lock()
	s.user = id
	s.epoch++
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Session restored",
		applog.FieldOperation, applog.OpRestore,
		applog.FieldUserID, id.ID)

	for _, o := range observers {
		o.SessionStarted(ctx, id)
	}
	return id, true
}

func (s *State) persist(ctx context.Context, id core.Identity) {
	if s.store == nil {
		return
	}
	raw, err := json.Marshal(id)
	if err == nil {
		err = s.store.Write(ctx, IdentityKey, raw)
	}
	if err != nil {
		// The session still works for this process; only restore is affected.
		s.logger.WarnContext(ctx, "Failed to persist identity",
			applog.FieldOperation, applog.OpLogin,
			applog.FieldError, err.Error())
	}
}

func (s *State) Current() (core.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, !s.user.IsZero()
}

func (s *State) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.user.IsZero()
}

// LastError is the message of the most recent failed login, or empty.
func (s *State) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Epoch changes on every login, restore and logout. Fetches compare it
// before and after a request to drop results that belong to an ended session.
func (s *State) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}
