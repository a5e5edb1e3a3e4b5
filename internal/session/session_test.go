package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ledgerlite/internal/core"
	"ledgerlite/internal/storage"
	"ledgerlite/internal/storage/memory"
)

type stubAuth struct {
	id  core.Identity
	err error
}

func (a stubAuth) Login(context.Context, core.Credentials) (core.Identity, error) {
	return a.id, a.err
}

type recorder struct {
	started []core.Identity
	ended   int
	authed  []bool
	s       *State
}

func (r *recorder) SessionStarted(_ context.Context, id core.Identity) {
	r.started = append(r.started, id)
	r.authed = append(r.authed, r.s.IsAuthenticated())
}

func (r *recorder) SessionEnded(context.Context) {
	r.ended++
	r.authed = append(r.authed, r.s.IsAuthenticated())
}

var ada = core.Identity{ID: "1", Email: "a@b.com", Name: "A"}

func TestLoginPersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	s := New(stubAuth{id: ada}, store, nil)
	rec := &recorder{s: s}
	s.Subscribe(rec)

	got, err := s.Login(ctx, core.Credentials{Email: "a@b.com", Password: "x"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got != ada || !s.IsAuthenticated() {
		t.Fatalf("identity = %+v, authenticated = %v", got, s.IsAuthenticated())
	}
	if len(rec.started) != 1 || !rec.authed[0] {
		t.Errorf("observer calls = %+v, authed during callback = %v", rec.started, rec.authed)
	}

	raw, err := store.Read(ctx, IdentityKey)
	if err != nil {
		t.Fatalf("persisted identity missing: %v", err)
	}
	var persisted core.Identity
	if err := json.Unmarshal(raw, &persisted); err != nil || persisted != ada {
		t.Errorf("persisted = %s", raw)
	}
}

func TestLoginFailureSetsLastError(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid", &core.AuthError{Kind: core.AuthInvalid, Message: "Invalid email or password"}, "Invalid email or password"},
		{"unreachable", &core.AuthError{Kind: core.AuthUnreachable, Message: "Connection error. Please check if the server is running."}, "Connection error. Please check if the server is running."},
		{"plain", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(stubAuth{err: tt.err}, memory.New(), nil)
			rec := &recorder{s: s}
			s.Subscribe(rec)

			if _, err := s.Login(ctx, core.Credentials{}); !errors.Is(err, tt.err) {
				t.Fatalf("err = %v", err)
			}
			if s.IsAuthenticated() {
				t.Error("authenticated after failed login")
			}
			if s.LastError() != tt.want {
				t.Errorf("LastError = %q, want %q", s.LastError(), tt.want)
			}
			if len(rec.started) != 0 {
				t.Error("observer notified on failure")
			}
		})
	}
}

func TestSuccessfulLoginClearsLastError(t *testing.T) {
	auth := &switchAuth{err: &core.AuthError{Kind: core.AuthInvalid, Message: "nope"}}
	s := New(auth, nil, nil)
	s.Login(context.Background(), core.Credentials{})

	auth.err = nil
	auth.id = ada
	if _, err := s.Login(context.Background(), core.Credentials{}); err != nil {
		t.Fatal(err)
	}
	if s.LastError() != "" {
		t.Errorf("LastError = %q", s.LastError())
	}
}

type switchAuth struct {
	id  core.Identity
	err error
}

func (a *switchAuth) Login(context.Context, core.Credentials) (core.Identity, error) {
	return a.id, a.err
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	s := New(stubAuth{id: ada}, store, nil)
	rec := &recorder{s: s}
	s.Subscribe(rec)

	s.Login(ctx, core.Credentials{})
	before := s.Epoch()
	s.Logout(ctx)

	if s.IsAuthenticated() {
		t.Error("still authenticated")
	}
	if s.Epoch() == before {
		t.Error("epoch unchanged by logout")
	}
	if rec.ended != 1 || rec.authed[len(rec.authed)-1] {
		t.Errorf("ended = %d, authed during callback = %v", rec.ended, rec.authed)
	}
	if _, err := store.Read(ctx, IdentityKey); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("persisted identity survived logout: %v", err)
	}

	// Logging out again still notifies so derived state is reset.
	s.Logout(ctx)
	if rec.ended != 2 {
		t.Errorf("ended = %d after second logout", rec.ended)
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("persisted identity", func(t *testing.T) {
		store := memory.New()
		raw, _ := json.Marshal(ada)
		store.Write(ctx, IdentityKey, raw)

		s := New(stubAuth{err: errors.New("must not be called")}, store, nil)
		rec := &recorder{s: s}
		s.Subscribe(rec)

		got, ok := s.Restore(ctx)
		if !ok || got != ada {
			t.Fatalf("Restore = %+v, %v", got, ok)
		}
		if cur, ok := s.Current(); !ok || cur != ada {
			t.Errorf("Current = %+v, %v", cur, ok)
		}
		if len(rec.started) != 1 {
			t.Errorf("started = %d", len(rec.started))
		}
	})

	t.Run("nothing persisted", func(t *testing.T) {
		s := New(stubAuth{}, memory.New(), nil)
		if _, ok := s.Restore(ctx); ok {
			t.Error("restored from empty store")
		}
	})

	for _, corrupt := range []string{`{not json`, `{}`, `[]`} {
		t.Run("corrupt "+corrupt, func(t *testing.T) {
			store := memory.New()
			store.Write(ctx, IdentityKey, []byte(corrupt))

			s := New(stubAuth{}, store, nil)
			if _, ok := s.Restore(ctx); ok {
				t.Fatal("restored a corrupt record")
			}
			if s.IsAuthenticated() {
				t.Error("authenticated after corrupt restore")
			}
			if _, err := store.Read(ctx, IdentityKey); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("corrupt record not cleared: %v", err)
			}
		})
	}
}
