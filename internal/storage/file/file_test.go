package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ledgerlite/internal/storage"
)

func TestStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := s.Read(ctx, "user"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.Write(ctx, "user", []byte(`{"id":"u1"}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "user.json")); err != nil {
		t.Errorf("state file missing: %v", err)
	}

	got, err := s.Read(ctx, "user")
	if err != nil || string(got) != `{"id":"u1"}` {
		t.Errorf("Read = %q, %v", got, err)
	}

	if err := s.Clear(ctx, "user"); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx, "user"); err != nil {
		t.Errorf("clearing a missing key: %v", err)
	}
}

func TestStoreRejectsPathKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"../escape", "a/b", "", ".."} {
		if err := s.Write(context.Background(), key, nil); err == nil {
			t.Errorf("Write(%q) succeeded, want error", key)
		}
	}
}
