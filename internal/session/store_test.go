package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ship/internal/ship/ports"
)

func newTestSession(id string) *ports.Session {
	return &ports.Session{
		ID:     id,
		Phase:  ports.PhaseDesign,
		Status: ports.SessionPending,
		Intent: ports.EnrichedIntent{
			Description: "todo list app",
			ProjectType: "web",
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func storesUnderTest(t *testing.T) map[string]ports.SessionStore {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return map[string]ports.SessionStore{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestStore_CreateRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Create(ctx, newTestSession("session-dup")); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			err := store.Create(ctx, newTestSession("session-dup"))
			if !errors.Is(err, ports.ErrSessionExists) {
				t.Fatalf("expected ErrSessionExists, got %v", err)
			}
		})
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Create(ctx, newTestSession("session-copy")); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			first, err := store.Get(ctx, "session-copy")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			first.Status = ports.SessionFailed

			second, err := store.Get(ctx, "session-copy")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if second.Status != ports.SessionPending {
				t.Fatalf("mutating a Get() result leaked into the store: status = %q", second.Status)
			}
		})
	}
}

func TestStore_UpdateAppliesMutationAndBumpsVersion(t *testing.T) {
	t.Parallel()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Create(ctx, newTestSession("session-up")); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			updated, err := store.Update(ctx, "session-up", func(s *ports.Session) error {
				s.Status = ports.SessionRunning
				s.DesignResult = &ports.DesignResult{Summary: "layered web app"}
				return nil
			})
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if updated.Status != ports.SessionRunning {
				t.Fatalf("expected running status, got %q", updated.Status)
			}
			if updated.Version != 1 {
				t.Fatalf("expected version 1, got %d", updated.Version)
			}

			reloaded, err := store.Get(ctx, "session-up")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if reloaded.DesignResult == nil || reloaded.DesignResult.Summary != "layered web app" {
				t.Fatalf("design result did not persist: %+v", reloaded.DesignResult)
			}
		})
	}
}

func TestStore_UpdateErrorLeavesSessionUntouched(t *testing.T) {
	t.Parallel()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Create(ctx, newTestSession("session-err")); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			wantErr := errors.New("mutation rejected")
			_, err := store.Update(ctx, "session-err", func(s *ports.Session) error {
				s.Status = ports.SessionFailed
				return wantErr
			})
			if !errors.Is(err, wantErr) {
				t.Fatalf("expected mutation error, got %v", err)
			}
			reloaded, err := store.Get(ctx, "session-err")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if reloaded.Status != ports.SessionPending || reloaded.Version != 0 {
				t.Fatalf("failed mutation leaked: status=%q version=%d", reloaded.Status, reloaded.Version)
			}
		})
	}
}

func TestStore_GetMissingSession(t *testing.T) {
	t.Parallel()

	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "no-such-session")
			if !errors.Is(err, ports.ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestFileStore_RoundTripsThroughDisk(t *testing.T) {
	t.Parallel()

	baseDir := t.TempDir()
	store, err := NewFileStore(baseDir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()
	if err := store.Create(ctx, newTestSession("session-disk")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.Update(ctx, "session-disk", func(s *ports.Session) error {
		s.Phase = ports.PhaseSpec
		return nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// A fresh store must bypass the first store's cache.
	reloadedStore, err := NewFileStore(baseDir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	reloaded, err := reloadedStore.Get(ctx, "session-disk")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if reloaded.Phase != ports.PhaseSpec {
		t.Fatalf("expected phase to round-trip through disk, got %q", reloaded.Phase)
	}
	if _, err := os.Stat(filepath.Join(baseDir, "session-disk.json")); err != nil {
		t.Fatalf("expected session file on disk: %v", err)
	}
}

func TestFileStore_DeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()
	if err := store.Create(ctx, newTestSession("session-del")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Delete(ctx, "session-del"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "session-del"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "session-del"); !errors.Is(err, ports.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}
