package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/infra/storage"
	"github.com/boddenberg/fintrack-go/internal/port"

	"go.uber.org/zap"
)

func newSQLite(t *testing.T, path string) *storage.SQLiteStore {
	t.Helper()
	s, err := storage.NewSQLiteStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStores(t *testing.T) {
	tests := []struct {
		name  string
		store func(t *testing.T) port.KeyValueStore
	}{
		{"memory", func(*testing.T) port.KeyValueStore { return storage.NewMemoryStore() }},
		{"sqlite", func(t *testing.T) port.KeyValueStore {
			return newSQLite(t, filepath.Join(t.TempDir(), "fintrack.db"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := tt.store(t)

			if _, ok, err := s.Get(ctx, domain.KeyAuthToken); err != nil || ok {
				t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
			}

			if err := s.Set(ctx, domain.KeyAuthToken, "tok-1"); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := s.Set(ctx, domain.KeyAuthToken, "tok-2"); err != nil {
				t.Fatalf("overwrite: %v", err)
			}

			v, ok, err := s.Get(ctx, domain.KeyAuthToken)
			if err != nil || !ok {
				t.Fatalf("expected key, got ok=%v err=%v", ok, err)
			}
			if v != "tok-2" {
				t.Errorf("expected last write to win, got %q", v)
			}

			if err := s.Delete(ctx, domain.KeyAuthToken); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := s.Delete(ctx, domain.KeyAuthToken); err != nil {
				t.Fatalf("delete missing key: %v", err)
			}
			if _, ok, _ := s.Get(ctx, domain.KeyAuthToken); ok {
				t.Error("expected key to be gone")
			}
		})
	}
}

func TestSQLiteStore_SharedAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	first := newSQLite(t, path)
	second := newSQLite(t, path)

	if err := first.Set(ctx, domain.KeyDarkMode, "true"); err != nil {
		t.Fatalf("set: %v", err)
	}

	v, ok, err := second.Get(ctx, domain.KeyDarkMode)
	if err != nil || !ok || v != "true" {
		t.Fatalf("expected second handle to see write, got %q ok=%v err=%v", v, ok, err)
	}

	if err := second.Delete(ctx, domain.KeyDarkMode); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := first.Get(ctx, domain.KeyDarkMode); ok {
		t.Error("expected first handle to see removal")
	}
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := storage.NewSQLiteStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set(ctx, domain.KeyActiveTab, "debts"); err != nil {
		t.Fatalf("set: %v", err)
	}
	s.Close()

	reopened := newSQLite(t, path)
	v, ok, err := reopened.Get(ctx, domain.KeyActiveTab)
	if err != nil || !ok || v != "debts" {
		t.Fatalf("expected persisted value, got %q ok=%v err=%v", v, ok, err)
	}
}
