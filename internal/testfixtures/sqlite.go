package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/experience-booking/internal/persistence/sqlite"
)

// NewSQLiteStore opens a migrated SQLite store in a temporary file. The store
// is closed through tb.Cleanup.
func NewSQLiteStore(tb testing.TB, opts ...sqlite.Option) *sqlite.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "booking.db")
	opts = append([]sqlite.Option{sqlite.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)

	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path), opts...)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	tb.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
