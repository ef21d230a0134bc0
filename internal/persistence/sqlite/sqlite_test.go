package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/experience-booking/internal/persistence"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "booking.db")
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	store, err := Open(context.Background(), DefaultConfig(path), opts...)
	require.NoError(t, err, "failed to open storage")
	t.Cleanup(func() {
		_ = store.Close()
	})

	require.NoError(t, store.Migrate(context.Background()), "failed to migrate")
	return store
}

func TestConfigDSN(t *testing.T) {
	t.Parallel()

	dsn := DefaultConfig("/var/lib/booking/booking.db").DSN()
	assert.True(t, strings.HasPrefix(dsn, "file:/var/lib/booking/booking.db?"), dsn)
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "busy_timeout%285000%29")
	assert.Contains(t, dsn, "foreign_keys%281%29")
	assert.Contains(t, dsn, "journal_mode%28WAL%29")

	memory := DefaultConfig(":memory:").DSN()
	assert.NotContains(t, memory, "journal_mode", "WAL is meaningless for in-memory databases")
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "empty path", mutate: func(c *Config) { c.Path = " " }, want: "path cannot be empty"},
		{name: "negative busy timeout", mutate: func(c *Config) { c.BusyTimeout = -time.Second }, want: "busy timeout"},
		{name: "unknown journal mode", mutate: func(c *Config) { c.JournalMode = "FAST" }, want: "invalid journal mode"},
		{name: "unknown synchronous", mutate: func(c *Config) { c.Synchronous = "SOMETIMES" }, want: "invalid synchronous mode"},
		{name: "negative pool", mutate: func(c *Config) { c.MaxOpenConns = -1 }, want: "cannot be negative"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			config := DefaultConfig("booking.db")
			tt.mutate(&config)
			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, DefaultConfig("booking.db").Validate())
}

func TestErrorMapper(t *testing.T) {
	t.Parallel()

	mapper := NewErrorMapper()
	assert.NoError(t, mapper.MapError(nil))
	assert.ErrorIs(t, mapper.MapError(sql.ErrNoRows), persistence.ErrNotFound)
	assert.ErrorIs(t, mapper.MapError(fmt.Errorf("wrapped: %w", persistence.ErrDuplicate)), persistence.ErrDuplicate)
	assert.ErrorIs(t, mapper.MapError(errors.New("UNIQUE constraint failed: slots.id")), persistence.ErrDuplicate)
	assert.ErrorIs(t, mapper.MapError(errors.New("FOREIGN KEY constraint failed")), persistence.ErrForeignKeyViolation)
	assert.ErrorIs(t, mapper.MapError(errors.New("CHECK constraint failed: pax > 0")), persistence.ErrConstraintViolation)
	assert.ErrorIs(t, mapper.MapError(errors.New("database is locked")), errBusy)

	plain := errors.New("disk on fire")
	assert.Equal(t, plain, mapper.MapError(plain))
}

func TestErrorMapperOnDriverErrors(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.pool.DB().ExecContext(ctx, `
		INSERT INTO reservations (id, slot_id, experience_id, status, pax, pax_by_type, created_at)
		VALUES ('r1', 'no-such-slot', 'e1', 'confirmed', 1, '{}', '2025-01-01T00:00:00.000000000Z')
	`)
	require.Error(t, err)
	assert.ErrorIs(t, store.pool.mapper.MapError(err), persistence.ErrForeignKeyViolation)

	_, err = store.pool.DB().ExecContext(ctx, `
		INSERT INTO slots (id, experience_id, start_utc, end_utc, created_at, updated_at)
		VALUES ('s1', 'e1', '2025-01-01T10:00:00.000000000Z', '2025-01-01T09:00:00.000000000Z', 'x', 'x')
	`)
	require.Error(t, err)
	assert.ErrorIs(t, store.pool.mapper.MapError(err), persistence.ErrConstraintViolation)
}

func TestRetryHelper(t *testing.T) {
	t.Parallel()

	config := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}

	t.Run("retries busy errors until success", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := NewRetryHelper(config).WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := NewRetryHelper(config).WithRetry(context.Background(), func() error {
			calls++
			return errors.New("SQLITE_BUSY")
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, errBusy)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry other failures", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := NewRetryHelper(config).WithRetry(context.Background(), func() error {
			calls++
			return sql.ErrNoRows
		})
		assert.ErrorIs(t, err, persistence.ErrNotFound)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		err := NewRetryHelper(config).WithRetry(ctx, func() error {
			cancel()
			return errors.New("database is locked")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))

	var tables []string
	require.NoError(t, store.pool.DB().Select(&tables, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name IN ('experiences', 'slots', 'reservations')
		ORDER BY name
	`))
	assert.Equal(t, []string{"experiences", "reservations", "slots"}, tables)
}

func TestStoreClockStampsRows(t *testing.T) {
	t.Parallel()

	stamp := time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, WithClock(func() time.Time { return stamp }))
	ctx := context.Background()

	slot := persistence.Slot{
		ID:            "s1",
		ExperienceID:  "walk",
		Start:         stamp.Add(24 * time.Hour),
		End:           stamp.Add(25 * time.Hour),
		CapacityTotal: 4,
	}
	require.NoError(t, store.InsertSlot(ctx, slot))

	stored, err := store.GetSlot(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, stored.CreatedAt.Equal(stamp))
	assert.Equal(t, persistence.SlotStatusActive, stored.Status)
	require.NoError(t, store.Ping(ctx))
}

func TestTimeCodec(t *testing.T) {
	t.Parallel()

	local := time.Date(2025, time.March, 30, 3, 30, 0, 0, time.FixedZone("CEST", 2*60*60))
	encoded := formatTime(local)
	assert.Equal(t, "2025-03-30T01:30:00.000000000Z", encoded)

	decoded, err := parseTime(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.Equal(local))

	legacy, err := parseTime("2025-03-30T01:30:00Z")
	require.NoError(t, err)
	assert.True(t, legacy.Equal(local))

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}
