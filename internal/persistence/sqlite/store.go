package sqlite

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/experience-booking/internal/persistence"
)

// Store bundles the SQLite repositories over one connection pool.
type Store struct {
	*SlotRepository
	*ReservationRepository
	*ExperienceRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

var _ persistence.Store = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used for migration output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used to stamp created/updated columns.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now == nil {
			return
		}
		s.SlotRepository.now = now
		s.ReservationRepository.now = now
		s.ExperienceRepository.now = now
	}
}

// Open connects to the database described by config.
func Open(ctx context.Context, config Config, opts ...Option) (*Store, error) {
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}

	store := &Store{
		SlotRepository:        NewSlotRepository(pool),
		ReservationRepository: NewReservationRepository(pool),
		ExperienceRepository:  NewExperienceRepository(pool),
		pool:                  pool,
		logger:                slog.Default(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return RunMigrations(ctx, s.pool, s.logger)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
