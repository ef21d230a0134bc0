package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/experience-booking/internal/persistence"
)

// ExperienceRepository implements persistence.ExperienceRepository using SQLite.
type ExperienceRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	now    func() time.Time
}

// NewExperienceRepository creates a new SQLite experience repository.
func NewExperienceRepository(pool *ConnectionPool) *ExperienceRepository {
	return &ExperienceRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

type experienceRow struct {
	ID                  string  `db:"id"`
	Title               string  `db:"title"`
	BasePrice           float64 `db:"base_price"`
	Currency            string  `db:"currency"`
	Tickets             string  `db:"tickets"`
	Addons              string  `db:"addons"`
	PricingRules        string  `db:"pricing_rules"`
	Recurrence          string  `db:"recurrence"`
	DefaultCapacity     int     `db:"default_capacity"`
	DefaultBufferBefore int     `db:"default_buffer_before"`
	DefaultBufferAfter  int     `db:"default_buffer_after"`
	ResourceLock        int     `db:"resource_lock"`
	CreatedAt           string  `db:"created_at"`
	UpdatedAt           string  `db:"updated_at"`
}

const experienceColumns = `id, title, base_price, currency, tickets, addons, pricing_rules, recurrence,
	default_capacity, default_buffer_before, default_buffer_after, resource_lock, created_at, updated_at`

func (row experienceRow) toExperience() (persistence.Experience, error) {
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return persistence.Experience{}, err
	}
	updated, err := parseTime(row.UpdatedAt)
	if err != nil {
		return persistence.Experience{}, err
	}
	return persistence.Experience{
		ID:           row.ID,
		Title:        row.Title,
		BasePrice:    row.BasePrice,
		Currency:     row.Currency,
		Tickets:      json.RawMessage(row.Tickets),
		Addons:       json.RawMessage(row.Addons),
		PricingRules: json.RawMessage(row.PricingRules),
		Recurrence:   json.RawMessage(row.Recurrence),
		Availability: persistence.AvailabilityDefaults{
			Capacity:     row.DefaultCapacity,
			BufferBefore: row.DefaultBufferBefore,
			BufferAfter:  row.DefaultBufferAfter,
			ResourceLock: row.ResourceLock != 0,
		},
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

// GetExperience retrieves an experience by ID.
func (r *ExperienceRepository) GetExperience(ctx context.Context, id string) (persistence.Experience, error) {
	if id == "" {
		return persistence.Experience{}, persistence.ErrNotFound
	}
	var row experienceRow
	if err := r.pool.Get(ctx, &row, `SELECT `+experienceColumns+` FROM experiences WHERE id = ?`, id); err != nil {
		return persistence.Experience{}, err
	}
	return row.toExperience()
}

// SaveExperience inserts or replaces an experience's configuration. The
// original creation time is kept on update.
func (r *ExperienceRepository) SaveExperience(ctx context.Context, experience persistence.Experience) error {
	if experience.ID == "" || experience.BasePrice < 0 {
		return persistence.ErrConstraintViolation
	}
	now := r.now()
	created := experience.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := experience.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	row := experienceRow{
		ID:                  experience.ID,
		Title:               experience.Title,
		BasePrice:           experience.BasePrice,
		Currency:            experience.Currency,
		Tickets:             rawOrDefault(experience.Tickets, "[]"),
		Addons:              rawOrDefault(experience.Addons, "[]"),
		PricingRules:        rawOrDefault(experience.PricingRules, "[]"),
		Recurrence:          rawOrDefault(experience.Recurrence, "{}"),
		DefaultCapacity:     max(experience.Availability.Capacity, 0),
		DefaultBufferBefore: max(experience.Availability.BufferBefore, 0),
		DefaultBufferAfter:  max(experience.Availability.BufferAfter, 0),
		ResourceLock:        boolToInt(experience.Availability.ResourceLock),
		CreatedAt:           formatTime(created),
		UpdatedAt:           formatTime(updated),
	}

	return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO experiences (`+experienceColumns+`)
			VALUES (:id, :title, :base_price, :currency, :tickets, :addons, :pricing_rules, :recurrence,
				:default_capacity, :default_buffer_before, :default_buffer_after, :resource_lock, :created_at, :updated_at)
			ON CONFLICT (id) DO UPDATE SET
				title = excluded.title,
				base_price = excluded.base_price,
				currency = excluded.currency,
				tickets = excluded.tickets,
				addons = excluded.addons,
				pricing_rules = excluded.pricing_rules,
				recurrence = excluded.recurrence,
				default_capacity = excluded.default_capacity,
				default_buffer_before = excluded.default_buffer_before,
				default_buffer_after = excluded.default_buffer_after,
				resource_lock = excluded.resource_lock,
				updated_at = excluded.updated_at
		`, row)
		return r.mapper.MapError(err)
	})
}
