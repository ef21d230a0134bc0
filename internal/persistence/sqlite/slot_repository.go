package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/experience-booking/internal/persistence"
)

// SlotRepository implements persistence.SlotRepository using SQLite.
type SlotRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	now    func() time.Time
}

// NewSlotRepository creates a new SQLite slot repository.
func NewSlotRepository(pool *ConnectionPool) *SlotRepository {
	return &SlotRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

type slotRow struct {
	ID              string `db:"id"`
	ExperienceID    string `db:"experience_id"`
	StartUTC        string `db:"start_utc"`
	EndUTC          string `db:"end_utc"`
	CapacityTotal   int    `db:"capacity_total"`
	CapacityPerType string `db:"capacity_per_type"`
	Status          string `db:"status"`
	BufferBefore    int    `db:"buffer_before"`
	BufferAfter     int    `db:"buffer_after"`
	CreatedAt       string `db:"created_at"`
	UpdatedAt       string `db:"updated_at"`
}

const slotColumns = `id, experience_id, start_utc, end_utc, capacity_total, capacity_per_type,
	status, buffer_before, buffer_after, created_at, updated_at`

func newSlotRow(slot persistence.Slot, now time.Time) (slotRow, error) {
	perType, err := encodeCounts(slot.CapacityPerType)
	if err != nil {
		return slotRow{}, err
	}
	status := slot.Status
	if status == "" {
		status = persistence.SlotStatusActive
	}
	created := slot.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := slot.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	return slotRow{
		ID:              slot.ID,
		ExperienceID:    slot.ExperienceID,
		StartUTC:        formatTime(slot.Start),
		EndUTC:          formatTime(slot.End),
		CapacityTotal:   slot.CapacityTotal,
		CapacityPerType: perType,
		Status:          string(status),
		BufferBefore:    slot.BufferBefore,
		BufferAfter:     slot.BufferAfter,
		CreatedAt:       formatTime(created),
		UpdatedAt:       formatTime(updated),
	}, nil
}

func (row slotRow) toSlot() (persistence.Slot, error) {
	start, err := parseTime(row.StartUTC)
	if err != nil {
		return persistence.Slot{}, err
	}
	end, err := parseTime(row.EndUTC)
	if err != nil {
		return persistence.Slot{}, err
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return persistence.Slot{}, err
	}
	updated, err := parseTime(row.UpdatedAt)
	if err != nil {
		return persistence.Slot{}, err
	}
	perType, err := decodeCounts(row.CapacityPerType)
	if err != nil {
		return persistence.Slot{}, err
	}
	return persistence.Slot{
		ID:              row.ID,
		ExperienceID:    row.ExperienceID,
		Start:           start,
		End:             end,
		CapacityTotal:   row.CapacityTotal,
		CapacityPerType: perType,
		Status:          persistence.SlotStatus(row.Status),
		BufferBefore:    row.BufferBefore,
		BufferAfter:     row.BufferAfter,
		CreatedAt:       created,
		UpdatedAt:       updated,
	}, nil
}

func validateSlot(slot persistence.Slot) error {
	if slot.ID == "" || slot.ExperienceID == "" {
		return persistence.ErrConstraintViolation
	}
	if !slot.End.After(slot.Start) || slot.CapacityTotal < 0 {
		return persistence.ErrConstraintViolation
	}
	return nil
}

// InsertSlot inserts a new slot. Identity collisions surface as persistence.ErrDuplicate.
func (r *SlotRepository) InsertSlot(ctx context.Context, slot persistence.Slot) error {
	if err := validateSlot(slot); err != nil {
		return err
	}
	row, err := newSlotRow(slot, r.now().UTC())
	if err != nil {
		return err
	}

	return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO slots (`+slotColumns+`)
			VALUES (:id, :experience_id, :start_utc, :end_utc, :capacity_total, :capacity_per_type,
				:status, :buffer_before, :buffer_after, :created_at, :updated_at)
		`, row)
		return r.mapper.MapError(err)
	})
}

// UpsertSlot inserts the slot or updates the capacity and buffers of the row
// sharing its identity once guard accepts the new capacity.
func (r *SlotRepository) UpsertSlot(ctx context.Context, slot persistence.Slot, guard persistence.CapacityGuard) (string, bool, error) {
	if err := validateSlot(slot); err != nil {
		return "", false, err
	}
	now := r.now().UTC()
	row, err := newSlotRow(slot, now)
	if err != nil {
		return "", false, err
	}

	var (
		id      string
		created bool
	)
	err = r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		var existing slotRow
		err := tx.GetContext(ctx, &existing, `
			SELECT `+slotColumns+` FROM slots
			WHERE experience_id = ? AND start_utc = ? AND end_utc = ?
		`, row.ExperienceID, row.StartUTC, row.EndUTC)
		switch mapped := r.mapper.MapError(err); {
		case errors.Is(mapped, persistence.ErrNotFound):
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO slots (`+slotColumns+`)
				VALUES (:id, :experience_id, :start_utc, :end_utc, :capacity_total, :capacity_per_type,
					:status, :buffer_before, :buffer_after, :created_at, :updated_at)
			`, row); err != nil {
				return r.mapper.MapError(err)
			}
			id, created = row.ID, true
			return nil
		case mapped != nil:
			return mapped
		}

		if guard != nil {
			booked, err := tallySlot(ctx, tx, existing.ID)
			if err != nil {
				return err
			}
			if err := guard(booked); err != nil {
				return err
			}
		}

		perType := existing.CapacityPerType
		if slot.CapacityPerType != nil {
			perType = row.CapacityPerType
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE slots
			SET capacity_total = ?, capacity_per_type = ?, buffer_before = ?, buffer_after = ?, updated_at = ?
			WHERE id = ?
		`, row.CapacityTotal, perType, row.BufferBefore, row.BufferAfter, formatTime(now), existing.ID); err != nil {
			return r.mapper.MapError(err)
		}
		id = existing.ID
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return id, created, nil
}

// GetSlot retrieves a slot by ID.
func (r *SlotRepository) GetSlot(ctx context.Context, id string) (persistence.Slot, error) {
	if id == "" {
		return persistence.Slot{}, persistence.ErrNotFound
	}
	var row slotRow
	if err := r.pool.Get(ctx, &row, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, id); err != nil {
		return persistence.Slot{}, err
	}
	return row.toSlot()
}

// FindSlotByIdentity retrieves the slot of an experience at exactly start and end.
func (r *SlotRepository) FindSlotByIdentity(ctx context.Context, experienceID string, start, end time.Time) (persistence.Slot, error) {
	var row slotRow
	err := r.pool.Get(ctx, &row, `
		SELECT `+slotColumns+` FROM slots
		WHERE experience_id = ? AND start_utc = ? AND end_utc = ?
	`, experienceID, formatTime(start), formatTime(end))
	if err != nil {
		return persistence.Slot{}, err
	}
	return row.toSlot()
}

// ListSlots returns the slots matching filter ordered by start time.
func (r *SlotRepository) ListSlots(ctx context.Context, filter persistence.SlotFilter) ([]persistence.Slot, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.ExperienceID != "" {
		conditions = append(conditions, "experience_id = ?")
		args = append(args, filter.ExperienceID)
	}
	if filter.StartsAtOrAfter != nil {
		conditions = append(conditions, "start_utc >= ?")
		args = append(args, formatTime(*filter.StartsAtOrAfter))
	}
	if filter.StartsBefore != nil {
		conditions = append(conditions, "start_utc < ?")
		args = append(args, formatTime(*filter.StartsBefore))
	}
	if !filter.IncludeCancelled {
		conditions = append(conditions, "status <> ?")
		args = append(args, string(persistence.SlotStatusCancelled))
	}

	query := `SELECT ` + slotColumns + ` FROM slots`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY start_utc, id"

	var rows []slotRow
	if err := r.pool.Select(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	slots := make([]persistence.Slot, 0, len(rows))
	for _, row := range rows {
		slot, err := row.toSlot()
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// MoveSlot relocates a slot in time without touching its capacity.
func (r *SlotRepository) MoveSlot(ctx context.Context, id string, start, end time.Time) error {
	if !end.After(start) {
		return persistence.ErrConstraintViolation
	}
	return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE slots SET start_utc = ?, end_utc = ?, updated_at = ? WHERE id = ?
		`, formatTime(start), formatTime(end), formatTime(r.now()), id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireAffected(result)
	})
}

// UpdateSlotCapacity replaces the slot's capacity after guard accepted it
// against the bookings read in the same transaction.
func (r *SlotRepository) UpdateSlotCapacity(ctx context.Context, id string, total int, perType map[string]int, guard persistence.CapacityGuard) error {
	if total < 0 {
		return persistence.ErrConstraintViolation
	}
	encoded, err := encodeCounts(perType)
	if err != nil {
		return err
	}

	return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT 1 FROM slots WHERE id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		if guard != nil {
			booked, err := tallySlot(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := guard(booked); err != nil {
				return err
			}
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE slots SET capacity_total = ?, capacity_per_type = ?, updated_at = ? WHERE id = ?
		`, total, encoded, formatTime(r.now()), id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireAffected(result)
	})
}

// UpdateSlotStatus changes the lifecycle status of a slot.
func (r *SlotRepository) UpdateSlotStatus(ctx context.Context, id string, status persistence.SlotStatus) error {
	return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE slots SET status = ?, updated_at = ? WHERE id = ?
		`, string(status), formatTime(r.now()), id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireAffected(result)
	})
}

type sqlResult interface {
	RowsAffected() (int64, error)
}

func requireAffected(result sqlResult) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
