package sqlite

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/experience-booking/internal/capacity"
	"github.com/example/experience-booking/internal/persistence"
)

// ReservationRepository implements persistence.ReservationRepository using SQLite.
type ReservationRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	now    func() time.Time
}

// NewReservationRepository creates a new SQLite reservation repository.
func NewReservationRepository(pool *ConnectionPool) *ReservationRepository {
	return &ReservationRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

type reservationRow struct {
	ID           string `db:"id"`
	SlotID       string `db:"slot_id"`
	ExperienceID string `db:"experience_id"`
	Status       string `db:"status"`
	Pax          int    `db:"pax"`
	PaxByType    string `db:"pax_by_type"`
	CreatedAt    string `db:"created_at"`
}

const reservationColumns = `id, slot_id, experience_id, status, pax, pax_by_type, created_at`

func (row reservationRow) toReservation() (persistence.Reservation, error) {
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return persistence.Reservation{}, err
	}
	paxByType, err := decodeCounts(row.PaxByType)
	if err != nil {
		return persistence.Reservation{}, err
	}
	return persistence.Reservation{
		ID:           row.ID,
		SlotID:       row.SlotID,
		ExperienceID: row.ExperienceID,
		Status:       persistence.ReservationStatus(row.Status),
		Pax:          row.Pax,
		PaxByType:    paxByType,
		CreatedAt:    created,
	}, nil
}

// tallySlot sums the live bookings of a slot inside tx.
func tallySlot(ctx context.Context, tx *sqlx.Tx, slotID string) (capacity.Booked, error) {
	var rows []reservationRow
	err := tx.SelectContext(ctx, &rows, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE slot_id = ? AND status <> ?
	`, slotID, string(persistence.ReservationStatusCancelled))
	if err != nil {
		return capacity.Booked{}, NewErrorMapper().MapError(err)
	}

	reservations := make([]persistence.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := row.toReservation()
		if err != nil {
			return capacity.Booked{}, err
		}
		reservations = append(reservations, reservation)
	}
	return persistence.TallyReservations(reservations), nil
}

// CreateReservation inserts the reservation if guard accepts it against the
// slot's live bookings. The read and the insert share one IMMEDIATE
// transaction, so concurrent bookings cannot both pass the guard.
func (r *ReservationRepository) CreateReservation(ctx context.Context, reservation persistence.Reservation, guard persistence.ReservationGuard) error {
	if reservation.ID == "" || reservation.SlotID == "" || reservation.Pax <= 0 {
		return persistence.ErrConstraintViolation
	}
	status := reservation.Status
	if status == "" {
		status = persistence.ReservationStatusConfirmed
	}
	paxByType, err := encodeCounts(reservation.PaxByType)
	if err != nil {
		return err
	}
	created := reservation.CreatedAt
	if created.IsZero() {
		created = r.now()
	}

	return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		var row slotRow
		if err := tx.GetContext(ctx, &row, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, reservation.SlotID); err != nil {
			return r.mapper.MapError(err)
		}
		slot, err := row.toSlot()
		if err != nil {
			return err
		}

		if guard != nil {
			booked, err := tallySlot(ctx, tx, slot.ID)
			if err != nil {
				return err
			}
			if err := guard(slot, booked); err != nil {
				return err
			}
		}

		experienceID := reservation.ExperienceID
		if experienceID == "" {
			experienceID = slot.ExperienceID
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservations (`+reservationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, reservation.ID, slot.ID, experienceID, string(status), reservation.Pax, paxByType, formatTime(created))
		return r.mapper.MapError(err)
	})
}

// CancelReservation marks a reservation cancelled and returns its final state.
// Cancelling twice is not an error.
func (r *ReservationRepository) CancelReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	var cancelled persistence.Reservation
	err := r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		var row reservationRow
		if err := tx.GetContext(ctx, &row, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE reservations SET status = ? WHERE id = ?`,
			string(persistence.ReservationStatusCancelled), id); err != nil {
			return r.mapper.MapError(err)
		}
		row.Status = string(persistence.ReservationStatusCancelled)

		reservation, err := row.toReservation()
		if err != nil {
			return err
		}
		cancelled = reservation
		return nil
	})
	if err != nil {
		return persistence.Reservation{}, err
	}
	return cancelled, nil
}

// ListReservations returns every reservation, cancelled ones included, held on
// the given slots ordered by creation time.
func (r *ReservationRepository) ListReservations(ctx context.Context, slotIDs []string) ([]persistence.Reservation, error) {
	if len(slotIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+reservationColumns+` FROM reservations
		WHERE slot_id IN (?)
		ORDER BY created_at, id
	`, slotIDs)
	if err != nil {
		return nil, err
	}

	var rows []reservationRow
	if err := r.pool.Select(ctx, &rows, r.pool.DB().Rebind(query), args...); err != nil {
		return nil, err
	}

	reservations := make([]persistence.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := row.toReservation()
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}
