package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"apptgate/backend/internal/domain"
	"apptgate/backend/internal/store"
)

type AppointmentRepo struct {
	db  *bun.DB
	loc *time.Location
}

// NewAppointmentRepo builds the appointment store. loc is the fixed engine
// timezone; calendar-date parameters are interpreted in it.
func NewAppointmentRepo(db *bun.DB, loc *time.Location) *AppointmentRepo {
	if loc == nil {
		loc = time.UTC
	}
	return &AppointmentRepo{db: db, loc: loc}
}

func (r *AppointmentRepo) CountScheduled(ctx context.Context, practitionerID, date string) (int, error) {
	dayStart, dayEnd, err := r.dayBounds(date)
	if err != nil {
		return 0, err
	}
	return r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("practitioner_id = ?", practitionerID).
		Where("status = ?", domain.AppointmentStatusScheduled).
		Where("start_time >= ?", dayStart).
		Where("start_time < ?", dayEnd).
		Count(ctx)
}

// Book inserts the appointment inside a transaction that first serializes on
// (practitioner, date) and re-checks the daily ceiling. An evaluation that
// passed a CAPACITY check can still lose the race here and get ErrCapacity.
func (r *AppointmentRepo) Book(ctx context.Context, appt domain.Appointment, date string, maxPerDay int) (domain.Appointment, error) {
	dayStart, dayEnd, err := r.dayBounds(date)
	if err != nil {
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	err = r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockPractitionerDay(ctx, tx, appt.PractitionerID, date); err != nil {
			return err
		}

		if maxPerDay > 0 {
			count, err := tx.NewSelect().
				Model((*domain.Appointment)(nil)).
				Where("practitioner_id = ?", appt.PractitionerID).
				Where("status = ?", domain.AppointmentStatusScheduled).
				Where("start_time >= ?", dayStart).
				Where("start_time < ?", dayEnd).
				Count(ctx)
			if err != nil {
				return err
			}
			if count >= maxPerDay {
				return store.ErrCapacity
			}
		}

		m := appt
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func lockPractitionerDay(ctx context.Context, tx bun.Tx, practitionerID, date string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", practitionerID+":"+date).Exec(ctx)
	return err
}

func (r *AppointmentRepo) dayBounds(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, r.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return day, day.AddDate(0, 0, 1), nil
}
