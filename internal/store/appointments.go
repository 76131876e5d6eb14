package store

import (
	"context"

	"apptgate/backend/internal/domain"
)

type AppointmentRepository interface {
	// CountScheduled counts scheduled appointments for the practitioner on a
	// local calendar date ("YYYY-MM-DD" in the engine timezone).
	CountScheduled(ctx context.Context, practitionerID, date string) (int, error)

	// Book persists the appointment after re-checking the daily capacity
	// ceiling under a lock keyed by practitioner and date, so two concurrent
	// bookings cannot both pass the same CAPACITY check. maxPerDay <= 0
	// means no ceiling; at the ceiling Book returns ErrCapacity.
	Book(ctx context.Context, appt domain.Appointment, date string, maxPerDay int) (domain.Appointment, error)
}
