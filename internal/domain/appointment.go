package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Appointment is a persisted booking. The policy engine only reads this
// table for capacity counting; writes go through the serialized booking path.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID             uuid.UUID         `bun:"id,pk,type:uuid" json:"id"`
	PractitionerID string            `bun:"practitioner_id,notnull" json:"practitionerId"`
	PatientID      string            `bun:"patient_id,notnull" json:"patientId"`
	StartTime      time.Time         `bun:"start_time,notnull" json:"startTime"`
	EndTime        time.Time         `bun:"end_time,notnull" json:"endTime"`
	Status         AppointmentStatus `bun:"status,notnull" json:"status"`
	CreatedAt      time.Time         `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt      time.Time         `bun:"updated_at,notnull" json:"updatedAt"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.Status == "" {
			a.Status = AppointmentStatusScheduled
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
