package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type PolicyVariant string

const (
	VariantAvailability    PolicyVariant = "AVAILABILITY"
	VariantBlock           PolicyVariant = "BLOCK"
	VariantOverride        PolicyVariant = "OVERRIDE"
	VariantDuration        PolicyVariant = "DURATION"
	VariantAppointmentType PolicyVariant = "APPOINTMENT_TYPE"
	VariantBookingWindow   PolicyVariant = "BOOKING_WINDOW"
	VariantCapacity        PolicyVariant = "CAPACITY"
	VariantPatientType     PolicyVariant = "PATIENT_TYPE"
)

func (v PolicyVariant) Known() bool {
	switch v {
	case VariantAvailability, VariantBlock, VariantOverride, VariantDuration,
		VariantAppointmentType, VariantBookingWindow, VariantCapacity, VariantPatientType:
		return true
	}
	return false
}

const (
	PriorityMin = 1
	PriorityMax = 10
)

// Policy is a stored scheduling rule for one practitioner. The payload column
// holds the JSON document for the declared variant; it is validated before
// every insert and update, so a stored payload always decodes cleanly.
type Policy struct {
	bun.BaseModel `bun:"table:policies"`

	ID             uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	PractitionerID string          `bun:"practitioner_id,notnull" json:"practitionerId"`
	Variant        PolicyVariant   `bun:"variant,notnull" json:"variant"`
	Label          string          `bun:"label,notnull" json:"label"`
	Payload        json.RawMessage `bun:"payload,type:jsonb,notnull" json:"payload"`
	Active         bool            `bun:"active,notnull" json:"active"`
	Priority       int             `bun:"priority,notnull" json:"priority"`
	CreatedBy      string          `bun:"created_by" json:"createdBy"`
	LastModifiedBy string          `bun:"last_modified_by" json:"lastModifiedBy"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull" json:"updatedAt"`
}

func (p *Policy) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			p.ID = id
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}

// DecodedPayload returns the typed payload for the policy's declared variant.
func (p *Policy) DecodedPayload() (PolicyPayload, error) {
	return DecodePayload(p.Variant, p.Payload)
}
