package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"apptgate/backend/internal/domain"
)

// PolicyFilter narrows List results. Zero values mean "no filter".
type PolicyFilter struct {
	PractitionerID string
	Variant        domain.PolicyVariant
	Active         *bool
}

// PolicyUpdate is a partial, in-place mutation. Nil fields are unchanged.
// Payload must already be validated against the policy's variant.
type PolicyUpdate struct {
	Label          *string
	Payload        json.RawMessage
	Active         *bool
	Priority       *int
	LastModifiedBy string
}

type PolicyRepository interface {
	// ListActive returns active policies for the practitioner ordered by
	// priority descending; ties OVERRIDE first, then most recently updated.
	ListActive(ctx context.Context, practitionerID string) ([]domain.Policy, error)
	List(ctx context.Context, filter PolicyFilter) ([]domain.Policy, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Policy, error)
	Create(ctx context.Context, p domain.Policy) (domain.Policy, error)
	Update(ctx context.Context, id uuid.UUID, patch PolicyUpdate) (domain.Policy, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
