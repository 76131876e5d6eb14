package policies

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"apptgate/backend/internal/domain"
	"apptgate/backend/internal/engine"
	"apptgate/backend/internal/notify"
	"apptgate/backend/internal/store"
)

// ValidationError reports a caller-fixable input problem. Fields carries the
// per-field messages for payload validation failures; a failed validation
// rejects the whole mutation, nothing is persisted.
type ValidationError struct {
	msg    string
	Fields []string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

func payloadValidationError(fields []string) error {
	return &ValidationError{msg: "invalid policy payload: " + strings.Join(fields, "; "), Fields: fields}
}

const defaultPriority = 5

type Service struct {
	repo         store.PolicyRepository
	appointments store.AppointmentRepository
	notifier     notify.Notifier
	evaluator    *engine.Evaluator
	now          func() time.Time
	loc          *time.Location
	log          *slog.Logger
}

// Config wires the service. Notifier, Now, Location and Logger are optional;
// Now and Location exist so evaluation is deterministic under test.
type Config struct {
	Policies     store.PolicyRepository
	Appointments store.AppointmentRepository
	Notifier     notify.Notifier
	Now          func() time.Time
	Location     *time.Location
	Logger       *slog.Logger
}

func NewService(cfg Config) *Service {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:         cfg.Policies,
		appointments: cfg.Appointments,
		notifier:     cfg.Notifier,
		evaluator:    engine.New(cfg.Policies, cfg.Appointments),
		now:          cfg.Now,
		loc:          cfg.Location,
		log:          cfg.Logger.With(slog.String("component", "service.policies")),
	}
}

type CreateInput struct {
	PractitionerID string
	Variant        domain.PolicyVariant
	Label          string
	Payload        json.RawMessage
	Active         *bool
	Priority       int
	CreatedBy      string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Policy, error) {
	if strings.TrimSpace(in.PractitionerID) == "" {
		return domain.Policy{}, validationError("practitioner_id is required")
	}
	label := strings.TrimSpace(in.Label)
	if label == "" {
		return domain.Policy{}, validationError("label is required")
	}
	if !in.Variant.Known() {
		return domain.Policy{}, validationError("unknown policy variant")
	}

	priority := in.Priority
	if priority == 0 {
		priority = defaultPriority
	}
	if err := domain.ValidatePriority(priority); err != nil {
		return domain.Policy{}, validationError(err.Error())
	}

	if _, fieldErrs := domain.ValidatePayload(in.Variant, in.Payload); fieldErrs != nil {
		return domain.Policy{}, payloadValidationError(fieldErrs)
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	created, err := s.repo.Create(ctx, domain.Policy{
		PractitionerID: in.PractitionerID,
		Variant:        in.Variant,
		Label:          label,
		Payload:        in.Payload,
		Active:         active,
		Priority:       priority,
		CreatedBy:      in.CreatedBy,
		LastModifiedBy: in.CreatedBy,
	})
	if err != nil {
		return domain.Policy{}, err
	}

	s.notifier.PolicyChanged(ctx, notify.EventPolicyCreated, created.PractitionerID, created)
	return created, nil
}

type UpdateInput struct {
	Label          *string
	Payload        json.RawMessage
	Active         *bool
	Priority       *int
	LastModifiedBy string
}

// Update mutates a policy in place. A payload replacement is re-validated
// against the stored variant before anything is written.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (domain.Policy, error) {
	if id == uuid.Nil {
		return domain.Policy{}, validationError("policy_id is required")
	}
	if in.Label != nil && strings.TrimSpace(*in.Label) == "" {
		return domain.Policy{}, validationError("label must not be empty")
	}
	if in.Priority != nil {
		if err := domain.ValidatePriority(*in.Priority); err != nil {
			return domain.Policy{}, validationError(err.Error())
		}
	}

	if in.Payload != nil {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return domain.Policy{}, err
		}
		if _, fieldErrs := domain.ValidatePayload(current.Variant, in.Payload); fieldErrs != nil {
			return domain.Policy{}, payloadValidationError(fieldErrs)
		}
	}

	updated, err := s.repo.Update(ctx, id, store.PolicyUpdate{
		Label:          in.Label,
		Payload:        in.Payload,
		Active:         in.Active,
		Priority:       in.Priority,
		LastModifiedBy: in.LastModifiedBy,
	})
	if err != nil {
		return domain.Policy{}, err
	}

	s.notifier.PolicyChanged(ctx, notify.EventPolicyUpdated, updated.PractitionerID, updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return validationError("policy_id is required")
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.notifier.PolicyChanged(ctx, notify.EventPolicyDeleted, p.PractitionerID, map[string]string{"id": id.String()})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Policy, error) {
	if id == uuid.Nil {
		return domain.Policy{}, validationError("policy_id is required")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter store.PolicyFilter) ([]domain.Policy, error) {
	if filter.Variant != "" && !filter.Variant.Known() {
		return nil, validationError("unknown policy variant")
	}
	return s.repo.List(ctx, filter)
}

// Explain renders the human-readable description of a stored policy.
func (s *Service) Explain(ctx context.Context, id uuid.UUID) (string, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return domain.Explain(p), nil
}

type EvaluateInput struct {
	PractitionerID  string
	StartTime       time.Time
	DurationMinutes int
}

// Evaluate checks a candidate booking against the practitioner's active
// policies. Conflicts are the successful output here, never errors.
func (s *Service) Evaluate(ctx context.Context, in EvaluateInput) (engine.Result, error) {
	return s.evaluator.Evaluate(ctx, engine.Candidate{
		PractitionerID:  in.PractitionerID,
		StartTime:       in.StartTime,
		DurationMinutes: in.DurationMinutes,
	}, s.now(), s.loc)
}

type BookInput struct {
	PractitionerID  string
	PatientID       string
	StartTime       time.Time
	DurationMinutes int
}

// Book persists an appointment through the store's serialized path, which
// re-checks the strictest active daily capacity ceiling under a lock keyed
// by practitioner and date. This closes the window between a passing
// Evaluate call and the commit.
func (s *Service) Book(ctx context.Context, in BookInput) (domain.Appointment, error) {
	if strings.TrimSpace(in.PractitionerID) == "" {
		return domain.Appointment{}, validationError("practitioner_id is required")
	}
	if strings.TrimSpace(in.PatientID) == "" {
		return domain.Appointment{}, validationError("patient_id is required")
	}
	if in.StartTime.IsZero() {
		return domain.Appointment{}, validationError("start_time is required")
	}
	if in.DurationMinutes <= 0 {
		return domain.Appointment{}, validationError("duration_minutes must be positive")
	}

	start := in.StartTime.UTC()
	date := in.StartTime.In(s.loc).Format("2006-01-02")

	maxPerDay, err := s.dailyCeiling(ctx, in.PractitionerID)
	if err != nil {
		return domain.Appointment{}, err
	}

	return s.appointments.Book(ctx, domain.Appointment{
		PractitionerID: in.PractitionerID,
		PatientID:      in.PatientID,
		StartTime:      start,
		EndTime:        start.Add(time.Duration(in.DurationMinutes) * time.Minute),
		Status:         domain.AppointmentStatusScheduled,
	}, date, maxPerDay)
}

// dailyCeiling returns the highest-priority active CAPACITY ceiling, or 0
// when none applies.
func (s *Service) dailyCeiling(ctx context.Context, practitionerID string) (int, error) {
	active, err := s.repo.ListActive(ctx, practitionerID)
	if err != nil {
		return 0, err
	}
	for _, p := range active {
		if p.Variant != domain.VariantCapacity {
			continue
		}
		payload, err := p.DecodedPayload()
		if err != nil {
			return 0, err
		}
		if cp, ok := payload.(domain.CapacityPayload); ok && cp.MaxAppointmentsPerDay > 0 {
			return cp.MaxAppointmentsPerDay, nil
		}
	}
	return 0, nil
}
