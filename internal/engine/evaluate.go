// Package engine evaluates candidate bookings against a practitioner's
// active scheduling policies. Evaluation is stateless and deterministic:
// the clock and the evaluation timezone are explicit parameters, every call
// re-reads the committed policy set, and conflicts come back in the exact
// order policies were applied.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"apptgate/backend/internal/domain"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Candidate is the booking being checked. It is never persisted here.
type Candidate struct {
	PractitionerID  string
	StartTime       time.Time
	DurationMinutes int
}

// Conflict is a single evaluation-time finding against one policy.
type Conflict struct {
	PolicyID      uuid.UUID            `json:"policyId"`
	PolicyVariant domain.PolicyVariant `json:"policyVariant"`
	PolicyLabel   string               `json:"policyLabel"`
	Severity      Severity             `json:"severity"`
	Reason        string               `json:"reason"`
	Overridable   bool                 `json:"overridable"`
}

// Result aggregates all conflicts for one candidate. Valid is true iff no
// conflict carries SeverityError; warnings and info never block a booking.
type Result struct {
	Valid     bool       `json:"valid"`
	Conflicts []Conflict `json:"conflicts"`
	Reasoning string     `json:"reasoning"`
}

// EvaluationError reports incomplete evaluation input. It is raised before
// any store access; evaluation never returns a partial result.
type EvaluationError struct {
	msg string
}

func (e *EvaluationError) Error() string {
	return e.msg
}

func evaluationError(msg string) error {
	return &EvaluationError{msg: msg}
}

// PolicySource yields the active policies for a practitioner.
type PolicySource interface {
	ListActive(ctx context.Context, practitionerID string) ([]domain.Policy, error)
}

// AppointmentCounter reports how many scheduled appointments a practitioner
// already has on a local calendar date ("YYYY-MM-DD").
type AppointmentCounter interface {
	CountScheduled(ctx context.Context, practitionerID, date string) (int, error)
}

type Evaluator struct {
	policies     PolicySource
	appointments AppointmentCounter
}

func New(policies PolicySource, appointments AppointmentCounter) *Evaluator {
	return &Evaluator{policies: policies, appointments: appointments}
}

// Evaluate checks the candidate against every active policy for the
// practitioner, in priority order, and aggregates the findings. now and loc
// are injected so calls are pure and replayable; all day/time derivation
// happens in loc, never on the raw instant.
func (e *Evaluator) Evaluate(ctx context.Context, cand Candidate, now time.Time, loc *time.Location) (Result, error) {
	if strings.TrimSpace(cand.PractitionerID) == "" {
		return Result{}, evaluationError("practitioner_id is required")
	}
	if cand.StartTime.IsZero() {
		return Result{}, evaluationError("start_time is required")
	}
	if cand.DurationMinutes <= 0 {
		return Result{}, evaluationError("duration_minutes must be positive")
	}
	if loc == nil {
		loc = time.UTC
	}

	active, err := e.policies.ListActive(ctx, cand.PractitionerID)
	if err != nil {
		return Result{}, err
	}
	orderPolicies(active)

	local := cand.StartTime.In(loc)
	day := int(local.Weekday())
	hhmm := local.Format("15:04")
	date := local.Format("2006-01-02")

	conflicts := make([]Conflict, 0, len(active))
	for _, p := range active {
		payload, err := p.DecodedPayload()
		if err != nil {
			return Result{}, fmt.Errorf("decode payload for policy %s: %w", p.ID, err)
		}

		switch pl := payload.(type) {
		case domain.AvailabilityPayload:
			conflicts = appendConflict(conflicts, checkAvailability(p, pl, local, day, hhmm))
		case domain.BlockPayload:
			conflicts = appendConflict(conflicts, checkBlock(p, pl, day, hhmm))
		case domain.OverridePayload:
			conflicts = appendConflict(conflicts, checkOverride(p, pl, date, hhmm))
		case domain.CapacityPayload:
			c, err := e.checkCapacity(ctx, p, pl, cand.PractitionerID, date)
			if err != nil {
				return Result{}, err
			}
			conflicts = appendConflict(conflicts, c)
		case domain.BookingWindowPayload:
			conflicts = appendConflict(conflicts, checkBookingWindow(p, pl, cand.StartTime, now))
		case domain.DurationPayload, domain.AppointmentTypePayload, domain.PatientTypePayload:
			// Storable but not yet consulted by this check. Each keeps its
			// own case so adding semantics later is a local change.
		}
	}

	return aggregate(conflicts), nil
}

// orderPolicies sorts by priority descending; ties put OVERRIDE policies
// first, then the most recently updated. The postgres store orders the same
// way, but re-sorting here keeps evaluation deterministic against any
// PolicySource.
func orderPolicies(policies []domain.Policy) {
	sort.SliceStable(policies, func(i, j int) bool {
		a, b := policies[i], policies[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		aOv := a.Variant == domain.VariantOverride
		bOv := b.Variant == domain.VariantOverride
		if aOv != bOv {
			return aOv
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
}

func checkAvailability(p domain.Policy, pl domain.AvailabilityPayload, local time.Time, day int, hhmm string) *Conflict {
	if !pl.Recurrence.AppliesOnDay(day) {
		return &Conflict{
			PolicyID:      p.ID,
			PolicyVariant: p.Variant,
			PolicyLabel:   p.Label,
			Severity:      SeverityError,
			Reason:        fmt.Sprintf("%s is outside the practitioner's available days", local.Weekday()),
			Overridable:   false,
		}
	}
	if len(pl.TimeWindows) == 0 {
		return nil
	}
	// Only the booking's start is checked against the windows; a booking may
	// run past the window end.
	for _, w := range pl.TimeWindows {
		if w.ContainsStart(hhmm) {
			return nil
		}
	}
	return &Conflict{
		PolicyID:      p.ID,
		PolicyVariant: p.Variant,
		PolicyLabel:   p.Label,
		Severity:      SeverityError,
		Reason:        fmt.Sprintf("%s is outside the practitioner's available hours", hhmm),
		Overridable:   false,
	}
}

func checkBlock(p domain.Policy, pl domain.BlockPayload, day int, hhmm string) *Conflict {
	if !pl.Recurrence.AppliesOnDay(day) {
		return nil
	}
	for _, w := range pl.TimeWindows {
		if w.ContainsStart(hhmm) {
			return &Conflict{
				PolicyID:      p.ID,
				PolicyVariant: p.Variant,
				PolicyLabel:   p.Label,
				Severity:      SeverityError,
				Reason:        withReason("requested time falls in a blocked period", pl.Reason),
				Overridable:   pl.AllowOverride,
			}
		}
	}
	return nil
}

func checkOverride(p domain.Policy, pl domain.OverridePayload, date, hhmm string) *Conflict {
	if pl.Date != date {
		return nil
	}
	switch pl.Action {
	case domain.OverrideActionBlock:
		// No windows means the whole day is blocked.
		if len(pl.TimeWindows) == 0 || windowContains(pl.TimeWindows, hhmm) {
			return &Conflict{
				PolicyID:      p.ID,
				PolicyVariant: p.Variant,
				PolicyLabel:   p.Label,
				Severity:      SeverityError,
				Reason:        withReason(fmt.Sprintf("%s is blocked by a one-off override", date), pl.Reason),
				Overridable:   false,
			}
		}
	case domain.OverrideActionAvailable:
		return applyOverrideAvailable(p, pl)
	}
	return nil
}

// applyOverrideAvailable is the extension point for OVERRIDE(available).
// Today an availability override is accepted but does not suppress conflicts
// raised by lower-priority policies; whether it should is an open product
// question, so the non-suppressing behavior is pinned by tests.
func applyOverrideAvailable(domain.Policy, domain.OverridePayload) *Conflict {
	return nil
}

func (e *Evaluator) checkCapacity(ctx context.Context, p domain.Policy, pl domain.CapacityPayload, practitionerID, date string) (*Conflict, error) {
	if pl.MaxAppointmentsPerDay <= 0 {
		return nil, nil
	}
	count, err := e.appointments.CountScheduled(ctx, practitionerID, date)
	if err != nil {
		return nil, err
	}
	if count < pl.MaxAppointmentsPerDay {
		return nil, nil
	}
	return &Conflict{
		PolicyID:      p.ID,
		PolicyVariant: p.Variant,
		PolicyLabel:   p.Label,
		Severity:      SeverityWarning,
		Reason:        fmt.Sprintf("practitioner already has %d of %d appointments on %s", count, pl.MaxAppointmentsPerDay, date),
		Overridable:   true,
	}, nil
}

func checkBookingWindow(p domain.Policy, pl domain.BookingWindowPayload, start, now time.Time) *Conflict {
	if pl.MinAdvanceHours <= 0 {
		return nil
	}
	if start.Sub(now) >= time.Duration(pl.MinAdvanceHours)*time.Hour {
		return nil
	}
	return &Conflict{
		PolicyID:      p.ID,
		PolicyVariant: p.Variant,
		PolicyLabel:   p.Label,
		Severity:      SeverityWarning,
		Reason:        fmt.Sprintf("bookings require at least %d hours notice", pl.MinAdvanceHours),
		Overridable:   true,
	}
}

func aggregate(conflicts []Conflict) Result {
	valid := true
	for _, c := range conflicts {
		if c.Severity == SeverityError {
			valid = false
			break
		}
	}
	reasoning := "No policy conflicts found"
	if len(conflicts) > 0 {
		reasoning = fmt.Sprintf("Found %d conflict(s)", len(conflicts))
	}
	return Result{Valid: valid, Conflicts: conflicts, Reasoning: reasoning}
}

func appendConflict(conflicts []Conflict, c *Conflict) []Conflict {
	if c == nil {
		return conflicts
	}
	return append(conflicts, *c)
}

func windowContains(windows []domain.TimeWindow, hhmm string) bool {
	for _, w := range windows {
		if w.ContainsStart(hhmm) {
			return true
		}
	}
	return false
}

func withReason(base, reason string) string {
	if strings.TrimSpace(reason) == "" {
		return base
	}
	return base + ": " + reason
}
