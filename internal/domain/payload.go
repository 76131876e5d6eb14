package domain

import (
	"encoding/json"
	"fmt"
)

type RecurrenceType string

const (
	RecurrenceDaily    RecurrenceType = "daily"
	RecurrenceWeekly   RecurrenceType = "weekly"
	RecurrenceBiweekly RecurrenceType = "biweekly"
	RecurrenceMonthly  RecurrenceType = "monthly"
	RecurrenceOnce     RecurrenceType = "once"
)

func (t RecurrenceType) Known() bool {
	switch t {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceBiweekly, RecurrenceMonthly, RecurrenceOnce:
		return true
	}
	return false
}

// Recurrence describes when a recurring policy applies. Days of week use
// 0=Sunday through 6=Saturday.
type Recurrence struct {
	Type       RecurrenceType `json:"type"`
	DaysOfWeek []int          `json:"daysOfWeek,omitempty"`
	StartDate  string         `json:"startDate,omitempty"`
	EndDate    *string        `json:"endDate,omitempty"`
}

// AppliesOnDay reports whether the recurrence includes the given weekday.
// An empty day list places no restriction.
func (r Recurrence) AppliesOnDay(day int) bool {
	if len(r.DaysOfWeek) == 0 {
		return true
	}
	for _, d := range r.DaysOfWeek {
		if d == day {
			return true
		}
	}
	return false
}

// TimeWindow is a same-day interval in zero-padded "HH:MM" strings.
// Zero-padding makes lexicographic comparison equal to temporal comparison.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ContainsStart reports whether hhmm falls in the half-open window
// [start, end).
func (w TimeWindow) ContainsStart(hhmm string) bool {
	return hhmm >= w.Start && hhmm < w.End
}

type OverrideAction string

const (
	OverrideActionBlock     OverrideAction = "block"
	OverrideActionAvailable OverrideAction = "available"
)

// PolicyPayload is the closed set of variant payloads. Exactly one struct
// implements it per PolicyVariant, so validator, evaluator and explainer can
// dispatch exhaustively on the concrete type.
type PolicyPayload interface {
	PayloadVariant() PolicyVariant
}

type AvailabilityPayload struct {
	Recurrence  Recurrence   `json:"recurrence"`
	TimeWindows []TimeWindow `json:"timeWindows"`
}

func (AvailabilityPayload) PayloadVariant() PolicyVariant { return VariantAvailability }

type BlockPayload struct {
	Recurrence    Recurrence   `json:"recurrence"`
	TimeWindows   []TimeWindow `json:"timeWindows"`
	Reason        string       `json:"reason"`
	AllowOverride bool         `json:"allowOverride"`
}

func (BlockPayload) PayloadVariant() PolicyVariant { return VariantBlock }

type OverridePayload struct {
	Date        string         `json:"date"`
	Action      OverrideAction `json:"action"`
	TimeWindows []TimeWindow   `json:"timeWindows,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Priority    int            `json:"priority,omitempty"`
}

func (OverridePayload) PayloadVariant() PolicyVariant { return VariantOverride }

type DurationPayload struct {
	DefaultLength   int `json:"defaultLength"`
	BufferBefore    int `json:"bufferBefore,omitempty"`
	BufferAfter     int `json:"bufferAfter,omitempty"`
	MaxPerDay       int `json:"maxPerDay,omitempty"`
	VarianceMinutes int `json:"varianceMinutes,omitempty"`
}

func (DurationPayload) PayloadVariant() PolicyVariant { return VariantDuration }

type AppointmentTypePayload struct {
	TypeName      string `json:"typeName"`
	Duration      int    `json:"duration"`
	BufferBefore  int    `json:"bufferBefore,omitempty"`
	BufferAfter   int    `json:"bufferAfter,omitempty"`
	RoomType      string `json:"roomType,omitempty"`
	MaxConcurrent int    `json:"maxConcurrent,omitempty"`
}

func (AppointmentTypePayload) PayloadVariant() PolicyVariant { return VariantAppointmentType }

type BookingWindowPayload struct {
	MinAdvanceHours     int    `json:"minAdvanceHours"`
	MaxAdvanceDays      int    `json:"maxAdvanceDays,omitempty"`
	AllowSameDayBooking bool   `json:"allowSameDayBooking,omitempty"`
	CutoffTime          string `json:"cutoffTime,omitempty"`
}

func (BookingWindowPayload) PayloadVariant() PolicyVariant { return VariantBookingWindow }

type CapacityPayload struct {
	MaxAppointmentsPerHour int         `json:"maxAppointmentsPerHour,omitempty"`
	MaxAppointmentsPerDay  int         `json:"maxAppointmentsPerDay"`
	MaxNewPatientsPerDay   int         `json:"maxNewPatientsPerDay,omitempty"`
	TimeWindow             *TimeWindow `json:"timeWindow,omitempty"`
}

func (CapacityPayload) PayloadVariant() PolicyVariant { return VariantCapacity }

type PatientTypePayload struct {
	PatientType        string       `json:"patientType"`
	AllowedDays        []int        `json:"allowedDays,omitempty"`
	AllowedTimeWindows []TimeWindow `json:"allowedTimeWindows,omitempty"`
	Duration           int          `json:"duration,omitempty"`
	RequiresApproval   bool         `json:"requiresApproval,omitempty"`
}

func (PatientTypePayload) PayloadVariant() PolicyVariant { return VariantPatientType }

// DecodePayload unmarshals raw into the payload struct for the declared
// variant. It does not validate field values; see ValidatePayload.
func DecodePayload(variant PolicyVariant, raw json.RawMessage) (PolicyPayload, error) {
	switch variant {
	case VariantAvailability:
		var p AvailabilityPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case VariantBlock:
		var p BlockPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case VariantOverride:
		var p OverridePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case VariantDuration:
		var p DurationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case VariantAppointmentType:
		var p AppointmentTypePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case VariantBookingWindow:
		var p BookingWindowPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case VariantCapacity:
		var p CapacityPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case VariantPatientType:
		var p PatientTypePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown policy variant %q", variant)
	}
}
