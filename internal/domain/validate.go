package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

const (
	DurationMinMinutes = 5
	DurationMaxMinutes = 480
)

var (
	hhmmPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
	datePattern = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)
)

// requiredFields lists the payload keys that must be present per variant.
// Presence is checked on the raw JSON object so that explicit zero values
// still count as provided.
var requiredFields = map[PolicyVariant][]string{
	VariantAvailability:    {"recurrence", "timeWindows"},
	VariantBlock:           {"recurrence", "timeWindows", "reason"},
	VariantOverride:        {"date", "action"},
	VariantDuration:        {"defaultLength"},
	VariantAppointmentType: {"typeName", "duration"},
	VariantBookingWindow:   {"minAdvanceHours"},
	VariantCapacity:        {"maxAppointmentsPerDay"},
	VariantPatientType:     {"patientType"},
}

// ValidatePayload checks an untyped payload against the declared variant and
// returns the typed payload, or a list of field-level errors. It is pure and
// performs no I/O; on any error the caller must reject the whole mutation.
func ValidatePayload(variant PolicyVariant, raw json.RawMessage) (PolicyPayload, []string) {
	if !variant.Known() {
		return nil, []string{fmt.Sprintf("variant: unknown policy variant %q", variant)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, []string{"payload: must be a JSON object"}
	}

	var errs []string
	for _, f := range requiredFields[variant] {
		if _, ok := fields[f]; !ok {
			errs = append(errs, f+": required")
		}
	}

	payload, err := DecodePayload(variant, raw)
	if err != nil {
		return nil, append(errs, "payload: "+err.Error())
	}

	switch p := payload.(type) {
	case AvailabilityPayload:
		errs = validateRecurrence(p.Recurrence, errs)
		errs = validateWindows("timeWindows", p.TimeWindows, errs)
	case BlockPayload:
		errs = validateRecurrence(p.Recurrence, errs)
		errs = validateWindows("timeWindows", p.TimeWindows, errs)
	case OverridePayload:
		errs = validateDate("date", p.Date, errs)
		if p.Action != OverrideActionBlock && p.Action != OverrideActionAvailable {
			errs = append(errs, fmt.Sprintf("action: must be %q or %q", OverrideActionBlock, OverrideActionAvailable))
		}
		errs = validateWindows("timeWindows", p.TimeWindows, errs)
		if p.Priority != 0 {
			errs = validatePriority("priority", p.Priority, errs)
		}
	case DurationPayload:
		errs = validateDurationMinutes("defaultLength", p.DefaultLength, errs)
		errs = validateNonNegative("bufferBefore", p.BufferBefore, errs)
		errs = validateNonNegative("bufferAfter", p.BufferAfter, errs)
		errs = validateNonNegative("maxPerDay", p.MaxPerDay, errs)
		errs = validateNonNegative("varianceMinutes", p.VarianceMinutes, errs)
	case AppointmentTypePayload:
		if p.TypeName == "" {
			errs = append(errs, "typeName: required")
		}
		errs = validateDurationMinutes("duration", p.Duration, errs)
		errs = validateNonNegative("bufferBefore", p.BufferBefore, errs)
		errs = validateNonNegative("bufferAfter", p.BufferAfter, errs)
		errs = validateNonNegative("maxConcurrent", p.MaxConcurrent, errs)
	case BookingWindowPayload:
		errs = validateNonNegative("minAdvanceHours", p.MinAdvanceHours, errs)
		errs = validateNonNegative("maxAdvanceDays", p.MaxAdvanceDays, errs)
		if p.CutoffTime != "" && !hhmmPattern.MatchString(p.CutoffTime) {
			errs = append(errs, "cutoffTime: must be HH:MM")
		}
	case CapacityPayload:
		errs = validateNonNegative("maxAppointmentsPerHour", p.MaxAppointmentsPerHour, errs)
		errs = validateNonNegative("maxAppointmentsPerDay", p.MaxAppointmentsPerDay, errs)
		errs = validateNonNegative("maxNewPatientsPerDay", p.MaxNewPatientsPerDay, errs)
		if p.TimeWindow != nil {
			errs = validateWindows("timeWindow", []TimeWindow{*p.TimeWindow}, errs)
		}
	case PatientTypePayload:
		if p.PatientType == "" {
			errs = append(errs, "patientType: required")
		}
		errs = validateDays("allowedDays", p.AllowedDays, errs)
		errs = validateWindows("allowedTimeWindows", p.AllowedTimeWindows, errs)
		if p.Duration != 0 {
			errs = validateDurationMinutes("duration", p.Duration, errs)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return payload, nil
}

// ValidatePriority checks the policy-level priority range.
func ValidatePriority(priority int) error {
	if priority < PriorityMin || priority > PriorityMax {
		return fmt.Errorf("priority must be between %d and %d", PriorityMin, PriorityMax)
	}
	return nil
}

func validatePriority(field string, priority int, errs []string) []string {
	if err := ValidatePriority(priority); err != nil {
		errs = append(errs, field+": "+err.Error())
	}
	return errs
}

func validateRecurrence(r Recurrence, errs []string) []string {
	if r.Type == "" {
		errs = append(errs, "recurrence.type: required")
	} else if !r.Type.Known() {
		errs = append(errs, fmt.Sprintf("recurrence.type: unknown recurrence type %q", r.Type))
	}
	errs = validateDays("recurrence.daysOfWeek", r.DaysOfWeek, errs)
	if r.StartDate != "" {
		errs = validateDate("recurrence.startDate", r.StartDate, errs)
	}
	if r.EndDate != nil {
		errs = validateDate("recurrence.endDate", *r.EndDate, errs)
	}
	return errs
}

func validateDays(field string, days []int, errs []string) []string {
	for i, d := range days {
		if d < 0 || d > 6 {
			errs = append(errs, fmt.Sprintf("%s[%d]: must be between 0 (Sunday) and 6 (Saturday)", field, i))
		}
	}
	return errs
}

func validateWindows(field string, windows []TimeWindow, errs []string) []string {
	for i, w := range windows {
		prefix := fmt.Sprintf("%s[%d]", field, i)
		ok := true
		if !hhmmPattern.MatchString(w.Start) {
			errs = append(errs, prefix+".start: must be HH:MM")
			ok = false
		}
		if !hhmmPattern.MatchString(w.End) {
			errs = append(errs, prefix+".end: must be HH:MM")
			ok = false
		}
		if ok && w.Start >= w.End {
			errs = append(errs, prefix+": start must be before end")
		}
	}
	return errs
}

func validateDate(field, value string, errs []string) []string {
	if !datePattern.MatchString(value) {
		return append(errs, field+": must be YYYY-MM-DD")
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return append(errs, field+": not a valid calendar date")
	}
	return errs
}

func validateDurationMinutes(field string, minutes int, errs []string) []string {
	if minutes < DurationMinMinutes || minutes > DurationMaxMinutes {
		errs = append(errs, fmt.Sprintf("%s: must be between %d and %d minutes", field, DurationMinMinutes, DurationMaxMinutes))
	}
	return errs
}

func validateNonNegative(field string, value int, errs []string) []string {
	if value < 0 {
		errs = append(errs, field+": must not be negative")
	}
	return errs
}
