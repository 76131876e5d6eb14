package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func containsError(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestValidatePayload_ValidPayloadsDecode(t *testing.T) {
	cases := []struct {
		variant PolicyVariant
		raw     string
		want    PolicyVariant
	}{
		{VariantAvailability, `{"recurrence":{"type":"weekly","daysOfWeek":[1,2,3,4,5]},"timeWindows":[{"start":"09:00","end":"17:00"}]}`, VariantAvailability},
		{VariantBlock, `{"recurrence":{"type":"daily"},"timeWindows":[{"start":"12:00","end":"13:00"}],"reason":"lunch"}`, VariantBlock},
		{VariantOverride, `{"date":"2026-03-15","action":"block","reason":"conference"}`, VariantOverride},
		{VariantDuration, `{"defaultLength":30,"bufferBefore":5,"bufferAfter":5}`, VariantDuration},
		{VariantAppointmentType, `{"typeName":"intake","duration":60}`, VariantAppointmentType},
		{VariantBookingWindow, `{"minAdvanceHours":24,"maxAdvanceDays":90,"allowSameDayBooking":false}`, VariantBookingWindow},
		{VariantCapacity, `{"maxAppointmentsPerDay":12,"maxAppointmentsPerHour":2}`, VariantCapacity},
		{VariantPatientType, `{"patientType":"pediatric","allowedDays":[1,3,5]}`, VariantPatientType},
	}
	for _, tc := range cases {
		t.Run(string(tc.variant), func(t *testing.T) {
			payload, errs := ValidatePayload(tc.variant, json.RawMessage(tc.raw))
			if len(errs) != 0 {
				t.Fatalf("errors = %v, want none", errs)
			}
			if payload.PayloadVariant() != tc.want {
				t.Fatalf("variant = %q, want %q", payload.PayloadVariant(), tc.want)
			}
		})
	}
}

func TestValidatePayload_MissingRequiredFields(t *testing.T) {
	cases := []struct {
		variant PolicyVariant
		raw     string
		missing string
	}{
		{VariantAvailability, `{"timeWindows":[{"start":"09:00","end":"17:00"}]}`, "recurrence: required"},
		{VariantBlock, `{"recurrence":{"type":"daily"},"timeWindows":[{"start":"12:00","end":"13:00"}]}`, "reason: required"},
		{VariantOverride, `{"action":"block"}`, "date: required"},
		{VariantDuration, `{}`, "defaultLength: required"},
		{VariantAppointmentType, `{"typeName":"intake"}`, "duration: required"},
		{VariantBookingWindow, `{}`, "minAdvanceHours: required"},
		{VariantCapacity, `{}`, "maxAppointmentsPerDay: required"},
		{VariantPatientType, `{}`, "patientType: required"},
	}
	for _, tc := range cases {
		t.Run(string(tc.variant), func(t *testing.T) {
			payload, errs := ValidatePayload(tc.variant, json.RawMessage(tc.raw))
			if payload != nil {
				t.Fatalf("payload = %+v, want nil on error", payload)
			}
			if !containsError(errs, tc.missing) {
				t.Fatalf("errors = %v, want one containing %q", errs, tc.missing)
			}
		})
	}
}

func TestValidatePayload_ExplicitZeroCountsAsProvided(t *testing.T) {
	// minAdvanceHours: 0 is present, so the required-field check passes.
	payload, errs := ValidatePayload(VariantBookingWindow, json.RawMessage(`{"minAdvanceHours":0}`))
	if len(errs) != 0 {
		t.Fatalf("errors = %v, want none", errs)
	}
	bw, ok := payload.(BookingWindowPayload)
	if !ok || bw.MinAdvanceHours != 0 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestValidatePayload_UnknownVariant(t *testing.T) {
	_, errs := ValidatePayload(PolicyVariant("LUNCH"), json.RawMessage(`{}`))
	if !containsError(errs, "unknown policy variant") {
		t.Fatalf("errors = %v", errs)
	}
}

func TestValidatePayload_NotAnObject(t *testing.T) {
	_, errs := ValidatePayload(VariantCapacity, json.RawMessage(`[1,2,3]`))
	if !containsError(errs, "payload: must be a JSON object") {
		t.Fatalf("errors = %v", errs)
	}
}

func TestValidatePayload_WindowOrdering(t *testing.T) {
	raw := `{"recurrence":{"type":"daily"},"timeWindows":[{"start":"17:00","end":"09:00"}]}`
	_, errs := ValidatePayload(VariantAvailability, json.RawMessage(raw))
	if !containsError(errs, "timeWindows[0]: start must be before end") {
		t.Fatalf("errors = %v", errs)
	}

	// Equal bounds describe an empty window and are also rejected.
	raw = `{"recurrence":{"type":"daily"},"timeWindows":[{"start":"09:00","end":"09:00"}]}`
	_, errs = ValidatePayload(VariantAvailability, json.RawMessage(raw))
	if !containsError(errs, "timeWindows[0]: start must be before end") {
		t.Fatalf("errors = %v", errs)
	}
}

func TestValidatePayload_MalformedClockValues(t *testing.T) {
	raw := `{"recurrence":{"type":"daily"},"timeWindows":[{"start":"9:00","end":"25:00"}]}`
	_, errs := ValidatePayload(VariantAvailability, json.RawMessage(raw))
	if !containsError(errs, "timeWindows[0].start: must be HH:MM") {
		t.Fatalf("errors = %v, want start rejected", errs)
	}
	if !containsError(errs, "timeWindows[0].end: must be HH:MM") {
		t.Fatalf("errors = %v, want end rejected", errs)
	}
}

func TestValidatePayload_MalformedDates(t *testing.T) {
	_, errs := ValidatePayload(VariantOverride, json.RawMessage(`{"date":"15/03/2026","action":"block"}`))
	if !containsError(errs, "date: must be YYYY-MM-DD") {
		t.Fatalf("errors = %v", errs)
	}

	_, errs = ValidatePayload(VariantOverride, json.RawMessage(`{"date":"2026-02-30","action":"block"}`))
	if !containsError(errs, "date: not a valid calendar date") {
		t.Fatalf("errors = %v", errs)
	}
}

func TestValidatePayload_OverrideAction(t *testing.T) {
	_, errs := ValidatePayload(VariantOverride, json.RawMessage(`{"date":"2026-03-15","action":"cancel"}`))
	if !containsError(errs, "action: must be") {
		t.Fatalf("errors = %v", errs)
	}
}

func TestValidatePayload_DurationBounds(t *testing.T) {
	for _, raw := range []string{`{"defaultLength":4}`, `{"defaultLength":481}`} {
		_, errs := ValidatePayload(VariantDuration, json.RawMessage(raw))
		if !containsError(errs, "defaultLength: must be between 5 and 480 minutes") {
			t.Fatalf("raw %s: errors = %v", raw, errs)
		}
	}
	for _, raw := range []string{`{"defaultLength":5}`, `{"defaultLength":480}`} {
		if _, errs := ValidatePayload(VariantDuration, json.RawMessage(raw)); len(errs) != 0 {
			t.Fatalf("raw %s: errors = %v, want none", raw, errs)
		}
	}
}

func TestValidatePayload_DayOfWeekRange(t *testing.T) {
	raw := `{"recurrence":{"type":"weekly","daysOfWeek":[0,7]},"timeWindows":[{"start":"09:00","end":"17:00"}]}`
	_, errs := ValidatePayload(VariantAvailability, json.RawMessage(raw))
	if !containsError(errs, "recurrence.daysOfWeek[1]: must be between 0 (Sunday) and 6 (Saturday)") {
		t.Fatalf("errors = %v", errs)
	}
}

func TestValidatePayload_UnknownRecurrenceType(t *testing.T) {
	raw := `{"recurrence":{"type":"fortnightly"},"timeWindows":[{"start":"09:00","end":"17:00"}]}`
	_, errs := ValidatePayload(VariantAvailability, json.RawMessage(raw))
	if !containsError(errs, `recurrence.type: unknown recurrence type "fortnightly"`) {
		t.Fatalf("errors = %v", errs)
	}
}

func TestValidatePayload_NegativeCounters(t *testing.T) {
	_, errs := ValidatePayload(VariantCapacity, json.RawMessage(`{"maxAppointmentsPerDay":-1}`))
	if !containsError(errs, "maxAppointmentsPerDay: must not be negative") {
		t.Fatalf("errors = %v", errs)
	}
}

func TestValidatePayload_OverridePriorityRange(t *testing.T) {
	_, errs := ValidatePayload(VariantOverride, json.RawMessage(`{"date":"2026-03-15","action":"block","priority":11}`))
	if !containsError(errs, "priority: priority must be between 1 and 10") {
		t.Fatalf("errors = %v", errs)
	}
}

func TestValidatePriority(t *testing.T) {
	if err := ValidatePriority(0); err == nil {
		t.Fatal("0 must be rejected")
	}
	if err := ValidatePriority(11); err == nil {
		t.Fatal("11 must be rejected")
	}
	for p := PriorityMin; p <= PriorityMax; p++ {
		if err := ValidatePriority(p); err != nil {
			t.Fatalf("ValidatePriority(%d) = %v", p, err)
		}
	}
}
