package domain

import (
	"fmt"
	"strings"
)

const explainUnknown = "Unknown policy type"

var weekdayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Explain renders a one-sentence human-readable description of a stored
// policy. It never fails on a structurally valid payload; an unknown variant
// or an undecodable payload yields a fixed fallback string.
func Explain(p Policy) string {
	payload, err := p.DecodedPayload()
	if err != nil {
		return explainUnknown
	}

	switch pl := payload.(type) {
	case AvailabilityPayload:
		return fmt.Sprintf("Practitioner is available %s %s during %s.",
			recurrencePhrase(pl.Recurrence), dayPhrase(pl.Recurrence.DaysOfWeek), windowPhrase(pl.TimeWindows))
	case BlockPayload:
		override := "cannot be overridden"
		if pl.AllowOverride {
			override = "can be overridden"
		}
		return fmt.Sprintf("Time is blocked %s %s during %s because %s; this block %s.",
			recurrencePhrase(pl.Recurrence), dayPhrase(pl.Recurrence.DaysOfWeek), windowPhrase(pl.TimeWindows),
			orUnspecified(pl.Reason), override)
	case OverridePayload:
		what := "the practitioner is unavailable"
		if pl.Action == OverrideActionAvailable {
			what = "the practitioner is available"
		}
		return fmt.Sprintf("On %s, %s during %s because %s.",
			pl.Date, what, windowPhrase(pl.TimeWindows), orUnspecified(pl.Reason))
	case DurationPayload:
		return fmt.Sprintf("Appointments default to %d minutes with %d minutes buffer before and %d after, at most %d per day and %d minutes of variance.",
			pl.DefaultLength, pl.BufferBefore, pl.BufferAfter, pl.MaxPerDay, pl.VarianceMinutes)
	case AppointmentTypePayload:
		return fmt.Sprintf("Appointment type %q runs %d minutes with %d/%d minute buffers in a %s room, at most %d concurrent.",
			pl.TypeName, pl.Duration, pl.BufferBefore, pl.BufferAfter, orUnspecified(pl.RoomType), pl.MaxConcurrent)
	case BookingWindowPayload:
		sameDay := "is not allowed"
		if pl.AllowSameDayBooking {
			sameDay = "is allowed"
		}
		cutoff := ""
		if pl.CutoffTime != "" {
			cutoff = fmt.Sprintf(" with a %s cutoff", pl.CutoffTime)
		}
		return fmt.Sprintf("Bookings require at least %d hours notice and at most %d days lead time; same-day booking %s%s.",
			pl.MinAdvanceHours, pl.MaxAdvanceDays, sameDay, cutoff)
	case CapacityPayload:
		window := ""
		if pl.TimeWindow != nil {
			window = fmt.Sprintf(" within %s-%s", pl.TimeWindow.Start, pl.TimeWindow.End)
		}
		return fmt.Sprintf("Capacity is capped at %d appointments per hour and %d per day, including %d new patients%s.",
			pl.MaxAppointmentsPerHour, pl.MaxAppointmentsPerDay, pl.MaxNewPatientsPerDay, window)
	case PatientTypePayload:
		approval := ""
		if pl.RequiresApproval {
			approval = " and requires approval"
		}
		return fmt.Sprintf("%s patients may book %s during %s for %d minutes%s.",
			capitalize(pl.PatientType), dayPhrase(pl.AllowedDays), windowPhrase(pl.AllowedTimeWindows), pl.Duration, approval)
	default:
		return explainUnknown
	}
}

func recurrencePhrase(r Recurrence) string {
	switch r.Type {
	case RecurrenceDaily:
		return "every day"
	case RecurrenceWeekly:
		return "every week"
	case RecurrenceBiweekly:
		return "every other week"
	case RecurrenceMonthly:
		return "every month"
	case RecurrenceOnce:
		return "once"
	default:
		return "on a custom schedule"
	}
}

func dayPhrase(days []int) string {
	if len(days) == 0 {
		return "on any day"
	}
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d < len(weekdayNames) {
			names = append(names, weekdayNames[d])
		}
	}
	if len(names) == 0 {
		return "on any day"
	}
	return "on " + strings.Join(names, ", ")
}

func windowPhrase(windows []TimeWindow) string {
	if len(windows) == 0 {
		return "all hours"
	}
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		parts = append(parts, w.Start+"-"+w.End)
	}
	return strings.Join(parts, ", ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unspecified"
	}
	return s
}
