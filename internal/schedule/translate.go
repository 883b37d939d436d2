package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"groupcast/internal/model"
)

// TriggerKind selects how a trigger fires.
type TriggerKind int

const (
	// TriggerAt fires once at an absolute instant, then disarms.
	TriggerAt TriggerKind = iota
	// TriggerCron fires on a recurring minute/hour/day-of-week rule.
	TriggerCron
)

// TriggerSpec is the concrete trigger a schedule descriptor translates
// to: either an absolute one-shot instant or a cron expression.
type TriggerSpec struct {
	Kind TriggerKind
	At   time.Time // TriggerAt only
	Spec string    // TriggerCron only, standard 5-field cron
}

// ValidationError reports a rejected schedule descriptor. Rejected
// schedules are never silently defaulted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid schedule: %s: %s", e.Field, e.Reason)
}

// Translate converts a declarative schedule into a trigger spec.
//
// A once schedule whose fire time is not strictly after now is rejected:
// arming it would either fire immediately or wait a year for the cron
// fields to come around again.
func Translate(s model.Schedule, now time.Time) (TriggerSpec, error) {
	switch s.Kind {
	case model.ScheduleImmediate:
		return TriggerSpec{Kind: TriggerAt, At: now}, nil

	case model.ScheduleOnce:
		if s.FireAt.IsZero() {
			return TriggerSpec{}, &ValidationError{Field: "fire_at", Reason: "required"}
		}
		if !s.FireAt.After(now) {
			return TriggerSpec{}, &ValidationError{Field: "fire_at", Reason: "must be in the future"}
		}
		return TriggerSpec{Kind: TriggerAt, At: s.FireAt}, nil

	case model.ScheduleRecurring:
		h, m, err := parseHHMM(s.Time)
		if err != nil {
			return TriggerSpec{}, &ValidationError{Field: "time", Reason: err.Error()}
		}
		switch s.Frequency {
		case model.FrequencyDaily:
			return TriggerSpec{Kind: TriggerCron, Spec: fmt.Sprintf("%d %d * * *", m, h)}, nil
		case model.FrequencyWeekly:
			days, err := normalizeDays(s.DaysOfWeek)
			if err != nil {
				return TriggerSpec{}, &ValidationError{Field: "days_of_week", Reason: err.Error()}
			}
			return TriggerSpec{Kind: TriggerCron, Spec: fmt.Sprintf("%d %d * * %s", m, h, days)}, nil
		default:
			return TriggerSpec{}, &ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown frequency %q", s.Frequency)}
		}

	default:
		return TriggerSpec{}, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", s.Kind)}
	}
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return hour, minute, nil
}

// normalizeDays validates, dedupes and sorts a weekday set (0=Sunday)
// into a cron day-of-week list.
func normalizeDays(days []int) (string, error) {
	if len(days) == 0 {
		return "", fmt.Errorf("weekly schedule needs at least one weekday")
	}
	seen := map[int]struct{}{}
	uniq := make([]int, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return "", fmt.Errorf("weekday %d out of range 0..6", d)
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		uniq = append(uniq, d)
	}
	sort.Ints(uniq)
	parts := make([]string, len(uniq))
	for i, d := range uniq {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ","), nil
}
