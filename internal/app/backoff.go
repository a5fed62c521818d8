package app

import (
	"strings"
	"time"
)

// Backoff configuration values.
const (
	// BackoffFloor is the smallest delay any built-in schedule produces.
	BackoffFloor = 10 * time.Second

	// StaticScheduleLength is the number of entries in the static schedule.
	StaticScheduleLength = 20

	// ExponentialInitial is the first delay of the exponential schedule.
	ExponentialInitial = 10 * time.Second
	// ExponentialCeiling caps every exponential delay.
	ExponentialCeiling = 5 * time.Minute
	// ExponentialScheduleLength is the number of entries in the exponential schedule.
	ExponentialScheduleLength = 8
)

// Backoff policy selector names.
const (
	BackoffStatic      = "static"
	BackoffExponential = "exponential"
)

// BackoffPolicy produces the retry delays used to pace disk replay.
// Entry i is the wait after i+1 consecutive failures; the last entry repeats.
type BackoffPolicy interface {
	Schedule() []time.Duration
}

// StaticPolicy alternates a short and a long delay for a fixed number of entries.
type StaticPolicy struct {
	Short  time.Duration
	Long   time.Duration
	Length int
}

// DefaultStaticPolicy returns 20 entries of 10s/10s pairs.
func DefaultStaticPolicy() StaticPolicy {
	return StaticPolicy{Short: BackoffFloor, Long: BackoffFloor, Length: StaticScheduleLength}
}

// Schedule implements BackoffPolicy. Delays below BackoffFloor are raised to it.
func (p StaticPolicy) Schedule() []time.Duration {
	out := make([]time.Duration, p.Length)
	for i := range out {
		d := p.Short
		if i%2 == 1 {
			d = p.Long
		}
		out[i] = max(d, BackoffFloor)
	}
	return out
}

// ExponentialPolicy doubles the delay on each entry up to a ceiling.
type ExponentialPolicy struct {
	Initial time.Duration
	Ceiling time.Duration
	Length  int
}

// DefaultExponentialPolicy returns 10s doubling up to 5m over 8 entries.
func DefaultExponentialPolicy() ExponentialPolicy {
	return ExponentialPolicy{
		Initial: ExponentialInitial,
		Ceiling: ExponentialCeiling,
		Length:  ExponentialScheduleLength,
	}
}

// Schedule implements BackoffPolicy. The result is non-decreasing, never
// below BackoffFloor and never above the ceiling (unless the ceiling itself
// is below the floor).
func (p ExponentialPolicy) Schedule() []time.Duration {
	ceiling := max(p.Ceiling, BackoffFloor)
	d := max(p.Initial, BackoffFloor)

	out := make([]time.Duration, p.Length)
	for i := range out {
		out[i] = min(d, ceiling)
		if d < ceiling {
			d *= 2
		}
	}
	return out
}

// FixedSchedule is a BackoffPolicy returning exactly its own entries.
type FixedSchedule []time.Duration

// Schedule implements BackoffPolicy.
func (s FixedSchedule) Schedule() []time.Duration {
	return append([]time.Duration(nil), s...)
}

// NewBackoffPolicy selects a policy by name, case-insensitively.
// Empty or unrecognized names select the exponential policy.
func NewBackoffPolicy(name string) BackoffPolicy {
	if strings.EqualFold(strings.TrimSpace(name), BackoffStatic) {
		return DefaultStaticPolicy()
	}
	return DefaultExponentialPolicy()
}

// delayFor returns the schedule entry for the given number of consecutive
// failures. Zero failures, or an empty schedule, means no delay.
func delayFor(schedule []time.Duration, failures int) time.Duration {
	if failures <= 0 || len(schedule) == 0 {
		return 0
	}
	return schedule[min(failures, len(schedule))-1]
}
