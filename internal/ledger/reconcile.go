package ledger

import (
	"fmt"
	"strings"
	"time"
)

// DefaultCorrectionThreshold is the largest gap between a reported clock and
// the send time that is accepted without the one-hour correction.
const DefaultCorrectionThreshold = 45 * time.Minute

const hourShift = time.Hour

var clockLayouts = []string{ClockLayout, "15.04", "1504"}

// Reported holds the flags and raw clock strings of one extraction.
type Reported struct {
	Started     bool
	Stopped     bool
	StartedTime string
	StoppedTime string
}

// Reconciled holds the corrected HH:MM clocks on the send day.
type Reconciled struct {
	StartedTime string
	StoppedTime string
	Corrected   bool
}

// Reconcile corrects reported clocks against the time the message was sent.
//
// The reference gap is stopped-send when a stop is reported and started-send
// otherwise. A gap wider than threshold is treated as a one-hour misreport and
// both reported clocks are moved back one hour. A slot without its flag is
// pinned to the send time. Unparsable clocks are replaced by the send time.
func Reconcile(r Reported, sent time.Time, threshold time.Duration) Reconciled {
	sent = sent.Truncate(time.Minute)

	started, err := ParseClock(sent, r.StartedTime)
	if err != nil {
		started = sent
	}
	stopped, err := ParseClock(sent, r.StoppedTime)
	if err != nil {
		stopped = sent
	}

	var diff time.Duration
	switch {
	case r.Stopped:
		diff = stopped.Sub(sent)
	case r.Started:
		diff = started.Sub(sent)
	default:
		return Reconciled{StartedTime: started.Format(ClockLayout), StoppedTime: stopped.Format(ClockLayout)}
	}

	if !r.Started {
		started = sent
	}
	if !r.Stopped {
		stopped = sent
	}

	corrected := diff.Abs() > threshold
	if corrected {
		if r.Started {
			started = started.Add(-hourShift)
		}
		if r.Stopped {
			stopped = stopped.Add(-hourShift)
		}
	}

	return Reconciled{
		StartedTime: started.Format(ClockLayout),
		StoppedTime: stopped.Format(ClockLayout),
		Corrected:   corrected,
	}
}

// ParseClock parses an HH:MM value onto the calendar day of day, in day's location.
func ParseClock(day time.Time, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrMalformedTime)
	}
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTime, value)
}
