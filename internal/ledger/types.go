// Package ledger implements the interval accounting core of the bot: clock
// reconciliation, last-seen phone memory and the per-phone interval state machine.
package ledger

import (
	"strings"
	"time"
)

// ClockLayout is the wall-clock format used by operators and the oracle.
const ClockLayout = "15:04"

// UnknownPhone is the sentinel used for records whose phone could not be determined.
const UnknownPhone PhoneID = "unknown"

// TenantKey identifies an account partition. It maps 1:1 to a persistence target.
type TenantKey string

// PhoneID is a normalized digit string.
type PhoneID string

// Conversation identifies a topic inside a group chat.
type Conversation struct {
	GroupID int64
	TopicID int64
}

// Key uniquely identifies the current interval of one phone.
type Key struct {
	Tenant  TenantKey
	GroupID int64
	TopicID int64
	Phone   PhoneID
}

// Conversation returns the topic the key belongs to.
func (k Key) Conversation() Conversation {
	return Conversation{GroupID: k.GroupID, TopicID: k.TopicID}
}

// Clock is a reported wall-clock value. Raw keeps what was applied, At is zero
// when Raw could not be parsed.
type Clock struct {
	Raw string
	At  time.Time
}

// ClockAt returns a valid clock for t.
func ClockAt(t time.Time) Clock {
	return Clock{Raw: t.Format(ClockLayout), At: t}
}

// IsSet reports whether a value was recorded at all.
func (c Clock) IsSet() bool { return c.Raw != "" || !c.At.IsZero() }

// Valid reports whether the clock parsed to a time value.
func (c Clock) Valid() bool { return !c.At.IsZero() }

func (c Clock) String() string {
	if c.Valid() {
		return c.At.Format(ClockLayout)
	}
	return c.Raw
}

// State is the lifecycle position of a record.
type State int

const (
	StateAbsent State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "absent"
	}
}

// Record is one interval of a phone within a topic.
type Record struct {
	Key      Key
	Started  Clock
	Stopped  Clock
	Downtime *time.Duration
}

// State derives the lifecycle state from the populated fields.
func (r Record) State() State {
	switch {
	case !r.Started.IsSet():
		return StateAbsent
	case !r.Stopped.IsSet():
		return StateOpen
	default:
		return StateClosed
	}
}

// Event is a reconciled start/stop observation for one tenant.
// StartedAt and StoppedAt are HH:MM strings on the calendar day of Day.
type Event struct {
	Tenant    TenantKey
	GroupID   int64
	TopicID   int64
	Phone     PhoneID
	Started   bool
	Stopped   bool
	StartedAt string
	StoppedAt string
	Day       time.Time
}

// Outcome describes what Apply did to the ledger.
type Outcome struct {
	Record     Record
	Recovered  bool
	Superseded *Record
	Warning    error
}

// ExtractionContext is passed to the oracle together with the raw text.
type ExtractionContext struct {
	DefaultTopicID int64
	SentAt         time.Time
}

// RawExtraction is the structured, untrusted result returned by the oracle.
type RawExtraction struct {
	Phone       PhoneID
	Started     bool
	Stopped     bool
	StartedTime string
	StoppedTime string
	TopicID     int64
}

// HasSignal reports whether the extraction carries a phone or an event.
func (r RawExtraction) HasSignal() bool {
	return r.Phone != "" || r.Started || r.Stopped
}

// HasEvent reports whether the extraction carries a start or stop flag.
func (r RawExtraction) HasEvent() bool {
	return r.Started || r.Stopped
}

// Normalize returns the extraction with its phone reduced to digits and its
// clock strings trimmed. A negative topic id is cleared.
func (r RawExtraction) Normalize() RawExtraction {
	r.Phone = NormalizePhone(string(r.Phone))
	r.StartedTime = strings.TrimSpace(r.StartedTime)
	r.StoppedTime = strings.TrimSpace(r.StoppedTime)
	if r.TopicID < 0 {
		r.TopicID = 0
	}
	return r
}

// NormalizePhone keeps only the digits of s.
func NormalizePhone(s string) PhoneID {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return PhoneID(b.String())
}

// BarePhone reports whether text is nothing but a phone number once the
// separators - + ( ) and spaces are removed, and the number is longer than minDigits.
func BarePhone(text string, minDigits int) (PhoneID, bool) {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '-', '+', '(', ')', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(text))

	if len(stripped) <= minDigits {
		return "", false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return PhoneID(stripped), true
}
