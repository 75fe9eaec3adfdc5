package ledger

import "errors"

var (
	// ErrNoSignal is returned for events with neither a start nor a stop flag.
	ErrNoSignal = errors.New("extraction carries no event")
	// ErrMissingIdentifier is returned when an event has no phone and none can be recovered.
	ErrMissingIdentifier = errors.New("event has no phone")
	// ErrNoOpenInterval is returned when a stop cannot be matched to an open interval.
	ErrNoOpenInterval = errors.New("no open interval for stop event")
	// ErrMalformedTime marks a clock string that failed to parse. It degrades
	// downtime to unknown and never aborts event application.
	ErrMalformedTime = errors.New("malformed clock value")
)
