package ledger

import (
	"fmt"
	"sort"
	"time"
)

// Ledger holds the current interval of every (tenant, group, topic, phone) key.
// It is not safe for concurrent use; the owner serializes access.
type Ledger struct {
	records map[Key]*Record
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{records: make(map[Key]*Record)}
}

// Apply runs one reconciled event through the interval state machine.
//
// A start always opens a fresh interval on its key, discarding the stop and
// downtime of a previous cycle (returned as Outcome.Superseded). A stop closes
// the interval on its key when that key was started; otherwise the open interval
// with the latest start in the same topic is closed instead. When both flags
// are set the start is applied first and the stop closes the interval it opened.
func (l *Ledger) Apply(ev Event) (Outcome, error) {
	var out Outcome
	if !ev.Started && !ev.Stopped {
		return out, ErrNoSignal
	}
	if ev.Tenant == "" {
		return out, fmt.Errorf("event for group %d has no tenant", ev.GroupID)
	}

	key := Key{Tenant: ev.Tenant, GroupID: ev.GroupID, TopicID: ev.TopicID, Phone: ev.Phone}

	if ev.Started {
		if ev.Phone == "" {
			return out, ErrMissingIdentifier
		}
		if prev, ok := l.records[key]; ok && prev.State() == StateClosed {
			superseded := *prev
			out.Superseded = &superseded
		}
		started, warn := clockOn(ev.Day, ev.StartedAt)
		out.Warning = warn
		l.insert(&Record{Key: key, Started: started})
	}

	if ev.Stopped {
		rec, ok := l.records[key]
		if ev.Phone == "" || !ok || !rec.Started.IsSet() {
			rec = l.latestOpen(ev.Tenant, ev.GroupID, ev.TopicID)
			if rec == nil {
				return out, ErrNoOpenInterval
			}
			out.Recovered = true
		}
		stopped, warn := clockOn(ev.Day, ev.StoppedAt)
		if warn != nil {
			out.Warning = warn
		}
		rec.Stopped = stopped
		rec.Downtime = downtime(rec.Started, rec.Stopped)
		if rec.Downtime == nil && out.Warning == nil {
			out.Warning = fmt.Errorf("%w: started %q", ErrMalformedTime, rec.Started.Raw)
		}
		key = rec.Key
	}

	out.Record = *l.records[key]
	return out, nil
}

// Get returns the current record for key.
func (l *Ledger) Get(key Key) (Record, bool) {
	rec, ok := l.records[key]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Records returns all records of a tenant ordered by group, topic, start and phone.
func (l *Ledger) Records(tenant TenantKey) []Record {
	var out []Record
	for k, rec := range l.records {
		if k.Tenant == tenant {
			out = append(out, *rec)
		}
	}
	SortRecords(out)
	return out
}

// Scope returns the records of one group of a tenant, ordered like Records.
func (l *Ledger) Scope(tenant TenantKey, groupID int64) []Record {
	var out []Record
	for k, rec := range l.records {
		if k.Tenant == tenant && k.GroupID == groupID {
			out = append(out, *rec)
		}
	}
	SortRecords(out)
	return out
}

// Load replaces the tenant's partition with records. Records of other tenants
// are skipped; duplicate keys keep the last occurrence.
func (l *Ledger) Load(tenant TenantKey, records []Record) int {
	l.Reset(tenant)
	n := 0
	for i := range records {
		if records[i].Key.Tenant != tenant {
			continue
		}
		rec := records[i]
		l.insert(&rec)
		n++
	}
	return n
}

// Reset drops the tenant's partition and returns the removed records.
func (l *Ledger) Reset(tenant TenantKey) []Record {
	var removed []Record
	for k, rec := range l.records {
		if k.Tenant == tenant {
			removed = append(removed, *rec)
			delete(l.records, k)
		}
	}
	SortRecords(removed)
	return removed
}

// OpenCount returns the number of open intervals of a tenant.
func (l *Ledger) OpenCount(tenant TenantKey) int {
	n := 0
	for k, rec := range l.records {
		if k.Tenant == tenant && rec.State() == StateOpen {
			n++
		}
	}
	return n
}

// insert makes rec the current record of its key.
func (l *Ledger) insert(rec *Record) {
	l.records[rec.Key] = rec
}

// latestOpen returns the open record with the latest start in the topic.
// Equal starts resolve to the smallest phone so the choice does not depend on map order.
func (l *Ledger) latestOpen(tenant TenantKey, groupID, topicID int64) *Record {
	var best *Record
	for k, rec := range l.records {
		if k.Tenant != tenant || k.GroupID != groupID || k.TopicID != topicID || rec.State() != StateOpen {
			continue
		}
		if best == nil || startedAfter(rec, best) {
			best = rec
		}
	}
	return best
}

func startedAfter(a, b *Record) bool {
	at, bt := a.Started.At, b.Started.At
	switch {
	case at.After(bt):
		return true
	case at.Equal(bt):
		return a.Key.Phone < b.Key.Phone
	default:
		return false
	}
}

// clockOn parses value on the day of ref. An empty value means ref itself.
func clockOn(ref time.Time, value string) (Clock, error) {
	if value == "" {
		return ClockAt(ref.Truncate(time.Minute)), nil
	}
	t, err := ParseClock(ref, value)
	if err != nil {
		return Clock{Raw: value}, err
	}
	return ClockAt(t), nil
}

// downtime returns stopped-started. A stop earlier than its start is taken to
// be on the following day.
func downtime(started, stopped Clock) *time.Duration {
	if !started.Valid() || !stopped.Valid() {
		return nil
	}
	start := started.At
	stop := time.Date(start.Year(), start.Month(), start.Day(),
		stopped.At.Hour(), stopped.At.Minute(), stopped.At.Second(), 0, start.Location())
	d := stop.Sub(start)
	if d < 0 {
		d += 24 * time.Hour
	}
	return &d
}

// SortRecords orders records by group, topic, start and phone. Records
// without a valid start sort first within their topic.
func SortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].Key, recs[j].Key
		if a.GroupID != b.GroupID {
			return a.GroupID < b.GroupID
		}
		if a.TopicID != b.TopicID {
			return a.TopicID < b.TopicID
		}
		as, bs := recs[i].Started.At, recs[j].Started.At
		if !as.Equal(bs) {
			return as.Before(bs)
		}
		return a.Phone < b.Phone
	})
}
