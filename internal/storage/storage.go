// Package storage defines the persisted shape of ledger intervals and the
// backends that load and flush them per tenant.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/edgard/uptimebot/internal/ledger"
)

// TimestampLayout is the on-disk format of started/stopped values, in the
// tracker's local wall time.
const TimestampLayout = "2006-01-02T15:04:05"

const dateLayout = "2006-01-02"

// IntervalRow is one persisted ledger entry.
type IntervalRow struct {
	GroupID         int64    `db:"group_id"`
	TopicID         int64    `db:"topic_id"`
	Phone           string   `db:"phone"`
	Started         string   `db:"started"`
	Stopped         string   `db:"stopped"`
	DowntimeSeconds *float64 `db:"downtime_seconds"`
	TopicName       string   `db:"topic_name"`
	LastPhone       string   `db:"last_phone"`
	GroupTitle      string   `db:"group_title"`
}

// LedgerStore loads and flushes the ledger partition of one tenant.
type LedgerStore interface {
	// LoadIntervals returns the tenant's rows whose started or stopped date is day.
	LoadIntervals(ctx context.Context, tenant ledger.TenantKey, day time.Time) ([]IntervalRow, error)
	// SaveIntervals replaces the tenant's stored snapshot with rows.
	SaveIntervals(ctx context.Context, tenant ledger.TenantKey, rows []IntervalRow) error
	// ArchiveIntervals appends closed intervals to the tenant's history.
	ArchiveIntervals(ctx context.Context, tenant ledger.TenantKey, rows []IntervalRow) error
}

// RowMeta carries the descriptive columns stored next to an interval.
type RowMeta struct {
	TopicName  string
	LastPhone  string
	GroupTitle string
}

// RowFromRecord converts a ledger record to its persisted form.
func RowFromRecord(rec ledger.Record, meta RowMeta) IntervalRow {
	row := IntervalRow{
		GroupID:    rec.Key.GroupID,
		TopicID:    rec.Key.TopicID,
		Phone:      string(rec.Key.Phone),
		Started:    formatClock(rec.Started),
		Stopped:    formatClock(rec.Stopped),
		TopicName:  meta.TopicName,
		LastPhone:  meta.LastPhone,
		GroupTitle: meta.GroupTitle,
	}
	if rec.Downtime != nil {
		secs := rec.Downtime.Seconds()
		row.DowntimeSeconds = &secs
	}
	return row
}

// RecordFromRow converts a persisted row back into a ledger record of tenant.
// Values that are not full timestamps are kept as raw clocks.
func RecordFromRow(tenant ledger.TenantKey, row IntervalRow, loc *time.Location) ledger.Record {
	phone := ledger.PhoneID(row.Phone)
	if phone == "" {
		phone = ledger.UnknownPhone
	}
	rec := ledger.Record{
		Key: ledger.Key{
			Tenant:  tenant,
			GroupID: row.GroupID,
			TopicID: row.TopicID,
			Phone:   phone,
		},
		Started: parseClock(row.Started, loc),
		Stopped: parseClock(row.Stopped, loc),
	}
	if row.DowntimeSeconds != nil {
		d := time.Duration(*row.DowntimeSeconds * float64(time.Second))
		rec.Downtime = &d
	}
	return rec
}

// RecordsFromRows converts rows for tenant, keeping their order.
func RecordsFromRows(tenant ledger.TenantKey, rows []IntervalRow, loc *time.Location) []ledger.Record {
	out := make([]ledger.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, RecordFromRow(tenant, row, loc))
	}
	return out
}

// OnDay reports whether the row's started or stopped date is the calendar day of day.
func OnDay(row IntervalRow, day time.Time) bool {
	want := day.Format(dateLayout)
	return datePart(row.Started) == want || datePart(row.Stopped) == want
}

// DayKey returns the date prefix used to filter rows for day.
func DayKey(day time.Time) string {
	return day.Format(dateLayout)
}

func datePart(value string) string {
	if len(value) < len(dateLayout) {
		return ""
	}
	return value[:len(dateLayout)]
}

func formatClock(c ledger.Clock) string {
	if c.Valid() {
		return c.At.Format(TimestampLayout)
	}
	return c.Raw
}

func parseClock(value string, loc *time.Location) ledger.Clock {
	value = strings.TrimSpace(value)
	if value == "" {
		return ledger.Clock{}
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(TimestampLayout, value, loc)
	if err != nil {
		return ledger.Clock{Raw: value}
	}
	return ledger.ClockAt(t)
}
