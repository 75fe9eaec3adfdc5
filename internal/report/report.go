// Package report aggregates ledger records into per-group summaries and
// renders them as Telegram HTML.
package report

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/edgard/uptimebot/internal/ledger"
)

// MaxMessageLength is the Telegram limit for one message.
const MaxMessageLength = 4096

// View selects how a group summary is laid out.
type View string

const (
	// ViewGrouped lists records per topic with topic averages.
	ViewGrouped View = "grouped"
	// ViewDaily lists all records of the group with one average.
	ViewDaily View = "daily"
)

// ParseView returns the view named s.
func ParseView(s string) (View, bool) {
	switch View(s) {
	case ViewGrouped, ViewDaily:
		return View(s), true
	}
	return "", false
}

// Toggle returns the other view.
func (v View) Toggle() View {
	if v == ViewDaily {
		return ViewGrouped
	}
	return ViewDaily
}

// Labels are the user-facing words of a summary.
type Labels struct {
	Topic       string
	Average     string
	Placed      string
	StandingNow string
	NoData      string
}

// GroupMeta describes the group being rendered.
type GroupMeta struct {
	ID         int64
	Title      string
	TopicNames map[int64]string
}

// TopicSummary aggregates the records of one topic.
type TopicSummary struct {
	TopicID  int64
	Records  []ledger.Record
	Average  time.Duration
	Measured int
}

// Summary aggregates the records of one group.
type Summary struct {
	Topics      []TopicSummary
	Records     []ledger.Record
	Average     time.Duration
	Measured    int
	Placed      int
	StandingNow int
}

// Aggregate groups records by topic. Records are ordered by start inside
// each topic and in the flat list; topics are ordered by id.
func Aggregate(records []ledger.Record) Summary {
	var s Summary
	s.Records = append([]ledger.Record(nil), records...)
	sortByStart(s.Records)

	byTopic := make(map[int64]*TopicSummary)
	phones := make(map[ledger.PhoneID]struct{})
	var total time.Duration

	for _, rec := range s.Records {
		ts, ok := byTopic[rec.Key.TopicID]
		if !ok {
			ts = &TopicSummary{TopicID: rec.Key.TopicID}
			byTopic[rec.Key.TopicID] = ts
		}
		ts.Records = append(ts.Records, rec)
		phones[rec.Key.Phone] = struct{}{}
		if rec.State() == ledger.StateOpen {
			s.StandingNow++
		}
		if rec.Downtime != nil {
			ts.Average += *rec.Downtime
			ts.Measured++
			total += *rec.Downtime
			s.Measured++
		}
	}

	for _, ts := range byTopic {
		if ts.Measured > 0 {
			ts.Average /= time.Duration(ts.Measured)
		}
		s.Topics = append(s.Topics, *ts)
	}
	sort.Slice(s.Topics, func(i, j int) bool { return s.Topics[i].TopicID < s.Topics[j].TopicID })

	if s.Measured > 0 {
		s.Average = total / time.Duration(s.Measured)
	}
	s.Placed = len(phones)
	return s
}

// Renderer renders summaries with fixed labels and thresholds.
type Renderer struct {
	labels   Labels
	critical time.Duration
	warning  time.Duration
}

// NewRenderer returns a renderer. Topic averages below critical are marked
// red and below warning orange.
func NewRenderer(labels Labels, critical, warning time.Duration) *Renderer {
	return &Renderer{labels: labels, critical: critical, warning: warning}
}

// Render formats the group summary in the given view as HTML. Only topic
// averages carry threshold markers.
func (r *Renderer) Render(view View, group GroupMeta, records []ledger.Record) string {
	s := Aggregate(records)

	var b strings.Builder
	title := group.Title
	if title == "" {
		title = strconv.FormatInt(group.ID, 10)
	}
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(title))

	if len(s.Records) == 0 {
		fmt.Fprintf(&b, "\n%s\n", html.EscapeString(r.labels.NoData))
	} else if view == ViewDaily {
		b.WriteString("\n")
		for _, rec := range s.Records {
			b.WriteString(FormatRecord(rec))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s\n", html.EscapeString(r.labels.Average), FormatDuration(s.Average))
	} else {
		for i, ts := range s.Topics {
			label := fmt.Sprintf("%s %d", r.labels.Topic, i+1)
			if name := group.TopicNames[ts.TopicID]; name != "" {
				label = name
			}
			fmt.Fprintf(&b, "\n<b><a href=\"%s\">%s</a></b>\n", TopicLink(group.ID, ts.TopicID), html.EscapeString(label))
			for _, rec := range ts.Records {
				b.WriteString(FormatRecord(rec))
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%s - %s%s\n", html.EscapeString(r.labels.Average), FormatDuration(ts.Average), r.marker(ts.Average, ts.Measured))
		}
	}

	fmt.Fprintf(&b, "\n%s: %d\n", html.EscapeString(r.labels.Placed), s.Placed)
	fmt.Fprintf(&b, "%s: %d", html.EscapeString(r.labels.StandingNow), s.StandingNow)

	return truncate(b.String(), MaxMessageLength)
}

func (r *Renderer) marker(avg time.Duration, measured int) string {
	if measured == 0 {
		return ""
	}
	avg = avg.Truncate(time.Minute)
	switch {
	case avg < r.critical:
		return " 🔴"
	case avg < r.warning:
		return " 🟠"
	default:
		return ""
	}
}

// FormatRecord renders "phone | HH:MM | HH:MM | H:MM" with "-" for missing values.
func FormatRecord(rec ledger.Record) string {
	started, stopped, downtime := "-", "-", "-"
	if rec.Started.IsSet() {
		started = rec.Started.String()
	}
	if rec.Stopped.IsSet() {
		stopped = rec.Stopped.String()
	}
	if rec.Downtime != nil {
		downtime = FormatDuration(*rec.Downtime)
	}
	return html.EscapeString(fmt.Sprintf("%s | %s | %s | %s", rec.Key.Phone, started, stopped, downtime))
}

// FormatDuration renders d as H:MM, truncated to the minute.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

// TopicLink returns the t.me link of a topic. Supergroup ids lose their -100 prefix.
func TopicLink(groupID, topicID int64) string {
	id := strconv.FormatInt(groupID, 10)
	id = strings.TrimPrefix(id, "-100")
	id = strings.TrimPrefix(id, "-")
	return fmt.Sprintf("https://t.me/c/%s/%d", id, topicID)
}

func sortByStart(recs []ledger.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].Started.At, recs[j].Started.At
		if !a.Equal(b) {
			return a.Before(b)
		}
		return recs[i].Key.Phone < recs[j].Key.Phone
	})
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := string(runes[:limit-1])
	if i := strings.LastIndex(cut, "\n"); i > 0 {
		cut = cut[:i]
	}
	return cut + "\n…"
}
