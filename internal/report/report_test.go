package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/uptimebot/internal/ledger"
)

var labels = Labels{Topic: "Topic", Average: "Average", Placed: "Placed", StandingNow: "Standing now", NoData: "No data yet"}

const groupID int64 = -1001234567890

func rec(t *testing.T, topic int64, phone ledger.PhoneID, start, stop string) ledger.Record {
	t.Helper()
	base := time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC)
	r := ledger.Record{Key: ledger.Key{Tenant: "alpha", GroupID: groupID, TopicID: topic, Phone: phone}}
	st, err := ledger.ParseClock(base, start)
	require.NoError(t, err)
	r.Started = ledger.ClockAt(st)
	if stop != "" {
		sp, err := ledger.ParseClock(base, stop)
		require.NoError(t, err)
		r.Stopped = ledger.ClockAt(sp)
		d := sp.Sub(st)
		r.Downtime = &d
	}
	return r
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	records := []ledger.Record{
		rec(t, 2, "333", "10:00", ""),
		rec(t, 1, "111", "09:30", "09:45"),
		rec(t, 1, "222", "09:00", "09:25"),
		rec(t, 2, "111", "08:00", "09:00"),
	}
	s := Aggregate(records)

	require.Len(t, s.Topics, 2)
	assert.Equal(t, int64(1), s.Topics[0].TopicID)
	assert.Equal(t, ledger.PhoneID("222"), s.Topics[0].Records[0].Key.Phone)
	assert.Equal(t, 20*time.Minute, s.Topics[0].Average)
	assert.Equal(t, 60*time.Minute, s.Topics[1].Average)
	assert.Equal(t, 1, s.Topics[1].Measured)

	assert.Equal(t, 3, s.Placed)
	assert.Equal(t, 1, s.StandingNow)
	assert.Equal(t, 3, s.Measured)
	assert.Equal(t, (15+25+60)*time.Minute/3, s.Average)
	assert.Equal(t, ledger.PhoneID("111"), s.Records[0].Key.Phone)
}

func TestRenderGrouped(t *testing.T) {
	t.Parallel()
	r := NewRenderer(labels, 20*time.Minute, 30*time.Minute)

	out := r.Render(ViewGrouped, GroupMeta{ID: groupID, Title: "Ops <1>", TopicNames: map[int64]string{7: "Line & Co"}}, []ledger.Record{
		rec(t, 5, "111", "11:50", "12:05"),
		rec(t, 7, "222", "11:00", "11:25"),
		rec(t, 7, "333", "11:30", ""),
		rec(t, 9, "444", "10:00", "10:45"),
	})

	assert.True(t, strings.HasPrefix(out, "<b>Ops &lt;1&gt;</b>\n"))
	assert.Contains(t, out, `<a href="https://t.me/c/1234567890/5">Topic 1</a>`)
	assert.Contains(t, out, `<a href="https://t.me/c/1234567890/7">Line &amp; Co</a>`)
	assert.Contains(t, out, "111 | 11:50 | 12:05 | 0:15")
	assert.Contains(t, out, "333 | 11:30 | - | -")
	assert.Contains(t, out, "Average - 0:15 🔴")
	assert.Contains(t, out, "Average - 0:25 🟠")
	assert.Contains(t, out, "Average - 0:45\n")
	assert.Contains(t, out, "Placed: 4")
	assert.True(t, strings.HasSuffix(out, "Standing now: 1"))
}

func TestRenderDaily(t *testing.T) {
	t.Parallel()
	r := NewRenderer(labels, 20*time.Minute, 30*time.Minute)

	out := r.Render(ViewDaily, GroupMeta{ID: groupID, Title: "Ops"}, []ledger.Record{
		rec(t, 7, "222", "11:00", "11:40"),
		rec(t, 5, "111", "09:00", "09:30"),
	})

	first := strings.Index(out, "111 |")
	second := strings.Index(out, "222 |")
	require.NotEqual(t, -1, first)
	assert.Less(t, first, second)
	assert.Contains(t, out, "Average: 0:35\n")
	assert.NotContains(t, out, "href")

	fast := r.Render(ViewDaily, GroupMeta{ID: groupID}, []ledger.Record{rec(t, 5, "111", "09:00", "09:05")})
	assert.Contains(t, fast, "Average: 0:05\n")
	assert.NotContains(t, fast, "🔴")
}

func TestRenderEmpty(t *testing.T) {
	t.Parallel()
	r := NewRenderer(labels, 20*time.Minute, 30*time.Minute)
	out := r.Render(ViewGrouped, GroupMeta{ID: 42}, nil)
	assert.Contains(t, out, "<b>42</b>")
	assert.Contains(t, out, "No data yet")
	assert.Contains(t, out, "Placed: 0")
}

func TestFormatting(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0:05", FormatDuration(5*time.Minute+59*time.Second))
	assert.Equal(t, "2:03", FormatDuration(123*time.Minute))
	assert.Equal(t, "0:00", FormatDuration(-time.Minute))

	assert.Equal(t, "https://t.me/c/1234567890/9", TopicLink(-1001234567890, 9))
	assert.Equal(t, "https://t.me/c/4242/4242", TopicLink(-4242, 4242))

	malformed := ledger.Record{Key: ledger.Key{Phone: "1"}, Started: ledger.Clock{Raw: "??"}}
	assert.Equal(t, "1 | ?? | - | -", FormatRecord(malformed))
}

func TestView(t *testing.T) {
	t.Parallel()
	v, ok := ParseView("daily")
	assert.True(t, ok)
	assert.Equal(t, ViewGrouped, v.Toggle())
	assert.Equal(t, ViewDaily, ViewGrouped.Toggle())
	_, ok = ParseView("weekly")
	assert.False(t, ok)
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("line\n", 2000)
	out := truncate(long, MaxMessageLength)
	assert.LessOrEqual(t, len([]rune(out)), MaxMessageLength)
	assert.True(t, strings.HasSuffix(out, "…"))
}
