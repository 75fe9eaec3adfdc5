package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/uptimebot/internal/database"
	"github.com/edgard/uptimebot/internal/logger"
	"github.com/edgard/uptimebot/internal/report"
	"github.com/edgard/uptimebot/internal/storage"
)

func TestRootCommands(t *testing.T) {
	t.Parallel()
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "report", "migrate"})

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, defaultConfigPath, flag.DefValue)
}

func TestWriteReport(t *testing.T) {
	t.Parallel()
	secs := 300.0
	rows := []storage.IntervalRow{
		{GroupID: -1002, TopicID: 7, Phone: "111111111", Started: "2025-02-27T11:50:00", Stopped: "2025-02-27T11:55:00", DowntimeSeconds: &secs, TopicName: "Line 7", GroupTitle: "Night"},
		{GroupID: -1001, TopicID: 3, Phone: "222222222", Started: "2025-02-27T12:00:00"},
	}
	groups := []database.TenantGroup{{TenantKey: "alpha", GroupID: -1001, GroupName: "Ops"}, {TenantKey: "alpha", GroupID: -1003, GroupName: "Empty"}}
	r := report.NewRenderer(report.Labels{Topic: "Topic", Average: "Average", Placed: "Placed", StandingNow: "Standing now", NoData: "No data"}, 20*time.Minute, 30*time.Minute)

	var out bytes.Buffer
	require.NoError(t, writeReport(&out, r, report.ViewGrouped, "alpha", groups, rows, time.UTC, logger.Discard()))

	text := out.String()
	ops := strings.Index(text, "<b>Ops</b>")
	night := strings.Index(text, "<b>Night</b>")
	empty := strings.Index(text, "<b>Empty</b>")
	require.NotEqual(t, -1, ops)
	require.NotEqual(t, -1, night)
	require.NotEqual(t, -1, empty)
	assert.Less(t, empty, night, "groups are ordered by id")
	assert.Less(t, night, ops)
	assert.Contains(t, text, "Line 7")
	assert.Contains(t, text, "111111111 | 11:50 | 11:55 | 0:05")
	assert.Contains(t, text, "No data")
}

func TestReportRejectsUnknownView(t *testing.T) {
	t.Parallel()
	code := run(context.Background(), []string{"report", "--tenant", "alpha", "--view", "weekly"})
	assert.Equal(t, 1, code)
}

func TestMigrate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "uptime.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
telegram:
  token: "123456789:test"
gemini:
  api_keys: ["key"]
database:
  path: "`+dbPath+`"
tenants:
  - id: alpha
    access_key: alpha-key
`), 0o600))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"migrate", "--config", cfgPath})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "migrations applied")
	assert.FileExists(t, dbPath)
}
