package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/edgard/uptimebot/internal/ledger"
)

var csvHeader = []string{
	"group_id", "topic_id", "phone", "started", "stopped",
	"downtime_seconds", "topic_name", "last_phone", "group_title",
}

// CSVStore keeps each tenant in its own stats_<tenant>.csv file under dir and
// appends archived intervals to history_<tenant>.csv.
type CSVStore struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewCSVStore creates dir if needed and returns a store rooted there.
func NewCSVStore(dir string, logger *slog.Logger) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create csv directory %s: %w", dir, err)
	}
	return &CSVStore{dir: dir, logger: logger.With("component", "csv_store")}, nil
}

// LoadIntervals implements LedgerStore.
func (s *CSVStore) LoadIntervals(ctx context.Context, tenant ledger.TenantKey, day time.Time) ([]IntervalRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.statsPath(tenant))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open stats for tenant %s: %w", tenant, err)
	}
	defer f.Close()

	rows, err := readRows(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats for tenant %s: %w", tenant, err)
	}

	kept := rows[:0]
	for _, row := range rows {
		if OnDay(row, day) {
			kept = append(kept, row)
		}
	}
	s.logger.DebugContext(ctx, "Loaded intervals", "tenant", tenant, "rows", len(rows), "kept", len(kept))
	return kept, nil
}

// SaveIntervals implements LedgerStore. The file is written to a temporary
// path and renamed so readers never see a partial snapshot.
func (s *CSVStore) SaveIntervals(ctx context.Context, tenant ledger.TenantKey, rows []IntervalRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.statsPath(tenant)
	tmp, err := os.CreateTemp(s.dir, ".stats-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file for tenant %s: %w", tenant, err)
	}
	defer os.Remove(tmp.Name())

	if err := writeRows(tmp, rows, true); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write stats for tenant %s: %w", tenant, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close stats for tenant %s: %w", tenant, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace stats for tenant %s: %w", tenant, err)
	}

	s.logger.DebugContext(ctx, "Saved intervals", "tenant", tenant, "rows", len(rows))
	return nil
}

// ArchiveIntervals implements LedgerStore.
func (s *CSVStore) ArchiveIntervals(ctx context.Context, tenant ledger.TenantKey, rows []IntervalRow) error {
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.historyPath(tenant)
	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history for tenant %s: %w", tenant, err)
	}
	if err := writeRows(f, rows, fresh); err != nil {
		f.Close()
		return fmt.Errorf("failed to append history for tenant %s: %w", tenant, err)
	}

	s.logger.DebugContext(ctx, "Archived intervals", "tenant", tenant, "rows", len(rows))
	return f.Close()
}

// History returns every archived row of tenant.
func (s *CSVStore) History(tenant ledger.TenantKey) ([]IntervalRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.historyPath(tenant))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readRows(f)
}

func (s *CSVStore) statsPath(tenant ledger.TenantKey) string {
	return filepath.Join(s.dir, "stats_"+fileSafe(tenant)+".csv")
}

func (s *CSVStore) historyPath(tenant ledger.TenantKey) string {
	return filepath.Join(s.dir, "history_"+fileSafe(tenant)+".csv")
}

func fileSafe(tenant ledger.TenantKey) string {
	b := []byte(tenant)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

func writeRows(w io.Writer, rows []IntervalRow, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, row := range rows {
		downtime := ""
		if row.DowntimeSeconds != nil {
			downtime = strconv.FormatFloat(*row.DowntimeSeconds, 'f', -1, 64)
		}
		rec := []string{
			strconv.FormatInt(row.GroupID, 10),
			strconv.FormatInt(row.TopicID, 10),
			row.Phone,
			row.Started,
			row.Stopped,
			downtime,
			row.TopicName,
			row.LastPhone,
			row.GroupTitle,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readRows(r io.Reader) ([]IntervalRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	var rows []IntervalRow
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == csvHeader[0] {
			continue
		}
		if len(rec) < len(csvHeader) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", i+1, len(csvHeader), len(rec))
		}
		groupID, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid group_id: %w", i+1, err)
		}
		topicID, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid topic_id: %w", i+1, err)
		}
		row := IntervalRow{
			GroupID:    groupID,
			TopicID:    topicID,
			Phone:      rec[2],
			Started:    rec[3],
			Stopped:    rec[4],
			TopicName:  rec[6],
			LastPhone:  rec[7],
			GroupTitle: rec[8],
		}
		if rec[5] != "" {
			secs, err := strconv.ParseFloat(rec[5], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid downtime_seconds: %w", i+1, err)
			}
			row.DowntimeSeconds = &secs
		}
		rows = append(rows, row)
	}
	return rows, nil
}
