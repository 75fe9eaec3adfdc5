package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/uptimebot/internal/ledger"
	"github.com/edgard/uptimebot/internal/storage"
)

// Store defines the interface for database operations.
// Methods should accept context.Context for cancellation and timeouts.
type Store interface {
	storage.LedgerStore

	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// AddTenantGroup registers or renames a group under a tenant.
	AddTenantGroup(ctx context.Context, group *TenantGroup) error
	// RemoveTenantGroup unregisters a group. Returns false if it was not registered.
	RemoveTenantGroup(ctx context.Context, tenant ledger.TenantKey, groupID int64) (bool, error)
	// ListTenantGroups returns the groups of one tenant ordered by name.
	ListTenantGroups(ctx context.Context, tenant ledger.TenantKey) ([]TenantGroup, error)
	// ListAllTenantGroups returns every registration, used to build the fan-out index.
	ListAllTenantGroups(ctx context.Context) ([]TenantGroup, error)

	// SaveAdminChat inserts or updates an admin chat binding.
	SaveAdminChat(ctx context.Context, chat *AdminChat) error
	// GetAdminChat returns the binding of a chat. Returns nil, nil if not found.
	GetAdminChat(ctx context.Context, chatID int64) (*AdminChat, error)
	// ListActiveAdminChats returns every active binding.
	ListActiveAdminChats(ctx context.Context) ([]AdminChat, error)

	// GetSummaryMessage returns the summary posted for a group in a chat. Returns nil, nil if not found.
	GetSummaryMessage(ctx context.Context, tenant ledger.TenantKey, chatID, groupID int64) (*SummaryMessage, error)
	// SaveSummaryMessage inserts or updates a summary message reference.
	SaveSummaryMessage(ctx context.Context, msg *SummaryMessage) error
	// DeleteSummaryMessages forgets every summary of a tenant in a chat.
	DeleteSummaryMessages(ctx context.Context, tenant ledger.TenantKey, chatID int64) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const intervalColumns = `group_id, topic_id, phone, started, stopped, downtime_seconds, topic_name, last_phone, group_title`

// LoadIntervals returns the tenant's rows whose started or stopped date is day.
func (s *sqlxStore) LoadIntervals(ctx context.Context, tenant ledger.TenantKey, day time.Time) ([]storage.IntervalRow, error) {
	if tenant == "" {
		return nil, errors.New("tenant key cannot be empty")
	}

	dayKey := storage.DayKey(day)
	query := `SELECT ` + intervalColumns + `
        FROM intervals
        WHERE tenant_key = ? AND (substr(started, 1, 10) = ? OR substr(stopped, 1, 10) = ?)
        ORDER BY group_id, topic_id, started, phone;`

	var rows []storage.IntervalRow
	if err := s.db.SelectContext(ctx, &rows, query, string(tenant), dayKey, dayKey); err != nil {
		s.logger.ErrorContext(ctx, "Error loading intervals", "tenant", tenant, "day", dayKey, "error", err)
		return nil, fmt.Errorf("failed to load intervals for tenant %s: %w", tenant, err)
	}

	s.logger.DebugContext(ctx, "Loaded intervals", "tenant", tenant, "day", dayKey, "count", len(rows))
	return rows, nil
}

// SaveIntervals replaces the tenant's snapshot inside one transaction.
func (s *sqlxStore) SaveIntervals(ctx context.Context, tenant ledger.TenantKey, rows []storage.IntervalRow) error {
	if tenant == "" {
		return errors.New("tenant key cannot be empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for saving intervals", "tenant", tenant, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM intervals WHERE tenant_key = ?;`, string(tenant)); err != nil {
		return fmt.Errorf("failed to clear intervals for tenant %s: %w", tenant, err)
	}

	query := `
        INSERT INTO intervals (tenant_key, ` + intervalColumns + `)
        VALUES (:tenant_key, :group_id, :topic_id, :phone, :started, :stopped, :downtime_seconds, :topic_name, :last_phone, :group_title)
        ON CONFLICT(tenant_key, group_id, topic_id, phone) DO UPDATE SET
            started = excluded.started,
            stopped = excluded.stopped,
            downtime_seconds = excluded.downtime_seconds,
            topic_name = excluded.topic_name,
            last_phone = excluded.last_phone,
            group_title = excluded.group_title;
    `
	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, query, intervalModel{TenantKey: string(tenant), IntervalRow: row}); err != nil {
			s.logger.ErrorContext(ctx, "Error saving interval", "tenant", tenant, "group_id", row.GroupID, "phone", row.Phone, "error", err)
			return fmt.Errorf("failed to save interval (group %d, phone %s): %w", row.GroupID, row.Phone, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit intervals", "tenant", tenant, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.DebugContext(ctx, "Intervals saved", "tenant", tenant, "count", len(rows))
	return nil
}

// ArchiveIntervals appends closed intervals to interval_history.
func (s *sqlxStore) ArchiveIntervals(ctx context.Context, tenant ledger.TenantKey, rows []storage.IntervalRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	query := `
        INSERT INTO interval_history (tenant_key, ` + intervalColumns + `)
        VALUES (:tenant_key, :group_id, :topic_id, :phone, :started, :stopped, :downtime_seconds, :topic_name, :last_phone, :group_title);
    `
	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, query, intervalModel{TenantKey: string(tenant), IntervalRow: row}); err != nil {
			return fmt.Errorf("failed to archive interval (group %d, phone %s): %w", row.GroupID, row.Phone, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.DebugContext(ctx, "Intervals archived", "tenant", tenant, "count", len(rows))
	return nil
}

// AddTenantGroup registers or renames a group under a tenant.
func (s *sqlxStore) AddTenantGroup(ctx context.Context, group *TenantGroup) error {
	if group == nil {
		return errors.New("cannot save nil tenant group")
	}
	if group.TenantKey == "" || group.GroupID == 0 {
		return errors.New("tenant group must have a tenant key and a non-zero group_id")
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO tenant_groups (tenant_key, group_id, group_name, created_at)
        VALUES (:tenant_key, :group_id, :group_name, :created_at)
        ON CONFLICT(tenant_key, group_id) DO UPDATE SET group_name = excluded.group_name;
    `
	if _, err := s.db.NamedExecContext(ctx, query, group); err != nil {
		s.logger.ErrorContext(ctx, "Error saving tenant group", "tenant", group.TenantKey, "group_id", group.GroupID, "error", err)
		return fmt.Errorf("failed to save tenant group %d: %w", group.GroupID, err)
	}
	return nil
}

// RemoveTenantGroup unregisters a group from a tenant.
func (s *sqlxStore) RemoveTenantGroup(ctx context.Context, tenant ledger.TenantKey, groupID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenant_groups WHERE tenant_key = ? AND group_id = ?;`, string(tenant), groupID)
	if err != nil {
		return false, fmt.Errorf("failed to remove tenant group %d: %w", groupID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check removed rows: %w", err)
	}
	return affected > 0, nil
}

// ListTenantGroups returns the groups of one tenant.
func (s *sqlxStore) ListTenantGroups(ctx context.Context, tenant ledger.TenantKey) ([]TenantGroup, error) {
	var groups []TenantGroup
	query := `SELECT tenant_key, group_id, group_name, created_at FROM tenant_groups WHERE tenant_key = ? ORDER BY group_name, group_id;`
	if err := s.db.SelectContext(ctx, &groups, query, string(tenant)); err != nil {
		return nil, fmt.Errorf("failed to list groups for tenant %s: %w", tenant, err)
	}
	return groups, nil
}

// ListAllTenantGroups returns every registration.
func (s *sqlxStore) ListAllTenantGroups(ctx context.Context) ([]TenantGroup, error) {
	var groups []TenantGroup
	query := `SELECT tenant_key, group_id, group_name, created_at FROM tenant_groups ORDER BY group_id, tenant_key;`
	if err := s.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, fmt.Errorf("failed to list tenant groups: %w", err)
	}
	return groups, nil
}

// SaveAdminChat inserts or updates an admin chat binding.
func (s *sqlxStore) SaveAdminChat(ctx context.Context, chat *AdminChat) error {
	if chat == nil {
		return errors.New("cannot save nil admin chat")
	}
	if chat.ChatID == 0 || chat.TenantKey == "" {
		return errors.New("admin chat must have a non-zero chat_id and a tenant key")
	}
	chat.UpdatedAt = time.Now().UTC()

	query := `
        INSERT INTO admin_chats (chat_id, tenant_key, active, updated_at)
        VALUES (:chat_id, :tenant_key, :active, :updated_at)
        ON CONFLICT(chat_id) DO UPDATE SET
            tenant_key = excluded.tenant_key,
            active = excluded.active,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, chat); err != nil {
		s.logger.ErrorContext(ctx, "Error saving admin chat", "chat_id", chat.ChatID, "error", err)
		return fmt.Errorf("failed to save admin chat %d: %w", chat.ChatID, err)
	}
	return nil
}

// GetAdminChat returns the binding of a chat.
func (s *sqlxStore) GetAdminChat(ctx context.Context, chatID int64) (*AdminChat, error) {
	var chat AdminChat
	err := s.db.GetContext(ctx, &chat, `SELECT chat_id, tenant_key, active, updated_at FROM admin_chats WHERE chat_id = ?;`, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get admin chat %d: %w", chatID, err)
	}
	return &chat, nil
}

// ListActiveAdminChats returns every active binding.
func (s *sqlxStore) ListActiveAdminChats(ctx context.Context) ([]AdminChat, error) {
	var chats []AdminChat
	query := `SELECT chat_id, tenant_key, active, updated_at FROM admin_chats WHERE active = 1 ORDER BY tenant_key, chat_id;`
	if err := s.db.SelectContext(ctx, &chats, query); err != nil {
		return nil, fmt.Errorf("failed to list admin chats: %w", err)
	}
	return chats, nil
}

// GetSummaryMessage returns the summary posted for a group in a chat.
func (s *sqlxStore) GetSummaryMessage(ctx context.Context, tenant ledger.TenantKey, chatID, groupID int64) (*SummaryMessage, error) {
	var msg SummaryMessage
	query := `SELECT tenant_key, chat_id, group_id, message_id, view FROM summary_messages WHERE tenant_key = ? AND chat_id = ? AND group_id = ?;`
	if err := s.db.GetContext(ctx, &msg, query, string(tenant), chatID, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get summary message: %w", err)
	}
	return &msg, nil
}

// SaveSummaryMessage inserts or updates a summary message reference.
func (s *sqlxStore) SaveSummaryMessage(ctx context.Context, msg *SummaryMessage) error {
	if msg == nil {
		return errors.New("cannot save nil summary message")
	}
	query := `
        INSERT INTO summary_messages (tenant_key, chat_id, group_id, message_id, view)
        VALUES (:tenant_key, :chat_id, :group_id, :message_id, :view)
        ON CONFLICT(tenant_key, chat_id, group_id) DO UPDATE SET
            message_id = excluded.message_id,
            view = excluded.view;
    `
	if _, err := s.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("failed to save summary message: %w", err)
	}
	return nil
}

// DeleteSummaryMessages forgets every summary of a tenant in a chat.
func (s *sqlxStore) DeleteSummaryMessages(ctx context.Context, tenant ledger.TenantKey, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM summary_messages WHERE tenant_key = ? AND chat_id = ?;`, string(tenant), chatID); err != nil {
		return fmt.Errorf("failed to delete summary messages: %w", err)
	}
	return nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")
	start := time.Now()

	// VACUUM cannot run inside a transaction.
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		s.logger.ErrorContext(ctx, "Error during VACUUM", "error", err)
		return fmt.Errorf("failed to run VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *sqlxStore) rollback(ctx context.Context, tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.WarnContext(ctx, "Error rolling back transaction", "error", err)
	}
}
