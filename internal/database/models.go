package database

import (
	"time"

	"github.com/edgard/uptimebot/internal/storage"
)

// intervalModel is an interval row scoped to its tenant.
type intervalModel struct {
	TenantKey string `db:"tenant_key"`
	storage.IntervalRow
}

// TenantGroup registers a group chat under a tenant. A group may belong to
// several tenants; every one of them receives the group's events.
type TenantGroup struct {
	TenantKey string    `db:"tenant_key"`
	GroupID   int64     `db:"group_id"`
	GroupName string    `db:"group_name"`
	CreatedAt time.Time `db:"created_at"`
}

// AdminChat binds a private chat to the tenant it logged in with.
// Inactive chats keep their binding but receive no summaries.
type AdminChat struct {
	ChatID    int64     `db:"chat_id"`
	TenantKey string    `db:"tenant_key"`
	Active    bool      `db:"active"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SummaryMessage is the live summary posted for a group in an admin chat.
type SummaryMessage struct {
	TenantKey string `db:"tenant_key"`
	ChatID    int64  `db:"chat_id"`
	GroupID   int64  `db:"group_id"`
	MessageID int    `db:"message_id"`
	View      string `db:"view"`
}
