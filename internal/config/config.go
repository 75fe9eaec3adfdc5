// Package config provides configuration loading, validation, and management
// for the uptime bot. It reads a YAML file, applies UPTIMEBOT_* environment
// overrides and validates the result.
package config

import (
	"time"
)

// Config holds the complete application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Tenants   []TenantConfig  `mapstructure:"tenants"   validate:"unique=ID,unique=AccessKey,dive"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Report    ReportConfig    `mapstructure:"report"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot token and command descriptions.
type TelegramConfig struct {
	Token    string            `mapstructure:"token"    validate:"required"`
	Commands map[string]string `mapstructure:"commands"`
}

// GeminiConfig configures the extraction oracle. API keys are tried in order;
// a key that hits its quota hands over to the next one.
type GeminiConfig struct {
	APIKeys     []string      `mapstructure:"api_keys"    validate:"required,min=1,dive,required"`
	ModelName   string        `mapstructure:"model_name"  validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=5m"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" validate:"min=0,max=1m"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// StorageConfig selects where ledger snapshots are flushed.
type StorageConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=sqlite csv"`
	CSVDir  string `mapstructure:"csv_dir" validate:"required_if=Backend csv"`
}

// TrackerConfig tunes message processing.
type TrackerConfig struct {
	Timezone                 string        `mapstructure:"timezone"                   validate:"required"`
	MaxConcurrentExtractions int64         `mapstructure:"max_concurrent_extractions" validate:"min=1,max=64"`
	CorrectionThreshold      time.Duration `mapstructure:"correction_threshold"       validate:"min=1m,max=12h"`
	MinPhoneDigits           int           `mapstructure:"min_phone_digits"           validate:"min=1,max=20"`

	// Location is resolved from Timezone on load.
	Location *time.Location `mapstructure:"-" validate:"-"`
}

// TenantConfig declares an account partition and the key that logs into it.
type TenantConfig struct {
	ID        string `mapstructure:"id"         validate:"required,max=64,tenant_id"`
	Name      string `mapstructure:"name"`
	AccessKey string `mapstructure:"access_key" validate:"required,min=4"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Address string `mapstructure:"address" validate:"omitempty,hostname_port"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig enables a task and sets its cron expression (with seconds).
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// MessagesConfig holds user-facing texts.
type MessagesConfig struct {
	Welcome          string `mapstructure:"welcome"            validate:"required"`
	AskAccessKey     string `mapstructure:"ask_access_key"     validate:"required"`
	InvalidAccessKey string `mapstructure:"invalid_access_key" validate:"required"`
	LoggedIn         string `mapstructure:"logged_in"          validate:"required"`
	LoggedOut        string `mapstructure:"logged_out"         validate:"required"`
	NotLoggedIn      string `mapstructure:"not_logged_in"      validate:"required"`
	GeneralError     string `mapstructure:"general_error"      validate:"required"`
	GroupAdded       string `mapstructure:"group_added"        validate:"required"`
	GroupRemoved     string `mapstructure:"group_removed"      validate:"required"`
	GroupNotFound    string `mapstructure:"group_not_found"    validate:"required"`
	NoGroups         string `mapstructure:"no_groups"          validate:"required"`
	GroupsHeader     string `mapstructure:"groups_header"      validate:"required"`
	AddGroupUsage    string `mapstructure:"add_group_usage"    validate:"required"`
	RemoveGroupUsage string `mapstructure:"remove_group_usage" validate:"required"`
	Help             string `mapstructure:"help"               validate:"required"`
}

// ReportConfig holds summary labels and downtime thresholds.
type ReportConfig struct {
	Topic          string        `mapstructure:"topic"           validate:"required"`
	Average        string        `mapstructure:"average"         validate:"required"`
	Placed         string        `mapstructure:"placed"          validate:"required"`
	StandingNow    string        `mapstructure:"standing_now"    validate:"required"`
	NoData         string        `mapstructure:"no_data"         validate:"required"`
	GroupedButton  string        `mapstructure:"grouped_button"  validate:"required"`
	DailyButton    string        `mapstructure:"daily_button"    validate:"required"`
	StopButton     string        `mapstructure:"stop_button"     validate:"required"`
	CriticalBelow  time.Duration `mapstructure:"critical_below"`
	WarningBelow   time.Duration `mapstructure:"warning_below"   validate:"gtefield=CriticalBelow"`
}

// TenantByAccessKey returns the tenant whose access key matches key.
func (c *Config) TenantByAccessKey(key string) (TenantConfig, bool) {
	for _, t := range c.Tenants {
		if t.AccessKey == key {
			return t, true
		}
	}
	return TenantConfig{}, false
}

// TenantByID returns the tenant with the given id.
func (c *Config) TenantByID(id string) (TenantConfig, bool) {
	for _, t := range c.Tenants {
		if t.ID == id {
			return t, true
		}
	}
	return TenantConfig{}, false
}
