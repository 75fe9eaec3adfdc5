package config

import "github.com/spf13/viper"

// EnvPrefix is the prefix of environment overrides, e.g. UPTIMEBOT_TELEGRAM_TOKEN.
const EnvPrefix = "UPTIMEBOT"

var defaults = map[string]any{
	"logger.level": "info",
	"logger.json":  false,

	"telegram.commands": map[string]string{
		"start":        "Log in with your access key",
		"stop":         "Stop receiving summaries",
		"help":         "Show available commands",
		"add_group":    "Register a group: /add_group <group_id> <name>",
		"remove_group": "Unregister a group: /remove_group <group_id>",
		"list_groups":  "List registered groups",
	},

	"gemini.model_name":  "gemini-2.0-flash",
	"gemini.temperature": 0.0,
	"gemini.timeout":     "30s",
	"gemini.max_retries": 2,
	"gemini.retry_delay": "2s",

	"database.path": "uptimebot.db",

	"storage.backend": "sqlite",
	"storage.csv_dir": "data",

	"tracker.timezone":                   "Europe/Kyiv",
	"tracker.max_concurrent_extractions": 4,
	"tracker.correction_threshold":       "45m",
	"tracker.min_phone_digits":           8,

	"metrics.address": "",

	"scheduler.tasks.daily_rollover.enabled":  true,
	"scheduler.tasks.daily_rollover.schedule": "0 0 0 * * *",
	"scheduler.tasks.sql_maintenance.enabled":  true,
	"scheduler.tasks.sql_maintenance.schedule": "0 30 3 * * 0",

	"messages.welcome":            "👋 Welcome! Send /start <access key> to log in.",
	"messages.ask_access_key":     "🔑 Please send your access key.",
	"messages.invalid_access_key": "🚫 Invalid access key. Please try again.",
	"messages.logged_in":          "✅ Logged in as %s. Tracking is active.",
	"messages.logged_out":         "⏹ Tracking stopped. Send /start to resume.",
	"messages.not_logged_in":      "🚫 You are not logged in. Use /start to log in.",
	"messages.general_error":      "❌ An error occurred. Please try again later.",
	"messages.group_added":        "✅ Group %d (%s) added.",
	"messages.group_removed":      "🗑 Group %d removed.",
	"messages.group_not_found":    "ℹ️ Group %d is not registered.",
	"messages.no_groups":          "ℹ️ No groups registered yet.",
	"messages.groups_header":      "Registered groups:",
	"messages.add_group_usage":    "Usage: /add_group <group_id> <name>",
	"messages.remove_group_usage": "Usage: /remove_group <group_id>",
	"messages.help":               "/start <key> - log in\n/stop - stop tracking\n/add_group <id> <name> - register a group\n/remove_group <id> - unregister a group\n/list_groups - list groups",

	"report.topic":          "Topic",
	"report.average":        "Average",
	"report.placed":         "Placed",
	"report.standing_now":   "Standing now",
	"report.no_data":        "No data yet",
	"report.grouped_button": "By topic",
	"report.daily_button":   "Daily",
	"report.stop_button":    "Stop",
	"report.critical_below": "20m",
	"report.warning_below":  "30m",
}

// envOnlyKeys have no default but must still be picked up from the environment.
var envOnlyKeys = []string{"telegram.token", "gemini.api_keys"}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
