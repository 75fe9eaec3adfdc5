package handlers

import (
	"strconv"
	"strings"

	"github.com/edgard/uptimebot/internal/report"
)

// Callback data carried by the summary keyboard.
const (
	CallbackGroupedPrefix = "group_stats_"
	CallbackDailyPrefix   = "daily_stats_"
	CallbackStop          = "stop_tracking"
)

// ViewCallback returns the callback data that switches groupID to view.
func ViewCallback(view report.View, groupID int64) string {
	prefix := CallbackGroupedPrefix
	if view == report.ViewDaily {
		prefix = CallbackDailyPrefix
	}
	return prefix + strconv.FormatInt(groupID, 10)
}

// ParseViewCallback is the inverse of ViewCallback.
func ParseViewCallback(data string) (report.View, int64, bool) {
	var view report.View
	var rest string
	switch {
	case strings.HasPrefix(data, CallbackGroupedPrefix):
		view, rest = report.ViewGrouped, strings.TrimPrefix(data, CallbackGroupedPrefix)
	case strings.HasPrefix(data, CallbackDailyPrefix):
		view, rest = report.ViewDaily, strings.TrimPrefix(data, CallbackDailyPrefix)
	default:
		return "", 0, false
	}
	groupID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return view, groupID, true
}
