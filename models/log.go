package models

import (
	"strings"
	"time"
)

// LogLevel is the severity stored with each scrape_logs row. The zero value
// means "any level" wherever a filter is accepted.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogLevels is ordered from least to most severe.
var LogLevels = []LogLevel{LogLevelInfo, LogLevelWarn, LogLevelError}

// Label is the column text used by the monitor.
func (l LogLevel) Label() string {
	if l == "" {
		return "ALL"
	}
	return strings.ToUpper(string(l))
}

// ScrapeLog is one progress line written during a scrape run. RunID is nil
// when the run itself could not be recorded.
type ScrapeLog struct {
	ID        int64     `json:"id" db:"id"`
	RunID     *int64    `json:"run_id,omitempty" db:"run_id"`
	SiteID    string    `json:"site_id" db:"site_id"`
	Level     LogLevel  `json:"level" db:"level"`
	Message   string    `json:"message" db:"message"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
