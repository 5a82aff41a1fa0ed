package models

import "time"

type CommandType string

const (
	CmdScrapeNow CommandType = "scrape_now"
	CmdDumpNow   CommandType = "dump_now"
	CmdPause     CommandType = "pause"
	CmdResume    CommandType = "resume"
)

// Command is a row in the commands table, written by operators and
// consumed by the scheduler's poll loop.
type Command struct {
	ID          int64       `json:"id" db:"id"`
	Command     CommandType `json:"command" db:"command"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time  `json:"processed_at" db:"processed_at"`
}
