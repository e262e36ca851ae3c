package progress

import "time"

type EventType string

const (
	EventRunStarted      EventType = "run_started"
	EventStagingFinished EventType = "staging_finished"
	EventFileStarted     EventType = "file_started"
	EventFileFinished    EventType = "file_finished"
	EventRunWarning      EventType = "run_warning"
	EventRunFinished     EventType = "run_finished"
)

type Event struct {
	Type         EventType `json:"type"`
	At           time.Time `json:"at"`
	RunID        string    `json:"run_id,omitempty"`
	File         string    `json:"file,omitempty"`
	Status       string    `json:"status,omitempty"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	FilesTotal   int       `json:"files_total,omitempty"`
	FindingCount int       `json:"finding_count,omitempty"`
	DurationMS   int64     `json:"duration_ms,omitempty"`
}
