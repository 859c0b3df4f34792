package model

import "time"

// Run statuses.
const (
	RunSucceeded = "success"
	RunFailed    = "failure"
)

// Run is one row of execution history. The source text is never stored,
// only what is needed for aggregate stats.
type Run struct {
	ID         string    `json:"id"`
	Language   string    `json:"language"`
	Status     string    `json:"status"`
	ErrorKind  string    `json:"errorKind,omitempty"` // "" on success
	DurationMS int64     `json:"durationMs"`
	LogLines   int       `json:"logLines"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RunStats aggregates the run history.
type RunStats struct {
	Total      int64            `json:"total"`
	Succeeded  int64            `json:"succeeded"`
	Failed     int64            `json:"failed"`
	ByKind     map[string]int64 `json:"byKind"`
	ByLanguage map[string]int64 `json:"byLanguage"`
	AvgMS      float64          `json:"avgDurationMs"`
}
