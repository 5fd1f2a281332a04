package domain

import "time"

// RefreshEvent announces that a feed's table was replaced.
type RefreshEvent struct {
	Feed              string    `json:"feed"`
	Table             string    `json:"table"`
	Features          int       `json:"features"`
	InvalidTimestamps int       `json:"invalid_timestamps"`
	Extent            *Extent   `json:"extent,omitempty"`
	Newest            time.Time `json:"newest,omitzero"` // most recent strike observed
	LoadedAt          time.Time `json:"loaded_at"`
}

// FeedStatus is the outcome of a feed's most recent run.
type FeedStatus struct {
	Feed        string    `json:"feed"`
	Table       string    `json:"table"`
	LastRun     time.Time `json:"last_run,omitzero"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	Features    int       `json:"features"`
	Error       string    `json:"error,omitempty"`
}
