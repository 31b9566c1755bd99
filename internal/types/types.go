// Package types provides shared type definitions for the application.
package types

// ModelStatus reports which recognition model the engine considers active.
type ModelStatus struct {
	ModelName       string   `json:"model_name"`
	Loaded          bool     `json:"loaded"`
	Loading         bool     `json:"loading"`
	Error           string   `json:"error,omitempty"`
	AvailableModels []string `json:"available_models"`
}

// ModelCacheStatus reports whether a model is already present in the local cache.
type ModelCacheStatus struct {
	Cached    bool   `json:"cached"`
	ModelName string `json:"model_name"`
}

// ModelLoadError is the payload of a failed background model load.
type ModelLoadError struct {
	Error string `json:"error"`
}

// HistoryEntry is a persisted transcription row.
type HistoryEntry struct {
	ID              int64    `json:"id"`
	Text            string   `json:"text"`
	CreatedAt       string   `json:"created_at"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Language        string   `json:"language,omitempty"`
	ModelName       string   `json:"model_name,omitempty"`
}

// Page is one page of history entries with pagination metadata.
type Page struct {
	Entries    []HistoryEntry `json:"entries"`
	TotalCount int            `json:"total_count"`
	HasMore    bool           `json:"has_more"`
}

// Segment is a recognized speech segment delivered while listening.
type Segment struct {
	Text       string `json:"text"`
	Timestamp  string `json:"timestamp"`
	SequenceNo int    `json:"sequence_no"`
}

// SpeechActivity is the binary voice-activity signal.
type SpeechActivity struct {
	IsActive bool `json:"is_active"`
}

// ListeningStatus reports whether continuous listening is running and how
// many segments the engine has produced so far.
type ListeningStatus struct {
	IsListening  bool `json:"is_listening"`
	SegmentCount int  `json:"segment_count"`
}

// RawKeyEvent is a key press/release observed while capturing a new hotkey.
type RawKeyEvent struct {
	Modifiers []string `json:"modifiers"`
	Key       string   `json:"key,omitempty"`
	IsKeyDown bool     `json:"is_key_down"`
	Combined  string   `json:"combined_string"`
}

// SummaryResult is the outcome of summarizing a window of recent history.
type SummaryResult struct {
	Text             string   `json:"text"`
	SourceEntryCount int      `json:"source_entry_count"`
	ProcessingTimeMs *float64 `json:"processing_time_ms,omitempty"`
}
