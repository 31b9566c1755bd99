package engine

import "encoding/json"

// request is one command line written to the engine's stdin.
type request struct {
	Command   string           `json:"command"`
	ID        uint64           `json:"id"`
	ModelName string           `json:"model_name,omitempty"`
	Language  string           `json:"language,omitempty"`
	Entries   []SummarizeEntry `json:"entries,omitempty"`
	Prompt    string           `json:"prompt,omitempty"`
	LangHint  string           `json:"language_hint,omitempty"`
}

// wireMessage is one line read from the engine's stdout. Responses carry an
// id; unsolicited notifications carry an event name instead.
type wireMessage struct {
	ID     *uint64         `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Status string          `json:"status,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// SummarizeEntry is one history row handed to the engine for summarization.
type SummarizeEntry struct {
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// WarmupResult reports the outcome of a model warmup pass.
type WarmupResult struct {
	Success      bool     `json:"success"`
	WarmupTimeMs *float64 `json:"warmup_time_ms,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type pingResult struct {
	Pong bool `json:"pong"`
}

type stopListeningResult struct {
	SegmentCount int `json:"segment_count"`
}

type summarizeResult struct {
	Success          bool     `json:"success"`
	Summary          string   `json:"summary"`
	ProcessingTimeMs *float64 `json:"processing_time_ms,omitempty"`
	Error            string   `json:"error,omitempty"`
	EntryCount       int      `json:"entry_count"`
}
