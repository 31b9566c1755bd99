// Package app provides the core application service for Wails bindings.
package app

// Event names for frontend communication.
const (
	EventModelLoadComplete  = "model-load-complete"
	EventModelLoadError     = "model-load-error"
	EventSegment            = "segment-recognized"
	EventSpeechActivity     = "speech-activity-changed"
	EventRawKey             = "raw-key-event"
	EventHotkeyPressed      = "hotkey-pressed"
	EventHotkeyCaptured     = "hotkey-captured"
	EventHotkeyCaptureError = "hotkey-capture-error"
	EventHistoryChanged     = "history-changed"
	EventEngineReady        = "engine-ready"
	EventEngineError        = "engine-error"
)

// HotkeyCaptured is the payload of EventHotkeyCaptured.
type HotkeyCaptured struct {
	Hotkey string `json:"hotkey"`
}
