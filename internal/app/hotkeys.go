package app

import (
	"log/slog"

	"github.com/echo-stt/echo/config"
	"github.com/echo-stt/echo/hotkeys"
)

func (s *Service) setupHotkey() {
	s.registrar = hotkeys.NewRegistrar(s.bus, func() {
		s.emit(EventHotkeyPressed, nil)
	})

	binding, err := hotkeys.Parse(s.cfg.Hotkey)
	if err != nil {
		slog.Warn("saved hotkey unparseable, using default", "hotkey", s.cfg.Hotkey, "error", err)
		binding, _ = hotkeys.Parse(config.DefaultHotkey)
	}
	if err := s.registrar.Register(binding); err != nil {
		slog.Error("register hotkey", "binding", binding.String(), "error", err)
	}

	s.capture = hotkeys.NewSession(s.bus, s.registrar, binding,
		func(b hotkeys.Binding) error {
			s.cfg.Hotkey = b.String()
			return s.cfg.Save()
		},
		func(b hotkeys.Binding, err error) {
			if err != nil {
				slog.Warn("hotkey capture", "error", err)
				s.emit(EventHotkeyCaptureError, err.Error())
				return
			}
			s.emit(EventHotkeyCaptured, HotkeyCaptured{Hotkey: b.String()})
		})
}

// GetHotkey returns the current dictation hotkey.
func (s *Service) GetHotkey() string {
	return s.cfg.Hotkey
}

// StartHotkeyCapture frees the hotkey and starts recording a replacement.
// Progress streams to the frontend as raw-key-event; the outcome arrives as
// hotkey-captured or hotkey-capture-error.
func (s *Service) StartHotkeyCapture() error {
	return s.capture.Begin()
}

// CancelHotkeyCapture aborts a running capture and restores the previous
// hotkey.
func (s *Service) CancelHotkeyCapture() {
	s.capture.Cancel()
}

// IsCapturingHotkey reports whether a capture is recording.
func (s *Service) IsCapturingHotkey() bool {
	return s.capture.Active()
}
