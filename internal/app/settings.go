package app

import "github.com/echo-stt/echo/config"

// GetSettings returns the current settings.
func (s *Service) GetSettings() config.Config {
	return *s.cfg
}

// SetLanguage sets the recognition language ("auto" for detection).
func (s *Service) SetLanguage(lang string) error {
	s.cfg.Language = lang
	return s.cfg.Save()
}

// SetAutoInsert toggles typing recognized text into the focused field.
func (s *Service) SetAutoInsert(enabled bool) error {
	s.cfg.AutoInsert = enabled
	return s.cfg.Save()
}

// SetDeviceName selects the capture device, "" for the system default.
func (s *Service) SetDeviceName(name string) error {
	s.cfg.DeviceName = name
	return s.cfg.Save()
}
