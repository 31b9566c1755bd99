package app

import (
	"context"

	"github.com/echo-stt/echo/listening"
)

// StartListening begins continuous listening with the configured language.
func (s *Service) StartListening() error {
	return s.listening.Start(context.Background(), s.cfg.Language)
}

// StopListening ends the session and returns the segment count.
func (s *Service) StopListening() (int, error) {
	return s.listening.Stop(context.Background())
}

// GetListeningStatus reconciles with the engine and returns the session
// state. The engine keeps running while the window is closed, so the UI asks
// on reopen instead of trusting its last render.
func (s *Service) GetListeningStatus() (listening.Status, error) {
	return s.listening.Reconcile(context.Background())
}

// GetSessionSnapshot returns the session state without touching the engine.
func (s *Service) GetSessionSnapshot() listening.Status {
	return s.listening.Snapshot()
}
