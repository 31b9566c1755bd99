package app

import (
	"context"

	"github.com/echo-stt/echo/internal/types"
)

// EnsureEngineReady starts the engine if it is not reachable.
func (s *Service) EnsureEngineReady() error {
	return s.models.EnsureReady(context.Background())
}

// GetEngineState reports what the client knows about the engine process.
func (s *Service) GetEngineState() string {
	return string(s.models.State())
}

// GetModelStatus returns the engine's current model status.
func (s *Service) GetModelStatus() (types.ModelStatus, error) {
	return s.models.Status(context.Background())
}

// GetAvailableModels lists the models the engine can serve.
func (s *Service) GetAvailableModels() ([]string, error) {
	return s.models.Models(context.Background())
}

// SwitchModel activates a different model and starts loading it in the
// background. Completion arrives as a model-load-complete or
// model-load-error event.
func (s *Service) SwitchModel(name string) error {
	return s.models.SwitchModel(context.Background(), name)
}

// GetSwitchPhase reports where an in-flight model switch currently is.
func (s *Service) GetSwitchPhase() string {
	return string(s.models.Phase())
}

// GetLastModelError returns the most recent model switch failure, or "".
func (s *Service) GetLastModelError() string {
	return s.models.LastError()
}
