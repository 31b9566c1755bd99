package app

import (
	"context"

	"github.com/echo-stt/echo/internal/types"
)

// SummarizeRecent summarizes the history of the last minutes (0 means the
// default window). A request while one runs fails instead of queuing.
func (s *Service) SummarizeRecent(minutes int, prompt string) (types.SummaryResult, error) {
	langHint := s.cfg.Language
	if langHint == "auto" {
		langHint = ""
	}
	return s.summarizer.Summarize(context.Background(), minutes, langHint, prompt)
}

// IsSummarizing reports whether a summarization is in flight.
func (s *Service) IsSummarizing() bool {
	return s.summarizer.InFlight()
}
