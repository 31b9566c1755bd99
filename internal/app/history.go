package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/echo-stt/echo/history"
)

// onHistoryStale runs when recognized segments have been persisted behind
// the loaded view. Fired at most once per acknowledgment cycle.
func (s *Service) onHistoryStale() {
	go func() {
		s.listening.ConsumeStale()
		if s.historySvc == nil {
			return
		}
		if err := s.historySvc.Refresh(context.Background()); err != nil {
			slog.Warn("refresh history", "error", err)
		}
	}()
}

// LoadHistory resets the view to the first page and returns it.
func (s *Service) LoadHistory() (history.View, error) {
	if s.historySvc == nil {
		return history.View{}, fmt.Errorf("history unavailable")
	}
	if err := s.historySvc.Load(context.Background()); err != nil {
		return history.View{}, err
	}
	return s.historySvc.Snapshot(), nil
}

// GetHistoryView returns the current view without querying the store.
func (s *Service) GetHistoryView() history.View {
	if s.historySvc == nil {
		return history.View{}
	}
	return s.historySvc.Snapshot()
}

// SearchHistoryInput feeds one keystroke of the search box. The query runs
// debounced; results arrive as a history-changed event.
func (s *Service) SearchHistoryInput(text string) {
	if s.historySvc == nil {
		return
	}
	s.historySvc.SearchInput(text)
}

// SearchHistory queries immediately and returns the resulting view.
func (s *Service) SearchHistory(text string) (history.View, error) {
	if s.historySvc == nil {
		return history.View{}, fmt.Errorf("history unavailable")
	}
	if err := s.historySvc.Search(context.Background(), text); err != nil {
		return history.View{}, err
	}
	return s.historySvc.Snapshot(), nil
}

// LoadMoreHistory appends the next page for the active query.
func (s *Service) LoadMoreHistory() error {
	if s.historySvc == nil {
		return fmt.Errorf("history unavailable")
	}
	return s.historySvc.LoadMore(context.Background())
}

// DeleteHistoryEntry removes one entry.
func (s *Service) DeleteHistoryEntry(id int64) error {
	if s.historySvc == nil {
		return fmt.Errorf("history unavailable")
	}
	return s.historySvc.Remove(context.Background(), id)
}

// ClearHistory wipes all history.
func (s *Service) ClearHistory() error {
	if s.historySvc == nil {
		return fmt.Errorf("history unavailable")
	}
	return s.historySvc.ClearAll(context.Background())
}
