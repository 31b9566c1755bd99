package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/echo-stt/echo/internal/types"
)

const (
	pageSize       = 20
	searchDebounce = 300 * time.Millisecond
)

// View is what the UI renders: the loaded window of entries plus paging
// state for the active query.
type View struct {
	Entries    []types.HistoryEntry `json:"entries"`
	TotalCount int                  `json:"total_count"`
	HasMore    bool                 `json:"has_more"`
	Query      string               `json:"query"`
}

// Service maintains the history view. Keystrokes feed SearchInput, which
// debounces before hitting the store; everything else queries directly. All
// methods are safe for concurrent use.
type Service struct {
	store    Store
	onChange func(View)
	debounce func(func())

	mu          sync.Mutex
	view        View
	loadingMore bool
}

// NewService creates a service over store. onChange is invoked with a fresh
// snapshot after every view mutation; it may be nil.
func NewService(store Store, onChange func(View)) *Service {
	return &Service{
		store:    store,
		onChange: onChange,
		debounce: debounce.New(searchDebounce),
	}
}

// Snapshot returns a copy of the current view.
func (s *Service) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() View {
	v := s.view
	v.Entries = make([]types.HistoryEntry, len(s.view.Entries))
	copy(v.Entries, s.view.Entries)
	return v
}

// Load resets the view to the first page of unfiltered history.
func (s *Service) Load(ctx context.Context) error {
	page, err := s.store.Page(ctx, pageSize, 0)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	s.apply(View{Entries: page.Entries, TotalCount: page.TotalCount, HasMore: page.HasMore})
	return nil
}

// SearchInput records a keystroke of the search box. The query text takes
// effect immediately; the store query runs after the input has been quiet
// for the debounce interval. Re-entering the current text is a no-op.
func (s *Service) SearchInput(text string) {
	s.mu.Lock()
	if text == s.view.Query {
		s.mu.Unlock()
		return
	}
	s.view.Query = text
	s.mu.Unlock()

	s.debounce(func() {
		if err := s.runSearch(context.Background(), text); err != nil {
			slog.Warn("debounced search", "query", text, "error", err)
		}
	})
}

// Search queries immediately, bypassing the debounce. Unlike SearchInput it
// always re-queries, so it doubles as an explicit refresh of a filter.
func (s *Service) Search(ctx context.Context, text string) error {
	s.mu.Lock()
	s.view.Query = text
	s.mu.Unlock()
	return s.runSearch(ctx, text)
}

func (s *Service) runSearch(ctx context.Context, text string) error {
	page, err := s.store.Search(ctx, text, pageSize, 0)
	if err != nil {
		return fmt.Errorf("search history: %w", err)
	}

	s.mu.Lock()
	// The user may have typed more while the query ran; stale results lose.
	if s.view.Query != text {
		s.mu.Unlock()
		return nil
	}
	s.view.Entries = page.Entries
	s.view.TotalCount = page.TotalCount
	s.view.HasMore = page.HasMore
	s.loadingMore = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// LoadMore appends the next page for the active query. Calls while a page is
// already loading, or when everything is loaded, are no-ops.
func (s *Service) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.loadingMore || !s.view.HasMore {
		s.mu.Unlock()
		return nil
	}
	s.loadingMore = true
	query := s.view.Query
	offset := len(s.view.Entries)
	s.mu.Unlock()

	page, err := s.store.Search(ctx, query, pageSize, offset)

	s.mu.Lock()
	s.loadingMore = false
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("load more history: %w", err)
	}
	if s.view.Query != query {
		s.mu.Unlock()
		return nil
	}
	s.view.Entries = append(s.view.Entries, page.Entries...)
	s.view.TotalCount = page.TotalCount
	s.view.HasMore = page.HasMore
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Remove deletes an entry optimistically: it leaves the view first and comes
// back at its old position if the store refuses. An entry the store no
// longer has stays removed.
func (s *Service) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	idx := -1
	for i, e := range s.view.Entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	entry := s.view.Entries[idx]
	s.view.Entries = append(s.view.Entries[:idx], s.view.Entries[idx+1:]...)
	s.view.TotalCount--
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	err := s.store.Delete(ctx, id)
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}

	s.mu.Lock()
	if idx > len(s.view.Entries) {
		idx = len(s.view.Entries)
	}
	s.view.Entries = append(s.view.Entries[:idx], append([]types.HistoryEntry{entry}, s.view.Entries[idx:]...)...)
	s.view.TotalCount++
	snap = s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	return fmt.Errorf("delete entry %d: %w", id, err)
}

// ClearAll wipes the history and the view.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	s.mu.Lock()
	s.view.Entries = nil
	s.view.TotalCount = 0
	s.view.HasMore = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Refresh re-runs the active query, keeping the loaded window at least as
// deep as before so the list does not jump under the user.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	query := s.view.Query
	limit := len(s.view.Entries)
	if limit < pageSize {
		limit = pageSize
	}
	s.mu.Unlock()

	page, err := s.store.Search(ctx, query, limit, 0)
	if err != nil {
		return fmt.Errorf("refresh history: %w", err)
	}

	s.mu.Lock()
	if s.view.Query != query {
		s.mu.Unlock()
		return nil
	}
	s.view.Entries = page.Entries
	s.view.TotalCount = page.TotalCount
	s.view.HasMore = page.HasMore
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

func (s *Service) apply(v View) {
	s.mu.Lock()
	s.view = v
	s.loadingMore = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Service) notify(v View) {
	if s.onChange != nil {
		s.onChange(v)
	}
}
