// Package summarize produces prose summaries of recent history through the
// engine. Requests are single-flight and results are cached, keyed by the
// window and the newest entry in it, so an unchanged window is a cache hit.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/echo-stt/echo/cache"
	"github.com/echo-stt/echo/engine"
	"github.com/echo-stt/echo/internal/types"
)

// ErrAlreadyInFlight is returned when a summarization is requested while one
// is still running. Requests are rejected, not queued.
var ErrAlreadyInFlight = errors.New("summarization already in flight")

// DefaultWindowMinutes is the lookback window used when the caller passes
// a non-positive one.
const DefaultWindowMinutes = 30

// Engine is the slice of the engine client the service needs.
type Engine interface {
	Summarize(ctx context.Context, entries []engine.SummarizeEntry, langHint, prompt string) (types.SummaryResult, error)
}

// Recents supplies the history entries of a lookback window, oldest first.
type Recents interface {
	Recent(ctx context.Context, minutes int) ([]types.HistoryEntry, error)
}

// Cache is the result cache surface. Implementations may drop entries at
// any time.
type Cache interface {
	Get(key string) (cache.Entry, bool, error)
	Set(key string, e cache.Entry) error
}

// Service runs summarization requests.
type Service struct {
	eng     Engine
	recents Recents
	cache   Cache

	inFlight atomic.Bool
}

// New creates a service. cache may be nil to disable caching.
func New(eng Engine, recents Recents, c Cache) *Service {
	return &Service{eng: eng, recents: recents, cache: c}
}

// InFlight reports whether a summarization is running.
func (s *Service) InFlight() bool {
	return s.inFlight.Load()
}

// Summarize summarizes the history of the last minutes. An empty window
// short-circuits to an empty result without touching the engine. A second
// call while one runs fails with ErrAlreadyInFlight.
func (s *Service) Summarize(ctx context.Context, minutes int, langHint, prompt string) (types.SummaryResult, error) {
	if minutes <= 0 {
		minutes = DefaultWindowMinutes
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		return types.SummaryResult{}, ErrAlreadyInFlight
	}
	defer s.inFlight.Store(false)

	entries, err := s.recents.Recent(ctx, minutes)
	if err != nil {
		return types.SummaryResult{}, fmt.Errorf("load recent history: %w", err)
	}
	if len(entries) == 0 {
		return types.SummaryResult{}, nil
	}

	// Entries arrive oldest first; the newest id pins the window's content.
	newest := entries[len(entries)-1].ID
	key := cache.Key(
		strconv.Itoa(minutes),
		strconv.FormatInt(newest, 10),
		strconv.Itoa(len(entries)),
		langHint,
		prompt,
	)

	if s.cache != nil {
		if hit, ok, err := s.cache.Get(key); err != nil {
			slog.Warn("summary cache read", "error", err)
		} else if ok {
			return types.SummaryResult{Text: hit.Text, SourceEntryCount: hit.EntryCount}, nil
		}
	}

	wire := make([]engine.SummarizeEntry, len(entries))
	for i, e := range entries {
		wire[i] = engine.SummarizeEntry{Text: e.Text, CreatedAt: e.CreatedAt}
	}

	res, err := s.eng.Summarize(ctx, wire, langHint, prompt)
	if err != nil {
		return types.SummaryResult{}, err
	}

	if s.cache != nil {
		entry := cache.Entry{
			Text:       res.Text,
			EntryCount: res.SourceEntryCount,
			CreatedAt:  entries[len(entries)-1].CreatedAt,
		}
		if err := s.cache.Set(key, entry); err != nil {
			slog.Warn("summary cache write", "error", err)
		}
	}
	return res, nil
}
