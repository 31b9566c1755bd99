package summarize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/echo-stt/echo/cache"
	"github.com/echo-stt/echo/engine"
	"github.com/echo-stt/echo/internal/types"
)

type fakeEngine struct {
	calls   int
	result  types.SummaryResult
	err     error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeEngine) Summarize(_ context.Context, entries []engine.SummarizeEntry, langHint, prompt string) (types.SummaryResult, error) {
	f.calls++
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if f.err != nil {
		return types.SummaryResult{}, f.err
	}
	res := f.result
	res.SourceEntryCount = len(entries)
	return res, nil
}

type fakeRecents struct {
	entries     []types.HistoryEntry
	lastMinutes int
}

func (f *fakeRecents) Recent(_ context.Context, minutes int) ([]types.HistoryEntry, error) {
	f.lastMinutes = minutes
	return f.entries, nil
}

type mapCache struct {
	m    map[string]cache.Entry
	sets int
}

func newMapCache() *mapCache { return &mapCache{m: make(map[string]cache.Entry)} }

func (c *mapCache) Get(key string) (cache.Entry, bool, error) {
	e, ok := c.m[key]
	return e, ok, nil
}

func (c *mapCache) Set(key string, e cache.Entry) error {
	c.m[key] = e
	c.sets++
	return nil
}

func someEntries() []types.HistoryEntry {
	return []types.HistoryEntry{
		{ID: 1, Text: "first", CreatedAt: "2026-08-27T11:00:00Z"},
		{ID: 2, Text: "second", CreatedAt: "2026-08-27T11:10:00Z"},
	}
}

func TestEmptyWindowShortCircuits(t *testing.T) {
	eng := &fakeEngine{}
	svc := New(eng, &fakeRecents{}, nil)

	res, err := svc.Summarize(context.Background(), 30, "", "")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if res.Text != "" || res.SourceEntryCount != 0 {
		t.Errorf("result = %+v, want zero", res)
	}
	if eng.calls != 0 {
		t.Error("engine called for an empty window")
	}
}

func TestDefaultWindow(t *testing.T) {
	recents := &fakeRecents{}
	svc := New(&fakeEngine{}, recents, nil)

	if _, err := svc.Summarize(context.Background(), 0, "", ""); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if recents.lastMinutes != DefaultWindowMinutes {
		t.Errorf("window = %d, want %d", recents.lastMinutes, DefaultWindowMinutes)
	}
}

func TestSummarizeCachesResult(t *testing.T) {
	eng := &fakeEngine{result: types.SummaryResult{Text: "a summary"}}
	c := newMapCache()
	svc := New(eng, &fakeRecents{entries: someEntries()}, c)
	ctx := context.Background()

	res, err := svc.Summarize(ctx, 30, "", "")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if res.Text != "a summary" || res.SourceEntryCount != 2 {
		t.Errorf("result = %+v", res)
	}
	if c.sets != 1 {
		t.Errorf("cache writes = %d, want 1", c.sets)
	}

	// Same window again: served from cache.
	res, err = svc.Summarize(ctx, 30, "", "")
	if err != nil {
		t.Fatalf("second Summarize() error = %v", err)
	}
	if res.Text != "a summary" {
		t.Errorf("cached result = %+v", res)
	}
	if eng.calls != 1 {
		t.Errorf("engine calls = %d, want 1", eng.calls)
	}
}

func TestChangedWindowMissesCache(t *testing.T) {
	eng := &fakeEngine{result: types.SummaryResult{Text: "s"}}
	recents := &fakeRecents{entries: someEntries()}
	svc := New(eng, recents, newMapCache())
	ctx := context.Background()

	if _, err := svc.Summarize(ctx, 30, "", ""); err != nil {
		t.Fatal(err)
	}
	recents.entries = append(recents.entries, types.HistoryEntry{ID: 3, Text: "third", CreatedAt: "2026-08-27T11:20:00Z"})
	if _, err := svc.Summarize(ctx, 30, "", ""); err != nil {
		t.Fatal(err)
	}
	if eng.calls != 2 {
		t.Errorf("engine calls = %d, want 2", eng.calls)
	}
}

func TestEngineErrorNotCached(t *testing.T) {
	wantErr := errors.New("model not loaded")
	eng := &fakeEngine{err: wantErr}
	c := newMapCache()
	svc := New(eng, &fakeRecents{entries: someEntries()}, c)

	if _, err := svc.Summarize(context.Background(), 30, "", ""); !errors.Is(err, wantErr) {
		t.Fatalf("Summarize() error = %v, want %v", err, wantErr)
	}
	if c.sets != 0 {
		t.Error("failed summarization was cached")
	}
}

func TestRejectsConcurrentRequests(t *testing.T) {
	eng := &fakeEngine{
		result:  types.SummaryResult{Text: "s"},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := New(eng, &fakeRecents{entries: someEntries()}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Summarize(context.Background(), 30, "", "")
		done <- err
	}()

	select {
	case <-eng.entered:
	case <-time.After(time.Second):
		t.Fatal("first request never reached the engine")
	}

	if _, err := svc.Summarize(context.Background(), 30, "", ""); !errors.Is(err, ErrAlreadyInFlight) {
		t.Errorf("concurrent Summarize() error = %v, want ErrAlreadyInFlight", err)
	}

	close(eng.release)
	if err := <-done; err != nil {
		t.Fatalf("first Summarize() error = %v", err)
	}
	if svc.InFlight() {
		t.Error("still in flight after completion")
	}
}
