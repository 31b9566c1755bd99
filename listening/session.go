// Package listening tracks a continuous listening session. The engine does
// the actual capture and recognition; this side mirrors its state, keeps the
// most recent segments for display, and flags when persisted history has
// grown behind the UI's back.
package listening

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/echo-stt/echo/eventbus"
	"github.com/echo-stt/echo/internal/types"
)

// maxSegments caps the in-memory segment buffer. Older segments are still in
// the history database, only the live view forgets them.
const maxSegments = 50

// Engine is the slice of the engine client a session needs.
type Engine interface {
	StartListening(ctx context.Context, language string) error
	StopListening(ctx context.Context) (int, error)
	ListeningStatus(ctx context.Context) (types.ListeningStatus, error)
}

// Status is a point-in-time snapshot of the session.
type Status struct {
	Listening    bool            `json:"is_listening"`
	SpeechActive bool            `json:"speech_active"`
	SegmentCount int             `json:"segment_count"`
	Segments     []types.Segment `json:"segments"`
}

// Session mirrors the engine's continuous listening state. All methods are
// safe for concurrent use.
type Session struct {
	eng     Engine
	onStale func()

	mu        sync.Mutex
	listening bool
	speech    bool
	segments  []types.Segment // newest first
	total     int

	stale   atomic.Bool
	cancels []func()
}

// New creates a session and subscribes it to segment and speech activity
// events. onStale fires at most once per ConsumeStale cycle when new
// segments have been persisted; it may be nil. Release the subscriptions
// with Close.
func New(bus *eventbus.Bus, eng Engine, onStale func()) *Session {
	s := &Session{eng: eng, onStale: onStale}
	s.cancels = append(s.cancels,
		bus.Subscribe(eventbus.SegmentRecognized, s.onSegment),
		bus.Subscribe(eventbus.SpeechActivity, s.onSpeech),
	)
	return s
}

// Close releases the session's bus subscriptions.
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
}

// Start begins continuous listening. Starting an already listening session
// is a no-op.
func (s *Session) Start(ctx context.Context, language string) error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.eng.StartListening(ctx, language); err != nil {
		return fmt.Errorf("start listening: %w", err)
	}

	s.mu.Lock()
	s.listening = true
	s.speech = false
	s.segments = nil
	s.total = 0
	s.mu.Unlock()
	return nil
}

// Stop ends the session and returns how many segments the engine recognized
// during it. Stopping an idle session returns 0.
func (s *Session) Stop(ctx context.Context) (int, error) {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return 0, nil
	}
	s.mu.Unlock()

	n, err := s.eng.StopListening(ctx)
	if err != nil {
		return 0, fmt.Errorf("stop listening: %w", err)
	}

	s.mu.Lock()
	s.listening = false
	s.speech = false
	// The engine's count is authoritative; it covers segments whose events
	// the client missed.
	s.total = n
	s.mu.Unlock()
	return n, nil
}

// Reconcile adopts the engine's view of whether listening is active. Used
// when the window reopens while the engine kept running.
func (s *Session) Reconcile(ctx context.Context) (Status, error) {
	st, err := s.eng.ListeningStatus(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("query listening status: %w", err)
	}

	s.mu.Lock()
	s.listening = st.IsListening
	s.total = st.SegmentCount
	if !st.IsListening {
		s.speech = false
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return snap, nil
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Status {
	segs := make([]types.Segment, len(s.segments))
	copy(segs, s.segments)
	return Status{
		Listening:    s.listening,
		SpeechActive: s.speech,
		SegmentCount: s.total,
		Segments:     segs,
	}
}

// ConsumeStale reports whether history grew since the last call and resets
// the flag.
func (s *Session) ConsumeStale() bool {
	return s.stale.Swap(false)
}

func (s *Session) onSegment(payload any) {
	seg, ok := payload.(types.Segment)
	if !ok {
		return
	}

	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return
	}
	s.segments = append([]types.Segment{seg}, s.segments...)
	if len(s.segments) > maxSegments {
		s.segments = s.segments[:maxSegments]
	}
	s.total++
	s.mu.Unlock()

	// Coalesce: one notification covers any number of segments until the
	// consumer acknowledges with ConsumeStale.
	if s.stale.CompareAndSwap(false, true) && s.onStale != nil {
		s.onStale()
	}
}

func (s *Session) onSpeech(payload any) {
	act, ok := payload.(types.SpeechActivity)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.listening {
		s.speech = act.IsActive
	}
	s.mu.Unlock()
}
