package hotkeys

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/echo-stt/echo/eventbus"
	"github.com/echo-stt/echo/internal/types"
)

// ErrCaptureConflict is returned when a capture is begun while another one is
// still recording.
var ErrCaptureConflict = errors.New("hotkey capture already active")

// Session records one replacement hotkey from raw key events. The gesture
// commits when every held key has been released and the accumulated
// combination is a valid binding; releasing an incomplete gesture clears the
// slate and keeps recording. On any failure after the slot was freed the
// previous binding is re-registered exactly once, best effort.
type Session struct {
	bus    *eventbus.Bus
	auth   Authority
	commit func(Binding) error
	done   func(Binding, error)

	mu        sync.Mutex
	active    bool
	cancelSub func()
	prev      Binding
	held      map[string]bool
	pending   Binding
}

// NewSession creates a capture session. prev is the binding to restore when
// the capture is cancelled or fails. commit persists a newly recorded
// binding; done is invoked once per capture with the outcome. Either may be
// nil.
func NewSession(bus *eventbus.Bus, auth Authority, prev Binding, commit func(Binding) error, done func(Binding, error)) *Session {
	return &Session{
		bus:    bus,
		auth:   auth,
		prev:   prev,
		commit: commit,
		done:   done,
	}
}

// Active reports whether a capture is recording.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Begin frees the hotkey slot and starts recording. Only one capture can
// record at a time.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return ErrCaptureConflict
	}
	if err := s.auth.StartCapture(); err != nil {
		return err
	}
	s.held = make(map[string]bool)
	s.pending = Binding{}
	s.cancelSub = s.bus.Subscribe(eventbus.RawKey, s.handle)
	s.active = true
	return nil
}

// Cancel aborts a running capture and restores the previous binding.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.teardownLocked()
	s.restorePrevLocked()
}

func (s *Session) handle(payload any) {
	ev, ok := payload.(types.RawKeyEvent)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}

	if ev.IsKeyDown {
		s.held[ev.Key] = true
		if !isModifier(ev.Key) {
			s.pending = Binding{Mods: ev.Modifiers, Key: ev.Key}
		}
		return
	}

	delete(s.held, ev.Key)
	if len(s.held) > 0 {
		return
	}

	// Gesture over. A capture only commits a modifier+key chord; the
	// standalone function-key allowance applies to parsed bindings, not to
	// recorded gestures, where a lone key press is far more likely a slip.
	if len(s.pending.Mods) == 0 || Validate(s.pending) != nil {
		s.pending = Binding{}
		return
	}
	s.finishLocked(s.pending)
}

func (s *Session) finishLocked(b Binding) {
	s.teardownLocked()

	if err := s.auth.Register(b); err != nil {
		s.restorePrevLocked()
		s.report(Binding{}, err)
		return
	}
	if s.commit != nil {
		if err := s.commit(b); err != nil {
			s.restorePrevLocked()
			s.report(Binding{}, err)
			return
		}
	}
	s.prev = b
	s.report(b, nil)
}

// teardownLocked stops event delivery; it runs on every exit path.
func (s *Session) teardownLocked() {
	s.active = false
	if s.cancelSub != nil {
		s.cancelSub()
		s.cancelSub = nil
	}
	s.auth.StopCapture()
}

// restorePrevLocked re-registers the previous binding. Failures are logged
// and swallowed; at this point there is no better state to move to.
func (s *Session) restorePrevLocked() {
	if s.prev.IsZero() {
		return
	}
	if err := s.auth.Register(s.prev); err != nil {
		slog.Warn("restore previous hotkey", "binding", s.prev.String(), "error", err)
	}
}

func (s *Session) report(b Binding, err error) {
	if s.done != nil {
		s.done(b, err)
	}
}
