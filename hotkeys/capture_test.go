package hotkeys

import (
	"errors"
	"testing"

	"github.com/echo-stt/echo/eventbus"
	"github.com/echo-stt/echo/internal/types"
)

type fakeAuthority struct {
	registered []string
	regErr     map[string]error
	captures   int
	stops      int
}

func (f *fakeAuthority) Register(b Binding) error {
	if err := f.regErr[b.String()]; err != nil {
		return err
	}
	f.registered = append(f.registered, b.String())
	return nil
}

func (f *fakeAuthority) Unregister()         {}
func (f *fakeAuthority) StartCapture() error { f.captures++; return nil }
func (f *fakeAuthority) StopCapture()        { f.stops++ }

type captureResult struct {
	binding Binding
	err     error
	calls   int
}

func newCaptureSession(t *testing.T, auth *fakeAuthority) (*Session, *eventbus.Bus, *captureResult) {
	t.Helper()
	bus := eventbus.New()
	prev, err := Parse("ctrl+shift+space")
	if err != nil {
		t.Fatal(err)
	}
	res := &captureResult{}
	s := NewSession(bus, auth, prev, nil, func(b Binding, err error) {
		res.binding = b
		res.err = err
		res.calls++
	})
	return s, bus, res
}

func press(bus *eventbus.Bus, mods []string, key string) {
	bus.Publish(eventbus.RawKey, types.RawKeyEvent{Modifiers: mods, Key: key, IsKeyDown: true})
}

func release(bus *eventbus.Bus, mods []string, key string) {
	bus.Publish(eventbus.RawKey, types.RawKeyEvent{Modifiers: mods, Key: key, IsKeyDown: false})
}

func TestCaptureCommitsOnFullRelease(t *testing.T) {
	auth := &fakeAuthority{}
	s, bus, res := newCaptureSession(t, auth)

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	press(bus, []string{"shift"}, "shift")
	press(bus, []string{"shift"}, "space")
	release(bus, []string{"shift"}, "space")
	release(bus, nil, "shift")

	if res.calls != 1 {
		t.Fatalf("done called %d times, want 1", res.calls)
	}
	if res.err != nil {
		t.Fatalf("capture error = %v", res.err)
	}
	if res.binding.String() != "shift+space" {
		t.Errorf("captured %q, want shift+space", res.binding)
	}
	if len(auth.registered) != 1 || auth.registered[0] != "shift+space" {
		t.Errorf("registered = %v, want [shift+space]", auth.registered)
	}
	if auth.stops != 1 {
		t.Errorf("StopCapture called %d times, want 1", auth.stops)
	}
	if s.Active() {
		t.Error("session still active after commit")
	}
}

func TestCaptureModifierOnlyNeverCommits(t *testing.T) {
	auth := &fakeAuthority{}
	s, bus, res := newCaptureSession(t, auth)

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	press(bus, []string{"shift"}, "shift")
	release(bus, nil, "shift")

	if res.calls != 0 {
		t.Fatalf("done called %d times, want 0", res.calls)
	}
	if !s.Active() {
		t.Error("session should keep recording after an incomplete gesture")
	}

	// The slate is clean; a later valid gesture still commits.
	press(bus, []string{"ctrl"}, "ctrl")
	press(bus, []string{"ctrl"}, "k")
	release(bus, []string{"ctrl"}, "k")
	release(bus, nil, "ctrl")

	if res.calls != 1 || res.err != nil {
		t.Fatalf("done = %d calls, err %v", res.calls, res.err)
	}
	if res.binding.String() != "ctrl+k" {
		t.Errorf("captured %q, want ctrl+k", res.binding)
	}
}

func TestCaptureBareKeyClearsSlate(t *testing.T) {
	auth := &fakeAuthority{}
	s, bus, res := newCaptureSession(t, auth)

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	press(bus, nil, "a")
	release(bus, nil, "a")

	if res.calls != 0 {
		t.Fatalf("bare key committed: %+v", res)
	}
	if !s.Active() {
		t.Error("session gave up after a bare key")
	}
}

func TestCaptureFunctionKeyAloneDoesNotCommit(t *testing.T) {
	auth := &fakeAuthority{}
	s, bus, res := newCaptureSession(t, auth)

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	// "f5" is a valid registered binding but a recorded gesture still needs
	// a modifier.
	press(bus, nil, "f5")
	release(bus, nil, "f5")

	if res.calls != 0 {
		t.Fatalf("bare function key committed: %+v", res)
	}
	if !s.Active() {
		t.Error("session gave up after a bare function key")
	}

	press(bus, []string{"ctrl"}, "ctrl")
	press(bus, []string{"ctrl"}, "f5")
	release(bus, []string{"ctrl"}, "f5")
	release(bus, nil, "ctrl")

	if res.calls != 1 || res.err != nil {
		t.Fatalf("done = %d calls, err %v", res.calls, res.err)
	}
	if res.binding.String() != "ctrl+f5" {
		t.Errorf("captured %q, want ctrl+f5", res.binding)
	}
}

func TestCaptureConflict(t *testing.T) {
	auth := &fakeAuthority{}
	s, _, _ := newCaptureSession(t, auth)

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := s.Begin(); !errors.Is(err, ErrCaptureConflict) {
		t.Errorf("second Begin() error = %v, want ErrCaptureConflict", err)
	}
	if auth.captures != 1 {
		t.Errorf("StartCapture called %d times, want 1", auth.captures)
	}
}

func TestCaptureRegisterFailureRestoresPrevious(t *testing.T) {
	auth := &fakeAuthority{regErr: map[string]error{"shift+space": errors.New("slot taken")}}
	s, bus, res := newCaptureSession(t, auth)

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	press(bus, []string{"shift"}, "shift")
	press(bus, []string{"shift"}, "space")
	release(bus, []string{"shift"}, "space")
	release(bus, nil, "shift")

	if res.calls != 1 || res.err == nil {
		t.Fatalf("done = %d calls, err %v; want one failure", res.calls, res.err)
	}
	if len(auth.registered) != 1 || auth.registered[0] != "ctrl+shift+space" {
		t.Errorf("registered = %v, want previous binding restored once", auth.registered)
	}
	if s.Active() {
		t.Error("session still active after failed commit")
	}
}

func TestCaptureCommitFailureRestoresPrevious(t *testing.T) {
	auth := &fakeAuthority{}
	bus := eventbus.New()
	prev, _ := Parse("ctrl+shift+space")
	res := &captureResult{}
	s := NewSession(bus, auth, prev,
		func(Binding) error { return errors.New("disk full") },
		func(b Binding, err error) { res.binding, res.err = b, err; res.calls++ })

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	press(bus, []string{"shift"}, "shift")
	press(bus, []string{"shift"}, "space")
	release(bus, []string{"shift"}, "space")
	release(bus, nil, "shift")

	if res.calls != 1 || res.err == nil {
		t.Fatalf("done = %d calls, err %v; want one failure", res.calls, res.err)
	}
	// New binding registered, then the previous one put back.
	want := []string{"shift+space", "ctrl+shift+space"}
	if len(auth.registered) != 2 || auth.registered[0] != want[0] || auth.registered[1] != want[1] {
		t.Errorf("registered = %v, want %v", auth.registered, want)
	}
}

func TestCancelRestoresPrevious(t *testing.T) {
	auth := &fakeAuthority{}
	s, bus, res := newCaptureSession(t, auth)

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	press(bus, []string{"shift"}, "shift")
	s.Cancel()

	if res.calls != 0 {
		t.Errorf("done called on cancel")
	}
	if len(auth.registered) != 1 || auth.registered[0] != "ctrl+shift+space" {
		t.Errorf("registered = %v, want previous binding restored", auth.registered)
	}
	if auth.stops != 1 {
		t.Errorf("StopCapture called %d times, want 1", auth.stops)
	}
	if s.Active() {
		t.Error("session still active after cancel")
	}

	// Events after cancel are ignored.
	press(bus, []string{"shift"}, "space")
	release(bus, nil, "space")
	if res.calls != 0 {
		t.Error("cancelled session committed")
	}
}
