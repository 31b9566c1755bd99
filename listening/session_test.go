package listening

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/echo-stt/echo/eventbus"
	"github.com/echo-stt/echo/internal/types"
)

type fakeEngine struct {
	listening bool
	stopCount int
	startErr  error
	stopErr   error
}

func (f *fakeEngine) StartListening(_ context.Context, language string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.listening = true
	return nil
}

func (f *fakeEngine) StopListening(context.Context) (int, error) {
	if f.stopErr != nil {
		return 0, f.stopErr
	}
	f.listening = false
	return f.stopCount, nil
}

func (f *fakeEngine) ListeningStatus(context.Context) (types.ListeningStatus, error) {
	return types.ListeningStatus{IsListening: f.listening, SegmentCount: f.stopCount}, nil
}

func newSession(eng *fakeEngine, onStale func()) (*Session, *eventbus.Bus) {
	bus := eventbus.New()
	return New(bus, eng, onStale), bus
}

func TestStartStop(t *testing.T) {
	eng := &fakeEngine{stopCount: 7}
	s, _ := newSession(eng, nil)
	defer s.Close()

	if err := s.Start(context.Background(), "auto"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.Snapshot().Listening {
		t.Error("not listening after Start")
	}

	// Second start must not restart the engine session.
	if err := s.Start(context.Background(), "auto"); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	n, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if n != 7 {
		t.Errorf("segment count = %d, want 7", n)
	}
	snap := s.Snapshot()
	if snap.Listening {
		t.Error("still listening after Stop")
	}
	// The engine saw segments the client never got events for.
	if snap.SegmentCount != 7 {
		t.Errorf("snapshot count = %d, want engine-reported 7", snap.SegmentCount)
	}
}

func TestStopIdleIsNoop(t *testing.T) {
	eng := &fakeEngine{stopErr: errors.New("engine should not be called")}
	s, _ := newSession(eng, nil)
	defer s.Close()

	n, err := s.Stop(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Stop() = (%d, %v), want (0, nil)", n, err)
	}
}

func TestSegmentsNewestFirstCapped(t *testing.T) {
	eng := &fakeEngine{}
	s, bus := newSession(eng, nil)
	defer s.Close()

	if err := s.Start(context.Background(), "auto"); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= maxSegments+10; i++ {
		bus.Publish(eventbus.SegmentRecognized, types.Segment{
			Text:       fmt.Sprintf("segment %d", i),
			SequenceNo: i,
		})
	}

	snap := s.Snapshot()
	if len(snap.Segments) != maxSegments {
		t.Fatalf("buffer holds %d segments, want %d", len(snap.Segments), maxSegments)
	}
	if snap.Segments[0].SequenceNo != maxSegments+10 {
		t.Errorf("newest segment seq = %d, want %d", snap.Segments[0].SequenceNo, maxSegments+10)
	}
	if snap.Segments[len(snap.Segments)-1].SequenceNo != 11 {
		t.Errorf("oldest kept seq = %d, want 11", snap.Segments[len(snap.Segments)-1].SequenceNo)
	}
	if snap.SegmentCount != maxSegments+10 {
		t.Errorf("total = %d, want %d", snap.SegmentCount, maxSegments+10)
	}
}

func TestSegmentsIgnoredWhenIdle(t *testing.T) {
	eng := &fakeEngine{}
	s, bus := newSession(eng, nil)
	defer s.Close()

	bus.Publish(eventbus.SegmentRecognized, types.Segment{Text: "stray"})

	if got := s.Snapshot(); len(got.Segments) != 0 {
		t.Errorf("idle session buffered %d segments", len(got.Segments))
	}
}

func TestSpeechActivity(t *testing.T) {
	eng := &fakeEngine{}
	s, bus := newSession(eng, nil)
	defer s.Close()

	if err := s.Start(context.Background(), "auto"); err != nil {
		t.Fatal(err)
	}

	bus.Publish(eventbus.SpeechActivity, types.SpeechActivity{IsActive: true})
	if !s.Snapshot().SpeechActive {
		t.Error("speech not active after activity event")
	}
	bus.Publish(eventbus.SpeechActivity, types.SpeechActivity{IsActive: false})
	if s.Snapshot().SpeechActive {
		t.Error("speech still active after deactivation event")
	}
}

func TestStaleCoalesced(t *testing.T) {
	notified := 0
	eng := &fakeEngine{}
	s, bus := newSession(eng, func() { notified++ })
	defer s.Close()

	if err := s.Start(context.Background(), "auto"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		bus.Publish(eventbus.SegmentRecognized, types.Segment{SequenceNo: i})
	}
	if notified != 1 {
		t.Errorf("notified %d times before consume, want 1", notified)
	}

	if !s.ConsumeStale() {
		t.Error("ConsumeStale() = false, want true")
	}
	if s.ConsumeStale() {
		t.Error("second ConsumeStale() = true, want false")
	}

	bus.Publish(eventbus.SegmentRecognized, types.Segment{SequenceNo: 99})
	if notified != 2 {
		t.Errorf("notified %d times after consume, want 2", notified)
	}
}

func TestReconcileAdoptsEngineState(t *testing.T) {
	eng := &fakeEngine{listening: true, stopCount: 7}
	s, _ := newSession(eng, nil)
	defer s.Close()

	snap, err := s.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !snap.Listening {
		t.Error("reconcile missed active engine session")
	}
	// A reopened window starts from the engine's count, not from zero.
	if snap.SegmentCount != 7 {
		t.Errorf("reconciled count = %d, want 7", snap.SegmentCount)
	}
	if s.Snapshot().SegmentCount != 7 {
		t.Errorf("snapshot count = %d, want 7", s.Snapshot().SegmentCount)
	}

	eng.listening = false
	snap, err = s.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if snap.Listening {
		t.Error("reconcile kept stale listening state")
	}
}
