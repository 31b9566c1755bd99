// Package engine manages the external recognition engine process and the
// line-delimited JSON protocol used to drive it. Requests are correlated by
// id; unsolicited event lines are republished on the event bus for whichever
// controller cares about them.
package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/echo-stt/echo/eventbus"
	"github.com/echo-stt/echo/internal/types"
)

// ErrEngineUnreachable is returned when the engine process is not running or
// stopped answering.
var ErrEngineUnreachable = errors.New("engine unreachable")

// CommandError is an error reported by the engine for a specific command.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("engine command %s: %s", e.Command, e.Message)
}

// Client talks to the engine sidecar over stdin/stdout. All methods are safe
// for concurrent use. No timeouts are applied to round trips; callers that
// want liveness pass a context with a deadline.
type Client struct {
	bus     *eventbus.Bus
	command string
	args    []string

	mu      sync.Mutex // process lifecycle
	cmd     *exec.Cmd
	running bool

	wmu   sync.Mutex // serializes stdin writes
	stdin io.Writer

	pmu     sync.Mutex
	pending map[uint64]chan wireMessage

	nextID       atomic.Uint64
	loadInFlight atomic.Bool
}

// New creates a client that will spawn the engine binary on Start.
func New(bus *eventbus.Bus, command string, args ...string) *Client {
	return &Client{
		bus:     bus,
		command: command,
		args:    args,
		pending: make(map[uint64]chan wireMessage),
	}
}

// Running reports whether the engine process is attached.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start spawns the engine process and waits for its ready handshake.
// Calling Start while the engine is running is a no-op.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	cmd := exec.Command(c.command, c.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start process: %v", ErrEngineUnreachable, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	// The engine prints {"status":"ready"} once it is accepting commands.
	ready := make(chan error, 1)
	go func() {
		if !scanner.Scan() {
			ready <- fmt.Errorf("%w: engine exited before handshake", ErrEngineUnreachable)
			return
		}
		var hs wireMessage
		if err := json.Unmarshal(scanner.Bytes(), &hs); err != nil {
			ready <- fmt.Errorf("unmarshal handshake: %w", err)
			return
		}
		if hs.Status != "ready" {
			ready <- fmt.Errorf("%w: unexpected handshake %q", ErrEngineUnreachable, hs.Status)
			return
		}
		ready <- nil
	}()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return ctx.Err()
	case err := <-ready:
		if err != nil {
			_ = cmd.Process.Kill()
			return err
		}
	}

	go c.drainStderr(stderr)
	c.attachLocked(stdin, scanner)
	c.cmd = cmd
	slog.Info("engine started", "command", c.command)
	return nil
}

// Stop terminates the engine process. Pending calls fail with
// ErrEngineUnreachable.
func (c *Client) Stop() error {
	c.mu.Lock()
	cmd := c.cmd
	c.cmd = nil
	c.running = false
	c.mu.Unlock()

	c.failPending()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill engine: %w", err)
	}
	_ = cmd.Wait()
	return nil
}

// attach wires the client to an already-established transport. Used by tests
// in place of a spawned process.
func (c *Client) attach(w io.Writer, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachLocked(w, scanner)
}

func (c *Client) attachLocked(w io.Writer, scanner *bufio.Scanner) {
	c.wmu.Lock()
	c.stdin = w
	c.wmu.Unlock()
	c.running = true
	go c.readLoop(scanner)
}

// readLoop routes responses to pending calls and event lines to the bus.
func (c *Client) readLoop(scanner *bufio.Scanner) {
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg wireMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			slog.Warn("unmarshal engine line", "error", err)
			continue
		}

		switch {
		case msg.Event != "":
			c.publishEvent(msg.Event, msg.Data)
		case msg.ID != nil:
			// Send under pmu: failPending closes these channels under the
			// same lock, so the send can never hit a closed channel. The
			// channel is buffered and sees one response per id, so holding
			// the lock across the send cannot block.
			c.pmu.Lock()
			if ch := c.pending[*msg.ID]; ch != nil {
				ch <- msg
				delete(c.pending, *msg.ID)
			}
			c.pmu.Unlock()
		}
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.failPending()
	slog.Info("engine connection closed")
}

func (c *Client) publishEvent(name string, data json.RawMessage) {
	switch name {
	case eventbus.SegmentRecognized:
		var seg types.Segment
		if err := json.Unmarshal(data, &seg); err != nil {
			slog.Warn("unmarshal segment event", "error", err)
			return
		}
		c.bus.Publish(name, seg)
	case eventbus.SpeechActivity:
		var act types.SpeechActivity
		if err := json.Unmarshal(data, &act); err != nil {
			slog.Warn("unmarshal speech activity event", "error", err)
			return
		}
		c.bus.Publish(name, act)
	default:
		c.bus.Publish(name, data)
	}
}

func (c *Client) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		slog.Debug("engine stderr", "line", scanner.Text())
	}
}

func (c *Client) failPending() {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// call performs one request/response round trip.
func (c *Client) call(ctx context.Context, req request, out any) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrEngineUnreachable
	}
	c.mu.Unlock()

	req.ID = c.nextID.Add(1)
	ch := make(chan wireMessage, 1)
	c.pmu.Lock()
	c.pending[req.ID] = ch
	c.pmu.Unlock()
	defer func() {
		c.pmu.Lock()
		delete(c.pending, req.ID)
		c.pmu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	data = append(data, '\n')

	c.wmu.Lock()
	_, err = c.stdin.Write(data)
	c.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: write command: %v", ErrEngineUnreachable, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case msg, ok := <-ch:
		if !ok {
			return ErrEngineUnreachable
		}
		if msg.Error != "" {
			return &CommandError{Command: req.Command, Message: msg.Error}
		}
		if out != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, out); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", req.Command, err)
			}
		}
		return nil
	}
}

// Ping probes engine reachability. Any failure reads as unreachable.
func (c *Client) Ping(ctx context.Context) bool {
	var res pingResult
	if err := c.call(ctx, request{Command: "ping"}, &res); err != nil {
		return false
	}
	return res.Pong
}

// Status returns the engine's model status without side effects.
func (c *Client) Status(ctx context.Context) (types.ModelStatus, error) {
	var st types.ModelStatus
	if err := c.call(ctx, request{Command: "get_status"}, &st); err != nil {
		return types.ModelStatus{}, err
	}
	return st, nil
}

// SetModel makes name the engine's active model, deactivating the previous
// one. The model is not loaded yet afterwards.
func (c *Client) SetModel(ctx context.Context, name string) (types.ModelStatus, error) {
	var st types.ModelStatus
	if err := c.call(ctx, request{Command: "set_model", ModelName: name}, &st); err != nil {
		return types.ModelStatus{}, err
	}
	return st, nil
}

// LoadModel loads the active model synchronously. This can take minutes when
// the model has to be downloaded first.
func (c *Client) LoadModel(ctx context.Context) (types.ModelStatus, error) {
	var st types.ModelStatus
	if err := c.call(ctx, request{Command: "load_model"}, &st); err != nil {
		return types.ModelStatus{}, err
	}
	return st, nil
}

// BeginModelLoad starts loading the active model in the background and
// returns immediately. Completion is announced on the bus as
// model-load-complete or model-load-error. A second call while a load is in
// flight is a no-op.
func (c *Client) BeginModelLoad(ctx context.Context) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return ErrEngineUnreachable
	}

	if !c.loadInFlight.CompareAndSwap(false, true) {
		return nil
	}

	go func() {
		defer c.loadInFlight.Store(false)

		st, err := c.LoadModel(context.Background())
		if err != nil {
			slog.Error("background model load", "error", err)
			c.bus.Publish(eventbus.ModelLoadError, types.ModelLoadError{Error: err.Error()})
			return
		}
		slog.Info("model loaded", "model", st.ModelName)
		c.bus.Publish(eventbus.ModelLoadComplete, st)
	}()

	return nil
}

// IsModelCached reports whether name is already present in the local model
// cache, i.e. whether a switch to it needs a download.
func (c *Client) IsModelCached(ctx context.Context, name string) (types.ModelCacheStatus, error) {
	var res types.ModelCacheStatus
	if err := c.call(ctx, request{Command: "is_model_cached", ModelName: name}, &res); err != nil {
		return types.ModelCacheStatus{}, err
	}
	return res, nil
}

// Warmup runs a warmup inference pass on the loaded model.
func (c *Client) Warmup(ctx context.Context) (WarmupResult, error) {
	var res WarmupResult
	if err := c.call(ctx, request{Command: "warmup_model"}, &res); err != nil {
		return WarmupResult{}, err
	}
	return res, nil
}

// StartListening begins continuous listening on the engine side.
func (c *Client) StartListening(ctx context.Context, language string) error {
	return c.call(ctx, request{Command: "start_listening", Language: language}, nil)
}

// StopListening stops continuous listening and returns the number of
// segments the engine produced during the session.
func (c *Client) StopListening(ctx context.Context) (int, error) {
	var res stopListeningResult
	if err := c.call(ctx, request{Command: "stop_listening"}, &res); err != nil {
		return 0, err
	}
	return res.SegmentCount, nil
}

// ListeningStatus queries whether continuous listening is active, e.g. after
// the window was closed and reopened while the engine kept running.
func (c *Client) ListeningStatus(ctx context.Context) (types.ListeningStatus, error) {
	var res types.ListeningStatus
	if err := c.call(ctx, request{Command: "get_listening_status"}, &res); err != nil {
		return types.ListeningStatus{}, err
	}
	return res, nil
}

// Summarize asks the engine to produce a prose summary of the given entries.
func (c *Client) Summarize(ctx context.Context, entries []SummarizeEntry, langHint, prompt string) (types.SummaryResult, error) {
	var res summarizeResult
	err := c.call(ctx, request{
		Command:  "summarize",
		Entries:  entries,
		LangHint: langHint,
		Prompt:   prompt,
	}, &res)
	if err != nil {
		return types.SummaryResult{}, err
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "summarization failed"
		}
		return types.SummaryResult{}, &CommandError{Command: "summarize", Message: msg}
	}
	return types.SummaryResult{
		Text:             res.Summary,
		SourceEntryCount: res.EntryCount,
		ProcessingTimeMs: res.ProcessingTimeMs,
	}, nil
}
