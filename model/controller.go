// Package model coordinates engine startup and model switching. A switch is a
// multi-step handshake with the engine (activate, maybe download, load) whose
// completion arrives asynchronously on the event bus; the controller tracks
// which phase the switch is in so the UI can render progress.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/echo-stt/echo/config"
	"github.com/echo-stt/echo/eventbus"
	"github.com/echo-stt/echo/internal/types"
)

// ErrSwitchInFlight is returned when a model switch is requested while a
// previous switch has not resolved yet. Switches are rejected, not queued.
var ErrSwitchInFlight = errors.New("model switch already in flight")

// Phase describes where an in-flight model switch currently is.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseSwitching   Phase = "switching"
	PhaseDownloading Phase = "downloading"
	PhaseLoading     Phase = "loading"
)

// EngineState describes what the controller knows about the engine process.
// It is orthogonal to the switch phase.
type EngineState string

const (
	StateUnknown  EngineState = "unknown"
	StateStarting EngineState = "starting"
	StateReady    EngineState = "ready"
)

// Engine is the slice of the engine client the controller needs.
type Engine interface {
	Ping(ctx context.Context) bool
	Start(ctx context.Context) error
	Status(ctx context.Context) (types.ModelStatus, error)
	SetModel(ctx context.Context, name string) (types.ModelStatus, error)
	IsModelCached(ctx context.Context, name string) (types.ModelCacheStatus, error)
	BeginModelLoad(ctx context.Context) error
}

// Controller owns the engine lifecycle and the active model. All methods are
// safe for concurrent use.
type Controller struct {
	eng  Engine
	cfg  *config.Config
	save func(*config.Config) error
	now  func() time.Time

	mu         sync.Mutex
	state      EngineState
	phase      Phase
	phaseSince time.Time
	active     string
	lastError  string

	cancels []func()
}

// New creates a controller and subscribes it to model load events. Release
// the subscriptions with Close.
func New(bus *eventbus.Bus, eng Engine, cfg *config.Config, save func(*config.Config) error) *Controller {
	c := &Controller{
		eng:    eng,
		cfg:    cfg,
		save:   save,
		now:    time.Now,
		state:  StateUnknown,
		phase:  PhaseIdle,
		active: cfg.ModelName,
	}
	c.phaseSince = c.now()
	c.cancels = append(c.cancels,
		bus.Subscribe(eventbus.ModelLoadComplete, c.onLoadComplete),
		bus.Subscribe(eventbus.ModelLoadError, c.onLoadError),
	)
	return c
}

// Close releases the controller's bus subscriptions.
func (c *Controller) Close() {
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
}

// EnsureReady makes sure the engine process is up, starting it if needed, and
// reapplies the persisted model choice after a fresh start. Safe to call
// repeatedly; a reachable engine makes it a cheap ping.
func (c *Controller) EnsureReady(ctx context.Context) error {
	if c.eng.Ping(ctx) {
		c.setState(StateReady)
		return nil
	}

	c.setState(StateStarting)
	if err := c.eng.Start(ctx); err != nil {
		c.setState(StateUnknown)
		return fmt.Errorf("start engine: %w", err)
	}
	c.setState(StateReady)

	// A freshly started engine comes up with its default model. Restore the
	// saved choice; failing to do so is not fatal.
	if c.cfg.ModelName != "" {
		if _, err := c.eng.SetModel(ctx, c.cfg.ModelName); err != nil {
			slog.Warn("reapply saved model", "model", c.cfg.ModelName, "error", err)
		} else {
			c.mu.Lock()
			c.active = c.cfg.ModelName
			c.mu.Unlock()
		}
	}
	return nil
}

// Status queries the engine's model status. Pure read, no phase changes.
func (c *Controller) Status(ctx context.Context) (types.ModelStatus, error) {
	return c.eng.Status(ctx)
}

// Models lists the model names the engine can serve.
func (c *Controller) Models(ctx context.Context) ([]string, error) {
	st, err := c.eng.Status(ctx)
	if err != nil {
		return nil, err
	}
	return st.AvailableModels, nil
}

// SwitchModel activates name on the engine, persists the choice, and kicks
// off a background load. Switching to the already-active model is a no-op.
// Completion arrives via bus events; until then further switches are
// rejected with ErrSwitchInFlight.
func (c *Controller) SwitchModel(ctx context.Context, name string) error {
	c.mu.Lock()
	if name == c.active && c.phase == PhaseIdle {
		c.mu.Unlock()
		return nil
	}
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrSwitchInFlight
	}
	c.setPhaseLocked(PhaseSwitching)
	c.lastError = ""
	c.mu.Unlock()

	fail := func(err error) error {
		c.mu.Lock()
		c.setPhaseLocked(PhaseIdle)
		c.lastError = err.Error()
		c.mu.Unlock()
		return err
	}

	if _, err := c.eng.SetModel(ctx, name); err != nil {
		return fail(fmt.Errorf("set model %s: %w", name, err))
	}

	c.mu.Lock()
	c.active = name
	c.mu.Unlock()

	c.cfg.ModelName = name
	if err := c.save(c.cfg); err != nil {
		slog.Warn("persist model choice", "model", name, "error", err)
	}

	// Uncached models go through a download first. If the probe itself
	// fails, assume the longer path.
	phase := PhaseDownloading
	if cached, err := c.eng.IsModelCached(ctx, name); err == nil && cached.Cached {
		phase = PhaseLoading
	}
	c.mu.Lock()
	c.setPhaseLocked(phase)
	c.mu.Unlock()

	if err := c.eng.BeginModelLoad(ctx); err != nil {
		return fail(fmt.Errorf("begin model load: %w", err))
	}
	return nil
}

// State returns what the controller knows about the engine process.
func (c *Controller) State() EngineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(st EngineState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}

// Phase returns the current switch phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// PhaseAge returns how long the controller has been in its current phase.
func (c *Controller) PhaseAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.phaseSince)
}

// SwitchStuck reports whether a switch has been in flight longer than
// threshold. Downloads legitimately take minutes, so callers pick the
// threshold per phase semantics they care about.
func (c *Controller) SwitchStuck(threshold time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase != PhaseIdle && c.now().Sub(c.phaseSince) > threshold
}

// ActiveModel returns the model name the controller last activated.
func (c *Controller) ActiveModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// LastError returns the most recent switch failure, or "".
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *Controller) setPhaseLocked(p Phase) {
	c.phase = p
	c.phaseSince = c.now()
}

func (c *Controller) onLoadComplete(payload any) {
	st, ok := payload.(types.ModelStatus)
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok && st.ModelName != "" {
		c.active = st.ModelName
	}
	c.lastError = ""
	c.setPhaseLocked(PhaseIdle)
}

// onLoadError records the failure but keeps the chosen model active; the
// engine has already deactivated the previous one, so there is nothing
// consistent to revert to.
func (c *Controller) onLoadError(payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if le, ok := payload.(types.ModelLoadError); ok {
		c.lastError = le.Error
	} else {
		c.lastError = "model load failed"
	}
	c.setPhaseLocked(PhaseIdle)
}
