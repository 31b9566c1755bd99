package hotkeys

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.design/x/hotkey"

	"github.com/echo-stt/echo/eventbus"
)

// Authority is the surface a capture session needs from whoever owns the
// OS hotkey slot. There is exactly one slot; Register replaces whatever was
// bound before.
type Authority interface {
	Register(b Binding) error
	Unregister()
	// StartCapture releases the hotkey slot and starts raw key delivery so
	// the keys being recorded are not swallowed by the registration.
	StartCapture() error
	// StopCapture stops raw key delivery. It does not restore any
	// registration; the caller decides which binding wins.
	StopCapture()
}

// Registrar owns the single global hotkey registration and the raw key hook.
// Presses of the bound hotkey invoke the onPress callback.
type Registrar struct {
	onPress func()
	raw     *RawHook

	mu    sync.Mutex
	hk    *hotkey.Hotkey
	bound Binding
	done  chan struct{}
}

// NewRegistrar creates a registrar. Raw key events captured during
// StartCapture/StopCapture are published on bus.
func NewRegistrar(bus *eventbus.Bus, onPress func()) *Registrar {
	return &Registrar{
		onPress: onPress,
		raw:     NewRawHook(bus),
	}
}

// Bound returns the currently registered binding.
func (r *Registrar) Bound() Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bound
}

// Register binds b as the global hotkey, replacing any previous binding.
func (r *Registrar) Register(b Binding) error {
	if err := Validate(b); err != nil {
		return err
	}

	var mods []hotkey.Modifier
	for _, m := range b.Mods {
		mod, ok := modifierMap[m]
		if !ok {
			return fmt.Errorf("modifier %q not supported on this platform", m)
		}
		mods = append(mods, mod)
	}
	key, ok := keyMap[b.Key]
	if !ok {
		return fmt.Errorf("key %q not supported on this platform", b.Key)
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("register hotkey %s: %w", b, err)
	}

	r.mu.Lock()
	r.unregisterLocked()
	r.hk = hk
	r.bound = b
	done := make(chan struct{})
	r.done = done
	r.mu.Unlock()

	go func() {
		for {
			select {
			case <-done:
				return
			case <-hk.Keydown():
				if r.onPress != nil {
					r.onPress()
				}
			}
		}
	}()

	slog.Info("hotkey registered", "binding", b.String())
	return nil
}

// Unregister releases the hotkey slot. The last binding stays recorded so a
// later StopCapture caller can restore it.
func (r *Registrar) Unregister() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked()
}

func (r *Registrar) unregisterLocked() {
	if r.hk == nil {
		return
	}
	close(r.done)
	if err := r.hk.Unregister(); err != nil {
		slog.Warn("unregister hotkey", "binding", r.bound.String(), "error", err)
	}
	r.hk = nil
	r.done = nil
}

// StartCapture frees the slot and turns on the raw key hook.
func (r *Registrar) StartCapture() error {
	r.Unregister()
	if err := r.raw.Start(); err != nil {
		return fmt.Errorf("start raw key hook: %w", err)
	}
	return nil
}

// StopCapture turns the raw key hook off again.
func (r *Registrar) StopCapture() {
	r.raw.Stop()
}
