package hotkeys

import (
	"strings"
	"sync"

	hook "github.com/robotn/gohook"

	"github.com/echo-stt/echo/eventbus"
	"github.com/echo-stt/echo/internal/types"
)

// rawAliases folds the left/right key names the OS hook reports into the
// canonical names used by bindings.
var rawAliases = map[string]string{
	"lctrl": "ctrl", "rctrl": "ctrl", "left ctrl": "ctrl", "right ctrl": "ctrl",
	"lalt": "alt", "ralt": "alt", "left alt": "alt", "right alt": "alt",
	"lshift": "shift", "rshift": "shift", "left shift": "shift", "right shift": "shift",
	"lcmd": "cmd", "rcmd": "cmd", "lwin": "cmd", "rwin": "cmd",
}

// RawHook turns OS-level keyboard events into RawKeyEvent bus messages while
// a hotkey capture is running. It tracks which modifiers are held so every
// event carries the full combination seen so far.
type RawHook struct {
	bus *eventbus.Bus

	mu      sync.Mutex
	running bool
	held    map[string]bool
}

func NewRawHook(bus *eventbus.Bus) *RawHook {
	return &RawHook{bus: bus, held: make(map[string]bool)}
}

// Start begins publishing raw key events. A second Start while running is a
// no-op.
func (h *RawHook) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.held = make(map[string]bool)
	h.mu.Unlock()

	events := hook.Start()
	go h.run(events)
	return nil
}

// Stop tears the OS hook down.
func (h *RawHook) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	hook.End()
}

func (h *RawHook) run(events chan hook.Event) {
	for ev := range events {
		switch ev.Kind {
		case hook.KeyDown, hook.KeyHold:
			h.handle(ev.Rawcode, true)
		case hook.KeyUp:
			h.handle(ev.Rawcode, false)
		}
	}
}

func (h *RawHook) handle(rawcode uint16, down bool) {
	name := normalizeRawName(hook.RawcodetoKeychar(rawcode))
	if name == "" {
		return
	}

	h.mu.Lock()
	if down {
		if h.held[name] {
			// Key repeat while held, nothing new to report.
			h.mu.Unlock()
			return
		}
		h.held[name] = true
	} else {
		delete(h.held, name)
	}

	var mods []string
	for _, m := range modifierOrder {
		if h.held[m] {
			mods = append(mods, m)
		}
	}
	h.mu.Unlock()

	ev := types.RawKeyEvent{
		Modifiers: mods,
		Key:       name,
		IsKeyDown: down,
	}
	if isModifier(name) {
		ev.Combined = Binding{Mods: mods}.String()
	} else {
		ev.Combined = Binding{Mods: mods, Key: name}.String()
	}
	h.bus.Publish(eventbus.RawKey, ev)
}

// normalizeRawName maps a hook-reported key name to its canonical binding
// name, or "" when the key has no binding name.
func normalizeRawName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := rawAliases[name]; ok {
		return alias
	}
	if canon, ok := modifierAliases[name]; ok {
		return canon
	}
	name = normalizeKey(name)
	if !knownKeys[name] {
		return ""
	}
	return name
}
