// Package hotkeys owns the global dictation hotkey: parsing and validating
// key combinations, holding the OS-level hotkey registration, and recording a
// replacement combination from raw key events.
package hotkeys

import (
	"fmt"
	"strings"
)

// modifierOrder fixes the canonical order modifiers appear in when a binding
// is rendered, so "shift+ctrl+x" and "ctrl+shift+x" compare equal.
var modifierOrder = []string{"ctrl", "alt", "shift", "cmd"}

var modifierAliases = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"alt":     "alt",
	"opt":     "alt",
	"option":  "alt",
	"shift":   "shift",
	"cmd":     "cmd",
	"command": "cmd",
	"super":   "cmd",
	"win":     "cmd",
	"meta":    "cmd",
}

var keyAliases = map[string]string{
	"esc":    "escape",
	"return": "enter",
	"del":    "delete",
	" ":      "space",
}

var knownKeys = func() map[string]bool {
	m := make(map[string]bool)
	for r := 'a'; r <= 'z'; r++ {
		m[string(r)] = true
	}
	for r := '0'; r <= '9'; r++ {
		m[string(r)] = true
	}
	for i := 1; i <= 24; i++ {
		m[fmt.Sprintf("f%d", i)] = true
	}
	for _, k := range []string{
		"space", "tab", "enter", "escape", "delete", "backspace",
		"up", "down", "left", "right", "home", "end", "pageup", "pagedown",
	} {
		m[k] = true
	}
	return m
}()

// Binding is a parsed hotkey combination. Mods are in canonical order.
type Binding struct {
	Mods []string
	Key  string
}

// String renders the binding in its canonical "+"-joined form. A partial
// binding renders its known parts, so a capture in progress can be shown.
func (b Binding) String() string {
	parts := append([]string(nil), b.Mods...)
	if b.Key != "" {
		parts = append(parts, b.Key)
	}
	return strings.Join(parts, "+")
}

// IsZero reports whether the binding is empty.
func (b Binding) IsZero() bool {
	return b.Key == "" && len(b.Mods) == 0
}

// HasMod reports whether mod is part of the binding.
func (b Binding) HasMod(mod string) bool {
	for _, m := range b.Mods {
		if m == mod {
			return true
		}
	}
	return false
}

func isModifier(token string) bool {
	_, ok := modifierAliases[token]
	return ok
}

func normalizeKey(token string) string {
	if alias, ok := keyAliases[token]; ok {
		return alias
	}
	return token
}

func isFunctionKey(key string) bool {
	if len(key) < 2 || key[0] != 'f' {
		return false
	}
	n := 0
	for _, r := range key[1:] {
		if r < '0' || r > '9' {
			return false
		}
		n = n*10 + int(r-'0')
	}
	return n >= 1 && n <= 24
}

// Parse parses a "+"-joined combination like "ctrl+shift+space" into a
// Binding. Modifier and key aliases are resolved and modifiers are put in
// canonical order. Parse does not judge whether the combination is usable as
// a hotkey; that is Validate's job.
func Parse(s string) (Binding, error) {
	raw := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	mods := make(map[string]bool)
	var key string
	for _, token := range raw {
		token = strings.TrimSpace(token)
		if token == "" {
			return Binding{}, fmt.Errorf("empty token in %q", s)
		}
		if canon, ok := modifierAliases[token]; ok {
			mods[canon] = true
			continue
		}
		token = normalizeKey(token)
		if !knownKeys[token] {
			return Binding{}, fmt.Errorf("unknown key %q", token)
		}
		if key != "" {
			return Binding{}, fmt.Errorf("more than one key in %q", s)
		}
		key = token
	}

	b := Binding{Key: key}
	for _, m := range modifierOrder {
		if mods[m] {
			b.Mods = append(b.Mods, m)
		}
	}
	return b, nil
}

// Validate checks that a binding is acceptable as a global hotkey. Function
// keys may stand alone; everything else needs at least one modifier so plain
// typing cannot trigger dictation.
func Validate(b Binding) error {
	if b.Key == "" {
		return fmt.Errorf("combination has no key")
	}
	if !knownKeys[b.Key] {
		return fmt.Errorf("unknown key %q", b.Key)
	}
	if isFunctionKey(b.Key) {
		return nil
	}
	if len(b.Mods) == 0 {
		return fmt.Errorf("key %q needs at least one modifier", b.Key)
	}
	return nil
}

// Canonical parses and validates s, returning its canonical rendering.
func Canonical(s string) (string, error) {
	b, err := Parse(s)
	if err != nil {
		return "", err
	}
	if err := Validate(b); err != nil {
		return "", err
	}
	return b.String(), nil
}
