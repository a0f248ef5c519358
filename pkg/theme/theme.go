// Package theme stores the user's light/dark preference and tells the UI
// when it changes.
package theme

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-drift/scan/pkg/logging"
	"github.com/go-drift/scan/pkg/settings"
)

// Namespace is the settings namespace holding the theme preference.
const Namespace = "theme"

const modeKey = "mode"

// Brightness is the resolved appearance.
type Brightness int

const (
	BrightnessLight Brightness = iota
	BrightnessDark
)

func (b Brightness) String() string {
	if b == BrightnessDark {
		return "dark"
	}
	return "light"
}

// Mode is the stored preference. ModeSystem follows the device setting.
type Mode string

const (
	ModeLight  Mode = "light"
	ModeDark   Mode = "dark"
	ModeSystem Mode = "system"
)

// ParseMode parses a stored or user-supplied mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeLight, ModeDark, ModeSystem:
		return m, nil
	default:
		return ModeSystem, fmt.Errorf("theme: unknown mode %q", s)
	}
}

// Resolve returns the brightness for m, asking system when m is ModeSystem.
// A nil system resolves to light.
func (m Mode) Resolve(system func() Brightness) Brightness {
	switch m {
	case ModeDark:
		return BrightnessDark
	case ModeLight:
		return BrightnessLight
	}
	if system != nil {
		return system()
	}
	return BrightnessLight
}

// Listener is called after the mode changes.
type Listener func(Mode)

// Preference is the persisted theme mode. It is read once by Load and
// written on every change.
type Preference struct {
	scope  settings.Scope
	system func() Brightness

	mu        sync.Mutex
	mode      Mode
	listeners map[int]Listener
	nextID    int
}

// NewPreference returns a preference stored in store. system reports the
// device appearance and may be nil.
func NewPreference(store settings.Store, system func() Brightness) *Preference {
	return &Preference{
		scope:     settings.Namespace(store, Namespace),
		system:    system,
		mode:      ModeSystem,
		listeners: make(map[int]Listener),
	}
}

// Load reads the stored mode. A missing or unreadable value leaves the
// preference at ModeSystem.
func (p *Preference) Load(ctx context.Context) (Mode, error) {
	raw, err := p.scope.String(ctx, modeKey, string(ModeSystem))
	if err != nil {
		return p.Mode(), err
	}
	mode, err := ParseMode(raw)
	if err != nil {
		logging.For("theme").Warn().Str("stored", raw).Msg("ignoring invalid theme mode")
	}
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
	return mode, nil
}

// Mode returns the current mode.
func (p *Preference) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Brightness returns the current resolved appearance.
func (p *Preference) Brightness() Brightness {
	return p.Mode().Resolve(p.system)
}

// Set stores mode and notifies listeners if it changed.
func (p *Preference) Set(ctx context.Context, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	if err := p.scope.SetString(ctx, modeKey, string(mode)); err != nil {
		return fmt.Errorf("theme: save: %w", err)
	}

	p.mu.Lock()
	changed := p.mode != mode
	p.mode = mode
	listeners := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l(mode)
		}
	}
	return nil
}

// Toggle flips between light and dark, resolving ModeSystem first, and
// returns the new mode.
func (p *Preference) Toggle(ctx context.Context) (Mode, error) {
	next := ModeDark
	if p.Brightness() == BrightnessDark {
		next = ModeLight
	}
	if err := p.Set(ctx, next); err != nil {
		return p.Mode(), err
	}
	return next, nil
}

// Listen registers l and returns the function that removes it.
func (p *Preference) Listen(l Listener) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = l
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}
