package scanner

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/go-drift/scan/pkg/capture"
	"github.com/go-drift/scan/pkg/gate"
	"github.com/go-drift/scan/pkg/history"
	"github.com/go-drift/scan/pkg/logging"
	"github.com/go-drift/scan/pkg/theme"
)

// ScreenOpener opens a scan screen. It is called after the camera
// permission has been granted.
type ScreenOpener func(ctx context.Context) (*ScanScreen, error)

// Home is the home screen: scan trigger, theme toggle, scan history.
type Home struct {
	gate    *gate.Gate
	theme   *theme.Preference
	history history.Store
	open    ScreenOpener
	log     zerolog.Logger
}

// NewHome returns the home screen.
func NewHome(g *gate.Gate, pref *theme.Preference, hist history.Store, open ScreenOpener) *Home {
	return &Home{
		gate:    g,
		theme:   pref,
		history: hist,
		open:    open,
		log:     logging.For("home"),
	}
}

// Scan runs the full scan flow: permission gate, scan screen, first
// result, history. It returns the formatted text shown to the user.
//
// Gate errors (gate.ErrPermissionDenied, gate.ErrPermissionPermanentlyDenied)
// are returned as is; the gate already notified the user.
func (h *Home) Scan(ctx context.Context) (string, error) {
	if err := h.gate.Ensure(ctx); err != nil {
		h.log.Info().Err(err).Msg("scan not started")
		return "", err
	}

	screen, err := h.open(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := screen.Close(); err != nil {
			h.log.Warn().Err(err).Str("screen", screen.ID()).Msg("scan screen teardown failed")
		}
	}()

	var result capture.Result
	if screen.Mode() == ModeOneShot {
		result, err = screen.Capture(ctx)
	} else {
		result, err = screen.Result(ctx)
	}
	if err != nil {
		return "", err
	}

	if _, err := h.history.Add(ctx, history.FromResult(result)); err != nil {
		h.log.Warn().Err(err).Msg("could not record scan in history")
	}
	h.log.Info().Int("codes", len(result.Codes)).Msg("scan completed")
	return result.Text, nil
}

// ToggleTheme flips between light and dark.
func (h *Home) ToggleTheme(ctx context.Context) (theme.Mode, error) {
	return h.theme.Toggle(ctx)
}

// Theme returns the current theme preference.
func (h *Home) Theme() *theme.Preference {
	return h.theme
}

// History returns up to limit entries, newest first.
func (h *Home) History(ctx context.Context, limit int) ([]history.Entry, error) {
	return h.history.List(ctx, limit)
}

// ClearHistory removes every entry.
func (h *Home) ClearHistory(ctx context.Context) error {
	return h.history.Clear(ctx)
}
