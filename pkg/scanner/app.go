package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-drift/scan/internal/config"
	"github.com/go-drift/scan/pkg/camera"
	"github.com/go-drift/scan/pkg/capture"
	"github.com/go-drift/scan/pkg/denial"
	"github.com/go-drift/scan/pkg/gate"
	"github.com/go-drift/scan/pkg/history"
	"github.com/go-drift/scan/pkg/logging"
	"github.com/go-drift/scan/pkg/platform"
	"github.com/go-drift/scan/pkg/settings"
	"github.com/go-drift/scan/pkg/theme"
)

// BackendPlatform stores settings in the native preferences store.
const BackendPlatform = "platform"

// Deps are the collaborators the host provides. Nil fields use the
// native bridge clients from package platform.
type Deps struct {
	Permission gate.Permission
	Prompter   gate.Prompter
	Pipeline   Pipeline
	Decoder    capture.Decoder
	Lifecycle  LifecycleSource
	// SystemBrightness reports the device appearance for theme.ModeSystem.
	SystemBrightness func() theme.Brightness
}

// App is the assembled scanner.
type App struct {
	Home     *Home
	Gate     *gate.Gate
	Tracker  denial.Tracker
	Settings settings.Store
	History  history.Store

	deps Deps
	mu   sync.RWMutex
	cfg  *config.Resolved
}

// OpenSettings opens the settings backend named by cfg.
func OpenSettings(ctx context.Context, cfg config.StorageConfig) (settings.Store, error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), BackendPlatform) {
		return platform.NewPreferences(), nil
	}
	return settings.Open(ctx, settings.Config{
		Backend:  cfg.Backend,
		Path:     cfg.Path,
		RedisURL: cfg.RedisURL,
	})
}

// historyConfig keeps history next to SQLite settings and in memory
// otherwise.
func historyConfig(cfg *config.Resolved) history.Config {
	hc := history.Config{Backend: history.BackendMemory, Limit: cfg.History.Limit}
	if cfg.Storage.Backend == settings.BackendSQLite {
		hc.Backend = history.BackendSQLite
		hc.Path = filepath.Join(filepath.Dir(cfg.Storage.Path), "history.db")
	}
	return hc
}

// Open assembles the app from cfg and deps.
func Open(ctx context.Context, cfg *config.Resolved, deps Deps) (*App, error) {
	if deps.Permission == nil {
		deps.Permission = platform.NewCameraPermission()
	}
	if deps.Pipeline == nil {
		deps.Pipeline = platform.NewCamera()
	}
	if deps.Decoder == nil {
		deps.Decoder = platform.NewDecoder()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = platform.Lifecycle
	}

	store, err := OpenSettings(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	hist, err := history.Open(historyConfig(cfg))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}

	tracker := denial.NewStoreTracker(store)
	g, err := gate.New(denial.Camera, deps.Permission, tracker,
		gate.WithThreshold(cfg.Permissions.Threshold),
		gate.WithPrompter(deps.Prompter),
	)
	if err != nil {
		store.Close()
		hist.Close()
		return nil, err
	}

	pref := theme.NewPreference(store, deps.SystemBrightness)
	if _, err := pref.Load(ctx); err != nil {
		logging.For("scanner").Warn().Err(err).Msg("theme preference not loaded")
	}

	a := &App{
		Gate:     g,
		Tracker:  tracker,
		Settings: store,
		History:  hist,
		deps:     deps,
		cfg:      cfg,
	}
	a.Home = NewHome(g, pref, hist, a.OpenScreen)
	return a, nil
}

// ScreenOptions returns the scan screen options for the current config.
func (a *App) ScreenOptions() ScreenOptions {
	a.mu.RLock()
	sc := a.cfg.Scanner
	a.mu.RUnlock()
	return ScreenOptions{
		Mode:          sc.Mode,
		Lens:          camera.LensBack,
		AnalysisWidth: sc.AnalysisWidth,
		AutoZoom:      sc.AutoZoom,
		ZoomStep:      sc.ZoomStep,
		Lifecycle:     a.deps.Lifecycle,
	}
}

// OpenScreen opens a scan screen with the app's pipeline and decoder.
func (a *App) OpenScreen(ctx context.Context) (*ScanScreen, error) {
	return OpenScanScreen(ctx, a.deps.Pipeline, a.deps.Decoder, a.ScreenOptions())
}

// ApplyConfig applies a reloaded configuration. Storage changes need a
// restart; the threshold and scanner options take effect immediately.
func (a *App) ApplyConfig(cfg *config.Resolved) error {
	if err := a.Gate.SetThreshold(cfg.Permissions.Threshold); err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	logging.For("scanner").Info().
		Int("threshold", cfg.Permissions.Threshold).
		Str("mode", cfg.Scanner.Mode).
		Msg("configuration applied")
	return nil
}

// Close releases the stores.
func (a *App) Close() error {
	herr := a.History.Close()
	serr := a.Settings.Close()
	if herr != nil {
		return herr
	}
	return serr
}
