// Package config loads the optional scan.yaml project file, applies .env
// and DRIFTSCAN_* environment overrides, and resolves defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file.
const FileName = "scan.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DRIFTSCAN_"

// Scanner modes.
const (
	ModeContinuous = "continuous"
	ModeOneShot    = "oneshot"
)

// Config represents scan.yaml.
type Config struct {
	App         AppConfig         `yaml:"app"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Scanner     ScannerConfig     `yaml:"scanner"`
	Storage     StorageConfig     `yaml:"storage"`
	History     HistoryConfig     `yaml:"history"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// AppConfig contains application metadata.
type AppConfig struct {
	Name string `yaml:"name,omitempty"`
	ID   string `yaml:"id,omitempty"`
}

// PermissionsConfig controls the permission gate.
type PermissionsConfig struct {
	// Threshold is the number of denials before the user is sent to settings.
	Threshold int `yaml:"threshold,omitempty"`
}

// ScannerConfig controls the scan screen.
type ScannerConfig struct {
	Mode          string  `yaml:"mode,omitempty"`
	AutoZoom      bool    `yaml:"auto_zoom,omitempty"`
	ZoomStep      float64 `yaml:"zoom_step,omitempty"`
	AnalysisWidth int     `yaml:"analysis_width,omitempty"`
}

// StorageConfig selects the settings backend.
type StorageConfig struct {
	Backend  string `yaml:"backend,omitempty"`
	Path     string `yaml:"path,omitempty"`
	RedisURL string `yaml:"redis_url,omitempty"`
}

// HistoryConfig bounds the scan history.
type HistoryConfig struct {
	Limit int `yaml:"limit,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint of the simulator.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Defaults returns the configuration used when scan.yaml sets nothing.
func Defaults() Config {
	return Config{
		Permissions: PermissionsConfig{Threshold: 2},
		Scanner: ScannerConfig{
			Mode:          ModeContinuous,
			ZoomStep:      0.5,
			AnalysisWidth: 1280,
		},
		Storage: StorageConfig{Backend: "file", Path: ".driftscan/settings.yaml"},
		History: HistoryConfig{Limit: 100},
		Log:     LogConfig{Level: "info", Format: "auto"},
	}
}

// Resolved contains resolved configuration values.
type Resolved struct {
	Config
	Root       string
	ModulePath string
}

// LoadOptional reads scan.yaml from dir over the defaults. A missing file
// yields the defaults.
func LoadOptional(dir string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Resolve loads scan.yaml and .env from dir, applies environment
// overrides, fills in derived defaults and validates the result.
// Process environment wins over .env.
func Resolve(dir string) (*Resolved, error) {
	cfg, err := LoadOptional(dir)
	if err != nil {
		return nil, err
	}

	env, err := readEnv(dir)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, env); err != nil {
		return nil, err
	}

	modPath := modulePath(dir)
	if strings.TrimSpace(cfg.App.Name) == "" {
		cfg.App.Name = defaultAppName(modPath, dir)
	}
	if strings.TrimSpace(cfg.App.ID) == "" {
		cfg.App.ID = defaultAppID(modPath, cfg.App.Name)
	}
	if cfg.Storage.Path != "" && !filepath.IsAbs(cfg.Storage.Path) {
		cfg.Storage.Path = filepath.Join(dir, cfg.Storage.Path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Resolved{Config: *cfg, Root: dir, ModulePath: modPath}, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Permissions.Threshold < 1 {
		return fmt.Errorf("permissions.threshold must be at least 1 (got %d)", c.Permissions.Threshold)
	}
	switch c.Scanner.Mode {
	case ModeContinuous, ModeOneShot:
	default:
		return fmt.Errorf("scanner.mode must be %q or %q (got %q)", ModeContinuous, ModeOneShot, c.Scanner.Mode)
	}
	if c.Scanner.ZoomStep <= 0 {
		return fmt.Errorf("scanner.zoom_step must be positive (got %v)", c.Scanner.ZoomStep)
	}
	if c.Scanner.AnalysisWidth < 0 {
		return fmt.Errorf("scanner.analysis_width must not be negative (got %d)", c.Scanner.AnalysisWidth)
	}
	if c.History.Limit < 1 {
		return fmt.Errorf("history.limit must be at least 1 (got %d)", c.History.Limit)
	}
	switch c.Storage.Backend {
	case "memory", "platform":
	case "file", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
		}
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	return validateAppID(c.App.ID)
}

// readEnv merges dir/.env (if present) with the process environment.
func readEnv(dir string) (map[string]string, error) {
	env := map[string]string{}
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err == nil {
		fileEnv, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse .env: %w", err)
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	return env, nil
}

func applyEnv(cfg *Config, env map[string]string) error {
	str := func(key string, dst *string) {
		if v, ok := env[EnvPrefix+key]; ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := env[EnvPrefix+key]
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("APP_NAME", &cfg.App.Name)
	str("APP_ID", &cfg.App.ID)
	str("SCANNER_MODE", &cfg.Scanner.Mode)
	str("STORAGE_BACKEND", &cfg.Storage.Backend)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("STORAGE_REDIS_URL", &cfg.Storage.RedisURL)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("METRICS_ADDR", &cfg.Metrics.Addr)

	if err := num("PERMISSIONS_THRESHOLD", &cfg.Permissions.Threshold); err != nil {
		return err
	}
	if err := num("SCANNER_ANALYSIS_WIDTH", &cfg.Scanner.AnalysisWidth); err != nil {
		return err
	}
	if err := num("HISTORY_LIMIT", &cfg.History.Limit); err != nil {
		return err
	}
	if v, ok := env[EnvPrefix+"SCANNER_AUTO_ZOOM"]; ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sSCANNER_AUTO_ZOOM: %w", EnvPrefix, err)
		}
		cfg.Scanner.AutoZoom = b
	}
	if v, ok := env[EnvPrefix+"SCANNER_ZOOM_STEP"]; ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sSCANNER_ZOOM_STEP: %w", EnvPrefix, err)
		}
		cfg.Scanner.ZoomStep = f
	}
	return nil
}

// FindProjectRoot walks up from the current directory to the nearest
// scan.yaml or go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		for _, name := range []string{FileName, "go.mod"} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s or go.mod found", FileName)
		}
		dir = parent
	}
}

// modulePath returns the module path from dir/go.mod, or "" without one.
func modulePath(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

func defaultAppName(modulePath, dir string) string {
	base := filepath.Base(dir)
	if modName, _, ok := module.SplitPathVersion(modulePath); ok && modName != "" {
		parts := strings.Split(modName, "/")
		base = parts[len(parts)-1]
	}
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "driftscan"
	}
	return base
}

func defaultAppID(modulePath, appName string) string {
	parts := strings.Split(modulePath, "/")
	if len(parts) < 2 || !strings.Contains(parts[0], ".") {
		return fmt.Sprintf("com.example.%s", sanitizeSegment(appName, false))
	}

	host := strings.Split(parts[0], ".")
	for i, j := 0, len(host)-1; i < j; i, j = i+1, j-1 {
		host[i], host[j] = host[j], host[i]
	}
	segments := host
	for _, p := range parts[1:] {
		if p != "" {
			segments = append(segments, p)
		}
	}
	for i, segment := range segments {
		segments[i] = sanitizeSegment(segment, false)
	}
	return strings.Join(segments, ".")
}

func sanitizeSegment(segment string, allowLeadingDigit bool) string {
	var out []rune
	for _, r := range strings.ToLower(strings.TrimSpace(segment)) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		out = []rune("app")
	}
	if !allowLeadingDigit && out[0] >= '0' && out[0] <= '9' {
		out = append([]rune{'a'}, out...)
	}
	return string(out)
}

func validateAppID(appID string) error {
	if !strings.Contains(appID, ".") {
		return fmt.Errorf("app.id must contain at least one '.' (got %q)", appID)
	}
	for _, segment := range strings.Split(appID, ".") {
		if segment == "" {
			return fmt.Errorf("app.id contains an empty segment (%q)", appID)
		}
		if segment[0] >= '0' && segment[0] <= '9' {
			return fmt.Errorf("app.id segments cannot start with a digit (%q)", appID)
		}
		if segment[0] == '_' {
			return fmt.Errorf("app.id segments cannot start with '_' (%q)", appID)
		}
		for _, r := range segment {
			if !(r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
				return fmt.Errorf("app.id contains invalid character %q in %q", r, appID)
			}
		}
	}
	return nil
}
