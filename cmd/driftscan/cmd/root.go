// Package cmd implements the driftscan commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-drift/scan/internal/config"
	"github.com/go-drift/scan/pkg/logging"
	"github.com/go-drift/scan/pkg/scanner"
)

// Version information set at build time.
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	projectDir string
	logLevel   string
	logFormat  string

	// resolved is set by the root pre-run hook.
	resolved *config.Resolved
)

var rootCmd = &cobra.Command{
	Use:   "driftscan",
	Short: "driftscan - headless host for the drift barcode scanner",
	Long: `driftscan runs the scanner core outside the app. It evaluates the
camera permission policy, inspects the denial counter, theme and scan
history stored by the configured backend, and replays a directory of
images through the full scan flow.

Configuration is read from scan.yaml, .env and DRIFTSCAN_* variables in
the project directory.`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("driftscan %s (built %s, commit %s)\n", Version, BuildTime, GitCommit))

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&projectDir, "dir", "", "project directory (default: nearest go.mod, else current directory)")
	flags.StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "log format override (json, console, auto)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	dir := projectDir
	if dir == "" {
		root, err := config.FindProjectRoot()
		if err != nil {
			if dir, err = os.Getwd(); err != nil {
				return err
			}
		} else {
			dir = root
		}
	}

	cfg, err := config.Resolve(dir)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	logging.SetOutput(cmd.ErrOrStderr())
	logging.Init(logging.Config{
		Format:    cfg.Log.Format,
		Level:     cfg.Log.Level,
		Component: "driftscan",
	})
	resolved = cfg
	return nil
}

// openApp assembles the scanner with the given deps. The platform storage
// backend needs the native bridge and cannot be used here.
func openApp(ctx context.Context, deps scanner.Deps) (*scanner.App, error) {
	if strings.EqualFold(strings.TrimSpace(resolved.Storage.Backend), scanner.BackendPlatform) {
		return nil, fmt.Errorf("storage backend %q needs a device; use memory, file, sqlite or redis", scanner.BackendPlatform)
	}
	return scanner.Open(ctx, resolved, deps)
}
