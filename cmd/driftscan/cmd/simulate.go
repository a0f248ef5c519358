package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-drift/scan/cmd/driftscan/internal/fixture"
	"github.com/go-drift/scan/internal/config"
	"github.com/go-drift/scan/pkg/capture"
	"github.com/go-drift/scan/pkg/gate"
	"github.com/go-drift/scan/pkg/platform"
	"github.com/go-drift/scan/pkg/scanner"
)

// drainGrace is how long the last replayed frame may take to decode.
const drainGrace = 500 * time.Millisecond

var errFixturesExhausted = errors.New("no code found in any fixture")

var simulateFlags struct {
	frames       string
	mode         string
	interval     time.Duration
	timeout      time.Duration
	answers      []string
	openSettings bool
	metricsAddr  string
	watch        bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay image fixtures through the scan flow",
	Long: `simulate runs a full scan against a directory of images: the
permission gate, the scan screen and the decoder, then records the result
in history like the app does.

Each image may carry sidecar files: name.txt with one payload per line
(a "zoom=R" line is a zoom hint for a code that is too small), or
name.err to make the decoder fail on that image.

Permission dialog answers are scripted with --answer; the last answer
repeats. The denial count persists in the configured storage, so
repeated runs walk through the same escalation the app shows.`,
	Example: `  driftscan simulate --frames testdata/frames
  driftscan simulate --frames ./shots --mode oneshot
  driftscan simulate --frames ./shots --answer denied --answer granted
  driftscan simulate --frames ./shots --metrics-addr :9090 --watch`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	flags := simulateCmd.Flags()
	flags.StringVar(&simulateFlags.frames, "frames", "", "directory of fixture images (required)")
	flags.StringVar(&simulateFlags.mode, "mode", "", "scanner mode override (continuous, oneshot)")
	flags.DurationVar(&simulateFlags.interval, "interval", 30*time.Millisecond, "delay between analysis frames")
	flags.DurationVar(&simulateFlags.timeout, "timeout", time.Minute, "give up after this long")
	flags.StringSliceVar(&simulateFlags.answers, "answer", []string{"granted"}, "permission dialog answers in order (granted, denied, permanently_denied, restricted)")
	flags.BoolVar(&simulateFlags.openSettings, "open-settings", false, "accept the settings dialog")
	flags.StringVar(&simulateFlags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default: metrics.addr)")
	flags.BoolVar(&simulateFlags.watch, "watch", false, "apply scan.yaml changes while running")
	_ = simulateCmd.MarkFlagRequired("frames")
	rootCmd.AddCommand(simulateCmd)
}

func parseAnswers(answers []string) ([]gate.Status, error) {
	statuses := make([]gate.Status, 0, len(answers))
	for _, a := range answers {
		st := platform.ParseStatus(strings.TrimSpace(a))
		if st == gate.StatusUnknown || st == gate.StatusNotDetermined {
			return nil, fmt.Errorf("invalid --answer %q", a)
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// noLifecycle never reports a lifecycle change.
type noLifecycle struct{}

func (noLifecycle) AddHandler(platform.LifecycleHandler) func() { return func() {} }

func runSimulate(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	statuses, err := parseAnswers(simulateFlags.answers)
	if err != nil {
		return err
	}
	if simulateFlags.mode != "" {
		resolved.Scanner.Mode = simulateFlags.mode
		if err := resolved.Validate(); err != nil {
			return err
		}
	}

	src, err := fixture.Open(simulateFlags.frames)
	if err != nil {
		return err
	}
	pipe := fixture.NewPipeline(src, simulateFlags.interval)
	perm := fixture.NewPermission(statuses...)

	ctx, cancel := context.WithTimeout(cmd.Context(), simulateFlags.timeout)
	defer cancel()

	app, err := openApp(ctx, scanner.Deps{
		Permission: perm,
		Prompter:   fixture.Prompter{Out: out, OpenSettings: simulateFlags.openSettings},
		Pipeline:   pipe,
		Decoder:    fixture.NewDecoder(src),
		Lifecycle:  noLifecycle{},
	})
	if err != nil {
		return err
	}
	defer app.Close()

	addr := simulateFlags.metricsAddr
	if addr == "" {
		addr = resolved.Metrics.Addr
	}
	if addr != "" {
		stop := serveMetrics(addr)
		defer stop()
	}

	if simulateFlags.watch {
		w, err := config.NewWatcher(resolved.Root, resolved, func(cfg *config.Resolved) {
			if err := app.ApplyConfig(cfg); err != nil {
				log.Warn().Err(err).Msg("reloaded configuration rejected")
			}
		})
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	}

	var text string
	if app.ScreenOptions().Mode == scanner.ModeOneShot {
		text, err = scanOneShot(ctx, app, src.Len())
	} else {
		text, err = scanContinuous(ctx, app, pipe)
	}

	stats := pipe.Stats()
	log.Info().
		Int64("delivered", stats.Delivered).
		Int64("closed", stats.Closed).
		Int64("skipped", stats.Skipped).
		Int("permission_requests", perm.Requests()).
		Msg("simulation finished")

	switch {
	case errors.Is(err, gate.ErrPermissionDenied), errors.Is(err, gate.ErrPermissionPermanentlyDenied):
		n, _ := app.Tracker.Get(cmd.Context(), app.Gate.Key())
		fmt.Fprintf(out, "scan blocked: %v (denials %d/%d)\n", err, n, app.Gate.Threshold())
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintln(out, text)
	return nil
}

// scanContinuous runs the scan flow while the pipeline replays the
// fixtures. It fails with errFixturesExhausted when every frame was seen
// without a result.
func scanContinuous(ctx context.Context, app *scanner.App, pipe *fixture.Pipeline) (string, error) {
	ctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	var text string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		text, err = app.Home.Scan(gctx)
		stop(nil)
		if err != nil && errors.Is(context.Cause(ctx), errFixturesExhausted) {
			return errFixturesExhausted
		}
		return err
	})
	g.Go(func() error {
		err := pipe.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case <-gctx.Done():
		case <-time.After(drainGrace):
			stop(errFixturesExhausted)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}
	return text, nil
}

// scanOneShot presses the capture button once per fixture until a code
// is read.
func scanOneShot(ctx context.Context, app *scanner.App, shots int) (string, error) {
	for i := range shots {
		text, err := app.Home.Scan(ctx)
		switch {
		case err == nil:
			return text, nil
		case errors.Is(err, scanner.ErrNoCode), errors.Is(err, capture.ErrDecodeFailed):
			log.Debug().Err(err).Int("shot", i+1).Msg("nothing read")
		default:
			return "", err
		}
	}
	return "", errFixturesExhausted
}

func serveMetrics(addr string) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
