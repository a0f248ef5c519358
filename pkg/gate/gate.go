package gate

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/go-drift/scan/pkg/denial"
	"github.com/go-drift/scan/pkg/errors"
	"github.com/go-drift/scan/pkg/logging"
)

var (
	// ErrPermissionDenied is returned by Ensure after a recoverable denial.
	ErrPermissionDenied = stderrors.New("gate: permission denied")

	// ErrPermissionPermanentlyDenied is returned by Ensure when the user must
	// change the permission in system settings before the feature works.
	ErrPermissionPermanentlyDenied = stderrors.New("gate: permission permanently denied")

	// ErrInvalidThreshold is returned for thresholds below 1.
	ErrInvalidThreshold = stderrors.New("gate: threshold must be at least 1")
)

// Status is the platform-reported state of a permission.
type Status int

const (
	StatusUnknown Status = iota
	StatusNotDetermined
	StatusGranted
	StatusDenied
	StatusPermanentlyDenied
	StatusRestricted
)

func (s Status) String() string {
	switch s {
	case StatusNotDetermined:
		return "not_determined"
	case StatusGranted:
		return "granted"
	case StatusDenied:
		return "denied"
	case StatusPermanentlyDenied:
		return "permanently_denied"
	case StatusRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// terminalDenial reports whether the platform will never show the dialog again.
func (s Status) terminalDenial() bool {
	return s == StatusPermanentlyDenied || s == StatusRestricted
}

// Permission is the platform permission API for one capability.
type Permission interface {
	Status(ctx context.Context) (Status, error)
	ShouldShowRationale(ctx context.Context) (bool, error)
	// Request shows the system dialog and blocks until the user answers.
	Request(ctx context.Context) (Status, error)
	OpenSettings(ctx context.Context) error
}

// Prompter shows the user-facing side effects of a gate decision.
type Prompter interface {
	// NotifyDenied shows a transient notice that the permission was denied.
	NotifyDenied(ctx context.Context, key denial.Key)
	// ConfirmSettings shows a blocking dialog offering to open system
	// settings. It returns true if the user chose to open them.
	ConfirmSettings(ctx context.Context, key denial.Key) bool
}

// Gate applies the decision policy to one permission.
type Gate struct {
	key       denial.Key
	perm      Permission
	tracker   denial.Tracker
	prompter  Prompter
	threshold atomic.Int64
	log       zerolog.Logger
}

// Option configures a Gate.
type Option func(*Gate) error

// WithThreshold sets the number of denials before escalating to settings.
func WithThreshold(n int) Option {
	return func(g *Gate) error { return g.SetThreshold(n) }
}

// WithPrompter sets the UI collaborator used by Ensure.
func WithPrompter(p Prompter) Option {
	return func(g *Gate) error {
		g.prompter = p
		return nil
	}
}

// New creates a gate for key.
func New(key denial.Key, perm Permission, tracker denial.Tracker, opts ...Option) (*Gate, error) {
	if perm == nil || tracker == nil {
		return nil, fmt.Errorf("gate: permission and tracker are required")
	}
	g := &Gate{
		key:     key,
		perm:    perm,
		tracker: tracker,
		log:     logging.For("gate").With().Str("permission", string(key)).Logger(),
	}
	g.threshold.Store(DefaultThreshold)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Key returns the permission key.
func (g *Gate) Key() denial.Key {
	return g.key
}

// Threshold returns the current escalation threshold.
func (g *Gate) Threshold() int {
	return int(g.threshold.Load())
}

// SetThreshold changes the escalation threshold. Safe to call while the gate
// is in use, so configuration reloads can apply it.
func (g *Gate) SetThreshold(n int) error {
	if n < 1 {
		return ErrInvalidThreshold
	}
	g.threshold.Store(int64(n))
	return nil
}

// Check queries the platform and returns the decision. A granted permission
// resets the stored denial count.
func (g *Gate) Check(ctx context.Context) (Decision, error) {
	status, err := g.perm.Status(ctx)
	if err != nil {
		return RequestPermission, g.wrap("gate.status", err)
	}
	threshold := g.Threshold()

	if status == StatusGranted {
		if err := g.resetIfNeeded(ctx); err != nil {
			return Proceed, err
		}
		decisionsTotal.WithLabelValues(string(g.key), Proceed.String()).Inc()
		return Proceed, nil
	}

	rationale, err := g.perm.ShouldShowRationale(ctx)
	if err != nil {
		return RequestPermission, g.wrap("gate.rationale", err)
	}
	count, err := g.tracker.Get(ctx, g.key)
	if err != nil {
		return RequestPermission, g.wrapStorage("gate.count", err)
	}
	// A lowered threshold can leave a stored count above the cap.
	stored := count
	if status.terminalDenial() && count < threshold {
		count = threshold
	}
	count = min(count, threshold+1)
	if count != stored {
		if err := g.tracker.Set(ctx, g.key, count); err != nil {
			return DirectToSettings, g.wrapStorage("gate.count", err)
		}
	}

	d := Decide(false, rationale, count, threshold)
	decisionsTotal.WithLabelValues(string(g.key), d.String()).Inc()
	g.log.Debug().
		Str("status", status.String()).
		Bool("rationale", rationale).
		Int("denials", count).
		Int("threshold", threshold).
		Str("decision", d.String()).
		Msg("permission checked")
	return d, nil
}

// Request shows the platform dialog and records the answer.
func (g *Gate) Request(ctx context.Context) (Action, error) {
	prev, err := g.tracker.Get(ctx, g.key)
	if err != nil {
		return ActionNotifyDenied, g.wrapStorage("gate.count", err)
	}
	status, err := g.perm.Request(ctx)
	if err != nil {
		return ActionNotifyDenied, g.wrap("gate.request", err)
	}
	threshold := g.Threshold()

	count, action := ObserveResult(status == StatusGranted, prev, threshold)
	if status.terminalDenial() && action == ActionNotifyDenied {
		count, action = threshold, ActionDirectToSettings
	}
	if err := g.tracker.Set(ctx, g.key, count); err != nil {
		return action, g.wrapStorage("gate.count", err)
	}

	requestsTotal.WithLabelValues(string(g.key), action.String()).Inc()
	g.log.Info().
		Str("status", status.String()).
		Int("denials", count).
		Str("action", action.String()).
		Msg("permission request answered")
	return action, nil
}

// Ensure runs the whole flow behind a "scan" button: check, ask if
// needed, notify or offer settings. It returns nil only when the action may
// proceed.
func (g *Gate) Ensure(ctx context.Context) error {
	d, err := g.Check(ctx)
	if err != nil {
		return err
	}
	switch d {
	case Proceed:
		return nil
	case DirectToSettings:
		return g.directToSettings(ctx)
	}

	action, err := g.Request(ctx)
	if err != nil {
		return err
	}
	switch action {
	case ActionProceed:
		return nil
	case ActionNotifyDenied:
		if g.prompter != nil {
			g.prompter.NotifyDenied(ctx, g.key)
		}
		return ErrPermissionDenied
	default:
		return g.directToSettings(ctx)
	}
}

func (g *Gate) directToSettings(ctx context.Context) error {
	if g.prompter == nil || !g.prompter.ConfirmSettings(ctx, g.key) {
		g.log.Info().Msg("settings dialog dismissed")
		return ErrPermissionPermanentlyDenied
	}
	if err := g.perm.OpenSettings(ctx); err != nil {
		return g.wrap("gate.openSettings", err)
	}
	return fmt.Errorf("%w: opened app settings", ErrPermissionPermanentlyDenied)
}

func (g *Gate) resetIfNeeded(ctx context.Context) error {
	count, err := g.tracker.Get(ctx, g.key)
	if err != nil {
		return g.wrapStorage("gate.count", err)
	}
	if count == 0 {
		return nil
	}
	if err := g.tracker.Set(ctx, g.key, 0); err != nil {
		return g.wrapStorage("gate.count", err)
	}
	return nil
}

func (g *Gate) wrap(op string, err error) error {
	return &errors.ScanError{Op: op, Kind: errors.KindPermission, Err: err}
}

func (g *Gate) wrapStorage(op string, err error) error {
	return &errors.ScanError{Op: op, Kind: errors.KindStorage, Err: err}
}
