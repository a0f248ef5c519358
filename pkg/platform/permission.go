package platform

import (
	"context"
	"sync"
	"time"

	"github.com/go-drift/scan/pkg/errors"
	"github.com/go-drift/scan/pkg/gate"
)

// DefaultPermissionTimeout bounds Request when ctx has no deadline.
const DefaultPermissionTimeout = 60 * time.Second

const (
	permissionsChannelName = "scan/permissions"
	permissionChangesName  = "scan/permissions/changes"
)

var (
	permissionsOnce    sync.Once
	permissionsChannel *MethodChannel
	permissionChanges  *EventChannel
)

func permissionChannels() (*MethodChannel, *EventChannel) {
	permissionsOnce.Do(func() {
		permissionsChannel = NewMethodChannel(permissionsChannelName)
		permissionChanges = NewEventChannel(permissionChangesName)
	})
	return permissionsChannel, permissionChanges
}

// RuntimePermission is a native runtime permission. It satisfies
// gate.Permission.
type RuntimePermission struct {
	name    string
	channel *MethodChannel
	changes *EventChannel

	// Only one system dialog can be shown at a time.
	requestMu sync.Mutex
}

// NewRuntimePermission returns the permission with the given native name.
func NewRuntimePermission(name string) *RuntimePermission {
	ch, changes := permissionChannels()
	return &RuntimePermission{name: name, channel: ch, changes: changes}
}

// NewCameraPermission returns the camera permission.
func NewCameraPermission() *RuntimePermission {
	return NewRuntimePermission("camera")
}

// Name returns the native permission name.
func (p *RuntimePermission) Name() string {
	return p.name
}

// Status returns the current status of the permission.
func (p *RuntimePermission) Status(ctx context.Context) (gate.Status, error) {
	result, err := p.channel.InvokeContext(ctx, "check", map[string]any{
		"permission": p.name,
	})
	if err != nil {
		return gate.StatusUnknown, err
	}
	return parseStatusResult(result), nil
}

// ShouldShowRationale reports whether the platform would show the dialog
// again with a rationale. Always false on iOS.
func (p *RuntimePermission) ShouldShowRationale(ctx context.Context) (bool, error) {
	result, err := p.channel.InvokeContext(ctx, "shouldShowRationale", map[string]any{
		"permission": p.name,
	})
	if err != nil {
		return false, err
	}
	return asFields(result).flag("shouldShow"), nil
}

// Request shows the system dialog and blocks until the user answers or ctx
// ends. A permission already granted, permanently denied or restricted is
// returned without a dialog.
func (p *RuntimePermission) Request(ctx context.Context) (gate.Status, error) {
	p.requestMu.Lock()
	defer p.requestMu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultPermissionTimeout)
		defer cancel()
	}

	current, err := p.Status(ctx)
	if err != nil {
		return gate.StatusUnknown, err
	}
	if isTerminalStatus(current) {
		return current, nil
	}

	// Subscribe before triggering the dialog so the answer cannot be missed.
	resultChan := make(chan gate.Status, 1)
	sub := p.changes.Listen(EventHandler{
		OnEvent: func(data any) {
			name, status, ok := parsePermissionChange(data)
			if ok && name == p.name {
				select {
				case resultChan <- status:
				default:
				}
			}
		},
		OnError: func(err error) {
			errors.Report(&errors.ScanError{
				Op:      "permissions.request",
				Kind:    errors.KindPermission,
				Channel: permissionChangesName,
				Err:     err,
			})
		},
	})
	defer sub.Cancel()

	if _, err := p.channel.Invoke("request", map[string]any{"permission": p.name}); err != nil {
		return gate.StatusUnknown, err
	}

	select {
	case status := <-resultChan:
		return status, nil
	case <-ctx.Done():
		// The event may have been missed; ask once more.
		if final, err := p.Status(context.Background()); err == nil && isTerminalStatus(final) {
			return final, nil
		}
		return gate.StatusUnknown, ctxErr(ctx)
	}
}

// OpenSettings opens the app's page in system settings.
func (p *RuntimePermission) OpenSettings(ctx context.Context) error {
	return OpenAppSettings(ctx)
}

// Listen subscribes to status changes of this permission.
func (p *RuntimePermission) Listen(handler func(gate.Status)) (unsubscribe func()) {
	stream := NewStream(p.changes, func(data any) (permissionChange, error) {
		name, status, ok := parsePermissionChange(data)
		if !ok {
			return permissionChange{}, parseError(permissionChangesName, "PermissionChange", data)
		}
		return permissionChange{name: name, status: status}, nil
	})
	return stream.Listen(func(c permissionChange) {
		if c.name == p.name {
			handler(c.status)
		}
	})
}

// OpenAppSettings opens the system settings page for this app, where the
// user can grant a permanently denied permission.
func OpenAppSettings(ctx context.Context) error {
	ch, _ := permissionChannels()
	_, err := ch.InvokeContext(ctx, "openSettings", nil)
	return err
}

type permissionChange struct {
	name   string
	status gate.Status
}

func isTerminalStatus(s gate.Status) bool {
	switch s {
	case gate.StatusGranted, gate.StatusPermanentlyDenied, gate.StatusRestricted:
		return true
	default:
		return false
	}
}

// ParseStatus maps a native status string to gate.Status.
func ParseStatus(s string) gate.Status {
	switch s {
	case "granted", "limited":
		return gate.StatusGranted
	case "denied":
		return gate.StatusDenied
	case "permanently_denied":
		return gate.StatusPermanentlyDenied
	case "restricted":
		return gate.StatusRestricted
	case "not_determined":
		return gate.StatusNotDetermined
	default:
		return gate.StatusUnknown
	}
}

func parseStatusResult(result any) gate.Status {
	return ParseStatus(asFields(result).str("status"))
}

func parsePermissionChange(data any) (string, gate.Status, bool) {
	m := asFields(data)
	if m == nil {
		return "", gate.StatusUnknown, false
	}
	return m.str("permission"), ParseStatus(m.str("status")), true
}
