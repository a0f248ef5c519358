// Package gate decides whether a privileged action such as opening the
// camera may proceed, should ask the user for permission, or should send
// the user to system settings after repeated denials.
//
// Decide and ObserveResult are pure functions of their inputs. Gate wires
// them to the platform permission API, the denial tracker and the UI.
package gate

// DefaultThreshold is the number of consecutive denials after which the
// gate stops asking and directs the user to settings.
const DefaultThreshold = 2

// Decision is the outcome of checking a permission before an action.
type Decision int

const (
	// Proceed means the permission is granted.
	Proceed Decision = iota
	// RequestPermission means the platform dialog should be shown.
	RequestPermission
	// DirectToSettings means asking again is pointless; offer system settings.
	DirectToSettings
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case RequestPermission:
		return "request_permission"
	case DirectToSettings:
		return "direct_to_settings"
	default:
		return "unknown"
	}
}

// Action is what the caller does after the user answered a request.
type Action int

const (
	// ActionProceed means the permission was granted.
	ActionProceed Action = iota
	// ActionNotifyDenied means show a transient denial notice.
	ActionNotifyDenied
	// ActionDirectToSettings means offer to open system settings.
	ActionDirectToSettings
)

func (a Action) String() string {
	switch a {
	case ActionProceed:
		return "proceed"
	case ActionNotifyDenied:
		return "notify_denied"
	case ActionDirectToSettings:
		return "direct_to_settings"
	default:
		return "unknown"
	}
}

// Decide returns the decision for the current grant state. A granted
// permission always proceeds; the caller resets the denial count.
func Decide(granted, canShowRationale bool, denialCount, threshold int) Decision {
	if granted {
		return Proceed
	}
	if !canShowRationale {
		// No rationale: never asked, or denied with "don't ask again".
		if denialCount >= threshold {
			return DirectToSettings
		}
		return RequestPermission
	}
	if denialCount < threshold {
		return RequestPermission
	}
	return DirectToSettings
}

// ObserveResult folds a request outcome into the denial count. The count
// never exceeds threshold+1; further denials hold it there.
func ObserveResult(granted bool, previousCount, threshold int) (int, Action) {
	if granted {
		return 0, ActionProceed
	}
	next := previousCount + 1
	if next >= threshold {
		return min(next, threshold+1), ActionDirectToSettings
	}
	return next, ActionNotifyDenied
}
