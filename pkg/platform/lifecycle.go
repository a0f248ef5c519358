package platform

import (
	"sync"

	"github.com/go-drift/scan/pkg/errors"
)

const lifecycleEventsName = "scan/lifecycle/events"

// Lifecycle tracks the app lifecycle reported by the host.
var Lifecycle = newLifecycleService()

// LifecycleService manages app lifecycle events.
type LifecycleService struct {
	channel  *MethodChannel
	events   *EventChannel
	state    LifecycleState
	handlers map[int]LifecycleHandler
	nextID   int
	mu       sync.RWMutex
}

// LifecycleState represents the current app lifecycle state.
type LifecycleState string

const (
	// LifecycleStateResumed indicates the app is visible and responding to user input.
	LifecycleStateResumed LifecycleState = "resumed"

	// LifecycleStateInactive indicates the app is transitioning, for example
	// while a system dialog such as the permission prompt is shown.
	LifecycleStateInactive LifecycleState = "inactive"

	// LifecycleStatePaused indicates the app is not visible but still running.
	LifecycleStatePaused LifecycleState = "paused"

	// LifecycleStateDetached indicates the app is still hosted but detached
	// from any view. Camera resources must be released.
	LifecycleStateDetached LifecycleState = "detached"
)

// LifecycleHandler is called when lifecycle state changes.
type LifecycleHandler func(state LifecycleState)

func newLifecycleService() *LifecycleService {
	l := &LifecycleService{
		channel:  NewMethodChannel("scan/lifecycle"),
		events:   NewEventChannel(lifecycleEventsName),
		state:    LifecycleStateResumed,
		handlers: make(map[int]LifecycleHandler),
	}
	l.listen()

	l.channel.SetHandler(func(method string, args any) (any, error) {
		switch method {
		case "didChangeState":
			state := asFields(args).str("state")
			if state == "" {
				return nil, ErrInvalidArguments
			}
			l.updateState(LifecycleState(state))
			return nil, nil
		default:
			return nil, ErrMethodNotFound
		}
	})

	registerReset(func() {
		l.mu.Lock()
		l.state = LifecycleStateResumed
		l.handlers = make(map[int]LifecycleHandler)
		l.mu.Unlock()
		l.listen()
	})
	return l
}

func (l *LifecycleService) listen() {
	l.events.Listen(EventHandler{
		OnEvent: func(data any) {
			state := asFields(data).str("state")
			if state == "" {
				errors.Report(&errors.ScanError{
					Op:      "lifecycle.parseEvent",
					Kind:    errors.KindParsing,
					Channel: lifecycleEventsName,
					Err:     parseError(lifecycleEventsName, "LifecycleState", data),
				})
				return
			}
			l.updateState(LifecycleState(state))
		},
		OnError: func(err error) {
			reportPlatform("lifecycle.streamError", lifecycleEventsName, err)
		},
	})
}

// State returns the current lifecycle state.
func (l *LifecycleService) State() LifecycleState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// AddHandler registers a handler to be called on lifecycle changes.
// The returned function removes it.
func (l *LifecycleService) AddHandler(handler LifecycleHandler) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = handler
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}
}

// IsResumed returns true if the app is in the resumed state.
func (l *LifecycleService) IsResumed() bool {
	return l.State() == LifecycleStateResumed
}

// updateState updates the lifecycle state and notifies handlers.
func (l *LifecycleService) updateState(newState LifecycleState) {
	l.mu.Lock()
	if l.state == newState {
		l.mu.Unlock()
		return
	}
	l.state = newState
	handlers := make([]LifecycleHandler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(newState)
	}
}
