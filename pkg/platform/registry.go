package platform

import (
	stderrors "errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/go-drift/scan/pkg/errors"
)

// channelTable maps channel names to channels. Registering a name twice
// replaces the earlier channel.
type channelTable[T any] struct {
	mu sync.RWMutex
	m  map[string]T
}

func newChannelTable[T any]() *channelTable[T] {
	return &channelTable[T]{m: make(map[string]T)}
}

func (t *channelTable[T]) put(name string, ch T) {
	t.mu.Lock()
	t.m[name] = ch
	t.mu.Unlock()
}

func (t *channelTable[T]) get(name string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ch, ok := t.m[name]
	return ch, ok
}

func (t *channelTable[T]) all() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Collect(maps.Values(t.m))
}

var (
	methodChannels = newChannelTable[*MethodChannel]()
	eventChannels  = newChannelTable[*EventChannel]()
)

// NativeBridge defines the interface for calling native platform code.
type NativeBridge interface {
	// InvokeMethod calls a method on the native side.
	InvokeMethod(channel, method string, args []byte) ([]byte, error)

	// StartEventStream tells native to start sending events for a channel.
	StartEventStream(channel string) error

	// StopEventStream tells native to stop sending events for a channel.
	StopEventStream(channel string) error
}

var (
	bridgeMu     sync.RWMutex
	nativeBridge NativeBridge
)

func currentBridge() NativeBridge {
	bridgeMu.RLock()
	defer bridgeMu.RUnlock()
	return nativeBridge
}

func bridgeInstalled() bool {
	return currentBridge() != nil
}

// SetNativeBridge installs the native bridge. Event channels that gained
// subscribers before the bridge existed have their streams started now;
// start failures go to the subscribers' error handlers.
func SetNativeBridge(bridge NativeBridge) {
	bridgeMu.Lock()
	nativeBridge = bridge
	bridgeMu.Unlock()
	if bridge == nil {
		return
	}

	for _, ch := range eventChannels.all() {
		if err := ch.ensureStarted(); err != nil {
			ch.dispatchError(err)
		}
	}
}

// invokeNative calls a method on the native side.
func invokeNative(channel, method string, args any) (any, error) {
	bridge := currentBridge()
	if bridge == nil {
		return nil, ErrPlatformUnavailable
	}

	argsData, err := DefaultCodec.Encode(args)
	if err != nil {
		return nil, err
	}
	resultData, err := bridge.InvokeMethod(channel, method, argsData)
	if err != nil {
		return nil, err
	}
	return DefaultCodec.Decode(resultData)
}

func reportPlatform(op, channel string, err error) {
	errors.Report(&errors.ScanError{
		Op:      op,
		Kind:    errors.KindPlatform,
		Channel: channel,
		Err:     err,
	})
}

// startEventStream notifies native to start sending events.
func startEventStream(channel string) error {
	bridge := currentBridge()
	if bridge == nil {
		reportPlatform("platform.startEventStream", channel, ErrPlatformUnavailable)
		return ErrPlatformUnavailable
	}
	if err := bridge.StartEventStream(channel); err != nil {
		reportPlatform("platform.startEventStream", channel, err)
		return err
	}
	return nil
}

// stopEventStream notifies native to stop sending events. ErrClosed is
// expected during shutdown and not reported.
func stopEventStream(channel string) error {
	bridge := currentBridge()
	if bridge == nil {
		return ErrPlatformUnavailable
	}
	if err := bridge.StopEventStream(channel); err != nil {
		if !stderrors.Is(err, ErrClosed) {
			reportPlatform("platform.stopEventStream", channel, err)
		}
		return err
	}
	return nil
}

// HandleMethodCall is called from the bridge when native invokes a Go method.
func HandleMethodCall(channel, method string, argsData []byte) ([]byte, error) {
	ch, ok := methodChannels.get(channel)
	if !ok {
		return nil, ErrChannelNotFound
	}

	args, err := DefaultCodec.Decode(argsData)
	if err != nil {
		return nil, err
	}
	result, err := ch.handleCall(method, args)
	if err != nil {
		return nil, err
	}
	return DefaultCodec.Encode(result)
}

// ErrChannelNotRegistered is returned for events on a channel nobody created.
var ErrChannelNotRegistered = stderrors.New("event channel not registered")

func lookupEvent(op, channel string) (*EventChannel, error) {
	ch, ok := eventChannels.get(channel)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrChannelNotRegistered, channel)
		reportPlatform(op, channel, err)
		return nil, err
	}
	return ch, nil
}

// HandleEvent is called from the bridge when native sends an event.
func HandleEvent(channel string, eventData []byte) error {
	ch, err := lookupEvent("platform.HandleEvent", channel)
	if err != nil {
		return err
	}
	data, err := DefaultCodec.Decode(eventData)
	if err != nil {
		ch.dispatchError(err)
		return err
	}
	ch.dispatchEvent(data)
	return nil
}

// HandleEventError is called from the bridge when an event stream errors.
func HandleEventError(channel string, code, message string) error {
	ch, err := lookupEvent("platform.HandleEventError", channel)
	if err != nil {
		return err
	}
	ch.dispatchError(NewChannelError(code, message))
	return nil
}

// HandleEventDone is called from the bridge when an event stream ends.
func HandleEventDone(channel string) error {
	ch, err := lookupEvent("platform.HandleEventDone", channel)
	if err != nil {
		return err
	}
	ch.dispatchDone()
	return nil
}

// resetHooks restore package-level services to their initial state.
var resetHooks []func()

func registerReset(fn func()) {
	resetHooks = append(resetHooks, fn)
}

// ResetForTest clears the bridge, the dispatcher, every event subscription,
// and the state of the package-level services. Tests only.
func ResetForTest() {
	bridgeMu.Lock()
	nativeBridge = nil
	bridgeMu.Unlock()

	for _, ch := range eventChannels.all() {
		ch.mu.Lock()
		ch.subscriptions = nil
		ch.started = false
		ch.mu.Unlock()
	}

	dispatchMu.Lock()
	dispatchFunc = nil
	dispatchMu.Unlock()

	for _, fn := range resetHooks {
		fn()
	}
}
