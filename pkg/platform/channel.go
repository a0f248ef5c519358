package platform

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// MethodHandler handles incoming method calls on a channel.
type MethodHandler func(method string, args any) (any, error)

// MethodChannel carries method calls in both directions: Go invokes native
// methods, native code calls the handler set with SetHandler.
type MethodChannel struct {
	name    string
	codec   MessageCodec
	handler atomic.Pointer[MethodHandler]
}

// NewMethodChannel creates a method channel and registers it by name.
func NewMethodChannel(name string) *MethodChannel {
	ch := &MethodChannel{
		name:  name,
		codec: DefaultCodec,
	}
	methodChannels.put(name, ch)
	return ch
}

// Name returns the channel name.
func (c *MethodChannel) Name() string {
	return c.name
}

// SetHandler sets the handler for calls from native code. It may be
// replaced while calls are in flight.
func (c *MethodChannel) SetHandler(handler MethodHandler) {
	c.handler.Store(&handler)
}

// Invoke calls a method on the native side and blocks for the result.
func (c *MethodChannel) Invoke(method string, args any) (any, error) {
	return invokeNative(c.name, method, args)
}

// InvokeContext is Invoke bounded by ctx. If ctx ends first the native call
// keeps running but its result is discarded.
func (c *MethodChannel) InvokeContext(ctx context.Context, method string, args any) (any, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if ctx.Done() == nil {
		return c.Invoke(method, args)
	}

	type reply struct {
		result any
		err    error
	}
	done := make(chan reply, 1)
	go func() {
		result, err := c.Invoke(method, args)
		done <- reply{result, err}
	}()
	select {
	case r := <-done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctxErr(ctx)
	}
}

func (c *MethodChannel) handleCall(method string, args any) (any, error) {
	h := c.handler.Load()
	if h == nil || *h == nil {
		return nil, ErrMethodNotFound
	}
	return (*h)(method, args)
}

// EventHandler receives events from an EventChannel.
type EventHandler struct {
	OnEvent func(data any)
	OnError func(err error)
	OnDone  func()
}

// Subscription represents an active event subscription.
type Subscription struct {
	channel  *EventChannel
	handler  *EventHandler
	canceled atomic.Bool
}

// Cancel stops receiving events on this subscription.
func (s *Subscription) Cancel() {
	if s.canceled.CompareAndSwap(false, true) {
		s.channel.removeSubscription(s)
	}
}

// IsCanceled returns true if this subscription has been canceled.
func (s *Subscription) IsCanceled() bool {
	return s.canceled.Load()
}

// EventChannel provides stream-based event communication from native to Go.
// The native stream is started on the first subscription and stopped when
// the last one is canceled.
type EventChannel struct {
	name          string
	codec         MessageCodec
	subscriptions []*Subscription
	started       bool
	mu            sync.Mutex
}

// NewEventChannel creates an event channel and registers it by name.
func NewEventChannel(name string) *EventChannel {
	ch := &EventChannel{
		name:  name,
		codec: DefaultCodec,
	}
	eventChannels.put(name, ch)
	return ch
}

// Name returns the channel name.
func (c *EventChannel) Name() string {
	return c.name
}

// Listen subscribes to events on this channel. If no bridge is installed
// yet, the native stream starts when SetNativeBridge is called. A start
// failure is passed to handler.OnError; the subscription still exists.
func (c *EventChannel) Listen(handler EventHandler) *Subscription {
	sub := &Subscription{
		channel: c,
		handler: &handler,
	}
	c.mu.Lock()
	c.subscriptions = append(c.subscriptions, sub)
	c.mu.Unlock()

	if err := c.ensureStarted(); err != nil && handler.OnError != nil {
		handler.OnError(err)
	}
	return sub
}

// ensureStarted starts the native stream if the channel has subscribers, a
// bridge is installed and the stream is not running yet.
func (c *EventChannel) ensureStarted() error {
	c.mu.Lock()
	claim := !c.started && len(c.subscriptions) > 0 && bridgeInstalled()
	if claim {
		c.started = true
	}
	c.mu.Unlock()
	if !claim {
		return nil
	}

	err := startEventStream(c.name)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
	}
	return err
}

func (c *EventChannel) removeSubscription(sub *Subscription) {
	c.mu.Lock()
	c.subscriptions = slices.DeleteFunc(c.subscriptions, func(s *Subscription) bool { return s == sub })
	stop := c.started && len(c.subscriptions) == 0
	if stop {
		c.started = false
	}
	c.mu.Unlock()

	if stop {
		// Failures are reported by stopEventStream.
		_ = stopEventStream(c.name)
	}
}

// each calls fn for every live subscription. The list is copied first so
// handlers may cancel or subscribe.
func (c *EventChannel) each(fn func(h *EventHandler)) {
	c.mu.Lock()
	subs := slices.Clone(c.subscriptions)
	c.mu.Unlock()
	for _, sub := range subs {
		if !sub.IsCanceled() {
			fn(sub.handler)
		}
	}
}

func (c *EventChannel) dispatchEvent(data any) {
	c.each(func(h *EventHandler) {
		if h.OnEvent != nil {
			h.OnEvent(data)
		}
	})
}

func (c *EventChannel) dispatchError(err error) {
	c.each(func(h *EventHandler) {
		if h.OnError != nil {
			h.OnError(err)
		}
	})
}

// dispatchDone ends the stream: every subscription is canceled and told.
func (c *EventChannel) dispatchDone() {
	c.mu.Lock()
	subs := c.subscriptions
	c.subscriptions = nil
	c.started = false
	c.mu.Unlock()

	for _, sub := range subs {
		if sub.canceled.CompareAndSwap(false, true) && sub.handler.OnDone != nil {
			sub.handler.OnDone()
		}
	}
}
