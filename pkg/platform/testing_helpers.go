package platform

import "sync"

// TestBridge is a NativeBridge for tests. Calls are recorded and answered
// by Handler; a nil Handler answers every call with nil.
type TestBridge struct {
	Handler func(channel, method string, args any) (any, error)

	mu      sync.Mutex
	calls   []TestCall
	streams map[string]bool
}

// TestCall is one recorded method invocation.
type TestCall struct {
	Channel string
	Method  string
	Args    map[string]any
}

func (b *TestBridge) InvokeMethod(channel, method string, args []byte) ([]byte, error) {
	decoded, err := DefaultCodec.Decode(args)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.calls = append(b.calls, TestCall{Channel: channel, Method: method, Args: asFields(decoded)})
	b.mu.Unlock()

	if b.Handler == nil {
		return DefaultCodec.Encode(nil)
	}
	result, err := b.Handler(channel, method, decoded)
	if err != nil {
		return nil, err
	}
	return DefaultCodec.Encode(result)
}

func (b *TestBridge) StartEventStream(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streams == nil {
		b.streams = make(map[string]bool)
	}
	b.streams[channel] = true
	return nil
}

func (b *TestBridge) StopEventStream(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.streams, channel)
	return nil
}

// Calls returns the recorded invocations for method, or all of them when
// method is empty.
func (b *TestBridge) Calls(method string) []TestCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []TestCall
	for _, c := range b.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Streaming reports whether the native stream for channel is started.
func (b *TestBridge) Streaming(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[channel]
}

// SetupTestBridge installs bridge (a fresh TestBridge when nil) and a
// synchronous dispatch function. cleanup is normally t.Cleanup; it
// registers ResetForTest.
//
//	bridge := platform.SetupTestBridge(t.Cleanup, nil)
func SetupTestBridge(cleanup func(func()), bridge *TestBridge) *TestBridge {
	if bridge == nil {
		bridge = &TestBridge{}
	}
	SetNativeBridge(bridge)
	RegisterDispatch(func(cb func()) { cb() })
	cleanup(ResetForTest)
	return bridge
}
