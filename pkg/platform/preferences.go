package platform

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/go-drift/scan/pkg/settings"
)

const preferencesChannelName = "scan/preferences"

// Preferences stores settings in the native key-value store
// (SharedPreferences on Android, UserDefaults on iOS). It satisfies
// settings.Store.
type Preferences struct {
	channel *MethodChannel
	closed  atomic.Bool
}

// NewPreferences returns the native preferences client.
func NewPreferences() *Preferences {
	return &Preferences{channel: NewMethodChannel(preferencesChannelName)}
}

func (p *Preferences) args(namespace, key string) (map[string]any, error) {
	if p.closed.Load() {
		return nil, settings.ErrClosed
	}
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(key) == "" {
		return nil, settings.ErrInvalidKey
	}
	return map[string]any{"namespace": namespace, "key": key}, nil
}

func (p *Preferences) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	args, err := p.args(namespace, key)
	if err != nil {
		return "", false, err
	}
	result, err := p.channel.InvokeContext(ctx, "get", args)
	if err != nil {
		return "", false, err
	}
	m := asFields(result)
	if !m.flag("found") {
		return "", false, nil
	}
	return m.str("value"), true, nil
}

func (p *Preferences) Set(ctx context.Context, namespace, key, value string) error {
	args, err := p.args(namespace, key)
	if err != nil {
		return err
	}
	args["value"] = value
	_, err = p.channel.InvokeContext(ctx, "set", args)
	return err
}

func (p *Preferences) Delete(ctx context.Context, namespace, key string) error {
	args, err := p.args(namespace, key)
	if err != nil {
		return err
	}
	_, err = p.channel.InvokeContext(ctx, "remove", args)
	return err
}

// Close marks the client closed. The native store stays available to
// other clients.
func (p *Preferences) Close() error {
	p.closed.Store(true)
	return nil
}

var _ settings.Store = (*Preferences)(nil)
