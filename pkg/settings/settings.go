// Package settings provides the durable, namespaced key-value store that
// holds app preferences such as the theme mode and permission denial counts.
//
// Values are strings at rest; Scope adds typed accessors. Backends are
// chosen with Open.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrClosed is returned when using a store after Close.
	ErrClosed = errors.New("settings: store closed")

	// ErrInvalidKey is returned for an empty namespace or key.
	ErrInvalidKey = errors.New("settings: namespace and key are required")

	// ErrInvalidValue is returned when a stored value cannot be parsed as
	// the requested type.
	ErrInvalidValue = errors.New("settings: invalid stored value")
)

// Store is a durable key-value store scoped by namespace. Access is last
// writer wins; no transactions are offered.
type Store interface {
	// Get returns the value and true, or "" and false when absent.
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, value string) error
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, namespace, key string) error
	Close() error
}

func validate(namespace, key string) error {
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}

// Scope is a view of one namespace with typed accessors.
type Scope struct {
	store     Store
	namespace string
}

// Namespace returns a Scope over namespace in store.
func Namespace(store Store, namespace string) Scope {
	return Scope{store: store, namespace: namespace}
}

// Name returns the namespace.
func (s Scope) Name() string {
	return s.namespace
}

// String returns the value for key, or def when absent.
func (s Scope) String(ctx context.Context, key, def string) (string, error) {
	v, ok, err := s.store.Get(ctx, s.namespace, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// SetString stores value under key.
func (s Scope) SetString(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.namespace, key, value)
}

// Int returns the integer stored under key, or def when absent.
func (s Scope) Int(ctx context.Context, key string, def int) (int, error) {
	v, ok, err := s.store.Get(ctx, s.namespace, key)
	if err != nil || !ok {
		return def, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%w: %s/%s=%q", ErrInvalidValue, s.namespace, key, v)
	}
	return n, nil
}

// SetInt stores an integer under key.
func (s Scope) SetInt(ctx context.Context, key string, value int) error {
	return s.store.Set(ctx, s.namespace, key, strconv.Itoa(value))
}

// Bool returns the boolean stored under key, or def when absent.
func (s Scope) Bool(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := s.store.Get(ctx, s.namespace, key)
	if err != nil || !ok {
		return def, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%w: %s/%s=%q", ErrInvalidValue, s.namespace, key, v)
	}
	return b, nil
}

// SetBool stores a boolean under key.
func (s Scope) SetBool(ctx context.Context, key string, value bool) error {
	return s.store.Set(ctx, s.namespace, key, strconv.FormatBool(value))
}

// Delete removes key from the namespace.
func (s Scope) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, s.namespace, key)
}
