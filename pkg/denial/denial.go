// Package denial records how many consecutive times the user has denied a
// runtime permission, so the gate can decide when to stop asking and send
// the user to system settings instead.
package denial

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-drift/scan/pkg/settings"
)

// Namespace is the settings namespace holding denial counts.
const Namespace = "permission_denials"

// ErrNegativeCount is returned when storing a count below zero.
var ErrNegativeCount = errors.New("denial: count must not be negative")

// Key identifies a requestable capability, such as camera access.
type Key string

// Camera is the key for camera access.
const Camera Key = "camera"

// Tracker reads and writes per-key denial counts. Counts are durable across
// restarts. Callers serialize access; the last write wins.
type Tracker interface {
	// Get returns the count for key, or 0 if none was recorded.
	Get(ctx context.Context, key Key) (int, error)
	Set(ctx context.Context, key Key, value int) error
}

// StoreTracker keeps counts in a settings store.
type StoreTracker struct {
	scope settings.Scope
}

// NewStoreTracker returns a tracker backed by store.
func NewStoreTracker(store settings.Store) *StoreTracker {
	return &StoreTracker{scope: settings.Namespace(store, Namespace)}
}

func (t *StoreTracker) Get(ctx context.Context, key Key) (int, error) {
	n, err := t.scope.Int(ctx, string(key), 0)
	if err != nil {
		return 0, fmt.Errorf("denial: read %s: %w", key, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

func (t *StoreTracker) Set(ctx context.Context, key Key, value int) error {
	if value < 0 {
		return ErrNegativeCount
	}
	if value == 0 {
		if err := t.scope.Delete(ctx, string(key)); err != nil {
			return fmt.Errorf("denial: reset %s: %w", key, err)
		}
		return nil
	}
	if err := t.scope.SetInt(ctx, string(key), value); err != nil {
		return fmt.Errorf("denial: write %s: %w", key, err)
	}
	return nil
}

// Reset sets the count for key back to zero.
func Reset(ctx context.Context, t Tracker, key Key) error {
	return t.Set(ctx, key, 0)
}
