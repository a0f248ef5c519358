// Package history keeps the list of recent scan results shown on the home
// screen.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/go-drift/scan/pkg/barcode"
	"github.com/go-drift/scan/pkg/capture"
)

// DefaultLimit is the number of entries kept when no limit is configured.
const DefaultLimit = 100

var (
	// ErrEmptyEntry is returned when adding an entry without text.
	ErrEmptyEntry = errors.New("history: entry text is empty")

	// ErrClosed is returned when using a store after Close.
	ErrClosed = errors.New("history: store closed")
)

// Entry is one scan result.
type Entry struct {
	// ID is a ULID; IDs sort in scan order.
	ID        string
	Text      string
	Formats   []barcode.Symbology
	ScannedAt time.Time
}

// Store holds the most recent entries up to its limit; adding beyond the
// limit drops the oldest.
type Store interface {
	// Add assigns an ID if the entry has none and stores it.
	Add(ctx context.Context, e Entry) (Entry, error)
	// List returns up to limit entries, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Entry, error)
	Clear(ctx context.Context) error
	Close() error
}

// FromResult builds an entry from a decoded capture result.
func FromResult(r capture.Result) Entry {
	at := r.ScannedAt
	if at.IsZero() {
		at = time.Now()
	}
	return Entry{
		Text:      r.Text,
		Formats:   barcode.Formats(r.Codes),
		ScannedAt: at,
	}
}

// prepare validates e and fills in the ID and timestamp.
func prepare(e Entry) (Entry, error) {
	if e.Text == "" {
		return e, ErrEmptyEntry
	}
	if e.ScannedAt.IsZero() {
		e.ScannedAt = time.Now()
	}
	if e.ID == "" {
		id, err := ulid.New(ulid.Timestamp(e.ScannedAt), ulid.DefaultEntropy())
		if err != nil {
			return e, fmt.Errorf("history: new id: %w", err)
		}
		e.ID = id.String()
	}
	return e, nil
}

func joinFormats(formats []barcode.Symbology) string {
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

func splitFormats(s string) []barcode.Symbology {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]barcode.Symbology, len(parts))
	for i, p := range parts {
		out[i] = barcode.Symbology(p)
	}
	return out
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	Path    string
	Limit   int
}

// Open creates the store described by cfg. Backends other than sqlite keep
// history in memory.
func Open(cfg Config) (Store, error) {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendSQLite:
		return OpenSQLiteStore(cfg.Path, limit)
	default:
		return NewMemoryStore(limit), nil
	}
}
