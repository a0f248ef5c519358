package fixture

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-drift/scan/pkg/denial"
	"github.com/go-drift/scan/pkg/gate"
)

// Permission answers permission requests from a script of statuses. The
// last answer repeats once the script runs out. Until the first request
// the status is gate.StatusNotDetermined.
type Permission struct {
	mu        sync.Mutex
	answers   []gate.Status
	current   gate.Status
	rationale bool
	requests  int
	settings  int
}

// NewPermission returns a permission that answers requests with answers
// in order.
func NewPermission(answers ...gate.Status) *Permission {
	if len(answers) == 0 {
		answers = []gate.Status{gate.StatusGranted}
	}
	return &Permission{answers: answers, current: gate.StatusNotDetermined}
}

func (p *Permission) Status(context.Context) (gate.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

// ShouldShowRationale follows the Android rule: true after a plain
// denial, false before the first request and after a terminal denial.
func (p *Permission) ShouldShowRationale(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rationale, nil
}

func (p *Permission) Request(ctx context.Context) (gate.Status, error) {
	if err := ctx.Err(); err != nil {
		return gate.StatusUnknown, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	i := min(p.requests, len(p.answers)-1)
	p.requests++
	p.current = p.answers[i]
	p.rationale = p.current == gate.StatusDenied
	return p.current, nil
}

func (p *Permission) OpenSettings(context.Context) error {
	p.mu.Lock()
	p.settings++
	p.mu.Unlock()
	return nil
}

// Requests returns how many system dialogs were shown.
func (p *Permission) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// SettingsOpened returns how many times app settings were opened.
func (p *Permission) SettingsOpened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// Prompter prints gate prompts to a writer.
type Prompter struct {
	Out io.Writer
	// OpenSettings is the answer given to the settings dialog.
	OpenSettings bool
}

func (p Prompter) NotifyDenied(_ context.Context, key denial.Key) {
	fmt.Fprintf(p.Out, "permission denied: %s\n", key)
}

func (p Prompter) ConfirmSettings(_ context.Context, key denial.Key) bool {
	answer := "cancel"
	if p.OpenSettings {
		answer = "open settings"
	}
	fmt.Fprintf(p.Out, "%s permission is required; enable it in app settings [%s]\n", key, answer)
	return p.OpenSettings
}
