package theme

import (
	"context"
	"testing"

	"github.com/go-drift/scan/pkg/settings"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"light", ModeLight, false},
		{"dark", ModeDark, false},
		{"system", ModeSystem, false},
		{"sepia", ModeSystem, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestResolve(t *testing.T) {
	dark := func() Brightness { return BrightnessDark }
	if ModeSystem.Resolve(dark) != BrightnessDark {
		t.Error("system mode should follow the device")
	}
	if ModeSystem.Resolve(nil) != BrightnessLight {
		t.Error("system mode without a provider should be light")
	}
	if ModeLight.Resolve(dark) != BrightnessLight {
		t.Error("light mode must ignore the device")
	}
}

func TestPreferencePersistsAcrossLoads(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemoryStore()

	p := NewPreference(store, nil)
	if m, err := p.Load(ctx); err != nil || m != ModeSystem {
		t.Fatalf("initial Load = %v, %v", m, err)
	}
	if m, err := p.Toggle(ctx); err != nil || m != ModeDark {
		t.Fatalf("Toggle = %v, %v", m, err)
	}

	reloaded := NewPreference(store, nil)
	if m, _ := reloaded.Load(ctx); m != ModeDark {
		t.Errorf("reloaded mode = %v, want dark", m)
	}
	if m, _ := reloaded.Toggle(ctx); m != ModeLight {
		t.Errorf("second Toggle = %v, want light", m)
	}
}

func TestPreferenceInvalidStoredValue(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemoryStore()
	if err := store.Set(ctx, Namespace, "mode", "neon"); err != nil {
		t.Fatal(err)
	}
	p := NewPreference(store, nil)
	if m, err := p.Load(ctx); err != nil || m != ModeSystem {
		t.Errorf("Load = %v, %v, want system", m, err)
	}
}

func TestPreferenceListeners(t *testing.T) {
	ctx := context.Background()
	p := NewPreference(settings.NewMemoryStore(), func() Brightness { return BrightnessDark })

	var got []Mode
	stop := p.Listen(func(m Mode) { got = append(got, m) })

	p.Toggle(ctx) // system resolves dark, so this selects light
	p.Set(ctx, ModeLight)
	stop()
	p.Set(ctx, ModeDark)

	if len(got) != 1 || got[0] != ModeLight {
		t.Errorf("notifications = %v, want [light]", got)
	}
}
