package gate

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		granted   bool
		rationale bool
		count     int
		threshold int
		want      Decision
	}{
		{"granted", true, false, 0, 2, Proceed},
		{"granted ignores count", true, false, 7, 2, Proceed},
		{"first ask", false, false, 0, 2, RequestPermission},
		{"rationale below threshold", false, true, 1, 2, RequestPermission},
		{"rationale at threshold", false, true, 2, 2, DirectToSettings},
		{"no rationale at threshold", false, false, 2, 2, DirectToSettings},
		{"no rationale above threshold", false, false, 3, 2, DirectToSettings},
		{"threshold one first ask", false, false, 0, 1, RequestPermission},
		{"threshold one after denial", false, true, 1, 1, DirectToSettings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.granted, tt.rationale, tt.count, tt.threshold)
			if got != tt.want {
				t.Errorf("Decide(%v, %v, %d, %d) = %v, want %v",
					tt.granted, tt.rationale, tt.count, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestObserveResult(t *testing.T) {
	tests := []struct {
		name      string
		granted   bool
		prev      int
		threshold int
		wantCount int
		want      Action
	}{
		{"threshold one escalates immediately", false, 0, 1, 1, ActionDirectToSettings},
		{"first denial", false, 0, 2, 1, ActionNotifyDenied},
		{"second denial", false, 1, 2, 2, ActionDirectToSettings},
		{"count saturates", false, 3, 2, 3, ActionDirectToSettings},
		{"count saturates far above", false, 10, 2, 3, ActionDirectToSettings},
		{"granted resets", true, 5, 2, 0, ActionProceed},
		{"granted from zero", true, 0, 3, 0, ActionProceed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, action := ObserveResult(tt.granted, tt.prev, tt.threshold)
			if count != tt.wantCount || action != tt.want {
				t.Errorf("ObserveResult(%v, %d, %d) = (%d, %v), want (%d, %v)",
					tt.granted, tt.prev, tt.threshold, count, action, tt.wantCount, tt.want)
			}
		})
	}
}

func TestDecideGrantedAlwaysProceeds(t *testing.T) {
	for threshold := 1; threshold <= 4; threshold++ {
		for count := 0; count <= 6; count++ {
			for _, rationale := range []bool{false, true} {
				if got := Decide(true, rationale, count, threshold); got != Proceed {
					t.Fatalf("Decide(true, %v, %d, %d) = %v", rationale, count, threshold, got)
				}
			}
		}
	}
}

func TestDecideAtThresholdNeverRequests(t *testing.T) {
	for threshold := 1; threshold <= 4; threshold++ {
		for count := threshold; count <= threshold+3; count++ {
			for _, rationale := range []bool{false, true} {
				if got := Decide(false, rationale, count, threshold); got != DirectToSettings {
					t.Fatalf("Decide(false, %v, %d, %d) = %v", rationale, count, threshold, got)
				}
			}
		}
	}
}

func TestObserveResultCountBounded(t *testing.T) {
	for threshold := 1; threshold <= 4; threshold++ {
		count := 0
		for i := 0; i < 10; i++ {
			count, _ = ObserveResult(false, count, threshold)
			if count > threshold+1 {
				t.Fatalf("threshold %d: count grew to %d", threshold, count)
			}
		}
		if count, action := ObserveResult(true, count, threshold); count != 0 || action != ActionProceed {
			t.Fatalf("threshold %d: grant gave (%d, %v)", threshold, count, action)
		}
	}
}

func TestDecisionTableGolden(t *testing.T) {
	var b bytes.Buffer
	for threshold := 1; threshold <= 3; threshold++ {
		for _, granted := range []bool{false, true} {
			for _, rationale := range []bool{false, true} {
				for count := 0; count <= threshold+1; count++ {
					fmt.Fprintf(&b, "decide threshold=%d granted=%t rationale=%t count=%d -> %s\n",
						threshold, granted, rationale, count, Decide(granted, rationale, count, threshold))
				}
			}
		}
	}
	for threshold := 1; threshold <= 3; threshold++ {
		for _, granted := range []bool{false, true} {
			for prev := 0; prev <= threshold+1; prev++ {
				count, action := ObserveResult(granted, prev, threshold)
				fmt.Fprintf(&b, "observe threshold=%d granted=%t prev=%d -> count=%d action=%s\n",
					threshold, granted, prev, count, action)
			}
		}
	}

	g := goldie.New(t)
	g.Assert(t, "decision_table", b.Bytes())
}
