package policy

import (
	"testing"

	"github.com/agentjido/confgate/pkg/gate"
)

func TestBuiltinPresets(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name         string
		high, low    float64
		mediumAction gate.Action
		lowAction    gate.Action
	}{
		{"strict", 0.9, 0.6, gate.ActionWithCitations, gate.ActionEscalate},
		{"balanced", 0.7, 0.4, gate.ActionWithVerification, gate.ActionAbstain},
		{"permissive", 0.5, 0.2, gate.ActionWithVerification, gate.ActionWithCitations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Get(tt.name)
			if err != nil {
				t.Fatalf("Get(%q) error = %v", tt.name, err)
			}
			if p.HighThreshold != tt.high || p.LowThreshold != tt.low {
				t.Errorf("thresholds = (%v, %v), want (%v, %v)",
					p.HighThreshold, p.LowThreshold, tt.high, tt.low)
			}
			if p.MediumAction != tt.mediumAction || p.LowAction != tt.lowAction {
				t.Errorf("actions = (%q, %q), want (%q, %q)",
					p.MediumAction, p.LowAction, tt.mediumAction, tt.lowAction)
			}

			g, err := p.Gate()
			if err != nil {
				t.Fatalf("Gate() error = %v", err)
			}
			if g.MediumAction() != tt.mediumAction || g.LowAction() != tt.lowAction {
				t.Errorf("gate actions = (%q, %q)", g.MediumAction(), g.LowAction())
			}
		})
	}
}

func TestGetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("lenient"); err == nil {
		t.Error("Get() on an unregistered preset did not fail")
	}
	if r.Has("lenient") {
		t.Error("Has() reported an unregistered preset")
	}
	if !r.Has("strict") {
		t.Error("Has() missed a built-in preset")
	}
}

func TestRegisterCustom(t *testing.T) {
	r := NewRegistry()
	r.Register(Preset{
		Name:          "paranoid",
		HighThreshold: 0.99,
		LowThreshold:  0.9,
		MediumAction:  gate.ActionEscalate,
		LowAction:     gate.ActionEscalate,
	})

	p, err := r.Get("paranoid")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.HighThreshold != 0.99 {
		t.Errorf("HighThreshold = %v, want 0.99", p.HighThreshold)
	}
}

func TestListSorted(t *testing.T) {
	r := NewRegistry()
	presets := r.List()
	if len(presets) != 3 {
		t.Fatalf("got %d presets, want 3", len(presets))
	}
	want := []string{"balanced", "permissive", "strict"}
	for i, p := range presets {
		if p.Name != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, p.Name, want[i])
		}
	}
}

func TestPresetGateRejectsBadBundle(t *testing.T) {
	p := Preset{Name: "broken", HighThreshold: 0.5, LowThreshold: 0.5,
		MediumAction: gate.ActionDirect, LowAction: gate.ActionAbstain}
	if _, err := p.Gate(); err == nil {
		t.Error("Gate() accepted equal thresholds")
	}
}
