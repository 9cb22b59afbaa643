// Package policy names immutable gate presets. A preset bundles the two
// thresholds with the medium and low band actions so callers can pick a
// routing posture by name instead of hand-tuning numbers.
package policy

import (
	"fmt"
	"sort"

	"github.com/agentjido/confgate/pkg/gate"
)

// Preset is a named gate configuration.
type Preset struct {
	Name          string
	Description   string
	HighThreshold float64
	LowThreshold  float64
	MediumAction  gate.Action
	LowAction     gate.Action
}

// Gate constructs the preset's gate. Extra options, telemetry sinks in
// particular, are applied after the preset's own.
func (p Preset) Gate(extra ...gate.Option) (*gate.Gate, error) {
	opts := []gate.Option{
		gate.WithMediumAction(p.MediumAction),
		gate.WithLowAction(p.LowAction),
	}
	opts = append(opts, extra...)
	return gate.New(p.HighThreshold, p.LowThreshold, opts...)
}

// Registry holds presets by name.
type Registry struct {
	presets map[string]Preset
}

// NewRegistry creates a registry seeded with the built-in presets.
func NewRegistry() *Registry {
	r := &Registry{
		presets: make(map[string]Preset),
	}

	// Register default presets
	r.Register(Preset{
		Name:          "strict",
		Description:   "high bar for direct answers; medium confidence cites, low escalates",
		HighThreshold: 0.9,
		LowThreshold:  0.6,
		MediumAction:  gate.ActionWithCitations,
		LowAction:     gate.ActionEscalate,
	})

	r.Register(Preset{
		Name:          "balanced",
		Description:   "verify medium-confidence answers, abstain on low",
		HighThreshold: 0.7,
		LowThreshold:  0.4,
		MediumAction:  gate.ActionWithVerification,
		LowAction:     gate.ActionAbstain,
	})

	r.Register(Preset{
		Name:          "permissive",
		Description:   "almost always answers; weak answers carry citation notices",
		HighThreshold: 0.5,
		LowThreshold:  0.2,
		MediumAction:  gate.ActionWithVerification,
		LowAction:     gate.ActionWithCitations,
	})

	return r
}

// Register adds or replaces a preset.
func (r *Registry) Register(p Preset) {
	r.presets[p.Name] = p
}

// Get looks up a preset by name.
func (r *Registry) Get(name string) (Preset, error) {
	p, ok := r.presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("preset not found: %s", name)
	}
	return p, nil
}

// Has reports whether a preset is registered under the name.
func (r *Registry) Has(name string) bool {
	_, ok := r.presets[name]
	return ok
}

// List returns all presets sorted by name.
func (r *Registry) List() []Preset {
	out := make([]Preset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
