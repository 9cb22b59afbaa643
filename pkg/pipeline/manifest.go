// Package pipeline runs batches of routing decisions described by a YAML
// manifest: candidates are selected per item, routed through a calibration
// gate, and the outcomes are archived and written out as a run bundle.
package pipeline

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agentjido/confgate/pkg/generation"
	"github.com/agentjido/confgate/pkg/policy"
)

// Manifest is a batch of routing items loaded from YAML.
type Manifest struct {
	Name     string   `yaml:"name"`
	Defaults Defaults `yaml:"defaults,omitempty"`
	Items    []*Item  `yaml:"items"`
}

// Defaults apply to every item that does not override them.
type Defaults struct {
	Strategy string `yaml:"strategy,omitempty"`
	Preset   string `yaml:"preset,omitempty"`
}

// Item is one routing decision to make.
type Item struct {
	ID         string          `yaml:"id"`
	Query      string          `yaml:"query"`
	Candidates []CandidateSpec `yaml:"candidates"`
	Confidence ConfidenceSpec  `yaml:"confidence"`
	Strategy   string          `yaml:"strategy,omitempty"`
	Preset     string          `yaml:"preset,omitempty"`
}

// CandidateSpec is one candidate answer listed in the manifest.
type CandidateSpec struct {
	Content    string   `yaml:"content"`
	Score      *float64 `yaml:"score,omitempty"`
	TokensUsed int      `yaml:"tokens_used,omitempty"`
}

// ConfidenceSpec carries the calibrated confidence for an item.
type ConfidenceSpec struct {
	Score  float64 `yaml:"score"`
	Method string  `yaml:"method"`
}

// LoadManifest reads a manifest definition from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}

	return &manifest, nil
}

// Validate checks the manifest for errors. Presets are resolved against the
// given registry.
func (m *Manifest) Validate(presets *policy.Registry) error {
	if m.Name == "" {
		return fmt.Errorf("manifest name is required")
	}
	if len(m.Items) == 0 {
		return fmt.Errorf("manifest must define at least one item")
	}

	if m.Defaults.Strategy != "" {
		if _, err := generation.ParseStrategy(m.Defaults.Strategy); err != nil {
			return fmt.Errorf("defaults: %w", err)
		}
	}
	if err := validatePreset(presets, m.Defaults.Preset); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	seen := make(map[string]struct{})
	for _, item := range m.Items {
		if item.ID == "" {
			return fmt.Errorf("item id is required")
		}
		if _, ok := seen[item.ID]; ok {
			return fmt.Errorf("duplicate item id: %s", item.ID)
		}
		seen[item.ID] = struct{}{}

		if item.Query == "" {
			return fmt.Errorf("item %s must have a query", item.ID)
		}
		if len(item.Candidates) == 0 {
			return fmt.Errorf("item %s must have at least one candidate", item.ID)
		}
		for i, c := range item.Candidates {
			if c.Score != nil && (math.IsNaN(*c.Score) || *c.Score < 0 || *c.Score > 1) {
				return fmt.Errorf("item %s candidate %d: score %v outside [0, 1]", item.ID, i, *c.Score)
			}
			if c.TokensUsed < 0 {
				return fmt.Errorf("item %s candidate %d: negative tokens_used", item.ID, i)
			}
		}

		if math.IsNaN(item.Confidence.Score) || item.Confidence.Score < 0 || item.Confidence.Score > 1 {
			return fmt.Errorf("item %s: confidence score %v outside [0, 1]", item.ID, item.Confidence.Score)
		}
		if item.Confidence.Method == "" {
			return fmt.Errorf("item %s: confidence method is required", item.ID)
		}

		if item.Strategy != "" {
			if _, err := generation.ParseStrategy(item.Strategy); err != nil {
				return fmt.Errorf("item %s: %w", item.ID, err)
			}
		}
		if err := validatePreset(presets, item.Preset); err != nil {
			return fmt.Errorf("item %s: %w", item.ID, err)
		}
	}

	return nil
}

func validatePreset(presets *policy.Registry, name string) error {
	if name == "" {
		return nil
	}
	if presets == nil || !presets.Has(name) {
		return fmt.Errorf("unknown preset: %s", name)
	}
	return nil
}

// StrategyFor resolves the selection strategy for an item, falling back to
// the manifest default and then to best.
func (m *Manifest) StrategyFor(item *Item) generation.Strategy {
	if item.Strategy != "" {
		return generation.Strategy(item.Strategy)
	}
	if m.Defaults.Strategy != "" {
		return generation.Strategy(m.Defaults.Strategy)
	}
	return generation.StrategyBest
}

// PresetFor resolves the gate preset name for an item, empty when neither the
// item nor the defaults name one.
func (m *Manifest) PresetFor(item *Item) string {
	if item.Preset != "" {
		return item.Preset
	}
	return m.Defaults.Preset
}
