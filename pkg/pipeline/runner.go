package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentjido/confgate/pkg/archive"
	"github.com/agentjido/confgate/pkg/candidate"
	"github.com/agentjido/confgate/pkg/confidence"
	"github.com/agentjido/confgate/pkg/gate"
	"github.com/agentjido/confgate/pkg/generation"
	"github.com/agentjido/confgate/pkg/policy"
	"github.com/agentjido/confgate/pkg/schema"
	"github.com/agentjido/confgate/pkg/telemetry"
)

const defaultConcurrency = 4

// RunOptions configures batch execution.
type RunOptions struct {
	// ManifestPath is recorded in the run bundle when set.
	ManifestPath string
	// EvidenceDir receives the run bundle; empty disables bundle output.
	EvidenceDir string
	// Concurrency bounds parallel routing; values below 1 mean 4.
	Concurrency int
	// Gate routes items that name no preset.
	Gate *gate.Gate
	// Presets resolves per-item preset overrides; nil means the built-ins.
	Presets *policy.Registry
	// Archive persists each decision when set.
	Archive *archive.Store
	// Sink receives gate telemetry for preset-routed items.
	Sink   telemetry.Sink
	Logger *slog.Logger
}

// ItemResult captures the routing outcome for one manifest item. Err is set
// when the item failed; the run itself keeps going.
type ItemResult struct {
	ItemID     string
	Routing    *gate.RoutingResult
	DecisionID string
	TokensUsed int
	Duration   time.Duration
	Err        error
}

// RunResult captures batch outputs. Items holds one result per manifest item
// in manifest order.
type RunResult struct {
	RunID       string
	EvidenceDir string
	Items       []*ItemResult
	TotalTokens int
	Actions     map[string]int
	Duration    time.Duration
}

// Run routes every manifest item through its gate under the configured
// concurrency bound. Item failures are recorded per item; only manifest
// validation, bundle writing, or context cancellation fail the run.
func Run(ctx context.Context, manifest *Manifest, opts RunOptions) (*RunResult, error) {
	if manifest == nil {
		return nil, fmt.Errorf("manifest is required")
	}
	if opts.Gate == nil {
		return nil, fmt.Errorf("default gate is required")
	}

	presets := opts.Presets
	if presets == nil {
		presets = policy.NewRegistry()
	}
	if err := manifest.Validate(presets); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	runID := uuid.NewString()
	start := time.Now()

	var writer *telemetry.Writer
	if opts.EvidenceDir != "" {
		w, err := telemetry.NewWriter(opts.EvidenceDir, runID)
		if err != nil {
			return nil, err
		}
		writer = w
	}

	record := telemetry.RunRecord{
		ID:           runID,
		StartedAt:    start.UTC(),
		ManifestPath: opts.ManifestPath,
		ManifestHash: hashManifestFile(opts.ManifestPath),
		ItemCount:    len(manifest.Items),
	}
	if writer != nil {
		if err := writer.WriteRun(record); err != nil {
			return nil, err
		}
	}

	logger.Info("run started",
		"run_id", runID,
		"manifest", manifest.Name,
		"items", len(manifest.Items),
		"concurrency", concurrency,
	)

	tracker := newUsageTracker()
	results := make([]*ItemResult, len(manifest.Items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, item := range manifest.Items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res := routeItem(manifest, item, opts.Gate, presets, opts.Archive, opts.Sink)
			results[i] = res

			if res.Err != nil {
				logger.Warn("item failed", "run_id", runID, "item", item.ID, "error", res.Err)
			} else {
				tracker.record(string(res.Routing.Action), res.TokensUsed)
				logger.Debug("item routed",
					"run_id", runID,
					"item", item.ID,
					"action", res.Routing.Action,
					"level", res.Routing.ConfidenceLevel,
				)
			}

			if writer != nil {
				if err := writer.WriteDecision(decisionRecord(manifest, item, res)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	tokens, actions := tracker.snapshot()

	record.TotalTokens = tokens
	record.Actions = actions
	record.DurationMillis = duration.Milliseconds()
	if writer != nil {
		if err := writer.WriteRun(record); err != nil {
			return nil, err
		}
	}

	evidenceDir := ""
	if writer != nil {
		evidenceDir = writer.RunDir()
	}

	logger.Info("run finished",
		"run_id", runID,
		"duration_ms", duration.Milliseconds(),
		"total_tokens", tokens,
	)

	return &RunResult{
		RunID:       runID,
		EvidenceDir: evidenceDir,
		Items:       results,
		TotalTokens: tokens,
		Actions:     actions,
		Duration:    duration,
	}, nil
}

func routeItem(m *Manifest, item *Item, defaultGate *gate.Gate, presets *policy.Registry, store *archive.Store, sink telemetry.Sink) *ItemResult {
	start := time.Now()
	res := &ItemResult{ItemID: item.ID}
	defer func() { res.Duration = time.Since(start) }()

	candidates := make([]*candidate.Candidate, 0, len(item.Candidates))
	for _, spec := range item.Candidates {
		c := candidate.New(spec.Content)
		if spec.Score != nil {
			c = c.WithScore(*spec.Score)
		}
		if spec.TokensUsed > 0 {
			c = c.WithTokens(spec.TokensUsed)
		}
		candidates = append(candidates, c)
	}

	genResult, err := generation.New(candidates)
	if err != nil {
		res.Err = fmt.Errorf("build generation result: %w", err)
		return res
	}
	res.TokensUsed = genResult.TotalTokens()

	strategy := m.StrategyFor(item)
	selected := genResult.SelectByStrategy(strategy)
	if selected == nil {
		res.Err = fmt.Errorf("strategy %s selected no candidate", strategy)
		return res
	}

	estimate, err := confidence.New(item.Confidence.Score, item.Confidence.Method)
	if err != nil {
		res.Err = fmt.Errorf("confidence: %w", err)
		return res
	}

	itemGate := defaultGate
	presetName := m.PresetFor(item)
	if presetName != "" {
		preset, err := presets.Get(presetName)
		if err != nil {
			res.Err = err
			return res
		}
		built, err := preset.Gate(sinkOptions(sink)...)
		if err != nil {
			res.Err = fmt.Errorf("preset %s: %w", presetName, err)
			return res
		}
		itemGate = built
	}

	routing, err := itemGate.Route(selected, estimate)
	if err != nil {
		res.Err = fmt.Errorf("route: %w", err)
		return res
	}
	res.Routing = routing

	if store != nil {
		d, err := store.StoreDecision(routing, archive.DecisionMeta{
			Query:           item.Query,
			Preset:          presetName,
			GateFingerprint: itemGate.Fingerprint(),
		})
		if err != nil {
			res.Err = fmt.Errorf("archive decision: %w", err)
			return res
		}
		res.DecisionID = d.ID
	}

	return res
}

func sinkOptions(sink telemetry.Sink) []gate.Option {
	if sink == nil {
		return nil
	}
	return []gate.Option{gate.WithTelemetry(sink)}
}

func decisionRecord(m *Manifest, item *Item, res *ItemResult) telemetry.DecisionRecord {
	rec := telemetry.DecisionRecord{
		ItemID:         item.ID,
		Query:          item.Query,
		Strategy:       string(m.StrategyFor(item)),
		Preset:         m.PresetFor(item),
		CandidateCount: len(item.Candidates),
		TokensUsed:     res.TokensUsed,
		DurationMillis: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
		return rec
	}
	rec.Action = string(res.Routing.Action)
	rec.ConfidenceLevel = string(res.Routing.ConfidenceLevel)
	rec.OriginalScore = res.Routing.OriginalScore
	rec.Reasoning = res.Routing.Reasoning
	if res.Routing.Candidate != nil {
		rec.ContentHash = schema.ComputeSHA256Bytes([]byte(res.Routing.Candidate.Content))
	}
	return rec
}

func hashManifestFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return schema.ComputeSHA256Bytes(data)
}

// usageTracker aggregates token usage and action counts across concurrently
// routed items.
type usageTracker struct {
	mu      sync.Mutex
	tokens  int
	actions map[string]int
}

func newUsageTracker() *usageTracker {
	return &usageTracker{actions: make(map[string]int)}
}

func (t *usageTracker) record(action string, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens += tokens
	if action != "" {
		t.actions[action]++
	}
}

func (t *usageTracker) snapshot() (int, map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	actions := make(map[string]int, len(t.actions))
	for k, v := range t.actions {
		actions[k] = v
	}
	return t.tokens, actions
}
