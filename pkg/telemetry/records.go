package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunRecord captures run-level metadata for one batch routing run.
type RunRecord struct {
	ID             string         `json:"id"`
	StartedAt      time.Time      `json:"started_at"`
	ManifestPath   string         `json:"manifest_path,omitempty"`
	ManifestHash   string         `json:"manifest_hash,omitempty"`
	ItemCount      int            `json:"item_count"`
	TotalTokens    int            `json:"total_tokens"`
	Actions        map[string]int `json:"actions,omitempty"`
	DurationMillis int64          `json:"duration_ms"`
}

// DecisionRecord captures one routed item within a run.
type DecisionRecord struct {
	ItemID          string  `json:"item_id"`
	Query           string  `json:"query,omitempty"`
	Action          string  `json:"action"`
	ConfidenceLevel string  `json:"confidence_level"`
	OriginalScore   float64 `json:"original_score"`
	Strategy        string  `json:"strategy,omitempty"`
	Preset          string  `json:"preset,omitempty"`
	CandidateCount  int     `json:"candidate_count"`
	TokensUsed      int     `json:"tokens_used"`
	ContentHash     string  `json:"content_hash,omitempty"`
	Reasoning       string  `json:"reasoning,omitempty"`
	Error           string  `json:"error,omitempty"`
	DurationMillis  int64   `json:"duration_ms"`
}

// Writer writes run bundles to disk: <base>/<runID>/run.json plus one
// decisions/<item>.json per routed item.
type Writer struct {
	baseDir string
	runDir  string
}

// NewWriter creates a run writer rooted at baseDir/runID.
func NewWriter(baseDir, runID string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(filepath.Join(runDir, "decisions"), 0755); err != nil {
		return nil, err
	}

	return &Writer{baseDir: baseDir, runDir: runDir}, nil
}

// RunDir returns the run directory path.
func (w *Writer) RunDir() string {
	return w.runDir
}

// WriteRun writes run metadata to run.json.
func (w *Writer) WriteRun(record RunRecord) error {
	return writeJSON(filepath.Join(w.runDir, "run.json"), record)
}

// WriteDecision writes a decision record to decisions/<item>.json.
func (w *Writer) WriteDecision(record DecisionRecord) error {
	if record.ItemID == "" {
		return fmt.Errorf("item ID is required")
	}
	path := filepath.Join(w.runDir, "decisions", fmt.Sprintf("%s.json", record.ItemID))
	return writeJSON(path, record)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
