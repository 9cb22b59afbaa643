// Package receipt issues and verifies routing receipts. A receipt is built
// from an archived decision and carries content hashes for the decision
// record, the stored routing result, and the gate fingerprint, so any party
// holding the archive can later prove the decision was not altered.
package receipt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/agentjido/confgate/pkg/archive"
	"github.com/agentjido/confgate/pkg/schema"
)

// Build issues a receipt for an archived decision.
func Build(store *archive.Store, decisionID string) (*schema.Receipt, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	d, err := store.LoadDecision(decisionID)
	if err != nil {
		return nil, err
	}

	recordHash, err := schema.ComputeSHA256(d)
	if err != nil {
		return nil, fmt.Errorf("hash decision record: %w", err)
	}

	evidence := []schema.EvidenceRef{
		{Kind: string(schema.EvidenceKindDecision), SHA256: recordHash},
		{Kind: string(schema.EvidenceKindObject), SHA256: d.ObjectRef.SHA256},
	}
	if d.GateFingerprint != "" {
		evidence = append(evidence, schema.EvidenceRef{
			Kind:   string(schema.EvidenceKindGate),
			SHA256: schema.ComputeSHA256Bytes([]byte(d.GateFingerprint)),
		})
	}

	return &schema.Receipt{
		Schema:     schema.SchemaReceiptV1,
		ID:         uuid.NewString(),
		DecisionID: d.ID,
		IssuedAt:   time.Now().UTC(),
		Action:     d.Action,
		Evidence:   evidence,
	}, nil
}

// Verify recomputes every evidence hash in the receipt from the archive.
// A mismatch means either the receipt or the archive was altered after the
// receipt was issued.
func Verify(store *archive.Store, r *schema.Receipt) error {
	if store == nil {
		return fmt.Errorf("store is required")
	}
	if err := r.Validate(); err != nil {
		return err
	}

	d, err := store.LoadDecision(r.DecisionID)
	if err != nil {
		return err
	}
	if d.Action != r.Action {
		return fmt.Errorf("action mismatch: receipt says %s, record says %s", r.Action, d.Action)
	}

	for i, ref := range r.Evidence {
		if err := verifyEvidence(store, d, ref); err != nil {
			return fmt.Errorf("evidence %d (%s): %w", i, ref.Kind, err)
		}
	}
	return nil
}

func verifyEvidence(store *archive.Store, d *archive.Decision, ref schema.EvidenceRef) error {
	switch schema.EvidenceKind(ref.Kind) {
	case schema.EvidenceKindDecision:
		recordHash, err := schema.ComputeSHA256(d)
		if err != nil {
			return err
		}
		if recordHash != ref.SHA256 {
			return fmt.Errorf("decision record hash mismatch")
		}
	case schema.EvidenceKindObject:
		if d.ObjectRef.SHA256 != ref.SHA256 {
			return fmt.Errorf("object ref mismatch")
		}
		return store.VerifyObject(ref.SHA256)
	case schema.EvidenceKindGate:
		if got := schema.ComputeSHA256Bytes([]byte(d.GateFingerprint)); got != ref.SHA256 {
			return fmt.Errorf("gate fingerprint mismatch")
		}
	default:
		return fmt.Errorf("unknown evidence kind %q", ref.Kind)
	}
	return nil
}

// Save writes the receipt as indented JSON under the archive's receipts
// directory and returns the path.
func Save(store *archive.Store, r *schema.Receipt) (string, error) {
	dir := filepath.Join(store.BasePath, "receipts")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, r.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a saved receipt by id.
func Load(store *archive.Store, id string) (*schema.Receipt, error) {
	path := filepath.Join(store.BasePath, "receipts", id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: receipt %s", archive.ErrNotFound, id)
		}
		return nil, err
	}
	r := &schema.Receipt{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse receipt %s: %w", id, err)
	}
	return r, nil
}

// VerifyFile loads a receipt from an arbitrary path and verifies it against
// the archive.
func VerifyFile(store *archive.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var r schema.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("parse receipt file %s: %w", path, err)
	}
	return Verify(store, &r)
}
