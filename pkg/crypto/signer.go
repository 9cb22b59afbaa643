// Package crypto signs and verifies routing receipts with ed25519 keys kept
// on the local filesystem.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentjido/confgate/pkg/schema"
)

// Signer handles signing of receipts.
type Signer struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	KeyID      string
}

// NewSigner loads the key named keyID from keyDir, generating and persisting
// a fresh one when none exists. An empty keyDir defaults to ~/.confgate/keys.
func NewSigner(keyDir, keyID string) (*Signer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("key id is required")
	}
	dir, err := resolveKeyDir(keyDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	keyPath := filepath.Join(dir, keyID+".key")

	var privateKey ed25519.PrivateKey

	data, err := os.ReadFile(keyPath)
	if err == nil {
		if len(data) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("invalid private key size in %s", keyPath)
		}
		privateKey = ed25519.PrivateKey(data)
	} else {
		// Generate new key
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		privateKey = priv
		if err := os.WriteFile(keyPath, []byte(privateKey), 0600); err != nil {
			return nil, err
		}
	}

	return &Signer{
		PrivateKey: privateKey,
		PublicKey:  privateKey.Public().(ed25519.PublicKey),
		KeyID:      keyID,
	}, nil
}

// SignReceipt signs the receipt and attaches the signature. The signed
// payload is the receipt's canonical JSON with the signature field cleared.
func (s *Signer) SignReceipt(r *schema.Receipt) error {
	if r == nil {
		return fmt.Errorf("receipt required")
	}

	rCopy := *r
	rCopy.Signature = nil
	if err := rCopy.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(&rCopy)
	if err != nil {
		return err
	}

	sig := ed25519.Sign(s.PrivateKey, data)

	r.Signature = &schema.Signature{
		Alg:      schema.SignatureAlgEd25519,
		PubKeyID: s.KeyID,
		Sig:      base64.StdEncoding.EncodeToString(sig),
	}

	return nil
}

// VerifyReceiptSignature verifies the attached signature against the receipt
// payload, loading the public key from keyDir.
func VerifyReceiptSignature(keyDir string, r *schema.Receipt) error {
	if r == nil {
		return fmt.Errorf("receipt required")
	}
	if r.Signature == nil {
		return fmt.Errorf("signature required")
	}
	if err := r.Signature.Validate(); err != nil {
		return err
	}

	rCopy := *r
	rCopy.Signature = nil
	if err := rCopy.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(&rCopy)
	if err != nil {
		return err
	}

	sigBytes, err := base64.StdEncoding.DecodeString(r.Signature.Sig)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	pubKey, err := loadPublicKey(keyDir, r.Signature.PubKeyID)
	if err != nil {
		return err
	}

	if !ed25519.Verify(pubKey, data, sigBytes) {
		return fmt.Errorf("invalid receipt signature")
	}

	return nil
}

func loadPublicKey(keyDir, keyID string) (ed25519.PublicKey, error) {
	if keyID == "" {
		return nil, fmt.Errorf("pubkey_id required")
	}
	dir, err := resolveKeyDir(keyDir)
	if err != nil {
		return nil, err
	}
	keyPath := filepath.Join(dir, keyID+".key")
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	priv := ed25519.PrivateKey(data)
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size")
	}
	return priv.Public().(ed25519.PublicKey), nil
}

func resolveKeyDir(keyDir string) (string, error) {
	if keyDir != "" {
		return keyDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".confgate", "keys"), nil
}
