package vault

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

// BundleType tags every persisted key bundle.
const BundleType = "COBRA_PQC_BUNDLE"

// ErrOffline is returned when a mint is requested while the minting
// subsystem is disabled.
var ErrOffline = errors.New("minting subsystem offline")

// Policy is the auto-mint trigger configuration: mint every Cadence
// extractions, provided the triggering raw sample's min-entropy exceeds
// Threshold. Both gates must hold together with the enabled flag.
type Policy struct {
	Cadence   uint64
	Threshold float64
}

// DefaultPolicy matches the original engine: every 10th extraction, quality
// above 6.5 bits.
var DefaultPolicy = Policy{Cadence: 10, Threshold: 6.5}

// Bundle is the persisted artifact: an ephemeral ML-KEM-768 keypair, a
// detached ML-DSA-44 signature over SHA3-256(pool || kem_pk), and metadata.
// It exists in memory only long enough to be serialized.
type Bundle struct {
	Type            string  `json:"type"`
	ID              string  `json:"id"`
	Requester       string  `json:"requester"`
	Timestamp       int64   `json:"timestamp"`
	RawMinEntropy   float64 `json:"raw_min_entropy"`
	AccumulatedBits float64 `json:"accumulated_true_bits"`
	KEMPublicKey    string  `json:"mlkem_pk"`
	KEMSecretKey    string  `json:"mlkem_sk"`
	Signature       string  `json:"mldsa_sig"`
	SignerPublicKey string  `json:"mldsa_signer_pk"`
}

// MintRecord is the ledger row describing a completed mint.
type MintRecord struct {
	ID          string
	Requester   string
	Filename    string
	MintedAt    int64
	EntropyBits float64
}

// Recorder persists mint records durably. A nil Recorder disables ledger
// writes without affecting minting.
type Recorder interface {
	RecordMint(rec MintRecord) error
}

// Minter is the key-minting state machine. It is Idle between mints; each
// Mint call is a transient Minting state that resolves to persisted or
// failed and re-enters Idle either way. Safe for concurrent use.
type Minter struct {
	mu       sync.Mutex
	identity *Identity
	keysDir  string
	policy   Policy
	enabled  bool
	recorder Recorder
}

// NewMinter creates a Minter writing bundles under keysDir. The directory is
// created on first use. recorder may be nil.
func NewMinter(identity *Identity, keysDir string, policy Policy, recorder Recorder) *Minter {
	return &Minter{
		identity: identity,
		keysDir:  keysDir,
		policy:   policy,
		enabled:  true,
		recorder: recorder,
	}
}

// SetEnabled toggles the minting subsystem.
func (m *Minter) SetEnabled(v bool) {
	m.mu.Lock()
	m.enabled = v
	m.mu.Unlock()
}

// Enabled reports whether the minting subsystem is on.
func (m *Minter) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// IdentityPublicKey returns the marshaled identity public key.
func (m *Minter) IdentityPublicKey() []byte { return m.identity.PublicKey }

// ShouldMint evaluates the trigger policy after an extraction event:
// cadence gate AND quality gate AND enabled gate. extractionCount is the
// extractor's post-increment counter.
func (m *Minter) ShouldMint(extractionCount uint64, rawMin float64) bool {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()
	return enabled &&
		extractionCount%m.policy.Cadence == 0 &&
		rawMin > m.policy.Threshold
}

// BindingContext computes the signed context binding a key-exchange public
// key to the mixing pool state at mint time.
func BindingContext(pool [32]byte, kemPublicKey []byte) []byte {
	h := sha3.New256()
	h.Write(pool[:])
	h.Write(kemPublicKey)
	return h.Sum(nil)
}

// Mint generates an ephemeral ML-KEM-768 keypair, signs its binding context
// with the identity key, persists the bundle as JSON, and returns the file
// path. Failures abort this mint only; nothing is retried or queued, since
// the next eligible trigger mints independently.
func (m *Minter) Mint(requester string, pool [32]byte, rawMin, accumBits float64) (string, error) {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()
	if !enabled {
		return "", ErrOffline
	}

	scheme := mlkem768.Scheme()
	kemPub, kemPriv, err := scheme.GenerateKeyPair()
	if err != nil {
		return "", fmt.Errorf("generate exchange keypair: %w", err)
	}
	kemPubBytes, err := kemPub.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal exchange public key: %w", err)
	}
	kemPrivBytes, err := kemPriv.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal exchange secret key: %w", err)
	}

	context := BindingContext(pool, kemPubBytes)
	signature, err := m.identity.sign(context)
	if err != nil {
		return "", err
	}

	now := time.Now().Unix()
	bundle := Bundle{
		Type:            BundleType,
		ID:              uuid.New().String(),
		Requester:       requester,
		Timestamp:       now,
		RawMinEntropy:   rawMin,
		AccumulatedBits: accumBits,
		KEMPublicKey:    hex.EncodeToString(kemPubBytes),
		KEMSecretKey:    hex.EncodeToString(kemPrivBytes),
		Signature:       hex.EncodeToString(signature),
		SignerPublicKey: hex.EncodeToString(m.identity.PublicKey),
	}

	if err := os.MkdirAll(m.keysDir, 0700); err != nil {
		return "", fmt.Errorf("create keystore dir: %w", err)
	}
	filename := filepath.Join(m.keysDir,
		fmt.Sprintf("key_%d_%s.json", now, hex.EncodeToString(kemPubBytes[:4])))

	data, err := json.MarshalIndent(&bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode bundle: %w", err)
	}
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return "", fmt.Errorf("persist bundle: %w", err)
	}

	if m.recorder != nil {
		rec := MintRecord{
			ID:          bundle.ID,
			Requester:   requester,
			Filename:    filename,
			MintedAt:    now,
			EntropyBits: accumBits,
		}
		if err := m.recorder.RecordMint(rec); err != nil {
			log.Printf("[vault] record mint %s: %v", bundle.ID, err)
		}
	}

	log.Printf("[vault] saved %s", filename)
	return filename, nil
}
