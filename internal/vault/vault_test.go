package vault

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestKeyFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.key")
	secret := []byte("not a real key but sealed like one")

	if err := sealKeyFile(path, secret, "passphrase"); err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := openKeyFile(path, "passphrase")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(got) != string(secret) {
		t.Fatal("sealed secret did not round-trip")
	}
}

func TestKeyFile_WrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.key")
	if err := sealKeyFile(path, []byte("secret"), "right"); err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := openKeyFile(path, "wrong"); err == nil {
		t.Fatal("wrong passphrase must not decrypt")
	}
}

func TestLoadOrGenerateIdentity_PersistsAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.key")

	first, err := LoadOrGenerateIdentity(path, "pw")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := LoadOrGenerateIdentity(path, "pw")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if hex.EncodeToString(first.PublicKey) != hex.EncodeToString(second.PublicKey) {
		t.Fatal("reloaded identity should match the generated one")
	}
}

func TestLoadOrGenerateIdentity_EphemeralWithoutPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.key")
	if _, err := LoadOrGenerateIdentity(path, ""); err != nil {
		t.Fatalf("ephemeral identity: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("no key file should be written without a passphrase")
	}
}

func TestMint_BundleSignatureVerifies(t *testing.T) {
	id, err := NewIdentity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	dir := t.TempDir()
	m := NewMinter(id, dir, DefaultPolicy, nil)

	var pool [32]byte
	for i := range pool {
		pool[i] = byte(i)
	}

	filename, err := m.Mint("TEST", pool, 7.1, 12345.6)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		t.Fatalf("decode bundle: %v", err)
	}
	if b.Type != BundleType {
		t.Fatalf("type = %q, want %q", b.Type, BundleType)
	}
	if b.Requester != "TEST" {
		t.Fatalf("requester = %q", b.Requester)
	}

	kemPK, err := hex.DecodeString(b.KEMPublicKey)
	if err != nil {
		t.Fatalf("kem pk hex: %v", err)
	}
	sig, err := hex.DecodeString(b.Signature)
	if err != nil {
		t.Fatalf("sig hex: %v", err)
	}
	signerPK, err := hex.DecodeString(b.SignerPublicKey)
	if err != nil {
		t.Fatalf("signer pk hex: %v", err)
	}

	context := BindingContext(pool, kemPK)
	if !VerifyDetached(signerPK, context, sig) {
		t.Fatal("bundle signature must verify over SHA3-256(pool || kem_pk)")
	}

	// A different pool state must not verify.
	pool[0] ^= 0xFF
	if VerifyDetached(signerPK, BindingContext(pool, kemPK), sig) {
		t.Fatal("signature bound to a different pool state verified")
	}
}

func TestMint_OfflineReturnsError(t *testing.T) {
	id, err := NewIdentity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	dir := t.TempDir()
	m := NewMinter(id, dir, DefaultPolicy, nil)
	m.SetEnabled(false)

	if _, err := m.Mint("TEST", [32]byte{}, 7.0, 0); err != ErrOffline {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatal("offline mint must write nothing")
	}
}

func TestShouldMint_AllGatesRequired(t *testing.T) {
	id, err := NewIdentity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	m := NewMinter(id, t.TempDir(), Policy{Cadence: 10, Threshold: 6.5}, nil)

	cases := []struct {
		name    string
		count   uint64
		rawMin  float64
		enabled bool
		want    bool
	}{
		{"all gates pass", 10, 7.0, true, true},
		{"off-cadence", 9, 7.0, true, false},
		{"low quality", 10, 6.5, true, false}, // threshold is strict
		{"disabled", 10, 7.0, false, false},
		{"second cadence hit", 20, 6.6, true, true},
	}
	for _, tc := range cases {
		m.SetEnabled(tc.enabled)
		if got := m.ShouldMint(tc.count, tc.rawMin); got != tc.want {
			t.Errorf("%s: ShouldMint(%d, %v) = %v, want %v", tc.name, tc.count, tc.rawMin, got, tc.want)
		}
	}
}

type captureRecorder struct {
	recs []MintRecord
}

func (c *captureRecorder) RecordMint(rec MintRecord) error {
	c.recs = append(c.recs, rec)
	return nil
}

func TestMint_RecordsToLedger(t *testing.T) {
	id, err := NewIdentity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	rec := &captureRecorder{}
	m := NewMinter(id, t.TempDir(), DefaultPolicy, rec)

	filename, err := m.Mint("AUTO", [32]byte{1, 2, 3}, 7.2, 99)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if len(rec.recs) != 1 {
		t.Fatalf("expected 1 mint record, got %d", len(rec.recs))
	}
	if rec.recs[0].Filename != filename {
		t.Fatal("record filename should match the persisted bundle")
	}
}
