// Package vault owns the long-lived signing identity and the post-quantum
// key bundle minting path: ML-DSA-44 for attestation signatures and
// ML-KEM-768 for the ephemeral key-exchange keypairs placed in bundles.
package vault

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
)

// Identity is the long-lived ML-DSA-44 signing keypair used only to attest
// minted bundles, never to encrypt. The secret key is held marshaled and
// re-parsed per signature so a corrupt key aborts a single mint rather than
// the process.
type Identity struct {
	PublicKey []byte // marshaled ML-DSA-44 public key
	secret    []byte // marshaled ML-DSA-44 private key
}

// NewIdentity generates a fresh signing keypair.
func NewIdentity() (*Identity, error) {
	pk, sk, err := mldsa44.Scheme().GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate identity keypair: %w", err)
	}
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal secret key: %w", err)
	}
	return &Identity{PublicKey: pkBytes, secret: skBytes}, nil
}

// LoadOrGenerateIdentity restores the identity from the sealed key file at
// path, or generates and seals a new one if the file does not exist. With an
// empty passphrase the identity is ephemeral for this process, matching a
// per-session signing key.
func LoadOrGenerateIdentity(path, passphrase string) (*Identity, error) {
	if passphrase == "" {
		return NewIdentity()
	}

	secret, err := openKeyFile(path, passphrase)
	if err == nil {
		sk, err := mldsa44.Scheme().UnmarshalBinaryPrivateKey(secret)
		if err != nil {
			return nil, fmt.Errorf("invalid key file: %w", err)
		}
		pkBytes, err := sk.Public().(*mldsa44.PublicKey).MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal public key: %w", err)
		}
		return &Identity{PublicKey: pkBytes, secret: secret}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("open key file: %w", err)
	}

	id, err := NewIdentity()
	if err != nil {
		return nil, err
	}
	if err := sealKeyFile(path, id.secret, passphrase); err != nil {
		return nil, err
	}
	log.Printf("[vault] generated identity key, sealed to %s", path)
	return id, nil
}

// sign parses the held secret key and produces a detached signature over
// context. A parse failure is returned to the caller; minting treats it as
// an abort for that event only.
func (id *Identity) sign(context []byte) ([]byte, error) {
	if len(id.secret) == 0 {
		return nil, errors.New("identity secret key missing")
	}
	sk, err := mldsa44.Scheme().UnmarshalBinaryPrivateKey(id.secret)
	if err != nil {
		return nil, fmt.Errorf("parse identity secret key: %w", err)
	}
	return mldsa44.Scheme().Sign(sk, context, nil), nil
}

// VerifyDetached checks a detached signature over context against a
// marshaled ML-DSA-44 public key.
func VerifyDetached(publicKey, context, signature []byte) bool {
	pk, err := mldsa44.Scheme().UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return false
	}
	return mldsa44.Scheme().Verify(pk, context, signature, nil)
}
