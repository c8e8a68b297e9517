package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	sealKeyLen   = 32
	sealSaltLen  = 32
	sealNonceLen = 12
)

// sealKeyFile writes secret to path encrypted with AES-256-GCM under an
// Argon2id key derived from passphrase. File layout: salt || nonce || box.
func sealKeyFile(path string, secret []byte, passphrase string) error {
	salt := make([]byte, sealSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, sealKeyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, sealNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, sealSaltLen+sealNonceLen+len(secret)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, secret, nil)

	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// openKeyFile reads and decrypts a key file produced by sealKeyFile.
func openKeyFile(path, passphrase string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < sealSaltLen+sealNonceLen {
		return nil, errors.New("key file truncated")
	}
	salt := data[:sealSaltLen]
	nonce := data[sealSaltLen : sealSaltLen+sealNonceLen]
	box := data[sealSaltLen+sealNonceLen:]

	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, sealKeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	secret, err := gcm.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt key file: %w", err)
	}
	return secret, nil
}
