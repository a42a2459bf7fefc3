package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Sealing errors.
var (
	// ErrNoPassphrase is returned when the config carries no sealed
	// passphrase yet (setup has not run).
	ErrNoPassphrase = errors.New("config: no passphrase configured")

	// ErrMalformedSeal is returned when the sealed value cannot be
	// decoded or authenticated.
	ErrMalformedSeal = errors.New("config: malformed sealed passphrase")
)

// sealSeed is a static application seed. The sealing key is derived from it
// deterministically, so the config file survives restarts and machine
// reboots without a keychain dependency. This protects the passphrase from
// casual file readers only; the real access control is the 0600 file mode.
var sealSeed = []byte("handsoffd.config.seal.v1:e7c1a90b44f2d6318a5c0f9e2b7d4610")

const sealNonceSize = 12

func sealKey() ([]byte, error) {
	r := hkdf.New(sha256.New, sealSeed, []byte("handsoffd-config"), []byte("passphrase-at-rest"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	return key, nil
}

func sealCipher() (cipher.AEAD, error) {
	key, err := sealKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init GCM: %w", err)
	}
	return gcm, nil
}

// SealPassphrase encrypts a plaintext passphrase for storage in the config
// file. The result is base64(nonce || ciphertext) with AES-256-GCM.
func SealPassphrase(plain string) (string, error) {
	gcm, err := sealCipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, sealNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenPassphrase decrypts a sealed passphrase from the config file.
func OpenPassphrase(encoded string) (string, error) {
	if encoded == "" {
		return "", ErrNoPassphrase
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformedSeal
	}
	if len(sealed) <= sealNonceSize {
		return "", ErrMalformedSeal
	}

	gcm, err := sealCipher()
	if err != nil {
		return "", err
	}

	nonce, ciphertext := sealed[:sealNonceSize], sealed[sealNonceSize:]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrMalformedSeal
	}
	return string(plain), nil
}
