// Package auth implements passphrase hashing and verification.
//
// Passphrases are never stored or compared in plaintext. The stored form is
// a hex-encoded SHA-256 digest, stable across restarts so it can be
// persisted. Verification compares digests in constant time.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// DigestLen is the length of a hex-encoded passphrase digest.
const DigestLen = sha256.Size * 2

// HashPassphrase returns the hex-encoded SHA-256 digest of a passphrase.
// The same input always produces the same digest.
func HashPassphrase(passphrase string) string {
	sum := sha256.Sum256([]byte(passphrase))
	return hex.EncodeToString(sum[:])
}

// VerifyPassphrase reports whether the candidate passphrase hashes to the
// stored digest. The comparison is constant time with respect to the digest
// contents; a malformed digest simply never matches.
func VerifyPassphrase(candidate, digest string) bool {
	computed := HashPassphrase(candidate)
	if len(digest) != DigestLen {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}
