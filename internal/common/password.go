package common

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordSaltSize   = 16
	passwordDigestSize = 32
	passwordIterations = 100_000
)

// HashPassword derives a salted digest of password and returns it in
// "saltHex:digestHex" form. Each call uses a fresh random salt, so two hashes
// of the same password differ.
func HashPassword(password string) (string, error) {
	salt := make([]byte, passwordSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	digest := pbkdf2.Key([]byte(password), salt, passwordIterations, passwordDigestSize, sha256.New)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(digest), nil
}

// VerifyPassword recomputes the digest with the stored salt and compares in
// constant time. Malformed stored values verify false.
func VerifyPassword(password string, stored string) bool {
	saltHex, digestHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	digest, err := hex.DecodeString(digestHex)
	if err != nil || len(digest) == 0 {
		return false
	}
	computed := pbkdf2.Key([]byte(password), salt, passwordIterations, len(digest), sha256.New)
	return subtle.ConstantTimeCompare(computed, digest) == 1
}

// VerifyStaticSecret compares input against a configured secret without
// short-circuiting on the first differing byte. A length mismatch returns
// false immediately; length is not secret-sensitive here.
func VerifyStaticSecret(input, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(input), []byte(secret)) == 1
}
