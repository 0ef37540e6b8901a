package registrar

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Hashes use the passlib "$pbkdf2-sha256$<rounds>$<salt>$<checksum>" format so
// user files written by other tools keep verifying.
const (
	hashScheme    = "pbkdf2-sha256"
	DefaultRounds = 29000
	saltSize      = 16
	checksumSize  = 32
)

// passlib's "adapted base64": '.' instead of '+', no padding.
var ab64 = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789./").
	WithPadding(base64.NoPadding)

// HashKey hashes key with a random salt.
func HashKey(key string, rounds int) (string, error) {
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	sum := pbkdf2.Key([]byte(key), salt, rounds, checksumSize, sha256.New)
	return fmt.Sprintf("$%s$%d$%s$%s", hashScheme, rounds, ab64.EncodeToString(salt), ab64.EncodeToString(sum)), nil
}

// VerifyKey reports whether key matches hash. A malformed hash is an error.
func VerifyKey(key, hash string) (bool, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != hashScheme {
		return false, fmt.Errorf("unsupported key hash format")
	}
	rounds, err := strconv.Atoi(parts[2])
	if err != nil || rounds <= 0 {
		return false, fmt.Errorf("invalid rounds %q", parts[2])
	}
	salt, err := ab64.DecodeString(parts[3])
	if err != nil {
		return false, fmt.Errorf("invalid salt: %w", err)
	}
	want, err := ab64.DecodeString(parts[4])
	if err != nil || len(want) == 0 {
		return false, fmt.Errorf("invalid checksum")
	}

	got := pbkdf2.Key([]byte(key), salt, rounds, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
