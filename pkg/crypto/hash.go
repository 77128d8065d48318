package crypto

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

var ErrTruncateLength = errors.New("truncate length out of range")

// Hash generates a BLAKE2b-256 hash
func Hash(data ...[]byte) ([]byte, error) {
	hash, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}

	for _, d := range data {
		hash.Write(d)
	}
	return hash.Sum(nil), nil
}

// TruncatedHash returns the first n bytes of the BLAKE2b-256 hash of data
func TruncatedHash(n int, data ...[]byte) ([]byte, error) {
	if n <= 0 || n > blake2b.Size256 {
		return nil, ErrTruncateLength
	}

	hash, err := Hash(data...)
	if err != nil {
		return nil, err
	}
	return hash[:n], nil
}

// HashString generates a BLAKE2b hash and returns hex string
func HashString(data []byte) (string, error) {
	hash, err := Hash(data)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hash), nil
}

// DeriveKey derives a 32-byte symmetric key from secret material.
// The context string separates keys derived from the same secret.
func DeriveKey(secret []byte, context string) ([]byte, error) {
	hash, err := blake2b.New256(secret)
	if err != nil {
		return nil, err
	}

	hash.Write([]byte(context))
	return hash.Sum(nil), nil
}
