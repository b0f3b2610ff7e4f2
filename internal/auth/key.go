package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultKeyCost is the bcrypt cost used for channel keys.
	DefaultKeyCost = bcrypt.DefaultCost
	// MaxKeyLen is the longest key bcrypt accepts, in bytes.
	MaxKeyLen = 72
)

// ErrKeyTooLong is returned by HashKey for keys over MaxKeyLen bytes.
var ErrKeyTooLong = errors.New("key too long")

// HashKey generates a bcrypt hash of a channel key. The empty key means
// "no key required" and is stored as is.
func HashKey(key string, cost int) (string, error) {
	if key == "" {
		return "", nil
	}
	if len(key) > MaxKeyLen {
		return "", fmt.Errorf("hash key: %w (%d bytes, max %d)", ErrKeyTooLong, len(key), MaxKeyLen)
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultKeyCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("hash key: %w", err)
	}
	return string(hash), nil
}

// CompareKey reports whether key opens a channel whose stored key hash is
// hashed. A channel without a key accepts any key.
func CompareKey(hashed, key string) bool {
	if hashed == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(key)) == nil
}
