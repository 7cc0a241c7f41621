package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/jonwraymond/docketcache/store"
)

// DigestLen is the number of hex characters kept from each SHA-256 digest.
const DigestLen = 12

// MaxKeyLength is the longest key the command line accepts.
const MaxKeyLength = 512

// Resolver maps (group, key) to a record file inside a store root.
//
// The name is {digest(group)}-{digest(key)}, where digest is the first six
// bytes of SHA-256 in hex. It depends on nothing but its inputs, so every
// process and every restart agrees on it. Truncation means two distinct
// pairs can share a file; the cache detects that by comparing the group and
// key stored in the record and treats a mismatch as a miss.
type Resolver struct {
	root string
}

// NewResolver creates a Resolver for root.
func NewResolver(root string) Resolver {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return Resolver{root: root}
}

// Name returns the record file name without extension.
func (r Resolver) Name(group, key string) string {
	return digest(group) + "-" + digest(key)
}

// Path returns the full record path.
func (r Resolver) Path(group, key string) string {
	return filepath.Join(r.root, r.Name(group, key)+store.Extension)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:DigestLen/2])
}

// ValidateKey checks a key given on the command line.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}
