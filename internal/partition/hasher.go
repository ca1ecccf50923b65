package partition

import (
	"crypto/sha256"
	"encoding/binary"
)

// Hasher is the pluggable hash function used to map a key onto the hash
// space. The hash-function implementation is explicitly out of scope for
// this module; SHA256Hasher is only the compiled-in default.
type Hasher interface {
	Sum64(key []byte) uint64
}

// SHA256Hasher hashes with SHA-256 and truncates to the first 8 bytes,
// big-endian -- the same construction as the teacher's ConsistentHasher.hash.
type SHA256Hasher struct{}

// Sum64 implements Hasher.
func (SHA256Hasher) Sum64(key []byte) uint64 {
	sum := sha256.Sum256(key)
	return binary.BigEndian.Uint64(sum[:8])
}

// DefaultHasher is the engine default when no Hasher is configured.
var DefaultHasher Hasher = SHA256Hasher{}
