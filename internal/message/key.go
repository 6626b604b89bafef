package message

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/dchest/siphash"
)

// KeyHasher computes the keyed SipHash-2-4 of routing keys. The key is
// random per broker run so on-wire keys from untrusted clients cannot be
// forged to collide predictably (spec.md §3, §9) — the Go equivalent of
// the original source's SipHasher24::new_with_keys(0, random::<u64>()).
type KeyHasher struct {
	k0, k1 uint64
}

// NewKeyHasher creates a hasher seeded from crypto/rand.
func NewKeyHasher() (*KeyHasher, error) {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	return &KeyHasher{k0: 0, k1: binary.LittleEndian.Uint64(seed[:])}, nil
}

// NewKeyHasherWithSeed builds a hasher from an explicit seed, shared by a
// participant that learned the broker's seed over the Auth handshake (or by
// a test that needs a deterministic hasher).
func NewKeyHasherWithSeed(k0, k1 uint64) *KeyHasher {
	return &KeyHasher{k0: k0, k1: k1}
}

// Hash returns the 64-bit keyed hash of a routing key string.
func (h *KeyHasher) Hash(key string) uint64 {
	return siphash.Hash(h.k0, h.k1, []byte(key))
}

// Seed returns the hasher's key pair, so the broker that generated it can
// hand it to participants during the Auth handshake. Every hasher in a
// given broker run must be built from the same seed, since the broker
// resolves its subscription map with one hasher and every sender computes
// its frames' key hash with its own.
func (h *KeyHasher) Seed() (uint64, uint64) {
	return h.k0, h.k1
}
