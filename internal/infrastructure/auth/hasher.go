package auth

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hasher is a salted one-way hash used for everything persisted in place of a
// raw value: attempt-log dimensions and operator tokens.
type Hasher struct {
	key []byte
}

// NewHasher creates a hasher keyed with salt. Salts longer than a BLAKE2b key
// are compressed first; an empty salt yields an unkeyed hash.
func NewHasher(salt string) *Hasher {
	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &Hasher{key: key}
}

// Hash returns the hex digest of value
func (h *Hasher) Hash(value string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// unreachable: key length is bounded in NewHasher
		panic(err)
	}
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
