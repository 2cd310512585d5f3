package session

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// KeySize is the length of a Key in bytes.
const KeySize = blake2b.Size256

// fingerprintLen is how many key bytes String renders.
const fingerprintLen = 6

// Key identifies a credential pair without retaining it.
type Key [KeySize]byte

// keySalt keys the digest so keys are not comparable across processes.
var keySalt = newSalt()

func newSalt() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("session: reading random salt: " + err.Error())
	}
	return b
}

// DeriveKey derives the cache key for a principal and secret.
// The principal is length-prefixed so ("ab","c") and ("a","bc") differ.
func DeriveKey(principal, secret string) Key {
	h, err := blake2b.New256(keySalt)
	if err != nil {
		// Only possible with a salt longer than 64 bytes.
		panic("session: " + err.Error())
	}

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(principal)))
	h.Write(n[:])
	h.Write([]byte(principal))
	h.Write([]byte(secret))

	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// String returns a short hex fingerprint, safe to log.
func (k Key) String() string {
	return hex.EncodeToString(k[:fingerprintLen])
}

// full returns the whole key in hex.
func (k Key) full() string {
	return hex.EncodeToString(k[:])
}
