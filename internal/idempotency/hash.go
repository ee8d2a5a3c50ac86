package idempotency

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// domainKey is a 32-byte BLAKE3 key: an ASCII purpose label, zero padded.
type domainKey [32]byte

var (
	photoDomainKey = domainKey{
		'l', 'a', 'u', 'n', 'c', 'h', 'l', 'o', 'c', 'k', '.', 'p', 'h', 'o', 't', 'o',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	payloadDomainKey = domainKey{
		'l', 'a', 'u', 'n', 'c', 'h', 'l', 'o', 'c', 'k', '.', 'p', 'a', 'y', 'l', 'o',
		'a', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashPhoto returns the hex content hash of image bytes.
func HashPhoto(data []byte) string {
	return keyedHash(photoDomainKey, data)
}

func keyedHash(key domainKey, data []byte) string {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("idempotency: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}
