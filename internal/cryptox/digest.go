package cryptox

import (
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// NewDigest returns the hash used to fingerprint stored uploads.
func NewDigest() hash.Hash {
	// blake2b.New256 only fails for keys longer than 64 bytes.
	h, _ := blake2b.New256(nil)
	return h
}

// DigestHex returns the hex fingerprint of data.
func DigestHex(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
