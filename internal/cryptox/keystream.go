// Package cryptox implements the session keystream used to disguise file
// payloads in transit, plus the digest used to fingerprint stored uploads.
//
// The keystream is a plain repeating-key XOR. It is an obfuscation layer
// against signature scanners and MIME sniffing, not a cipher: the key is sent
// to every browser that loads a listing.
package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/dmitrijs2005/smugglebox/internal/common"
)

// KeySize is the length of a session key in bytes.
const KeySize = 16

// Key is an immutable session key. The zero value is not usable; obtain a
// key from GenerateKey or KeyFromBytes.
type Key struct {
	b [KeySize]byte
}

// GenerateKey returns a new random session key.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k.b[:]); err != nil {
		return Key{}, fmt.Errorf("generate key: %w", err)
	}
	return k, nil
}

// KeyFromBytes builds a key from exactly KeySize bytes.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return Key{}, fmt.Errorf("%w: want %d bytes, got %d", common.ErrInvalidKey, KeySize, len(b))
	}
	copy(k.b[:], b)
	return k, nil
}

// Bytes returns a copy of the key material.
func (k Key) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, k.b[:])
	return out
}

// Base64 returns the key in standard base64, as embedded in client pages.
func (k Key) Base64() string {
	return base64.StdEncoding.EncodeToString(k.b[:])
}

// Apply transforms data as if it started at the given absolute stream offset.
func (k Key) Apply(data []byte, offset int64) []byte {
	return Transform(data, k.b[:], offset)
}

// Transform XORs every byte at logical position offset+i with
// key[(offset+i) mod len(key)] and returns the result in a new slice.
//
// Transform is its own inverse for a fixed key and offset, and transforming
// consecutive chunks with their cumulative offsets yields the same bytes as
// transforming the whole stream at once.
func Transform(data, key []byte, offset int64) []byte {
	out := make([]byte, len(data))
	Mask(out, data, key, offset)
	return out
}

// Mask is the allocation-free form of Transform. dst must be at least
// len(src) bytes long and may alias src. An empty key copies src unchanged.
func Mask(dst, src, key []byte, offset int64) {
	n := int64(len(key))
	if n == 0 {
		copy(dst, src)
		return
	}
	j := int(offset % n)
	if j < 0 {
		j += int(n)
	}
	for i, b := range src {
		dst[i] = b ^ key[j]
		j++
		if j == len(key) {
			j = 0
		}
	}
}

type reader struct {
	r      io.Reader
	key    []byte
	offset int64
}

// NewReader returns a reader that yields the transform of r, treating the
// first byte read as absolute position offset.
func NewReader(r io.Reader, key Key, offset int64) io.Reader {
	return &reader{r: r, key: key.Bytes(), offset: offset}
}

func (t *reader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		Mask(p[:n], p[:n], t.key, t.offset)
		t.offset += int64(n)
	}
	return n, err
}
