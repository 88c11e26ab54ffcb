package ingest

import (
	"fmt"
	"hash"
	"io"

	"github.com/dmitrijs2005/smugglebox/internal/cryptox"
)

// holdBack is the number of trailing bytes never flushed before Close: the
// CRLF that precedes the closing boundary belongs to the MIME framing and is
// only recognizable once the body ends.
const holdBack = 2

// chunkWriter assembles arbitrarily sized writes into fixed-size chunks,
// de-obfuscates each chunk at its absolute stream offset and writes it to w.
type chunkWriter struct {
	w      io.Writer
	key    []byte
	size   int
	buf    []byte
	offset int64
	digest hash.Hash
	chunks int
}

// newChunkWriter returns a writer that flushes size-byte chunks to w. A nil
// key stores bytes untouched.
func newChunkWriter(w io.Writer, key []byte, size int) *chunkWriter {
	return &chunkWriter{
		w:      w,
		key:    key,
		size:   size,
		buf:    make([]byte, 0, size+readBufferSize),
		digest: cryptox.NewDigest(),
	}
}

func (c *chunkWriter) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	for len(c.buf)-holdBack >= c.size {
		if err := c.flush(c.size); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close drops one trailing line terminator and flushes the residue.
func (c *chunkWriter) Close() error {
	c.buf = trimEOL(c.buf)
	for len(c.buf) > 0 {
		if err := c.flush(min(c.size, len(c.buf))); err != nil {
			return err
		}
	}
	return nil
}

// Written is the number of payload bytes stored so far.
func (c *chunkWriter) Written() int64 { return c.offset }

// Sum returns the digest of the stored (de-obfuscated) bytes.
func (c *chunkWriter) Sum() []byte { return c.digest.Sum(nil) }

func (c *chunkWriter) flush(n int) error {
	chunk := c.buf[:n]
	if c.key != nil {
		cryptox.Mask(chunk, chunk, c.key, c.offset)
	}
	_, _ = c.digest.Write(chunk)

	if _, err := c.w.Write(chunk); err != nil {
		return fmt.Errorf("write chunk at offset %d: %w", c.offset, err)
	}

	c.offset += int64(n)
	c.chunks++
	c.buf = c.buf[:copy(c.buf, c.buf[n:])]
	return nil
}

// trimEOL removes a single trailing "\r\n" or "\n".
func trimEOL(b []byte) []byte {
	if n := len(b); n >= 2 && b[n-2] == '\r' && b[n-1] == '\n' {
		return b[:n-2]
	}
	if n := len(b); n >= 1 && b[n-1] == '\n' {
		return b[:n-1]
	}
	return b
}
