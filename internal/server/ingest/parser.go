// Package ingest consumes single-file multipart/form-data uploads straight
// off the connection and stores them under the sandbox root.
//
// The body is read line by line, the way the MIME framing is laid out, while
// the payload is written to disk in fixed-size chunks. A file is staged as
// "<name>.partial" and renamed to its final name only after the closing
// boundary (or the end of the stream) was reached without error.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"

	"github.com/dmitrijs2005/smugglebox/internal/common"
	"github.com/dmitrijs2005/smugglebox/internal/cryptox"
	"github.com/dmitrijs2005/smugglebox/internal/logging"
	"github.com/dmitrijs2005/smugglebox/internal/server/sandbox"
)

// ChunkSize is the size of every write to the staging file.
const ChunkSize = 4 * 1024 * 1024

// readBufferSize bounds a single line fragment; longer lines are consumed in
// pieces.
const readBufferSize = 64 * 1024

// Result describes a stored upload.
type Result struct {
	// Name is the slash-separated path relative to the root.
	Name   string
	Path   sandbox.Path
	Size   int64
	Digest string
}

// Parser stores uploads. It is safe for concurrent use.
type Parser struct {
	sandbox   *sandbox.Sandbox
	key       cryptox.Key
	smuggling bool
	chunkSize int
	locks     *nameLocks
	logger    logging.Logger
}

// Option customizes a Parser.
type Option func(*Parser)

// WithChunkSize overrides ChunkSize.
func WithChunkSize(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// New returns a Parser. When smuggling is enabled uploaded bytes are
// expected to be masked with key and are unmasked before they hit the disk.
func New(sb *sandbox.Sandbox, key cryptox.Key, smuggling bool, l logging.Logger, opts ...Option) *Parser {
	p := &Parser{
		sandbox:   sb,
		key:       key,
		smuggling: smuggling,
		chunkSize: ChunkSize,
		locks:     newNameLocks(),
		logger:    l.With("module", "ingest"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Ingest reads one multipart body and stores its file part.
//
// Framing problems are reported as common.ErrUnsupportedContentType,
// common.ErrMalformedMultipart or common.ErrMissingFilename; a filename the
// sandbox refuses yields common.ErrForbidden. Any other error is an I/O
// failure, in which case the partial file is left on disk.
func (p *Parser) Ingest(ctx context.Context, contentType string, body io.Reader) (*Result, error) {
	boundary, err := boundaryOf(contentType)
	if err != nil {
		return nil, err
	}
	delim := []byte("--" + boundary)

	br := bufio.NewReaderSize(body, readBufferSize)

	first, err := readHeaderLine(br)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if !isDelimiterLine(first, delim) {
		return nil, common.ErrMalformedMultipart
	}

	filename, err := readPartHeaders(br)
	if err != nil {
		return nil, err
	}

	target, err := p.target(filename)
	if err != nil {
		return nil, err
	}

	unlock := p.locks.Lock(target.Abs)
	defer unlock()

	partial := target.Abs + common.PartialSuffix
	f, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", partial, err)
	}

	var key []byte
	if p.smuggling {
		key = p.key.Bytes()
	}
	cw := newChunkWriter(f, key, p.chunkSize)

	if err := p.copyBody(ctx, br, delim, cw); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := cw.Close(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", partial, err)
	}

	if err := os.Rename(partial, target.Abs); err != nil {
		return nil, fmt.Errorf("rename %s: %w", partial, err)
	}

	res := &Result{Name: target.Rel, Path: target, Size: cw.Written(), Digest: hex.EncodeToString(cw.Sum())}
	p.logger.Info(ctx, "upload stored", "name", target.Rel, "bytes", res.Size, "chunks", cw.chunks, "digest", res.Digest)

	return res, nil
}

// copyBody feeds payload lines to w until a line starts with the boundary
// delimiter or the stream ends.
func (p *Parser) copyBody(ctx context.Context, br *bufio.Reader, delim []byte, w io.Writer) error {
	atLineStart := true
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("upload aborted: %w", err)
		}

		frag, err := br.ReadSlice('\n')
		if len(frag) > 0 {
			if atLineStart && bytes.HasPrefix(frag, delim) {
				return nil
			}
			if _, werr := w.Write(frag); werr != nil {
				return werr
			}
			atLineStart = frag[len(frag)-1] == '\n'
		}

		switch {
		case err == nil, errors.Is(err, bufio.ErrBufferFull):
		case errors.Is(err, io.EOF):
			return nil
		default:
			return fmt.Errorf("read upload body: %w", err)
		}
	}
}

// target maps the client filename to its final location.
func (p *Parser) target(filename string) (sandbox.Path, error) {
	t, err := p.sandbox.Resolve(filename)
	if errors.Is(err, common.ErrNotFound) {
		return sandbox.Path{}, fmt.Errorf("%w: cannot upload hidden name %q", common.ErrForbidden, filename)
	}
	if err != nil {
		return sandbox.Path{}, err
	}
	if t.IsRoot() {
		return sandbox.Path{}, common.ErrMissingFilename
	}
	return t, nil
}

// isDelimiterLine reports whether line is the boundary delimiter, allowing
// the linear whitespace padding RFC 2046 permits after it.
func isDelimiterLine(line, delim []byte) bool {
	rest, ok := bytes.CutPrefix(trimEOL(line), delim)
	return ok && len(bytes.TrimRight(rest, " \t")) == 0
}

func boundaryOf(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		return "", common.ErrUnsupportedContentType
	}
	b := params["boundary"]
	if b == "" {
		return "", common.ErrUnsupportedContentType
	}
	return b, nil
}

// readHeaderLine returns one complete framing line. Framing lines longer than
// the read buffer are malformed.
func readHeaderLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadSlice('\n')
	switch {
	case err == nil:
		return line, nil
	case errors.Is(err, bufio.ErrBufferFull):
		return nil, common.ErrMalformedMultipart
	case errors.Is(err, io.EOF):
		return line, io.EOF
	default:
		return nil, fmt.Errorf("read upload headers: %w", err)
	}
}

// readPartHeaders consumes the part headers up to the blank line and returns
// the filename from Content-Disposition.
func readPartHeaders(br *bufio.Reader) (string, error) {
	var filename string
	for {
		line, err := readHeaderLine(br)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}

		text := string(trimEOL(line))
		if text == "" {
			break
		}

		name, value, ok := strings.Cut(text, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Content-Disposition") {
			filename = dispositionFilename(strings.TrimSpace(value))
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}

	if filename == "" {
		return "", common.ErrMissingFilename
	}
	return filename, nil
}

func dispositionFilename(value string) string {
	if _, params, err := mime.ParseMediaType(value); err == nil {
		return params["filename"]
	}

	// Lenient fallback for values mime rejects, e.g. unquoted spaces.
	for _, part := range strings.Split(value, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.EqualFold(k, "filename") {
			return strings.Trim(v, `"`)
		}
	}
	return ""
}
