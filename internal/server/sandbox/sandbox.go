// Package sandbox confines request paths to the service root.
package sandbox

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/smugglebox/internal/common"
	"github.com/dmitrijs2005/smugglebox/internal/filex"
)

// Path is a request path that passed the sandbox.
type Path struct {
	// Abs is the absolute filesystem path.
	Abs string
	// Rel is the slash-separated path relative to the root, "." for the root.
	Rel string
}

// IsRoot reports whether p is the service root itself.
func (p Path) IsRoot() bool { return p.Rel == "." }

// Name returns the last element of the path.
func (p Path) Name() string { return path.Base(p.Rel) }

// Sandbox resolves client-supplied paths against a fixed root directory.
// It is immutable after New and safe for concurrent use.
type Sandbox struct {
	root string
	self string
}

// New returns a sandbox rooted at root. self is the path of the running
// binary; it can never be read through the sandbox even when it lives under
// root. An empty self disables that check.
func New(root, self string) (*Sandbox, error) {
	r, err := filex.Canonical(root)
	if err != nil {
		return nil, fmt.Errorf("sandbox root: %w", err)
	}

	fi, err := os.Stat(r)
	if err != nil {
		return nil, fmt.Errorf("sandbox root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("sandbox root %s is not a directory", r)
	}

	if self != "" {
		if s, err := filex.Canonical(self); err == nil {
			self = s
		} else if s, err := filepath.Abs(self); err == nil {
			self = s
		}
	}

	return &Sandbox{root: r, self: self}, nil
}

// Root returns the canonical service root.
func (s *Sandbox) Root() string { return s.root }

// Resolve normalizes raw against the root.
//
// Paths that leave the root or name the running binary fail with
// common.ErrForbidden. Paths that are hidden from listings (dotfiles and
// partial uploads) fail with common.ErrNotFound.
func (s *Sandbox) Resolve(raw string) (Path, error) {
	rel := strings.TrimLeft(filepath.FromSlash(raw), string(filepath.Separator))
	abs := filepath.Join(s.root, rel)

	if !s.contains(abs) {
		return Path{}, fmt.Errorf("%w: %q escapes root", common.ErrForbidden, raw)
	}
	if s.isSelf(abs) {
		return Path{}, fmt.Errorf("%w: %q is the server binary", common.ErrForbidden, raw)
	}

	r, err := filepath.Rel(s.root, abs)
	if err != nil {
		return Path{}, fmt.Errorf("%w: %v", common.ErrForbidden, err)
	}
	r = filepath.ToSlash(r)

	if hidden(r) {
		return Path{}, fmt.Errorf("%w: %q", common.ErrNotFound, raw)
	}

	return Path{Abs: abs, Rel: r}, nil
}

// Visible reports whether a directory entry may be listed or fetched.
func (s *Sandbox) Visible(name, abs string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, common.PartialSuffix) {
		return false
	}
	return !s.isSelf(abs)
}

// isSelf compares both the lexical and, when abs exists, the
// symlink-resolved form of abs with the binary's canonical path.
func (s *Sandbox) isSelf(abs string) bool {
	if s.self == "" {
		return false
	}
	if abs == s.self {
		return true
	}
	resolved, err := filepath.EvalSymlinks(abs)
	return err == nil && resolved == s.self
}

func (s *Sandbox) contains(abs string) bool {
	if abs == s.root {
		return true
	}
	prefix := s.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(abs, prefix)
}

func hidden(rel string) bool {
	if rel == "." {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return strings.HasSuffix(rel, common.PartialSuffix)
}
