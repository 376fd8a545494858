// Package pool is the append-only store of binary package artifacts.
// Entries are created once and never modified or removed, which is what
// lets every historical index remain reconstructable from a tree revision.
package pool

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/djcass44/apt-tree/internal/write"
)

// Store is rooted at a single directory. Concurrent writers racing on the
// same entry serialize on a per-path lock; writers on different entries do
// not contend.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(root string) *Store {
	return &Store{
		root:  root,
		locks: map[string]*sync.Mutex{},
	}
}

// Path returns the absolute location of an entry.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Has reports whether an entry already exists.
func (s *Store) Has(rel string) bool {
	info, err := os.Stat(s.Path(rel))
	return err == nil && info.Mode().IsRegular()
}

// Verify checks an existing entry against the digest its stanza declares.
// A mismatch is a content-integrity fault, never silently repaired.
func (s *Store) Verify(rel, alg, digest string) error {
	if digest == "" {
		return nil
	}
	got, err := FileDigest(s.Path(rel), alg)
	if err != nil {
		return err
	}
	if got != digest {
		return &HashMismatchError{Path: rel, Want: digest, Got: got}
	}
	return nil
}

// Add stores the content of r at rel. An entry that already exists with
// matching digest is a no-op; with a different digest it is a
// HashMismatchError and the existing entry is left untouched. The content
// read from r is itself digest-checked before it becomes visible.
func (s *Store) Add(rel string, r io.Reader, alg, digest string) (bool, error) {
	unlock := s.lock(rel)
	defer unlock()

	if s.Has(rel) {
		if err := s.Verify(rel, alg, digest); err != nil {
			return false, err
		}
		return false, nil
	}

	var h hash.Hash
	if digest != "" {
		var err error
		h, err = newHash(alg)
		if err != nil {
			return false, err
		}
		r = io.TeeReader(r, h)
	}
	err := write.Atomically(s.Path(rel), func(w io.Writer) error {
		if _, err := io.Copy(w, r); err != nil {
			return err
		}
		if h != nil {
			if got := hex.EncodeToString(h.Sum(nil)); got != digest {
				return &HashMismatchError{Path: rel, Want: digest, Got: got}
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddFile is Add reading from a local file.
func (s *Store) AddFile(rel, src, alg, digest string) (bool, error) {
	f, err := os.Open(filepath.Clean(src))
	if err != nil {
		return false, err
	}
	defer f.Close()
	return s.Add(rel, f, alg, digest)
}

func (s *Store) lock(rel string) func() {
	s.mu.Lock()
	l, ok := s.locks[rel]
	if !ok {
		l = &sync.Mutex{}
		s.locks[rel] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// FileDigest returns the hex digest of a file under the given algorithm.
func FileDigest(path, alg string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := newHash(alg)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func newHash(alg string) (hash.Hash, error) {
	switch alg {
	case "sha256":
		return sha256.New(), nil
	case "md5":
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm: %q", alg)
	}
}
