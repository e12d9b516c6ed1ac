// Package store manages riju's local build-state directory: test-completion
// markers, retrieved packages, and fingerprints of build recipe trees.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/timothygachengo/riju/pkg/hash"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	// DefaultRoot is the build-state directory relative to the project root.
	DefaultRoot = ".riju"
)

type Store interface {
	// Path returns the absolute filesystem path for the given segments
	// joined under the store root. Does not create or verify the path.
	// Use this to get a path for external tools (e.g., an aws s3 cp target).
	Path(segments ...string) string
	// Exists reports whether the path at the given segments exists.
	Exists(segments ...string) (bool, error)
	// EnsureDir creates the directory at segments (starting at store root),
	// including parents.
	EnsureDir(segments ...string) error
	// Remove deletes the entire tree at segments.
	Remove(segments ...string)
	// ReadHash reads a hash marker file at segments. A missing file is the
	// expected "never produced" case and yields hash.None with a nil error;
	// any other read failure is returned as an error.
	ReadHash(segments ...string) (hash.Hash, error)
	// WriteHash writes a hash marker file at segments, creating parent
	// directories as needed.
	WriteHash(h hash.Hash, segments ...string) error
}

// HashTree computes a fingerprint over all file contents under dir, walking
// recursively in sorted order for determinism. A build recipe tree hashes
// identically on every machine with the same contents.
func HashTree(dir string) (hash.Hash, error) {
	h := sha256.New()

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return hash.None, fmt.Errorf("walking %s: %w", dir, err)
	}

	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return hash.None, err
		}
		h.Write([]byte(f))
		h.Write(data)
	}

	return hash.Hash(hex.EncodeToString(h.Sum(nil))), nil
}

// HashFile computes the fingerprint of a single file's contents.
func HashFile(path string) (hash.Hash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return hash.None, fmt.Errorf("reading %s: %w", path, err)
	}
	return hash.Sum(data), nil
}

func New(root string) Store {
	return &store{root: root}
}

type store struct {
	root string
}

var _ Store = &store{}

func (s *store) Path(segments ...string) string {
	return filepath.Join(append([]string{s.root}, segments...)...)
}

func (s *store) Exists(segments ...string) (bool, error) {
	_, err := os.Stat(s.Path(segments...))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *store) EnsureDir(segments ...string) error {
	return os.MkdirAll(s.Path(segments...), dirPerm)
}

func (s *store) Remove(segments ...string) {
	os.RemoveAll(s.Path(segments...))
}

func (s *store) ReadHash(segments ...string) (hash.Hash, error) {
	data, err := os.ReadFile(s.Path(segments...))
	if os.IsNotExist(err) {
		return hash.None, nil
	}
	if err != nil {
		return hash.None, fmt.Errorf("reading hash marker %s: %w", s.Path(segments...), err)
	}
	return hash.Hash(strings.TrimSpace(string(data))), nil
}

func (s *store) WriteHash(h hash.Hash, segments ...string) error {
	path := s.Path(segments...)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, []byte(h+"\n"), filePerm)
}
