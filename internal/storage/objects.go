package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ObjectStore keeps object bytes on disk under a root directory
type ObjectStore struct {
	root string
}

// NewObjectStore creates the root directory if needed
func NewObjectStore(root string) (*ObjectStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create object root: %w", err)
	}
	return &ObjectStore{root: root}, nil
}

// Root returns the directory objects are stored under
func (s *ObjectStore) Root() string {
	return s.root
}

// Path resolves key to a file path inside the root
func (s *ObjectStore) Path(key string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean("/" + key))
	if key == "" || clean == "/" || slices.Contains(strings.Split(key, "/"), "..") {
		return "", fmt.Errorf("invalid object key %q: %w", key, ErrNotFound)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean[1:])), nil
}

// Put writes r under key and returns the number of bytes written. The object
// appears atomically.
func (s *ObjectStore) Put(key string, r io.Reader) (int64, error) {
	path, err := s.Path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("commit object: %w", err)
	}
	return n, nil
}

// Open opens the object stored under key
func (s *ObjectStore) Open(key string) (*os.File, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("object %s: %w", key, ErrNotFound)
	}
	return f, err
}
