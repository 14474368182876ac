package tracker

import (
	"fmt"
	"os"
	"sync"

	"github.com/zeebo/xxh3"
)

// TrackedFile is one watched file. The hash/modified pair is guarded by the
// mutex; all state transitions on a file are serialized through it.
type TrackedFile struct {
	path     string
	category Category

	mu       sync.Mutex
	lastHash string
	modified bool
}

// NewTrackedFile hashes the file and marks it modified. All new files start
// modified so they are picked up on the next tick.
func NewTrackedFile(path string, category Category) *TrackedFile {
	f := &TrackedFile{
		path:     path,
		category: category,
		modified: true,
	}
	f.lastHash = computeFileHash(path)
	return f
}

func (f *TrackedFile) Path() string       { return f.path }
func (f *TrackedFile) Category() Category { return f.category }

// IsModified reports the modified flag.
func (f *TrackedFile) IsModified() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modified
}

// MarkModified sets the modified flag.
func (f *TrackedFile) MarkModified(modified bool) {
	f.mu.Lock()
	f.modified = modified
	f.mu.Unlock()
}

// ContentAndClearModified reads the file and clears the modified flag.
func (f *TrackedFile) ContentAndClearModified() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("read tracked file %s: %w", f.path, err)
	}
	f.modified = false
	return string(data), nil
}

// CheckContentChanged rehashes the file. If the hash differs from the stored
// one it is swapped in and the file is marked modified. Returns whether the
// content really changed.
func (f *TrackedFile) CheckContentChanged() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	newHash := computeFileHash(f.path)
	if newHash != f.lastHash {
		f.lastHash = newHash
		f.modified = true
		return true
	}
	return false
}

// Hash returns the last observed content hash.
func (f *TrackedFile) Hash() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastHash
}

func computeFileHash(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := xxh3.Hash128(data)
	return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo)
}
