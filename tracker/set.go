package tracker

import (
	"sort"
	"sync"
)

// TrackedFileSet holds the tracked files of one category. The dirty flag is
// set whenever membership changes and stays set until the consumer clears
// it. ModifiedCount equals the number of member files whose modified flag
// is true at any quiescent instant.
type TrackedFileSet struct {
	mu            sync.Mutex
	files         map[string]*TrackedFile
	dirty         bool
	modifiedCount int
}

func NewTrackedFileSet() *TrackedFileSet {
	return &TrackedFileSet{files: make(map[string]*TrackedFile)}
}

// Insert adds or replaces a file and marks the set dirty. The modified
// counter is incremented because new files start modified.
func (s *TrackedFileSet) Insert(f *TrackedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.files[f.Path()]; ok && old.IsModified() {
		s.modifiedCount--
	}
	s.files[f.Path()] = f
	s.modifiedCount++
	s.dirty = true
}

// Lookup returns the tracked file for path, if present.
func (s *TrackedFileSet) Lookup(path string) (*TrackedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path]
	return f, ok
}

// Remove erases path from the set. If the removed file was modified, the
// counter is decremented. Returns whether the path was a member.
func (s *TrackedFileSet) Remove(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path]
	if !ok {
		return false
	}
	if f.IsModified() {
		s.modifiedCount--
	}
	delete(s.files, path)
	s.dirty = true
	return true
}

// WalkSorted visits every member file in path order. Consumers that
// concatenate content use it so the result is stable across ticks.
func (s *TrackedFileSet) WalkSorted(fn func(f *TrackedFile)) {
	s.mu.Lock()
	paths := make([]string, 0, len(s.files))
	for path := range s.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	members := make([]*TrackedFile, 0, len(paths))
	for _, path := range paths {
		members = append(members, s.files[path])
	}
	s.mu.Unlock()
	for _, f := range members {
		fn(f)
	}
}

// Walk visits every member file. The visit order is unspecified.
func (s *TrackedFileSet) Walk(fn func(f *TrackedFile)) {
	s.mu.Lock()
	members := make([]*TrackedFile, 0, len(s.files))
	for _, f := range s.files {
		members = append(members, f)
	}
	s.mu.Unlock()
	for _, f := range members {
		fn(f)
	}
}

func (s *TrackedFileSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *TrackedFileSet) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *TrackedFileSet) SetDirty(dirty bool) {
	s.mu.Lock()
	s.dirty = dirty
	s.mu.Unlock()
}

func (s *TrackedFileSet) ModifiedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modifiedCount
}

// IncrementModified bumps the modified counter. Callers pair it with a
// false→true transition of a member's modified flag.
func (s *TrackedFileSet) IncrementModified() {
	s.mu.Lock()
	s.modifiedCount++
	s.mu.Unlock()
}

// DecrementModified lowers the modified counter, never below zero.
func (s *TrackedFileSet) DecrementModified() {
	s.mu.Lock()
	if s.modifiedCount > 0 {
		s.modifiedCount--
	}
	s.mu.Unlock()
}

// CategorizedFiles groups the six per-category sets of one session. A given
// path appears in at most one set at any time.
type CategorizedFiles struct {
	Settings     *TrackedFileSet
	Context      *TrackedFileSet
	Tasks        *TrackedFileSet
	Requirements *TrackedFileSet
	Subfolders   *TrackedFileSet
	Ignored      *TrackedFileSet
}

func NewCategorizedFiles() *CategorizedFiles {
	return &CategorizedFiles{
		Settings:     NewTrackedFileSet(),
		Context:      NewTrackedFileSet(),
		Tasks:        NewTrackedFileSet(),
		Requirements: NewTrackedFileSet(),
		Subfolders:   NewTrackedFileSet(),
		Ignored:      NewTrackedFileSet(),
	}
}

// Set returns the set belonging to category.
func (c *CategorizedFiles) Set(category Category) *TrackedFileSet {
	switch category {
	case CategorySettings:
		return c.Settings
	case CategoryContext:
		return c.Context
	case CategoryTask:
		return c.Tasks
	case CategoryRequirement:
		return c.Requirements
	case CategorySubFolder:
		return c.Subfolders
	case CategoryIgnored:
		return c.Ignored
	default:
		return c.Requirements
	}
}

// All returns the sets in the fixed lock order: Settings, Context, Tasks,
// Requirements, Subfolders, Ignored.
func (c *CategorizedFiles) All() []*TrackedFileSet {
	return []*TrackedFileSet{c.Settings, c.Context, c.Tasks, c.Requirements, c.Subfolders, c.Ignored}
}
