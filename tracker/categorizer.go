package tracker

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Categorizer classifies watched paths into categories and maintains the
// per-category tracked file sets of one session.
type Categorizer struct {
	files         *CategorizedFiles
	startupNS     int64
	maxFileSizeKB int64
	log           *zap.SugaredLogger
}

// NewCategorizer builds a categorizer. startupNS is the process startup
// timestamp in nanoseconds since the epoch, used to reject stale PROB files.
func NewCategorizer(startupNS int64, maxFileSizeKB int64, log *zap.SugaredLogger) *Categorizer {
	return &Categorizer{
		files:         NewCategorizedFiles(),
		startupNS:     startupNS,
		maxFileSizeKB: maxFileSizeKB,
		log:           log,
	}
}

// Files exposes the categorized sets.
func (c *Categorizer) Files() *CategorizedFiles { return c.files }

// Add categorizes a path and inserts a new tracked file into the matching
// set. New files start modified; the set's counter and dirty flag follow.
func (c *Categorizer) Add(path string) string {
	category := c.Categorize(path)
	set := c.files.Set(category)
	set.Insert(NewTrackedFile(path, category))
	return path
}

// Modify re-categorizes a path and rechecks the tracked file's content. An
// unknown path is logged and left alone (it may be newly added and its
// FileAdded event not yet consumed). Ignored paths return the empty string.
func (c *Categorizer) Modify(path string) string {
	category := c.Categorize(path)
	if category == CategoryIgnored {
		return ""
	}
	set := c.files.Set(category)
	f, ok := set.Lookup(path)
	if !ok {
		c.log.Warnw("file not tracked yet (could be newly added)", "path", path)
		return path
	}
	if f.IsModified() {
		// Flag already set; still swap the hash if the content changed.
		if f.CheckContentChanged() {
			set.SetDirty(true)
			c.log.Infow("file modified", "path", path)
		}
		return path
	}
	if f.CheckContentChanged() {
		set.IncrementModified()
		set.SetDirty(true)
		c.log.Infow("file modified", "path", path)
	}
	return path
}

// Remove erases a path from whichever set holds it. Sets are scanned in the
// fixed order Settings, Context, Tasks, Requirements, Subfolders, Ignored.
func (c *Categorizer) Remove(path string) string {
	for _, set := range c.files.All() {
		if set.Remove(path) {
			c.log.Infow("removed file", "path", path)
			break
		}
	}
	return path
}

var binaryMagics = [][]byte{
	{0x50, 0x4B, 0x03, 0x04}, // ZIP / DOCX / XLSX / ODT
	{0x89, 0x50, 0x4E, 0x47}, // PNG
	{0x25, 0x50, 0x44, 0x46}, // PDF
	{0xFF, 0xD8, 0xFF},       // JPEG
	{0x47, 0x49, 0x46, 0x38}, // GIF
	{0x42, 0x4D},             // BMP
	{0x7F, 0x45, 0x4C, 0x46}, // ELF
	{0x4D, 0x5A},             // Windows PE
}

// Categorize applies the classification rules top to bottom. It is
// deterministic for a fixed startup timestamp and size limit.
func (c *Categorizer) Categorize(path string) Category {
	filename := filepath.Base(path)

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return CategorySubFolder
	}

	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if strings.HasSuffix(stem, ".output") {
		c.log.Debugw("ignoring output file", "path", path)
		return CategoryIgnored
	}

	if strings.HasPrefix(filename, "STNG") {
		return CategorySettings
	}
	if strings.HasPrefix(filename, "CNTX") {
		return CategoryContext
	}
	if strings.HasPrefix(filename, "TASK") {
		return CategoryTask
	}

	if info, ok := ParseProbFilename(filename); ok {
		if info.Timestamp < c.startupNS {
			// PROB file created before this run started.
			return CategoryIgnored
		}
		return CategoryRequirement
	}

	header := make([]byte, 8)
	fh, err := os.Open(path)
	if err != nil {
		c.log.Warnw("could not open file for content check", "path", path, "error", err)
		return CategoryIgnored
	}
	n, _ := fh.Read(header)
	fh.Close()
	for _, magic := range binaryMagics {
		if n >= len(magic) && bytes.Equal(header[:len(magic)], magic) {
			c.log.Infow("ignoring known binary type", "path", path)
			return CategoryIgnored
		}
	}

	if !c.looksLikeText(path) {
		return CategoryIgnored
	}

	if c.isOversized(path, filename) {
		return CategoryIgnored
	}

	// anything else is considered a requirement
	return CategoryRequirement
}

// looksLikeText samples the first 256 bytes and rejects files whose share
// of control characters (outside tab/newline/carriage return) exceeds 10%.
// Empty files are rejected too.
func (c *Categorizer) looksLikeText(path string) bool {
	fh, err := os.Open(path)
	if err != nil {
		c.log.Warnw("could not open file for content check", "path", path, "error", err)
		return false
	}
	defer fh.Close()

	buf := make([]byte, 256)
	n, _ := fh.Read(buf)
	if n == 0 {
		c.log.Debugw("ignoring empty file", "path", path)
		return false
	}

	nonText := 0
	for _, b := range buf[:n] {
		if b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if b < 0x20 || b == 0x7F {
			nonText++
		}
	}
	ratio := float64(nonText) / float64(n)
	if ratio > 0.10 {
		c.log.Infow("ignoring binary file", "path", path, "nonTextRatio", ratio)
		return false
	}
	return true
}

// isOversized enforces the configured size cap. Oversized files get a
// sibling <name>.output.txt explaining the skip.
func (c *Categorizer) isOversized(path string, filename string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	limit := c.maxFileSizeKB * 1024
	if limit <= 0 || info.Size() <= limit {
		return false
	}

	note := fmt.Sprintf("File '%s' is too large (%d bytes). Maximum allowed size is %d kB.\nProcessing was skipped.\n",
		filename, info.Size(), c.maxFileSizeKB)
	outputPath := path + ".output.txt"
	if err := os.WriteFile(outputPath, []byte(note), 0o644); err != nil {
		c.log.Errorw("failed to write oversized-file output", "path", outputPath, "error", err)
	}
	c.log.Warnw("ignoring oversized file", "path", path, "size", info.Size())
	return true
}
