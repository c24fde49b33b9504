// Package chunk splits extracted document text into overlapping word windows,
// the unit that is embedded and retrieved.
package chunk

import "fmt"

// Chunk size defaults, in whitespace-delimited words.
const (
	DefaultSize    = 600
	DefaultOverlap = 100
)

// Options configures the word window.
type Options struct {
	Size    int // Words per window
	Overlap int // Words shared by consecutive windows; must be < Size
}

// DefaultOptions returns 600-word windows overlapping by 100 words.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate rejects windows that would not advance.
func (o Options) Validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", o.Size)
	}
	if o.Overlap < 0 {
		return fmt.Errorf("chunk overlap must be non-negative, got %d", o.Overlap)
	}
	if o.Overlap >= o.Size {
		return fmt.Errorf("chunk overlap must be less than size (%d), got %d", o.Size, o.Overlap)
	}
	return nil
}

// Stride is the number of words each window advances by.
func (o Options) Stride() int {
	return o.Size - o.Overlap
}

// Chunker is the interface for splitting text into chunks.
type Chunker interface {
	Chunk(text string) []string
}
