package chunk

import (
	"strings"
)

// WordChunker slides a fixed-size window over whitespace-delimited words.
type WordChunker struct {
	opts Options
}

var _ Chunker = (*WordChunker)(nil)

// NewWordChunker creates a chunker, rejecting options that would not advance.
func NewWordChunker(opts Options) (*WordChunker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &WordChunker{opts: opts}, nil
}

// Options returns the chunker's window configuration.
func (c *WordChunker) Options() Options {
	return c.opts
}

// Chunk splits text into windows of at most Size words, each re-joined with
// single spaces. Windows start every Stride words until the start passes the
// last word, so the tail is repeated in shorter overlap windows. Text with no
// words yields nil.
func (c *WordChunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	stride := c.opts.Stride()
	chunks := make([]string, 0, c.ExpectedChunks(len(words)))
	for start := 0; start < len(words); start += stride {
		end := min(start+c.opts.Size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

// ExpectedChunks returns the number of chunks Chunk produces for n words:
// ceil(n / stride), and 0 for n <= 0.
func (c *WordChunker) ExpectedChunks(n int) int {
	if n <= 0 {
		return 0
	}
	stride := c.opts.Stride()
	return (n + stride - 1) / stride
}
