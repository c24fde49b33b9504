package retrieval

import (
	"strings"
)

// DefaultContextBudget caps the retrieved-documents block, in runes.
const DefaultContextBudget = 4000

const (
	contextHeader    = "\n\nRetrieved documents:\n"
	passageSeparator = "\n\n---\n\n"
)

// FormatContext labels each passage with its source file, joins them and cuts
// the result to budget runes (code points, not bytes). The cut is not
// passage-aware.
func FormatContext(passages []Passage, budget int) string {
	if len(passages) == 0 {
		return ""
	}
	if budget <= 0 {
		budget = DefaultContextBudget
	}

	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString(passageSeparator)
		}
		b.WriteString("Source: ")
		b.WriteString(p.FileName)
		b.WriteByte('\n')
		b.WriteString(p.Text)
	}
	return truncateRunes(b.String(), budget)
}

// BuildSystemPrompt appends the formatted passages to base. Without passages
// base is returned unchanged.
func BuildSystemPrompt(base string, passages []Passage, budget int) string {
	block := FormatContext(passages, budget)
	if block == "" {
		return base
	}
	return base + contextHeader + block
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
