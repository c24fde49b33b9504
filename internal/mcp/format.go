package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/docchat/internal/chat"
	"github.com/Aman-CERP/docchat/internal/retrieval"
	"github.com/Aman-CERP/docchat/internal/store"
)

// FormatPassages renders retrieved passages as markdown.
func FormatPassages(query string, passages []retrieval.Passage) string {
	if len(passages) == 0 {
		return fmt.Sprintf("No passages found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Passages for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d passage", len(passages))
	if len(passages) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, p := range passages {
		fmt.Fprintf(&sb, "### %d. %s (slot %d, distance: %.4f)\n\n", i+1, p.FileName, p.Slot, p.Distance)
		sb.WriteString(p.Text)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}

// FormatReply renders a chat reply with its sources.
func FormatReply(reply *chat.Reply) string {
	var sb strings.Builder
	sb.WriteString(reply.Content)
	if len(reply.Sources) > 0 {
		sb.WriteString("\n\n**Sources:** ")
		names := make([]string, 0, len(reply.Sources))
		seen := make(map[string]bool, len(reply.Sources))
		for _, src := range reply.Sources {
			if seen[src.FileName] {
				continue
			}
			seen[src.FileName] = true
			names = append(names, fmt.Sprintf("`%s`", src.FileName))
		}
		sb.WriteString(strings.Join(names, ", "))
	}
	return sb.String()
}

// FormatDocuments renders the uploaded file list as a markdown table.
func FormatDocuments(files []store.FileInfo) string {
	if len(files) == 0 {
		return "No documents have been uploaded."
	}

	var sb strings.Builder
	sb.WriteString("| File | Chunks | Last ingested |\n|---|---|---|\n")
	for _, f := range files {
		fmt.Fprintf(&sb, "| %s | %d | %s |\n", f.FileName, f.Chunks, f.LastIngested.UTC().Format(time.RFC3339))
	}
	return sb.String()
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, lo, hi int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < lo {
		return lo
	}
	if limit > hi {
		return hi
	}
	return limit
}

func toPassageOutputs(passages []retrieval.Passage) []PassageOutput {
	out := make([]PassageOutput, 0, len(passages))
	for _, p := range passages {
		out = append(out, PassageOutput{FileName: p.FileName, Slot: p.Slot, Distance: p.Distance, Text: p.Text})
	}
	return out
}

func toAskOutput(reply *chat.Reply) AskOutput {
	out := AskOutput{
		Reply:            reply.Content,
		Sources:          make([]SourceOutput, 0, len(reply.Sources)),
		CompletionFailed: reply.CompletionFailed,
	}
	for _, s := range reply.Sources {
		out.Sources = append(out.Sources, SourceOutput{FileName: s.FileName, Slot: s.Slot, Distance: s.Distance})
	}
	return out
}

func toDocumentOutputs(files []store.FileInfo) []DocumentOutput {
	out := make([]DocumentOutput, 0, len(files))
	for _, f := range files {
		out = append(out, DocumentOutput{
			FileName:      f.FileName,
			Chunks:        f.Chunks,
			FirstIngested: f.FirstIngested.UTC().Format(time.RFC3339),
			LastIngested:  f.LastIngested.UTC().Format(time.RFC3339),
		})
	}
	return out
}
