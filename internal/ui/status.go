package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo is what `docchat status` reports.
type StatusInfo struct {
	DataDir    string `json:"data_dir"`
	Files      int    `json:"files"`
	Chunks     int    `json:"chunks"`
	Vectors    int    `json:"vectors"`
	Messages   int    `json:"messages"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Backend    string `json:"backend"`
	Generation uint64 `json:"generation"`

	// Storage sizes in bytes.
	IndexSize    int64 `json:"index_size"`
	DatabaseSize int64 `json:"database_size"`

	LastIngested time.Time `json:"last_ingested,omitzero"`

	CompletionModel string `json:"completion_model"`
	// CompletionReady is false when no API key is configured.
	CompletionReady bool `json:"completion_ready"`

	// Check is set when a consistency check was run.
	Check *CheckSummary `json:"check,omitempty"`
}

// CheckSummary is the outcome of a consistency check.
type CheckSummary struct {
	Checked  int            `json:"checked"`
	Problems map[string]int `json:"problems"`
	Duration time.Duration  `json:"duration"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor), now: time.Now}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("docchat status: "+info.DataDir))

	_, _ = fmt.Fprintf(r.out, "  Files:        %d\n", info.Files)
	_, _ = fmt.Fprintf(r.out, "  Chunks:       %d\n", info.Chunks)
	_, _ = fmt.Fprintf(r.out, "  Vectors:      %d\n", info.Vectors)
	_, _ = fmt.Fprintf(r.out, "  Messages:     %d\n", info.Messages)
	if !info.LastIngested.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last upload:  %s\n", r.formatTime(info.LastIngested))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Index:")
	_, _ = fmt.Fprintf(r.out, "    Model:      %s (%d dims)\n", info.Model, info.Dimensions)
	_, _ = fmt.Fprintf(r.out, "    Backend:    %s, generation %d\n", info.Backend, info.Generation)
	_, _ = fmt.Fprintf(r.out, "    Vectors:    %s\n", FormatBytes(info.IndexSize))
	_, _ = fmt.Fprintf(r.out, "    Database:   %s\n", FormatBytes(info.DatabaseSize))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Completion:")
	_, _ = fmt.Fprintf(r.out, "    Model:      %s\n", info.CompletionModel)
	if info.CompletionReady {
		_, _ = fmt.Fprintf(r.out, "    Status:     %s\n", r.styles.Success.Render("ready"))
	} else {
		_, _ = fmt.Fprintf(r.out, "    Status:     %s\n", r.styles.Warning.Render("no API key, replies will be LLM errors"))
	}

	if info.Check != nil {
		_, _ = fmt.Fprintln(r.out)
		total := 0
		for _, n := range info.Check.Problems {
			total += n
		}
		if total == 0 {
			_, _ = fmt.Fprintf(r.out, "  Consistency:  %s (%d slots in %s)\n",
				r.styles.Success.Render("ok"), info.Check.Checked, info.Check.Duration.Round(time.Millisecond))
		} else {
			_, _ = fmt.Fprintf(r.out, "  Consistency:  %s\n", r.styles.Warning.Render(fmt.Sprintf("%d problem(s), skipped at retrieval", total)))
			for _, kind := range []string{"missing_metadata", "missing_chunk", "file_mismatch", "unindexed_chunk"} {
				if n := info.Check.Problems[kind]; n > 0 {
					_, _ = fmt.Fprintf(r.out, "    %-17s %d\n", kind+":", n)
				}
			}
		}
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) formatTime(t time.Time) string {
	diff := r.now().Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
