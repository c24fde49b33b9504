// Package output provides consistent CLI output: status lines, key/value
// blocks, progress and JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Writer provides formatted output for CLI commands.
type Writer struct {
	out  io.Writer
	tty  bool
	keyW int
}

// New creates a Writer. Icons and in-place progress are used only when out
// is a terminal.
func New(out io.Writer) *Writer {
	return &Writer{out: out, tty: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTTY reports whether the writer targets a terminal.
func (w *Writer) IsTTY() bool {
	return w.tty
}

// Status prints a message with a leading marker.
// Errors from writing are ignored for console output.
func (w *Writer) Status(marker, msg string) {
	if marker != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", marker, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted message with a leading marker.
func (w *Writer) Statusf(marker, format string, args ...any) {
	w.Status(marker, fmt.Sprintf(format, args...))
}

func (w *Writer) marker(icon, plain string) string {
	if w.tty {
		return icon
	}
	return plain
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.marker("✅", "ok:"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.marker("⚠️ ", "warning:"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.marker("❌", "error:"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Header prints a title followed by a blank line.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintf(w.out, "%s\n\n", title)
}

// KeyValue prints an aligned "key: value" line. Keys are padded to the
// widest key seen so far by SetKeyWidth.
func (w *Writer) KeyValue(key string, value any) {
	width := w.keyW
	if width < len(key)+1 {
		width = len(key) + 1
	}
	_, _ = fmt.Fprintf(w.out, "  %-*s %v\n", width, key+":", value)
}

// SetKeyWidth sets the padding used by KeyValue.
func (w *Writer) SetKeyWidth(n int) {
	w.keyW = n
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress reports current of total with a message. On a terminal the line
// is redrawn in place; otherwise one line is printed per call.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}

	if !w.tty {
		_, _ = fmt.Fprintf(w.out, "[%d/%d] %s\n", current, total, msg)
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)
	_, _ = fmt.Fprintf(w.out, "\r\033[K[%s] %.0f%% %s", bar, pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	filled := int(float64(current) / float64(total) * float64(width))
	filled = max(0, min(filled, width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
