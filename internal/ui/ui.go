// Package ui provides the terminal chat interface and status rendering.
package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/docchat/internal/chat"
)

// IsTTY checks if w is a terminal.
func IsTTY(w any) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Interactive reports whether the full-screen chat can run: both ends are
// terminals and no CI environment is detected.
func Interactive(in io.Reader, out io.Writer) bool {
	return IsTTY(in) && IsTTY(out) && !DetectCI()
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// SourceNames lists the distinct file names a reply was grounded on, in
// retrieval order.
func SourceNames(reply *chat.Reply) []string {
	if reply == nil {
		return nil
	}
	seen := make(map[string]bool, len(reply.Sources))
	var names []string
	for _, s := range reply.Sources {
		if seen[s.FileName] {
			continue
		}
		seen[s.FileName] = true
		names = append(names, s.FileName)
	}
	return names
}
