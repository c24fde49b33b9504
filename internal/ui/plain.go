package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// RunPlain runs a line-oriented chat: one message per input line, replies
// printed as plain text. It returns at end of input, on /quit, or when ctx
// is cancelled.
func RunPlain(ctx context.Context, backend Backend, in io.Reader, out io.Writer) error {
	_, _ = fmt.Fprintln(out, "Type a message and press enter. /reset clears history, /quit exits.")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case CommandQuit, CommandExit:
			return nil
		case CommandReset:
			n, err := backend.Reset(ctx)
			if err != nil {
				_, _ = fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			_, _ = fmt.Fprintf(out, "History cleared (%d messages removed).\n", n)
			continue
		}

		reply, err := backend.Chat(ctx, text)
		if err != nil {
			_, _ = fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		_, _ = fmt.Fprintln(out, reply.Content)
		if names := SourceNames(reply); len(names) > 0 {
			_, _ = fmt.Fprintf(out, "Sources: %s\n", strings.Join(names, ", "))
		}
	}
}
