package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docchat/internal/chat"
	"github.com/Aman-CERP/docchat/internal/output"
	"github.com/Aman-CERP/docchat/internal/ui"
)

func newAskCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one chat message and print the reply",
		Long: `Send one chat message and print the reply. The message and the reply are
added to the chat history, exactly like POST /api/chat.`,
		Example: `  docchat ask "What does the handbook say about leave?"
  docchat ask --json "Summarise the uploaded notes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return runAsk(ctx, a.svc, cmd.OutOrStdout(), strings.Join(args, " "), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the reply with its sources as JSON")

	return cmd
}

type chatter interface {
	Chat(ctx context.Context, message string) (*chat.Reply, error)
}

func runAsk(ctx context.Context, svc chatter, w io.Writer, message string, jsonOutput bool) error {
	reply, err := svc.Chat(ctx, message)
	if err != nil {
		return err
	}
	out := output.New(w)
	if jsonOutput {
		return out.JSON(reply)
	}

	if reply.CompletionFailed {
		out.Error(reply.Content)
		return nil
	}
	_, _ = fmt.Fprintln(w, reply.Content)
	if names := ui.SourceNames(reply); len(names) > 0 {
		_, _ = fmt.Fprintf(w, "\nSources: %s\n", strings.Join(names, ", "))
	}
	return nil
}
