package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docchat/internal/ui"
)

func newChatCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with your documents in the terminal",
		Long: `Open an interactive chat over the uploaded documents.

On a terminal this is a full-screen view of the conversation with the
sources of each reply. When stdin or stdout is not a terminal, or with
--plain, each input line is one message and replies are printed as text.

Commands: /reset clears the chat history, /quit exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			if !plain && ui.Interactive(cmd.InOrStdin(), cmd.OutOrStdout()) {
				return ui.RunTUI(ctx, a.svc, noColor)
			}
			return ui.RunPlain(ctx, a.svc, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Use line mode even on a terminal")

	return cmd
}
