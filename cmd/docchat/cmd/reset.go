package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docchat/internal/output"
)

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the chat history",
		Long: `Delete every chat message, like POST /api/reset. Uploaded documents and
the index are kept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			docs, err := openDocs(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = docs.Close() }()

			n, err := docs.ClearMessages(cmd.Context())
			if err != nil {
				return err
			}
			slog.Info("history_reset", slog.Int64("messages", n))
			output.New(cmd.OutOrStdout()).Successf("History cleared (%d messages removed).", n)
			return nil
		},
	}
}
