package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docchat/internal/output"
	"github.com/Aman-CERP/docchat/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the chat history",
		Long:  `Print every stored chat message, oldest first.`,
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

			return runHistory(cmd.Context(), docs, output.New(cmd.OutOrStdout()), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON, the shape of GET /api/history")

	return cmd
}

type messageLister interface {
	ListMessages(ctx context.Context) ([]store.Message, error)
}

func runHistory(ctx context.Context, docs messageLister, out *output.Writer, jsonOutput bool) error {
	messages, err := docs.ListMessages(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		if messages == nil {
			messages = []store.Message{}
		}
		return out.JSON(messages)
	}
	if len(messages) == 0 {
		out.Status("", "No messages yet.")
		return nil
	}
	for _, m := range messages {
		who := "You"
		if m.Role == store.RoleAssistant {
			who = "Assistant"
		}
		out.Status(fmt.Sprintf("[%s] %s:", m.CreatedAt.Local().Format("2006-01-02 15:04"), who), m.Content)
	}
	return nil
}
