package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docchat/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the documents to MCP clients over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout.

Tools:
  search_documents   retrieve passages for a query
  ask                run a chat turn; the exchange joins the chat history
  list_documents     list uploaded files
  index_status       document, index and history counts

Resources: docchat://history and docchat://documents.

stdout carries only protocol messages; logs go to the log file. The index is
opened read-only, so this runs alongside 'docchat serve'.`,
		Example: `  # Claude Desktop / Cursor configuration
  {"command": "docchat", "args": ["mcp", "--dir", "/path/to/project"]}`,
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

			srv, err := mcp.NewServer(a.svc)
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		},
	}
}
