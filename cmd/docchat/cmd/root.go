// Package cmd provides the CLI commands for docchat.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docchat/internal/config"
	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
	"github.com/Aman-CERP/docchat/internal/logging"
	"github.com/Aman-CERP/docchat/pkg/version"
)

// annotationLogStderr marks commands whose log records are mirrored to
// stderr. Everything else logs to the file only, so command output and the
// terminal UI stay clean.
const annotationLogStderr = "log-stderr"

var (
	workDir        string
	debugMode      bool
	noColor        bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the docchat CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docchat",
		Short: "Chat with your documents",
		Long: `docchat answers questions about uploaded documents.

Uploaded .txt and .pdf files are split into overlapping word chunks,
embedded and indexed. Each chat message retrieves the closest chunks and
sends them to an OpenAI-compatible completion endpoint as context.

Run 'docchat serve' for the HTTP API, or 'docchat chat' in a terminal.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docchat version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&workDir, "dir", "C", ".", "Directory holding .docchat.yaml and .env")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging installs the slog default. An unreadable configuration falls
// back to default logging here; the command itself reports the error.
func startLogging(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(workDir)
	if err != nil {
		cfg = config.NewConfig()
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.File != "" {
		logCfg.FilePath = cfg.Logging.File
	}
	logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
	logCfg.MaxFiles = cfg.Logging.MaxFiles
	if debugMode {
		logCfg.Level = "debug"
	}
	if cmd.Annotations[annotationLogStderr] != "true" {
		logCfg = logCfg.ForStdio()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints any error for the terminal.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, dcerrors.FormatForCLI(err))
	}
	return err
}
