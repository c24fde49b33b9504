package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docchat/internal/api"
	"github.com/Aman-CERP/docchat/internal/config"
	"github.com/Aman-CERP/docchat/internal/output"
	"github.com/Aman-CERP/docchat/internal/preflight"
	"github.com/Aman-CERP/docchat/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var (
		host      string
		port      int
		inbox     bool
		skipCheck bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the docchat HTTP API used by the web frontend.

Endpoints:
  GET  /              service banner and counts
  GET  /health        liveness
  POST /api/upload    multipart field "file" (.txt or .pdf)
  POST /api/chat      {"message": "..."} -> {"reply": "..."}
  GET  /api/history   chat history, oldest first
  POST /api/reset     clear chat history
  GET  /api/documents uploaded files
  GET  /metrics       prometheus metrics

With --inbox (or inbox.enabled), files dropped into <data_dir>/inbox are
ingested as if uploaded, then moved to inbox/processed or inbox/failed.

serve holds the index write lock; other docchat commands read alongside it.`,
		Annotations: map[string]string{annotationLogStderr: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if inbox {
				cfg.Inbox.Enabled = true
			}
			return runServe(ctx, cmd, cfg, skipCheck)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides server.port)")
	cmd.Flags().BoolVar(&inbox, "inbox", false, "Watch the inbox directory for new documents")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip pre-flight system checks")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, skipCheck bool) error {
	out := output.New(cmd.OutOrStdout())

	if !skipCheck {
		checker := preflight.New(preflight.WithOutput(cmd.ErrOrStderr()))
		results := checker.RunAll(ctx, preflightTarget(cfg))
		for _, r := range results {
			if r.Status != preflight.StatusPass {
				slog.Warn("preflight_check",
					slog.String("check", r.Name),
					slog.String("status", r.Status.String()),
					slog.String("message", r.Message))
			}
		}
		if checker.HasCriticalFailures(results) {
			checker.PrintResults(results)
			return fmt.Errorf("pre-flight checks failed (use --skip-check to bypass)")
		}
	}

	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	apiCfg, err := api.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	srv, err := api.NewServer(a.svc, a.metrics, apiCfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error { return srv.SweepLimiters(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Inbox.Enabled {
		in := watcher.NewInbox(a.svc, a.metrics, watcher.InboxOptions{
			Dir:      cfg.ResolvePath(cfg.Inbox.Dir),
			Debounce: cfg.Inbox.Debounce,
		})
		g.Go(func() error { return in.Run(gctx) })
		out.Statusf("inbox:", "watching %s", in.Dir())
	}

	out.Successf("docchat serving on http://%s", srv.Addr())
	out.Status("", "Press Ctrl+C to stop")

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	slog.Info("docchat_stopped")
	return err
}

func preflightTarget(cfg *config.Config) preflight.Target {
	return preflight.Target{
		DataDir:            cfg.DataDir,
		EmbeddingsProvider: cfg.Embeddings.Provider,
		ModelCacheDir:      modelCacheDir(cfg),
		CompletionModel:    cfg.Completion.Model,
		HasAPIKey:          cfg.Completion.APIKey != "",
	}
}
