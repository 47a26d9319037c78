package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/sourcecheck/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator behind an HTTP API",
	Long: `Serve exposes the session coordinator over HTTP so a page agent and a
display surface running elsewhere can share one session:

  POST /v1/messages   send one protocol message, receive its reply
  GET  /v1/state      current session state
  GET  /v1/state/ws   session states as they change (websocket)
  POST /v1/verify     verify the current selection
  GET  /metrics       Prometheus metrics

Example:
  sourcecheck serve --addr 127.0.0.1:8787
  SOURCECHECK_SESSION_BACKEND=redis sourcecheck serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := newApp(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv := server.New(a.bus, a.pipeline, a.coordinator, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(cfg.Server.Addr) }()

	fmt.Fprintf(os.Stderr, "✓ sourcecheck listening on http://%s (session: %s)\n", cfg.Server.Addr, cfg.Session.Backend)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	return nil
}
