package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codegate-dev/codegate/pkg/sdd"
	"github.com/codegate-dev/codegate/pkg/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gate HTTP API",
	Long: `Serve exposes the read-only evidence resources and the tool endpoints
over HTTP. Policy bundles reload live while the server runs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	r, loader, cfg, err := buildRunner()
	if err != nil {
		return err
	}
	if err := loader.Watch(); err != nil {
		return err
	}
	defer loader.Close()

	guard := sdd.NewGuard(repoRoot).WithBypass(cfg.SDDBypass)
	handler := service.NewServer(r, guard, cfg).Handler()

	srv := &http.Server{
		Addr:              cfg.Service.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gate service listening", "addr", cfg.Service.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slog.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
