package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/stock-ledger/api"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API on HTTP_HOST:HTTP_PORT.

On SIGINT/SIGTERM the server stops accepting connections, waits up to 30s
for active requests, then closes the database.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides HTTP_HOST)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides HTTP_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveHost != "" {
		a.cfg.HTTP.Host = serveHost
	}
	if servePort != 0 {
		a.cfg.HTTP.Port = servePort
	}

	// Bring legacy databases up to date before the first request.
	if _, err := a.ledger.GetLevels(cmd.Context()); err != nil {
		return err
	}

	handler := api.NewHandler(a.ledger, a.store, a.log.Component("api"))
	handler.TopN = a.cfg.Report.TopN

	server := &http.Server{
		Addr:         a.cfg.HTTP.Addr(),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info().
			Str("addr", server.Addr).
			Str("db", a.cfg.DB.Path).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-quit:
	}

	a.log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}

	a.log.Info().Msg("server stopped")
	return nil
}
