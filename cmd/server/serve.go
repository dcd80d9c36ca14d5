package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eGGnogSC/qbinvoice/config"
	"github.com/eGGnogSC/qbinvoice/infrastructure"
	"github.com/eGGnogSC/qbinvoice/internal/logging"
	"github.com/eGGnogSC/qbinvoice/routes"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the invoicing API.

Configuration is read from the environment (and .env when present):
  INTUIT_CLIENT_ID, INTUIT_CLIENT_SECRET, SESSION_SECRET are required.
  TOKEN_STORE=file|redis selects where OAuth tokens are kept.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}

	logger := logging.NewLogger(cfg.LogLevel)
	log := logger.WithField("service", "qbinvoice")

	// Background routines stop with this context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := infrastructure.NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer container.Shutdown()

	router := mux.NewRouter()
	routes.SetupRoutes(router, routes.Handlers{
		Auth:       container.AuthHandler,
		Invoice:    container.InvoiceHandler,
		Settlement: container.SettlementHandler,
		CreditNote: container.CreditNoteHandler,
		Health:     container.HealthHandler,
	}, container.TokenStore, container.Metrics, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.Timeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.Timeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":        cfg.Server.Port,
			"environment": cfg.QuickBooks.Environment,
			"token_store": cfg.TokenStore.Backend,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server gracefully stopped")
	return nil
}
