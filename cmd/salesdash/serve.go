package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"salesdash/internal/catalog"
	"salesdash/internal/logger"
	"salesdash/internal/refresher"
	"salesdash/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analytics over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (default HTTP_ADDR)")
	serveCmd.Flags().Bool("offline-catalog", false, "resolve products against the local catalog snapshot")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}
	offline, _ := cmd.Flags().GetBool("offline-catalog")

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(a.engine(offline), a.db, a.cfg.ProviderTenantID).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := logger.WithComponent("serve")
	if offline && a.cfg.ProviderTenantID != "" {
		svc := refresher.NewService(catalog.NewSyncService(a.db, a.fetcher), []string{a.cfg.ProviderTenantID}, a.cfg.CatalogRefreshInterval())
		go func() {
			_ = svc.Run(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
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

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}
