package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"salesdash/internal/catalog"
	"salesdash/internal/config"
	"salesdash/internal/logger"
	"salesdash/internal/provider"
	"salesdash/internal/refresher"
	"salesdash/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	must(logger.Setup(cfg.LoggerConfig()))
	must(cfg.Require("PROVIDER_TENANT_ID", cfg.ProviderTenantID))

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	session := provider.NewOAuthSession(provider.OAuthConfig(cfg), db, "provider", cfg.OAuthRefreshToken)
	client := provider.NewClient(cfg, session, nil)
	fetcher := provider.NewFetcher(client, session, cfg.ProviderPageSize, cfg.ProviderHydrateBatch)

	svc := refresher.NewService(catalog.NewSyncService(db, fetcher), []string{cfg.ProviderTenantID}, cfg.CatalogRefreshInterval())
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
