package main

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"salesdash/internal/analytics"
	"salesdash/internal/catalog"
	"salesdash/internal/config"
	"salesdash/internal/logger"
	"salesdash/internal/provider"
	"salesdash/internal/storage"
)

// tokenKey names the stored connection. One connection serves every tenant
// it has been granted.
const tokenKey = "provider"

type app struct {
	cfg     config.Config
	db      *storage.DB
	session *provider.OAuthSession
	fetcher *provider.Fetcher
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Setup(cfg.LoggerConfig()); err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	session := provider.NewOAuthSession(provider.OAuthConfig(cfg), db, tokenKey, cfg.OAuthRefreshToken)
	client := provider.NewClient(cfg, session, nil)
	return &app{
		cfg:     cfg,
		db:      db,
		session: session,
		fetcher: provider.NewFetcher(client, session, cfg.ProviderPageSize, cfg.ProviderHydrateBatch),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// engine builds the analytics engine. With offline the catalog comes from the
// local snapshot instead of the provider.
func (a *app) engine(offline bool) *analytics.Engine {
	var catalogSrc analytics.CatalogSource = a.fetcher
	if offline {
		catalogSrc = a.db
	}
	return analytics.NewEngine(a.fetcher, catalogSrc,
		analytics.WithRecorder(a.db),
		analytics.WithMatchOptions(catalog.MatchOptions{
			NameThreshold: a.cfg.MatchNameThreshold,
			GapThreshold:  a.cfg.MatchGapThreshold,
		}),
	)
}

// refreshSnapshot brings the local catalog up to date when it is older than
// the refresh interval. A failure keeps the previous snapshot.
func (a *app) refreshSnapshot(ctx context.Context, tenant string) {
	log := logger.WithComponent("cmd")
	synced, err := catalog.NewSyncService(a.db, a.fetcher).SyncIfStale(ctx, tenant, a.cfg.CatalogRefreshInterval())
	if err != nil {
		log.Warn().Err(err).Str("tenant", tenant).Msg("catalog snapshot refresh failed, using stored copy")
		return
	}
	if synced {
		log.Info().Str("tenant", tenant).Msg("catalog snapshot refreshed")
	}
}

func (a *app) tenant(cmd *cobra.Command) (string, error) {
	tenant, _ := cmd.Flags().GetString("tenant")
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		tenant = strings.TrimSpace(a.cfg.ProviderTenantID)
	}
	if tenant == "" {
		return "", errors.New("no tenant: pass --tenant or set PROVIDER_TENANT_ID")
	}
	return tenant, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("preset", string(analytics.PresetLast30), "last30|thisMonth|ytd|custom")
	cmd.Flags().String("start", "", "range start (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "range end (YYYY-MM-DD)")
	cmd.Flags().String("granularity", string(analytics.GranularityDay), "day|week|month")
	cmd.Flags().String("basis", string(analytics.BasisAccrual), "accrual|cash")
	cmd.Flags().Bool("include-purchases", false, "include purchase documents")
	cmd.Flags().Bool("offline-catalog", false, "resolve products against the local catalog snapshot")
}

func filtersFromFlags(cmd *cobra.Command) analytics.Filters {
	preset, _ := cmd.Flags().GetString("preset")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	granularity, _ := cmd.Flags().GetString("granularity")
	basis, _ := cmd.Flags().GetString("basis")
	purchases, _ := cmd.Flags().GetBool("include-purchases")
	return analytics.Filters{
		Preset:           preset,
		Start:            start,
		End:              end,
		Granularity:      granularity,
		Basis:            basis,
		IncludePurchases: purchases,
	}
}
