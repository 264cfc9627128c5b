package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"salesdash/internal"
	"salesdash/internal/logger"
	"salesdash/internal/storage"
)

// Source is anything that can list the provider catalog for a tenant.
type Source interface {
	Catalog(ctx context.Context, tenant string) ([]internal.CatalogItem, error)
}

// SyncService copies the provider catalog into the local snapshot used by
// offline runs.
type SyncService struct {
	db     *storage.DB
	source Source
	log    zerolog.Logger
}

func NewSyncService(db *storage.DB, source Source) *SyncService {
	return &SyncService{db: db, source: source, log: logger.WithComponent("catalog")}
}

func lastSyncKey(tenant string) string {
	return "catalog.last_sync." + tenant
}

func (s *SyncService) Sync(ctx context.Context, tenant string) (int, error) {
	items, err := s.source.Catalog(ctx, tenant)
	if err != nil {
		return 0, fmt.Errorf("catalog sync: %w", err)
	}
	if err := s.db.ReplaceCatalog(tenant, items); err != nil {
		return 0, fmt.Errorf("catalog sync: store: %w", err)
	}
	_ = s.db.SetMetadata(lastSyncKey(tenant), time.Now().UTC().Format(time.RFC3339))
	s.log.Info().Str("tenant", tenant).Int("items", len(items)).Msg("catalog synced")
	return len(items), nil
}

// SyncIfStale syncs only when the last successful sync is older than maxAge.
// It reports whether a sync happened.
func (s *SyncService) SyncIfStale(ctx context.Context, tenant string, maxAge time.Duration) (bool, error) {
	last, err := s.db.GetMetadata(lastSyncKey(tenant))
	if err != nil {
		return false, err
	}
	if last != nil {
		if parsed, err := time.Parse(time.RFC3339, *last); err == nil && time.Since(parsed) < maxAge {
			return false, nil
		}
	}
	if _, err := s.Sync(ctx, tenant); err != nil {
		return false, err
	}
	return true, nil
}
