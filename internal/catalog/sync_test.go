package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesdash/internal"
	"salesdash/internal/storage"
)

type stubSource struct {
	items []internal.CatalogItem
	err   error
	calls int
}

func (s *stubSource) Catalog(context.Context, string) ([]internal.CatalogItem, error) {
	s.calls++
	return s.items, s.err
}

func TestSyncStoresSnapshot(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	src := &stubSource{items: []internal.CatalogItem{{Code: "W-1", Name: "Widget"}}}
	svc := NewSyncService(db, src)

	n, err := svc.Sync(context.Background(), "tenant")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := db.ListCatalog("tenant")
	require.NoError(t, err)
	assert.Equal(t, src.items, stored)

	synced, err := svc.SyncIfStale(context.Background(), "tenant", time.Hour)
	require.NoError(t, err)
	assert.False(t, synced)
	assert.Equal(t, 1, src.calls)

	synced, err = svc.SyncIfStale(context.Background(), "tenant", 0)
	require.NoError(t, err)
	assert.True(t, synced)
	assert.Equal(t, 2, src.calls)
}

func TestSyncKeepsSnapshotOnFailure(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.ReplaceCatalog("tenant", []internal.CatalogItem{{Code: "OLD", Name: "Old"}}))
	svc := NewSyncService(db, &stubSource{err: errors.New("provider down")})

	_, err = svc.Sync(context.Background(), "tenant")
	require.Error(t, err)

	stored, err := db.ListCatalog("tenant")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
