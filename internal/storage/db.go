package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	_ "modernc.org/sqlite"

	"salesdash/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS catalog_items (
  tenant TEXT NOT NULL,
  code TEXT NOT NULL,
  name TEXT NOT NULL,
  isTracked INTEGER NOT NULL DEFAULT 0,
  position INTEGER NOT NULL,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(tenant, position)
);
CREATE INDEX IF NOT EXISTS idx_catalog_items_code ON catalog_items(tenant, code);

CREATE TABLE IF NOT EXISTS tokens (
  key TEXT PRIMARY KEY,
  accessToken TEXT NOT NULL,
  refreshToken TEXT NOT NULL,
  tokenType TEXT,
  expiry TEXT,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  tenant TEXT NOT NULL,
  basis TEXT NOT NULL,
  preset TEXT NOT NULL,
  rangeStart TEXT NOT NULL,
  rangeEnd TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  totalsSales TEXT NOT NULL,
  durationMs INTEGER NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_tenant ON runs(tenant, id);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// ReplaceCatalog swaps the stored catalog snapshot of tenant for items,
// keeping the provider's order so identity resolution stays deterministic.
func (d *DB) ReplaceCatalog(tenant string, items []internal.CatalogItem) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM catalog_items WHERE tenant = ?`, tenant); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO catalog_items (tenant, code, name, isTracked, position, lastSeenAt)
VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, item := range items {
		if _, err := stmt.Exec(tenant, item.Code, item.Name, item.IsTracked, i); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListCatalog(tenant string) ([]internal.CatalogItem, error) {
	rows, err := d.conn.Query(`SELECT code, name, isTracked FROM catalog_items WHERE tenant = ? ORDER BY position`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CatalogItem
	for rows.Next() {
		var item internal.CatalogItem
		if err := rows.Scan(&item.Code, &item.Name, &item.IsTracked); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Catalog serves the stored snapshot to the analytics engine when the
// provider catalog is not fetched live.
func (d *DB) Catalog(_ context.Context, tenant string) ([]internal.CatalogItem, error) {
	return d.ListCatalog(tenant)
}

func (d *DB) LoadToken(key string) (*oauth2.Token, error) {
	var tok oauth2.Token
	var tokenType, expiry sql.NullString
	err := d.conn.QueryRow(`SELECT accessToken, refreshToken, tokenType, expiry FROM tokens WHERE key = ?`, key).
		Scan(&tok.AccessToken, &tok.RefreshToken, &tokenType, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tok.TokenType = tokenType.String
	if expiry.Valid && expiry.String != "" {
		if parsed, err := time.Parse(time.RFC3339, expiry.String); err == nil {
			tok.Expiry = parsed
		}
	}
	return &tok, nil
}

func (d *DB) SaveToken(key string, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("nil token")
	}
	var expiry string
	if !tok.Expiry.IsZero() {
		expiry = tok.Expiry.UTC().Format(time.RFC3339)
	}
	_, err := d.conn.Exec(`
INSERT INTO tokens (key, accessToken, refreshToken, tokenType, expiry) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  accessToken = excluded.accessToken,
  refreshToken = excluded.refreshToken,
  tokenType = excluded.tokenType,
  expiry = excluded.expiry,
  updatedAt = CURRENT_TIMESTAMP
`, key, tok.AccessToken, tok.RefreshToken, tok.TokenType, expiry)
	return err
}

func (d *DB) RecordRun(rec internal.RunRecord) error {
	countsJSON, _ := json.Marshal(rec.Counts)
	_, err := d.conn.Exec(`
INSERT INTO runs (traceId, tenant, basis, preset, rangeStart, rangeEnd, countsJson, totalsSales, durationMs)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, rec.TraceID, rec.Tenant, rec.Basis, rec.Preset, rec.RangeStart, rec.RangeEnd, string(countsJSON), rec.TotalsSales, rec.DurationMs)
	return err
}

// ListRuns returns the latest runs of tenant, newest first.
func (d *DB) ListRuns(tenant string, limit int) ([]internal.RunRecord, error) {
	rows, err := d.conn.Query(`
SELECT traceId, tenant, basis, preset, rangeStart, rangeEnd, countsJson, totalsSales, durationMs
FROM runs WHERE tenant = ? ORDER BY id DESC LIMIT ?
`, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRecord
	for rows.Next() {
		var rec internal.RunRecord
		var countsJSON string
		if err := rows.Scan(&rec.TraceID, &rec.Tenant, &rec.Basis, &rec.Preset, &rec.RangeStart, &rec.RangeEnd, &countsJSON, &rec.TotalsSales, &rec.DurationMs); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(countsJSON), &rec.Counts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
