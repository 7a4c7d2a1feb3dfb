// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics and maintains a full-text document index.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"foiahub/internal/infra/persistence/memory"
	"foiahub/pkg/domain"
)

var (
	_ domain.PersistentStore  = (*Store)(nil)
	_ domain.DocumentSearcher = (*Store)(nil)
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/foiahub?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS document_search (
		id TEXT PRIMARY KEY,
		agency_slug TEXT NOT NULL,
		office_slug TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		document tsvector GENERATED ALWAYS AS (
			setweight(to_tsvector('english', coalesce(title, '')), 'A') ||
			setweight(to_tsvector('english', coalesce(body, '')), 'B')
		) STORED
	)`,
	`CREATE INDEX IF NOT EXISTS document_search_document_idx ON document_search USING GIN (document)`,
}

const searchQuery = `SELECT id FROM document_search
	WHERE document @@ to_tsquery('english', $1) AND ($2 = '' OR agency_slug = $2)
	ORDER BY ts_rank(document, to_tsquery('english', $1)) DESC, id
	LIMIT $3`

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the schema exists and hydrates the in-memory store from any existing snapshot.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// RunInTransaction applies fn within a transaction, then snapshots to Postgres and
// refreshes the search rows of every document the transaction touched.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	touched := map[string]struct{}{}
	res, err := s.Store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return fn(&indexingTx{Transaction: tx, touched: touched})
	})
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx, touched); err != nil {
		return res, err
	}
	return res, nil
}

// SearchDocumentIDs returns document IDs matching a tsquery, best match first.
func (s *Store) SearchDocumentIDs(ctx context.Context, tsquery, agency string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, searchQuery, tsquery, agency, limit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return ids, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

type indexingTx struct {
	domain.Transaction
	touched map[string]struct{}
}

func (tx *indexingTx) UpsertDocument(d domain.Document) (domain.Document, error) {
	stored, err := tx.Transaction.UpsertDocument(d)
	if err == nil {
		tx.touched[stored.ID] = struct{}{}
	}
	return stored, err
}

func (tx *indexingTx) DeleteDocument(id string) error {
	err := tx.Transaction.DeleteDocument(id)
	if err == nil {
		tx.touched[id] = struct{}{}
	}
	return err
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return memory.Snapshot{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, touched map[string]struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		data, err := snapshot.EncodeBucket(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		doc, ok := snapshot.Documents[id]
		if !ok {
			if _, err := tx.ExecContext(ctx, `DELETE FROM document_search WHERE id = $1`, id); err != nil {
				return fmt.Errorf("unindex document %s: %w", id, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO document_search(id, agency_slug, office_slug, title, body) VALUES($1,$2,$3,$4,$5)
			ON CONFLICT(id) DO UPDATE SET agency_slug=EXCLUDED.agency_slug, office_slug=EXCLUDED.office_slug, title=EXCLUDED.title, body=EXCLUDED.body`,
			doc.ID, doc.ReleaseAgencySlug, doc.ReleaseOfficeSlug, doc.Title, doc.Text); err != nil {
			return fmt.Errorf("index document %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
