package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/meshchat/internal/store"
)

// Schema creates the documents table. Every logical table shares it and is
// distinguished by the table_name column.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	table_name TEXT    NOT NULL,
	id         INTEGER NOT NULL,
	body       BLOB    NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (table_name, id)
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the SQLite database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:"
	// databases alive across queries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetByID retrieves a document by ID.
func (s *SQLiteStore) GetByID(ctx context.Context, table store.Table, id int64) (*store.Document, error) {
	query := `
		SELECT id, body
		FROM documents
		WHERE table_name = ? AND id = ?
	`
	var doc store.Document
	err := s.db.QueryRowContext(ctx, query, string(table), id).Scan(&doc.ID, &doc.Body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query document: %w", err)
	}
	return &doc, nil
}

// GetAll lists every document of a table ordered by ID.
func (s *SQLiteStore) GetAll(ctx context.Context, table store.Table) ([]*store.Document, error) {
	return s.Search(ctx, table, nil)
}

// Upsert inserts or replaces a document.
func (s *SQLiteStore) Upsert(ctx context.Context, table store.Table, doc *store.Document) error {
	query := `
		INSERT INTO documents (table_name, id, body)
		VALUES (?, ?, ?)
		ON CONFLICT (table_name, id) DO UPDATE SET
			body = excluded.body,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, string(table), doc.ID, doc.Body); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Remove deletes a document.
func (s *SQLiteStore) Remove(ctx context.Context, table store.Table, id int64) error {
	query := `DELETE FROM documents WHERE table_name = ? AND id = ?`
	if _, err := s.db.ExecContext(ctx, query, string(table), id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Search lists documents for which match returns true. A nil match selects
// every document of the table.
func (s *SQLiteStore) Search(ctx context.Context, table store.Table, match func(*store.Document) bool) ([]*store.Document, error) {
	query := `
		SELECT id, body
		FROM documents
		WHERE table_name = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, string(table))
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*store.Document
	for rows.Next() {
		var doc store.Document
		if err := rows.Scan(&doc.ID, &doc.Body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if match == nil || match(&doc) {
			docs = append(docs, &doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
