package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/observability"
	"github.com/platinummonkey/casedesk/pkg/storage"
	"github.com/platinummonkey/casedesk/pkg/structures"
)

const backendName = "postgres"

// schema is kept to the SQL subset PostgreSQL and SQLite share, so the
// store can be exercised against an in-memory SQLite database.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		parent_id  TEXT NOT NULL DEFAULT '',
		data       TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS documents_parent_idx ON documents (collection, parent_id)`,
	`CREATE TABLE IF NOT EXISTS document_structures (
		collection   TEXT NOT NULL,
		document_id  TEXT NOT NULL,
		structure_id TEXT NOT NULL,
		PRIMARY KEY (collection, document_id, structure_id)
	)`,
	`CREATE INDEX IF NOT EXISTS document_structures_lookup_idx ON document_structures (collection, structure_id)`,
}

const selectColumns = `d.collection, d.id, d.parent_id, d.data, d.created_at, d.updated_at`

// maxUpdateAttempts bounds the compare-and-swap retries of Update
const maxUpdateAttempts = 5

// errStale means the row changed between read and write
var errStale = errors.New("stale document")

// DocumentStore implements storage.DocumentStore on a SQL database
type DocumentStore struct {
	db      *sql.DB
	metrics *observability.Metrics
	now     func() time.Time
}

// NewDocumentStore wraps an open database. metrics may be nil.
func NewDocumentStore(db *sql.DB, metrics *observability.Metrics) *DocumentStore {
	return &DocumentStore{db: db, metrics: metrics, now: time.Now}
}

// DB exposes the underlying pool for health checks
func (s *DocumentStore) DB() *sql.DB { return s.db }

// Migrate creates the tables and indexes if they do not exist
func (s *DocumentStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *DocumentStore) startSpan(ctx context.Context, op, collection string) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, "DocumentStore."+op,
		trace.WithAttributes(
			attribute.String("db.operation", op),
			attribute.String("db.collection", collection),
		),
	)
}

// finish records the outcome on span and metrics and maps err to the
// application error model
func (s *DocumentStore) finish(span trace.Span, op string, start time.Time, err error) error {
	defer span.End()
	mapped := mapError(err)
	// a missing document is an answer, not a backend failure
	if mapped != nil && !errors.Is(mapped, apperr.ErrNotFound) && !errors.Is(mapped, storage.ErrAlreadyExists) {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		s.metrics.ObserveStorage(op, backendName, start, mapped)
		return mapped
	}
	span.SetStatus(codes.Ok, "")
	s.metrics.ObserveStorage(op, backendName, start, nil)
	return mapped
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return apperr.ErrNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		return err
	default:
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperr.Wrap(apperr.KindUpstreamUnavailable, err)
	}
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (doc *storage.Document, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "Get", collection)
	defer func() { err = s.finish(span, "Get", start, err) }()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents d WHERE d.collection = $1 AND d.id = $2`,
		collection, id)
	return scanDocument(row)
}

func (s *DocumentStore) Create(ctx context.Context, doc *storage.Document) (err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "Create", doc.Collection)
	defer func() { err = s.finish(span, "Create", start, err) }()

	return s.write(ctx, doc, `
		INSERT INTO documents (collection, id, parent_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (collection, id) DO NOTHING`, true)
}

func (s *DocumentStore) Put(ctx context.Context, doc *storage.Document) (err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "Put", doc.Collection)
	defer func() { err = s.finish(span, "Put", start, err) }()

	return s.write(ctx, doc, `
		INSERT INTO documents (collection, id, parent_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (collection, id) DO UPDATE SET
			parent_id = excluded.parent_id,
			data = excluded.data,
			updated_at = excluded.updated_at`, false)
}

// write stores the document row and rebuilds its structure index in one
// transaction
func (s *DocumentStore) write(ctx context.Context, doc *storage.Document, upsert string, createOnly bool) error {
	now := s.now().UTC().Truncate(time.Microsecond)
	created := doc.CreatedAt.UTC().Truncate(time.Microsecond)
	if doc.CreatedAt.IsZero() {
		created = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, upsert,
		doc.Collection, doc.ID, doc.ParentID, string(doc.Data), created, now)
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if createOnly {
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return storage.ErrAlreadyExists
		}
	}

	if err := reindex(ctx, tx, doc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}
	return nil
}

func reindex(ctx context.Context, tx *sql.Tx, doc *storage.Document) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_structures WHERE collection = $1 AND document_id = $2`,
		doc.Collection, doc.ID); err != nil {
		return fmt.Errorf("failed to clear structure index: %w", err)
	}
	for _, structureID := range doc.Structures.Slice() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_structures (collection, document_id, structure_id) VALUES ($1, $2, $3)`,
			doc.Collection, doc.ID, structureID); err != nil {
			return fmt.Errorf("failed to index structure: %w", err)
		}
	}
	return nil
}

// Update is an optimistic read-modify-write: the row is only replaced if its
// data still matches what mutate saw, otherwise the cycle is retried
func (s *DocumentStore) Update(ctx context.Context, collection, id string, mutate storage.Mutator) (doc *storage.Document, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "Update", collection)
	defer func() { err = s.finish(span, "Update", start, err) }()

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		doc, err = s.updateOnce(ctx, collection, id, mutate)
		if !errors.Is(err, errStale) {
			return doc, err
		}
	}
	return nil, storage.ErrConflict
}

func (s *DocumentStore) updateOnce(ctx context.Context, collection, id string, mutate storage.Mutator) (*storage.Document, error) {
	current, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents d WHERE d.collection = $1 AND d.id = $2`,
		collection, id))
	if err != nil {
		return nil, err
	}
	seen := string(current.Data)

	if err := mutate(current); err != nil {
		return nil, err
	}
	current.Collection, current.ID = collection, id
	now := s.now().UTC().Truncate(time.Microsecond)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE documents SET parent_id = $1, data = $2, updated_at = $3
		WHERE collection = $4 AND id = $5 AND data = $6`,
		current.ParentID, string(current.Data), now, collection, id, seen)
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return nil, errStale
	}
	if err := reindex(ctx, tx, current); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit document: %w", err)
	}

	current.UpdatedAt = now
	current.Structures = structures.Set{}
	return current, nil
}

func (s *DocumentStore) ListByStructure(ctx context.Context, collection, structureID string) (docs []*storage.Document, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "ListByStructure", collection)
	defer func() { err = s.finish(span, "ListByStructure", start, err) }()

	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM documents d
		JOIN document_structures s ON s.collection = d.collection AND s.document_id = d.id
		WHERE s.collection = $1 AND s.structure_id = $2
		ORDER BY d.created_at DESC, d.id`, collection, structureID)
}

func (s *DocumentStore) ListByParent(ctx context.Context, collection, parentID string) (docs []*storage.Document, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "ListByParent", collection)
	defer func() { err = s.finish(span, "ListByParent", start, err) }()

	return s.query(ctx, `
		SELECT `+selectColumns+` FROM documents d
		WHERE d.collection = $1 AND d.parent_id = $2
		ORDER BY d.created_at DESC, d.id`, collection, parentID)
}

func (s *DocumentStore) List(ctx context.Context, collection string) (docs []*storage.Document, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "List", collection)
	defer func() { err = s.finish(span, "List", start, err) }()

	return s.query(ctx, `
		SELECT `+selectColumns+` FROM documents d
		WHERE d.collection = $1
		ORDER BY d.created_at DESC, d.id`, collection)
}

func (s *DocumentStore) query(ctx context.Context, query string, args ...interface{}) ([]*storage.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*storage.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*storage.Document, error) {
	var (
		doc  storage.Document
		data string
	)
	if err := row.Scan(&doc.Collection, &doc.ID, &doc.ParentID, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.Data = []byte(data)
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperr.Wrap(apperr.KindUpstreamUnavailable, err)
	}
	return nil
}

func (s *DocumentStore) Close() error {
	return s.db.Close()
}
