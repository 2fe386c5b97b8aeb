package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/platinummonkey/casedesk/pkg/structures"
)

// Collections
const (
	CollectionOperators  = "operators"
	CollectionAnagrafica = "anagrafica"
	CollectionAccessi    = "accessi"
	CollectionEventi     = "eventi"
)

// ErrAlreadyExists is returned by Create when the document id is taken
var ErrAlreadyExists = errors.New("document already exists")

// ErrConflict is returned by Update when the document kept changing
// underneath it
var ErrConflict = errors.New("document changed concurrently")

// Mutator edits a document in place. It receives the latest stored version
// and must set Structures for the index. It may be called more than once.
type Mutator func(doc *Document) error

// Document is a JSON document keyed by collection and id
type Document struct {
	Collection string
	ID         string
	// ParentID links sub-records to their record; empty for top-level documents
	ParentID string
	Data     json.RawMessage
	// Structures feeds the list-by-structure index on writes. Reads leave it
	// empty: the authoritative set is always decoded from Data.
	Structures structures.Set
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DocumentStore is the document database contract. Every operation is
// atomic per document. Missing documents yield apperr.ErrNotFound; backend
// failures yield apperr.ErrUpstreamUnavailable.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Create inserts doc, failing with ErrAlreadyExists if the id is taken
	Create(ctx context.Context, doc *Document) error
	// Put creates or replaces doc
	Put(ctx context.Context, doc *Document) error
	// Update applies mutate to the stored document and writes the result
	// only if nothing else wrote it in between, so concurrent
	// read-modify-write cycles never lose each other's changes
	Update(ctx context.Context, collection, id string, mutate Mutator) (*Document, error)
	ListByStructure(ctx context.Context, collection, structureID string) ([]*Document, error)
	ListByParent(ctx context.Context, collection, parentID string) ([]*Document, error)
	// List returns every document of a collection. Used by maintenance jobs.
	List(ctx context.Context, collection string) ([]*Document, error)
	Ping(ctx context.Context) error
	Close() error
}

// ObjectStore is the attachment storage contract
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, key string) error
}

// Config for storage backends
type Config struct {
	Type string `yaml:"type"` // "memory" or "postgres"

	// Filesystem object store root, used when S3 is not configured
	FilesystemRoot string `yaml:"filesystem_root"`

	// PostgreSQL config
	PostgresURL      string        `yaml:"postgres_url"`
	PostgresMaxConns int           `yaml:"postgres_max_conns"`
	PostgresMinConns int           `yaml:"postgres_min_conns"`
	PostgresTimeout  time.Duration `yaml:"postgres_timeout"`

	// S3 config
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`

	// Redis config (session revocation list)
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		FilesystemRoot:   "/tmp/casedesk",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		S3Region:         "eu-south-1",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
	}
}
