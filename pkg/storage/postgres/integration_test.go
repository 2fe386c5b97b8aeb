//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/storage"
)

func setupPostgres(t *testing.T) *DocumentStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("casedesk_test"),
		tcpostgres.WithUsername("casedesk"),
		tcpostgres.WithPassword("casedesk_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := storage.DefaultConfig()
	cfg.PostgresURL = connStr
	db, err := Open(ctx, ConnectionConfigFrom(cfg))
	require.NoError(t, err)

	store := NewDocumentStore(db, nil)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func setupMinIO(t *testing.T) *S3Client {
	t.Helper()
	ctx := context.Background()

	minio, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "minioadmin",
				"MINIO_ROOT_PASSWORD": "minioadmin",
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Failed to start MinIO container: %v", err)
	}
	t.Cleanup(func() {
		if err := minio.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate MinIO container: %v", err)
		}
	})

	host, err := minio.Host(ctx)
	require.NoError(t, err)
	port, err := minio.MappedPort(ctx, "9000")
	require.NoError(t, err)

	client, err := NewS3Client(storage.Config{
		S3Endpoint:     "http://" + host + ":" + port.Port(),
		S3AccessKey:    "minioadmin",
		S3SecretKey:    "minioadmin",
		S3Bucket:       "casedesk-attachments",
		S3Region:       "us-east-1",
		S3UsePathStyle: true,
	})
	require.NoError(t, err)
	return client
}

func TestDocumentStore_Postgres_Integration(t *testing.T) {
	ctx := context.Background()
	store := setupPostgres(t)

	require.NoError(t, store.Create(ctx, anagrafica("r1", `{"nome":"Anna"}`, "verona", "milano")))
	assert.ErrorIs(t, store.Create(ctx, anagrafica("r1", `{}`, "verona")), storage.ErrAlreadyExists)

	require.NoError(t, store.Put(ctx, anagrafica("r1", `{"nome":"Anna B."}`, "milano")))

	doc, err := store.Get(ctx, storage.CollectionAnagrafica, "r1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"nome":"Anna B."}`, string(doc.Data))

	verona, err := store.ListByStructure(ctx, storage.CollectionAnagrafica, "verona")
	require.NoError(t, err)
	assert.Empty(t, verona)

	require.NoError(t, store.Put(ctx, &storage.Document{
		Collection: storage.CollectionEventi, ID: "e1", ParentID: "r1", Data: json.RawMessage(`{}`),
	}))
	events, err := store.ListByParent(ctx, storage.CollectionEventi, "r1")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = store.Get(ctx, storage.CollectionAnagrafica, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestS3Client_MinIO_Integration(t *testing.T) {
	ctx := context.Background()
	client := setupMinIO(t)

	key := "files/r1/eventi/e1/verbale.txt"
	require.NoError(t, client.PutObject(ctx, key, strings.NewReader("verbale"), "text/plain"))

	body, err := client.GetObject(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	body.Close()
	require.NoError(t, err)
	assert.Equal(t, "verbale", string(data))

	require.NoError(t, client.DeleteObject(ctx, key))
	_, err = client.GetObject(ctx, key)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	assert.NoError(t, client.HealthCheck(ctx))
}
