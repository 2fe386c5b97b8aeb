package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/casedesk/pkg/auth"
	"github.com/platinummonkey/casedesk/pkg/storage"
)

func setupRedisClientTest(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	config := storage.DefaultConfig()
	config.RedisURL = "redis://" + mr.Addr()

	client, err := NewRedisClient(config)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(storage.Config{RedisURL: "not a url"})
	assert.Error(t, err)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(storage.Config{RedisURL: "redis://" + addr})
	assert.Error(t, err)
}

func TestRedisClient_RevokeSession(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedisClientTest(t)

	revoked, err := client.IsSessionRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, client.RevokeSession(ctx, "jti-1", time.Now().Add(time.Hour)))

	revoked, err = client.IsSessionRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl := mr.TTL(sessionKeyPrefix + "jti-1")
	assert.True(t, ttl > 59*time.Minute && ttl <= time.Hour, "ttl %s", ttl)

	mr.FastForward(2 * time.Hour)
	revoked, err = client.IsSessionRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "entry expires with the credential")
}

func TestRedisClient_RevokeExpiredSessionIsNoop(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedisClientTest(t)

	require.NoError(t, client.RevokeSession(ctx, "old", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists(sessionKeyPrefix+"old"))
}

func TestRedisClient_SubjectCutoffOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedisClientTest(t)

	at, err := client.SubjectRevokedAt(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	later := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	require.NoError(t, client.RevokeSubject(ctx, "u1", later))
	require.NoError(t, client.RevokeSubject(ctx, "u1", earlier))

	at, err = client.SubjectRevokedAt(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, at.Equal(later), "got %s", at)
	assert.Equal(t, auth.MaxSessionLifetime, mr.TTL(subjectKeyPrefix+"u1"))
}

func TestRedisClient_CorruptCutoff(t *testing.T) {
	client, mr := setupRedisClientTest(t)
	require.NoError(t, mr.Set(subjectKeyPrefix+"u1", "yesterday"))

	_, err := client.SubjectRevokedAt(context.Background(), "u1")
	assert.Error(t, err)
}

func TestRedisClient_BackendDown(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedisClientTest(t)
	mr.Close()

	_, err := client.IsSessionRevoked(ctx, "jti-1")
	assert.Error(t, err)
	_, err = client.SubjectRevokedAt(ctx, "u1")
	assert.Error(t, err)
	assert.Error(t, client.HealthCheck(ctx))
}

func TestRedisClient_WithVerifier(t *testing.T) {
	ctx := context.Background()
	client, _ := setupRedisClientTest(t)

	signer, err := auth.NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	verifier := auth.NewVerifier(signer, client)

	raw, identity, err := signer.Sign(auth.Identity{SubjectID: "u1", Email: "op@example.org"}, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(ctx, raw)
	require.NoError(t, err)

	require.NoError(t, client.RevokeSession(ctx, identity.SessionID, identity.ExpiresAt))
	_, err = verifier.Verify(ctx, raw)
	assert.Error(t, err)
}

func TestRedisClient_RevokedSessionStaysRejectedPastExpiry(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedisClientTest(t)

	now := time.Now().UTC().Truncate(time.Second)
	clock := func() time.Time { return now }
	client.now = clock

	signer, err := auth.NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	signer = signer.WithClock(clock)
	verifier := auth.NewVerifier(signer, client)

	raw, identity, err := signer.Sign(auth.Identity{SubjectID: "u1"}, 10*time.Second)
	require.NoError(t, err)

	now = identity.ExpiresAt.Add(-time.Second)
	require.NoError(t, client.RevokeSession(ctx, identity.SessionID, identity.ExpiresAt))
	_, err = verifier.Verify(ctx, raw)
	require.Error(t, err)

	mr.FastForward(2 * time.Second)
	assert.False(t, mr.Exists(sessionKeyPrefix+identity.SessionID))

	now = identity.ExpiresAt.Add(time.Second)
	id, err := verifier.Verify(ctx, raw)
	assert.Error(t, err)
	assert.Nil(t, id)
}
