package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/casedesk/pkg/apperr"
	"github.com/platinummonkey/casedesk/pkg/observability"
)

// failingStore simulates an unreachable revocation backend
type failingStore struct{}

func (failingStore) RevokeSession(context.Context, string, time.Time) error {
	return errors.New("down")
}
func (failingStore) IsSessionRevoked(context.Context, string) (bool, error) {
	return false, errors.New("down")
}
func (failingStore) RevokeSubject(context.Context, string, time.Time) error {
	return errors.New("down")
}
func (failingStore) SubjectRevokedAt(context.Context, string) (time.Time, error) {
	return time.Time{}, errors.New("down")
}

// slowStore blocks until the lookup context expires
type slowStore struct{ MemoryRevocationStore }

func (s *slowStore) IsSessionRevoked(ctx context.Context, id string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestVerifier_Success(t *testing.T) {
	signer := newTestSigner(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	v := NewVerifier(signer, NewMemoryRevocationStore(), WithMetrics(metrics))

	raw, issued, err := signer.Sign(Identity{SubjectID: "uid-1", Email: "a@b.it"}, time.Hour)
	require.NoError(t, err)

	identity, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, issued.SubjectID, identity.SubjectID)
	assert.Equal(t, "a@b.it", identity.Email)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionVerificationsTotal.WithLabelValues("success", ReasonOK)))
}

func TestVerifier_MissingCredential(t *testing.T) {
	v := NewVerifier(newTestSigner(t), failingStore{})

	_, err := v.Verify(context.Background(), "")
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
}

func TestVerifier_InvalidCollapsesToInvalidSession(t *testing.T) {
	v := NewVerifier(newTestSigner(t), NewMemoryRevocationStore())

	_, err := v.Verify(context.Background(), "garbage")
	assert.True(t, errors.Is(err, apperr.ErrInvalidSession))
	assert.Equal(t, "invalid session", apperr.PublicMessage(err))
}

func TestVerifier_RevokedSession(t *testing.T) {
	signer := newTestSigner(t)
	store := NewMemoryRevocationStore()
	v := NewVerifier(signer, store)

	raw, issued, err := signer.Sign(Identity{SubjectID: "uid-1"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), raw)
	require.NoError(t, err)

	require.NoError(t, store.RevokeSession(context.Background(), issued.SessionID, issued.ExpiresAt))

	_, err = v.Verify(context.Background(), raw)
	assert.True(t, errors.Is(err, apperr.ErrInvalidSession))
}

func TestVerifier_RevokedSubject(t *testing.T) {
	store := NewMemoryRevocationStore()
	issuedAt := time.Now().Add(-time.Minute)

	signer := newTestSigner(t).WithClock(fixedClock(issuedAt))
	v := NewVerifier(newTestSigner(t), store)

	before, _, err := signer.Sign(Identity{SubjectID: "uid-1"}, time.Hour)
	require.NoError(t, err)
	other, _, err := signer.Sign(Identity{SubjectID: "uid-2"}, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.RevokeSubject(context.Background(), "uid-1", issuedAt.Add(time.Second)))

	_, err = v.Verify(context.Background(), before)
	assert.True(t, errors.Is(err, apperr.ErrInvalidSession))

	_, err = v.Verify(context.Background(), other)
	assert.NoError(t, err, "other subjects are unaffected")

	after, _, err := newTestSigner(t).Sign(Identity{SubjectID: "uid-1"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), after)
	assert.NoError(t, err, "credentials issued after the cut-off are valid")
}

func TestVerifier_FailsClosed(t *testing.T) {
	signer := newTestSigner(t)
	raw, _, err := signer.Sign(Identity{SubjectID: "uid-1"}, time.Hour)
	require.NoError(t, err)

	t.Run("store error", func(t *testing.T) {
		v := NewVerifier(signer, failingStore{})
		_, err := v.Verify(context.Background(), raw)
		assert.True(t, errors.Is(err, apperr.ErrInvalidSession))
	})

	t.Run("store timeout", func(t *testing.T) {
		v := NewVerifier(signer, &slowStore{}, WithRevocationTimeout(20*time.Millisecond))
		start := time.Now()
		_, err := v.Verify(context.Background(), raw)
		assert.True(t, errors.Is(err, apperr.ErrInvalidSession))
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestIdentityFromContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), &Identity{SubjectID: "uid-1"})
	identity, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "uid-1", identity.SubjectID)
}
