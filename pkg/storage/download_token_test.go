package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadSignerRoundTrip(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	token, expiresAt, err := signer.Issue("job-1", "reports/file.csv")
	require.NoError(t, err)

	grant, err := signer.Verify(token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", grant.JobID)
	assert.Equal(t, "reports/file.csv", grant.Path)
	assert.True(t, expiresAt.Equal(grant.ExpiresAt))
}

func TestDownloadSignerExpiry(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Minute)
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return now }

	token, _, err := signer.Issue("job-1", "reports/file.csv")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = signer.Verify(token, false)
	require.ErrorIs(t, err, ErrTokenExpired)

	grant, err := signer.Verify(token, true)
	require.NoError(t, err)
	assert.Equal(t, "reports/file.csv", grant.Path)
}

func TestDownloadSignerRejectsForeignTokens(t *testing.T) {
	signer := NewDownloadSigner("secret", time.Hour)
	token, _, err := signer.Issue("job-1", "reports/file.csv")
	require.NoError(t, err)

	_, err = NewDownloadSigner("other", time.Hour).Verify(token, false)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = NewDownloadSigner("other", time.Hour).Verify(token, true)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Verify("not-a-token", false)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = signer.Issue("", "reports/file.csv")
	assert.Error(t, err)
	_, _, err = NewDownloadSigner("", time.Hour).Issue("job-1", "reports/file.csv")
	assert.Error(t, err)
}
