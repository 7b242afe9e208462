package acmeorder_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certflow/certflow/core/acmeorder"
	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/keyauth"
	"github.com/certflow/certflow/pkg/acmetest"
)

func fastPolicy() acmeorder.PollPolicy {
	return acmeorder.PollPolicy{MaxAttempts: 5, Interval: 10 * time.Millisecond}
}

func newTestEngine(t *testing.T, ca *acmetest.Server) *acmeorder.Engine {
	t.Helper()
	key, err := acmeorder.GenerateAccountKey()
	require.NoError(t, err)
	return acmeorder.NewEngine(key, ca.DirectoryURL())
}

func TestFullIssuanceLifecycle(t *testing.T) {
	t.Parallel()

	ca := acmetest.NewServer()
	defer ca.Close()

	engine := newTestEngine(t, ca)
	ctx := context.Background()

	require.NoError(t, engine.InitAccount(ctx, "ops@example.com"))
	assert.NotEmpty(t, engine.AccountURL())

	domains := []string{"example.com", "www.example.com"}
	order, err := engine.BeginOrder(ctx, domains)
	require.NoError(t, err)

	challenges, err := engine.FetchChallenges(ctx, order)
	require.NoError(t, err)
	require.Len(t, challenges, 2)

	for _, ch := range challenges {
		assert.Equal(t, certorder.StatusPending, ch.Status)
		assert.NotEmpty(t, ch.Token)
		assert.NotEmpty(t, ch.AuthorizationURL)

		// The published TXT value must be the RFC 8555 derivation.
		want, err := keyauth.ChallengeValue(engine.Key(), ch.Token)
		require.NoError(t, err)
		assert.Equal(t, want, ch.DNSValue)
	}

	for _, ch := range challenges {
		require.NoError(t, engine.SubmitChallenge(ctx, ch))
		// Submitting again is a no-op, not an error.
		require.NoError(t, engine.SubmitChallenge(ctx, ch))
	}

	require.NoError(t, engine.PollValidation(ctx, challenges, fastPolicy()))

	certKey, err := acmeorder.GenerateCertificateKey()
	require.NoError(t, err)
	der, certURL, err := engine.Finalize(ctx, order, certKey, domains, fastPolicy())
	require.NoError(t, err)
	require.NotEmpty(t, der)
	require.NotEmpty(t, certURL)

	saveDir := t.TempDir()
	stored, err := engine.DownloadAndStore(ctx, certURL, der, certKey, false, saveDir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(stored.CertificatePath), "cert_"))
	assert.True(t, strings.HasSuffix(stored.CertificatePath, ".pem"))
	assert.True(t, stored.NotAfter.After(time.Now()))

	data, err := os.ReadFile(stored.CertificatePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "BEGIN CERTIFICATE")
	assert.Contains(t, string(data), "PRIVATE KEY")
}

func TestDownloadAndStoreSeparateFiles(t *testing.T) {
	t.Parallel()

	ca := acmetest.NewServer()
	defer ca.Close()

	engine := newTestEngine(t, ca)
	ctx := context.Background()
	require.NoError(t, engine.InitAccount(ctx, "ops@example.com"))

	order, err := engine.BeginOrder(ctx, []string{"example.com"})
	require.NoError(t, err)
	challenges, err := engine.FetchChallenges(ctx, order)
	require.NoError(t, err)
	for _, ch := range challenges {
		require.NoError(t, engine.SubmitChallenge(ctx, ch))
	}
	require.NoError(t, engine.PollValidation(ctx, challenges, fastPolicy()))

	certKey, err := acmeorder.GenerateCertificateKey()
	require.NoError(t, err)
	der, certURL, err := engine.Finalize(ctx, order, certKey, []string{"example.com"}, fastPolicy())
	require.NoError(t, err)

	saveDir := t.TempDir()
	stored, err := engine.DownloadAndStore(ctx, certURL, der, certKey, true, saveDir)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stored.CertificatePath, ".crt"))
	assert.True(t, strings.HasSuffix(stored.KeyPath, ".key"))

	keyData, err := os.ReadFile(stored.KeyPath)
	require.NoError(t, err)
	assert.Contains(t, string(keyData), "PRIVATE KEY")
	certData, err := os.ReadFile(stored.CertificatePath)
	require.NoError(t, err)
	assert.NotContains(t, string(certData), "PRIVATE KEY")
}

func TestDownloadAndStoreRejectsRoot(t *testing.T) {
	t.Parallel()

	ca := acmetest.NewServer()
	defer ca.Close()
	engine := newTestEngine(t, ca)

	certKey, err := acmeorder.GenerateCertificateKey()
	require.NoError(t, err)

	_, err = engine.DownloadAndStore(context.Background(), "", [][]byte{{0x01}}, certKey, false, "/")
	assert.ErrorIs(t, err, acmeorder.ErrRootSavePath)
}

func TestPollValidationInvalidIsImmediatelyFatal(t *testing.T) {
	t.Parallel()

	ca := acmetest.NewServer(acmetest.WithValidator(func(domain, token string) acmetest.ValidationResult {
		return acmetest.ValidationResult{Status: acmetest.StatusInvalid, Problem: "CAA record forbids issuance"}
	}))
	defer ca.Close()

	engine := newTestEngine(t, ca)
	ctx := context.Background()
	require.NoError(t, engine.InitAccount(ctx, "ops@example.com"))

	order, err := engine.BeginOrder(ctx, []string{"example.com"})
	require.NoError(t, err)
	challenges, err := engine.FetchChallenges(ctx, order)
	require.NoError(t, err)

	for _, ch := range challenges {
		_ = engine.SubmitChallenge(ctx, ch)
	}

	start := time.Now()
	err = engine.PollValidation(ctx, challenges, acmeorder.PollPolicy{MaxAttempts: 30, Interval: time.Second})

	var invalidErr *acmeorder.ChallengeInvalidError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, "example.com", invalidErr.Domain)
	assert.Contains(t, invalidErr.Detail, "CAA record forbids")
	// Terminal on the first poll, without burning the attempt budget.
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPollValidationTimeoutAfterExactBudget(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	ca := acmetest.NewServer(acmetest.WithValidator(func(domain, token string) acmetest.ValidationResult {
		polls.Add(1)
		return acmetest.ValidationResult{Status: acmetest.StatusPending}
	}))
	defer ca.Close()

	engine := newTestEngine(t, ca)
	ctx := context.Background()
	require.NoError(t, engine.InitAccount(ctx, "ops@example.com"))

	order, err := engine.BeginOrder(ctx, []string{"example.com"})
	require.NoError(t, err)
	challenges, err := engine.FetchChallenges(ctx, order)
	require.NoError(t, err)
	for _, ch := range challenges {
		require.NoError(t, engine.SubmitChallenge(ctx, ch))
	}
	polls.Store(0)

	err = engine.PollValidation(ctx, challenges, acmeorder.PollPolicy{MaxAttempts: 4, Interval: time.Millisecond})
	require.ErrorIs(t, err, acmeorder.ErrPollingTimeout)
	assert.Equal(t, int32(4), polls.Load())
}

func TestRevoke(t *testing.T) {
	t.Parallel()

	ca := acmetest.NewServer()
	defer ca.Close()

	engine := newTestEngine(t, ca)
	ctx := context.Background()
	require.NoError(t, engine.InitAccount(ctx, "ops@example.com"))

	order, err := engine.BeginOrder(ctx, []string{"example.com"})
	require.NoError(t, err)
	challenges, err := engine.FetchChallenges(ctx, order)
	require.NoError(t, err)
	for _, ch := range challenges {
		require.NoError(t, engine.SubmitChallenge(ctx, ch))
	}
	require.NoError(t, engine.PollValidation(ctx, challenges, fastPolicy()))

	certKey, err := acmeorder.GenerateCertificateKey()
	require.NoError(t, err)
	der, certURL, err := engine.Finalize(ctx, order, certKey, []string{"example.com"}, fastPolicy())
	require.NoError(t, err)

	stored, err := engine.DownloadAndStore(ctx, certURL, der, certKey, false, t.TempDir())
	require.NoError(t, err)

	require.NoError(t, engine.Revoke(ctx, stored.CertificatePEM))
	assert.Equal(t, 1, ca.RevokedCount())

	assert.ErrorIs(t, engine.Revoke(ctx, nil), acmeorder.ErrNoCertificate)
}

func TestKeyPEMRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := acmeorder.GenerateAccountKey()
	require.NoError(t, err)

	encoded := acmeorder.EncodeKeyPEM(key)
	require.NotEmpty(t, encoded)

	parsed, err := acmeorder.ParseKeyPEM(encoded)
	require.NoError(t, err)
	assert.Equal(t, key.Public(), parsed.Public())
}
