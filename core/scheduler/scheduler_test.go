package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/renewal"
	"github.com/certflow/certflow/core/scheduler"
)

type stubStore struct {
	mu     sync.Mutex
	orders []*certorder.CertificateOrder
	err    error
}

func (s *stubStore) GetOrder(context.Context, string) (*certorder.CertificateOrder, error) {
	return nil, certorder.ErrOrderNotFound
}

func (s *stubStore) SaveOrder(context.Context, *certorder.CertificateOrder) error { return nil }

func (s *stubStore) ListDueForRenewal(_ context.Context, _, _ time.Time) ([]*certorder.CertificateOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*certorder.CertificateOrder, len(s.orders))
	for i, o := range s.orders {
		out[i] = o.Clone()
	}
	return out, nil
}

func (s *stubStore) GetProviderConfig(context.Context, string) (*certorder.DNSProviderConfig, error) {
	return nil, certorder.ErrProviderConfigNotFound
}

func (s *stubStore) ListProviderConfigs(context.Context, string) ([]*certorder.DNSProviderConfig, error) {
	return nil, nil
}

type stubRenewer struct {
	mu      sync.Mutex
	renewed []string
	errs    map[string]error
}

func (r *stubRenewer) AutoRenew(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renewed = append(r.renewed, orderID)
	return r.errs[orderID]
}

func (r *stubRenewer) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.renewed...)
}

func expiringOrder(id string, autoRenew bool) *certorder.CertificateOrder {
	order := certorder.NewOrder("user-1", "ops@example.com", "/tmp/certs")
	order.ID = id
	order.ExpiresAt = time.Now().Add(10 * 24 * time.Hour)
	order.PersistForRenewal = true
	order.AutoRenew = autoRenew
	return order
}

func TestSchedulerConstructorValidation(t *testing.T) {
	t.Parallel()

	_, err := scheduler.New(nil, &stubRenewer{})
	assert.ErrorIs(t, err, scheduler.ErrStoreNil)

	_, err = scheduler.New(&stubStore{}, nil)
	assert.ErrorIs(t, err, scheduler.ErrRenewerNil)
}

func TestSchedulerRenewsExpiringOrders(t *testing.T) {
	t.Parallel()

	store := &stubStore{orders: []*certorder.CertificateOrder{
		expiringOrder("due-1", true),
		expiringOrder("manual-only", false),
	}}
	renewer := &stubRenewer{}

	sched, err := scheduler.New(store, renewer,
		scheduler.WithCheckInterval(10*time.Millisecond),
		scheduler.WithNoticeWindow(30*24*time.Hour),
	)
	require.NoError(t, err)

	go func() { _ = sched.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(renewer.calls()) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sched.Stop())

	for _, id := range renewer.calls() {
		assert.Equal(t, "due-1", id, "only auto-renew orders are scheduled")
	}

	stats := sched.Stats()
	assert.False(t, stats.IsRunning)
	assert.GreaterOrEqual(t, stats.ChecksRun, int64(1))
	assert.GreaterOrEqual(t, stats.RenewalsSucceeded, int64(1))
	assert.Zero(t, stats.RenewalsFailed)
}

func TestSchedulerSurvivesRenewalFailures(t *testing.T) {
	t.Parallel()

	store := &stubStore{orders: []*certorder.CertificateOrder{
		expiringOrder("bad", true),
		expiringOrder("good", true),
	}}
	renewer := &stubRenewer{errs: map[string]error{
		"bad": errors.New("provider exploded"),
	}}

	sched, err := scheduler.New(store, renewer,
		scheduler.WithCheckInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	go func() { _ = sched.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		calls := renewer.calls()
		var good bool
		for _, id := range calls {
			if id == "good" {
				good = true
			}
		}
		return good && len(calls) >= 4 // both orders seen across at least two ticks
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sched.Stop())

	stats := sched.Stats()
	assert.GreaterOrEqual(t, stats.RenewalsFailed, int64(1))
	assert.GreaterOrEqual(t, stats.RenewalsSucceeded, int64(1))
}

func TestSchedulerSkipsInProgressQuietly(t *testing.T) {
	t.Parallel()

	store := &stubStore{orders: []*certorder.CertificateOrder{expiringOrder("busy", true)}}
	renewer := &stubRenewer{errs: map[string]error{
		"busy": renewal.ErrRenewalInProgress,
	}}

	sched, err := scheduler.New(store, renewer,
		scheduler.WithCheckInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	go func() { _ = sched.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(renewer.calls()) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sched.Stop())

	stats := sched.Stats()
	assert.Zero(t, stats.RenewalsFailed, "in-progress is not a failure")
}

func TestSchedulerRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	sched, err := scheduler.New(store, &stubRenewer{},
		scheduler.WithCheckInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx)() }()

	require.Eventually(t, func() bool {
		return sched.Stats().ChecksRun >= 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}

func TestSchedulerDoubleStart(t *testing.T) {
	t.Parallel()

	sched, err := scheduler.New(&stubStore{}, &stubRenewer{},
		scheduler.WithCheckInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	go func() { _ = sched.Start(context.Background()) }()
	require.Eventually(t, func() bool {
		return sched.Stats().IsRunning
	}, 2*time.Second, 5*time.Millisecond)

	assert.Error(t, sched.Start(context.Background()))
	require.NoError(t, sched.Stop())
	assert.Error(t, sched.Stop())
}
