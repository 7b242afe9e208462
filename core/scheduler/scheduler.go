package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/renewal"
	"github.com/certflow/certflow/pkg/logger"
)

// Defaults: scan once a day, start renewing a month before expiry.
const (
	DefaultCheckInterval   = 24 * time.Hour
	DefaultNoticeWindow    = 30 * 24 * time.Hour
	DefaultShutdownTimeout = 30 * time.Second
)

var (
	ErrStoreNil   = errors.New("scheduler: store is nil")
	ErrRenewerNil = errors.New("scheduler: renewer is nil")
)

// Renewer renews one order end to end. Implemented by renewal.Service.
type Renewer interface {
	AutoRenew(ctx context.Context, orderID string) error
}

// Stats provides observability counters for monitoring and debugging.
type Stats struct {
	ChecksRun         int64
	RenewalsStarted   int64
	RenewalsSucceeded int64
	RenewalsFailed    int64
	IsRunning         bool
}

// ExpiryScheduler periodically renews expiring auto-renew orders.
type ExpiryScheduler struct {
	store   certorder.Store
	renewer Renewer

	interval        time.Duration
	noticeWindow    time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	checksRun         atomic.Int64
	renewalsStarted   atomic.Int64
	renewalsSucceeded atomic.Int64
	renewalsFailed    atomic.Int64
}

// New creates an expiry scheduler over a store and a renewal service.
func New(store certorder.Store, renewer Renewer, opts ...Option) (*ExpiryScheduler, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if renewer == nil {
		return nil, ErrRenewerNil
	}

	o := &options{
		checkInterval:   DefaultCheckInterval,
		noticeWindow:    DefaultNoticeWindow,
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}

	return &ExpiryScheduler{
		store:           store,
		renewer:         renewer,
		interval:        o.checkInterval,
		noticeWindow:    o.noticeWindow,
		shutdownTimeout: o.shutdownTimeout,
		logger:          o.logger,
	}, nil
}

// Start begins the periodic expiry checks. It blocks until the context is
// cancelled or Stop is called; use Run for the errgroup pattern.
func (s *ExpiryScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.running.Store(true)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(s.ctx, "expiry scheduler started",
		slog.Duration("check_interval", s.interval),
		slog.Duration("notice_window", s.noticeWindow))

	s.checkWithWait()

	for {
		select {
		case <-s.ctx.Done():
			s.running.Store(false)
			s.logger.InfoContext(context.Background(), "expiry scheduler stopping")
			return s.ctx.Err()
		case <-ticker.C:
			s.checkWithWait()
		}
	}
}

// Stop cancels the scheduler and waits for an in-flight check to finish,
// bounded by the shutdown timeout.
func (s *ExpiryScheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not started")
	}
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	s.running.Store(false)
	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout exceeded after %s", s.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (s *ExpiryScheduler) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- s.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = s.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// Stats returns a snapshot of the scheduler's counters.
func (s *ExpiryScheduler) Stats() Stats {
	return Stats{
		ChecksRun:         s.checksRun.Load(),
		RenewalsStarted:   s.renewalsStarted.Load(),
		RenewalsSucceeded: s.renewalsSucceeded.Load(),
		RenewalsFailed:    s.renewalsFailed.Load(),
		IsRunning:         s.running.Load(),
	}
}

func (s *ExpiryScheduler) checkWithWait() {
	// Guard against the shutdown race: only add to the waitgroup while the
	// scheduler is still considered started.
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.checkExpiring(s.ctx)
}

// checkExpiring renews every expiring auto-renew order, sequentially so
// concurrent renewals cannot trip the CA's rate limits. A failed renewal is
// logged and retried on the next tick; it never fails the scheduler.
func (s *ExpiryScheduler) checkExpiring(ctx context.Context) {
	s.checksRun.Add(1)

	now := time.Now()
	due, err := s.store.ListDueForRenewal(ctx, now.Add(-s.noticeWindow), now.Add(s.noticeWindow))
	if err != nil {
		s.logger.ErrorContext(ctx, "list expiring orders", logger.Error(err))
		return
	}

	for _, order := range due {
		if ctx.Err() != nil {
			return
		}
		if !order.AutoRenew || !order.PersistForRenewal {
			continue
		}

		s.renewalsStarted.Add(1)
		if err := s.renewer.AutoRenew(ctx, order.ID); err != nil {
			if errors.Is(err, renewal.ErrRenewalInProgress) {
				s.logger.DebugContext(ctx, "renewal already in progress", logger.OrderID(order.ID))
				continue
			}
			s.renewalsFailed.Add(1)
			s.logger.ErrorContext(ctx, "scheduled renewal failed",
				logger.OrderID(order.ID),
				logger.Domains(order.Domains()),
				logger.Error(err))
			continue
		}
		s.renewalsSucceeded.Add(1)
		s.logger.InfoContext(ctx, "certificate renewed",
			logger.OrderID(order.ID),
			logger.Domains(order.Domains()))
	}
}
