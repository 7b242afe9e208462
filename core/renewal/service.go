package renewal

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/acme"
	"golang.org/x/sync/errgroup"

	"github.com/certflow/certflow/core/acmeorder"
	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/dnspublisher"
	"github.com/certflow/certflow/core/propagation"
	"github.com/certflow/certflow/pkg/logger"
)

// Retry schedule for unattended renewals.
const (
	DefaultRetryAttempts = 5
	DefaultRetryInterval = 15 * time.Second
)

// Propagation wait defaults. The verifier is polled until the record is
// visible or the window closes, which allows about five passes fifteen
// seconds apart.
const (
	DefaultPropagationTimeout  = 75 * time.Second
	DefaultPropagationInterval = 15 * time.Second
)

// Verifier reports whether a TXT record with the expected value is visible
// on public resolvers. Implemented by propagation.Verifier.
type Verifier interface {
	Verify(ctx context.Context, fqdn, expected string) bool
}

// Option configures the Service.
type Option func(*Service)

// WithDirectoryURL sets the ACME directory. Defaults to Let's Encrypt
// production.
func WithDirectoryURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.directoryURL = url
		}
	}
}

// WithSessionStore replaces the in-process session store.
func WithSessionStore(store SessionStore) Option {
	return func(s *Service) {
		if store != nil {
			s.sessions = store
		}
	}
}

// WithVerifier replaces the propagation verifier.
func WithVerifier(v Verifier) Option {
	return func(s *Service) {
		if v != nil {
			s.verifier = v
		}
	}
}

// WithNotifier sets the progress notifier.
func WithNotifier(n certorder.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithHTTPClient overrides the HTTP client used for ACME calls.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithValidationPolicy sets the challenge validation poll policy.
func WithValidationPolicy(p acmeorder.PollPolicy) Option {
	return func(s *Service) { s.validationPolicy = p }
}

// WithFinalizePolicy sets the order finalization poll policy.
func WithFinalizePolicy(p acmeorder.PollPolicy) Option {
	return func(s *Service) { s.finalizePolicy = p }
}

// WithRetryPolicy sets the unattended renewal retry schedule.
func WithRetryPolicy(attempts int, interval time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
		if interval > 0 {
			s.retryInterval = interval
		}
	}
}

// WithPropagationWindow sets how long, and how often, the verifier is
// polled before validation is requested.
func WithPropagationWindow(timeout, interval time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.propagationTimeout = timeout
		}
		if interval > 0 {
			s.propagationInterval = interval
		}
	}
}

// Service runs the issuance and renewal workflow against a Store, a DNS
// provider registry, and an ACME CA.
type Service struct {
	store    certorder.Store
	registry *dnspublisher.Registry
	sessions SessionStore
	verifier Verifier
	notifier certorder.Notifier
	log      *slog.Logger

	httpClient   *http.Client
	directoryURL string

	validationPolicy acmeorder.PollPolicy
	finalizePolicy   acmeorder.PollPolicy

	retryAttempts int
	retryInterval time.Duration

	propagationTimeout  time.Duration
	propagationInterval time.Duration
}

// New creates a renewal service. The zero configuration talks to Let's
// Encrypt production with default poll and retry policies.
func New(store certorder.Store, registry *dnspublisher.Registry, opts ...Option) *Service {
	s := &Service{
		store:               store,
		registry:            registry,
		sessions:            NewMemoryStore(DefaultSessionTTL),
		verifier:            propagation.NewVerifier(),
		notifier:            certorder.NopNotifier{},
		log:                 slog.New(slog.NewTextHandler(io.Discard, nil)),
		directoryURL:        acmeorder.LetsEncryptProduction,
		validationPolicy:    acmeorder.DefaultValidationPolicy(),
		finalizePolicy:      acmeorder.DefaultFinalizePolicy(),
		retryAttempts:       DefaultRetryAttempts,
		retryInterval:       DefaultRetryInterval,
		propagationTimeout:  DefaultPropagationTimeout,
		propagationInterval: DefaultPropagationInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DomainSelection binds one domain of an order to the DNS provider
// configuration that publishes its challenge record.
type DomainSelection struct {
	Domain     string
	ProviderID string
}

// StartOrderRequest describes a new certificate order.
type StartOrderRequest struct {
	OwnerID      string
	ContactEmail string
	SavePath     string
	Domains      []DomainSelection

	SeparateFiles     bool
	PersistForRenewal bool
	AutoRenew         bool
}

// StartOrder issues a brand new certificate: it registers an ACME account
// under a fresh key, runs the full DNS-01 workflow for every domain, and
// writes the certificate files under SavePath. The order is saved to the
// store only when PersistForRenewal is set.
func (s *Service) StartOrder(ctx context.Context, req StartOrderRequest) (*certorder.CertificateOrder, error) {
	if len(req.Domains) == 0 {
		return nil, ErrNoDomains
	}

	order := certorder.NewOrder(req.OwnerID, req.ContactEmail, req.SavePath)
	order.SeparateFiles = req.SeparateFiles
	order.PersistForRenewal = req.PersistForRenewal
	order.AutoRenew = req.AutoRenew

	key, err := acmeorder.GenerateAccountKey()
	if err != nil {
		return nil, err
	}
	order.AccountKeyPEM = acmeorder.EncodeKeyPEM(key)

	engine := s.newEngine(key)
	if thumb, err := engine.Thumbprint(); err == nil {
		order.AccountThumbprint = thumb
	}
	if err := engine.InitAccount(ctx, req.ContactEmail); err != nil {
		return nil, err
	}
	order.AccountID = engine.AccountURL()

	providerByDomain := make(map[string]string, len(req.Domains))
	domains := make([]string, len(req.Domains))
	for i, sel := range req.Domains {
		domains[i] = sel.Domain
		providerByDomain[sel.Domain] = sel.ProviderID
	}

	acmeOrder, err := engine.BeginOrder(ctx, domains)
	if err != nil {
		return nil, err
	}
	order.OrderURL = acmeOrder.URI

	challenges, err := engine.FetchChallenges(ctx, acmeOrder)
	if err != nil {
		return nil, err
	}
	for i := range challenges {
		challenges[i].OrderID = order.ID
		providerID, ok := providerByDomain[challenges[i].Domain]
		if !ok || providerID == "" {
			return nil, fmt.Errorf("renewal: no dns provider selected for %s", challenges[i].Domain)
		}
		challenges[i].ProviderID = providerID
	}
	order.Challenges = challenges

	if err := s.completeIssuance(ctx, engine, order, acmeOrder); err != nil {
		s.notifier.Error(fmt.Sprintf("issuance failed for %s: %v", strings.Join(domains, ", "), err))
		return nil, err
	}

	if order.PersistForRenewal {
		if err := s.store.SaveOrder(ctx, order); err != nil {
			return nil, fmt.Errorf("save order: %w", err)
		}
	}
	s.notifier.Update(fmt.Sprintf("certificate issued for %s, valid until %s",
		strings.Join(domains, ", "), order.ExpiresAt.Format(time.RFC3339)))
	return order, nil
}

// AutoRenew re-issues a persisted order unattended. Transient failures are
// retried on a fixed schedule; a CA-rejected challenge or order, a missing
// DNS zone, or a malformed credential is terminal and fails immediately.
// Renewal bookkeeping is persisted either way.
func (s *Service) AutoRenew(ctx context.Context, orderID string) error {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.PersistForRenewal || len(order.AccountKeyPEM) == 0 {
		return fmt.Errorf("%w: %s", ErrNotRenewable, orderID)
	}

	held, err := s.sessions.Acquire(ctx, orderID)
	if err != nil {
		return fmt.Errorf("acquire renewal guard: %w", err)
	}
	if !held {
		return fmt.Errorf("%w: %s", ErrRenewalInProgress, orderID)
	}
	defer func() {
		if err := s.sessions.Release(context.WithoutCancel(ctx), orderID); err != nil {
			s.log.WarnContext(ctx, "release renewal guard", logger.OrderID(orderID), logger.Error(err))
		}
	}()

	attempt := 0
	operation := func() error {
		attempt++
		renewErr := s.renewOnce(ctx, order)
		if renewErr == nil {
			return nil
		}
		s.log.WarnContext(ctx, "renewal attempt failed",
			logger.OrderID(orderID),
			logger.Attempt(attempt),
			logger.Error(renewErr))

		var invalid *acmeorder.ChallengeInvalidError
		var badCred *dnspublisher.CredentialFormatError
		switch {
		case errors.As(renewErr, &invalid),
			errors.As(renewErr, &badCred),
			errors.Is(renewErr, acmeorder.ErrOrderInvalid),
			errors.Is(renewErr, dnspublisher.ErrZoneNotFound):
			return backoff.Permanent(renewErr)
		}
		return renewErr
	}

	schedule := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryInterval), uint64(s.retryAttempts-1)),
		ctx)

	if err := backoff.Retry(operation, schedule); err != nil {
		order.MarkRenewalFailure()
		if saveErr := s.store.SaveOrder(context.WithoutCancel(ctx), order); saveErr != nil {
			s.log.ErrorContext(ctx, "save order after failed renewal", logger.OrderID(orderID), logger.Error(saveErr))
		}
		s.notifier.Error(fmt.Sprintf("renewal failed for %s after %d attempts: %v",
			strings.Join(order.Domains(), ", "), attempt, err))
		return err
	}

	if err := s.store.SaveOrder(ctx, order); err != nil {
		return fmt.Errorf("save renewed order: %w", err)
	}
	s.notifier.Update(fmt.Sprintf("certificate renewed for %s, valid until %s",
		strings.Join(order.Domains(), ", "), order.ExpiresAt.Format(time.RFC3339)))
	return nil
}

// ManualRenewStart begins a two-phase renewal: it creates a fresh ACME
// order, publishes every challenge record, and parks the state in the
// session store. The published records stay in place until
// ManualRenewFinish runs.
func (s *Service) ManualRenewStart(ctx context.Context, orderID string) (*Session, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(order.AccountKeyPEM) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotRenewable, orderID)
	}

	held, err := s.sessions.Acquire(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("acquire renewal guard: %w", err)
	}
	if !held {
		return nil, fmt.Errorf("%w: %s", ErrRenewalInProgress, orderID)
	}

	session, err := s.manualStart(ctx, order)
	if err != nil {
		if relErr := s.sessions.Release(context.WithoutCancel(ctx), orderID); relErr != nil {
			s.log.WarnContext(ctx, "release renewal guard", logger.OrderID(orderID), logger.Error(relErr))
		}
		return nil, err
	}
	return session, nil
}

func (s *Service) manualStart(ctx context.Context, order *certorder.CertificateOrder) (*Session, error) {
	key, err := acmeorder.ParseKeyPEM(order.AccountKeyPEM)
	if err != nil {
		return nil, err
	}
	engine := s.newEngine(key)
	if err := engine.InitAccount(ctx, order.ContactEmail); err != nil {
		return nil, err
	}

	acmeOrder, err := engine.BeginOrder(ctx, order.Domains())
	if err != nil {
		return nil, err
	}
	if err := s.refreshChallenges(ctx, engine, order, acmeOrder); err != nil {
		return nil, err
	}

	published, err := s.publishAll(ctx, order)
	if err != nil {
		s.removeAll(context.WithoutCancel(ctx), published)
		return nil, fmt.Errorf("publish challenge records: %w", err)
	}

	session := Session{
		OrderID:       order.ID,
		OrderURL:      order.OrderURL,
		AccountKeyPEM: order.AccountKeyPEM,
		Challenges:    order.Challenges,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		s.removeAll(context.WithoutCancel(ctx), published)
		return nil, fmt.Errorf("store renewal session: %w", err)
	}

	if order.PersistForRenewal {
		if err := s.store.SaveOrder(ctx, order); err != nil {
			s.log.WarnContext(ctx, "save order after manual start", logger.OrderID(order.ID), logger.Error(err))
		}
	}
	return &session, nil
}

// ManualRenewFinish completes a renewal begun with ManualRenewStart:
// verifies propagation, drives validation and finalization, writes the
// certificate files, and removes the challenge records. Every outcome
// consumes the session; an exhausted propagation window concludes the
// renewal as a failure like any other error.
func (s *Service) ManualRenewFinish(ctx context.Context, orderID string) (*certorder.CertificateOrder, error) {
	session, err := s.sessions.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.OrderURL = session.OrderURL
	order.Challenges = append([]certorder.Challenge(nil), session.Challenges...)

	key, err := acmeorder.ParseKeyPEM(session.AccountKeyPEM)
	if err != nil {
		return nil, err
	}
	engine := s.newEngine(key)
	if err := engine.InitAccount(ctx, order.ContactEmail); err != nil {
		return nil, err
	}
	acmeOrder, err := engine.ResumeOrder(ctx, session.OrderURL)
	if err != nil {
		return nil, err
	}

	finishErr := func() error {
		if err := s.awaitPropagation(ctx, order); err != nil {
			return err
		}
		return s.finishValidation(ctx, engine, order, acmeOrder)
	}()

	cleanupCtx := context.WithoutCancel(ctx)
	s.removeAll(cleanupCtx, publishedChallenges(order))
	if err := s.sessions.Delete(cleanupCtx, orderID); err != nil {
		s.log.WarnContext(ctx, "delete renewal session", logger.OrderID(orderID), logger.Error(err))
	}
	if err := s.sessions.Release(cleanupCtx, orderID); err != nil {
		s.log.WarnContext(ctx, "release renewal guard", logger.OrderID(orderID), logger.Error(err))
	}

	if finishErr != nil {
		order.MarkRenewalFailure()
		if order.PersistForRenewal {
			if saveErr := s.store.SaveOrder(cleanupCtx, order); saveErr != nil {
				s.log.ErrorContext(ctx, "save order after failed renewal", logger.OrderID(orderID), logger.Error(saveErr))
			}
		}
		return nil, finishErr
	}

	if order.PersistForRenewal {
		if err := s.store.SaveOrder(ctx, order); err != nil {
			return nil, fmt.Errorf("save renewed order: %w", err)
		}
	}
	s.notifier.Update(fmt.Sprintf("certificate renewed for %s, valid until %s",
		strings.Join(order.Domains(), ", "), order.ExpiresAt.Format(time.RFC3339)))
	return order, nil
}

// Revoke revokes the last certificate issued for the order and marks its
// challenges revoked.
func (s *Service) Revoke(ctx context.Context, orderID string) error {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if len(order.CertificatePEM) == 0 {
		return acmeorder.ErrNoCertificate
	}
	key, err := acmeorder.ParseKeyPEM(order.AccountKeyPEM)
	if err != nil {
		return err
	}
	engine := s.newEngine(key)
	if err := engine.InitAccount(ctx, order.ContactEmail); err != nil {
		return err
	}
	if err := engine.Revoke(ctx, order.CertificatePEM); err != nil {
		return err
	}

	for i := range order.Challenges {
		order.Challenges[i].Status = certorder.StatusRevoked
	}
	if order.PersistForRenewal {
		if err := s.store.SaveOrder(ctx, order); err != nil {
			return fmt.Errorf("save revoked order: %w", err)
		}
	}
	s.notifier.Update(fmt.Sprintf("certificate revoked for %s", strings.Join(order.Domains(), ", ")))
	return nil
}

func (s *Service) newEngine(key crypto.Signer) *acmeorder.Engine {
	opts := []acmeorder.Option{acmeorder.WithLogger(s.log)}
	if s.httpClient != nil {
		opts = append(opts, acmeorder.WithHTTPClient(s.httpClient))
	}
	return acmeorder.NewEngine(key, s.directoryURL, opts...)
}

// renewOnce performs one complete renewal attempt against a fresh ACME
// order, keeping the stored provider bindings per domain.
func (s *Service) renewOnce(ctx context.Context, order *certorder.CertificateOrder) error {
	key, err := acmeorder.ParseKeyPEM(order.AccountKeyPEM)
	if err != nil {
		return err
	}
	engine := s.newEngine(key)
	if err := engine.InitAccount(ctx, order.ContactEmail); err != nil {
		return err
	}

	acmeOrder, err := engine.BeginOrder(ctx, order.Domains())
	if err != nil {
		return err
	}
	if err := s.refreshChallenges(ctx, engine, order, acmeOrder); err != nil {
		return err
	}
	return s.completeIssuance(ctx, engine, order, acmeOrder)
}

// refreshChallenges replaces the order's challenges with the new ACME
// order's, carrying over each domain's provider binding.
func (s *Service) refreshChallenges(ctx context.Context, engine *acmeorder.Engine, order *certorder.CertificateOrder, acmeOrder *acme.Order) error {
	fresh, err := engine.FetchChallenges(ctx, acmeOrder)
	if err != nil {
		return err
	}
	for i := range fresh {
		prev := order.ChallengeByDomain(fresh[i].Domain)
		if prev == nil || prev.ProviderID == "" {
			return fmt.Errorf("renewal: no dns provider binding for %s", fresh[i].Domain)
		}
		fresh[i].OrderID = order.ID
		fresh[i].ProviderID = prev.ProviderID
		fresh[i].ZoneID = prev.ZoneID
	}
	order.OrderURL = acmeOrder.URI
	order.Challenges = fresh
	return nil
}

// completeIssuance runs publish, propagation wait, validation, and
// finalization for the order's current challenges. Published records are
// removed again on every outcome.
func (s *Service) completeIssuance(ctx context.Context, engine *acmeorder.Engine, order *certorder.CertificateOrder, acmeOrder *acme.Order) error {
	published, err := s.publishAll(ctx, order)
	defer s.removeAll(context.WithoutCancel(ctx), published)
	if err != nil {
		return fmt.Errorf("publish challenge records: %w", err)
	}

	if err := s.awaitPropagation(ctx, order); err != nil {
		return err
	}
	return s.finishValidation(ctx, engine, order, acmeOrder)
}

// publishAll creates the TXT record for every challenge concurrently. It
// returns the challenges whose records made it to DNS, so the caller can
// remove them even when another domain's publish failed.
func (s *Service) publishAll(ctx context.Context, order *certorder.CertificateOrder) ([]*certorder.Challenge, error) {
	var (
		mu        sync.Mutex
		published []*certorder.Challenge
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := range order.Challenges {
		ch := &order.Challenges[i]
		g.Go(func() error {
			pub, err := s.publisherFor(gctx, ch.ProviderID)
			if err != nil {
				return err
			}
			zone, err := pub.Publish(gctx, ch.Domain, ch.DNSValue)
			if err != nil {
				return fmt.Errorf("%s: %w", ch.Domain, err)
			}
			ch.ZoneID = zone
			ch.Status = certorder.StatusProcessing
			mu.Lock()
			published = append(published, ch)
			mu.Unlock()
			s.log.DebugContext(gctx, "challenge record published", logger.Domain(ch.Domain))
			return nil
		})
	}
	err := g.Wait()
	return published, err
}

// removeAll deletes published challenge records, best effort.
func (s *Service) removeAll(ctx context.Context, published []*certorder.Challenge) {
	for _, ch := range published {
		pub, err := s.publisherFor(ctx, ch.ProviderID)
		if err != nil {
			s.log.WarnContext(ctx, "challenge record cleanup", logger.Domain(ch.Domain), logger.Error(err))
			continue
		}
		if err := pub.Remove(ctx, ch.Domain, ch.ZoneID); err != nil {
			s.log.WarnContext(ctx, "challenge record cleanup", logger.Domain(ch.Domain), logger.Error(err))
		}
	}
}

// awaitPropagation polls the verifier for every domain until all records
// are visible or the propagation window closes.
func (s *Service) awaitPropagation(ctx context.Context, order *certorder.CertificateOrder) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range order.Challenges {
		ch := &order.Challenges[i]
		g.Go(func() error {
			fqdn := dnspublisher.ChallengeFQDN(ch.Domain)
			deadline := time.Now().Add(s.propagationTimeout)
			for {
				if s.verifier.Verify(gctx, fqdn, ch.DNSValue) {
					return nil
				}
				if time.Now().After(deadline) {
					return &PropagationError{Domain: ch.Domain, FQDN: fqdn}
				}
				if err := sleepCtx(gctx, s.propagationInterval); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

// finishValidation drives the ACME order to an issued certificate and
// records the result on the order.
func (s *Service) finishValidation(ctx context.Context, engine *acmeorder.Engine, order *certorder.CertificateOrder, acmeOrder *acme.Order) error {
	for _, ch := range order.Challenges {
		if err := engine.SubmitChallenge(ctx, ch); err != nil {
			return err
		}
	}
	if err := engine.PollValidation(ctx, order.Challenges, s.validationPolicy); err != nil {
		return err
	}

	certKey, err := acmeorder.GenerateCertificateKey()
	if err != nil {
		return err
	}
	der, certURL, err := engine.Finalize(ctx, acmeOrder, certKey, order.Domains(), s.finalizePolicy)
	if err != nil {
		return err
	}
	stored, err := engine.DownloadAndStore(ctx, certURL, der, certKey, order.SeparateFiles, order.SavePath)
	if err != nil {
		return err
	}

	order.CertificatePEM = stored.CertificatePEM
	order.MarkRenewalSuccess(stored.NotAfter)
	return nil
}

func (s *Service) publisherFor(ctx context.Context, providerID string) (dnspublisher.Publisher, error) {
	cfg, err := s.store.GetProviderConfig(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return s.registry.New(*cfg)
}

// publishedChallenges returns pointers to the order's challenges that have
// a record in DNS, identified by an advanced status.
func publishedChallenges(order *certorder.CertificateOrder) []*certorder.Challenge {
	published := make([]*certorder.Challenge, 0, len(order.Challenges))
	for i := range order.Challenges {
		if order.Challenges[i].Status != certorder.StatusPending {
			published = append(published, &order.Challenges[i])
		}
	}
	return published
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
