package acmeorder

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/acme"

	"github.com/certflow/certflow/core/certorder"
	"github.com/certflow/certflow/core/keyauth"
	"github.com/certflow/certflow/pkg/logger"
	"github.com/google/uuid"
)

// Well-known ACME directory endpoints.
const (
	LetsEncryptProduction = "https://acme-v02.api.letsencrypt.org/directory"
	LetsEncryptStaging    = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient overrides the HTTP client used for ACME calls.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		if client != nil {
			e.client.HTTPClient = client
		}
	}
}

// WithLogger sets the engine logger. Protocol steps are logged at debug level.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// Engine drives the ACME order lifecycle for one account key. It is not safe
// for concurrent use; the renewal workflow creates one engine per renewal.
type Engine struct {
	client  *acme.Client
	log     *slog.Logger
	account *acme.Account
}

// NewEngine creates an engine bound to an account key and CA directory.
func NewEngine(accountKey crypto.Signer, directoryURL string, opts ...Option) *Engine {
	e := &Engine{
		client: &acme.Client{
			Key:          accountKey,
			DirectoryURL: directoryURL,
			UserAgent:    "certflow",
		},
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Key returns the account key the engine signs requests with.
func (e *Engine) Key() crypto.Signer {
	return e.client.Key
}

// Thumbprint returns the account key's JWK thumbprint.
func (e *Engine) Thumbprint() (string, error) {
	return keyauth.Thumbprint(e.client.Key)
}

// AccountURL returns the registered account's resource URL, or empty before
// InitAccount succeeds.
func (e *Engine) AccountURL() string {
	if e.account == nil {
		return ""
	}
	return e.account.URI
}

// InitAccount discovers the directory and registers (or reuses) the ACME
// account bound to the engine's key. An unreachable directory or rejected
// registration is fatal for the order.
func (e *Engine) InitAccount(ctx context.Context, email string) error {
	if _, err := e.client.Discover(ctx); err != nil {
		return fmt.Errorf("fetch acme directory: %w", err)
	}

	acct := &acme.Account{}
	if email != "" {
		acct.Contact = []string{"mailto:" + email}
	}

	registered, err := e.client.Register(ctx, acct, acme.AcceptTOS)
	if errors.Is(err, acme.ErrAccountAlreadyExists) {
		registered, err = e.client.GetReg(ctx, "")
	}
	if err != nil {
		return fmt.Errorf("register acme account: %w", err)
	}

	e.account = registered
	e.log.DebugContext(ctx, "acme account ready", slog.String("account_url", registered.URI))
	return nil
}

// BeginOrder creates a new order covering all domains. A CA-rejected order
// (malformed or blocked domain) fails immediately.
func (e *Engine) BeginOrder(ctx context.Context, domains []string) (*acme.Order, error) {
	order, err := e.client.AuthorizeOrder(ctx, acme.DomainIDs(domains...))
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if order.Status == acme.StatusInvalid {
		return nil, fmt.Errorf("%w: order rejected at creation", ErrOrderInvalid)
	}

	e.log.DebugContext(ctx, "acme order created",
		slog.String("order_url", order.URI),
		logger.Domains(domains))
	return order, nil
}

// ResumeOrder re-fetches a previously created order, used to continue a
// two-phase manual renewal from a stored order URL.
func (e *Engine) ResumeOrder(ctx context.Context, orderURL string) (*acme.Order, error) {
	order, err := e.client.GetOrder(ctx, orderURL)
	if err != nil {
		return nil, fmt.Errorf("resume order: %w", err)
	}
	return order, nil
}

// FetchChallenges retrieves the dns-01 challenge of every authorization in
// the order and derives the TXT record value to publish for each domain.
func (e *Engine) FetchChallenges(ctx context.Context, order *acme.Order) ([]certorder.Challenge, error) {
	challenges := make([]certorder.Challenge, 0, len(order.AuthzURLs))
	for _, authzURL := range order.AuthzURLs {
		authz, err := e.client.GetAuthorization(ctx, authzURL)
		if err != nil {
			return nil, fmt.Errorf("fetch authorization: %w", err)
		}

		var dnsChal *acme.Challenge
		for _, ch := range authz.Challenges {
			if ch.Type == "dns-01" {
				dnsChal = ch
				break
			}
		}
		if dnsChal == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoDNSChallenge, authz.Identifier.Value)
		}

		value, err := keyauth.ChallengeValue(e.client.Key, dnsChal.Token)
		if err != nil {
			return nil, err
		}

		challenges = append(challenges, certorder.Challenge{
			ID:               uuid.NewString(),
			Domain:           authz.Identifier.Value,
			AuthorizationURL: authz.URI,
			ChallengeURL:     dnsChal.URI,
			Token:            dnsChal.Token,
			DNSValue:         value,
			Status:           certorder.StatusPending,
		})
	}
	return challenges, nil
}

// SubmitChallenge asks the CA to validate a pending challenge. Challenges
// that are already processing or valid are left alone; a challenge the CA
// has already marked invalid is terminal.
func (e *Engine) SubmitChallenge(ctx context.Context, ch certorder.Challenge) error {
	current, err := e.client.GetChallenge(ctx, ch.ChallengeURL)
	if err != nil {
		return fmt.Errorf("fetch challenge: %w", err)
	}

	switch current.Status {
	case acme.StatusPending:
		if _, err := e.client.Accept(ctx, current); err != nil {
			return fmt.Errorf("submit challenge for %s: %w", ch.Domain, err)
		}
		e.log.DebugContext(ctx, "challenge submitted", logger.Domain(ch.Domain))
		return nil
	case acme.StatusInvalid:
		return &ChallengeInvalidError{Domain: ch.Domain, Detail: problemDetail(current.Error)}
	default:
		// Already processing or valid; submission is idempotent.
		return nil
	}
}

// PollValidation fetches authorization status for every challenge until all
// are valid, any is invalid (terminal, with the CA's error detail), or the
// attempt budget is exhausted. Transient fetch errors count against the
// budget rather than failing the poll.
func (e *Engine) PollValidation(ctx context.Context, challenges []certorder.Challenge, policy PollPolicy) error {
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		allValid := true

		for _, ch := range challenges {
			authz, err := e.client.GetAuthorization(ctx, ch.AuthorizationURL)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.log.DebugContext(ctx, "authorization poll failed",
					logger.Domain(ch.Domain),
					logger.Attempt(attempt),
					logger.Error(err))
				allValid = false
				break
			}

			switch authz.Status {
			case acme.StatusValid:
				continue
			case acme.StatusInvalid, acme.StatusRevoked, acme.StatusDeactivated:
				return &ChallengeInvalidError{
					Domain: ch.Domain,
					Detail: authzProblemDetail(authz),
				}
			default:
				allValid = false
			}
			if !allValid {
				break
			}
		}

		if allValid {
			return nil
		}
		if attempt < policy.MaxAttempts {
			if err := sleepCtx(ctx, policy.Interval); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d validation polls", ErrPollingTimeout, policy.MaxAttempts)
}

// Finalize submits a CSR built from certKey, with the first domain as CN and
// every domain as a SAN, then waits for the CA to issue. The wait is bounded
// by the policy; a CA-reported invalid order is terminal.
func (e *Engine) Finalize(ctx context.Context, order *acme.Order, certKey crypto.Signer, domains []string, policy PollPolicy) (der [][]byte, certURL string, err error) {
	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: domains[0]},
		DNSNames: domains,
	}, certKey)
	if err != nil {
		return nil, "", fmt.Errorf("create csr: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, policy.Bound())
	defer cancel()

	der, certURL, err = e.client.CreateOrderCert(waitCtx, order.FinalizeURL, csr, true)
	if err != nil {
		var orderErr *acme.OrderError
		switch {
		case errors.As(err, &orderErr):
			return nil, "", fmt.Errorf("%w: %s", ErrOrderInvalid, orderErr.Error())
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return nil, "", fmt.Errorf("%w waiting for order finalization", ErrPollingTimeout)
		default:
			return nil, "", fmt.Errorf("finalize order: %w", err)
		}
	}

	e.log.DebugContext(ctx, "order finalized", slog.String("cert_url", certURL))
	return der, certURL, nil
}

// FetchCertificate downloads the issued certificate chain in DER form.
func (e *Engine) FetchCertificate(ctx context.Context, certURL string) ([][]byte, error) {
	der, err := e.client.FetchCert(ctx, certURL, true)
	if err != nil {
		return nil, fmt.Errorf("fetch certificate: %w", err)
	}
	return der, nil
}

// Revoke submits a revocation request for the given certificate, accepting
// either a PEM chain or raw DER bytes.
func (e *Engine) Revoke(ctx context.Context, cert []byte) error {
	if len(cert) == 0 {
		return ErrNoCertificate
	}
	der, err := leafDER(cert)
	if err != nil {
		return err
	}
	if err := e.client.RevokeCert(ctx, nil, der, acme.CRLReasonUnspecified); err != nil {
		return fmt.Errorf("revoke certificate: %w", err)
	}
	return nil
}

func problemDetail(err error) string {
	var acmeErr *acme.Error
	if errors.As(err, &acmeErr) {
		return acmeErr.Detail
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func authzProblemDetail(authz *acme.Authorization) string {
	for _, ch := range authz.Challenges {
		if ch.Type == "dns-01" && ch.Error != nil {
			return problemDetail(ch.Error)
		}
	}
	for _, ch := range authz.Challenges {
		if ch.Error != nil {
			return problemDetail(ch.Error)
		}
	}
	return "authorization " + authz.Status
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
