// Package acmetest provides an in-process fake ACME directory server for
// exercising the order lifecycle in tests without a real CA.
//
// The server implements just enough of RFC 8555 for the golang.org/x/crypto
// acme client: directory discovery, nonces, account registration, order and
// authorization resources, dns-01 challenge acceptance, finalization against
// a submitted CSR, certificate download, and revocation. JWS signatures are
// not verified; payloads are taken at face value.
//
// Challenge outcomes are decided by a pluggable validator so tests can model
// "valid once the TXT record is visible", permanent CA rejections, or
// never-completing validations.
package acmetest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Challenge statuses a Validator may return.
const (
	StatusPending = "pending"
	StatusValid   = "valid"
	StatusInvalid = "invalid"
)

// ValidationResult is a Validator's verdict for one challenge poll.
type ValidationResult struct {
	Status  string
	Problem string // CA error detail used when Status is invalid
}

// Validator decides a challenge's outcome. It runs on challenge acceptance
// and again on every authorization poll until it returns a terminal status.
type Validator func(domain, token string) ValidationResult

// Option configures the fake server.
type Option func(*Server)

// WithValidator replaces the default always-valid validator.
func WithValidator(v Validator) Option {
	return func(s *Server) {
		if v != nil {
			s.validate = v
		}
	}
}

type challengeState struct {
	domain   string
	token    string
	status   string
	accepted bool
	problem  string
}

type orderState struct {
	id       string
	domains  []string
	status   string
	authzIDs []string
	certID   string
}

// Server is a fake ACME CA.
type Server struct {
	mu         sync.Mutex
	httpSrv    *httptest.Server
	validate   Validator
	seq        int
	orders     map[string]*orderState
	challenges map[string]*challengeState // authz id -> challenge
	certs      map[string][]byte          // cert id -> PEM chain
	revoked    [][]byte                   // DER of revoked certs
}

// NewServer starts the fake CA. Callers must Close it.
func NewServer(opts ...Option) *Server {
	s := &Server{
		validate: func(string, string) ValidationResult {
			return ValidationResult{Status: StatusValid}
		},
		orders:     make(map[string]*orderState),
		challenges: make(map[string]*challengeState),
		certs:      make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/directory", s.handleDirectory)
	mux.HandleFunc("/new-nonce", s.handleNonce)
	mux.HandleFunc("/new-account", s.handleNewAccount)
	mux.HandleFunc("/new-order", s.handleNewOrder)
	mux.HandleFunc("/order/", s.handleOrder)
	mux.HandleFunc("/authz/", s.handleAuthz)
	mux.HandleFunc("/chal/", s.handleChallenge)
	mux.HandleFunc("/finalize/", s.handleFinalize)
	mux.HandleFunc("/cert/", s.handleCert)
	mux.HandleFunc("/revoke", s.handleRevoke)
	s.httpSrv = httptest.NewServer(mux)
	return s
}

// Close shuts the server down.
func (s *Server) Close() { s.httpSrv.Close() }

// DirectoryURL returns the ACME directory endpoint.
func (s *Server) DirectoryURL() string { return s.httpSrv.URL + "/directory" }

// RevokedCount reports how many revocation requests were accepted.
func (s *Server) RevokedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.revoked)
}

func (s *Server) url(path string) string { return s.httpSrv.URL + path }

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Replay-Nonce", s.nonce())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) nonce() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// jwsPayload extracts the base64url payload of a JWS request body without
// verifying the signature. An empty payload marks a POST-as-GET.
func jwsPayload(r *http.Request) ([]byte, error) {
	var envelope struct {
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	if envelope.Payload == "" {
		return nil, nil
	}
	return base64.RawURLEncoding.DecodeString(envelope.Payload)
}

func (s *Server) handleDirectory(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"newNonce":   s.url("/new-nonce"),
		"newAccount": s.url("/new-account"),
		"newOrder":   s.url("/new-order"),
		"revokeCert": s.url("/revoke"),
		"keyChange":  s.url("/key-change"),
	})
}

func (s *Server) handleNonce(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Replay-Nonce", s.nonce())
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleNewAccount(w http.ResponseWriter, r *http.Request) {
	_, _ = jwsPayload(r)
	w.Header().Set("Location", s.url("/account/1"))
	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "valid"})
}

func (s *Server) handleNewOrder(w http.ResponseWriter, r *http.Request) {
	payload, err := jwsPayload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req struct {
		Identifiers []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"identifiers"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || len(req.Identifiers) == 0 {
		http.Error(w, "bad order", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	order := &orderState{id: s.nextID("order"), status: StatusPending}
	for _, ident := range req.Identifiers {
		authzID := s.nextID("authz")
		token := s.nextID("token")
		s.challenges[authzID] = &challengeState{
			domain: ident.Value,
			token:  token,
			status: StatusPending,
		}
		order.authzIDs = append(order.authzIDs, authzID)
		order.domains = append(order.domains, ident.Value)
	}
	s.orders[order.id] = order
	s.mu.Unlock()

	w.Header().Set("Location", s.url("/order/"+order.id))
	s.writeJSON(w, http.StatusCreated, s.orderJSON(order))
}

func (s *Server) orderJSON(order *orderState) map[string]any {
	authzURLs := make([]string, len(order.authzIDs))
	for i, id := range order.authzIDs {
		authzURLs[i] = s.url("/authz/" + id)
	}
	identifiers := make([]map[string]string, len(order.domains))
	for i, d := range order.domains {
		identifiers[i] = map[string]string{"type": "dns", "value": d}
	}
	body := map[string]any{
		"status":         order.status,
		"expires":        time.Now().Add(time.Hour).Format(time.RFC3339),
		"identifiers":    identifiers,
		"authorizations": authzURLs,
		"finalize":       s.url("/finalize/" + order.id),
	}
	if order.certID != "" {
		body["certificate"] = s.url("/cert/" + order.certID)
	}
	return body
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/order/")
	s.mu.Lock()
	order, ok := s.orders[id]
	var body map[string]any
	if ok {
		body = s.orderJSON(order)
	}
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, body)
}

// revalidate runs the validator for an accepted challenge and folds the
// verdict into the stored state. Caller holds s.mu.
func (s *Server) revalidate(ch *challengeState) {
	if !ch.accepted || ch.status == StatusValid || ch.status == StatusInvalid {
		return
	}
	result := s.validate(ch.domain, ch.token)
	switch result.Status {
	case StatusValid:
		ch.status = StatusValid
	case StatusInvalid:
		ch.status = StatusInvalid
		ch.problem = result.Problem
	}
}

func (s *Server) challengeJSON(authzID string, ch *challengeState) map[string]any {
	status := ch.status
	if ch.accepted && status == StatusPending {
		status = "processing"
	}
	body := map[string]any{
		"type":   "dns-01",
		"url":    s.url("/chal/" + authzID),
		"token":  ch.token,
		"status": status,
	}
	if ch.status == StatusInvalid {
		body["error"] = map[string]any{
			"type":   "urn:ietf:params:acme:error:unauthorized",
			"detail": ch.problem,
			"status": 403,
		}
	}
	return body
}

func (s *Server) handleAuthz(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/authz/")
	s.mu.Lock()
	ch, ok := s.challenges[id]
	var body map[string]any
	if ok {
		s.revalidate(ch)
		status := ch.status
		if ch.accepted && status == StatusPending {
			status = "processing"
		}
		body = map[string]any{
			"status":     status,
			"identifier": map[string]string{"type": "dns", "value": ch.domain},
			"challenges": []map[string]any{s.challengeJSON(id, ch)},
			"expires":    time.Now().Add(time.Hour).Format(time.RFC3339),
		}
	}
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/chal/")
	payload, _ := jwsPayload(r)

	s.mu.Lock()
	ch, ok := s.challenges[id]
	var body map[string]any
	if ok {
		if payload != nil {
			// Acceptance: the client asked the CA to validate.
			ch.accepted = true
			s.revalidate(ch)
		}
		body = s.challengeJSON(id, ch)
	}
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/finalize/")
	payload, err := jwsPayload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req struct {
		CSR string `json:"csr"`
	}
	_ = json.Unmarshal(payload, &req)

	s.mu.Lock()
	order, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		http.NotFound(w, r)
		return
	}

	for _, authzID := range order.authzIDs {
		ch := s.challenges[authzID]
		s.revalidate(ch)
		if ch.status != StatusValid {
			order.status = StatusInvalid
			body := s.orderJSON(order)
			s.mu.Unlock()
			s.writeJSON(w, http.StatusForbidden, body)
			return
		}
	}

	chain, err := s.issueCertificate(order.domains)
	if err != nil {
		s.mu.Unlock()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	order.certID = s.nextID("cert")
	order.status = StatusValid
	s.certs[order.certID] = chain
	body := s.orderJSON(order)
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCert(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/cert/")
	s.mu.Lock()
	chain, ok := s.certs[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Replay-Nonce", s.nonce())
	w.Header().Set("Content-Type", "application/pem-certificate-chain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(chain)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	payload, err := jwsPayload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req struct {
		Certificate string `json:"certificate"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		http.Error(w, "bad revoke request", http.StatusBadRequest)
		return
	}
	der, err := base64.RawURLEncoding.DecodeString(req.Certificate)
	if err != nil {
		http.Error(w, "bad certificate encoding", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.revoked = append(s.revoked, der)
	s.mu.Unlock()

	w.Header().Set("Replay-Nonce", s.nonce())
	w.WriteHeader(http.StatusOK)
}

// issueCertificate builds a throwaway self-signed certificate covering the
// order's domains. The submitted CSR's key is not used; clients under test
// only check that a chain comes back.
func (s *Server) issueCertificate(domains []string) ([]byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: domains[0]},
		DNSNames:              domains,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), nil
}
