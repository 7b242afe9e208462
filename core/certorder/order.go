package certorder

import (
	"time"

	"github.com/google/uuid"
)

// ChallengeType is fixed: the core only automates DNS-01 validation.
const ChallengeTypeDNS01 = "dns-01"

// ChallengeStatus tracks a challenge through its lifecycle. Transitions move
// forward only, except renewal which resets Valid/Invalid back to Processing
// for a fresh attempt.
type ChallengeStatus string

const (
	StatusPending    ChallengeStatus = "pending"
	StatusProcessing ChallengeStatus = "processing"
	StatusValid      ChallengeStatus = "valid"
	StatusInvalid    ChallengeStatus = "invalid"
	StatusRevoked    ChallengeStatus = "revoked"
)

// CertificateOrder is one requested certificate, possibly multi-domain (SAN).
// The order identifier is stable across renewals; renewal rewrites the ACME
// resource URLs and counters but never the identifier.
type CertificateOrder struct {
	ID                     string
	OwnerID                string
	ContactEmail           string
	SavePath               string
	CreatedAt              time.Time
	ExpiresAt              time.Time
	SeparateFiles          bool
	PersistForRenewal      bool
	AutoRenew              bool
	FailedRenewalCount     int
	SuccessfulRenewalCount int

	// ACME account state, refreshed by the order engine.
	AccountKeyPEM     []byte
	AccountID         string
	AccountThumbprint string

	OrderURL      string
	ChallengeType string

	// CertificatePEM holds the last issued certificate chain; required for
	// revocation without re-reading files from disk.
	CertificatePEM []byte

	Challenges []Challenge
}

// Challenge is one domain's DNS-01 challenge within an order.
type Challenge struct {
	ID               string
	OrderID          string
	Domain           string
	AuthorizationURL string
	ChallengeURL     string

	// Token is the raw ACME challenge token; DNSValue is the derived TXT
	// record payload actually published to DNS.
	Token    string
	DNSValue string

	// ProviderID selects the DNS provider credentials used to publish the
	// record. ZoneID is the provider-assigned zone handle captured on the
	// first successful publish and reused on renewal to skip zone discovery.
	ProviderID string
	ZoneID     string

	Status ChallengeStatus
}

// NewOrder creates an order shell with a fresh identifier. ACME resource
// fields are filled in by the order engine once the account and order exist.
func NewOrder(ownerID, contactEmail, savePath string) *CertificateOrder {
	return &CertificateOrder{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		ContactEmail:  contactEmail,
		SavePath:      savePath,
		CreatedAt:     time.Now().UTC(),
		ChallengeType: ChallengeTypeDNS01,
	}
}

// Domains returns the domain of every challenge, in order.
func (o *CertificateOrder) Domains() []string {
	domains := make([]string, len(o.Challenges))
	for i, ch := range o.Challenges {
		domains[i] = ch.Domain
	}
	return domains
}

// ChallengeByDomain returns the challenge for the given domain, or nil.
func (o *CertificateOrder) ChallengeByDomain(domain string) *Challenge {
	for i := range o.Challenges {
		if o.Challenges[i].Domain == domain {
			return &o.Challenges[i]
		}
	}
	return nil
}

// MarkRenewalSuccess records a completed renewal: the success counter is
// incremented, the validity window updated, and every challenge advanced to
// Valid. Counters are monotonic and never reset here.
func (o *CertificateOrder) MarkRenewalSuccess(expiresAt time.Time) {
	o.SuccessfulRenewalCount++
	o.ExpiresAt = expiresAt
	for i := range o.Challenges {
		o.Challenges[i].Status = StatusValid
	}
}

// MarkRenewalFailure records a terminally failed renewal attempt.
func (o *CertificateOrder) MarkRenewalFailure() {
	o.FailedRenewalCount++
	for i := range o.Challenges {
		o.Challenges[i].Status = StatusInvalid
	}
}

// Clone returns a deep copy, used by stores to keep their internal state
// isolated from caller mutation.
func (o *CertificateOrder) Clone() *CertificateOrder {
	cp := *o
	cp.AccountKeyPEM = append([]byte(nil), o.AccountKeyPEM...)
	cp.CertificatePEM = append([]byte(nil), o.CertificatePEM...)
	cp.Challenges = append([]Challenge(nil), o.Challenges...)
	return &cp
}
