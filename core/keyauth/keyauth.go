// Package keyauth derives ACME key authorizations and the DNS-01 TXT record
// values published during validation (RFC 8555 §8.1, §8.4).
//
// All functions are pure: the same account key and token always produce the
// same output, and nothing here performs I/O.
package keyauth

import (
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/acme"
)

// Thumbprint computes the base64url-encoded SHA-256 JWK thumbprint of the
// account public key (RFC 7638).
func Thumbprint(key crypto.Signer) (string, error) {
	thumb, err := acme.JWKThumbprint(key.Public())
	if err != nil {
		return "", fmt.Errorf("compute account key thumbprint: %w", err)
	}
	return thumb, nil
}

// KeyAuthorization combines a challenge token with the account key
// thumbprint: token || "." || thumbprint.
func KeyAuthorization(key crypto.Signer, token string) (string, error) {
	thumb, err := Thumbprint(key)
	if err != nil {
		return "", err
	}
	return token + "." + thumb, nil
}

// TXTRecordValue hashes a key authorization into the value published at
// _acme-challenge.<domain>: base64url(SHA-256(keyAuthorization)). The value
// is independent of the domain being validated.
func TXTRecordValue(keyAuthorization string) string {
	sum := sha256.Sum256([]byte(keyAuthorization))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ChallengeValue derives the TXT record value for a token in one step.
func ChallengeValue(key crypto.Signer, token string) (string, error) {
	keyAuth, err := KeyAuthorization(key, token)
	if err != nil {
		return "", err
	}
	return TXTRecordValue(keyAuth), nil
}
