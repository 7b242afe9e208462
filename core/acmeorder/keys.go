package acmeorder

import (
	"crypto"
	"fmt"

	"github.com/go-acme/lego/v4/certcrypto"
)

// GenerateAccountKey creates a fresh ECDSA P-256 account key.
func GenerateAccountKey() (crypto.Signer, error) {
	key, err := certcrypto.GeneratePrivateKey(certcrypto.EC256)
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("generated account key is not a signer")
	}
	return signer, nil
}

// GenerateCertificateKey creates a fresh RSA-2048 key for the certificate
// itself. A new key is generated for every issuance and renewal.
func GenerateCertificateKey() (crypto.Signer, error) {
	key, err := certcrypto.GeneratePrivateKey(certcrypto.RSA2048)
	if err != nil {
		return nil, fmt.Errorf("generate certificate key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("generated certificate key is not a signer")
	}
	return signer, nil
}

// EncodeKeyPEM serializes a private key to PEM for storage alongside the
// order record.
func EncodeKeyPEM(key crypto.PrivateKey) []byte {
	return certcrypto.PEMEncode(key)
}

// ParseKeyPEM restores a private key previously encoded with EncodeKeyPEM.
func ParseKeyPEM(data []byte) (crypto.Signer, error) {
	key, err := certcrypto.ParsePEMPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse account key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("parsed key is not a signer")
	}
	return signer, nil
}
