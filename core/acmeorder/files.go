package acmeorder

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
)

// StoredCertificate describes the artifacts written by DownloadAndStore.
type StoredCertificate struct {
	// CertificatePath is the written certificate file. In combined mode it
	// also contains the private key and KeyPath is empty.
	CertificatePath string
	KeyPath         string

	// CertificatePEM is the full PEM chain, kept with the order record so a
	// later revoke does not need to re-read files.
	CertificatePEM []byte

	NotAfter time.Time
}

// filePrefix derives the timestamped artifact name shared by all files of
// one issuance: cert_YYYYMMDD_HHMMSS.
func filePrefix(now time.Time) string {
	return "cert_" + now.Format("20060102_150405")
}

var windowsVolumeRoot = regexp.MustCompile(`^[A-Za-z]:[\\/]?$`)

// isFilesystemRoot rejects save paths that would scatter certificates at a
// filesystem root, e.g. "/" or "C:\".
func isFilesystemRoot(path string) bool {
	clean := filepath.Clean(path)
	if clean == "/" || clean == "." || clean == "" {
		return true
	}
	return windowsVolumeRoot.MatchString(clean)
}

// DownloadAndStore writes the issued certificate under savePath, either as a
// single combined <prefix>.pem (chain plus key) or as a <prefix>.crt and
// <prefix>.key pair. When der is nil the chain is fetched from certURL first.
func (e *Engine) DownloadAndStore(ctx context.Context, certURL string, der [][]byte, certKey crypto.Signer, separateFiles bool, savePath string) (*StoredCertificate, error) {
	if isFilesystemRoot(savePath) {
		return nil, fmt.Errorf("%w: %q", ErrRootSavePath, savePath)
	}

	if der == nil {
		fetched, err := e.FetchCertificate(ctx, certURL)
		if err != nil {
			return nil, err
		}
		der = fetched
	}
	if len(der) == 0 {
		return nil, fmt.Errorf("empty certificate chain from %s", certURL)
	}

	leaf, err := x509.ParseCertificate(der[0])
	if err != nil {
		return nil, fmt.Errorf("parse issued certificate: %w", err)
	}

	var chainPEM []byte
	for _, block := range der {
		chainPEM = append(chainPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: block})...)
	}
	keyPEM := certcrypto.PEMEncode(certKey)

	if err := os.MkdirAll(savePath, 0o755); err != nil {
		return nil, fmt.Errorf("ensure save path: %w", err)
	}

	prefix := filePrefix(time.Now())
	stored := &StoredCertificate{
		CertificatePEM: chainPEM,
		NotAfter:       leaf.NotAfter,
	}

	if separateFiles {
		certPath := filepath.Join(savePath, prefix+".crt")
		keyPath := filepath.Join(savePath, prefix+".key")
		if err := os.WriteFile(certPath, chainPEM, 0o644); err != nil {
			return nil, fmt.Errorf("write certificate: %w", err)
		}
		if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
			return nil, fmt.Errorf("write private key: %w", err)
		}
		stored.CertificatePath = certPath
		stored.KeyPath = keyPath
		return stored, nil
	}

	combined := append(append([]byte(nil), chainPEM...), keyPEM...)
	certPath := filepath.Join(savePath, prefix+".pem")
	if err := os.WriteFile(certPath, combined, 0o600); err != nil {
		return nil, fmt.Errorf("write certificate bundle: %w", err)
	}
	stored.CertificatePath = certPath
	return stored, nil
}

// leafDER extracts the leaf certificate's DER bytes from a PEM chain,
// falling back to treating the input as raw DER when no PEM envelope is
// present.
func leafDER(cert []byte) ([]byte, error) {
	certs, err := certcrypto.ParsePEMBundle(cert)
	if err == nil && len(certs) > 0 {
		return certs[0].Raw, nil
	}
	if _, derErr := x509.ParseCertificate(cert); derErr == nil {
		return cert, nil
	}
	return nil, fmt.Errorf("parse certificate for revocation: %w", err)
}
