// Package testpki provides throwaway cryptographic material and protocol
// stubs for tests: a one-root CA with leaf issuance, an in-process RFC 3161
// timestamp authority, and generators for minimal PDF documents.
package testpki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

// TestPKI is a self-signed root with leaf issuance for signing tests.
type TestPKI struct {
	T        *testing.T
	RootKey  crypto.Signer
	RootCert *x509.Certificate

	serial int64
}

// NewTestPKI creates a fresh RSA-2048 root CA.
func NewTestPKI(t *testing.T) *TestPKI {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate root key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA", Organization: []string{"testpki"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		t.Fatalf("create root certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse root certificate: %v", err)
	}

	return &TestPKI{T: t, RootKey: key, RootCert: cert, serial: 1}
}

// IssueLeaf issues a signing leaf under the root.
func (p *TestPKI) IssueLeaf(commonName string) (crypto.Signer, *x509.Certificate) {
	p.T.Helper()
	return p.issueLeaf(commonName, "", "")
}

// IssueLeafWithRevocation issues a leaf carrying the given OCSP responder
// and CRL distribution URLs. Either may be empty.
func (p *TestPKI) IssueLeafWithRevocation(commonName, ocspURL, crlURL string) (crypto.Signer, *x509.Certificate) {
	p.T.Helper()
	return p.issueLeaf(commonName, ocspURL, crlURL)
}

func (p *TestPKI) issueLeaf(commonName, ocspURL, crlURL string) (crypto.Signer, *x509.Certificate) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		p.T.Fatalf("generate leaf key: %v", err)
	}

	p.serial++
	template := &x509.Certificate{
		SerialNumber: big.NewInt(p.serial),
		Subject:      pkix.Name{CommonName: commonName, Organization: []string{"testpki"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if ocspURL != "" {
		template.OCSPServer = []string{ocspURL}
	}
	if crlURL != "" {
		template.CRLDistributionPoints = []string{crlURL}
	}
	der, err := x509.CreateCertificate(rand.Reader, template, p.RootCert, key.Public(), p.RootKey)
	if err != nil {
		p.T.Fatalf("create leaf certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		p.T.Fatalf("parse leaf certificate: %v", err)
	}

	return key, cert
}

// SelfSigned issues a standalone self-signed signing certificate.
func SelfSigned(t *testing.T, commonName string) (crypto.Signer, *x509.Certificate) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	return key, cert
}
