package sign

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pdfseal/pdfseal/internal/testpki"
)

func TestLoadSoftwareSigner(t *testing.T) {
	key, cert := testpki.SelfSigned(t, "Disk Signer")

	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key.pem")
	certFile := filepath.Join(dir, "cert.pem")

	keyDER := x509.MarshalPKCS1PrivateKey(key.(*rsa.PrivateKey))
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: keyDER})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})

	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(certFile, certPEM, 0o644); err != nil {
		t.Fatal(err)
	}

	signer, err := LoadSoftwareSigner(keyFile, certFile)
	if err != nil {
		t.Fatalf("load signer: %v", err)
	}
	if signer.SigningCert().Subject.CommonName != "Disk Signer" {
		t.Fatalf("unexpected certificate %q", signer.SigningCert().Subject.CommonName)
	}
	if signer.Mechanism() != RSASSAPKCS1v15 {
		t.Fatalf("default mechanism %v", signer.Mechanism())
	}
	if len(signer.CAChain()) != 0 {
		t.Fatalf("unexpected chain of %d", len(signer.CAChain()))
	}
	if signer.Timestamper() != nil {
		t.Fatal("no timestamper configured")
	}
}

func TestSubjectDisplayName(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber:   big.NewInt(11),
		Subject:        pkix.Name{CommonName: "Jane Signer"},
		EmailAddresses: []string{"jane@example.com"},
		NotBefore:      time.Now().Add(-time.Hour),
		NotAfter:       time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}

	if got := subjectDisplayName(cert); got != "Jane Signer <jane@example.com>" {
		t.Fatalf("display name %q", got)
	}

	_, plain := testpki.SelfSigned(t, "No Mail")
	if got := subjectDisplayName(plain); got != "No Mail" {
		t.Fatalf("display name %q", got)
	}
}

func TestMechanismSupported(t *testing.T) {
	for _, m := range []Mechanism{RSASSAPKCS1v15, SHA1RSA, SHA256RSA, SHA384RSA, SHA512RSA} {
		if !m.Supported() {
			t.Errorf("mechanism %d should be supported", m)
		}
	}
	if Mechanism(0).Supported() || Mechanism(42).Supported() {
		t.Error("unknown mechanisms must not be supported")
	}
}
