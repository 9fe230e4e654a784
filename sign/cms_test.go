package sign

import (
	"crypto"
	"crypto/x509"
	"errors"
	"io"
	"testing"

	"github.com/digitorus/pkcs7"

	"github.com/pdfseal/pdfseal/internal/testpki"
)

func TestCreateSignatureDryRunSizesLikeRealPass(t *testing.T) {
	context := &SignContext{SignData: SignData{
		Metadata: SignatureMetadata{MDAlgorithm: crypto.SHA256},
		Signer:   testSigner(t),
	}}

	dry, err := context.createSignature(nil, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	actual, err := context.createSignature([]byte("some document content"), false)
	if err != nil {
		t.Fatalf("real pass: %v", err)
	}

	if len(dry) != len(actual) {
		t.Fatalf("dry-run size %d differs from real size %d", len(dry), len(actual))
	}
}

func TestCreateSignatureStructure(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	key, cert := pki.IssueLeaf("CMS Signer")

	context := &SignContext{SignData: SignData{
		Metadata: SignatureMetadata{MDAlgorithm: crypto.SHA256},
		Signer: &SoftwareSigner{
			Key:   key,
			Cert:  cert,
			Chain: []*x509.Certificate{pki.RootCert},
		},
	}}

	content := []byte("document bytes under signature")
	der, err := context.createSignature(content, false)
	if err != nil {
		t.Fatalf("create signature: %v", err)
	}

	p7, err := pkcs7.Parse(der)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if len(p7.Signers) != 1 {
		t.Fatalf("expected one signer info, got %d", len(p7.Signers))
	}
	if len(p7.Certificates) != 2 {
		t.Fatalf("expected leaf and root in the bag, got %d certificates", len(p7.Certificates))
	}
	if len(p7.Content) != 0 {
		t.Fatal("detached signature must not embed the content")
	}

	// The detached content must verify when supplied externally.
	p7.Content = content
	if err := p7.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

type brokenMechanismSigner struct{ *SoftwareSigner }

func (b brokenMechanismSigner) Mechanism() Mechanism { return Mechanism(99) }

func TestCreateSignatureUnsupportedMechanism(t *testing.T) {
	context := &SignContext{SignData: SignData{
		Metadata: SignatureMetadata{MDAlgorithm: crypto.SHA256},
		Signer:   brokenMechanismSigner{testSigner(t)},
	}}

	_, err := context.createSignature(nil, true)
	if !errors.Is(err, ErrUnsupportedMechanism) {
		t.Fatalf("got %v, want ErrUnsupportedMechanism", err)
	}
}

func TestDryRunSignerIsDeterministic(t *testing.T) {
	signer := DryRunSigner{testSigner(t)}

	first, err := signer.Sign(io.Reader(nil), []byte("digest"), crypto.SHA256)
	if err != nil {
		t.Fatal(err)
	}
	second, err := signer.Sign(io.Reader(nil), []byte("other digest"), crypto.SHA256)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != 256 {
		t.Fatalf("RSA-2048 placeholder should be 256 bytes, got %d", len(first))
	}
	if string(first) != string(second) {
		t.Fatal("placeholder signature must not depend on the digest")
	}
}
