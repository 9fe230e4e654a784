package sign

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"testing"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"
	"golang.org/x/crypto/ocsp"

	"github.com/pdfseal/pdfseal/internal/testpki"
	"github.com/pdfseal/pdfseal/revocation"
)

// Signing with EmbedRevocationStatus must fetch the leaf's OCSP status and
// land it in the Adobe revocation-archival signed attribute of the CMS.
func TestSignEmbedsOCSPRevocationStatus(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	responder := testpki.NewRevocationServer(t, pki)

	key, cert := pki.IssueLeafWithRevocation("Revocation Signer", responder.OCSPURL(), "")
	signer := &SoftwareSigner{
		Key:   key,
		Cert:  cert,
		Chain: []*x509.Certificate{pki.RootCert},
	}

	signed := signTestPDF(t, testpki.MinimalPDF(), SignData{
		Metadata:           SignatureMetadata{FieldName: "Sig1", MDAlgorithm: crypto.SHA256},
		Signer:             signer,
		RevocationFunction: EmbedRevocationStatus,
	})

	// Revocation material is fetched once, before the sizing pass.
	if responder.OCSPRequests != 1 {
		t.Fatalf("responder saw %d OCSP requests, want 1", responder.OCSPRequests)
	}

	rdr, err := pdf.NewReader(bytes.NewReader(signed), int64(len(signed)))
	if err != nil {
		t.Fatalf("reparse signed document: %v", err)
	}
	contents := rdr.Trailer().Key("Root").Key("AcroForm").Key("Fields").Index(0).Key("V").Key("Contents")

	p7, err := pkcs7.Parse([]byte(contents.RawString()))
	if err != nil {
		t.Fatalf("parse embedded signature: %v", err)
	}

	var info revocation.InfoArchival
	if err := p7.UnmarshalSignedAttribute(oidAttributeAdbeRevocation, &info); err != nil {
		t.Fatalf("revocation attribute missing from signed attributes: %v", err)
	}
	if len(info.OCSP) != 1 {
		t.Fatalf("archived %d OCSP responses, want 1", len(info.OCSP))
	}

	resp, err := ocsp.ParseResponseForCert(info.OCSP[0].FullBytes, cert, pki.RootCert)
	if err != nil {
		t.Fatalf("archived OCSP response does not parse for the leaf: %v", err)
	}
	if resp.Status != ocsp.Good {
		t.Fatalf("archived status %d, want good", resp.Status)
	}

	if got := verifyAll(t, signed)[0].Summary(); got != "INTACT_UNTOUCHED" {
		t.Fatalf("summary %s, want INTACT_UNTOUCHED", got)
	}
}

// A certificate without a responder falls back to its CRL distribution
// point.
func TestEmbedRevocationStatusCRL(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	responder := testpki.NewRevocationServer(t, pki)

	_, cert := pki.IssueLeafWithRevocation("CRL Signer", "", responder.CRLURL())

	var info revocation.InfoArchival
	if err := EmbedRevocationStatus(cert, pki.RootCert, &info); err != nil {
		t.Fatalf("embed crl status: %v", err)
	}
	if responder.CRLRequests != 1 {
		t.Fatalf("responder saw %d CRL requests, want 1", responder.CRLRequests)
	}
	if len(info.CRL) != 1 {
		t.Fatalf("archived %d CRLs, want 1", len(info.CRL))
	}
	if info.IsRevoked(cert) {
		t.Fatal("empty CRL must not mark the certificate revoked")
	}
}

func TestEmbedRevocationStatusTrustAnchor(t *testing.T) {
	pki := testpki.NewTestPKI(t)

	var info revocation.InfoArchival
	if err := EmbedRevocationStatus(pki.RootCert, nil, &info); err != nil {
		t.Fatalf("a pointer-less trust anchor must be tolerated: %v", err)
	}
	if !info.Empty() {
		t.Fatal("nothing should be archived for a trust anchor")
	}
}

func TestEmbedRevocationStatusNoPointers(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	_, cert := pki.IssueLeaf("Bare Leaf")

	var info revocation.InfoArchival
	if err := EmbedRevocationStatus(cert, pki.RootCert, &info); err == nil {
		t.Fatal("a pointer-less leaf must be reported")
	}
}
