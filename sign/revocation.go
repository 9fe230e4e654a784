package sign

import (
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/crypto/ocsp"

	"github.com/pdfseal/pdfseal/revocation"
)

// EmbedRevocationStatus fetches a revocation statement for cert and archives
// it: an OCSP response when the certificate names a responder, else its CRL.
// Assign it to SignData.RevocationFunction to embed revocation material;
// nothing is fetched or embedded by default.
func EmbedRevocationStatus(cert, issuer *x509.Certificate, i *revocation.InfoArchival) error {
	// An OCSP response is usually the smaller artifact to embed; an empty
	// CRL from a dedicated high-volume hierarchy can beat it.
	if len(cert.OCSPServer) > 0 && issuer != nil {
		return embedOCSPStatus(cert, issuer, i)
	}
	if len(cert.CRLDistributionPoints) > 0 {
		return embedCRLStatus(cert, i)
	}
	if issuer == nil {
		// Trust anchors carry no revocation pointers.
		return nil
	}
	return errors.New("certificate contains no revocation pointers")
}

func embedOCSPStatus(cert, issuer *x509.Certificate, i *revocation.InfoArchival) error {
	req, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return fmt.Errorf("create ocsp request: %w", err)
	}

	ocspURL := fmt.Sprintf("%s/%s", strings.TrimRight(cert.OCSPServer[0], "/"),
		base64.StdEncoding.EncodeToString(req))
	resp, err := http.Get(ocspURL)
	if err != nil {
		return fmt.Errorf("fetch ocsp response: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read ocsp response: %w", err)
	}

	if _, err := ocsp.ParseResponseForCert(body, cert, issuer); err != nil {
		return fmt.Errorf("invalid ocsp response: %w", err)
	}

	i.AddOCSP(body)
	return nil
}

func embedCRLStatus(cert *x509.Certificate, i *revocation.InfoArchival) error {
	resp, err := http.Get(cert.CRLDistributionPoints[0])
	if err != nil {
		return fmt.Errorf("fetch crl: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read crl: %w", err)
	}

	if _, err := x509.ParseRevocationList(body); err != nil {
		return fmt.Errorf("invalid crl: %w", err)
	}

	i.AddCRL(body)
	return nil
}

// fetchRevocationData runs the configured revocation function over the
// signer chain before any placeholder is sized.
func (context *SignContext) fetchRevocationData() error {
	if context.SignData.RevocationFunction == nil {
		return nil
	}

	chain := append([]*x509.Certificate{context.SignData.Signer.SigningCert()},
		context.SignData.Signer.CAChain()...)
	for i, cert := range chain {
		var issuer *x509.Certificate
		if i < len(chain)-1 {
			issuer = chain[i+1]
		}
		if err := context.SignData.RevocationFunction(cert, issuer, &context.SignData.RevocationData); err != nil {
			return fmt.Errorf("fetch revocation status for %s: %w", cert.Subject.CommonName, err)
		}
	}

	return nil
}
