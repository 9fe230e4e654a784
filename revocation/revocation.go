// Package revocation holds the Adobe revocation-information archival
// container (attribute 1.2.840.113583.1.1.8) that is embedded in the signed
// attributes of a PDF signature.
package revocation

import (
	"crypto/x509"
	"encoding/asn1"

	"golang.org/x/crypto/ocsp"
)

// InfoArchival collects the revocation material for all embedded
// certificates. The zero value is an empty container.
type InfoArchival struct {
	CRL   CRL   `asn1:"tag:0,optional,explicit"`
	OCSP  OCSP  `asn1:"tag:1,optional,explicit"`
	Other Other `asn1:"tag:2,optional,explicit"`
}

// CRL holds raw DER certificate revocation lists; parse entries with
// x509.ParseRevocationList.
type CRL []asn1.RawValue

// OCSP holds raw DER OCSP responses; parse entries with ocsp.ParseResponse.
type OCSP []asn1.RawValue

// Other carries revocation information in a non-CRL, non-OCSP format.
type Other struct {
	Type  asn1.ObjectIdentifier
	Value []byte
}

// AddCRL archives the raw bytes of a downloaded CRL.
func (r *InfoArchival) AddCRL(b []byte) {
	r.CRL = append(r.CRL, asn1.RawValue{FullBytes: b})
}

// AddOCSP archives the raw bytes of an OCSP response.
func (r *InfoArchival) AddOCSP(b []byte) {
	r.OCSP = append(r.OCSP, asn1.RawValue{FullBytes: b})
}

// Empty reports whether the container carries no revocation material.
func (r *InfoArchival) Empty() bool {
	return len(r.CRL) == 0 && len(r.OCSP) == 0 && len(r.Other.Value) == 0
}

// IsRevoked reports whether any archived CRL or OCSP response marks the
// certificate as revoked.
func (r *InfoArchival) IsRevoked(c *x509.Certificate) bool {
	for _, raw := range r.CRL {
		crl, err := x509.ParseRevocationList(raw.FullBytes)
		if err != nil {
			continue
		}
		for _, entry := range crl.RevokedCertificateEntries {
			if entry.SerialNumber.Cmp(c.SerialNumber) == 0 {
				return true
			}
		}
	}

	for _, raw := range r.OCSP {
		resp, err := ocsp.ParseResponseForCert(raw.FullBytes, c, nil)
		if err != nil {
			continue
		}
		if resp.Status == ocsp.Revoked {
			return true
		}
	}

	return false
}
