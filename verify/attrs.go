package verify

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
)

var oidSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}

// Minimal CMS envelope used to reach the raw signed-attribute bytes, which
// higher-level parsers only expose re-marshalled.
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type signedDataEnvelope struct {
	Version          int
	DigestAlgorithms asn1.RawValue `asn1:"set"`
	ContentInfo      asn1.RawValue
	Certificates     asn1.RawValue        `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue        `asn1:"optional,tag:1"`
	SignerInfos      []signerInfoEnvelope `asn1:"set"`
}

type signerInfoEnvelope struct {
	Version                   int
	IssuerAndSerialNumber     asn1.RawValue
	DigestAlgorithm           pkix.AlgorithmIdentifier
	AuthenticatedAttributes   asn1.RawValue `asn1:"optional,tag:0"`
	DigestEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedDigest           []byte
	UnauthenticatedAttributes asn1.RawValue `asn1:"optional,tag:1"`
}

// signedAttributesSET extracts the signed attributes of the only signer and
// re-encodes them with a universal SET header (class 0, tag 17). The CMS
// message stores them behind an IMPLICIT [0] tag, but the bytes covered by
// the signature are the universal SET form.
func signedAttributesSET(message []byte) ([]byte, error) {
	var info contentInfo
	if _, err := asn1.Unmarshal(message, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if !info.ContentType.Equal(oidSignedData) {
		return nil, fmt.Errorf("%w: content type %v is not signed-data", ErrMalformedSignature, info.ContentType)
	}

	var envelope signedDataEnvelope
	if _, err := asn1.Unmarshal(info.Content.FullBytes, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(envelope.SignerInfos) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one signer info, got %d", ErrMalformedSignature, len(envelope.SignerInfos))
	}

	raw := envelope.SignerInfos[0].AuthenticatedAttributes
	if len(raw.FullBytes) == 0 {
		return nil, fmt.Errorf("%w: no signed attributes", ErrMalformedSignature)
	}

	set := make([]byte, len(raw.FullBytes))
	copy(set, raw.FullBytes)
	set[0] = 0x31 // universal, constructed, SET
	return set, nil
}
