package sign

import (
	"crypto"
	"encoding/asn1"
	"fmt"

	"github.com/digitorus/pkcs7"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"

	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
)

var (
	oidAttributeAdbeRevocation = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}
	oidAttributeTimeStampToken = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
	oidAttributeSigningCertV2  = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}
	oidAttributeSigningCert    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 12}
	oidDigestAlgorithmSHA1     = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidDigestAlgorithmSHA256   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidDigestAlgorithmSHA384   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	oidDigestAlgorithmSHA512   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
)

func getOIDFromHashAlgorithm(h crypto.Hash) asn1.ObjectIdentifier {
	switch h {
	case crypto.SHA1:
		return oidDigestAlgorithmSHA1
	case crypto.SHA384:
		return oidDigestAlgorithmSHA384
	case crypto.SHA512:
		return oidDigestAlgorithmSHA512
	default:
		return oidDigestAlgorithmSHA256
	}
}

// createSignature assembles the detached CMS SignedData over content, the
// concatenation of the two byte-range regions. In a dry run the signer is
// replaced by its zero-signature variant so the result only serves to size
// the reservation; the structure is identical either way, and a configured
// timestamper is exercised in both passes so the reservation covers a real
// token.
func (context *SignContext) createSignature(content []byte, dryRun bool) ([]byte, error) {
	signer := context.SignData.Signer
	if !signer.Mechanism().Supported() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMechanism, signer.Mechanism())
	}

	signedData, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("new signed data: %w", err)
	}
	signedData.SetDigestAlgorithm(getOIDFromHashAlgorithm(context.SignData.Metadata.MDAlgorithm))

	signingCertificate, err := context.createSigningCertificateAttribute()
	if err != nil {
		return nil, fmt.Errorf("signing certificate attribute: %w", err)
	}

	extraAttrs := []pkcs7.Attribute{*signingCertificate}
	if !context.SignData.RevocationData.Empty() {
		extraAttrs = append(extraAttrs, pkcs7.Attribute{
			Type:  oidAttributeAdbeRevocation,
			Value: context.SignData.RevocationData,
		})
	}
	signerConfig := pkcs7.SignerInfoConfig{ExtraSignedAttributes: extraAttrs}

	var cryptoSigner crypto.Signer = signer
	if dryRun {
		cryptoSigner = DryRunSigner{signer}
	}

	// The library serializes the signed attributes as a universal SET for
	// hashing and embeds them with the IMPLICIT [0] tag, which is exactly
	// what a verifier reconstructs.
	if err := signedData.AddSignerChain(signer.SigningCert(), cryptoSigner, signer.CAChain(), signerConfig); err != nil {
		return nil, fmt.Errorf("add signer chain: %w", err)
	}

	// A PDF signature is detached, the document content stays outside.
	signedData.Detach()

	if tsa := signer.Timestamper(); tsa != nil {
		if err := context.addTimestampToken(signedData, tsa); err != nil {
			return nil, err
		}
	}

	return signedData.Finish()
}

// addTimestampToken cross-signs the raw signature with the timestamp
// authority and attaches the token as the unsigned
// signature-time-stamp-token attribute.
func (context *SignContext) addTimestampToken(signedData *pkcs7.SignedData, tsa Timestamper) error {
	inner := signedData.GetSignedData()

	token, err := tsa.Timestamp(inner.SignerInfos[0].EncryptedDigest, context.SignData.Metadata.MDAlgorithm)
	if err != nil {
		return fmt.Errorf("get timestamp: %w", err)
	}
	if _, err := pkcs7.Parse(token); err != nil {
		return fmt.Errorf("parse timestamp token: %w", err)
	}

	timestampAttribute := pkcs7.Attribute{
		Type:  oidAttributeTimeStampToken,
		Value: asn1.RawValue{FullBytes: token},
	}
	return inner.SignerInfos[0].SetUnauthenticatedAttributes([]pkcs7.Attribute{timestampAttribute})
}

// createSigningCertificateAttribute builds the ESS signing-certificate
// attribute binding the signer certificate: v2 (RFC 5035) in general, v1 for
// SHA-1.
func (context *SignContext) createSigningCertificateAttribute() (*pkcs7.Attribute, error) {
	md := context.SignData.Metadata.MDAlgorithm
	hash := md.New()
	hash.Write(context.SignData.Signer.SigningCert().Raw)

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SigningCertificate
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // []ESSCertID, []ESSCertIDv2
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // ESSCertID, ESSCertIDv2
				if md != crypto.SHA1 && md != crypto.SHA256 { // default SHA-256
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // AlgorithmIdentifier
						b.AddASN1ObjectIdentifier(getOIDFromHashAlgorithm(md))
					})
				}
				b.AddASN1OctetString(hash.Sum(nil)) // certHash
			})
		})
	})

	sse, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	attribute := pkcs7.Attribute{
		Type:  oidAttributeSigningCertV2,
		Value: asn1.RawValue{FullBytes: sse},
	}
	if md == crypto.SHA1 {
		attribute.Type = oidAttributeSigningCert
	}
	return &attribute, nil
}
