// Package verify checks PDF signatures produced as incremental updates:
// digest intactness over the declared byte ranges, signature validity over
// the re-encoded signed attributes, and whether the byte ranges still cover
// the complete document.
package verify

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"

	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
)

var (
	// ErrNoSignature means the document carries no signature to verify.
	ErrNoSignature = errors.New("no signature in document")

	// ErrMalformedSignature means the signature dictionary or its CMS
	// payload is structurally broken.
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrUnsupportedMechanism means the signature uses a mechanism this
	// package cannot check.
	ErrUnsupportedMechanism = errors.New("unsupported signature mechanism")
)

var (
	oidMessageDigest          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	oidEncryptionRSA          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	oidSignatureSHA1WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 5}
	oidSignatureSHA256WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSignatureSHA384WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSignatureSHA512WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidDigestSHA1             = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidDigestSHA256           = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidDigestSHA384           = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	oidDigestSHA512           = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
)

// Status is the outcome of verifying one signature.
type Status struct {
	// Intact means the digest over the declared byte ranges matches the
	// message-digest signed attribute.
	Intact bool
	// Valid means the signature over the signed attributes checks out
	// against the signing certificate.
	Valid bool
	// CompleteDocument means the byte ranges cover the whole file except
	// the hex signature literal.
	CompleteDocument bool

	SigningCert *x509.Certificate
	CAChain     []*x509.Certificate

	// Mechanism is the signature mechanism name, e.g. "rsassa_pkcs1v15"
	// or "sha256_rsa".
	Mechanism   string
	MDAlgorithm crypto.Hash
}

// Summary condenses the status. A failed signature check is FORGED no
// matter what the digest says; an intact digest over a since-extended file
// is INTACT_EXTENDED.
func (s *Status) Summary() string {
	switch {
	case !s.Valid:
		return "FORGED"
	case s.Intact && s.CompleteDocument:
		return "INTACT_UNTOUCHED"
	case s.Intact:
		return "INTACT_EXTENDED"
	default:
		return "INVALID"
	}
}

// File verifies every signature in the document.
func File(file *os.File) ([]*Status, error) {
	finfo, err := file.Stat()
	if err != nil {
		return nil, err
	}
	return Reader(file, finfo.Size())
}

// Reader verifies every signature in the document behind r.
func Reader(r io.ReaderAt, size int64) ([]*Status, error) {
	rdr, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}

	var statuses []*Status
	fields := rdr.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	for i := 0; i < fields.Len(); i++ {
		field := fields.Index(i)
		if field.Key("FT").Name() != "Sig" {
			continue
		}
		sig := field.Key("V")
		if sig.IsNull() {
			continue
		}
		status, err := Signature(r, size, sig)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Key("T").Text(), err)
		}
		statuses = append(statuses, status)
	}

	if len(statuses) == 0 {
		return nil, ErrNoSignature
	}
	return statuses, nil
}

// Signature verifies one signature dictionary against the document stream.
// Cryptographic mismatches are reported in the status, not as errors;
// structural corruption is an error.
func Signature(r io.ReaderAt, size int64, sig pdf.Value) (*Status, error) {
	contents := sig.Key("Contents")
	byteRange := sig.Key("ByteRange")
	if contents.IsNull() || byteRange.IsNull() {
		return nil, fmt.Errorf("%w: missing /Contents or /ByteRange", ErrMalformedSignature)
	}
	contentsBytes := []byte(contents.RawString())

	p7, err := pkcs7.Parse(contentsBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(p7.Signers) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one signer, got %d", ErrMalformedSignature, len(p7.Signers))
	}
	signerInfo := p7.Signers[0]

	mdAlgorithm, err := hashForDigestOID(signerInfo.DigestAlgorithm.Algorithm)
	if err != nil {
		return nil, err
	}

	// Digest the two declared regions straight off the stream.
	md := mdAlgorithm.New()
	var covered int64
	for i := 0; i+1 < byteRange.Len(); i += 2 {
		offset := byteRange.Index(i).Int64()
		length := byteRange.Index(i + 1).Int64()
		if _, err := io.Copy(md, io.NewSectionReader(r, offset, length)); err != nil {
			return nil, fmt.Errorf("read byte range [%d %d]: %w", offset, length, err)
		}
		covered += length
	}
	rawDigest := md.Sum(nil)

	var embeddedDigest []byte
	if err := p7.UnmarshalSignedAttribute(oidMessageDigest, &embeddedDigest); err != nil {
		return nil, fmt.Errorf("%w: unable to locate message digest: %v", ErrMalformedSignature, err)
	}

	status := &Status{
		Intact:      bytes.Equal(rawDigest, embeddedDigest),
		MDAlgorithm: mdAlgorithm,
	}

	// The hex literal occupies twice the decoded length plus the angle
	// brackets; everything else must be covered for a complete document.
	status.CompleteDocument = size == covered+int64(2*len(contentsBytes)+2)

	status.SigningCert, status.CAChain = splitCertificates(p7.Certificates,
		signerInfo.IssuerAndSerialNumber.IssuerName.FullBytes,
		signerInfo.IssuerAndSerialNumber.SerialNumber)
	if status.SigningCert == nil {
		return nil, fmt.Errorf("%w: signer certificate not included", ErrMalformedSignature)
	}

	// The signed bytes are the attributes as a universal SET, not the
	// IMPLICIT [0] form embedded in the message.
	signedAttrs, err := signedAttributesSET(contentsBytes)
	if err != nil {
		return nil, err
	}

	status.Mechanism, status.Valid, err = checkSignature(
		status.SigningCert, signerInfo.DigestEncryptionAlgorithm.Algorithm,
		mdAlgorithm, signedAttrs, signerInfo.EncryptedDigest)
	if err != nil {
		return nil, err
	}

	return status, nil
}

func hashForDigestOID(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	switch {
	case oid.Equal(oidDigestSHA1):
		return crypto.SHA1, nil
	case oid.Equal(oidDigestSHA256):
		return crypto.SHA256, nil
	case oid.Equal(oidDigestSHA384):
		return crypto.SHA384, nil
	case oid.Equal(oidDigestSHA512):
		return crypto.SHA512, nil
	}
	return 0, fmt.Errorf("%w: digest algorithm %v", ErrUnsupportedMechanism, oid)
}

// checkSignature verifies signature over the re-encoded attributes. A
// verification failure is a result, not an error; an unknown mechanism is.
func checkSignature(cert *x509.Certificate, mechanism asn1.ObjectIdentifier, md crypto.Hash, signed, signature []byte) (string, bool, error) {
	switch {
	case mechanism.Equal(oidEncryptionRSA):
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return "", false, fmt.Errorf("%w: rsa mechanism with %T key", ErrUnsupportedMechanism, cert.PublicKey)
		}
		digest := md.New()
		digest.Write(signed)
		err := rsa.VerifyPKCS1v15(pub, md, digest.Sum(nil), signature)
		return "rsassa_pkcs1v15", err == nil, nil
	case mechanism.Equal(oidSignatureSHA1WithRSA):
		err := cert.CheckSignature(x509.SHA1WithRSA, signed, signature)
		return "sha1_rsa", err == nil, nil
	case mechanism.Equal(oidSignatureSHA256WithRSA):
		err := cert.CheckSignature(x509.SHA256WithRSA, signed, signature)
		return "sha256_rsa", err == nil, nil
	case mechanism.Equal(oidSignatureSHA384WithRSA):
		err := cert.CheckSignature(x509.SHA384WithRSA, signed, signature)
		return "sha384_rsa", err == nil, nil
	case mechanism.Equal(oidSignatureSHA512WithRSA):
		err := cert.CheckSignature(x509.SHA512WithRSA, signed, signature)
		return "sha512_rsa", err == nil, nil
	}
	return "", false, fmt.Errorf("%w: %v", ErrUnsupportedMechanism, mechanism)
}

// splitCertificates locates the signing certificate by issuer and serial
// and returns the remaining embedded certificates as the CA chain.
func splitCertificates(certs []*x509.Certificate, issuerRaw []byte, serial *big.Int) (signing *x509.Certificate, chain []*x509.Certificate) {
	for _, cert := range certs {
		if signing == nil && serial != nil && cert.SerialNumber.Cmp(serial) == 0 && bytes.Equal(cert.RawIssuer, issuerRaw) {
			signing = cert
			continue
		}
		chain = append(chain, cert)
	}
	if signing == nil && len(certs) > 0 {
		// No sid match; fall back to the conventional leading position.
		return certs[0], certs[1:]
	}
	return signing, chain
}
