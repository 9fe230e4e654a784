package sign

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"io"

	"github.com/miekg/pkcs11"
)

// digestInfoPrefix is the DER prefix of the PKCS#1 v1.5 DigestInfo structure
// for each supported hash, prepended before handing the digest to a raw
// CKM_RSA_PKCS operation.
var digestInfoPrefix = map[crypto.Hash][]byte{
	crypto.SHA1:   {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	crypto.SHA256: {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	crypto.SHA384: {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	crypto.SHA512: {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

// TokenSigner signs on a PKCS#11 token. The certificate and private-key
// handle are located by label on first use and cached for the lifetime of
// the signer. The session must be logged in; access to a given TokenSigner
// must be serialized by the caller.
type TokenSigner struct {
	module  *pkcs11.Ctx
	session pkcs11.SessionHandle

	certLabel string
	keyLabel  string

	// Chain is the issuing CA chain, injected by the caller. Tokens
	// rarely carry the full chain themselves.
	Chain []*x509.Certificate
	// TSA, when set, cross-signs every signature with a timestamp token.
	TSA Timestamper

	loaded    bool
	cert      *x509.Certificate
	keyHandle pkcs11.ObjectHandle
}

// NewTokenSigner prepares a signer for the certificate and private key
// carrying the given labels. keyLabel defaults to certLabel when empty.
// Nothing is read from the token until the first use.
func NewTokenSigner(module *pkcs11.Ctx, session pkcs11.SessionHandle, certLabel, keyLabel string) *TokenSigner {
	if keyLabel == "" {
		keyLabel = certLabel
	}
	return &TokenSigner{module: module, session: session, certLabel: certLabel, keyLabel: keyLabel}
}

func (t *TokenSigner) loadObjects() error {
	if t.loaded {
		return nil
	}

	certHandle, err := t.findObject(pkcs11.CKO_CERTIFICATE, t.certLabel)
	if err != nil {
		return fmt.Errorf("locate certificate %q: %w", t.certLabel, err)
	}
	attrs, err := t.module.GetAttributeValue(t.session, certHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, nil),
	})
	if err != nil {
		return fmt.Errorf("read certificate value: %w", err)
	}
	cert, err := x509.ParseCertificate(attrs[0].Value)
	if err != nil {
		return fmt.Errorf("parse token certificate: %w", err)
	}

	keyHandle, err := t.findObject(pkcs11.CKO_PRIVATE_KEY, t.keyLabel)
	if err != nil {
		return fmt.Errorf("locate private key %q: %w", t.keyLabel, err)
	}

	t.cert = cert
	t.keyHandle = keyHandle
	t.loaded = true
	return nil
}

func (t *TokenSigner) findObject(class uint, label string) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}
	if err := t.module.FindObjectsInit(t.session, template); err != nil {
		return 0, err
	}
	handles, _, err := t.module.FindObjects(t.session, 1)
	if ferr := t.module.FindObjectsFinal(t.session); err == nil {
		err = ferr
	}
	if err != nil {
		return 0, err
	}
	if len(handles) == 0 {
		return 0, fmt.Errorf("object not found")
	}
	return handles[0], nil
}

func (t *TokenSigner) Public() crypto.PublicKey {
	if err := t.loadObjects(); err != nil {
		return nil
	}
	return t.cert.PublicKey
}

func (t *TokenSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if err := t.loadObjects(); err != nil {
		return nil, err
	}

	prefix, ok := digestInfoPrefix[opts.HashFunc()]
	if !ok {
		return nil, fmt.Errorf("%w: no DigestInfo encoding for %v", ErrUnsupportedMechanism, opts.HashFunc())
	}

	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)}
	if err := t.module.SignInit(t.session, mech, t.keyHandle); err != nil {
		return nil, fmt.Errorf("token sign init: %w", err)
	}
	signature, err := t.module.Sign(t.session, append(append([]byte{}, prefix...), digest...))
	if err != nil {
		return nil, fmt.Errorf("token sign: %w", err)
	}
	return signature, nil
}

func (t *TokenSigner) SigningCert() *x509.Certificate {
	if err := t.loadObjects(); err != nil {
		return nil
	}
	return t.cert
}

func (t *TokenSigner) CAChain() []*x509.Certificate { return t.Chain }
func (t *TokenSigner) Mechanism() Mechanism         { return RSASSAPKCS1v15 }
func (t *TokenSigner) Timestamper() Timestamper     { return t.TSA }
