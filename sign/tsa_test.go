package sign

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"errors"
	"testing"
	"time"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfseal/pdfseal/internal/testpki"
)

func TestTSAClientRoundTrip(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	server := testpki.NewTSAServer(t, pki)

	client := &TSAClient{URL: server.URL}
	digest := bytes.Repeat([]byte{0x42, 0x17}, 16)

	token, err := client.Timestamp(digest, crypto.SHA256)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// The token is a CMS SignedData of its own.
	_, err = pkcs7.Parse(token)
	assert.NoError(t, err)
	assert.Equal(t, 1, server.Requests)
}

func TestTSAClientNonceMismatch(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	server := testpki.NewTSAServer(t, pki)
	server.MutateNonce = true

	client := &TSAClient{URL: server.URL}
	_, err := client.Timestamp([]byte("0123456789abcdef0123456789abcdef"), crypto.SHA256)
	assert.ErrorIs(t, err, ErrTSANonceMismatch)
}

func TestTSAClientRejection(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	server := testpki.NewTSAServer(t, pki)
	server.Reject = true

	client := &TSAClient{URL: server.URL}
	_, err := client.Timestamp([]byte("0123456789abcdef0123456789abcdef"), crypto.SHA256)
	require.ErrorIs(t, err, ErrTSARejected)
	assert.Contains(t, err.Error(), "request refused by policy")
}

func TestTSAClientGrantedWithMods(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	server := testpki.NewTSAServer(t, pki)
	server.GrantedWithMods = true

	client := &TSAClient{URL: server.URL}
	_, err := client.Timestamp([]byte("0123456789abcdef0123456789abcdef"), crypto.SHA256)
	assert.ErrorIs(t, err, ErrTSARejected)
}

func TestTSAClientWrongContentType(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	server := testpki.NewTSAServer(t, pki)
	server.WrongContentType = true

	client := &TSAClient{URL: server.URL}
	_, err := client.Timestamp([]byte("0123456789abcdef0123456789abcdef"), crypto.SHA256)
	assert.ErrorIs(t, err, ErrTSAMalformedResponse)
}

func TestTSAClientRequireHTTPS(t *testing.T) {
	client := &TSAClient{URL: "http://tsa.example.com", RequireHTTPS: true}
	_, err := client.Timestamp([]byte("0123456789abcdef0123456789abcdef"), crypto.SHA256)
	assert.Error(t, err)
}

func TestSignWithTimestamper(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	server := testpki.NewTSAServer(t, pki)

	key, cert := pki.IssueLeaf("Timestamped Signer")
	signer := &SoftwareSigner{
		Key:   key,
		Cert:  cert,
		Chain: []*x509.Certificate{pki.RootCert},
		TSA:   &TSAClient{URL: server.URL, Timeout: 10 * time.Second},
	}

	signed := signTestPDF(t, testpki.MinimalPDF(), SignData{
		Metadata: SignatureMetadata{FieldName: "Sig1", MDAlgorithm: crypto.SHA256},
		Signer:   signer,
	})

	statuses := verifyAll(t, signed)
	require.Len(t, statuses, 1)
	assert.Equal(t, "INTACT_UNTOUCHED", statuses[0].Summary())
	// One token for the sizing pass, one for the real signature.
	assert.Equal(t, 2, server.Requests)
}

// S5: a TSA echoing a wrong nonce aborts the signing call before any output.
func TestSignTimestamperNonceMismatch(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	server := testpki.NewTSAServer(t, pki)
	server.MutateNonce = true

	key, cert := pki.IssueLeaf("Timestamped Signer")
	signer := &SoftwareSigner{
		Key:  key,
		Cert: cert,
		TSA:  &TSAClient{URL: server.URL},
	}

	input := testpki.MinimalPDF()
	rdr, err := pdf.NewReader(bytes.NewReader(input), int64(len(input)))
	require.NoError(t, err)

	var out bytes.Buffer
	err = Sign(bytes.NewReader(input), &out, rdr, SignData{
		Metadata: SignatureMetadata{FieldName: "Sig1"},
		Signer:   signer,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTSANonceMismatch), "got %v", err)
	assert.Zero(t, out.Len(), "no bytes may be written on failure")
}
