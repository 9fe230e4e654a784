package verify_test

import (
	"bytes"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/digitorus/pdf"

	"github.com/pdfseal/pdfseal/internal/testpki"
	"github.com/pdfseal/pdfseal/sign"
	"github.com/pdfseal/pdfseal/verify"
)

var byteRangePattern = regexp.MustCompile(`\[ \d{8} \d{8} \d{8} \d{8} \]`)

func signTestPDF(t *testing.T, input []byte, md crypto.Hash) []byte {
	t.Helper()

	key, cert := testpki.SelfSigned(t, "Verify Test Signer")
	rdr, err := pdf.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		t.Fatalf("read input: %v", err)
	}

	var out bytes.Buffer
	err = sign.Sign(bytes.NewReader(input), &out, rdr, sign.SignData{
		Metadata: sign.SignatureMetadata{FieldName: "Sig1", MDAlgorithm: md},
		Signer:   &sign.SoftwareSigner{Key: key, Cert: cert},
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return out.Bytes()
}

func verifyOne(t *testing.T, document []byte) *verify.Status {
	t.Helper()
	statuses, err := verify.Reader(bytes.NewReader(document), int64(len(document)))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected one signature, got %d", len(statuses))
	}
	return statuses[0]
}

// byteRangeOf extracts the patched byte-range values from the serialized
// document.
func byteRangeOf(t *testing.T, document []byte) (l1, o2, l2 int64) {
	t.Helper()
	match := byteRangePattern.Find(document)
	if match == nil {
		t.Fatal("no byte range found")
	}
	var o1 int64
	if _, err := fmt.Sscanf(string(match), "[ %d %d %d %d ]", &o1, &l1, &o2, &l2); err != nil {
		t.Fatal(err)
	}
	return l1, o2, l2
}

func TestVerifyRoundTrip(t *testing.T) {
	for _, md := range []crypto.Hash{crypto.SHA1, crypto.SHA256, crypto.SHA384, crypto.SHA512} {
		t.Run(md.String(), func(t *testing.T) {
			signed := signTestPDF(t, testpki.MinimalPDF(), md)
			status := verifyOne(t, signed)

			if !status.Intact || !status.Valid || !status.CompleteDocument {
				t.Fatalf("status %+v", status)
			}
			if status.Summary() != "INTACT_UNTOUCHED" {
				t.Fatalf("summary %s", status.Summary())
			}
			if status.MDAlgorithm != md {
				t.Fatalf("digest %v, want %v", status.MDAlgorithm, md)
			}
		})
	}
}

// Flipping a covered byte must clear Intact but leave the signature itself
// checking out over its attributes.
func TestVerifyTamperedContent(t *testing.T) {
	signed := signTestPDF(t, testpki.MinimalPDF(), crypto.SHA256)

	idx := bytes.Index(signed, []byte("MediaBox [0 0 612"))
	if idx < 0 {
		t.Fatal("marker not found")
	}
	tampered := append([]byte{}, signed...)
	tampered[idx+len("MediaBox [0 0 ")] = '7'

	status := verifyOne(t, tampered)
	if status.Intact {
		t.Fatal("flipped content byte must break intactness")
	}
	if !status.Valid {
		t.Fatal("the signature over the attributes is still genuine")
	}
	if got := status.Summary(); got != "INVALID" {
		t.Fatalf("summary %s, want INVALID", got)
	}
}

// Flipping a hex character inside the embedded signature value must fail the
// cryptographic check.
func TestVerifyTamperedSignature(t *testing.T) {
	signed := signTestPDF(t, testpki.MinimalPDF(), crypto.SHA256)
	l1, _, _ := byteRangeOf(t, signed)

	// Decode the DER header right after the '<' to find where the
	// structure ends; the trailing signature octets live just before it.
	headerBytes, err := hex.DecodeString(string(signed[l1+1 : l1+11]))
	if err != nil {
		t.Fatal(err)
	}
	if headerBytes[0] != 0x30 || headerBytes[1] != 0x82 {
		t.Fatalf("unexpected DER header % x", headerBytes)
	}
	derLen := (int64(headerBytes[2])<<8 | int64(headerBytes[3])) + 4

	pos := l1 + 1 + (derLen-16)*2
	tampered := append([]byte{}, signed...)
	if tampered[pos] == 'f' {
		tampered[pos] = 'e'
	} else {
		tampered[pos] = 'f'
	}

	status := verifyOne(t, tampered)
	if status.Valid {
		t.Fatal("flipped signature byte must fail verification")
	}
	if got := status.Summary(); got != "FORGED" {
		t.Fatalf("summary %s, want FORGED", got)
	}
}

func TestVerifyNoSignature(t *testing.T) {
	document := testpki.MinimalPDF()
	_, err := verify.Reader(bytes.NewReader(document), int64(len(document)))
	if !errors.Is(err, verify.ErrNoSignature) {
		t.Fatalf("got %v, want ErrNoSignature", err)
	}
}

func TestSummaryMapping(t *testing.T) {
	cases := []struct {
		status verify.Status
		want   string
	}{
		{verify.Status{Valid: true, Intact: true, CompleteDocument: true}, "INTACT_UNTOUCHED"},
		{verify.Status{Valid: true, Intact: true}, "INTACT_EXTENDED"},
		{verify.Status{Valid: true}, "INVALID"},
		{verify.Status{Intact: true, CompleteDocument: true}, "FORGED"},
		{verify.Status{}, "FORGED"},
	}
	for _, c := range cases {
		if got := c.status.Summary(); got != c.want {
			t.Errorf("Summary(%+v) = %s, want %s", c.status, got, c.want)
		}
	}
}
