package testpki

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/digitorus/timestamp"
)

// TSAServer is an in-process RFC 3161 responder backed by the test PKI.
// The knobs make it misbehave in controlled ways.
type TSAServer struct {
	*httptest.Server

	Key  crypto.Signer
	Cert *x509.Certificate

	// MutateNonce echoes a wrong nonce in the token.
	MutateNonce bool
	// Reject answers with a rejection status instead of a token.
	Reject bool
	// GrantedWithMods rewrites the reply status to grantedWithMods.
	GrantedWithMods bool
	// WrongContentType mislabels the reply body.
	WrongContentType bool

	Requests int

	serial int64
}

// NewTSAServer starts the responder with a dedicated signing certificate.
func NewTSAServer(t *testing.T, pki *TestPKI) *TSAServer {
	t.Helper()

	key, cert := pki.IssueLeaf("Test TSA")
	server := &TSAServer{Key: key, Cert: cert}
	server.Server = httptest.NewServer(http.HandlerFunc(server.handle))
	t.Cleanup(server.Close)
	return server
}

func (s *TSAServer) handle(w http.ResponseWriter, r *http.Request) {
	s.Requests++

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	contentType := "application/timestamp-reply"
	if s.WrongContentType {
		contentType = "text/plain"
	}

	if s.Reject {
		resp, err := rejectionResponse()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(resp)
		return
	}

	req, err := timestamp.ParseRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	nonce := req.Nonce
	if s.MutateNonce && nonce != nil {
		nonce = new(big.Int).Add(nonce, big.NewInt(1))
	}

	s.serial++
	token := &timestamp.Timestamp{
		HashAlgorithm:     req.HashAlgorithm,
		HashedMessage:     req.HashedMessage,
		Time:              time.Now(),
		SerialNumber:      big.NewInt(s.serial),
		Nonce:             nonce,
		AddTSACertificate: req.Certificates,
	}
	resp, err := token.CreateResponse(s.Cert, s.Key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if s.GrantedWithMods {
		// A granted PKIStatusInfo encodes as SEQUENCE { INTEGER 0 };
		// bump the status to grantedWithMods (1) in place.
		granted := []byte{0x30, 0x03, 0x02, 0x01, 0x00}
		if idx := bytes.Index(resp, granted); idx >= 0 {
			resp[idx+4] = 0x01
		}
	}

	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(resp)
}

// rejectionResponse encodes a bare TimeStampResp with PKIStatus rejection
// and failInfo badRequest.
func rejectionResponse() ([]byte, error) {
	type pkiStatusInfo struct {
		Status       int
		StatusString []string       `asn1:"optional,utf8"`
		FailInfo     asn1.BitString `asn1:"optional"`
	}
	type timeStampResp struct {
		Status pkiStatusInfo
	}

	return asn1.Marshal(timeStampResp{Status: pkiStatusInfo{
		Status:       2, // rejection
		StatusString: []string{"request refused by policy"},
		FailInfo:     asn1.BitString{Bytes: []byte{0x20}, BitLength: 8}, // bit 2: badRequest
	}})
}
