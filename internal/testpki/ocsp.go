package testpki

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
)

// RevocationServer answers OCSP requests and serves a CRL for the test PKI,
// both signed by the root.
type RevocationServer struct {
	*httptest.Server

	pki *TestPKI

	OCSPRequests int
	CRLRequests  int

	crl []byte
}

// NewRevocationServer starts the responder. OCSP requests arrive on the
// root path (GET with a base64 path segment, or POST), the CRL under /crl.
func NewRevocationServer(t *testing.T, pki *TestPKI) *RevocationServer {
	t.Helper()

	server := &RevocationServer{pki: pki}
	mux := http.NewServeMux()
	mux.HandleFunc("/crl", server.handleCRL)
	mux.HandleFunc("/", server.handleOCSP)
	server.Server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// OCSPURL is the responder URL to place in a certificate's OCSPServer.
func (s *RevocationServer) OCSPURL() string { return s.Server.URL }

// CRLURL is the distribution point to place in CRLDistributionPoints.
func (s *RevocationServer) CRLURL() string { return s.Server.URL + "/crl" }

func (s *RevocationServer) handleOCSP(w http.ResponseWriter, r *http.Request) {
	s.OCSPRequests++

	var der []byte
	var err error
	if r.Method == http.MethodGet {
		der, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(r.URL.Path, "/"))
	} else {
		der, err = io.ReadAll(r.Body)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, err := ocsp.ParseRequest(der)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	template := ocsp.Response{
		Status:       ocsp.Good,
		SerialNumber: req.SerialNumber,
		ThisUpdate:   time.Now().Add(-time.Minute),
		NextUpdate:   time.Now().Add(time.Hour),
	}
	resp, err := ocsp.CreateResponse(s.pki.RootCert, s.pki.RootCert, template, s.pki.RootKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/ocsp-response")
	_, _ = w.Write(resp)
}

func (s *RevocationServer) handleCRL(w http.ResponseWriter, r *http.Request) {
	s.CRLRequests++

	if s.crl == nil {
		template := &x509.RevocationList{
			Number:     big.NewInt(1),
			ThisUpdate: time.Now().Add(-time.Minute),
			NextUpdate: time.Now().Add(time.Hour),
		}
		crl, err := x509.CreateRevocationList(rand.Reader, template, s.pki.RootCert, s.pki.RootKey)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.crl = crl
	}

	w.Header().Set("Content-Type", "application/pkix-crl")
	_, _ = w.Write(s.crl)
}
