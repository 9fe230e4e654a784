package sign

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"encoding/asn1"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/digitorus/timestamp"
)

// DefaultTSATimeout bounds the whole timestamp HTTP exchange.
const DefaultTSATimeout = 5 * time.Second

// TSAClient requests RFC 3161 timestamp tokens over HTTP.
type TSAClient struct {
	URL string

	// Username and Password enable HTTP basic authentication.
	Username string
	Password string
	// BearerToken enables bearer authentication instead.
	BearerToken string

	// RequireHTTPS rejects plain-HTTP timestamp URLs.
	RequireHTTPS bool

	// Timeout bounds the HTTP exchange. Zero means DefaultTSATimeout.
	Timeout time.Duration

	// Client overrides the HTTP client. Its timeout is still applied
	// from Timeout.
	Client *http.Client
}

// pkiStatusInfo mirrors the status part of a TimeStampResp so rejections can
// be reported with their statusString and failInfo before token parsing.
type pkiStatusInfo struct {
	Status       int
	StatusString []string       `asn1:"optional,utf8"`
	FailInfo     asn1.BitString `asn1:"optional"`
}

type timeStampResp struct {
	Status         pkiStatusInfo
	TimeStampToken asn1.RawValue `asn1:"optional"`
}

const pkiStatusGranted = 0

// Timestamp requests a token over message, hashed with h. The reply nonce
// must echo the request nonce.
func (c *TSAClient) Timestamp(message []byte, h crypto.Hash) ([]byte, error) {
	if c.RequireHTTPS && !strings.HasPrefix(c.URL, "https://") {
		return nil, fmt.Errorf("timestamp URL %s is not https", c.URL)
	}

	nonce, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	request, err := timestamp.CreateRequest(bytes.NewReader(message), &timestamp.RequestOptions{
		Hash:         h,
		Nonce:        nonce,
		Certificates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create timestamp request: %w", err)
	}

	body, err := c.exchange(request)
	if err != nil {
		return nil, err
	}

	var resp timeStampResp
	if _, err := asn1.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTSAMalformedResponse, err)
	}
	// Only the literal granted status is accepted; grantedWithMods means
	// the server changed something we did not ask for.
	if resp.Status.Status != pkiStatusGranted {
		return nil, fmt.Errorf("%w: status %d, statusString %q, failInfo %v",
			ErrTSARejected, resp.Status.Status, strings.Join(resp.Status.StatusString, "; "), resp.Status.FailInfo.Bytes)
	}

	ts, err := timestamp.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTSAMalformedResponse, err)
	}
	if ts.Nonce == nil || ts.Nonce.Cmp(nonce) != 0 {
		return nil, fmt.Errorf("%w: expected %s, got %v", ErrTSANonceMismatch, nonce, ts.Nonce)
	}

	return ts.RawToken, nil
}

func (c *TSAClient) exchange(request []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, c.URL, bytes.NewReader(request))
	if err != nil {
		return nil, fmt.Errorf("prepare timestamp request (%s): %w", c.URL, err)
	}
	req.Header.Set("Content-Type", "application/timestamp-query")
	req.Header.Set("Content-Transfer-Encoding", "binary")

	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	} else if c.Username != "" && c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	client := c.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTSATimeout
	}
	clientCopy := *client
	clientCopy.Timeout = timeout

	resp, err := clientCopy.Do(req)
	if err != nil {
		return nil, fmt.Errorf("timestamp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read timestamp response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: http status %d: %s", ErrTSARejected, resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/timestamp-reply" {
		return nil, fmt.Errorf("%w: unexpected content type %q", ErrTSAMalformedResponse, ct)
	}

	return body, nil
}
