// Package fetchhttp performs the single-attempt, SSRF-checked HTTP GET the
// poll executor issues against a service's health endpoint. Its error
// classification is adapted from the teacher's internal/transport error
// mapping (net.DNSError / net.OpError / tls.* exhaustive switch), retargeted
// at pollerr.Kind, and its body-size cap follows the shape of the teacher's
// worker.ReadResponseBody — but with no retry, per the fetcher's contract.
package fetchhttp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/copperbox/depsera/internal/pollerr"
)

// DefaultMaxBytes is the default body-truncation size (2 MiB per §4.E/§6).
const DefaultMaxBytes = 2 * 1024 * 1024

// Response is the result of a fetch that reached the server: status, body
// and latency. A transport-level failure is reported through Fetch's error
// return instead; a non-2xx status is not an error and is reported via
// Status.
type Response struct {
	Status           int
	Body             []byte
	LatencyMs        int64
	Truncated        bool
	OversizeWarning  string
}

// Fetcher issues single-attempt GETs with a per-call timeout.
type Fetcher struct {
	Client *http.Client
}

// New builds a Fetcher. A nil client falls back to a client with TLS
// verification enabled by default (the zero-value http.Transport never
// skips verification).
func New(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{Client: client}
}

// Fetch issues a single GET against rawURL, bounded by timeout and
// truncating the response body at maxBytes. A transport-level failure (DNS,
// connect, TLS, timeout, body read) returns a *pollerr.Error; a successful
// round trip with any status code returns a Response and nil error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration, maxBytes int64) (*Response, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, pollerr.Wrap(pollerr.KindInternal, "", "failed to build request", err)
	}

	start := time.Now()
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxBytes+1)
	body, err := io.ReadAll(limited)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, pollerr.Wrap(pollerr.KindBodyRead, "", "failed to read response body", err)
	}

	out := &Response{Status: resp.StatusCode, LatencyMs: latency, Body: body}
	if int64(len(body)) > maxBytes {
		out.Body = body[:maxBytes]
		out.Truncated = true
		out.OversizeWarning = fmt.Sprintf("response body truncated at %d bytes", maxBytes)
	}
	return out, nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pollerr.Wrap(pollerr.KindTimeout, "", "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return pollerr.Wrap(pollerr.KindTimeout, "", "request cancelled", err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return pollerr.Wrap(pollerr.KindTimeout, "", "request timed out: "+urlErr.Op, err)
		}
		return classify(urlErr.Err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return pollerr.Wrap(pollerr.KindDNSFailed, "", fmt.Sprintf("DNS lookup failed for %s", dnsErr.Name), err)
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return pollerr.Wrap(pollerr.KindTLSFailed, "", "certificate verification failed", err)
	}
	var recordErr *tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return pollerr.Wrap(pollerr.KindTLSFailed, "", "TLS record header error", err)
	}
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return pollerr.Wrap(pollerr.KindTLSFailed, "", "certificate signed by unknown authority", err)
	}
	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &certInvalid) {
		return pollerr.Wrap(pollerr.KindTLSFailed, "", "certificate invalid: "+certInvalid.Detail, err)
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return pollerr.Wrap(pollerr.KindTLSFailed, "", "certificate hostname mismatch", err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return pollerr.Wrap(pollerr.KindTimeout, "", opErr.Op+" timeout", err)
		}
		var errno syscall.Errno
		if errors.As(opErr.Err, &errno) {
			switch errno {
			case syscall.ECONNREFUSED:
				return pollerr.Wrap(pollerr.KindConnectRefused, "", "connection refused", err)
			case syscall.ETIMEDOUT:
				return pollerr.Wrap(pollerr.KindTimeout, "", "connection timed out", err)
			}
		}
		return pollerr.Wrap(pollerr.KindConnectRefused, "", opErr.Op+" failed", err)
	}

	return pollerr.Wrap(pollerr.KindConnectRefused, "", "request failed", err)
}
