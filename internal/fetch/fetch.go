// Package fetch retrieves source pages over HTTP or a headless browser,
// classifying failures into the stable fetch.* error kinds.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// Kind selects the timeout and size-cap profile for a request.
type Kind string

const (
	// KindPage is an HTML careers page.
	KindPage Kind = "page"
	// KindFeed is an RSS/Atom feed.
	KindFeed Kind = "feed"
	// KindAPI is a JSON endpoint.
	KindAPI Kind = "api"
)

// Conditional carries the validators from the previous successful fetch.
type Conditional struct {
	ETag         *string
	LastModified *string
}

// Request describes one fetch.
type Request struct {
	URL         string
	Kind        Kind
	Conditional Conditional

	// Headers are extra request headers, e.g. resolved api auth. Values
	// may contain secrets and must never be logged or persisted.
	Headers map[string]string
}

// Result is one completed fetch. On a 304 the body is empty and
// NotModified is set; ETag and LastModified carry the response
// validators for the next conditional request.
type Result struct {
	Body        []byte
	Status      int
	Headers     http.Header
	FinalURL    string
	NotModified bool

	ETag         *string
	LastModified *string

	// Screenshot is populated by the browser fetcher when a render fails,
	// so the failure can be archived next to the page.
	Screenshot []byte
}

// Fetcher fetches one URL.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
}

// Retriable HTTP statuses within the 4xx range.
const (
	statusRequestTimeout  = 408
	statusTooManyRequests = 429
)

// Metric label values shared by the fetch adapters.
const (
	adapterHTTP    = "http"
	adapterBrowser = "browser"

	outcomeOK          = "ok"
	outcomeNotModified = "not_modified"
	outcomeError       = "error"
)

// classifyTransportError maps a transport-level error to its fetch.* kind.
func classifyTransportError(err error) *domain.PipelineError {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.NewPipelineError(domain.ErrFetchDNS, true, err)
	}

	if isTLSError(err) {
		return domain.NewPipelineError(domain.ErrFetchTLS, true, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewPipelineError(domain.ErrFetchTimeout, true, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewPipelineError(domain.ErrFetchTimeout, true, err)
	}

	return domain.NewPipelineError(domain.ErrFetchTCP, true, err)
}

// isTLSError reports whether the error chain contains a TLS or
// certificate verification failure.
func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}
	var authErr x509.UnknownAuthorityError
	return errors.As(err, &authErr)
}

// classifyStatus maps a non-2xx, non-304 HTTP status to its fetch.* kind.
// 4xx is permanent except 408 and 429.
func classifyStatus(status int) *domain.PipelineError {
	err := &statusErr{status: status}

	if status >= 500 {
		return domain.NewPipelineError(domain.ErrFetchHTTP5xx, true, err)
	}

	retriable := status == statusRequestTimeout || status == statusTooManyRequests
	return domain.NewPipelineError(domain.ErrFetchHTTP4xx, retriable, err)
}

type statusErr struct {
	status int
}

func (e *statusErr) Error() string {
	return fmt.Sprintf("http status %d %s", e.status, http.StatusText(e.status))
}

// StatusOf returns the HTTP status behind a fetch error, or 0 when the
// failure happened below the HTTP layer.
func StatusOf(err error) int {
	var se *statusErr
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}

// sensitiveHeaders are removed verbatim during sanitization.
var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,
}

// sensitiveNameParts flag any header whose name contains one of these.
var sensitiveNameParts = []string{"secret", "token", "key"}

// SanitizeHeaders flattens headers into a lowercase map with credential
// material removed: authorization, cookie, set-cookie, and any name
// containing secret, token, or key. Safe for sidecars, logs, and probe
// responses.
func SanitizeHeaders(headers http.Header) map[string]string {
	sanitized := make(map[string]string, len(headers))

	for name, values := range headers {
		lower := strings.ToLower(name)
		if sensitiveHeaders[lower] {
			continue
		}
		if containsSensitivePart(lower) {
			continue
		}
		sanitized[lower] = strings.Join(values, ", ")
	}

	return sanitized
}

func containsSensitivePart(lowerName string) bool {
	for _, part := range sensitiveNameParts {
		if strings.Contains(lowerName, part) {
			return true
		}
	}
	return false
}
