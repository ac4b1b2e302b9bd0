// Package rawstore persists fetched page bodies in a content-addressed
// layout: <domain>/<YYYY-MM-DD>/<sha256(body)>.<ext>. Writes are
// idempotent because the key is derived from the content; a blob whose
// database row was never written is an orphan the retention sweep
// removes by date.
package rawstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

// Content types by stored extension.
const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeXML  = "application/xml"
	ContentTypeJSON = "application/json"
	ContentTypePNG  = "image/png"

	ExtHTML = "html"
	ExtXML  = "xml"
	ExtJSON = "json"
	ExtPNG  = "png"
)

// Store is a content-addressed blob store for raw pages.
type Store interface {
	// Put stores body under key and returns the key. Storing a key that
	// already exists is a no-op success.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)

	// DeleteBefore removes all blobs in date directories older than
	// cutoff, orphans included, and returns the number removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Healthy verifies the backend is reachable and writable.
	Healthy(ctx context.Context) error
}

// Interface conformance checks.
var (
	_ Store = (*FSStore)(nil)
	_ Store = (*MinioStore)(nil)
)

// New selects the store backend from config.
func New(cfg *config.RawStoreConfig, log logger.Interface) (Store, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinioStore(&cfg.MinIO, log)
	case "fs", "":
		return NewFSStore(cfg.Root, log)
	default:
		return nil, fmt.Errorf("rawstore: unknown backend %q", cfg.Backend)
	}
}

// Key derives the storage key for a page body fetched from pageURL.
// The date segment comes from fetchedAt in UTC so retention sweeps
// operate on whole directories.
func Key(pageURL string, fetchedAt time.Time, body []byte, ext string) string {
	sum := sha256.Sum256(body)
	return path.Join(
		domainOf(pageURL),
		fetchedAt.UTC().Format("2006-01-02"),
		hex.EncodeToString(sum[:])+"."+ext,
	)
}

// ContentTypeFor maps a stored extension to its content type.
func ContentTypeFor(ext string) string {
	switch ext {
	case ExtHTML:
		return ContentTypeHTML
	case ExtXML:
		return ContentTypeXML
	case ExtJSON:
		return ContentTypeJSON
	case ExtPNG:
		return ContentTypePNG
	default:
		return "application/octet-stream"
	}
}

// domainOf extracts the lowercased hostname, without port, for the key
// prefix. Unparseable URLs land under "unknown" rather than failing the
// write.
func domainOf(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "unknown"
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "unknown"
	}
	return host
}

// dateSegment extracts the YYYY-MM-DD segment from a key, reporting
// false for keys that do not follow the store layout.
func dateSegment(key string) (time.Time, bool) {
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return time.Time{}, false
	}
	day, err := time.Parse("2006-01-02", parts[1])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
