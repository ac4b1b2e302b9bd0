// Package domain provides domain models used across the application.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Tracking query keys stripped during URL canonicalization.
var trackingKeys = map[string]bool{
	"fbclid":       true,
	"gclid":        true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
	"source":       true,
	"utm_campaign": true,
	"utm_content":  true,
	"utm_medium":   true,
	"utm_source":   true,
	"utm_term":     true,
}

// CanonicalizeURL normalizes a URL for identity purposes: scheme and host
// lowercased, fragment stripped, tracking query keys removed, remaining
// query keys sorted, trailing slash removed from non-root paths. The
// operation is idempotent. Unparseable input is returned trimmed.
func CanonicalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if trackingKeys[strings.ToLower(key)] {
				q.Del(key)
			}
		}
		u.RawQuery = encodeSorted(q)
	}

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
	}

	return u.String()
}

// encodeSorted renders query values with deterministic key order so that
// canonicalization is stable across map iteration.
func encodeSorted(q url.Values) string {
	keys := make([]string, 0, len(q))
	for key := range q {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		for _, val := range q[key] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(key))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(val))
		}
	}
	return sb.String()
}

// CanonicalHash computes the posting identity:
// sha256_hex(lower(trim(title)) + "|" + canonicalize(apply_url)).
func CanonicalHash(title, applyURL string) string {
	key := strings.ToLower(strings.TrimSpace(title)) + "|" + CanonicalizeURL(applyURL)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
