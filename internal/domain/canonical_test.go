package domain_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

func TestCanonicalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases scheme and host",
			in:   "HTTPS://Example.COM/Jobs/42",
			want: "https://example.com/Jobs/42",
		},
		{
			name: "strips fragment",
			in:   "https://example.com/jobs/42#apply",
			want: "https://example.com/jobs/42",
		},
		{
			name: "strips tracking keys keeps the rest",
			in:   "https://example.com/jobs?utm_source=feed&utm_medium=rss&id=42",
			want: "https://example.com/jobs?id=42",
		},
		{
			name: "removes trailing slash on long path",
			in:   "https://example.com/jobs/42/",
			want: "https://example.com/jobs/42",
		},
		{
			name: "keeps root slash",
			in:   "https://example.com/",
			want: "https://example.com/",
		},
		{
			name: "sorts surviving query keys",
			in:   "https://example.com/jobs?b=2&a=1",
			want: "https://example.com/jobs?a=1&b=2",
		},
		{
			name: "trims whitespace",
			in:   "  https://example.com/jobs  ",
			want: "https://example.com/jobs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := domain.CanonicalizeURL(tt.in)
			if got != tt.want {
				t.Errorf("CanonicalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalizeURL_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTPS://Example.COM/Jobs/42/?utm_source=x&id=9#frag",
		"https://acme.org/jobs/42",
		"http://example.com/",
		"https://example.com/jobs?b=2&a=1&fbclid=zzz",
	}

	for _, in := range inputs {
		once := domain.CanonicalizeURL(in)
		twice := domain.CanonicalizeURL(once)
		if once != twice {
			t.Errorf("canonicalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestCanonicalHash_Formula(t *testing.T) {
	t.Parallel()

	title := "  Data Analyst  "
	applyURL := "HTTPS://Acme.org/jobs/42/"

	// lower(trim(title)) + "|" + canonicalized URL.
	want := sha256.Sum256([]byte("data analyst|https://acme.org/jobs/42"))
	got := domain.CanonicalHash(title, applyURL)

	if got != hex.EncodeToString(want[:]) {
		t.Errorf("CanonicalHash = %s, want %s", got, hex.EncodeToString(want[:]))
	}
}

func TestCanonicalHash_StableUnderURLNoise(t *testing.T) {
	t.Parallel()

	base := domain.CanonicalHash("Data Analyst", "https://acme.org/jobs/42")
	noisy := domain.CanonicalHash("data analyst", "https://ACME.org/jobs/42/?utm_source=rss#top")

	if base != noisy {
		t.Errorf("hash should absorb URL noise: %s != %s", base, noisy)
	}
}
