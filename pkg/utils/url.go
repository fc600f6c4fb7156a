package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var errUnsupportedScheme = errors.New("unsupported url scheme")

// HashURL creates a SHA256 hash of a URL string for use in Redis keys.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(rawURL))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeURL resolves href against base and returns its canonical form:
// no fragment, lowercase scheme and host, "/" for an empty path.
// Only http and https URLs are accepted.
func NormalizeURL(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errUnsupportedScheme
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// SameOrigin reports whether a and b share scheme and host (including port).
func SameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

var (
	digitsRe = regexp.MustCompile(`\d+`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Fingerprint hashes a test case id with its error message after stripping
// numbers and collapsing whitespace, so repeats of the same failure share a value.
func Fingerprint(testCaseID, errMsg string) string {
	normalized := strings.ToLower(strings.TrimSpace(errMsg))
	normalized = digitsRe.ReplaceAllString(normalized, "N")
	normalized = spaceRe.ReplaceAllString(normalized, " ")
	return HashURL(testCaseID + "|" + normalized)
}
