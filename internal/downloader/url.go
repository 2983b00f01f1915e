package downloader

import (
	"strings"
)

const (
	platformHost   = "www.instagram.com"
	platformOrigin = "https://" + platformHost
	platformDomain = "instagram.com"
)

// contentMarkers are the path segments that identify a single piece of content.
var contentMarkers = []string{"/p/", "/reel/", "/tv/", "/stories/"}

// Target is a normalized URL that passed validation.
type Target struct {
	raw string
	url string
}

func (t Target) URL() string { return t.url }
func (t Target) Raw() string { return t.raw }
func (t Target) String() string { return t.url }

// ParseTarget normalizes raw and validates the result.
func ParseTarget(raw string) (Target, bool) {
	normalized := NormalizeURL(raw)
	if !ValidateURL(normalized) {
		return Target{}, false
	}
	return Target{raw: raw, url: normalized}, true
}

// NormalizeURL coerces user input into a canonical https URL on the platform host.
// Scheme-less input that starts with the platform host gets https; any other
// scheme-less input is treated as a path on the platform. The function is idempotent.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)

	switch {
	case strings.HasPrefix(lower, "https://"):
		s = "https://" + s[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		s = "https://" + s[len("http://"):]
	case strings.HasPrefix(lower, platformHost), strings.HasPrefix(lower, platformDomain):
		s = "https://" + s
	default:
		if !strings.HasPrefix(s, "/") {
			s = "/" + s
		}
		return platformOrigin + s
	}

	rest := s[len("https://"):]
	host, path := rest, ""
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		host, path = rest[:i], rest[i:]
	}
	if strings.EqualFold(host, platformDomain) || strings.EqualFold(host, platformHost) {
		host = platformHost
	}
	return "https://" + host + path
}

// ValidateURL reports whether s points at a single piece of platform content.
func ValidateURL(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	if !strings.Contains(lower, platformDomain) {
		return false
	}
	for _, marker := range contentMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// isPlatformURL reports whether a normalized URL lives on the platform host.
func isPlatformURL(s string) bool {
	return strings.Contains(strings.ToLower(s), platformDomain)
}
