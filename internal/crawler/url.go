package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var indexSuffix = regexp.MustCompile(`/index\.html?$`)

// NormalizeURL resolves rawHref against base and returns the canonical form
// used as the frontier identity. It reports false for hrefs that are
// malformed, use a scheme other than http/https, or leave domain.
//
// Canonical form: lowercase scheme and host, no default port, no fragment,
// a trailing index.html/index.htm collapsed, and no trailing slash except on
// the root path. The query string is kept verbatim.
func NormalizeURL(rawHref, base, domain string) (string, bool) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(rawHref))
	if err != nil {
		return "", false
	}
	return canonicalize(baseURL.ResolveReference(ref), domain)
}

// SeedURL validates the start URL and derives the crawl domain from it.
func SeedURL(raw string) (seed string, domain string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", fmt.Errorf("%w: scheme %q is not http or https", ErrInvalidSeed, u.Scheme)
	}
	domain = hostKey(scheme, u.Host)
	if domain == "" {
		return "", "", fmt.Errorf("%w: missing host", ErrInvalidSeed)
	}
	seed, ok := canonicalize(u, domain)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidSeed, raw)
	}
	return seed, domain, nil
}

func canonicalize(u *url.URL, domain string) (string, bool) {
	out := *u
	out.Fragment = ""
	out.RawFragment = ""
	out.Scheme = strings.ToLower(out.Scheme)
	if out.Scheme != "http" && out.Scheme != "https" {
		return "", false
	}
	out.Host = hostKey(out.Scheme, out.Host)
	if out.Host == "" || out.Host != strings.ToLower(domain) {
		return "", false
	}

	escaped := out.EscapedPath()
	collapsed := collapsePath(escaped)
	if collapsed != escaped {
		unescaped, err := url.PathUnescape(collapsed)
		if err != nil {
			return "", false
		}
		out.Path = unescaped
		out.RawPath = collapsed
	}
	return out.String(), true
}

func collapsePath(p string) string {
	p = indexSuffix.ReplaceAllString(p, "/")
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	if p == "" {
		p = "/"
	}
	return p
}

// hostKey lowercases host and drops the scheme's default port.
func hostKey(scheme, host string) string {
	host = strings.ToLower(host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	return host
}
