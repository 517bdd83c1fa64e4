package crawl

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL resolves raw against base (when base is non-nil) and
// canonicalizes it: lowercase host, no fragment, no query, no trailing
// slash. Two URLs that normalize equal are treated as the same page.
func NormalizeURL(raw string, base *url.URL) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}

	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawQuery = ""
	parsed.Path = NormalizePath(parsed.Path)
	parsed.RawPath = ""

	return parsed, nil
}

// NormalizePath canonicalizes a URL path for matching: leading slash
// guaranteed, trailing slashes collapsed, root stays "/".
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// sameOrigin reports whether u shares scheme and host with the seed
func sameOrigin(u, seed *url.URL) bool {
	return u.Scheme == seed.Scheme && u.Host == seed.Host
}
