package urlutil

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

var schemePrefixes = []string{
	"https://",
	"http://",
}

var trackingParams = map[string]struct{}{
	"gclid":  {},
	"fbclid": {},
	"ref":    {},
	"source": {},
}

var staticExtensions = map[string]struct{}{
	".css":   {},
	".gif":   {},
	".ico":   {},
	".jpeg":  {},
	".jpg":   {},
	".js":    {},
	".pdf":   {},
	".png":   {},
	".svg":   {},
	".webp":  {},
	".woff":  {},
	".woff2": {},
}

// HasScheme reports whether raw starts with a recognized absolute scheme prefix.
func HasScheme(raw string) bool {
	lower := strings.ToLower(raw)
	for _, p := range schemePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// WithBase returns raw unchanged when it is already absolute, otherwise it
// prefixes base. No path cleaning is applied.
func WithBase(base, raw string) string {
	if HasScheme(raw) {
		return raw
	}
	return strings.TrimSuffix(base, "/") + ensureLeadingSlash(raw)
}

// Resolve resolves href against the page it was found on. Non-navigational
// links resolve to "".
func Resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.String()
}

// Normalize canonicalizes a page URL: default scheme, lowercase host, no
// fragment, clean path, tracking parameters removed and query keys sorted.
func Normalize(raw string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Path = normalizePath(u.Path)
	u.RawPath = ""
	u.RawQuery = normalizeQuery(u.RawQuery)
	return u.String(), u.Hostname(), nil
}

// SameHost compares hosts ignoring case and a leading "www.".
func SameHost(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return normalizeHost(a) == normalizeHost(b)
}

// IsCrawlable rejects URLs that cannot be catalog pages.
func IsCrawlable(raw string) bool {
	normalized, host, err := Normalize(raw)
	if err != nil || host == "" {
		return false
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return false
	}
	return !isStaticAssetPath(u.Path)
}

func ensureLeadingSlash(p string) string {
	if p == "" || strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

func normalizeHost(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	return host
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	trailing := strings.HasSuffix(p, "/")
	clean := path.Clean(p)
	if clean == "." {
		return "/"
	}
	// Catalog roots are served with a trailing slash; keep it.
	if trailing && clean != "/" {
		clean += "/"
	}
	return clean
}

func normalizeQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	for key := range values {
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, "utm_") {
			delete(values, key)
			continue
		}
		if _, ok := trackingParams[lk]; ok {
			delete(values, key)
		}
	}
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	normalized := url.Values{}
	for _, k := range keys {
		normalized[k] = values[k]
	}
	return normalized.Encode()
}

func isStaticAssetPath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	_, ok := staticExtensions[ext]
	return ok
}
