package crawler

import (
	"net/url"
	"sync"
)

// Visited records the listing pages a cursor has reached so a "next" link
// that loops back is recognized.
type Visited struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewVisited creates an empty set.
func NewVisited() *Visited {
	return &Visited{seen: make(map[string]bool)}
}

// Add marks rawURL visited. It returns false if it already was, or if the
// URL cannot be parsed.
func (v *Visited) Add(rawURL string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	normalized := normalizeURL(rawURL)
	if normalized == "" || v.seen[normalized] {
		return false
	}
	v.seen[normalized] = true
	return true
}

// IsVisited checks if a URL has been visited.
func (v *Visited) IsVisited(rawURL string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.seen[normalizeURL(rawURL)]
}

// Len returns the number of visited URLs.
func (v *Visited) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

// normalizeURL normalizes a URL for comparison.
func normalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || rawURL == "" {
		return ""
	}

	// Remove fragment
	parsed.Fragment = ""

	// Remove trailing slash from path (unless it's just "/")
	if len(parsed.Path) > 1 && parsed.Path[len(parsed.Path)-1] == '/' {
		parsed.Path = parsed.Path[:len(parsed.Path)-1]
	}

	return parsed.String()
}

// SameURL reports whether two URLs are equal after normalization.
func SameURL(a, b string) bool {
	na := normalizeURL(a)
	return na != "" && na == normalizeURL(b)
}

// IsSameDomain checks if two URLs are on the same domain.
func IsSameDomain(url1, url2 string) bool {
	parsed1, err := url.Parse(url1)
	if err != nil {
		return false
	}
	parsed2, err := url.Parse(url2)
	if err != nil {
		return false
	}
	return parsed1.Host == parsed2.Host
}
