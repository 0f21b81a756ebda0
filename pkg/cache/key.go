package cache

import (
	"net/url"
	"strings"
)

// CacheKey identifies a cached response by the URL it was fetched from.
type CacheKey struct {
	URL string
}

// String generates a deterministic cache key string.
// Format: swapi:host/path/  (scheme dropped, host lower-cased, trailing slash kept)
//
// Example:
//
//	swapi:swapi.py4e.com/api/films/1/
func (k CacheKey) String() string {
	raw := strings.TrimSpace(k.URL)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "swapi:" + raw
	}

	key := strings.ToLower(u.Host) + u.EscapedPath()
	if u.RawQuery != "" {
		key += "?" + u.Query().Encode()
	}
	return "swapi:" + key
}
