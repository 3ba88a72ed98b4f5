package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// CacheScheme is the prefix a player uses to route a media URL through the cache
const CacheScheme = "mediacache:"

// WrapURL prefixes a remote URL with the cache scheme
func WrapURL(rawURL string) string {
	if strings.HasPrefix(rawURL, CacheScheme) {
		return rawURL
	}
	return CacheScheme + rawURL
}

// CanonicalURL returns the resource identity for a remote media URL.
// The cache scheme prefix is stripped, scheme and host are lower-cased and the
// fragment is dropped.
func CanonicalURL(rawURL string) (string, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(rawURL), CacheScheme)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidResourceURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResourceURL, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidResourceURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidResourceURL)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	return u.String(), nil
}

// ResourceKey returns a stable file-name-safe key for a canonical URL
func ResourceKey(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// ResourceExtension returns the file extension of the URL path, if any
func ResourceExtension(canonicalURL string) string {
	u, err := url.Parse(canonicalURL)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return strings.ToLower(ext)
}

// IsSupportedMediaType returns true for content types the cache accepts:
// video, audio and application payloads. An empty type is accepted since
// some servers omit the header.
func IsSupportedMediaType(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "video/") ||
		strings.HasPrefix(ct, "audio/") ||
		strings.HasPrefix(ct, "application/")
}
