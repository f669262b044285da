// Package tokenstore caches paid L402 credentials by resource.
package tokenstore

import (
	"context"
	"net/url"
	"strings"

	"github.com/pario-ai/l402/pkg/models"
)

// Store is a pluggable credential cache keyed by resource URL.
// Implementations normalize the URL with NormalizeURL and must be safe for
// concurrent use.
type Store interface {
	// Get returns the credential for the resource, or nil if none is cached.
	Get(ctx context.Context, resource string) (*models.Credential, error)
	// Set stores cred for the resource, replacing any previous credential.
	Set(ctx context.Context, resource string, cred models.Credential) error
	// Delete removes the resource's credential. Missing entries are not an error.
	Delete(ctx context.Context, resource string) error
}

// NormalizeURL reduces a resource URL to scheme://authority/path with the
// query and one trailing slash removed. The host is lowercased and a port
// that is the scheme's default is dropped. Values that are not absolute URLs
// are returned unchanged.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return raw
	}
	host := strings.ToLower(u.Host)
	if port := u.Port(); port != "" && port == defaultPorts[u.Scheme] {
		host = strings.TrimSuffix(host, ":"+port)
	}
	return strings.TrimSuffix(u.Scheme+"://"+host+u.EscapedPath(), "/")
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}
