// Package headers parses and formats the L402 Authorization and
// WWW-Authenticate header values.
package headers

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	// Scheme is the L402 authentication scheme name.
	Scheme = "L402"
	// Prefix starts every L402 header value.
	Prefix = Scheme + " "
)

var (
	macaroonAttr = regexp.MustCompile(`macaroon="([^"]+)"`)
	invoiceAttr  = regexp.MustCompile(`invoice="([^"]+)"`)
)

// IsL402 reports whether h carries the L402 scheme prefix.
func IsL402(h string) bool {
	return strings.HasPrefix(h, Prefix)
}

// ParseAuthorization splits an "L402 <macaroon>:<preimage>" value.
// Macaroons may contain colons themselves, so the split is on the last one.
func ParseAuthorization(h string) (macaroon, preimage string, ok bool) {
	if !IsL402(h) {
		return "", "", false
	}
	token := h[len(Prefix):]
	i := strings.LastIndexByte(token, ':')
	if i < 0 {
		return "", "", false
	}
	return token[:i], token[i+1:], true
}

// ParseChallenge extracts the macaroon and invoice attributes from an
// L402 WWW-Authenticate value. Attribute order and spacing are free.
func ParseChallenge(h string) (macaroon, invoice string, ok bool) {
	if !IsL402(h) {
		return "", "", false
	}
	m := macaroonAttr.FindStringSubmatch(h)
	inv := invoiceAttr.FindStringSubmatch(h)
	if m == nil || inv == nil {
		return "", "", false
	}
	return m[1], inv[1], true
}

// FormatAuthorization builds an Authorization header value.
func FormatAuthorization(macaroon, preimage string) string {
	return Prefix + macaroon + ":" + preimage
}

// FormatChallenge builds a WWW-Authenticate header value.
func FormatChallenge(macaroon, invoice string) string {
	return Prefix + `macaroon="` + macaroon + `", invoice="` + invoice + `"`
}

// Fingerprint returns a short stable identifier for an Authorization value,
// safe to store or log in place of the credential itself.
func Fingerprint(authorization string) string {
	sum := sha256.Sum256([]byte(authorization))
	return hex.EncodeToString(sum[:8])
}
