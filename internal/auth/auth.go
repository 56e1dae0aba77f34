// Package auth implements the shared-secret gate in front of the compile
// endpoints. It is stateless; the secret is fixed when the Gate is built.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/zeebo/blake3"
)

// HeaderName is the request header that carries the API key.
const HeaderName = "X-API-KEY"

// Reason explains a rejected request.
type Reason string

const (
	ReasonMissing Reason = "missing"
	ReasonInvalid Reason = "invalid"
)

// Decision is the outcome of Gate.Check.
type Decision struct {
	Authorized bool
	Reason     Reason
	// Principal is a fingerprint of the presented key; empty when missing.
	Principal string
}

// Gate validates presented keys against the configured secret.
type Gate struct {
	secret string
}

// NewGate builds a Gate. An empty secret rejects every request as invalid.
func NewGate(secret string) *Gate {
	return &Gate{secret: secret}
}

// Enabled reports whether a secret is configured.
func (g *Gate) Enabled() bool {
	return g.secret != ""
}

// Check decides whether presented matches the secret.
func (g *Gate) Check(presented string) Decision {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return Decision{Reason: ReasonMissing}
	}
	fp := Fingerprint(presented)
	if !constantTimeEqual(presented, g.secret) {
		return Decision{Reason: ReasonInvalid, Principal: fp}
	}
	return Decision{Authorized: true, Principal: fp}
}

// CheckRequest is Check applied to the X-API-KEY header of r.
func (g *Gate) CheckRequest(r *http.Request) Decision {
	return g.Check(r.Header.Get(HeaderName))
}

// Fingerprint returns a short BLAKE3 digest of key, safe to log.
func Fingerprint(key string) string {
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:6])
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type principalKey struct{}

// WithPrincipal stores the caller fingerprint on ctx.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the fingerprint stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(string)
	return p, ok
}
