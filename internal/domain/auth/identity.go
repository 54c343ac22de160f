package auth

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrMissingCredential is returned when a request carries no bearer token.
	ErrMissingCredential = errors.New("no credential provided")
	// ErrInvalidCredential is returned when the token fails verification.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrForbidden is returned when a verified identity lacks the required privilege.
	ErrForbidden = errors.New("forbidden")
)

// Identity is the verified caller behind a request.
type Identity struct {
	// Subject identifies the caller. Orders are owned by it.
	Subject string
	// Privileged callers may manage coupons and every order.
	Privileged bool
}

// CanAccess reports whether id may read a resource owned by owner.
func (id Identity) CanAccess(owner string) bool {
	return id.Privileged || id.Subject == owner
}

// Verifier turns a bearer credential into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// BearerToken extracts the token from an Authorization header value.
// Both "Bearer <token>" and a bare token are accepted.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if strings.EqualFold(header, "Bearer") {
		return ""
	}
	return header
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
