package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ecstasyos/presence/server/internal/presence/capture"
)

var ErrUnauthorized = errors.New("unauthorized")

// DevIdentityHeader names the employee directly when no secret is
// configured in dev.
const DevIdentityHeader = "X-Employee-ID"

// Claims are the fields the auth service puts in its HS256 tokens. The
// subject is the employee id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator turns a request into the identity the session carries.
// Authentication itself happens elsewhere; this only verifies the token.
type Authenticator struct {
	secret    []byte
	devHeader bool
}

// NewAuthenticator verifies bearer tokens with secret. When secret is empty
// and devHeader is set, DevIdentityHeader is trusted instead.
func NewAuthenticator(secret string, devHeader bool) *Authenticator {
	return &Authenticator{secret: []byte(secret), devHeader: devHeader && secret == ""}
}

func (a *Authenticator) Identify(r *http.Request) (capture.Identity, error) {
	if len(a.secret) == 0 {
		if !a.devHeader {
			return capture.Identity{}, fmt.Errorf("%w: no auth secret configured", ErrUnauthorized)
		}
		id := strings.TrimSpace(r.Header.Get(DevIdentityHeader))
		if id == "" {
			return capture.Identity{}, fmt.Errorf("%w: missing %s", ErrUnauthorized, DevIdentityHeader)
		}
		return capture.Identity{EmployeeID: id}, nil
	}

	authz := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(authz, "Bearer ")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return capture.Identity{}, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return capture.Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return capture.Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return capture.Identity{
		EmployeeID: sub,
		Email:      strings.TrimSpace(claims.Email),
		Name:       strings.TrimSpace(claims.Name),
	}, nil
}

type identityKey struct{}

func withIdentity(ctx context.Context, who capture.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, who)
}

func identityFrom(ctx context.Context) (capture.Identity, bool) {
	who, ok := ctx.Value(identityKey{}).(capture.Identity)
	return who, ok
}
