package middleware

// identity.go carries the authenticated caller from the gate to handlers.
// The identity is stored both on the echo context and on the request's
// context.Context so that code below the HTTP layer can reach it.

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-auth/internal/model"
)

const identityKey = "identity"

type ctxKey struct{}

// Identity is the resolved caller of an authenticated request.
type Identity struct {
	Claims            *model.AccessTokenClaims
	AccessToken       string // raw bearer token, needed to blacklist it on logout
	DeviceFingerprint string
	Address           string
}

func (i *Identity) UserID() string { return i.Claims.UserID }

// Tenant returns the university context from the token.
func (i *Identity) Tenant() model.TenantContext {
	return model.TenantContext{
		UniversityID:     i.Claims.UniversityID,
		UniversityName:   i.Claims.UniversityName,
		UniversityDomain: i.Claims.UniversityDomain,
	}
}

func attachIdentity(c echo.Context, id *Identity) {
	c.Set(identityKey, id)
	r := c.Request()
	c.SetRequest(r.WithContext(WithIdentity(r.Context(), id)))
}

// IdentityFrom returns the identity attached by the gate, or nil for an
// unauthenticated request.
func IdentityFrom(c echo.Context) *Identity {
	id, _ := c.Get(identityKey).(*Identity)
	return id
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext is IdentityFrom for code that only has a context.Context.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKey{}).(*Identity)
	return id
}
