// Package middleware wraps protected routes: bearer extraction,
// principal resolution and tier gating.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/quantflow/backend/internal/identity"
	"github.com/quantflow/backend/internal/logging"
	"github.com/quantflow/backend/internal/models"
)

const principalKey = "principal"

// bearerPrefix is matched case-sensitively; "bearer x" is not a token.
const bearerPrefix = "Bearer "

type SessionAuth struct {
	Resolver *identity.Resolver
}

func NewSessionAuth(r *identity.Resolver) *SessionAuth {
	return &SessionAuth{Resolver: r}
}

// BearerToken pulls the token out of the Authorization header, or ""
// when the header is absent or malformed.
func BearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(h, bearerPrefix) {
		return ""
	}
	return strings.TrimPrefix(h, bearerPrefix)
}

// Authenticate rejects the request before business logic unless a
// principal resolves. A missing header short-circuits without touching
// any backend.
func (m *SessionAuth) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := BearerToken(c)
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "No token provided, authorization denied")
		}

		p, err := m.Resolver.Resolve(c.Request().Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrAccountDeactivated) {
				return echo.NewHTTPError(http.StatusUnauthorized, "Account is deactivated")
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "Token is not valid")
		}

		SetPrincipal(c, p)
		return next(c)
	}
}

// AuthenticateOptional resolves when it can and proceeds anonymously
// when it cannot. Never used to gate access.
func (m *SessionAuth) AuthenticateOptional(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if token := BearerToken(c); token != "" {
			p, err := m.Resolver.Resolve(c.Request().Context(), token)
			if err == nil && p.Active() {
				SetPrincipal(c, p)
			} else if err != nil {
				logging.FromContext(c.Request().Context()).Debug("optional_auth_skipped", "error", err)
			}
		}
		return next(c)
	}
}

// RequireTier gates a route on the ordinal tier ranking. The rejection
// body carries both tiers for client-side messaging.
func RequireTier(min models.Tier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFrom(c)
			if p == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}

			if !p.Tier().AtLeast(min) {
				return c.JSON(http.StatusForbidden, echo.Map{
					"success":              false,
					"message":              string(min) + " subscription required",
					"currentSubscription":  p.Tier(),
					"requiredSubscription": min,
				})
			}
			return next(c)
		}
	}
}

func SetPrincipal(c echo.Context, p identity.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the attached principal or nil.
func PrincipalFrom(c echo.Context) identity.Principal {
	if v := c.Get(principalKey); v != nil {
		if p, ok := v.(identity.Principal); ok {
			return p
		}
	}
	return nil
}
