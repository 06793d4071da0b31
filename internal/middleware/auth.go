package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pgpoetry/poetry-api/internal/auth"
	"github.com/pgpoetry/poetry-api/internal/repository"
)

// identityKey is the context key under which the resolved identity is stored.
const identityKey = "identity"

// AuthMiddleware translates Authorization: Bearer <access token> into a
// resolved auth.Identity. The sentinel admin subject resolves without a
// database lookup; every other subject is loaded from the users table so a
// deleted account cannot keep using an unexpired token.
type AuthMiddleware struct {
	Tokens *auth.TokenService
	Users  *repository.UserRepo
}

func NewAuthMiddleware(tokens *auth.TokenService, users *repository.UserRepo) *AuthMiddleware {
	return &AuthMiddleware{Tokens: tokens, Users: users}
}

// Require rejects requests without a valid, resolvable access token.
func (m *AuthMiddleware) Require() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := m.resolve(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or missing token"})
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

// Optional resolves an identity when a valid token is present and otherwise
// lets the request through anonymously. Used by endpoints such as comment
// creation that accept both authenticated and anonymous callers.
func (m *AuthMiddleware) Optional() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id, err := m.resolve(c); err == nil {
				c.Set(identityKey, id)
			}
			return next(c)
		}
	}
}

func (m *AuthMiddleware) resolve(c echo.Context) (auth.Identity, error) {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	id, err := m.Tokens.VerifyAccess(raw)
	if err != nil {
		return auth.Identity{}, err
	}
	if id.ID == auth.AdminID {
		// The admin identity has no database row to resolve.
		if !id.IsAdmin() {
			return auth.Identity{}, auth.ErrInvalidToken
		}
		return id, nil
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	u, err := m.Users.GetByID(ctx, id.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return auth.Identity{}, auth.ErrInvalidToken
		}
		return auth.Identity{}, err
	}
	// The row is authoritative for username and role; claims may be stale.
	return auth.Identity{ID: u.ID, Username: u.Username, Role: u.Role}, nil
}

// CurrentIdentity returns the identity a previous Require/Optional middleware
// stored in the context.
func CurrentIdentity(c echo.Context) (auth.Identity, bool) {
	id, ok := c.Get(identityKey).(auth.Identity)
	return id, ok
}
