package handler

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pgpoetry/poetry-api/internal/auth"
	"github.com/pgpoetry/poetry-api/internal/config"
	"github.com/pgpoetry/poetry-api/internal/middleware"
	"github.com/pgpoetry/poetry-api/internal/model"
	"github.com/pgpoetry/poetry-api/internal/repository"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *auth.TokenService
}

func NewAuthHandler(cfg config.Config, users *repository.UserRepo, tokens *auth.TokenService) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Tokens: tokens}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type userPart struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}
type authResp struct {
	User         userPart `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

// Register creates a user and returns tokens immediately. The fresh refresh
// token is persisted (hashed) before the response is written.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username, email and password are required"})
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid email address"})
	}
	// The admin username is reserved for the out-of-band identity; a row with
	// that name would be shadowed at login forever.
	if req.Username == h.Cfg.AdminUsername {
		return c.JSON(http.StatusConflict, echo.Map{"error": "username already exists"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Username, req.Email, req.Password, h.Cfg.BcryptCost)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "username already exists"})
		case errors.Is(err, repository.ErrEmailExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	id := auth.Identity{ID: uid, Username: req.Username, Role: model.RoleUser}
	pair, err := h.Tokens.IssuePair(id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	if err := h.Users.StoreRefresh(ctx, uid, auth.HashRefresh(pair.RefreshToken)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed"})
	}

	return c.JSON(http.StatusOK, authResp{
		User:         userPart{ID: uid, Username: req.Username, Email: req.Email, Role: id.Role},
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Login verifies credentials and returns a new token pair, rotating any
// previously stored refresh token. The configured admin username bypasses
// the users table entirely and is checked against the pre-shared bcrypt hash.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username and password are required"})
	}

	if req.Username == h.Cfg.AdminUsername {
		return h.loginAdmin(c, req.Password)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !auth.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	id := auth.Identity{ID: u.ID, Username: u.Username, Role: u.Role}
	pair, err := h.Tokens.IssuePair(id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	if err := h.Users.StoreRefresh(ctx, u.ID, auth.HashRefresh(pair.RefreshToken)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed"})
	}

	return c.JSON(http.StatusOK, authResp{
		User:         userPart{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role},
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// loginAdmin mints tokens for the synthetic admin identity. Nothing is
// persisted: the admin has no user row, so its refresh tokens are stateless.
func (h *AuthHandler) loginAdmin(c echo.Context, password string) error {
	if !auth.VerifyPassword(h.Cfg.AdminPasswordHash, password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	id := auth.AdminIdentity(h.Cfg.AdminUsername)
	pair, err := h.Tokens.IssuePair(id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(http.StatusOK, authResp{
		User:         userPart{ID: id.ID, Username: id.Username, Role: id.Role},
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Refresh exchanges a valid refresh token for a new pair. For regular users
// the presented token must hash-match the single stored value; the swap to
// the new hash is one conditional UPDATE, so a stale token (already rotated
// away elsewhere) fails with 401 and cannot race a concurrent refresh.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refreshToken required"})
	}
	raw := strings.TrimSpace(req.RefreshToken)

	sub, err := h.Tokens.VerifyRefresh(raw)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}

	if sub == auth.AdminID {
		// Admin refresh tokens are never persisted, so signature and expiry
		// are the whole check.
		id := auth.AdminIdentity(h.Cfg.AdminUsername)
		pair, err := h.Tokens.IssuePair(id)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
		}
		return c.JSON(http.StatusOK, authResp{
			User:         userPart{ID: id.ID, Username: id.Username, Role: id.Role},
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, sub)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}

	id := auth.Identity{ID: u.ID, Username: u.Username, Role: u.Role}
	pair, err := h.Tokens.IssuePair(id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	err = h.Users.RotateRefresh(ctx, u.ID, auth.HashRefresh(raw), auth.HashRefresh(pair.RefreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidRefresh) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed"})
	}

	return c.JSON(http.StatusOK, authResp{
		User:         userPart{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role},
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout revokes the presented refresh token by nulling the stored hash,
// making the token permanently unusable even before expiry.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refreshToken required"})
	}
	raw := strings.TrimSpace(req.RefreshToken)

	sub, err := h.Tokens.VerifyRefresh(raw)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	if sub == auth.AdminID {
		// Nothing stored to revoke for the admin identity.
		return c.NoContent(http.StatusNoContent)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.ClearRefresh(ctx, sub, auth.HashRefresh(raw)); err != nil {
		if errors.Is(err, repository.ErrInvalidRefresh) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller identity resolved by the auth middleware.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	return c.JSON(http.StatusOK, userPart{ID: id.ID, Username: id.Username, Role: id.Role})
}
