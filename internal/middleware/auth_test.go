package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgpoetry/poetry-api/internal/auth"
	"github.com/pgpoetry/poetry-api/internal/model"
	"github.com/pgpoetry/poetry-api/internal/repository"
)

const selectUserByID = "SELECT id,username,email,password_hash,role,refresh_token_hash,created_at,updated_at FROM users WHERE id=? LIMIT 1"

func newAuthMiddleware(t *testing.T) (*AuthMiddleware, sqlmock.Sqlmock, *auth.TokenService) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens := auth.NewTokenService("test-secret", 15, 7)
	return NewAuthMiddleware(tokens, repository.NewUserRepo(db)), mock, tokens
}

func userRow(id uint64, username, role string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "username", "email", "password_hash", "role", "refresh_token_hash", "created_at", "updated_at",
	}).AddRow(id, username, username+"@example.com", "$2a$10$hash", role, nil, now, now)
}

func invoke(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	require.NoError(t, h(c))
	return rec, c
}

func TestRequireMissingHeader(t *testing.T) {
	m, _, _ := newAuthMiddleware(t)
	rec, _ := invoke(t, m.Require(), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireInvalidToken(t *testing.T) {
	m, _, _ := newAuthMiddleware(t)
	rec, _ := invoke(t, m.Require(), "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireResolvesUser(t *testing.T) {
	m, mock, tokens := newAuthMiddleware(t)

	token, _, err := tokens.IssueAccessToken(auth.Identity{ID: 42, Username: "amara", Role: model.RoleUser})
	require.NoError(t, err)
	mock.ExpectQuery(selectUserByID).WithArgs(uint64(42)).WillReturnRows(userRow(42, "amara", model.RoleUser))

	rec, c := invoke(t, m.Require(), "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)

	id, ok := CurrentIdentity(c)
	require.True(t, ok)
	assert.Equal(t, uint64(42), id.ID)
	assert.Equal(t, "amara", id.Username)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequireDeletedUserIsUnauthenticated(t *testing.T) {
	m, mock, tokens := newAuthMiddleware(t)

	// Token is valid but the user row is gone.
	token, _, err := tokens.IssueAccessToken(auth.Identity{ID: 42, Username: "amara", Role: model.RoleUser})
	require.NoError(t, err)
	mock.ExpectQuery(selectUserByID).WithArgs(uint64(42)).WillReturnRows(sqlmock.NewRows([]string{
		"id", "username", "email", "password_hash", "role", "refresh_token_hash", "created_at", "updated_at",
	}))

	rec, _ := invoke(t, m.Require(), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequireAdminSkipsDatabase(t *testing.T) {
	m, mock, tokens := newAuthMiddleware(t)

	token, _, err := tokens.IssueAccessToken(auth.AdminIdentity("admin"))
	require.NoError(t, err)

	rec, c := invoke(t, m.Require(), "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)

	id, ok := CurrentIdentity(c)
	require.True(t, ok)
	assert.True(t, id.IsSentinelAdmin())
	assert.True(t, id.IsAdmin())
	// No query was expected and none must have run.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOptionalWithoutTokenPassesAnonymously(t *testing.T) {
	m, _, _ := newAuthMiddleware(t)

	rec, c := invoke(t, m.Optional(), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok := CurrentIdentity(c)
	assert.False(t, ok)
}

func TestRequireRole(t *testing.T) {
	m, mock, tokens := newAuthMiddleware(t)

	token, _, err := tokens.IssueAccessToken(auth.Identity{ID: 42, Username: "amara", Role: model.RoleUser})
	require.NoError(t, err)
	mock.ExpectQuery(selectUserByID).WithArgs(uint64(42)).WillReturnRows(userRow(42, "amara", model.RoleUser))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	chain := m.Require()(RequireRole(model.RoleAdmin)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}))
	require.NoError(t, chain(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
