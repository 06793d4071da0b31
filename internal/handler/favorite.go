package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pgpoetry/poetry-api/internal/auth"
	"github.com/pgpoetry/poetry-api/internal/middleware"
	"github.com/pgpoetry/poetry-api/internal/repository"
)

// FavoriteHandler bundles dependencies for favorite endpoints. All routes
// require an authenticated user; the sentinel admin has no user row and
// therefore cannot hold favorites.
type FavoriteHandler struct {
	Favorites *repository.FavoriteRepo
	Poems     *repository.PoemRepo
}

func NewFavoriteHandler(favorites *repository.FavoriteRepo, poems *repository.PoemRepo) *FavoriteHandler {
	return &FavoriteHandler{Favorites: favorites, Poems: poems}
}

// callerUser returns the database-backed identity of the request, rejecting
// the sentinel admin. On failure the response has already been written and
// the handler should return nil.
func callerUser(c echo.Context) (auth.Identity, bool) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
		return auth.Identity{}, false
	}
	if id.IsSentinelAdmin() {
		_ = c.JSON(http.StatusForbidden, echo.Map{"error": "admin identity cannot hold favorites"})
		return auth.Identity{}, false
	}
	return id, true
}

// Add handles POST /api/poems/:id/favorite. A second favorite of the same
// pair answers 409; the unique index keeps the pair at-most-once even under
// concurrent requests.
func (h *FavoriteHandler) Add(c echo.Context) error {
	poemID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	id, ok := callerUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Poems.GetByID(ctx, poemID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "poem not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "add favorite failed"})
	}
	if err := h.Favorites.Add(ctx, id.ID, poemID); err != nil {
		if errors.Is(err, repository.ErrDuplicateFavorite) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "poem already favorited"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "add favorite failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "poem favorited successfully"})
}

// Remove handles DELETE /api/poems/:id/favorite.
func (h *FavoriteHandler) Remove(c echo.Context) error {
	poemID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	id, ok := callerUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Favorites.Remove(ctx, id.ID, poemID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "favorite not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "remove favorite failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "favorite removed successfully"})
}

// Check handles GET /api/poems/:id/favorite.
func (h *FavoriteHandler) Check(c echo.Context) error {
	poemID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	id, ok := callerUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	favorited, err := h.Favorites.Exists(ctx, id.ID, poemID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "check favorite failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"isFavorited": favorited})
}

// ListMine handles GET /api/me/favorites, the caller's favorited poems with
// the most recently favorited first.
func (h *FavoriteHandler) ListMine(c echo.Context) error {
	id, ok := callerUser(c)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	poems, err := h.Favorites.ListPoems(ctx, id.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "fetch favorites failed"})
	}
	return c.JSON(http.StatusOK, poems)
}
