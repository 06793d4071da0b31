package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pgpoetry/poetry-api/internal/middleware"
	"github.com/pgpoetry/poetry-api/internal/model"
	"github.com/pgpoetry/poetry-api/internal/repository"
)

// CommentHandler bundles dependencies for comment endpoints.
type CommentHandler struct {
	Comments *repository.CommentRepo
	Poems    *repository.PoemRepo
}

func NewCommentHandler(comments *repository.CommentRepo, poems *repository.PoemRepo) *CommentHandler {
	return &CommentHandler{Comments: comments, Poems: poems}
}

type commentReq struct {
	Text string `json:"text"`
}

// List handles GET /api/poems/:id/comments, public, newest first.
func (h *CommentHandler) List(c echo.Context) error {
	poemID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Poems.GetByID(ctx, poemID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "poem not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "fetch comments failed"})
	}
	comments, err := h.Comments.ListByPoem(ctx, poemID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "fetch comments failed"})
	}
	return c.JSON(http.StatusOK, comments)
}

// Create handles POST /api/poems/:id/comments. Callers may be anonymous; an
// optional-auth middleware resolves an identity when a token is present. The
// sentinel admin has no user row to reference, so its comments are stored
// anonymously as well.
func (h *CommentHandler) Create(c echo.Context) error {
	poemID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req commentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "comment text is required"})
	}
	if len(text) > model.MaxCommentLength {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "comment cannot exceed 1000 characters"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Poems.GetByID(ctx, poemID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "poem not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create comment failed"})
	}

	comment := model.Comment{PoemID: poemID, Text: text}
	if id, ok := middleware.CurrentIdentity(c); ok && !id.IsSentinelAdmin() {
		uid := id.ID
		comment.UserID = &uid
	}
	if err := h.Comments.Create(ctx, &comment); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create comment failed"})
	}
	return c.JSON(http.StatusCreated, comment)
}

// Delete handles DELETE /api/poems/comments/:id. Only the comment's author
// or an admin may delete it.
func (h *CommentHandler) Delete(c echo.Context) error {
	commentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	comment, err := h.Comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "comment not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete comment failed"})
	}
	isAuthor := comment.UserID != nil && *comment.UserID == id.ID
	if !isAuthor && !id.IsAdmin() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not authorized to delete this comment"})
	}
	if err := h.Comments.Delete(ctx, commentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "comment not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete comment failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "comment deleted successfully"})
}
