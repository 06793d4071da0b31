package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/labstack/echo/v4"

	"github.com/pgpoetry/poetry-api/internal/model"
	"github.com/pgpoetry/poetry-api/internal/queue"
	"github.com/pgpoetry/poetry-api/internal/repository"
)

// slugPattern is the only shape of slug the API will ever query storage
// with; anything else is rejected before touching the database.
var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

const relatedPoemLimit = 5

// PoemHandler bundles dependencies for poem endpoints. LikeLimiter is the
// per-IP bucket consulted inside the like handler (not as route middleware),
// because a throttled like must answer with a success-shaped body.
// PublishEvents gates the AMQP publisher so broker-less deployments stay
// quiet.
type PoemHandler struct {
	Poems         *repository.PoemRepo
	LikeLimiter   interface{ Allow(key string) bool }
	PublishEvents bool
}

func NewPoemHandler(poems *repository.PoemRepo, likeLimiter interface{ Allow(key string) bool }, publishEvents bool) *PoemHandler {
	return &PoemHandler{Poems: poems, LikeLimiter: likeLimiter, PublishEvents: publishEvents}
}

type poemReq struct {
	Title     *string  `json:"title"`
	Content   *string  `json:"content"`
	Tags      []string `json:"tags"`
	Featured  *bool    `json:"featured"`
	Thumbnail *string  `json:"thumbnail"`
}

type poemWithRelated struct {
	model.Poem
	RelatedPoems []model.PoemSummary `json:"relatedPoems"`
}

// List handles GET /api/poems and returns all poems, newest first.
func (h *PoemHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	poems, err := h.Poems.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "fetch poems failed"})
	}
	return c.JSON(http.StatusOK, poems)
}

// GetBySlug handles GET /api/poems/:slug. The fetch and the view-counter
// increment are one atomic storage operation; a miss increments nothing.
func (h *PoemHandler) GetBySlug(c echo.Context) error {
	s := c.Param("slug")
	if !slugPattern.MatchString(s) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid poem slug"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	poem, err := h.Poems.ViewBySlug(ctx, s)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "poem not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "fetch poem failed"})
	}

	related, err := h.Poems.Related(ctx, poem, relatedPoemLimit)
	if err != nil {
		// Suggestions are best-effort; the poem itself already registered its view.
		log.Printf("related poems query failed for %q: %v", s, err)
		related = []model.PoemSummary{}
	}
	return c.JSON(http.StatusOK, poemWithRelated{Poem: poem, RelatedPoems: related})
}

// GetByID handles GET /api/poems/id/:id (admin), used by the dashboard's
// edit form. It does not touch the view counter.
func (h *PoemHandler) GetByID(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	poem, err := h.Poems.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "poem not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "fetch poem failed"})
	}
	return c.JSON(http.StatusOK, poem)
}

// Create handles POST /api/poems (admin). The slug is derived from the title;
// title uniqueness is enforced transitively through slug uniqueness.
func (h *PoemHandler) Create(c echo.Context) error {
	var req poemReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	title := strings.TrimSpace(deref(req.Title))
	content := strings.TrimSpace(deref(req.Content))
	if title == "" || content == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title and content are required"})
	}
	if len(title) > 200 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title cannot exceed 200 characters"})
	}

	poem := model.Poem{
		Title:    title,
		Slug:     slug.Make(title),
		Content:  content,
		Tags:     normalizeTags(req.Tags),
		Featured: req.Featured != nil && *req.Featured,
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Poems.Create(ctx, &poem); err != nil {
		if errors.Is(err, repository.ErrDuplicateSlug) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "a poem with this title already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create poem failed"})
	}
	created, err := h.Poems.GetByID(ctx, poem.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create poem failed"})
	}
	return c.JSON(http.StatusCreated, created)
}

// Update handles PUT /api/poems/:id (admin). Only supplied fields change; a
// title change re-derives the slug and re-checks for collision.
func (h *PoemHandler) Update(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req poemReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	poem, err := h.Poems.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "poem not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "fetch poem failed"})
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "title cannot be empty"})
		}
		if len(title) > 200 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "title cannot exceed 200 characters"})
		}
		poem.Title = title
		poem.Slug = slug.Make(title)
	}
	if req.Content != nil {
		poem.Content = strings.TrimSpace(*req.Content)
	}
	if req.Tags != nil {
		poem.Tags = normalizeTags(req.Tags)
	}
	if req.Featured != nil {
		poem.Featured = *req.Featured
	}
	if req.Thumbnail != nil {
		poem.Thumbnail = req.Thumbnail
	}

	if err := h.Poems.Update(ctx, &poem); err != nil {
		if errors.Is(err, repository.ErrDuplicateSlug) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "a poem with this title already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update poem failed"})
	}
	updated, err := h.Poems.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update poem failed"})
	}
	return c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /api/poems/:id (admin). Hard delete; dependent
// comments and favorites go with the poem via FK cascade.
func (h *PoemHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Poems.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "poem not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete poem failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "poem deleted successfully"})
}

// Like handles POST /api/poems/:id/like, public and rate limited per IP.
// A throttled request deliberately answers with a success-shaped body so the
// client UI never shows a spurious failure; the event is still logged and
// published for observability.
func (h *PoemHandler) Like(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if !h.LikeLimiter.Allow(ip) {
		likes, err := h.Poems.Likes(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "poem not found"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "like poem failed"})
		}
		log.Printf("like throttled: poem_id=%d ip=%s", id, ip)
		h.publish(queue.PoemEvent{Kind: queue.KindLikeThrottled, PoemID: id, ClientIP: ip})
		return c.JSON(http.StatusOK, echo.Map{"likes": likes, "throttled": true})
	}

	likes, err := h.Poems.Like(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "poem not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "like poem failed"})
	}
	h.publish(queue.PoemEvent{Kind: queue.KindPoemLiked, PoemID: id, Likes: likes, ClientIP: ip})
	return c.JSON(http.StatusOK, echo.Map{"likes": likes})
}

// TopLiked handles GET /api/poems/analytics/top-liked (admin).
func (h *PoemHandler) TopLiked(c echo.Context) error {
	return h.top(c, h.Poems.TopLiked)
}

// TopViewed handles GET /api/poems/analytics/top-viewed (admin).
func (h *PoemHandler) TopViewed(c echo.Context) error {
	return h.top(c, h.Poems.TopViewed)
}

func (h *PoemHandler) top(c echo.Context, query func(context.Context, int) ([]model.Poem, error)) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	poems, err := query(ctx, 10)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "fetch analytics failed"})
	}
	return c.JSON(http.StatusOK, poems)
}

// publish fires a poem event at the broker without blocking the response.
func (h *PoemHandler) publish(ev queue.PoemEvent) {
	if !h.PublishEvents {
		return
	}
	ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue.Publish(ctx, ev)
	}()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// normalizeTags trims, lowercases and drops empty tags.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
