package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pgpoetry/poetry-api/internal/repository"
)

// FeedHandler serves the RSS 2.0 feed of all published poems.
type FeedHandler struct {
	Poems   *repository.PoemRepo
	SiteURL string
}

func NewFeedHandler(poems *repository.PoemRepo, siteURL string) *FeedHandler {
	return &FeedHandler{Poems: poems, SiteURL: strings.TrimRight(siteURL, "/")}
}

// RSS handles GET /api/poems/rss. Descriptions are truncated to 200
// characters, matching what the site renders in feed readers.
func (h *FeedHandler) RSS(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	poems, err := h.Poems.List(ctx)
	if err != nil {
		return c.String(http.StatusInternalServerError, "error generating RSS feed")
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<rss version="2.0"><channel><title>PGPoetry RSS</title><link>`)
	b.WriteString(h.SiteURL)
	b.WriteString(`/</link><description>Latest poems from PGPoetry</description>`)
	for _, p := range poems {
		desc := p.Content
		if len(desc) > 200 {
			desc = desc[:200]
		}
		b.WriteString("<item><title>")
		b.WriteString(xmlEscape(p.Title))
		b.WriteString("</title><link>")
		b.WriteString(h.SiteURL + "/poem/" + p.Slug)
		b.WriteString("</link><description>")
		b.WriteString(xmlEscape(desc))
		b.WriteString("</description><pubDate>")
		b.WriteString(p.CreatedAt.UTC().Format(time.RFC1123))
		b.WriteString("</pubDate></item>")
	}
	b.WriteString("</channel></rss>")
	return c.Blob(http.StatusOK, "application/rss+xml", []byte(b.String()))
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string { return xmlEscaper.Replace(s) }
