package model

import "time"

// Poem mirrors the `poems` table. Slug is unique, derived from the title and
// re-derived whenever the title changes. Views and Likes are monotonic
// counters incremented only through atomic UPDATE statements; nothing in the
// application ever decrements them.
type Poem struct {
	ID        uint64    `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Featured  bool      `json:"featured"`
	Views     uint64    `json:"views"`
	Likes     uint64    `json:"likes"`
	Thumbnail *string   `json:"thumbnail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PoemSummary is the trimmed shape embedded in related-poem suggestions and
// favorite listings: enough to render a card, nothing more.
type PoemSummary struct {
	ID        uint64   `json:"id"`
	Title     string   `json:"title"`
	Slug      string   `json:"slug"`
	Tags      []string `json:"tags"`
	Featured  bool     `json:"featured"`
	Thumbnail *string  `json:"thumbnail,omitempty"`
}
