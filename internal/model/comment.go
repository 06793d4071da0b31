package model

import "time"

// MaxCommentLength bounds comment text after trimming.
const MaxCommentLength = 1000

// Comment mirrors the `comments` table. UserID is nil for anonymous comments.
// AuthorUsername and AuthorRole are populated by a join when the comment has
// an author; they are not columns of the comments table itself.
type Comment struct {
	ID             uint64    `json:"id"`
	PoemID         uint64    `json:"poemId"`
	UserID         *uint64   `json:"userId,omitempty"`
	Text           string    `json:"text"`
	AuthorUsername *string   `json:"authorUsername,omitempty"`
	AuthorRole     *string   `json:"authorRole,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
