package model

import "time"

// Favorite mirrors the `favorites` table, a join entity between users and
// poems. The table carries a UNIQUE(user_id, poem_id) index so a second
// insert of the same pair fails instead of duplicating.
type Favorite struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"userId"`
	PoemID    uint64    `json:"poemId"`
	CreatedAt time.Time `json:"createdAt"`
}
