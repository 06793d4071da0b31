package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pgpoetry/poetry-api/internal/model"
)

// FavoriteRepo persists the (user, poem) join entity. The UNIQUE(user_id,
// poem_id) index makes Add idempotence-safe under races: of two concurrent
// inserts of the same pair exactly one succeeds, the other reports
// ErrDuplicateFavorite.
type FavoriteRepo struct{ DB *sql.DB }

func NewFavoriteRepo(db *sql.DB) *FavoriteRepo { return &FavoriteRepo{DB: db} }

// Add records a favorite. A duplicate pair surfaces as ErrDuplicateFavorite.
func (r *FavoriteRepo) Add(ctx context.Context, userID, poemID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO favorites (user_id, poem_id) VALUES (?,?)",
		userID, poemID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrDuplicateFavorite
		}
		return err
	}
	return nil
}

// Remove deletes a favorite; ErrNotFound when the pair was never favorited.
func (r *FavoriteRepo) Remove(ctx context.Context, userID, poemID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM favorites WHERE user_id=? AND poem_id=?",
		userID, poemID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Exists reports whether the user has favorited the poem.
func (r *FavoriteRepo) Exists(ctx context.Context, userID, poemID uint64) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM favorites WHERE user_id=? AND poem_id=? LIMIT 1",
		userID, poemID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListPoems returns the user's favorited poems, most recently favorited
// first, in the trimmed summary shape.
func (r *FavoriteRepo) ListPoems(ctx context.Context, userID uint64) ([]model.PoemSummary, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT p.id, p.title, p.slug, p.tags, p.featured, p.thumbnail "+
			"FROM favorites f JOIN poems p ON p.id = f.poem_id "+
			"WHERE f.user_id=? ORDER BY f.created_at DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.PoemSummary{}
	for rows.Next() {
		var (
			s       model.PoemSummary
			rawTags []byte
		)
		if err := rows.Scan(&s.ID, &s.Title, &s.Slug, &rawTags, &s.Featured, &s.Thumbnail); err != nil {
			return nil, err
		}
		if s.Tags, err = unmarshalTags(rawTags); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
