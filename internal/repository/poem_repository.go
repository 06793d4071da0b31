package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pgpoetry/poetry-api/internal/model"
)

// PoemRepo persists poems. The views and likes columns are only ever touched
// through the atomic UPDATE ... = ... + 1 statements below; no application
// code reads a counter and writes it back, so concurrent requests cannot lose
// increments.
type PoemRepo struct{ DB *sql.DB }

func NewPoemRepo(db *sql.DB) *PoemRepo { return &PoemRepo{DB: db} }

const poemColumns = "id,title,slug,content,tags,featured,views,likes,thumbnail,created_at,updated_at"

// List returns all poems, newest first.
func (r *PoemRepo) List(ctx context.Context) ([]model.Poem, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+poemColumns+" FROM poems ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPoems(rows)
}

// ViewBySlug registers a view and returns the poem: the counter bump is a
// single atomic UPDATE, and the row is read back only after the caller's own
// increment is applied. A miss performs no increment and returns ErrNotFound.
func (r *PoemRepo) ViewBySlug(ctx context.Context, slug string) (model.Poem, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE poems SET views=views+1 WHERE slug=?", slug)
	if err != nil {
		return model.Poem{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Poem{}, err
	}
	if n == 0 {
		return model.Poem{}, ErrNotFound
	}
	return r.getBy(ctx, "slug=?", slug)
}

// GetByID fetches a poem without touching its counters.
func (r *PoemRepo) GetByID(ctx context.Context, id uint64) (model.Poem, error) {
	return r.getBy(ctx, "id=?", id)
}

// Create inserts a poem. A slug collision surfaces as ErrDuplicateSlug.
func (r *PoemRepo) Create(ctx context.Context, p *model.Poem) error {
	tags, err := marshalTags(p.Tags)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO poems (title, slug, content, tags, featured) VALUES (?,?,?,?,?)",
		p.Title, p.Slug, p.Content, tags, p.Featured)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrDuplicateSlug
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// Update writes the mutable fields of a poem the handler has already loaded
// and patched. Retitling collisions surface as ErrDuplicateSlug.
func (r *PoemRepo) Update(ctx context.Context, p *model.Poem) error {
	tags, err := marshalTags(p.Tags)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"UPDATE poems SET title=?, slug=?, content=?, tags=?, featured=?, thumbnail=?, updated_at=NOW() WHERE id=?",
		p.Title, p.Slug, p.Content, tags, p.Featured, p.Thumbnail, p.ID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrDuplicateSlug
		}
		return err
	}
	return nil
}

// Delete removes a poem. Comments and favorites referencing it are removed
// by the ON DELETE CASCADE foreign keys.
func (r *PoemRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM poems WHERE id=?", id)
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

// Like atomically increments the like counter and returns the post-increment
// value. The LAST_INSERT_ID() trick makes increment-and-fetch a single
// logical operation; both statements run on one connection inside a
// transaction so the fetched value is exactly this caller's increment.
func (r *PoemRepo) Like(ctx context.Context, id uint64) (uint64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE poems SET likes = LAST_INSERT_ID(likes + 1) WHERE id=?", id)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	var likes uint64
	if err := tx.QueryRowContext(ctx, "SELECT LAST_INSERT_ID()").Scan(&likes); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return likes, nil
}

// Likes returns the current like count without incrementing, used for the
// neutral throttled response.
func (r *PoemRepo) Likes(ctx context.Context, id uint64) (uint64, error) {
	var likes uint64
	err := r.DB.QueryRowContext(ctx, "SELECT likes FROM poems WHERE id=?", id).Scan(&likes)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return likes, err
}

// Related returns up to limit other poems sharing at least one tag with p,
// most viewed first, then most recent.
func (r *PoemRepo) Related(ctx context.Context, p model.Poem, limit int) ([]model.PoemSummary, error) {
	if len(p.Tags) == 0 {
		return []model.PoemSummary{}, nil
	}
	tags, err := marshalTags(p.Tags)
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,title,slug,tags,featured,thumbnail FROM poems WHERE id<>? AND JSON_OVERLAPS(tags, CAST(? AS JSON)) ORDER BY views DESC, created_at DESC LIMIT ?",
		p.ID, tags, limit)
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

// TopLiked returns the limit most liked poems.
func (r *PoemRepo) TopLiked(ctx context.Context, limit int) ([]model.Poem, error) {
	return r.top(ctx, "likes", limit)
}

// TopViewed returns the limit most viewed poems.
func (r *PoemRepo) TopViewed(ctx context.Context, limit int) ([]model.Poem, error) {
	return r.top(ctx, "views", limit)
}

func (r *PoemRepo) top(ctx context.Context, column string, limit int) ([]model.Poem, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+poemColumns+" FROM poems ORDER BY "+column+" DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPoems(rows)
}

func (r *PoemRepo) getBy(ctx context.Context, where string, arg interface{}) (model.Poem, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+poemColumns+" FROM poems WHERE "+where+" LIMIT 1", arg)
	p, err := scanPoem(row)
	if err == sql.ErrNoRows {
		return model.Poem{}, ErrNotFound
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPoem(row rowScanner) (model.Poem, error) {
	var (
		p       model.Poem
		rawTags []byte
	)
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Content, &rawTags, &p.Featured,
		&p.Views, &p.Likes, &p.Thumbnail, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Poem{}, err
	}
	if p.Tags, err = unmarshalTags(rawTags); err != nil {
		return model.Poem{}, err
	}
	return p, nil
}

func scanPoems(rows *sql.Rows) ([]model.Poem, error) {
	out := []model.Poem{}
	for rows.Next() {
		p, err := scanPoem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Tags are stored as a JSON array in a TEXT column so that JSON_OVERLAPS can
// match them without a join table.
func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

func unmarshalTags(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}
