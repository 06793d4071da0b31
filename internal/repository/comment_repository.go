package repository

import (
	"context"
	"database/sql"

	"github.com/pgpoetry/poetry-api/internal/model"
)

// CommentRepo persists comments. Author fields come from a LEFT JOIN on
// users so anonymous comments scan with NULL author columns.
type CommentRepo struct{ DB *sql.DB }

func NewCommentRepo(db *sql.DB) *CommentRepo { return &CommentRepo{DB: db} }

// ListByPoem returns a poem's comments, newest first, with author username
// and role attached when the comment is not anonymous.
func (r *CommentRepo) ListByPoem(ctx context.Context, poemID uint64) ([]model.Comment, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT c.id, c.poem_id, c.user_id, c.text, c.created_at, u.username, u.role "+
			"FROM comments c LEFT JOIN users u ON u.id = c.user_id "+
			"WHERE c.poem_id=? ORDER BY c.created_at DESC",
		poemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Create inserts a comment and fills in its id and created_at.
func (r *CommentRepo) Create(ctx context.Context, c *model.Comment) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO comments (poem_id, user_id, text) VALUES (?,?,?)",
		c.PoemID, c.UserID, c.Text)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	got, err := r.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	*c = got
	return nil
}

// GetByID fetches one comment with author fields.
func (r *CommentRepo) GetByID(ctx context.Context, id uint64) (model.Comment, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT c.id, c.poem_id, c.user_id, c.text, c.created_at, u.username, u.role "+
			"FROM comments c LEFT JOIN users u ON u.id = c.user_id "+
			"WHERE c.id=? LIMIT 1",
		id)
	c, err := scanComment(row)
	if err == sql.ErrNoRows {
		return model.Comment{}, ErrNotFound
	}
	return c, err
}

// Delete removes a comment.
func (r *CommentRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM comments WHERE id=?", id)
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

func scanComment(row rowScanner) (model.Comment, error) {
	var (
		c        model.Comment
		userID   sql.NullInt64
		username sql.NullString
		role     sql.NullString
	)
	if err := row.Scan(&c.ID, &c.PoemID, &userID, &c.Text, &c.CreatedAt, &username, &role); err != nil {
		return model.Comment{}, err
	}
	if userID.Valid {
		uid := uint64(userID.Int64)
		c.UserID = &uid
	}
	if username.Valid {
		c.AuthorUsername = &username.String
	}
	if role.Valid {
		c.AuthorRole = &role.String
	}
	return c, nil
}
