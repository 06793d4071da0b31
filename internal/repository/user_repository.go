package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pgpoetry/poetry-api/internal/auth"
	"github.com/pgpoetry/poetry-api/internal/model"
)

// UserRepo persists users together with their single active refresh token.
// The refresh token lives in the refresh_token_hash column of the user row,
// so rotation and revocation are single-field writes. The conditional
// UPDATEs below are the atomic compare-and-swap the rotation contract
// requires: two concurrent refreshes with the same old token cannot both
// succeed.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user with a bcrypt-hashed password and returns its ID.
func (r *UserRepo) Create(ctx context.Context, username, email, password string, cost int) (uint64, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := auth.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role) VALUES (?,?,?,?)",
		username, email, hash, model.RoleUser)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "1062") {
			if strings.Contains(msg, "email") {
				return 0, ErrEmailExists
			}
			return 0, ErrUsernameExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByUsername fetches a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return r.get(ctx,
		"SELECT id,username,email,password_hash,role,refresh_token_hash,created_at,updated_at FROM users WHERE username=? LIMIT 1",
		strings.TrimSpace(username))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.get(ctx,
		"SELECT id,username,email,password_hash,role,refresh_token_hash,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id)
}

func (r *UserRepo) get(ctx context.Context, query string, arg interface{}) (model.User, error) {
	var (
		u    model.User
		hash sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &hash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if hash.Valid {
		u.RefreshTokenHash = &hash.String
	}
	return u, nil
}

// StoreRefresh unconditionally overwrites the user's stored refresh token
// hash. Used by login and register, where any previously issued refresh
// token is invalidated by design.
func (r *UserRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token_hash=? WHERE id=?",
		tokenHash, userID)
	if err != nil {
		return err
	}
	return requireMatch(res)
}

// RotateRefresh swaps the stored hash from oldHash to newHash in one
// conditional UPDATE. If the stored value is no longer oldHash (a newer
// token was already issued, or the user logged out) no row matches and
// ErrInvalidRefresh is returned.
func (r *UserRepo) RotateRefresh(ctx context.Context, userID uint64, oldHash, newHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token_hash=? WHERE id=? AND refresh_token_hash=?",
		newHash, userID, oldHash)
	if err != nil {
		return err
	}
	return requireMatch(res)
}

// ClearRefresh revokes the stored refresh token iff it still matches the
// presented hash, making the token permanently unusable.
func (r *UserRepo) ClearRefresh(ctx context.Context, userID uint64, tokenHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token_hash=NULL WHERE id=? AND refresh_token_hash=?",
		userID, tokenHash)
	if err != nil {
		return err
	}
	return requireMatch(res)
}

// requireMatch converts a zero-row UPDATE into ErrInvalidRefresh. MySQL
// reports affected rows as changed rows by default, so an UPDATE that writes
// the value already present could report 0; the rotation statements always
// write a different value (fresh random hash or NULL), so 0 here can only
// mean the WHERE clause did not match.
func requireMatch(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidRefresh
	}
	return nil
}
