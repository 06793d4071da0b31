package model

import "time"

// Roles stored in users.role. The admin role also exists outside the table as
// the out-of-band admin identity; see the auth package.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User mirrors the `users` table. A user holds at most one active refresh
// token at a time: RefreshTokenHash stores the SHA-256 hex digest of the
// current token, or is nil when the user is logged out. Rotation overwrites
// the field, never appends.
type User struct {
	ID               uint64    // users.id
	Username         string    // users.username (unique)
	Email            string    // users.email (unique)
	PasswordHash     string    // users.password_hash (bcrypt)
	Role             string    // users.role ("user" | "admin")
	RefreshTokenHash *string   // users.refresh_token_hash (nullable)
	CreatedAt        time.Time // users.created_at
	UpdatedAt        time.Time // users.updated_at
}
