package auth

import "github.com/pgpoetry/poetry-api/internal/model"

// AdminID is the sentinel subject id of the out-of-band admin identity. The
// users table starts its AUTO_INCREMENT at 1, so 0 can never collide with a
// real row.
const AdminID uint64 = 0

// Identity is the resolved caller of a request. Regular users carry their
// database id; the single configured admin carries AdminID and exists in no
// table. Handlers must branch on ID == AdminID (or IsAdmin) instead of
// assuming a persisted user.
type Identity struct {
	ID       uint64
	Username string
	Role     string
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool { return i.Role == model.RoleAdmin }

// IsSentinelAdmin reports whether the identity is the out-of-band admin
// rather than a database-backed user with the admin role.
func (i Identity) IsSentinelAdmin() bool { return i.ID == AdminID }

// AdminIdentity synthesizes the identity for the configured admin username.
func AdminIdentity(username string) Identity {
	return Identity{ID: AdminID, Username: username, Role: model.RoleAdmin}
}
