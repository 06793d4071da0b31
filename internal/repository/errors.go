// Package repository implements SQL data access for poems, users, comments
// and favorites. This file defines the sentinel errors shared across the
// repositories. Handlers translate these into the HTTP error taxonomy;
// raw driver errors never cross the handler boundary.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist. Handlers
// translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrDuplicateSlug is returned when creating or retitling a poem would
// collide with an existing slug. Handlers translate it into HTTP 409.
var ErrDuplicateSlug = errors.New("slug already exists")

// ErrUsernameExists and ErrEmailExists disambiguate the unique-key violation
// hit during registration. Both map to HTTP 409.
var (
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
)

// ErrDuplicateFavorite is returned when a (user, poem) pair is favorited a
// second time. The unique index enforces the at-most-once invariant; this
// error maps to HTTP 409.
var ErrDuplicateFavorite = errors.New("poem already favorited")

// ErrInvalidRefresh is returned when a presented refresh token does not match
// the single value currently stored for the user, which happens after the
// token has been rotated away or revoked. Handlers translate it into 401.
var ErrInvalidRefresh = errors.New("invalid refresh token")
