package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification: bad
// signature, wrong signing method, malformed claims or expiry.
var ErrInvalidToken = errors.New("invalid token")

// TokenPair is what every successful register/login/refresh returns.
type TokenPair struct {
	AccessToken    string    `json:"accessToken"`
	AccessExpires  time.Time `json:"accessExpires"`
	RefreshToken   string    `json:"refreshToken"`
	RefreshExpires time.Time `json:"refreshExpires"`
}

// TokenService mints and verifies the two classes of signed tokens. Access
// tokens are short-lived and fully stateless. Refresh tokens are long-lived
// JWTs whose SHA-256 hash is additionally persisted on the user row, so that
// rotation and logout can revoke them before natural expiry.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService builds a TokenService from the signing secret and the
// configured TTLs (minutes for access, days for refresh).
func NewTokenService(secret string, accessTTLMin, refreshTTLDays int) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  time.Duration(accessTTLMin) * time.Minute,
		refreshTTL: time.Duration(refreshTTLDays) * 24 * time.Hour,
	}
}

// IssueAccessToken signs an HS256 JWT carrying the identity's subject id,
// role and username.
func (s *TokenService) IssueAccessToken(id Identity) (string, time.Time, error) {
	exp := time.Now().UTC().Add(s.accessTTL)
	claims := jwt.MapClaims{
		"sub":      id.ID,
		"role":     id.Role,
		"username": id.Username,
		"exp":      exp.Unix(),
		"iat":      time.Now().UTC().Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a long-lived HS256 JWT carrying only the subject id.
func (s *TokenService) IssueRefreshToken(id Identity) (string, time.Time, error) {
	exp := time.Now().UTC().Add(s.refreshTTL)
	claims := jwt.MapClaims{
		"sub": id.ID,
		"exp": exp.Unix(),
		"iat": time.Now().UTC().Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssuePair mints a fresh access/refresh pair for the identity.
func (s *TokenService) IssuePair(id Identity) (TokenPair, error) {
	access, accessExp, err := s.IssueAccessToken(id)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(id)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:    access,
		AccessExpires:  accessExp,
		RefreshToken:   refresh,
		RefreshExpires: refreshExp,
	}, nil
}

// VerifyAccess parses and validates an access token and returns the identity
// encoded in its claims. The identity is NOT resolved against the database
// here; the auth middleware does that for non-admin subjects.
func (s *TokenService) VerifyAccess(token string) (Identity, error) {
	claims, err := s.parse(token)
	if err != nil {
		return Identity{}, err
	}
	sub, ok := subjectID(claims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return Identity{}, ErrInvalidToken
	}
	username, _ := claims["username"].(string)
	return Identity{ID: sub, Username: username, Role: role}, nil
}

// VerifyRefresh parses and validates a refresh token and returns its subject
// id. Matching against the persisted hash is the caller's job.
func (s *TokenService) VerifyRefresh(token string) (uint64, error) {
	claims, err := s.parse(token)
	if err != nil {
		return 0, err
	}
	sub, ok := subjectID(claims)
	if !ok {
		return 0, ErrInvalidToken
	}
	return sub, nil
}

func (s *TokenService) parse(token string) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		// Reject tokens signed with anything but HMAC.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// subjectID extracts the numeric subject claim. JWT numbers decode as
// float64; some issuers encode the subject as a decimal string instead.
func subjectID(claims jwt.MapClaims) (uint64, bool) {
	switch v := claims["sub"].(type) {
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// HashRefresh returns the SHA-256 hex digest of a refresh token. Only this
// digest is persisted, so a leaked database row cannot be replayed as a
// session.
func HashRefresh(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
