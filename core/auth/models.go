package auth

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/user"
)

var (
	// errors
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountDeactivated   = errors.New("account deactivated")
	ErrRefreshExpired       = errors.New("refresh has expired")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrRefreshTokenReused   = errors.New("refresh token reused")
	ErrSessionNotFound      = errors.New("session not found")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsStudent    bool     `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsTeacher    bool     `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	IsAdmin      bool     `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
	Roles        []string `json:"roles,omitempty"`
	SessionID    string   `json:"sid,omitempty"`
}

// Valid checks the time based claims against NowFunc rather than jwt.TimeFunc.
func (c Claims) Valid() error {
	now := NowFunc().Unix()
	vErr := new(jwt.ValidationError)
	if !c.VerifyExpiresAt(now, false) {
		vErr.Inner = errors.New("token is expired")
		vErr.Errors |= jwt.ValidationErrorExpired
	}
	if !c.VerifyIssuedAt(now, false) {
		vErr.Inner = errors.New("token used before issued")
		vErr.Errors |= jwt.ValidationErrorIssuedAt
	}
	if !c.VerifyNotBefore(now, false) {
		vErr.Inner = errors.New("token is not valid yet")
		vErr.Errors |= jwt.ValidationErrorNotValidYet
	}
	if vErr.Errors != 0 {
		return vErr
	}
	return nil
}

func (c Claims) ExpiresAtTime() time.Time {
	return time.Unix(c.ExpiresAt, 0).UTC()
}

func newClaims(usr user.User, now, origIat time.Time, ttl time.Duration) *Claims {
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   usr.ID,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: origIat.Unix(),
		Username:     usr.Username,
		Email:        usr.Email,
		IsStudent:    usr.IsStudent(),
		IsTeacher:    usr.IsTeacher(),
		IsAdmin:      usr.IsAdmin(),
		Roles:        usr.Roles,
	}
}

// Session is the server side state of a refresh token.
// Rotated sessions are kept until they expire so that their reuse can be detected.
type Session struct {
	ID           string    `msgpack:"id"`
	UserID       string    `msgpack:"uid"`
	FamilyID     string    `msgpack:"fid"`
	TokenHash    string    `msgpack:"hash"`
	IssuedAt     time.Time `msgpack:"iat"`
	ExpiresAt    time.Time `msgpack:"exp"`
	OrigIssuedAt time.Time `msgpack:"oriat"`
	RotatedAt    time.Time `msgpack:"rot"`
}

func (s Session) Rotated() bool {
	return !s.RotatedAt.IsZero()
}

type TokenPair struct {
	AccessToken      string    `json:"token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenStore keeps refresh sessions & revoked access tokens.
type TokenStore interface {
	// SaveSession stores s until its ExpiresAt.
	SaveSession(ctx context.Context, s Session) error
	// GetSession returns ErrSessionNotFound for unknown or expired sessions.
	GetSession(ctx context.Context, id string) (Session, error)
	// RotateSession marks the session rotated at the given time, in one atomic step.
	// It returns ErrSessionNotFound for unknown or expired sessions,
	// and ErrRefreshTokenReused when the session was already rotated or holds another token hash.
	RotateSession(ctx context.Context, id, tokenHash string, at time.Time) error
	DeleteSession(ctx context.Context, id string) error
	DeleteFamily(ctx context.Context, familyID string) error
	// RevokeAccess denies the access token jti until it expires.
	RevokeAccess(ctx context.Context, jti string, until time.Time) error
	IsAccessRevoked(ctx context.Context, jti string) (bool, error)
}
