package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

const refreshSecretLen = 32

var (
	SigningMethod = jwt.SigningMethodHS256
	NowFunc       = time.Now // mockable
)

// TokenService issues, refreshes & checks JWTs.
type TokenService struct {
	users      user.ServiceInterface
	store      TokenStore
	signingKey []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	maxAge     time.Duration
}

func NewTokenService(users user.ServiceInterface, store TokenStore, conf *core.Config) *TokenService {
	return &TokenService{
		users:      users,
		store:      store,
		signingKey: []byte(conf.SecretKey),
		issuer:     conf.AppName,
		audience:   conf.Server.JWTAudience,
		accessTTL:  conf.Server.JWTExpirationDelta,
		refreshTTL: conf.Server.JWTRefreshExpirationDelta,
		maxAge:     conf.Server.JWTRefreshMaxAge,
	}
}

// SigningKey is used by the HTTP middleware to verify access tokens.
func (svc *TokenService) SigningKey() []byte { return svc.signingKey }

func (svc *TokenService) Audience() string { return svc.audience }

// Login authenticates a user by username or email and opens a new session family.
func (svc *TokenService) Login(ctx context.Context, uname, pwd string) (TokenPair, user.User, error) {
	usr, err := svc.users.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if core.IsNotFound(err) {
			return TokenPair{}, user.User{}, ErrAuthenticationFailed
		}
		return TokenPair{}, user.User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return TokenPair{}, user.User{}, ErrAuthenticationFailed
	}
	if !usr.Active() {
		return TokenPair{}, user.User{}, ErrAccountDeactivated
	}

	usr, err = svc.users.SetLastLogin(ctx, usr)
	if err != nil {
		return TokenPair{}, user.User{}, errors.Wrap(err, "setting lastLogin")
	}
	pair, err := svc.Issue(ctx, usr, time.Time{})
	if err != nil {
		return TokenPair{}, user.User{}, err
	}
	return pair, usr, nil
}

// Issue signs an access token and opens a new refresh session family for usr.
// A zero origIat means now.
func (svc *TokenService) Issue(ctx context.Context, usr user.User, origIat time.Time) (TokenPair, error) {
	return svc.issue(ctx, usr, uuid.NewString(), origIat)
}

func (svc *TokenService) issue(ctx context.Context, usr user.User, familyID string, origIat time.Time) (TokenPair, error) {
	now := NowFunc().UTC()
	if origIat.IsZero() {
		origIat = now
	}

	secret := make([]byte, refreshSecretLen)
	if _, err := rand.Read(secret); err != nil {
		return TokenPair{}, errors.Wrap(err, "generating refresh secret")
	}
	encSecret := base64.RawURLEncoding.EncodeToString(secret)

	sess := Session{
		ID:           uuid.NewString(),
		UserID:       usr.ID,
		FamilyID:     familyID,
		TokenHash:    hashSecret(encSecret),
		IssuedAt:     now,
		ExpiresAt:    now.Add(svc.refreshTTL),
		OrigIssuedAt: origIat.UTC(),
	}
	if err := svc.store.SaveSession(ctx, sess); err != nil {
		return TokenPair{}, errors.Wrap(err, "saving session")
	}

	claims := newClaims(usr, now, origIat, svc.accessTTL)
	claims.Id = uuid.NewString()
	claims.Issuer = svc.issuer
	claims.Audience = svc.audience
	claims.SessionID = sess.ID

	token, err := svc.GenerateToken(claims)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      token,
		RefreshToken:     sess.ID + "." + encSecret,
		AccessExpiresAt:  claims.ExpiresAtTime(),
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (svc *TokenService) GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(SigningMethod, claims)
	ss, err := token.SignedString(svc.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// ParseAccessToken verifies the signature, expiry & audience of an access token.
func (svc *TokenService) ParseAccessToken(tokenStr string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != SigningMethod.Alg() {
			return nil, errors.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return svc.signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !claims.VerifyAudience(svc.audience, true) {
		return nil, errors.New("invalid audience")
	}
	return claims, nil
}

// ParseRefreshToken splits a refresh token into its session ID and secret.
func ParseRefreshToken(token string) (sessionID, secret string, err error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidRefreshToken
	}
	if _, err := uuid.Parse(parts[0]); err != nil {
		return "", "", ErrInvalidRefreshToken
	}
	return parts[0], parts[1], nil
}

// Refresh rotates a refresh token: its session is marked rotated and a new session of the same family is issued.
// Presenting a rotated or forged token of a known session ends the whole family.
func (svc *TokenService) Refresh(ctx context.Context, refreshToken string) (TokenPair, user.User, error) {
	sid, secret, err := ParseRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, user.User{}, err
	}

	sess, err := svc.store.GetSession(ctx, sid)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return TokenPair{}, user.User{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, user.User{}, errors.Wrap(err, "getting session")
	}

	if sess.Rotated() || subtle.ConstantTimeCompare([]byte(hashSecret(secret)), []byte(sess.TokenHash)) == 0 {
		if err := svc.store.DeleteFamily(ctx, sess.FamilyID); err != nil {
			return TokenPair{}, user.User{}, errors.Wrap(err, "deleting session family")
		}
		return TokenPair{}, user.User{}, ErrRefreshTokenReused
	}

	now := NowFunc().UTC()
	if !now.Before(sess.ExpiresAt) {
		_ = svc.store.DeleteSession(ctx, sess.ID)
		return TokenPair{}, user.User{}, ErrInvalidRefreshToken
	}
	// check if refresh has not expired
	if now.After(sess.OrigIssuedAt.Add(svc.maxAge)) {
		_ = svc.store.DeleteFamily(ctx, sess.FamilyID)
		return TokenPair{}, user.User{}, ErrRefreshExpired
	}

	usr, err := svc.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if core.IsNotFound(err) {
			_ = svc.store.DeleteFamily(ctx, sess.FamilyID)
			return TokenPair{}, user.User{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.Active() {
		_ = svc.store.DeleteFamily(ctx, sess.FamilyID)
		return TokenPair{}, user.User{}, ErrAccountDeactivated
	}

	// only one refresh of a given token may get past this point
	if err := svc.store.RotateSession(ctx, sess.ID, sess.TokenHash, now); err != nil {
		switch errors.Cause(err) {
		case ErrRefreshTokenReused:
			if err := svc.store.DeleteFamily(ctx, sess.FamilyID); err != nil {
				return TokenPair{}, user.User{}, errors.Wrap(err, "deleting session family")
			}
			return TokenPair{}, user.User{}, ErrRefreshTokenReused
		case ErrSessionNotFound:
			return TokenPair{}, user.User{}, ErrInvalidRefreshToken
		default:
			return TokenPair{}, user.User{}, errors.Wrap(err, "rotating session")
		}
	}

	pair, err := svc.issue(ctx, usr, sess.FamilyID, sess.OrigIssuedAt)
	if err != nil {
		return TokenPair{}, user.User{}, err
	}
	return pair, usr, nil
}

// IsRevoked reports whether the access token jti was revoked by a logout.
func (svc *TokenService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	return svc.store.IsAccessRevoked(ctx, jti)
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// LogoutService ends sessions.
type LogoutService struct {
	store TokenStore
}

func NewLogoutService(store TokenStore) *LogoutService {
	return &LogoutService{store: store}
}

// Logout revokes the access token described by claims and ends its refresh session,
// or every session of its family when all is set. A refresh token, when given, is ended too.
func (svc *LogoutService) Logout(ctx context.Context, claims Claims, refreshToken string, all bool) error {
	if claims.Id != "" {
		if err := svc.store.RevokeAccess(ctx, claims.Id, claims.ExpiresAtTime()); err != nil {
			return errors.Wrap(err, "revoking access token")
		}
	}

	sessionIDs := make([]string, 0, 2)
	if claims.SessionID != "" {
		sessionIDs = append(sessionIDs, claims.SessionID)
	}
	if sid, _, err := ParseRefreshToken(refreshToken); err == nil && sid != claims.SessionID {
		sessionIDs = append(sessionIDs, sid)
	}

	for _, sid := range sessionIDs {
		sess, err := svc.store.GetSession(ctx, sid)
		if err != nil {
			if errors.Cause(err) == ErrSessionNotFound {
				continue
			}
			return errors.Wrap(err, "getting session")
		}
		// a refresh token of another user cannot end their sessions
		if sess.UserID != claims.Subject {
			continue
		}
		if all {
			err = svc.store.DeleteFamily(ctx, sess.FamilyID)
		} else {
			err = svc.store.DeleteSession(ctx, sess.ID)
		}
		if err != nil {
			return errors.Wrap(err, "deleting session")
		}
	}
	return nil
}
