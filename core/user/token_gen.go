package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	salt    = []byte("academia.core.user.token_gen")
	NowFunc = time.Now // mockable

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

// decodeUID base64 decodes given UID
func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// TokenGenerator makes & verifies password reset tokens of the form `<issue hour, base 36>-<signature>`.
// A token dies after timeout, or as soon as the user changes password or logs in.
type TokenGenerator struct {
	key     []byte
	timeout time.Duration
}

func NewTokenGenerator(secretKey string, timeout time.Duration) TokenGenerator {
	key := sha256.Sum256(append(append([]byte{}, salt...), secretKey...))
	return TokenGenerator{key: key[:], timeout: timeout}
}

// MakeToken generates a password reset token for a given User.
func (tg TokenGenerator) MakeToken(usr User) string {
	return tg.tokenAt(usr, hoursSinceEpoch(NowFunc()))
}

// VerifyToken checks that a password reset token for a given User is valid.
func (tg TokenGenerator) VerifyToken(usr User, token string) error {
	i := strings.IndexByte(token, '-')
	if i <= 0 {
		return errInvalidToken
	}
	issued, err := strconv.ParseInt(token[:i], 36, 64)
	if err != nil || issued < 0 {
		return errInvalidToken
	}

	// check that token has not been tampered with
	if subtle.ConstantTimeCompare([]byte(tg.tokenAt(usr, issued)), []byte(token)) == 0 {
		return errInvalidToken
	}

	if time.Duration(hoursSinceEpoch(NowFunc())-issued)*time.Hour > tg.timeout {
		return errTokenExpired
	}
	return nil
}

func (tg TokenGenerator) tokenAt(usr User, hour int64) string {
	ts := strconv.FormatInt(hour, 36)
	return ts + "-" + tg.sign(usr, ts)
}

// sign covers the password hash and the last login so that using either invalidates older tokens.
func (tg TokenGenerator) sign(usr User, ts string) string {
	h := hmac.New(sha256.New, tg.key)
	h.Write([]byte(usr.ID))
	h.Write(usr.PasswordHash)
	if !usr.LastLogin.IsZero() {
		h.Write([]byte(strconv.FormatInt(usr.LastLogin.Unix(), 10)))
	}
	h.Write([]byte(ts))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func hoursSinceEpoch(t time.Time) int64 {
	return t.Unix() / 3600
}
