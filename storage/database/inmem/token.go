package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/academia/core/auth"
)

type tokenStore struct {
	mutex    sync.Mutex
	sessions map[string]auth.Session
	revoked  map[string]time.Time // {jti: until}
	now      func() time.Time
}

var _ auth.TokenStore = (*tokenStore)(nil) // interface compliance check

func NewTokenStore() *tokenStore {
	return &tokenStore{
		sessions: make(map[string]auth.Session),
		revoked:  make(map[string]time.Time),
		now:      func() time.Time { return auth.NowFunc() },
	}
}

func (s *tokenStore) SaveSession(ctx context.Context, sess auth.Session) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *tokenStore) GetSession(ctx context.Context, id string) (auth.Session, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return auth.Session{}, auth.ErrSessionNotFound
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, id)
		return auth.Session{}, auth.ErrSessionNotFound
	}
	return sess, nil
}

func (s *tokenStore) RotateSession(ctx context.Context, id, tokenHash string, at time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sess, ok := s.sessions[id]
	if !ok || !s.now().Before(sess.ExpiresAt) {
		return auth.ErrSessionNotFound
	}
	if sess.Rotated() || sess.TokenHash != tokenHash {
		return auth.ErrRefreshTokenReused
	}
	sess.RotatedAt = at
	s.sessions[id] = sess
	return nil
}

func (s *tokenStore) DeleteSession(ctx context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *tokenStore) DeleteFamily(ctx context.Context, familyID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for id, sess := range s.sessions {
		if sess.FamilyID == familyID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *tokenStore) RevokeAccess(ctx context.Context, jti string, until time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.revoked[jti] = until
	return nil
}

func (s *tokenStore) IsAccessRevoked(ctx context.Context, jti string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	until, ok := s.revoked[jti]
	if !ok {
		return false, nil
	}
	if s.now().After(until) {
		delete(s.revoked, jti)
		return false, nil
	}
	return true, nil
}

// Sessions returns the stored sessions of a family.
func (s *tokenStore) Sessions(familyID string) []auth.Session {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var res []auth.Session
	for _, sess := range s.sessions {
		if sess.FamilyID == familyID {
			res = append(res, sess)
		}
	}
	return res
}
