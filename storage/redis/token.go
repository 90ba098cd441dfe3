package redisstore

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/trezcool/academia/core/auth"
)

const (
	sessionPrefix = "session:"
	familyPrefix  = "family:"
	revokedPrefix = "revoked:"
)

// TokenStore keeps refresh sessions as msgpack blobs expiring with them. Each family is a set of session ids.
type TokenStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ auth.TokenStore = (*TokenStore)(nil) // interface compliance check

func NewTokenStore(client redis.UniversalClient, keyPrefix string) *TokenStore {
	return &TokenStore{client: client, keyPrefix: keyPrefix}
}

func (s *TokenStore) key(prefix, id string) string {
	return s.keyPrefix + prefix + id
}

func (s *TokenStore) SaveSession(ctx context.Context, sess auth.Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	data, err := msgpack.Marshal(&sess)
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}

	famKey := s.key(familyPrefix, sess.FamilyID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sessionPrefix, sess.ID), data, ttl)
		pipe.SAdd(ctx, famKey, sess.ID)
		// the family lives as long as its newest session
		pipe.ExpireAt(ctx, famKey, sess.ExpiresAt)
		return nil
	})
	return errors.Wrap(err, "saving session")
}

func (s *TokenStore) GetSession(ctx context.Context, id string) (auth.Session, error) {
	data, err := s.client.Get(ctx, s.key(sessionPrefix, id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, errors.Wrap(err, "getting session")
	}

	var sess auth.Session
	if err := msgpack.Unmarshal(data, &sess); err != nil {
		return auth.Session{}, errors.Wrap(err, "decoding session")
	}
	return sess, nil
}

// RotateSession watches the session key so that concurrent rotations of one session cannot both succeed.
func (s *TokenStore) RotateSession(ctx context.Context, id, tokenHash string, at time.Time) error {
	key := s.key(sessionPrefix, id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return auth.ErrSessionNotFound
			}
			return errors.Wrap(err, "getting session")
		}

		var sess auth.Session
		if err := msgpack.Unmarshal(data, &sess); err != nil {
			return errors.Wrap(err, "decoding session")
		}
		if sess.Rotated() || sess.TokenHash != tokenHash {
			return auth.ErrRefreshTokenReused
		}
		ttl := time.Until(sess.ExpiresAt)
		if ttl <= 0 {
			return auth.ErrSessionNotFound
		}

		sess.RotatedAt = at
		if data, err = msgpack.Marshal(&sess); err != nil {
			return errors.Wrap(err, "encoding session")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}, key)

	if err == redis.TxFailedErr {
		// another rotation won the race
		return auth.ErrRefreshTokenReused
	}
	return err
}

func (s *TokenStore) DeleteSession(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		if err == auth.ErrSessionNotFound {
			return nil
		}
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionPrefix, id))
		pipe.SRem(ctx, s.key(familyPrefix, sess.FamilyID), id)
		return nil
	})
	return errors.Wrap(err, "deleting session")
}

func (s *TokenStore) DeleteFamily(ctx context.Context, familyID string) error {
	famKey := s.key(familyPrefix, familyID)
	ids, err := s.client.SMembers(ctx, famKey).Result()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, "listing family sessions")
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(sessionPrefix, id))
	}
	keys = append(keys, famKey)
	return errors.Wrap(s.client.Del(ctx, keys...).Err(), "deleting family")
}

func (s *TokenStore) RevokeAccess(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return errors.Wrap(s.client.Set(ctx, s.key(revokedPrefix, jti), 1, ttl).Err(), "revoking access token")
}

func (s *TokenStore) IsAccessRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(revokedPrefix, jti)).Result()
	if err != nil {
		return false, errors.Wrap(err, "checking revoked access token")
	}
	return n > 0, nil
}
