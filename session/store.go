package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps every Redis transport failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrSessionNotFound is returned when no session exists for the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEmptySessionID is returned when a session id is empty.
	ErrEmptySessionID = errors.New("session id empty")
)

const (
	defaultPrefix = "gs"
	defaultTTL    = 24 * time.Hour
)

// touchScript rewrites lastSeen in place and refreshes the key TTL.
// ARGV[1] is the 8-byte big-endian lastSeen, ARGV[2] the TTL in ms.
const touchScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if string.byte(data, 1) ~= 1 then
  return -1
end
local idx = 2
for _ = 1, 3 do
  local n = string.byte(data, idx)
  if not n then
    return -1
  end
  idx = idx + 1 + n
end
local at = idx + 8
if #data < at + 7 + 32 then
  return -1
end
local updated = string.sub(data, 1, at - 1) .. ARGV[1] .. string.sub(data, at + 8)
redis.call("SET", KEYS[1], updated, "PX", ARGV[2])
return 1
`

var touchLua = redis.NewScript(touchScript)

const deleteScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var deleteLua = redis.NewScript(deleteScript)

// StoreConfig configures a [Store].
type StoreConfig struct {
	// Prefix namespaces every key. Defaults to "gs".
	Prefix string
	// TTL is the Redis key lifetime, refreshed on Touch. It bounds storage
	// only; idle and absolute expiry are enforced by the guard using the
	// stored timestamps. Defaults to 24h.
	TTL time.Duration
}

// Store is a Redis-backed session store.
//
//	Docs: docs/session.md
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(client redis.UniversalClient, cfg StoreConfig) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return &Store{
		redis:  client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save persists sess and indexes it under its user.
//
//	Performance: 1 MULTI with SET + SADD + PEXPIRE.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.SessionID == "" {
		return ErrEmptySessionID
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	userKey := s.userKey(sess.UserID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, s.ttl)
		pipe.SAdd(ctx, userKey, sess.SessionID)
		pipe.PExpire(ctx, userKey, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the session for sessionID. It does not refresh the TTL.
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID
	return sess, nil
}

// Touch sets LastSeen to now and refreshes the key TTL.
//
//	Performance: 1 EVALSHA.
func (s *Store) Touch(ctx context.Context, sessionID string, now time.Time) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	var lastSeen [8]byte
	binary.BigEndian.PutUint64(lastSeen[:], uint64(now.UnixMilli()))

	res, err := touchLua.Run(ctx, s.redis, []string{s.key(sessionID)}, string(lastSeen[:]), s.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	switch res {
	case 0:
		return ErrSessionNotFound
	case -1:
		return ErrSessionCorrupt
	}
	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		if errors.Is(err, ErrSessionCorrupt) {
			if delErr := s.redis.Del(ctx, s.key(sessionID)).Err(); delErr != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
			}
			return nil
		}
		return err
	}

	if err := deleteLua.Run(ctx, s.redis, []string{s.key(sessionID), s.userKey(sess.UserID)}, sessionID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every indexed session of userID.
//
// The user index is read before deleting, so a session saved concurrently
// may survive until its TTL.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, userKey)

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveSessionIDs returns the indexed session ids of userID. Ids of
// sessions that already expired may still be listed.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
