package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// deleteSessionScript removes a session record, its index entry, and its
// refresh grant in one atomic step. KEYS: session, user index, grant.
// ARGV: session id. The grant key may be empty-keyed ("-"), in which case
// only the record and index entry are touched.
const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
if KEYS[3] ~= "-" then
  redis.call("DEL", KEYS[3])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is the Redis-backed Registry. Key layout under the configured
// prefix:
//
//	<prefix>:s:<sid>          session record, JSON, TTL = refresh lifetime
//	<prefix>:u:<uid>          SET of the user's session ids
//	<prefix>:g:<tokenhash>    refresh grant, JSON, TTL = refresh lifetime
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a Store on the given client. prefix namespaces every key.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *Store) grantKey(tokenHash string) string {
	return s.prefix + ":g:" + tokenHash
}

// Save persists the record and registers it in the owner's index in one
// transaction.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get fetches a record without mutating any Redis state.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decode(data, sessionID)
}

// Touch rewrites the record with updated activity fields, preserving the
// remaining TTL (PTTL read, then SET PX).
func (s *Store) Touch(ctx context.Context, sessionID, ip, device string, at time.Time) error {
	key := s.key(sessionID)

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Touch(ip, device, at)

	pttl, err := s.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if pttl <= 0 {
		// Expired between the read and now; nothing worth rewriting.
		return nil
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, key, data, pttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Supersede rewrites the record with the rotation marker and the short grace
// TTL. The record keeps its index entry; ListForUser callers filter it and
// Delete/DeleteAllForUser still remove it.
func (s *Store) Supersede(ctx context.Context, sessionID, rotatedTo string, grace time.Duration) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	sess.RotatedTo = rotatedTo
	sess.GrantHash = ""

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(sessionID), data, grace).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes the record, its index entry, and its grant atomically.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := decode(data, sessionID)
	if err != nil {
		return err
	}

	grantKey := "-"
	if sess.GrantHash != "" {
		grantKey = s.grantKey(sess.GrantHash)
	}

	keys := []string{s.key(sessionID), s.userKey(sess.UserID), grantKey}
	if _, err := deleteSessionLua.Run(ctx, s.redis, keys, sessionID).Result(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every indexed session, every matching grant, and
// the index itself. Index entries whose record already expired are treated
// as logged out. Not fully atomic: a session created while this runs is not
// captured, and will be caught by a follow-up call or natural expiry.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sessions, err := s.getMany(ctx, sessionIDs)
	if err != nil {
		return err
	}

	delKeys := make([]string, 0, 2*len(sessions)+1)
	for _, sess := range sessions {
		delKeys = append(delKeys, s.key(sess.SessionID))
		if sess.GrantHash != "" {
			delKeys = append(delKeys, s.grantKey(sess.GrantHash))
		}
	}
	delKeys = append(delKeys, userKey)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, delKeys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ListForUser returns every indexed record that still exists. Stale index
// entries are skipped, not repaired; the delete script keeps the index
// consistent on the write side.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	sessionIDs, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.getMany(ctx, sessionIDs)
}

func (s *Store) getMany(ctx context.Context, sessionIDs []string) ([]*Session, error) {
	if len(sessionIDs) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(sessionIDs))
	for i, sid := range sessionIDs {
		cmds[i] = pipe.Get(ctx, s.key(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sessions := make([]*Session, 0, len(sessionIDs))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, cmdErr)
		}
		sess, decErr := decode(data, sessionIDs[i])
		if decErr != nil {
			return nil, decErr
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// PutGrant registers a refresh grant under the token hash.
func (s *Store) PutGrant(ctx context.Context, tokenHash string, grant Grant, ttl time.Duration) error {
	data, err := json.Marshal(grant)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.grantKey(tokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ConsumeGrant reads and deletes the grant in one GETDEL. Redis serializes
// the command, so exactly one concurrent caller wins.
func (s *Store) ConsumeGrant(ctx context.Context, tokenHash string) (*Grant, error) {
	data, err := s.redis.GetDel(ctx, s.grantKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var grant Grant
	if err := json.Unmarshal(data, &grant); err != nil {
		return nil, fmt.Errorf("decode grant: %w", err)
	}
	return &grant, nil
}

// Ping reports point-in-time Redis availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func decode(data []byte, sessionID string) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess.SessionID = sessionID
	return &sess, nil
}
