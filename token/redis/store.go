// Package redis implements the token store on Redis. Rotation runs as a
// single Lua compare-and-swap, which is what makes concurrent refreshes
// on the same token resolve to exactly one winner.
package redis

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowforward/authcore/token"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusConflict int64 = 2
	rotateStatusMismatch int64 = 3
	rotateStatusRotated  int64 = 4
)

// The predecessor rewrite keeps its TTL (KEEPTTL) so retention behavior
// set at Create survives rotation.
const rotateScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end

local rec = cjson.decode(data)
if rec.status ~= "active" then
  return {2}
end
if rec.expires_at <= tonumber(ARGV[3]) then
  return {1}
end
if rec.secret_hash ~= ARGV[1] then
  return {3}
end

rec.status = "rotated"
rec.replaced_by = ARGV[4]
redis.call("SET", KEYS[1], cjson.encode(rec), "KEEPTTL")

local px = tonumber(ARGV[5])
if px > 0 then
  redis.call("SET", KEYS[2], ARGV[2], "PX", px)
else
  redis.call("SET", KEYS[2], ARGV[2])
end
redis.call("SADD", KEYS[3], ARGV[4])
redis.call("SADD", KEYS[4], ARGV[4])

return {4}
`

var rotateLua = redis.NewScript(rotateScript)

const revokeScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end

local rec = cjson.decode(data)
if rec.status == "revoked" then
  return 1
end

rec.status = "revoked"
rec.revoked_at = tonumber(ARGV[1])
redis.call("SET", KEYS[1], cjson.encode(rec), "KEEPTTL")
return 2
`

var revokeLua = redis.NewScript(revokeScript)

// Config tunes the Redis store.
type Config struct {
	// Prefix namespaces every key. Defaults to "ac".
	Prefix string

	// Retention keeps consumed and expired records readable for this long
	// past their expiry before Redis drops them. Zero disables key TTLs
	// entirely, leaving cleanup to PurgeExpired.
	Retention time.Duration
}

// Store implements [token.Store] on Redis. Records are JSON values keyed
// by token id, with set indexes per family and per subject.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewStore(client redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "ac"
	}
	return &Store{
		redis:     client,
		prefix:    cfg.Prefix,
		retention: cfg.Retention,
	}
}

func (s *Store) recordKey(tokenID string) string {
	return s.prefix + ":t:" + tokenID
}

func (s *Store) familyKey(familyID string) string {
	return s.prefix + ":f:" + familyID
}

func (s *Store) subjectKey(subjectID string) string {
	return s.prefix + ":s:" + subjectID
}

// redisRecord is the persisted shape. The secret hash travels as hex so
// the Lua script can compare it as a plain string.
type redisRecord struct {
	TokenID    string `json:"token_id"`
	SubjectID  string `json:"subject_id"`
	FamilyID   string `json:"family_id"`
	Status     string `json:"status"`
	SecretHash string `json:"secret_hash"`
	IssuedAt   int64  `json:"issued_at"`
	ExpiresAt  int64  `json:"expires_at"`
	RevokedAt  int64  `json:"revoked_at,omitempty"`
	ReplacedBy string `json:"replaced_by,omitempty"`
	DeviceIP   string `json:"device_ip,omitempty"`
	DeviceUA   string `json:"device_ua,omitempty"`
	DeviceCID  string `json:"device_cid,omitempty"`
}

func encodeRecord(rec *token.Record) ([]byte, error) {
	return json.Marshal(redisRecord{
		TokenID:    rec.TokenID,
		SubjectID:  rec.SubjectID,
		FamilyID:   rec.FamilyID,
		Status:     string(rec.Status),
		SecretHash: hex.EncodeToString(rec.SecretHash[:]),
		IssuedAt:   rec.IssuedAt,
		ExpiresAt:  rec.ExpiresAt,
		RevokedAt:  rec.RevokedAt,
		ReplacedBy: rec.ReplacedBy,
		DeviceIP:   rec.Device.IP,
		DeviceUA:   rec.Device.UserAgent,
		DeviceCID:  rec.Device.ClientID,
	})
}

func decodeRecord(data []byte) (*token.Record, error) {
	var rr redisRecord
	if err := json.Unmarshal(data, &rr); err != nil {
		return nil, fmt.Errorf("%w: corrupt record: %v", token.ErrUnavailable, err)
	}

	hash, err := hex.DecodeString(rr.SecretHash)
	if err != nil || len(hash) != 32 {
		return nil, fmt.Errorf("%w: corrupt secret hash", token.ErrUnavailable)
	}

	rec := &token.Record{
		TokenID:    rr.TokenID,
		SubjectID:  rr.SubjectID,
		FamilyID:   rr.FamilyID,
		Status:     token.Status(rr.Status),
		IssuedAt:   rr.IssuedAt,
		ExpiresAt:  rr.ExpiresAt,
		RevokedAt:  rr.RevokedAt,
		ReplacedBy: rr.ReplacedBy,
		Device: token.DeviceContext{
			IP:        rr.DeviceIP,
			UserAgent: rr.DeviceUA,
			ClientID:  rr.DeviceCID,
		},
	}
	copy(rec.SecretHash[:], hash)
	return rec, nil
}

// recordTTL returns the key TTL for a record, zero meaning no expiry.
func (s *Store) recordTTL(rec *token.Record, now time.Time) time.Duration {
	if s.retention <= 0 {
		return 0
	}
	remaining := time.Unix(rec.ExpiresAt, 0).Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining + s.retention
}

// Create inserts rec and its index entries. The insert itself is NX; the
// index SADDs follow in a transaction pipeline. Token ids are UUIDs, so
// a lost race here means id generation is broken, not normal operation.
func (s *Store) Create(ctx context.Context, rec *token.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetNX(ctx, s.recordKey(rec.TokenID), data, s.recordTTL(rec, time.Unix(rec.IssuedAt, 0))).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	if !ok {
		return token.ErrConflict
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.familyKey(rec.FamilyID), rec.TokenID)
		pipe.SAdd(ctx, s.subjectKey(rec.SubjectID), rec.TokenID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, tokenID string) (*token.Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, token.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	return decodeRecord(data)
}

func (s *Store) CompareAndRotate(ctx context.Context, tokenID string, providedHash [32]byte, successor *token.Record, now time.Time) (*token.Record, error) {
	successorData, err := encodeRecord(successor)
	if err != nil {
		return nil, err
	}

	result, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{
			s.recordKey(tokenID),
			s.recordKey(successor.TokenID),
			s.familyKey(successor.FamilyID),
			s.subjectKey(successor.SubjectID),
		},
		hex.EncodeToString(providedHash[:]),
		successorData,
		now.Unix(),
		successor.TokenID,
		s.recordTTL(successor, now).Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotation script response", token.ErrUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotation script status", token.ErrUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, token.ErrNotFound
	case rotateStatusExpired:
		return nil, token.ErrExpired
	case rotateStatusConflict:
		return nil, token.ErrRotationConflict
	case rotateStatusMismatch:
		return nil, token.ErrSecretMismatch
	case rotateStatusRotated:
		return successor.Clone(), nil
	default:
		return nil, fmt.Errorf("%w: unknown rotation script status", token.ErrUnavailable)
	}
}

func (s *Store) Revoke(ctx context.Context, tokenID string, now time.Time) error {
	transitioned, err := s.revokeOne(ctx, tokenID, now)
	if err != nil {
		return err
	}
	if !transitioned {
		// revokeOne reports false for both missing and already-revoked;
		// distinguish for the caller.
		exists, err := s.redis.Exists(ctx, s.recordKey(tokenID)).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", token.ErrUnavailable, err)
		}
		if exists == 0 {
			return token.ErrNotFound
		}
	}
	return nil
}

func (s *Store) revokeOne(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	code, err := revokeLua.Run(ctx, s.redis, []string{s.recordKey(tokenID)}, now.Unix()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}
	return code == 2, nil
}

// RevokeFamily sweeps a family's index set and revokes each member.
//
// ATOMICITY NOTE: the sweep is not one atomic step. A rotation racing the
// sweep can insert a successor after SMEMBERS ran; that successor is
// caught by the next sweep, and the replay path that triggers sweeps
// always revokes before returning, so the window does not let a replayed
// token win.
func (s *Store) RevokeFamily(ctx context.Context, familyID string, now time.Time) (int, error) {
	return s.revokeSet(ctx, s.familyKey(familyID), now)
}

func (s *Store) RevokeAllForSubject(ctx context.Context, subjectID string, now time.Time) (int, error) {
	return s.revokeSet(ctx, s.subjectKey(subjectID), now)
}

func (s *Store) revokeSet(ctx context.Context, setKey string, now time.Time) (int, error) {
	ids, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
	}

	revoked := 0
	for _, id := range ids {
		transitioned, err := s.revokeOne(ctx, id, now)
		if err != nil {
			return revoked, err
		}
		if transitioned {
			revoked++
		}
	}
	return revoked, nil
}

// PurgeExpired scans the record keyspace and deletes records past their
// expiry, including their index entries. Admin-only O(n) operation.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	var (
		cursor uint64
		purged int
	)
	pattern := s.prefix + ":t:*"

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return purged, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
		}

		for _, key := range keys {
			data, err := s.redis.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return purged, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
			}
			rec, err := decodeRecord(data)
			if err != nil {
				return purged, err
			}
			if !rec.ExpiredAt(now) {
				continue
			}

			_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, s.familyKey(rec.FamilyID), rec.TokenID)
				pipe.SRem(ctx, s.subjectKey(rec.SubjectID), rec.TokenID)
				return nil
			})
			if err != nil {
				return purged, fmt.Errorf("%w: %v", token.ErrUnavailable, err)
			}
			purged++
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return purged, nil
}
