package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultExpiryGrace = time.Minute
	minRecordTTL       = time.Second
	maxWatchRetries    = 5
)

const (
	markStatusNotFound int64 = 0
	markStatusRotated  int64 = 1
	markStatusConflict int64 = 2
	markStatusCorrupt  int64 = 3
)

// markRotatedScript rewrites the rotation header (status, updatedAt, childId) of an
// encoded record only when it is still active and childless. See encoder.go for
// the byte offsets.
const markRotatedScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end
if #data < 11 or string.byte(data, 1) ~= 1 then
  return {3}
end

local status = string.byte(data, 2)
local child_len = string.byte(data, 11)
if status ~= 1 or child_len ~= 0 then
  return {2, data}
end

local updated = string.sub(data, 1, 1) .. ARGV[1] .. ARGV[2] .. string.char(#ARGV[3]) .. ARGV[3] .. string.sub(data, 12)
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("SET", KEYS[1], updated, "PX", ttl)
else
  redis.call("SET", KEYS[1], updated)
end

return {1, updated}
`

var markRotatedLua = redis.NewScript(markRotatedScript)

// createScript writes the record and every index entry in one step, so a record
// is never visible without the indexes DeleteBy and DeleteExpired rely on.
//
// KEYS: record, user set, origin set, device set, expiry zset, owner hash.
// ARGV: encoded record, ttl ms, sessionId, expiry score or "", owner, has device.
const createScript = `
if not redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
  return 0
end
redis.call("SADD", KEYS[2], ARGV[3])
redis.call("SADD", KEYS[3], ARGV[3])
if ARGV[6] == "1" then
  redis.call("SADD", KEYS[4], ARGV[3])
end
if ARGV[4] ~= "" then
  redis.call("ZADD", KEYS[5], ARGV[4], ARGV[3])
end
redis.call("HSET", KEYS[6], ARGV[3], ARGV[5])
return 1
`

var createLua = redis.NewScript(createScript)

// RedisStore keeps each record as an encoded blob under <prefix>:s:<sessionId>
// with index sets per user, origin and device and a sorted set of absolute
// expiries used by DeleteExpired.
//
// Record keys live until the later of ExpiresAt and AbsoluteExpiresAt plus a
// grace period, so rotated parents stay readable for the replay branch. The
// owner hash <prefix>:own maps each sessionId to its user, origin and device and
// has no TTL; it lets DeleteExpired unindex records whose key Redis already
// expired.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	grace  time.Duration
	now    func() time.Time
}

// RedisOption customizes a [RedisStore].
type RedisOption func(*RedisStore)

// WithRedisClock overrides the clock used for timestamps and expiry checks.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithExpiryGrace sets how long a record key outlives its last expiry.
func WithExpiryGrace(grace time.Duration) RedisOption {
	return func(s *RedisStore) {
		if grace >= 0 {
			s.grace = grace
		}
	}
}

// NewRedisStore creates a store on the given client. prefix namespaces all keys.
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisStore {
	if prefix == "" {
		prefix = "gs"
	}
	s := &RedisStore{
		redis:  client,
		prefix: prefix,
		grace:  defaultExpiryGrace,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *RedisStore) originKey(origin string) string {
	return s.prefix + ":o:" + origin
}

func (s *RedisStore) deviceKey(deviceID string) string {
	return s.prefix + ":d:" + deviceID
}

func (s *RedisStore) expiryKey() string {
	return s.prefix + ":exp"
}

func (s *RedisStore) ownerKey() string {
	return s.prefix + ":own"
}

const ownerSep = "\x00"

func encodeOwner(rec *Record) string {
	return rec.UserID + ownerSep + rec.Origin + ownerSep + rec.DeviceID
}

func decodeOwner(v string) (userID, origin, deviceID string, ok bool) {
	parts := strings.SplitN(v, ownerSep, 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func (s *RedisStore) ttlFor(rec *Record, now time.Time) time.Duration {
	end := rec.ExpiresAt
	if rec.AbsoluteExpiresAt != nil && rec.AbsoluteExpiresAt.After(end) {
		end = *rec.AbsoluteExpiresAt
	}
	ttl := end.Sub(now) + s.grace
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}
	return ttl
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func decodeStored(data []byte) (*Record, error) {
	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return rec, nil
}

// Create stores rec with SET NX and adds it to the indexes atomically.
//
//	Performance: 1 Lua EVALSHA.
func (s *RedisStore) Create(ctx context.Context, rec *Record) (*Record, error) {
	if err := validateNew(rec); err != nil {
		return nil, err
	}

	stored := rec.Clone()
	now := s.now()
	stored.ID = uuid.NewString()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = StatusActive
	}

	data, err := Encode(stored)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	score := ""
	if stored.AbsoluteExpiresAt != nil {
		score = strconv.FormatInt(stored.AbsoluteExpiresAt.UnixMilli(), 10)
	}
	hasDevice := "0"
	if stored.DeviceID != "" {
		hasDevice = "1"
	}

	created, err := createLua.Run(ctx, s.redis,
		[]string{
			s.key(stored.SessionID),
			s.userKey(stored.UserID),
			s.originKey(stored.Origin),
			s.deviceKey(stored.DeviceID),
			s.expiryKey(),
			s.ownerKey(),
		},
		string(data),
		s.ttlFor(stored, now).Milliseconds(),
		stored.SessionID,
		score,
		encodeOwner(stored),
		hasDevice,
	).Int64()
	if err != nil {
		return nil, unavailable(err)
	}
	if created == 0 {
		return nil, ErrDuplicateSessionID
	}

	return stored, nil
}

// FindBySessionID returns (nil, nil) when the record does not exist.
//
//	Performance: 1 GET.
func (s *RedisStore) FindBySessionID(ctx context.Context, sessionID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	return decodeStored(data)
}

// UpdateBySessionID applies update under WATCH so concurrent writers are not lost.
// The key TTL is preserved.
func (s *RedisStore) UpdateBySessionID(ctx context.Context, sessionID string, update Update) error {
	key := s.key(sessionID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		rec, err := decodeStored(data)
		if err != nil {
			return err
		}
		update.apply(rec, s.now())
		encoded, err := Encode(rec)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, redis.KeepTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.redis.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrCorruptRecord), errors.Is(err, ErrInvalidRecord):
			return err
		default:
			return unavailable(err)
		}
	}
	return fmt.Errorf("%w: update contention on %s", ErrStoreUnavailable, sessionID)
}

// DeleteBySessionID removes the record and its index entries. Absent records are a no-op.
func (s *RedisStore) DeleteBySessionID(ctx context.Context, sessionID string) error {
	rec, err := s.FindBySessionID(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrCorruptRecord) {
		return err
	}
	if rec == nil {
		return s.unindex(ctx, []string{sessionID})
	}
	_, err = s.deleteRecords(ctx, []*Record{rec})
	return err
}

func (s *RedisStore) deleteRecords(ctx context.Context, recs []*Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.IntCmd, 0, len(recs))
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range recs {
			cmds = append(cmds, pipe.Del(ctx, s.key(rec.SessionID)))
			pipe.SRem(ctx, s.userKey(rec.UserID), rec.SessionID)
			pipe.SRem(ctx, s.originKey(rec.Origin), rec.SessionID)
			if rec.DeviceID != "" {
				pipe.SRem(ctx, s.deviceKey(rec.DeviceID), rec.SessionID)
			}
			pipe.ZRem(ctx, s.expiryKey(), rec.SessionID)
			pipe.HDel(ctx, s.ownerKey(), rec.SessionID)
		}
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}

	var deleted int64
	for _, cmd := range cmds {
		deleted += cmd.Val()
	}
	return deleted, nil
}

// loadMany fetches records in one pipeline. Missing ids are returned separately.
func (s *RedisStore) loadMany(ctx context.Context, sessionIDs []string) ([]*Record, []string, error) {
	if len(sessionIDs) == 0 {
		return nil, nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(sessionIDs))
	for i, sid := range sessionIDs {
		cmds[i] = pipe.Get(ctx, s.key(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, unavailable(err)
	}

	recs := make([]*Record, 0, len(sessionIDs))
	var missing []string
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				missing = append(missing, sessionIDs[i])
				continue
			}
			return nil, nil, unavailable(err)
		}
		rec, err := decodeStored(data)
		if err != nil {
			missing = append(missing, sessionIDs[i])
			continue
		}
		recs = append(recs, rec)
	}
	return recs, missing, nil
}

// unindex drops every trace of sessionIDs whose record is gone or unreadable:
// the key itself, the user, origin and device set entries named by the owner
// hash, the expiry entry and the owner entry.
func (s *RedisStore) unindex(ctx context.Context, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}

	owners, err := s.redis.HMGet(ctx, s.ownerKey(), sessionIDs...).Result()
	if err != nil {
		return unavailable(err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range sessionIDs {
			pipe.Del(ctx, s.key(id))
			if raw, ok := owners[i].(string); ok {
				if userID, origin, deviceID, ok := decodeOwner(raw); ok {
					pipe.SRem(ctx, s.userKey(userID), id)
					pipe.SRem(ctx, s.originKey(origin), id)
					if deviceID != "" {
						pipe.SRem(ctx, s.deviceKey(deviceID), id)
					}
				}
			}
			pipe.ZRem(ctx, s.expiryKey(), id)
			pipe.HDel(ctx, s.ownerKey(), id)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteExpired removes every record whose absolute expiry has passed. Records
// whose key Redis already expired are unindexed through the owner hash.
//
//	Performance: 1 ZRANGEBYSCORE + 1 pipelined GET batch + 1 MULTI.
func (s *RedisStore) DeleteExpired(ctx context.Context) (int64, error) {
	now := s.now()
	ids, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	recs, missing, err := s.loadMany(ctx, ids)
	if err != nil {
		return 0, err
	}

	expired := recs[:0]
	for _, rec := range recs {
		if rec.AbsoluteExpiresAt != nil && rec.AbsoluteExpiresAt.Before(now) {
			expired = append(expired, rec)
		}
	}

	if err := s.unindex(ctx, missing); err != nil {
		return 0, err
	}

	return s.deleteRecords(ctx, expired)
}

// DeleteBy removes every record matching filter. Index entries whose record is
// already gone are pruned along the way.
func (s *RedisStore) DeleteBy(ctx context.Context, filter Filter) (int64, error) {
	if filter.Empty() {
		return 0, ErrEmptyFilter
	}

	indexKeys := make([]string, 0, 3)
	if filter.UserID != "" {
		indexKeys = append(indexKeys, s.userKey(filter.UserID))
	}
	if filter.Origin != "" {
		indexKeys = append(indexKeys, s.originKey(filter.Origin))
	}
	if filter.DeviceID != "" {
		indexKeys = append(indexKeys, s.deviceKey(filter.DeviceID))
	}

	ids, err := s.redis.SInter(ctx, indexKeys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, unavailable(err)
	}

	recs, missing, err := s.loadMany(ctx, ids)
	if err != nil {
		return 0, err
	}

	if len(missing) > 0 {
		_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range missing {
				for _, key := range indexKeys {
					pipe.SRem(ctx, key, id)
				}
			}
			return nil
		})
		if err != nil {
			return 0, unavailable(err)
		}
		if err := s.unindex(ctx, missing); err != nil {
			return 0, err
		}
	}

	matched := recs[:0]
	for _, rec := range recs {
		if filter.Matches(rec) {
			matched = append(matched, rec)
		}
	}
	return s.deleteRecords(ctx, matched)
}

// MarkRotated atomically links parentSessionID to childSessionID.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
//	Security: CAS prevents two concurrent rotations from both creating a child.
func (s *RedisStore) MarkRotated(ctx context.Context, parentSessionID, childSessionID string) (*Record, error) {
	result, err := markRotatedLua.Run(
		ctx,
		s.redis,
		[]string{s.key(parentSessionID)},
		string([]byte{statusByteRotated}),
		string(encodeTime(s.now())),
		childSessionID,
	).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotation script response", ErrStoreUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotation script status", ErrStoreUnavailable)
	}

	switch code {
	case markStatusNotFound:
		return nil, ErrRecordNotFound
	case markStatusCorrupt:
		return nil, ErrCorruptRecord
	case markStatusRotated, markStatusConflict:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing rotation script payload", ErrStoreUnavailable)
		}
		data, ok := parts[1].(string)
		if !ok {
			return nil, fmt.Errorf("%w: invalid rotation script payload", ErrStoreUnavailable)
		}
		rec, err := decodeStored([]byte(data))
		if err != nil {
			return nil, err
		}
		if code == markStatusConflict {
			return rec, ErrRotationConflict
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotation script status %d", ErrStoreUnavailable, code)
	}
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}
