package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps every network, timeout or protocol failure
// against Redis. It never means "record absent".
var ErrStoreUnavailable = errors.New("credential store unavailable")

// ErrNotFound is returned when no refresh record exists for a token.
var ErrNotFound = errors.New("refresh record not found")

// ErrReplay is returned by Rotate when the old token is already blacklisted.
var ErrReplay = errors.New("refresh token already retired")

// ErrOwnerMismatch is returned by Rotate when the stored owner differs from
// the expected owner.
var ErrOwnerMismatch = errors.New("refresh record owner mismatch")

const (
	refreshPrefix   = "refresh_token:"
	ownerPrefix     = "user_tokens:"
	blacklistPrefix = "blacklist:"

	blacklistMarker = "blacklisted"

	// DefaultOperationTimeout bounds a single store call when no timeout is configured.
	DefaultOperationTimeout = 2 * time.Second

	minRetireTTL = time.Second
)

const (
	rotateStatusOK       int64 = 0
	rotateStatusReplay   int64 = 1
	rotateStatusNotFound int64 = 2
	rotateStatusMismatch int64 = 3
)

const putRefreshScript = `
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SADD", KEYS[2], ARGV[2])
local ttl = tonumber(ARGV[3])
if redis.call("PTTL", KEYS[2]) < ttl then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

var putRefreshLua = redis.NewScript(putRefreshScript)

const deleteRefreshScript = `
local owner = redis.call("GET", KEYS[1])
if not owner then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. owner, ARGV[2])
return 1
`

var deleteRefreshLua = redis.NewScript(deleteRefreshScript)

const deleteAllScript = `
local tokens = redis.call("SMEMBERS", KEYS[1])
local deleted = 0
for _, token in ipairs(tokens) do
  deleted = deleted + redis.call("DEL", ARGV[1] .. token)
end
redis.call("DEL", KEYS[1])
return deleted
`

var deleteAllLua = redis.NewScript(deleteAllScript)

// KEYS: blacklist:<old>, refresh_token:<old>, user_tokens:<owner>, refresh_token:<new>
// ARGV: old, new, owner, retireTTLms, newTTLms, marker
const rotateScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 1
end

local owner = redis.call("GET", KEYS[2])
if not owner then
  return 2
end
if owner ~= ARGV[3] then
  return 3
end

redis.call("SET", KEYS[1], ARGV[6], "PX", ARGV[4])
redis.call("DEL", KEYS[2])
redis.call("SREM", KEYS[3], ARGV[1])

local ttl = tonumber(ARGV[5])
redis.call("SET", KEYS[4], ARGV[3], "PX", ttl)
redis.call("SADD", KEYS[3], ARGV[2])
if redis.call("PTTL", KEYS[3]) < ttl then
  redis.call("PEXPIRE", KEYS[3], ttl)
end

return 0
`

var rotateLua = redis.NewScript(rotateScript)

// Store is the Redis-backed credential store. All methods are safe for
// concurrent use; every call is bounded by the configured operation timeout.
type Store struct {
	redis     redis.UniversalClient
	opTimeout time.Duration
}

// New returns a Store over client. A non-positive opTimeout selects
// DefaultOperationTimeout.
func New(client redis.UniversalClient, opTimeout time.Duration) *Store {
	if opTimeout <= 0 {
		opTimeout = DefaultOperationTimeout
	}
	return &Store{redis: client, opTimeout: opTimeout}
}

func refreshKey(token string) string   { return refreshPrefix + token }
func ownerKey(ownerID string) string   { return ownerPrefix + ownerID }
func blacklistKey(token string) string { return blacklistPrefix + token }

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// PutRefresh writes the refresh record for token and adds it to the owner's
// set, raising the set TTL to at least ttl.
func (s *Store) PutRefresh(ctx context.Context, token, ownerID string, ttl time.Duration) error {
	if token == "" || ownerID == "" {
		return errors.New("empty token or owner")
	}
	if ttl <= 0 {
		return errors.New("refresh ttl must be positive")
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	err := putRefreshLua.Run(ctx, s.redis,
		[]string{refreshKey(token), ownerKey(ownerID)},
		ownerID, token, ttl.Milliseconds(),
	).Err()
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// GetOwner returns the owner of a live refresh record, or ErrNotFound.
func (s *Store) GetOwner(ctx context.Context, token string) (string, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	owner, err := s.redis.Get(ctx, refreshKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", unavailable(err)
	}
	return owner, nil
}

// DeleteRefresh removes the refresh record and its owner-set membership.
// It is a no-op when the record is absent.
func (s *Store) DeleteRefresh(ctx context.Context, token string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	err := deleteRefreshLua.Run(ctx, s.redis, []string{refreshKey(token)}, ownerPrefix, token).Err()
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteAllForOwner deletes every refresh record in the owner's set and then
// the set itself. It returns the number of records removed.
func (s *Store) DeleteAllForOwner(ctx context.Context, ownerID string) (int, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	n, err := deleteAllLua.Run(ctx, s.redis, []string{ownerKey(ownerID)}, refreshPrefix).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// Blacklist retires token for ttl. A non-positive ttl is a no-op because the
// credential has already expired.
func (s *Store) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.redis.Set(ctx, blacklistKey(token), blacklistMarker, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// IsBlacklisted reports whether token has been retired.
func (s *Store) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	n, err := s.redis.Exists(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// RotateRequest describes one atomic retire-and-activate step.
type RotateRequest struct {
	OldToken string
	NewToken string
	OwnerID  string
	// RetireTTL is the old token's remaining lifetime.
	RetireTTL time.Duration
	// NewTTL is the lifetime of the new refresh record.
	NewTTL time.Duration
}

// Rotate atomically blacklists the old token, removes its record and set
// membership, and activates the new token for the same owner. It fails with
// ErrReplay, ErrNotFound or ErrOwnerMismatch without touching any key.
func (s *Store) Rotate(ctx context.Context, req RotateRequest) error {
	if req.OldToken == "" || req.NewToken == "" || req.OwnerID == "" {
		return errors.New("incomplete rotate request")
	}
	if req.NewTTL <= 0 {
		return errors.New("refresh ttl must be positive")
	}
	retire := req.RetireTTL
	if retire < minRetireTTL {
		retire = minRetireTTL
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	status, err := rotateLua.Run(ctx, s.redis,
		[]string{
			blacklistKey(req.OldToken),
			refreshKey(req.OldToken),
			ownerKey(req.OwnerID),
			refreshKey(req.NewToken),
		},
		req.OldToken, req.NewToken, req.OwnerID,
		retire.Milliseconds(), req.NewTTL.Milliseconds(), blacklistMarker,
	).Int64()
	if err != nil {
		return unavailable(err)
	}

	switch status {
	case rotateStatusOK:
		return nil
	case rotateStatusReplay:
		return ErrReplay
	case rotateStatusNotFound:
		return ErrNotFound
	case rotateStatusMismatch:
		return ErrOwnerMismatch
	default:
		return unavailable(fmt.Errorf("unexpected rotate status %d", status))
	}
}

// OwnerTokenCount returns the number of outstanding refresh tokens tracked for ownerID.
func (s *Store) OwnerTokenCount(ctx context.Context, ownerID string) (int, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	n, err := s.redis.SCard(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// Ping checks connectivity to Redis.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
