package rate

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "gg:rl"

// slidingWindowScript runs the whole admit decision atomically.
//
// KEYS[1] hit zset, KEYS[2] block marker.
// ARGV: now_ms, window_ms, max, block_ms, retain, member, min score,
// blocked-until value.
// Returns {allowed, retry_ms, remaining}.
const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local block = tonumber(ARGV[4])
local retain = ARGV[5] == "1"

local blocked = tonumber(redis.call("GET", KEYS[2]) or "0")
if blocked > now then
  return {0, blocked - now, 0}
end

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[7])
local count = redis.call("ZCARD", KEYS[1])

if count >= max then
  if block > 0 then
    redis.call("SET", KEYS[2], ARGV[8], "PX", ARGV[4])
    if not retain then
      redis.call("DEL", KEYS[1])
    end
    return {0, block, 0}
  end
  local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
  local retry = tonumber(oldest[2]) + window - now
  if retry < 1 then
    retry = 1
  end
  return {0, retry, 0}
end

redis.call("ZADD", KEYS[1], ARGV[1], ARGV[6])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return {1, 0, max - count - 1}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// RedisConfig configures the shared Redis limiter.
type RedisConfig struct {
	// Prefix namespaces limiter keys. Defaults to "gg:rl".
	Prefix string
	// Clock supplies the evaluation instant. Defaults to time.Now.
	Clock func() time.Time
}

// Redis is a sliding-window limiter stored in Redis sorted sets. Timestamps
// have millisecond resolution.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
	seq    atomic.Uint64
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) *Redis {
	r := &Redis{redis: client, prefix: cfg.Prefix, now: cfg.Clock}
	if r.prefix == "" {
		r.prefix = defaultRedisPrefix
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Allow implements [Limiter]. Redis failures are wrapped in
// [ErrRedisUnavailable].
func (r *Redis) Allow(ctx context.Context, clientID, scope string, p Policy) (Decision, error) {
	if clientID == "" {
		return Decision{}, ErrEmptyClient
	}
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}
	if !p.Enabled() {
		return unlimited(), nil
	}

	now := r.now()
	nowMS := now.UnixMilli()
	retain := "0"
	if p.RetainHistory {
		retain = "1"
	}
	member := strconv.FormatInt(now.UnixNano(), 36) + "-" + strconv.FormatUint(r.seq.Add(1), 36)

	hitsKey, blockKey := r.keys(clientID, scope)
	res, err := slidingWindowLua.Run(ctx, r.redis,
		[]string{hitsKey, blockKey},
		nowMS,
		p.Window.Milliseconds(),
		p.MaxRequests,
		p.Block.Milliseconds(),
		retain,
		member,
		"("+strconv.FormatInt(nowMS-p.Window.Milliseconds(), 10),
		strconv.FormatInt(nowMS+p.Block.Milliseconds(), 10),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply length %d", ErrRedisUnavailable, len(res))
	}

	if res[0] == 1 {
		return Decision{Allowed: true, Remaining: int(res[2])}, nil
	}
	return Decision{RetryAfter: time.Duration(res[1]) * time.Millisecond}, nil
}

// keys share a hash tag so both land in the same cluster slot.
func (r *Redis) keys(clientID, scope string) (string, string) {
	tag := "{" + scope + "|" + clientID + "}"
	return r.prefix + ":h:" + tag, r.prefix + ":b:" + tag
}
