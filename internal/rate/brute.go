package rate

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Profile tunes one limiter flavour.
type Profile struct {
	// Name is written into the IP's rate-limit marker.
	Name        string
	Salt        string
	FreeRetries int
	MinWait     time.Duration
	MaxWait     time.Duration
	// Lifetime bounds how long a counter survives without traffic. Zero
	// means MaxWait.
	Lifetime time.Duration
	// RefreshLifetime extends Lifetime on every accepted request.
	RefreshLifetime bool
	// MarkerTTL is how long the IP's rate-limit marker is kept after a trip.
	MarkerTTL time.Duration
}

// BruteforceProfile guards request/reply traffic.
func BruteforceProfile() Profile {
	return Profile{
		Name:            "Bruteforce",
		Salt:            "brute1",
		FreeRetries:     49,
		MinWait:         5 * time.Minute,
		MaxWait:         time.Hour,
		RefreshLifetime: true,
		MarkerTTL:       time.Hour,
	}
}

// SocketProfile guards message traffic: a flat daily budget. Once it is
// spent the IP waits 25 minutes per further message until the window ends.
func SocketProfile() Profile {
	return Profile{
		Name:        "Socketio",
		Salt:        "brute2",
		FreeRetries: 1000,
		MinWait:     25 * time.Minute,
		MaxWait:     25 * time.Minute,
		Lifetime:    24 * time.Hour,
		MarkerTTL:   24 * time.Hour,
	}
}

// Validate reports profile misconfiguration.
func (p Profile) Validate() error {
	if p.Name == "" || p.Salt == "" {
		return errors.New("rate profile requires name and salt")
	}
	if p.FreeRetries < 0 {
		return errors.New("rate profile free retries must be >= 0")
	}
	if p.MinWait <= 0 || p.MaxWait < p.MinWait {
		return errors.New("rate profile requires 0 < MinWait <= MaxWait")
	}
	if p.MarkerTTL <= 0 {
		return errors.New("rate profile marker TTL must be > 0")
	}
	return nil
}

func (p Profile) lifetime() time.Duration {
	if p.Lifetime > 0 {
		return p.Lifetime
	}
	return p.MaxWait
}

// delay returns the wait imposed after the count-th accepted request.
func (p Profile) delay(count int) time.Duration {
	over := count - p.FreeRetries
	if over <= 0 {
		return 0
	}
	prev, cur := time.Duration(0), p.MinWait
	for i := 1; i < over && cur < p.MaxWait; i++ {
		prev, cur = cur, prev+cur
	}
	if cur > p.MaxWait {
		cur = p.MaxWait
	}
	return cur
}

// Result reports one limiter decision.
type Result struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration
	Hash       string
}

// Limiter applies brute-force profiles against Redis.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New creates a Limiter. now defaults to time.Now.
func New(client redis.UniversalClient, prefix string, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{redis: client, prefix: prefix, now: now}
}

// Hash derives the counter identity for ip under salt.
func Hash(ip, salt string) string {
	a := sha256.Sum256([]byte(ip))
	b := sha256.Sum256([]byte(salt))
	joined := base64.StdEncoding.EncodeToString(a[:]) + base64.StdEncoding.EncodeToString(b[:])
	sum := sha256.Sum256([]byte(joined))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// hitScript checks and advances one counter atomically.
//
// ARGV: now (ms), free retries, lifetime (ms), refresh (0|1), then the delay
// schedule in ms; the last entry repeats once the schedule is exhausted.
// Returns {allowed, count, retryAfterMs}.
var hitScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'count', 'first', 'last')
local now = tonumber(ARGV[1])
local free = tonumber(ARGV[2])
local lifetime = tonumber(ARGV[3])
local refresh = ARGV[4] == '1'
local exists = v[1] ~= false
local count = 0
local first = now
local last = now
if exists then
  count = tonumber(v[1]) or 0
  first = tonumber(v[2]) or now
  last = tonumber(v[3]) or now
end

if count > free then
  local idx = count - free
  local steps = #ARGV - 4
  if idx > steps then
    idx = steps
  end
  local wait = tonumber(ARGV[4 + idx])
  if now < last + wait then
    return {0, count, last + wait - now}
  end
end

count = count + 1
local ttl = lifetime
if exists and not refresh then
  ttl = first + lifetime - now
  if ttl <= 0 then
    count = 1
    first = now
    ttl = lifetime
  end
end

redis.call('HSET', KEYS[1], 'count', count, 'first', string.format('%d', first), 'last', string.format('%d', now))
redis.call('PEXPIRE', KEYS[1], ttl)
return {1, count, 0}
`)

// schedule lists the delays after each request beyond the free retries,
// ending with the first MaxWait.
func (p Profile) schedule() []time.Duration {
	var out []time.Duration
	for over := 1; over <= maxScheduleSteps; over++ {
		d := p.delay(p.FreeRetries + over)
		out = append(out, d)
		if d >= p.MaxWait {
			break
		}
	}
	return out
}

const maxScheduleSteps = 64

// Hit records one request from ip under p and reports whether it may
// proceed. Rejected requests do not advance the counter. The check and the
// increment run as one script, so concurrent hits from one IP are counted
// individually.
func (l *Limiter) Hit(ctx context.Context, p Profile, ip string) (Result, error) {
	hash := Hash(ip, p.Salt)
	refresh := "0"
	if p.RefreshLifetime {
		refresh = "1"
	}

	sched := p.schedule()
	args := make([]any, 0, 4+len(sched))
	args = append(args, l.now().UnixMilli(), p.FreeRetries, p.lifetime().Milliseconds(), refresh)
	for _, d := range sched {
		args = append(args, d.Milliseconds())
	}

	out, err := hitScript.Run(ctx, l.redis, []string{l.key(hash)}, args...).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(out) != 3 {
		return Result{}, fmt.Errorf("%w: unexpected limiter reply %v", ErrRedisUnavailable, out)
	}

	return Result{
		Allowed:    out[0] == 1,
		Count:      int(out[1]),
		RetryAfter: time.Duration(out[2]) * time.Millisecond,
		Hash:       hash,
	}, nil
}

// Reset clears the counter identified by hash.
func (l *Limiter) Reset(ctx context.Context, hash string) error {
	if hash == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(hash)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Key returns the Redis key holding the counter for hash.
func (l *Limiter) Key(hash string) string {
	return l.key(hash)
}

func (l *Limiter) key(hash string) string {
	return l.prefix + "rl:" + hash
}
