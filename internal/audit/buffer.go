package audit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis failures from the buffers.
var ErrRedisUnavailable = errors.New("redis unavailable")

// drainScript moves KEYS[1] onto the tail of KEYS[2] and returns KEYS[2].
var drainScript = redis.NewScript(`
local items = redis.call('LRANGE', KEYS[1], 0, -1)
for _, v in ipairs(items) do
  redis.call('RPUSH', KEYS[2], v)
end
redis.call('DEL', KEYS[1])
return redis.call('LRANGE', KEYS[2], 0, -1)
`)

// Buffer is a two-slot Redis queue for one stream.
type Buffer struct {
	redis    redis.UniversalClient
	slots    [2]string
	inflight string
	active   atomic.Uint32
}

// NewBuffer returns the buffer for stream. All keys share a hash tag so
// the drain script is cluster-safe.
func NewBuffer(client redis.UniversalClient, prefix string, stream Stream) *Buffer {
	base := prefix + "audit:{" + string(stream) + "}:"
	return &Buffer{
		redis:    client,
		slots:    [2]string{base + "0", base + "1"},
		inflight: base + "inflight",
	}
}

// Active returns the key writers currently append to.
func (b *Buffer) Active() string {
	return b.slots[b.active.Load()&1]
}

// Append pushes payloads onto the active slot in order.
func (b *Buffer) Append(ctx context.Context, payloads ...any) error {
	if len(payloads) == 0 {
		return nil
	}
	if err := b.redis.RPush(ctx, b.Active(), payloads...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Swap flips the active slot and returns the key that was active.
func (b *Buffer) Swap() string {
	next := b.active.Add(1)
	return b.slots[(next-1)&1]
}

// Drain moves slot into the inflight list and returns everything inflight,
// including leftovers from a previously failed insert.
func (b *Buffer) Drain(ctx context.Context, slot string) ([]string, error) {
	items, err := drainScript.Run(ctx, b.redis, []string{slot, b.inflight}).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return items, nil
}

// Ack discards the inflight list after a successful insert.
func (b *Buffer) Ack(ctx context.Context) error {
	if err := b.redis.Del(ctx, b.inflight).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Len reports the number of queued items across both slots and inflight.
func (b *Buffer) Len(ctx context.Context) (int64, error) {
	var total int64
	for _, key := range []string{b.slots[0], b.slots[1], b.inflight} {
		n, err := b.redis.LLen(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		total += n
	}
	return total, nil
}
