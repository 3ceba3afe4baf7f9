package ids

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps Redis failures from the strike store.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrCorruptRecord is returned for strike records or markers that no
	// longer decode. The ban check fails closed on it; Unban still clears
	// the keys.
	ErrCorruptRecord = errors.New("corrupt ban record")
)

// Kind is a strike class.
type Kind string

const (
	// Suspicious strikes come from malformed or unauthenticated traffic.
	Suspicious Kind = "s"
	// Malicious strikes come from injection signatures.
	Malicious Kind = "m"
)

// Record is the per-IP strike state.
type Record struct {
	Suspicious int     `json:"s"`
	Malicious  int     `json:"m"`
	Key        *string `json:"key"`
	Hash       *string `json:"hash"`
}

// Thresholds are the ban trigger counts.
type Thresholds struct {
	Suspicious int
	Malicious  int
}

// Banned reports whether r meets either threshold.
func (r Record) Banned(th Thresholds) bool {
	return r.Suspicious >= th.Suspicious || r.Malicious >= th.Malicious
}

// Marker is the rate-limit trip record for an IP.
type Marker struct {
	Key  string `json:"key"`
	Hash string `json:"hash"`
}

// Entry is one row of the ban listing.
type Entry struct {
	IP         string
	Suspicious int
	Malicious  int
	RateLimit  *Marker
	TTL        time.Duration
}

// Store keeps strike records and rate-limit markers in Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	banTTL time.Duration
}

// NewStore returns a Store. Keys are "<prefix>banip:<ip>" and
// "<prefix>banipRL:<ip>".
func NewStore(client redis.UniversalClient, prefix string, banTTL time.Duration) *Store {
	return &Store{redis: client, prefix: prefix, banTTL: banTTL}
}

// Get reads the strike record for ip. A missing record is the zero Record.
func (s *Store) Get(ctx context.Context, ip string) (Record, error) {
	raw, err := s.redis.Get(ctx, s.strikeKey(ip)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, s.strikeKey(ip), err)
	}
	return rec, nil
}

// LogStrike increments the kind counter for ip and refreshes the ban TTL.
// The read-modify-write is not atomic; concurrent strikes may collapse.
func (s *Store) LogStrike(ctx context.Context, ip string, kind Kind) (Record, error) {
	rec, err := s.Get(ctx, ip)
	if err != nil {
		return Record{}, err
	}
	switch kind {
	case Malicious:
		rec.Malicious++
	default:
		rec.Suspicious++
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	if err := s.redis.Set(ctx, s.strikeKey(ip), raw, s.banTTL).Err(); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return rec, nil
}

// SetMarker records a rate-limit trip for ip.
func (s *Store) SetMarker(ctx context.Context, ip string, m Marker, ttl time.Duration) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.markerKey(ip), raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// GetMarker returns the rate-limit marker for ip, if any.
func (s *Store) GetMarker(ctx context.Context, ip string) (*Marker, error) {
	raw, err := s.redis.Get(ctx, s.markerKey(ip)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var m Marker
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, s.markerKey(ip), err)
	}
	return &m, nil
}

// Clear removes both the strike record and the rate-limit marker for ip
// and returns the marker that was removed. An undecodable marker is
// removed too, and reported as nil.
func (s *Store) Clear(ctx context.Context, ip string) (*Marker, error) {
	m, err := s.GetMarker(ctx, ip)
	if err != nil && !errors.Is(err, ErrCorruptRecord) {
		return nil, err
	}
	if err := s.redis.Del(ctx, s.strikeKey(ip), s.markerKey(ip)).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return m, nil
}

// List walks both key families with SCAN and merges them per IP.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	byIP := make(map[string]*Entry)
	order := make([]string, 0)
	entry := func(ip string) *Entry {
		e, ok := byIP[ip]
		if !ok {
			e = &Entry{IP: ip}
			byIP[ip] = e
			order = append(order, ip)
		}
		return e
	}

	strikePrefix := s.prefix + "banip:"
	markerPrefix := s.prefix + "banipRL:"

	iter := s.redis.Scan(ctx, 0, s.prefix+"banip*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		switch {
		case strings.HasPrefix(key, markerPrefix):
			ip := strings.TrimPrefix(key, markerPrefix)
			m, err := s.GetMarker(ctx, ip)
			if err != nil && !errors.Is(err, ErrCorruptRecord) {
				return nil, err
			}
			if m == nil && err == nil {
				continue
			}
			// Corrupt markers are still listed so they can be unbanned.
			e := entry(ip)
			e.RateLimit = m
			if e.TTL == 0 {
				e.TTL = s.redis.TTL(ctx, key).Val()
			}
		case strings.HasPrefix(key, strikePrefix):
			ip := strings.TrimPrefix(key, strikePrefix)
			rec, err := s.Get(ctx, ip)
			if err != nil && !errors.Is(err, ErrCorruptRecord) {
				return nil, err
			}
			e := entry(ip)
			e.Suspicious = rec.Suspicious
			e.Malicious = rec.Malicious
			e.TTL = s.redis.TTL(ctx, key).Val()
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make([]Entry, 0, len(order))
	for _, ip := range order {
		out = append(out, *byIP[ip])
	}
	return out, nil
}

func (s *Store) strikeKey(ip string) string {
	return s.prefix + "banip:" + ip
}

func (s *Store) markerKey(ip string) string {
	return s.prefix + "banipRL:" + ip
}
