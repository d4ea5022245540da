package store

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

type kind uint8

const (
	kindString kind = iota
	kindHash
	kindZSet
)

type entry struct {
	kind      kind
	str       string
	hash      map[string]string
	zset      map[string]float64
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// memoryStore is the development fallback. A single mutex serializes every
// operation, which gives the same per-key linearizability the Redis backend
// provides natively. Expiry is a pure function of the stored deadline checked
// on access, so no timer goroutine is involved.
type memoryStore struct {
	mu   sync.Mutex
	data map[string]*entry
	subs map[string][]chan string
	now  func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{
		data: make(map[string]*entry),
		subs: make(map[string][]chan string),
		now:  time.Now,
	}
}

// NewMemoryAtTime returns an in-memory store with a caller-controlled clock,
// for tests exercising TTL behavior.
func NewMemoryAtTime(now func() time.Time) Store {
	return &memoryStore{
		data: make(map[string]*entry),
		subs: make(map[string][]chan string),
		now:  now,
	}
}

// lookup returns the live entry for key, dropping it first if expired.
// Callers must hold mu.
func (s *memoryStore) lookup(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if e.expired(s.now()) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return "", ErrNotFound
	}
	if e.kind != kindString {
		return "", fmt.Errorf("%w: GET against non-string key %q", ErrTypeMismatch, key)
	}
	return e.str, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{kind: kindString, str: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *memoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookup(key) != nil {
		return false, nil
	}
	e := &entry{kind: kindString, str: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.data[key] = e
	return true, nil
}

func (s *memoryStore) Incr(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		e = &entry{kind: kindString, str: "0"}
		s.data[key] = e
	}
	if e.kind != kindString {
		return 0, fmt.Errorf("%w: INCRBY against non-string key %q", ErrTypeMismatch, key)
	}
	current, err := strconv.ParseInt(e.str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: value at %q is not an integer", ErrTypeMismatch, key)
	}
	current += delta
	e.str = strconv.FormatInt(current, 10)
	return current, nil
}

func (s *memoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return ErrNotFound
	}
	e.expiresAt = s.now().Add(ttl)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, key := range keys {
		if s.lookup(key) != nil {
			delete(s.data, key)
			removed++
		}
	}
	return removed, nil
}

func (s *memoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := make([]string, 0)
	for key := range s.data {
		if s.lookup(key) == nil {
			continue
		}
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, fmt.Errorf("store: bad pattern %q: %w", pattern, err)
		}
		if ok {
			matches = append(matches, key)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

func (s *memoryStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		e = &entry{kind: kindHash, hash: make(map[string]string)}
		s.data[key] = e
	}
	if e.kind != kindHash {
		return fmt.Errorf("%w: HSET against non-hash key %q", ErrTypeMismatch, key)
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	return nil
}

func (s *memoryStore) HGet(_ context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return "", ErrNotFound
	}
	if e.kind != kindHash {
		return "", fmt.Errorf("%w: HGET against non-hash key %q", ErrTypeMismatch, key)
	}
	val, ok := e.hash[field]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (s *memoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return map[string]string{}, nil
	}
	if e.kind != kindHash {
		return nil, fmt.Errorf("%w: HGETALL against non-hash key %q", ErrTypeMismatch, key)
	}
	out := make(map[string]string, len(e.hash))
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStore) HIncr(_ context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		e = &entry{kind: kindHash, hash: make(map[string]string)}
		s.data[key] = e
	}
	if e.kind != kindHash {
		return 0, fmt.Errorf("%w: HINCRBY against non-hash key %q", ErrTypeMismatch, key)
	}
	current := int64(0)
	if raw, ok := e.hash[field]; ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: field %q at %q is not an integer", ErrTypeMismatch, field, key)
		}
		current = parsed
	}
	current += delta
	e.hash[field] = strconv.FormatInt(current, 10)
	return current, nil
}

func (s *memoryStore) ZAdd(_ context.Context, key, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		e = &entry{kind: kindZSet, zset: make(map[string]float64)}
		s.data[key] = e
	}
	if e.kind != kindZSet {
		return fmt.Errorf("%w: ZADD against non-zset key %q", ErrTypeMismatch, key)
	}
	e.zset[member] = score
	return nil
}

func (s *memoryStore) ZRevRange(_ context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return []ScoredMember{}, nil
	}
	if e.kind != kindZSet {
		return nil, fmt.Errorf("%w: ZREVRANGE against non-zset key %q", ErrTypeMismatch, key)
	}

	members := make([]ScoredMember, 0, len(e.zset))
	for member, score := range e.zset {
		members = append(members, ScoredMember{Member: member, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member < members[j].Member
	})

	// Redis ranges are inclusive and accept negative offsets from the tail.
	n := int64(len(members))
	if start < 0 {
		start = n + start
	}
	if start < 0 {
		start = 0
	}
	if stop < 0 {
		stop = n + stop
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []ScoredMember{}, nil
	}
	return members[start : stop+1], nil
}

func (s *memoryStore) Publish(_ context.Context, channel, payload string) error {
	s.mu.Lock()
	subs := make([]chan string, len(s.subs[channel]))
	copy(subs, s.subs[channel])
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
			// Match the fire-and-forget delivery of Redis pub/sub.
		}
	}
	return nil
}

func (s *memoryStore) Subscribe(_ context.Context, channel string) (<-chan string, func(), error) {
	ch := make(chan string, 16)
	s.mu.Lock()
	s.subs[channel] = append(s.subs[channel], ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		current := s.subs[channel]
		for i, sub := range current {
			if sub == ch {
				s.subs[channel] = append(current[:i], current[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for channel, subs := range s.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(s.subs, channel)
	}
	return nil
}
