package cache

/*

The answers live in a fixed number of shards, each one map behind one
sync.RWMutex. Get only takes the read lock of a single shard; Put, Sweep and
the eager removal of an expired entry take the write lock. No lock is ever
held across network I/O.

*/

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/miekg/dns"

	"github.com/treemana/sieve/model"
)

const (
	defaultShards = 16
	minTTL        = time.Second
)

type entry struct {
	records   []dns.RR
	expiresAt time.Time
}

type shard struct {
	mu sync.RWMutex
	m  map[model.CacheKey]entry
}

type Cache struct {
	shards []*shard
	mask   uint64
	now    func() time.Time
}

type Option func(*Cache)

// WithClock replaces time.Now, tests use it to move time forward.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithShards sets the shard count, rounded up to a power of two.
func WithShards(n int) Option {
	return func(c *Cache) {
		if n < 1 {
			n = 1
		}
		size := 1
		for size < n {
			size <<= 1
		}
		c.shards = make([]*shard, size)
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		shards: make([]*shard, defaultShards),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	for i := range c.shards {
		c.shards[i] = &shard{m: make(map[model.CacheKey]entry)}
	}
	c.mask = uint64(len(c.shards) - 1)

	return c
}

func (c *Cache) shard(key model.CacheKey) *shard {
	h := xxhash.Sum64String(key.Name) ^ uint64(key.Type)
	return c.shards[h&c.mask]
}

// Get returns the records of key while they are fresh, as copies whose TTL is
// lowered to the time left in the cache. An expired entry is removed on the
// spot.
func (c *Cache) Get(key model.CacheKey) ([]dns.RR, bool) {
	s := c.shard(key)
	now := c.now()

	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if now.Before(e.expiresAt) {
		return aged(e.records, e.expiresAt.Sub(now)), true
	}

	s.mu.Lock()
	// a concurrent Put may have refreshed the entry in between
	if e, ok = s.m[key]; ok && !now.Before(e.expiresAt) {
		delete(s.m, key)
	}
	s.mu.Unlock()

	return nil, false
}

// aged copies records, a TTL never exceeds left rounded up to the second.
func aged(records []dns.RR, left time.Duration) []dns.RR {
	if len(records) == 0 {
		return records
	}

	ttl := uint32((left + time.Second - 1) / time.Second)

	out := make([]dns.RR, len(records))
	for i, rr := range records {
		out[i] = dns.Copy(rr)
		if hdr := out[i].Header(); hdr.Ttl > ttl {
			hdr.Ttl = ttl
		}
	}
	return out
}

// Put stores records for ttl seconds, at least one second. The last writer
// wins.
func (c *Cache) Put(key model.CacheKey, records []dns.RR, ttl uint32) {
	lifetime := time.Duration(ttl) * time.Second
	if lifetime < minTTL {
		lifetime = minTTL
	}

	s := c.shard(key)
	e := entry{records: records, expiresAt: c.now().Add(lifetime)}

	s.mu.Lock()
	s.m[key] = e
	s.mu.Unlock()
}

// Sweep removes every entry expired at now and returns how many were removed.
func (c *Cache) Sweep(now time.Time) int {
	var removed int
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.m {
			if !e.expiresAt.After(now) {
				delete(s.m, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (c *Cache) Len() int {
	var n int
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}
