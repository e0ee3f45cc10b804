package cache

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treemana/sieve/model"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func aRecord(name string, ttl uint32, ip string) dns.RR {
	return &dns.A{
		Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
		A:   net.ParseIP(ip).To4(),
	}
}

func TestGetPut(t *testing.T) {
	c := New()
	key := model.NewCacheKey("example.com.", dns.TypeA)

	_, ok := c.Get(key)
	assert.False(t, ok)

	records := []dns.RR{aRecord("example.com", 300, "93.184.216.34")}
	c.Put(key, records, 300)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, records, got)

	_, ok = c.Get(model.NewCacheKey("example.com", dns.TypeAAAA))
	assert.False(t, ok, "type is part of the key")

	got, ok = c.Get(model.NewCacheKey("EXAMPLE.com", dns.TypeA))
	assert.True(t, ok, "names are normalized")
	assert.Equal(t, records, got)
}

func TestExpiry(t *testing.T) {
	clk := newClock()
	c := New(WithClock(clk.Now))
	key := model.NewCacheKey("example.com", dns.TypeA)

	c.Put(key, []dns.RR{aRecord("example.com", 300, "93.184.216.34")}, 300)

	clk.Add(299 * time.Second)
	_, ok := c.Get(key)
	assert.True(t, ok)

	clk.Add(time.Second)
	_, ok = c.Get(key)
	assert.False(t, ok, "entry must not be served at creation + ttl")
	assert.Zero(t, c.Len(), "expired entry is removed on lookup")
}

func TestGetAgesTTL(t *testing.T) {
	clk := newClock()
	c := New(WithClock(clk.Now))
	key := model.NewCacheKey("example.com", dns.TypeA)

	stored := []dns.RR{aRecord("example.com", 300, "192.0.2.1"), aRecord("example.com", 30, "192.0.2.2")}
	c.Put(key, stored, 300)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, uint32(300), got[0].Header().Ttl)
	assert.Equal(t, uint32(30), got[1].Header().Ttl, "a TTL is never raised")

	clk.Add(299*time.Second + 500*time.Millisecond)
	got, ok = c.Get(key)
	require.True(t, ok)
	assert.Equal(t, uint32(1), got[0].Header().Ttl)
	assert.Equal(t, uint32(1), got[1].Header().Ttl)
	assert.Equal(t, "192.0.2.1", got[0].(*dns.A).A.String())

	assert.Equal(t, uint32(300), stored[0].Header().Ttl, "stored records are not modified")
	assert.Equal(t, uint32(30), stored[1].Header().Ttl)
}

func TestPutMinimumTTL(t *testing.T) {
	clk := newClock()
	c := New(WithClock(clk.Now))
	key := model.NewCacheKey("zero.example.com", dns.TypeA)

	c.Put(key, nil, 0)

	_, ok := c.Get(key)
	assert.True(t, ok, "zero ttl is raised to one second")

	clk.Add(time.Second)
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestPutOverwrite(t *testing.T) {
	c := New()
	key := model.NewCacheKey("example.com", dns.TypeA)

	c.Put(key, []dns.RR{aRecord("example.com", 60, "192.0.2.1")}, 60)
	second := []dns.RR{aRecord("example.com", 60, "192.0.2.2")}
	c.Put(key, second, 60)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, second, got)
	assert.Equal(t, 1, c.Len())
}

func TestSweep(t *testing.T) {
	clk := newClock()
	c := New(WithClock(clk.Now), WithShards(4))

	c.Put(model.NewCacheKey("short.example.com", dns.TypeA), nil, 10)
	c.Put(model.NewCacheKey("edge.example.com", dns.TypeA), nil, 60)
	c.Put(model.NewCacheKey("long.example.com", dns.TypeA), nil, 3600)
	require.Equal(t, 3, c.Len())

	now := clk.Now().Add(60 * time.Second)
	assert.Equal(t, 2, c.Sweep(now), "entries expiring at or before now are removed")
	assert.Equal(t, 0, c.Sweep(now), "a second sweep removes nothing")
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get(model.NewCacheKey("long.example.com", dns.TypeA))
	assert.True(t, ok)
}

func TestWithShards(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: -1, want: 1},
		{in: 1, want: 1},
		{in: 3, want: 4},
		{in: 16, want: 16},
		{in: 17, want: 32},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			c := New(WithShards(tt.in))
			assert.Len(t, c.shards, tt.want)
			assert.Equal(t, uint64(tt.want-1), c.mask)
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				key := model.NewCacheKey(fmt.Sprintf("host%d.example.com", j%50), dns.TypeA)
				if j%3 == 0 {
					c.Put(key, []dns.RR{aRecord(key.Name, 60, "192.0.2.1")}, 60)
					continue
				}
				c.Get(key)
				if j%97 == 0 {
					c.Sweep(time.Now())
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}

func TestRun(t *testing.T) {
	clk := newClock()
	c := New(WithClock(clk.Now))
	c.Put(model.NewCacheKey("example.com", dns.TypeA), nil, 1)
	clk.Add(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep did not stop")
	}
}
