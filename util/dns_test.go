package util

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treemana/sieve/model"
)

func query(t *testing.T, rd bool) *model.Query {
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)
	req.Id = 777
	req.RecursionDesired = rd

	q, err := model.NewQuery(req)
	require.NoError(t, err)
	return q
}

func TestDNSNewReply(t *testing.T) {
	for _, rd := range []bool{true, false} {
		q := query(t, rd)

		tests := []struct {
			name  string
			msg   *dns.Msg
			rcode int
			aa    bool
		}{
			{name: "nxdomain", msg: DNSNewNXDomain(q), rcode: dns.RcodeNameError, aa: true},
			{name: "failure", msg: DNSNewFailure(q), rcode: dns.RcodeServerFailure},
			{name: "answer", msg: DNSNewResponseByAnswer(q, nil), rcode: dns.RcodeSuccess},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				raw, err := tt.msg.Pack()
				require.NoError(t, err)

				var got dns.Msg
				require.NoError(t, got.Unpack(raw))
				assert.Equal(t, uint16(777), got.Id)
				assert.True(t, got.Response)
				assert.Equal(t, rd, got.RecursionDesired)
				assert.True(t, got.RecursionAvailable)
				assert.Equal(t, tt.aa, got.Authoritative)
				assert.Equal(t, tt.rcode, got.Rcode)
				assert.Equal(t, []dns.Question{q.Question}, got.Question)
				assert.Empty(t, got.Answer)
			})
		}
	}
}

func TestTTL(t *testing.T) {
	a := &dns.A{Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300}, A: net.IPv4(192, 0, 2, 1)}
	b := &dns.A{Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 10}, A: net.IPv4(192, 0, 2, 2)}

	assert.Equal(t, uint32(300), TTL([]dns.RR{a, b}), "first record wins")
	assert.Equal(t, DefaultTTL, TTL(nil))
}

func TestDNSUDPSize(t *testing.T) {
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	size, ok := DNSUDPSize(req)
	assert.False(t, ok)
	assert.Equal(t, uint16(dns.MinMsgSize), size)

	req.SetEdns0(256, false)
	size, ok = DNSUDPSize(req)
	assert.True(t, ok)
	assert.Equal(t, uint16(dns.MinMsgSize), size)

	req.IsEdns0().SetUDPSize(1232)
	size, _ = DNSUDPSize(req)
	assert.Equal(t, uint16(1232), size)
}
