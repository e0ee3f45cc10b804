package util

import (
	"github.com/miekg/dns"

	"github.com/treemana/sieve/model"
)

// DefaultTTL is used for answers without records so that empty results
// do not stay cached forever.
const DefaultTTL uint32 = 60

// DNSNewReply returns the response skeleton for q: same id, the question
// echoed, recursion desired mirrored and recursion available set.
func DNSNewReply(q *model.Query) *dns.Msg {
	var m = new(dns.Msg)
	m.Id = q.ID
	m.Response = true
	m.Opcode = dns.OpcodeQuery
	m.RecursionDesired = q.RecursionDesired
	m.RecursionAvailable = true
	m.Question = []dns.Question{q.Question}
	m.Rcode = dns.RcodeSuccess
	return m
}

// DNSNewNXDomain answers a blocked name authoritatively with no records.
func DNSNewNXDomain(q *model.Query) *dns.Msg {
	var m = DNSNewReply(q)
	m.Authoritative = true
	m.Rcode = dns.RcodeNameError
	return m
}

func DNSNewFailure(q *model.Query) *dns.Msg {
	var m = DNSNewReply(q)
	m.Rcode = dns.RcodeServerFailure
	return m
}

func DNSNewResponseByAnswer(q *model.Query, answer []dns.RR) *dns.Msg {
	var m = DNSNewReply(q)
	m.Answer = answer
	return m
}

// TTL returns the ttl of the first record, or DefaultTTL without records.
func TTL(records []dns.RR) uint32 {
	if len(records) == 0 || records[0] == nil {
		return DefaultTTL
	}
	return records[0].Header().Ttl
}

// DNSUDPSize returns the payload size the client accepts over UDP.
func DNSUDPSize(m *dns.Msg) (uint16, bool) {
	var opt = m.IsEdns0()
	if opt == nil {
		return dns.MinMsgSize, false
	}

	size := opt.UDPSize()
	if size < dns.MinMsgSize {
		size = dns.MinMsgSize
	}
	return size, true
}
