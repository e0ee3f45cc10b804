package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// ErrMalformed is returned for client messages that must be dropped
// without a reply.
var ErrMalformed = errors.New("malformed query")

// ErrNotImplemented is returned for well formed messages whose opcode is not
// QUERY. They are answered with NOTIMP.
var ErrNotImplemented = errors.New("opcode not implemented")

// Query is a decoded client request, read-only once built.
type Query struct {
	ID               uint16
	RecursionDesired bool
	Question         dns.Question
}

// NewQuery accepts only standard queries carrying exactly one question.
// Messages with the response bit set are rejected as well, answering them
// would turn the server into a reflector.
func NewQuery(m *dns.Msg) (*Query, error) {
	if m == nil {
		return nil, ErrMalformed
	}

	if m.Response {
		return nil, fmt.Errorf("%w: id=%d already answered", ErrMalformed, m.Id)
	}

	if len(m.Question) != 1 {
		return nil, fmt.Errorf("%w: id=%d question=%d", ErrMalformed, m.Id, len(m.Question))
	}

	if m.Opcode != dns.OpcodeQuery {
		return nil, fmt.Errorf("%w: id=%d opcode=%s", ErrNotImplemented, m.Id, dns.OpcodeToString[m.Opcode])
	}

	return &Query{
		ID:               m.Id,
		RecursionDesired: m.RecursionDesired,
		Question:         m.Question[0],
	}, nil
}

// Key returns the cache key of the query's question.
func (q *Query) Key() CacheKey {
	return NewCacheKey(q.Question.Name, q.Question.Qtype)
}

func (q *Query) String() string {
	return q.Question.String()
}

// CacheKey identifies one cached answer. Name is always normalized.
type CacheKey struct {
	Name string
	Type uint16
}

func NewCacheKey(name string, qType uint16) CacheKey {
	return CacheKey{Name: Normalize(name), Type: qType}
}

func (k CacheKey) String() string {
	return k.Name + "/" + dns.Type(k.Type).String()
}

// Normalize lowercases a domain name and strips the trailing root dot.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}
