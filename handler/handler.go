// Package handler turns one client datagram into one response datagram:
// denylist check, cache lookup, upstream recursion, cache population and
// response assembly.
package handler

import (
	"context"
	"errors"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/treemana/sieve/log"
	"github.com/treemana/sieve/model"
	"github.com/treemana/sieve/util"
)

type Denylist interface {
	Contains(domain string) bool
}

type AnswerCache interface {
	Get(key model.CacheKey) ([]dns.RR, bool)
	Put(key model.CacheKey, records []dns.RR, ttl uint32)
}

type Resolver interface {
	Resolve(ctx context.Context, name string, qType uint16) ([]dns.RR, error)
}

// Handler keeps no per-request state; it is shared by every listener.
type Handler struct {
	deny    Denylist
	answers AnswerCache
	up      Resolver

	// concurrent misses for the same key share one upstream call
	flight singleflight.Group
}

func New(deny Denylist, answers AnswerCache, up Resolver) *Handler {
	return &Handler{
		deny:    deny,
		answers: answers,
		up:      up,
	}
}

// Handle returns the packed response for packet, or nil when the packet must
// be dropped without a reply.
func (h *Handler) Handle(ctx context.Context, packet []byte) []byte {
	sn := log.SNFrom(ctx)

	var req = new(dns.Msg)
	if err := req.Unpack(packet); err != nil {
		log.Logger.Debug("drop undecodable datagram", log.SN(sn), zap.Int("len", len(packet)), zap.Error(err))
		return nil
	}

	q, err := model.NewQuery(req)
	if errors.Is(err, model.ErrNotImplemented) {
		log.Logger.Debug("refuse opcode", log.SN(sn), zap.Error(err))
		return notImplemented(req)
	}
	if err != nil {
		log.Logger.Debug("drop malformed query", log.SN(sn), zap.Error(err))
		return nil
	}

	start := time.Now()
	resp, cached := h.exchange(ctx, q)

	size, edns := util.DNSUDPSize(req)
	if edns {
		resp.SetEdns0(size, false)
	}
	resp.Truncate(int(size))

	raw, err := resp.Pack()
	if err != nil {
		log.Logger.Error("response pack", log.SN(sn), zap.Uint16("id", q.ID), zap.Error(err))
		if raw, err = util.DNSNewFailure(q).Pack(); err != nil {
			return nil
		}
	}

	log.Logger.Info("answered",
		log.SN(sn),
		zap.Uint16("id", q.ID),
		zap.String("query", q.String()),
		zap.String("rcode", dns.RcodeToString[resp.Rcode]),
		zap.Int("answer", len(resp.Answer)),
		zap.Bool("cache", cached),
		zap.Duration("cost", time.Since(start)),
	)

	return raw
}

// Exchange resolves a validated query into its response message.
func (h *Handler) Exchange(ctx context.Context, q *model.Query) *dns.Msg {
	resp, _ := h.exchange(ctx, q)
	return resp
}

func (h *Handler) exchange(ctx context.Context, q *model.Query) (*dns.Msg, bool) {
	key := q.Key()

	if h.deny.Contains(key.Name) {
		return util.DNSNewNXDomain(q), false
	}

	if records, ok := h.answers.Get(key); ok {
		return util.DNSNewResponseByAnswer(q, records), true
	}

	records, err := h.resolve(ctx, key)
	if err != nil {
		log.Logger.Warn("upstream failure", log.SN(log.SNFrom(ctx)), zap.String("key", key.String()), zap.Error(err))
		return util.DNSNewFailure(q), false
	}

	return util.DNSNewResponseByAnswer(q, records), false
}

func (h *Handler) resolve(ctx context.Context, key model.CacheKey) ([]dns.RR, error) {
	v, err, shared := h.flight.Do(key.String(), func() (any, error) {
		records, err := h.up.Resolve(ctx, key.Name, key.Type)
		if err != nil {
			return nil, err
		}
		h.answers.Put(key, records, util.TTL(records))
		return records, nil
	})

	if shared {
		log.Logger.Debug("upstream call shared", log.SN(log.SNFrom(ctx)), zap.String("key", key.String()))
	}

	if err != nil {
		return nil, err
	}

	records, _ := v.([]dns.RR)
	return records, nil
}

func notImplemented(req *dns.Msg) []byte {
	resp := new(dns.Msg)
	resp.SetRcode(req, dns.RcodeNotImplemented)
	resp.RecursionAvailable = true

	raw, err := resp.Pack()
	if err != nil {
		return nil
	}
	return raw
}
