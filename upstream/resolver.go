package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"

	"github.com/treemana/sieve/log"
)

// Resolve asks the upstream server for name and returns its answer section.
// NXDOMAIN and empty NOERROR answers both return no records and no error.
func (r *Resolver) Resolve(ctx context.Context, name string, qType uint16) ([]dns.RR, error) {
	req := new(dns.Msg)
	req.SetQuestion(dns.Fqdn(name), qType)
	req.RecursionDesired = true
	req.SetEdns0(udpSize, false)

	ctx, cancel := context.WithTimeout(ctx, r.client.Timeout)
	defer cancel()

	// replies with another id are skipped by the client
	start := time.Now()
	resp, _, err := r.client.ExchangeContext(ctx, req, r.address)
	if err != nil {
		log.Sugar.Errorf("%s %s [%s]", r.address, err, req.Question[0].String())
		return nil, fmt.Errorf("exchange with %s: %w", r.address, err)
	}
	elapsed := time.Since(start)

	if resp.Truncated {
		return nil, fmt.Errorf("%w: %s", ErrTruncated, req.Question[0].String())
	}

	switch resp.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
	default:
		return nil, fmt.Errorf("%w %s: %s", ErrRcode, dns.RcodeToString[resp.Rcode], req.Question[0].String())
	}

	log.Sugar.Debugf("%s response success, cost %s, answer %d", r.address, elapsed, len(resp.Answer))

	return resp.Answer, nil
}
