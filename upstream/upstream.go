package upstream

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/treemana/sieve/log"
)

const (
	// DefaultAddress is the public recursive resolver every miss is sent to.
	DefaultAddress = "8.8.8.8:53"
	DefaultTimeout = 5 * time.Second

	udpSize = dns.DefaultMsgSize
)

var (
	ErrTruncated = errors.New("upstream response truncated")
	ErrRcode     = errors.New("upstream response code")
)

// Resolver forwards single questions to one upstream server over UDP.
// It never retries, the client will ask again.
type Resolver struct {
	address string
	client  *dns.Client
}

func New(address string, timeout time.Duration) (*Resolver, error) {
	if len(address) == 0 {
		address = DefaultAddress
	}

	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, fmt.Errorf("invalid upstream address %q: %w", address, err)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	log.Sugar.Infof("upstream resolver %s, timeout %s", address, timeout)

	return &Resolver{
		address: address,
		client: &dns.Client{
			Net:     "udp",
			Timeout: timeout,
			UDPSize: udpSize,
		},
	}, nil
}

func (r *Resolver) Address() string { return r.address }
