package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/treemana/sieve/log"
)

const DefaultPort = 53

type Target struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

func (t Target) String() string {
	return net.JoinHostPort(t.Address, strconv.Itoa(t.Port))
}

// IP returns the parsed address, nil when it is not an IP literal.
func (t Target) IP() net.IP {
	return net.ParseIP(t.Address)
}

// Validate checks the address is an IP literal and the port fits, 0 asks the
// system for any free port.
func (t Target) Validate() error {
	if t.IP() == nil {
		return fmt.Errorf("target %s: invalid address", t)
	}
	if t.Port < 0 || t.Port > 65535 {
		return fmt.Errorf("target %s: invalid port", t)
	}
	return nil
}

// BindTargets returns where to listen, first match wins:
//  1. the hosts of the configuration file
//  2. HOST from the environment
//  3. the detected local address
//  4. loopback
//
// Outside of the configuration file the port is PORT from the environment,
// or 53.
func BindTargets(o *Option, getenv func(string) string, detect func() (net.IP, error)) []Target {
	if o != nil && len(o.Hosts) > 0 {
		return o.Hosts
	}

	var port = DefaultPort
	if p, err := strconv.Atoi(getenv("PORT")); err == nil && p > 0 && p <= 65535 {
		port = p
	}

	if ip := net.ParseIP(getenv("HOST")); ip != nil {
		return []Target{{Address: ip.String(), Port: port}}
	}

	if detect != nil {
		ip, err := detect()
		if err == nil && ip != nil {
			return []Target{{Address: ip.String(), Port: port}}
		}
		log.Sugar.Warnf("local address detection failed, error=[%+v]", err)
	}

	return []Target{{Address: net.IPv4(127, 0, 0, 1).String(), Port: port}}
}
