package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/treemana/sieve/cache"
	"github.com/treemana/sieve/config"
	"github.com/treemana/sieve/log"
	"github.com/treemana/sieve/udp"
)

// ErrListenerStopped is returned by Run when a listener exits while the
// process is still meant to be running.
var ErrListenerStopped = errors.New("listener stopped unexpectedly")

// Supervisor runs one listener per bind target plus the cache sweeper. The
// first task to fail stops every other one.
type Supervisor struct {
	servers []*udp.Server
	cache   *cache.Cache
	sweep   time.Duration
}

// New binds every target. Either all targets are bound or none is kept open.
func New(targets []config.Target, h udp.Handler, c *cache.Cache, sweep time.Duration) (*Supervisor, error) {
	if len(targets) == 0 {
		return nil, errors.New("no bind target")
	}

	if c == nil {
		return nil, errors.New("nil cache")
	}

	sv := Supervisor{
		servers: make([]*udp.Server, 0, len(targets)),
		cache:   c,
		sweep:   sweep,
	}

	for _, t := range targets {
		if err := t.Validate(); err != nil {
			sv.stop()
			return nil, err
		}

		s, err := udp.New(t.IP(), t.Port, h)
		if err != nil {
			sv.stop()
			return nil, fmt.Errorf("bind %s: %w", t, err)
		}
		sv.servers = append(sv.servers, s)
	}

	return &sv, nil
}

// Servers returns the bound listeners in target order.
func (sv *Supervisor) Servers() []*udp.Server {
	return sv.servers
}

// Run blocks until ctx is done or a task fails. Every listener is stopped and
// drained before it returns; a nil error means a clean shutdown.
func (sv *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sv.cache.Run(gctx, sv.sweep)
		return nil
	})

	for _, s := range sv.servers {
		s := s
		g.Go(func() error {
			err := s.Serve(gctx)
			if err != nil {
				return err
			}
			if ctx.Err() == nil && gctx.Err() == nil {
				return fmt.Errorf("%s: %w", s.Addr(), ErrListenerStopped)
			}
			return nil
		})
	}

	log.Sugar.Infof("supervisor running %d listener(s)", len(sv.servers))

	err := g.Wait()
	sv.stop()

	if err != nil {
		log.Sugar.Errorf("supervisor stopped, error=[%+v]", err)
		return err
	}

	log.Sugar.Info("supervisor stopped")
	return nil
}

func (sv *Supervisor) stop() {
	for _, s := range sv.servers {
		s.Stop()
	}
}
