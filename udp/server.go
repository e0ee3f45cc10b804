package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/treemana/sieve/log"
	"github.com/treemana/sieve/util"
)

const (
	stateBound int32 = iota
	stateServing
	stateStopped
)

// Handler turns a request datagram into a response datagram, nil means no
// reply.
type Handler interface {
	Handle(ctx context.Context, packet []byte) []byte
}

// Server owns one bound UDP socket. New binds it, Serve reads from it until
// Stop, ctx cancellation or an unrecoverable socket error.
type Server struct {
	address *net.UDPAddr
	conn    *net.UDPConn
	handler Handler
	oob     bool         // destination address control messages enabled
	state   atomic.Int32 // bound, serving or stopped

	reqWG    sync.WaitGroup
	readDone chan struct{}
	serial   atomic.Uint64

	stopOnce sync.Once
}

func New(ip net.IP, port int, handler Handler) (*Server, error) {

	if len(ip) == 0 {
		return nil, errors.New("invalid ip")
	}

	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port=%d", port)
	}

	if handler == nil {
		return nil, errors.New("nil handler")
	}

	s := Server{
		address:  &net.UDPAddr{Port: port, IP: ip},
		handler:  handler,
		readDone: make(chan struct{}),
	}

	if err := s.setConn(); err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", s.address, err)
	}

	return &s, nil
}

// Addr returns the bound address, with the actual port when 0 was asked for.
func (s *Server) Addr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func (s *Server) Serve(ctx context.Context) error {
	if !s.state.CompareAndSwap(stateBound, stateServing) {
		return errors.New("server already serving or stopped")
	}

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stop:
		}
	}()

	log.Sugar.Infof("server %s running ...", s.Addr())

	err := s.read()
	close(s.readDone)

	return err
}

// Stop stops reading, waits for every in-flight request and closes the
// socket. Concurrent and repeated calls all return once the socket is closed.
func (s *Server) Stop() {
	s.stopOnce.Do(s.stop)
}

func (s *Server) stop() {
	if s.state.Swap(stateStopped) == stateServing {
		log.Sugar.Infof("server %s read stopping", s.address)

		// unblock the pending read
		if err := s.conn.SetReadDeadline(time.Now()); err != nil {
			log.Sugar.Warnf("server %s set read deadline error=[%+v]", s.address, err)
		}
		<-s.readDone

		log.Sugar.Infof("server %s waiting all request done", s.address)
		s.reqWG.Wait()
	}

	if err := s.conn.Close(); err != nil {
		log.Sugar.Errorf("server udp connection close error=[%+v]", err)
	}
	log.Sugar.Infof("server %s stopped, serial=%d", s.address, s.serial.Load())
}

func (s *Server) setConn() error {
	var err error
	if s.conn, err = net.ListenUDP("udp", s.address); err != nil {
		log.Sugar.Errorf("server udp [%s] listen error=[%+v]", s.address, err)
		return err
	}

	if !s.address.IP.IsUnspecified() {
		return nil
	}

	// a wildcard socket must answer from the address the query was sent to
	if err = util.SetControlMessage(s.conn); err != nil {
		log.Sugar.Warnf("server udp [%s] connection set control error=[%+v]", s.address, err)
		return nil
	}
	s.oob = true

	return nil
}
