package udp

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/miekg/dns"

	"github.com/treemana/sieve/log"
	"github.com/treemana/sieve/util"
)

func (s *Server) produce(packet []byte, remote *net.UDPAddr, dst net.IP, sn uint64) {
	ctx := log.WithSN(context.Background(), sn)

	log.Sugar.Debugf("sn=%d, %d bytes from %s", sn, len(packet), remote)

	resp := s.handler.Handle(ctx, packet)
	if resp == nil {
		return
	}

	s.write(resp, remote, dst, sn)
}

func (s *Server) read() error {
	bytes := make([]byte, dns.DefaultMsgSize)

	var oob []byte
	if s.oob {
		oob = make([]byte, util.OOBSize())
	}

	for {
		n, oobn, _, remoteAddr, err := s.conn.ReadMsgUDP(bytes, oob)
		if err != nil {
			if s.state.Load() != stateServing {
				log.Sugar.Info("server read stopped")
				return nil
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}

			log.Sugar.Error("server read error : ", err)
			return fmt.Errorf("read udp %s: %w", s.address, err)
		}

		if n <= 0 {
			log.Sugar.Warn("server read 0 byte")
			continue
		}

		var dst net.IP
		if oobn > 0 {
			dst = util.GetDstFromOOB(oob[:oobn])
		}

		// make a copy of all bytes because ReadMsgUDP() will overwrite contents of b on next call
		// we need the contents to survive the call because we're handling them in goroutine
		packet := make([]byte, n)
		copy(packet, bytes)

		s.reqWG.Add(1)
		go func() {
			defer s.reqWG.Done()
			s.produce(packet, remoteAddr, dst, s.serial.Add(1))
		}()
	}
}
