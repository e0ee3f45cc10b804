package udp

import (
	"net"

	"github.com/treemana/sieve/log"
	"github.com/treemana/sieve/util"
)

// write sends resp to remote. With control messages enabled the reply leaves
// from dst, the address the query arrived on.
func (s *Server) write(resp []byte, remote *net.UDPAddr, dst net.IP, sn uint64) {
	var err error
	if s.oob && dst != nil {
		_, _, err = s.conn.WriteMsgUDP(resp, util.GetOOBWithSrc(dst), remote)
	} else {
		_, err = s.conn.WriteToUDP(resp, remote)
	}

	if err != nil {
		log.Sugar.Errorf("sn=%d, udp connection write to %s error=[%+v]", sn, remote, err)
	}
}
