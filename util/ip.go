package util

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	// ipv*Flags is the set of socket option flags for configuring IPv* UDP
	// connection to receive an appropriate OOB data.  For both versions the flags
	// are:
	//   FlagDst
	//   FlagInterface
	ipv4Flags = ipv4.FlagDst | ipv4.FlagInterface
	ipv6Flags = ipv6.FlagDst | ipv6.FlagInterface
)

var (
	oobSize = getOOBSize()

	ErrNoLocalIP = errors.New("no usable local address")
)

// OOBSize is the buffer size ReadMsgUDP needs for the control messages.
func OOBSize() int { return oobSize }

// SetControlMessage asks the kernel to report the destination address of
// every datagram read from conn.
func SetControlMessage(conn *net.UDPConn) error {

	err4 := ipv4.NewPacketConn(conn).SetControlMessage(ipv4Flags, true)
	if err4 == nil {
		return nil
	}

	if err6 := ipv6.NewPacketConn(conn).SetControlMessage(ipv6Flags, true); err6 != nil {
		return fmt.Errorf("ipv4 [%v], ipv6 [%w]", err4, err6)
	}

	return nil
}

// getOOBSize returns maximum size of the received OOB data.
func getOOBSize() (oobSize int) {
	l4, l6 := len(ipv4.NewControlMessage(ipv4Flags)), len(ipv6.NewControlMessage(ipv6Flags))

	if l4 >= l6 {
		return l4
	}

	return l6
}

// GetDstFromOOB returns the destination address carried by the control
// messages of a datagram, nil when there is none.
func GetDstFromOOB(oob []byte) net.IP {
	if len(oob) == 0 {
		return nil
	}

	var cm4 ipv4.ControlMessage
	if err := cm4.Parse(oob); err == nil && cm4.Dst != nil {
		return cm4.Dst
	}

	var cm6 ipv6.ControlMessage
	if err := cm6.Parse(oob); err == nil && cm6.Dst != nil {
		return cm6.Dst
	}

	return nil
}

// GetOOBWithSrc makes the OOB data with a specified source IP.
func GetOOBWithSrc(ip net.IP) []byte {
	if ip4 := ip.To4(); ip4 != nil {
		return (&ipv4.ControlMessage{Src: ip}).Marshal()
	}

	return (&ipv6.ControlMessage{Src: ip}).Marshal()
}

// LocalIP returns the first IPv4 address of an interface that is up and is
// not a loopback.
func LocalIP() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil && ip4.IsGlobalUnicast() {
				return ip4, nil
			}
		}
	}

	return nil, ErrNoLocalIP
}
