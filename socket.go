package rudp

import (
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

// socket wraps a bound net.PacketConn with the three datagram operations the
// spec requires: a plain send, an indefinitely-blocking receive (used only at
// the two points where the peer may legitimately take unbounded time), and a
// timed receive used everywhere else (SPEC_FULL.md §4.2).
type socket struct {
	pconn net.PacketConn
}

func newSocket(pconn net.PacketConn) *socket {
	return &socket{pconn: pconn}
}

// send writes exactly one datagram to peer.
func (s *socket) send(frame []byte, peer net.Addr) error {
	_, err := s.pconn.WriteTo(frame, peer)
	if err != nil {
		return wrapIO("send", err)
	}
	return nil
}

// recvBlocking blocks until a datagram arrives, with no deadline.
func (s *socket) recvBlocking(buf []byte) (int, net.Addr, error) {
	if err := s.pconn.SetReadDeadline(time.Time{}); err != nil {
		return 0, nil, wrapIO("clear read deadline", err)
	}
	n, addr, err := s.pconn.ReadFrom(buf)
	if err != nil {
		return 0, nil, wrapIO("recv", err)
	}
	return n, addr, nil
}

// errTimedOut is returned by recvTimeout when no datagram arrives within
// timeoutMs; it is not part of the public error taxonomy since callers treat
// it as a local retry signal, never a returned error (SPEC_FULL.md §4.2).
var errTimedOut = &timeoutSentinel{}

type timeoutSentinel struct{}

func (*timeoutSentinel) Error() string { return "rudp: receive timed out" }

// isTimeout reports whether err is the timeout sentinel.
func isTimeout(err error) bool {
	_, ok := err.(*timeoutSentinel)
	return ok
}

// recvTimeout receives one datagram, returning errTimedOut if none arrives
// within timeoutMs.
func (s *socket) recvTimeout(buf []byte, timeoutMs uint16) (int, net.Addr, error) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	if err := s.pconn.SetReadDeadline(deadline); err != nil {
		return 0, nil, wrapIO("set read deadline", err)
	}

	n, addr, err := s.pconn.ReadFrom(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, errTimedOut
		}
		return 0, nil, wrapIO("recv", err)
	}
	return n, addr, nil
}

func (s *socket) close() error {
	return s.pconn.Close()
}

func (s *socket) localAddr() net.Addr {
	return s.pconn.LocalAddr()
}

// listenUDP binds a UDP socket on port on all interfaces, ready to accept
// connections. The socket is opened with net.ListenPacket's defaults, which
// do not set SO_REUSEADDR for a unicast address, so address reuse is not
// enabled.
func listenUDP(port uint16) (*socket, error) {
	pconn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, wrapIO("listen", err)
	}
	log.WithField("addr", pconn.LocalAddr()).Debug("bound listening socket")
	return newSocket(pconn), nil
}

// dialUDP opens an ephemeral local UDP socket without connecting it to a
// remote peer; the peer address is supplied per-send/recv by the handshake
// and transfer engines.
func dialUDP() (*socket, error) {
	pconn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, wrapIO("open local socket", err)
	}
	log.WithField("addr", pconn.LocalAddr()).Debug("bound initiator socket")
	return newSocket(pconn), nil
}

