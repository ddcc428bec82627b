package rudp

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Connect performs the initiator side of the handshake: send SYN carrying
// our parameters, wait for SYN|ACK, up to max_retries times
// (SPEC_FULL.md §4.4). Only valid for a Role == RoleInitiator connection in
// StateIdle.
func (c *Connection) Connect(peerIP string, peerPort uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.role != RoleInitiator {
		return errors.Wrap(ErrInvalidArgument, "connect is only valid for an initiator connection")
	}
	if c.state != StateIdle {
		return ErrAlreadyConnected
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(peerIP, strconv.Itoa(int(peerPort))))
	if err != nil {
		return errors.Wrapf(ErrInvalidArgument, "invalid peer address: %v", err)
	}

	c.state = StateConnecting
	c.peerAddr = addr

	syn := Header{Flags: FlagSYN, Length: ParamsSize}.Marshal(MarshalParams(c.localParams()))
	buf := make([]byte, c.mtuOwn)

	// A stranger-source reply does not consume a retry attempt (the
	// peer-match "skip-tick", SPEC_FULL.md §4.3), so attempt is advanced
	// explicitly rather than by the loop header.
	for attempt := uint16(0); attempt < c.maxRetries; {
		if err := c.sock.send(syn, c.peerAddr); err != nil {
			c.state = StateClosed
			return err
		}

		n, from, err := c.sock.recvTimeout(buf, c.timeoutMs)
		if err != nil {
			if isTimeout(err) {
				attempt++
				c.debugLog(c.logger().WithField("attempt", attempt), "connect: timed out waiting for SYN|ACK")
				continue
			}
			c.state = StateClosed
			return err
		}

		if !isFromPeer(from, c.peerAddr) {
			c.debugLog(c.logger().WithField("stranger", from), "connect: reply from stranger source, replying with FIN")
			_ = c.sock.send(Header{Flags: FlagFIN}.Marshal(nil), from)
			continue
		}

		result, _ := validatePacket(buf[:n], FlagSYN|FlagACK, false, nil)
		switch result {
		case PeerClosed:
			c.state = StateClosed
			c.peerAddr = nil
			c.logger().Warn("connect: peer explicitly refused the connection")
			return ErrConnectionRefused
		case Invalid:
			attempt++
			c.debugLog(c.logger().WithField("attempt", attempt), "connect: invalid reply, retrying")
			continue
		case Valid:
			params, err := ParseParams(buf[HeaderSize:n])
			if err != nil {
				attempt++
				continue
			}
			c.applyPeerParams(params)
			c.state = StateEstablished
			c.logger().WithFields(log.Fields{"effective_mtu": c.effectiveMTU()}).Info("connection established")
			return nil
		}
	}

	c.state = StateClosed
	c.peerAddr = nil
	c.logger().Warn("connect: retries exhausted")
	return ErrRetriesExhausted
}

// Accept performs the listener side of the handshake: block for a SYN,
// record the sender as our peer, reply with SYN|ACK carrying our parameters
// (SPEC_FULL.md §4.4). Only valid for a Role == RoleListener connection.
func (c *Connection) Accept() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.role != RoleListener {
		return errors.Wrap(ErrInvalidArgument, "accept is only valid for a listener connection")
	}
	if c.state == StateEstablished {
		return ErrAlreadyConnected
	}

	buf := make([]byte, c.mtuOwn)

	for {
		n, from, err := c.sock.recvBlocking(buf)
		if err != nil {
			return err
		}

		result, _ := validatePacket(buf[:n], FlagSYN, false, nil)
		switch result {
		case Invalid:
			c.debugLog(c.logger(), "accept: invalid SYN, waiting for next")
			continue
		case PeerClosed:
			c.logger().Warn("accept: peer sent FIN instead of SYN")
			return ErrConnectionRefused
		case Valid:
			params, err := ParseParams(buf[HeaderSize:n])
			if err != nil {
				continue
			}
			c.peerAddr = from
			c.applyPeerParams(params)

			synAck := Header{Flags: FlagSYN | FlagACK, Length: ParamsSize}.Marshal(MarshalParams(c.localParams()))
			if err := c.sock.send(synAck, c.peerAddr); err != nil {
				return err
			}

			c.state = StateEstablished
			c.logger().WithFields(log.Fields{"effective_mtu": c.effectiveMTU()}).Info("connection established")
			return nil
		}
	}
}

func (c *Connection) localParams() Params {
	debugVal := uint16(0)
	if c.debug {
		debugVal = 1
	}
	return Params{
		MTU:        c.mtuOwn,
		TimeoutMs:  c.timeoutMs,
		MaxRetries: c.maxRetries,
		Debug:      debugVal,
	}
}

// applyPeerParams negotiates mtu_peer = min(mtu_own, peer.mtu), the default
// semantics from SPEC_FULL.md §3 (an explicit ForceOwnMTU call afterward
// overrides it).
func (c *Connection) applyPeerParams(p Params) {
	c.mtuPeer = p.MTU
	if c.mtuOwn < c.mtuPeer {
		c.mtuPeer = c.mtuOwn
	}
}
