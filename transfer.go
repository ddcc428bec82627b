package rudp

import (
	"net"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Send fragments buffer into a contiguous sequence of frames starting at
// seq_num 0 and transmits them stop-and-wait, retransmitting any fragment
// whose ACK doesn't arrive within max_retries attempts (SPEC_FULL.md §4.5).
// It returns the number of payload bytes sent.
func (c *Connection) Send(buffer []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateEstablished {
		return 0, ErrNotConnected
	}

	payloadMax := int(c.effectiveMTU()) - HeaderSize
	expectedFragments := (len(buffer) + payloadMax - 1) / payloadMax
	if expectedFragments < 1 {
		expectedFragments = 1 // empty messages still send one PSH|LAST frame
	}

	ackBuf := make([]byte, c.mtuOwn)
	totalSent := 0
	prevAckSeq := int64(-1)

	for i := 0; i < expectedFragments; i++ {
		start := i * payloadMax
		end := start + payloadMax
		if end > len(buffer) {
			end = len(buffer)
		}
		payload := buffer[start:end]

		flags := FlagPSH
		last := i == expectedFragments-1
		if last {
			flags |= FlagLAST
		}
		frame := Header{SeqNum: uint32(i), Length: uint16(len(payload)), Flags: flags}.Marshal(payload)

		acked := false
		// A stranger-source reply does not consume an attempt, while a
		// timeout, an invalid frame or a stale ACK each consume one;
		// attempt is therefore advanced explicitly rather than by the loop
		// header.
		for attempt := uint16(0); attempt < c.maxRetries; {
			if err := c.sock.send(frame, c.peerAddr); err != nil {
				return totalSent, err
			}

			n, from, err := c.sock.recvTimeout(ackBuf, c.timeoutMs)
			if err != nil {
				if isTimeout(err) {
					attempt++
					c.debugLog(c.logger().WithFields(log.Fields{"seq": i, "attempt": attempt}), "send: ACK timed out, retrying")
					continue
				}
				return totalSent, err
			}

			if !isFromPeer(from, c.peerAddr) {
				c.debugLog(c.logger().WithField("stranger", from), "send: reply from stranger source, rejecting")
				_ = c.sock.send(Header{Flags: FlagFIN}.Marshal(nil), from)
				continue
			}

			result, hdr := validatePacket(ackBuf[:n], FlagACK, true, c.onUnsolicitedFIN)
			switch result {
			case PeerClosed:
				return 0, nil
			case Invalid:
				attempt++
				c.debugLog(c.logger().WithField("seq", i), "send: invalid ACK, retrying")
				continue
			case Valid:
				ackSeq := int64(hdr.SeqNum)
				switch {
				case ackSeq == prevAckSeq && !last:
					// Duplicate ACK for the previous fragment: treat as a
					// successful ACK for this one too.
					c.debugLog(c.logger().WithField("seq", i), "send: duplicate ACK, treating as success")
				case ackSeq < int64(i):
					attempt++
					c.debugLog(c.logger().WithFields(log.Fields{"seq": i, "ack": ackSeq}), "send: stale ACK, retrying")
					continue
				default:
					prevAckSeq = ackSeq
				}
				acked = true
			}
			break
		}

		if !acked {
			c.logger().WithField("seq", i).Warn("send: retries exhausted")
			return totalSent, ErrRetriesExhausted
		}
		totalSent += len(payload)
	}

	return totalSent, nil
}

// recvFirstFragment blocks for the first fragment of a message, retrying up
// to max_retries times on a structurally invalid datagram, so that a broken
// peer cannot keep Recv looping forever. A stranger-source datagram is
// answered with FIN and does not count against that bound.
func (c *Connection) recvFirstFragment(packet []byte) (Header, int, error) {
	for attempt := uint16(0); attempt < c.maxRetries; {
		n, from, err := c.sock.recvBlocking(packet)
		if err != nil {
			return Header{}, 0, err
		}
		if !isFromPeer(from, c.peerAddr) {
			_ = c.sock.send(Header{Flags: FlagFIN}.Marshal(nil), from)
			continue
		}

		result, hdr := validatePacket(packet[:n], FlagPSH, true, c.onUnsolicitedFIN)
		switch result {
		case PeerClosed:
			return Header{}, 0, errPeerClosedDuringRecv
		case Invalid:
			attempt++
			c.debugLog(c.logger(), "recv: invalid first fragment, retrying")
			continue
		case Valid:
			return hdr, n, nil
		}
	}
	return Header{}, 0, ErrRetriesExhausted
}

// errPeerClosedDuringRecv is an internal marker distinguishing "peer sent
// FIN" from a real retry-exhaustion error inside recvFirstFragment; it is
// never returned to callers of Recv.
var errPeerClosedDuringRecv = errors.New("rudp: peer closed during recv")

// Recv blocks for the first fragment of a message, then reassembles the
// remainder in order, writing payload bytes into buffer at their message
// offset and returning once LAST is seen or capacity is reached
// (SPEC_FULL.md §4.5).
func (c *Connection) Recv(buffer []byte, capacity int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateEstablished {
		return 0, ErrNotConnected
	}
	if capacity > len(buffer) {
		capacity = len(buffer)
	}

	payloadMax := int(c.effectiveMTU()) - HeaderSize
	packet := make([]byte, c.mtuOwn)

	hdr, n, err := c.recvFirstFragment(packet)
	if err == errPeerClosedDuringRecv {
		return 0, nil
	}
	if err != nil {
		c.logger().Warn("recv: retries exhausted waiting for first fragment")
		return 0, err
	}

	prevSeqNum := hdr.SeqNum
	copied := copy(buffer[:capacity], packet[HeaderSize:n])
	bytesObserved := copied

	c.sendAck(prevSeqNum)

	if hdr.Flags.Has(FlagLAST) || bytesObserved >= capacity {
		c.debugLog(c.logger().WithField("bytes", bytesObserved), "recv: message complete after first fragment")
		return bytesObserved, nil
	}

	for {
		fragmentReceived := false
		var fragErr error
		for attempt := uint16(0); attempt < c.maxRetries; {
			var from net.Addr
			n, from, fragErr = c.sock.recvTimeout(packet, c.timeoutMs)
			if fragErr != nil {
				if isTimeout(fragErr) {
					attempt++
					c.debugLog(c.logger().WithField("attempt", attempt), "recv: timed out waiting for next fragment")
					continue
				}
				return bytesObserved, fragErr
			}
			if !isFromPeer(from, c.peerAddr) {
				_ = c.sock.send(Header{Flags: FlagFIN}.Marshal(nil), from)
				continue
			}

			result, h := validatePacket(packet[:n], FlagPSH, true, c.onUnsolicitedFIN)
			switch result {
			case PeerClosed:
				return 0, nil
			case Invalid:
				attempt++
				c.debugLog(c.logger(), "recv: invalid fragment, retrying")
				continue
			case Valid:
				hdr = h
				fragmentReceived = true
			}
			break
		}
		if !fragmentReceived {
			c.logger().Warn("recv: retries exhausted waiting for a fragment")
			return bytesObserved, ErrRetriesExhausted
		}

		packetSeqNum := hdr.SeqNum
		packetSize := int(hdr.Length)
		offset := int(uint64(packetSeqNum) * uint64(payloadMax))

		switch {
		case packetSeqNum == prevSeqNum:
			c.debugLog(c.logger().WithField("seq", packetSeqNum), "recv: duplicate fragment, re-ACKing")
			c.sendAck(prevSeqNum)
			continue
		case packetSeqNum != prevSeqNum+1:
			c.debugLog(c.logger().WithFields(log.Fields{"seq": packetSeqNum, "expected": prevSeqNum + 1}), "recv: out-of-order fragment, re-ACKing")
			c.sendAck(prevSeqNum)
			continue
		}

		if offset+packetSize > capacity {
			packetSize = capacity - offset
		}
		if packetSize > 0 {
			copy(buffer[offset:offset+packetSize], packet[HeaderSize:HeaderSize+packetSize])
			bytesObserved = offset + packetSize
		}
		c.sendAck(packetSeqNum)
		prevSeqNum = packetSeqNum

		if hdr.Flags.Has(FlagLAST) || bytesObserved >= capacity {
			c.debugLog(c.logger().WithField("bytes", bytesObserved), "recv: message complete")
			return bytesObserved, nil
		}
	}
}

// sendAck transmits a bare ACK for seqNum, best-effort: a failed ACK send
// will simply cause the peer to retransmit and retry, so the error is
// logged rather than propagated.
func (c *Connection) sendAck(seqNum uint32) {
	ack := Header{SeqNum: seqNum, Flags: FlagACK}.Marshal(nil)
	if err := c.sock.send(ack, c.peerAddr); err != nil {
		c.logger().WithError(err).Warn("failed to send ACK")
	}
}

// onUnsolicitedFIN is passed to validatePacket as the side effect run when an
// unsolicited FIN arrives on an established connection: reply FIN|ACK and
// drop to Closed (SPEC_FULL.md §4.3). Called with c.mu already held by the
// caller (Send/Recv/Disconnect), so it must not attempt to lock it again.
func (c *Connection) onUnsolicitedFIN() {
	finAck := Header{Flags: FlagFIN | FlagACK}.Marshal(nil)
	if err := c.sock.send(finAck, c.peerAddr); err != nil {
		c.logger().WithError(err).Warn("failed to send FIN|ACK in response to unsolicited FIN")
	}
	c.state = StateClosed
	c.peerAddr = nil
}
