package rudp

import (
	"net"

	log "github.com/sirupsen/logrus"
)

// validatePacket decides whether frame is a well-formed datagram carrying
// the expected flags, per SPEC_FULL.md §4.3. connected reports whether the
// caller currently holds an established connection; onUnsolicitedFIN is
// invoked (send FIN|ACK, transition to Closed) only when a FIN arrives while
// connected and it isn't itself the expected reply.
func validatePacket(frame []byte, expected Flags, connected bool, onUnsolicitedFIN func()) (ValidationResult, Header) {
	if len(frame) < HeaderSize {
		log.WithField("size", len(frame)).Debug("validator: frame shorter than header")
		return Invalid, Header{}
	}

	if !VerifyChecksum(frame) {
		log.Debug("validator: checksum mismatch")
		return Invalid, Header{}
	}

	hdr, err := ParseHeader(frame)
	if err != nil {
		return Invalid, Header{}
	}

	if int(hdr.Length) != len(frame)-HeaderSize {
		log.WithFields(log.Fields{"declared": hdr.Length, "actual": len(frame) - HeaderSize}).
			Debug("validator: length mismatch")
		return Invalid, Header{}
	}

	expectsFIN := expected == FlagFIN || expected == (FlagFIN|FlagACK)
	if hdr.Flags == FlagFIN && !expectsFIN {
		if !connected {
			if expected.Has(FlagSYN) {
				log.Debug("validator: peer sent FIN in place of SYN|ACK, rejecting")
				return PeerClosed, hdr
			}
			log.Debug("validator: unsolicited FIN while not connected and not expecting SYN")
			return Invalid, hdr
		}
		log.Info("validator: peer sent unsolicited FIN, closing")
		if onUnsolicitedFIN != nil {
			onUnsolicitedFIN()
		}
		return PeerClosed, hdr
	}

	if hdr.Flags != expected {
		// A data-receive expectation of PSH accepts PSH or PSH|LAST.
		dataReceive := expected == FlagPSH && hdr.Flags == FlagPSH|FlagLAST
		if !dataReceive {
			log.WithFields(log.Fields{"expected": expected, "got": hdr.Flags}).
				Debug("validator: flags mismatch")
			return Invalid, hdr
		}
	}

	return Valid, hdr
}

// isFromPeer reports whether addr matches the connected peer's address. A
// mismatch is a "stranger source": it never advances a caller's retry
// counter (SPEC_FULL.md §4.3, "skip-tick").
func isFromPeer(addr net.Addr, peer net.Addr) bool {
	if peer == nil || addr == nil {
		return false
	}
	return addr.String() == peer.String()
}
