package rudp

// Wire-format constants. Multi-byte fields on the wire are always big-endian.
const (
	// HeaderSize is the fixed 12-byte frame header: seq_num(4) + length(2) +
	// checksum(2) + flags(1) + reserved(3).
	HeaderSize = 12

	// ParamsSize is the 8-byte parameter-exchange payload carried by frames
	// with FlagSYN set: mtu(2) + timeout_ms(2) + max_retries(2) + debug(2).
	ParamsSize = 8

	// MinMTU is the smallest MTU that can still carry a handshake payload.
	MinMTU = HeaderSize + ParamsSize

	// MinTimeoutMs and MinMaxRetries are the lowest accepted configuration values.
	MinTimeoutMs  = 10
	MinMaxRetries = 1

	// Defaults, matching the reference RUDP implementation this protocol is
	// modeled on.
	DefaultMTU        = 1458
	DefaultTimeoutMs  = 100
	DefaultMaxRetries = 50
)

// Flags is the 8-bit frame flag bitfield.
type Flags uint8

const (
	FlagSYN  Flags = 0x01
	FlagACK  Flags = 0x02
	FlagPSH  Flags = 0x04
	FlagLAST Flags = 0x08
	FlagFIN  Flags = 0x10
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f Flags) String() string {
	if f == 0 {
		return "NONE"
	}
	s := ""
	add := func(bit Flags, name string) {
		if f.Has(bit) {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(FlagSYN, "SYN")
	add(FlagACK, "ACK")
	add(FlagPSH, "PSH")
	add(FlagLAST, "LAST")
	add(FlagFIN, "FIN")
	return s
}

// Role distinguishes the two sides of a connection: a Listener passively
// awaits a peer, an Initiator actively reaches out to one.
type Role int

const (
	RoleInitiator Role = iota
	RoleListener
)

func (r Role) String() string {
	switch r {
	case RoleListener:
		return "listener"
	case RoleInitiator:
		return "initiator"
	default:
		return "unknown"
	}
}

// State is the Connection's explicit lifecycle state. Modeled as a single
// enumeration rather than a pair of booleans so that no combination is
// ambiguous (see DESIGN.md).
type State int

const (
	StateIdle State = iota
	StateListening
	StateConnecting
	StateEstablished
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ValidationResult is the three-valued outcome of validating an inbound
// datagram, per DESIGN.md's tagged-variant note: never a boolean or a magic
// int.
type ValidationResult int

const (
	// Valid means the datagram is a well-formed frame carrying exactly the
	// expected flags (or an acceptable PSH/PSH|LAST combination).
	Valid ValidationResult = iota
	// Invalid means the datagram failed a structural, checksum, length, or
	// flag check and should be ignored (with a retry, where applicable).
	Invalid
	// PeerClosed means the datagram was an unsolicited FIN: the peer has
	// explicitly ended (or refused) the connection.
	PeerClosed
)

func (v ValidationResult) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case PeerClosed:
		return "peer-closed"
	default:
		return "unknown"
	}
}

// Params is the negotiated parameter-exchange payload carried by SYN frames.
type Params struct {
	MTU        uint16
	TimeoutMs  uint16
	MaxRetries uint16
	Debug      uint16
}
