package rudp

import (
	"net"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Connection is a single reliable-transport endpoint: one bound UDP socket,
// at most one peer relationship, and the negotiated parameters governing it.
// A Connection is not safe for concurrent use (SPEC_FULL.md §5).
type Connection struct {
	mu sync.Mutex

	role  Role
	state State
	sock  *socket

	peerAddr net.Addr

	mtuOwn      uint16
	timeoutMs   uint16
	maxRetries  uint16
	debug       bool
	mtuPeer     uint16
	forceOwnMTU bool

	closed bool
}

// Open creates a new Connection. A Listener binds to localPort on all
// interfaces; an Initiator binds an ephemeral local port and localPort is
// ignored. mtu, timeoutMs, and maxRetries must respect the documented
// minimums (SPEC_FULL.md §3).
func Open(role Role, localPort uint16, mtu uint16, timeoutMs uint16, maxRetries uint16, debug bool) (*Connection, error) {
	if mtu < MinMTU {
		return nil, errors.Wrapf(ErrInvalidArgument, "mtu %d below minimum %d", mtu, MinMTU)
	}
	if timeoutMs < MinTimeoutMs {
		return nil, errors.Wrapf(ErrInvalidArgument, "timeout_ms %d below minimum %d", timeoutMs, MinTimeoutMs)
	}
	if maxRetries < MinMaxRetries {
		return nil, errors.Wrapf(ErrInvalidArgument, "max_retries %d below minimum %d", maxRetries, MinMaxRetries)
	}

	var (
		sock  *socket
		err   error
		state State
	)
	switch role {
	case RoleListener:
		sock, err = listenUDP(localPort)
		state = StateListening
	case RoleInitiator:
		sock, err = dialUDP()
		state = StateIdle
	default:
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown role %v", role)
	}
	if err != nil {
		return nil, err
	}

	c := &Connection{
		role:       role,
		state:      state,
		sock:       sock,
		mtuOwn:     mtu,
		timeoutMs:  timeoutMs,
		maxRetries: maxRetries,
		debug:      debug,
		mtuPeer:    mtu,
	}
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	// Backstop for callers that forget to Close/Disconnect; relying on this
	// is itself a bug in caller code, hence the Warn if it ever fires.
	runtime.SetFinalizer(c, func(c *Connection) {
		c.mu.Lock()
		established := c.state == StateEstablished
		c.mu.Unlock()
		if established {
			log.Warn("connection finalized while still established, caller forgot to Disconnect/Close")
			_ = c.Disconnect()
		} else {
			log.Warn("connection finalized without Close, caller forgot to Close")
		}
		_ = c.Close()
	})

	c.debugLog(c.logger(), "opened connection")
	return c, nil
}

// logger returns a field-annotated entry for this connection. Info/Warn/Error
// events are unconditional; Debug-level events are additionally gated by the
// debug flag at each call site via debugLog, per SPEC_FULL.md §2.1.
func (c *Connection) logger() *log.Entry {
	fields := log.Fields{"role": c.role, "state": c.state}
	if c.peerAddr != nil {
		fields["peer"] = c.peerAddr.String()
	}
	return log.WithFields(fields)
}

// debugLog emits entry at Debug level only when debug mode is enabled,
// keeping protocol semantics unaffected by the flag (SPEC_FULL.md §7).
func (c *Connection) debugLog(entry *log.Entry, msg string) {
	if c.debug {
		entry.Debug(msg)
	}
}

// effectiveMTU returns min(mtuOwn, mtuPeer) unless overridden by
// force_own_mtu, per SPEC_FULL.md §3's Effective MTU definition.
func (c *Connection) effectiveMTU() uint16 {
	if c.forceOwnMTU {
		return c.mtuOwn
	}
	if c.mtuPeer < c.mtuOwn {
		return c.mtuPeer
	}
	return c.mtuOwn
}

// Disconnect performs the graceful shutdown handshake: send FIN, await
// FIN|ACK up to max_retries times. Retry exhaustion is not itself a failure,
// since the connection is considered gone either way per SPEC_FULL.md §4.6.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateEstablished {
		return nil
	}
	c.state = StateClosing

	fin := Header{Flags: FlagFIN}.Marshal(nil)
	buf := make([]byte, c.mtuOwn)

	var lastErr error
	acked := false
	for attempt := uint16(0); attempt < c.maxRetries; {
		if err := c.sock.send(fin, c.peerAddr); err != nil {
			lastErr = err
			break
		}

		n, addr, err := c.sock.recvTimeout(buf, c.timeoutMs)
		if err != nil {
			if isTimeout(err) {
				attempt++
				c.debugLog(c.logger().WithField("attempt", attempt), "disconnect: timed out waiting for FIN|ACK")
				continue
			}
			lastErr = err
			break
		}
		if !isFromPeer(addr, c.peerAddr) {
			continue
		}

		result, _ := validatePacket(buf[:n], FlagFIN|FlagACK, true, nil)
		if result != Valid {
			attempt++
			continue
		}
		acked = true
		break
	}

	if lastErr != nil {
		c.logger().WithError(lastErr).Warn("disconnect: I/O error during shutdown handshake, closing anyway")
	} else if !acked {
		c.logger().Warn("disconnect: retries exhausted waiting for FIN|ACK, closing anyway")
	}

	c.state = StateClosed
	c.peerAddr = nil
	c.logger().Info("connection closed")
	return nil
}

// Close releases the underlying socket. If the connection is still
// established it disconnects first. Safe to call multiple times.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateEstablished {
		c.mu.Unlock()
		_ = c.Disconnect()
		c.mu.Lock()
	}
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	runtime.SetFinalizer(c, nil)
	return c.sock.close()
}

// --- Getters ---

func (c *Connection) MTU() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mtuOwn
}

func (c *Connection) TimeoutMs() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeoutMs
}

func (c *Connection) MaxRetries() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxRetries
}

func (c *Connection) PeerMTU() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mtuPeer
}

func (c *Connection) Debug() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debug
}

func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateEstablished
}

func (c *Connection) IsListener() bool {
	return c.role == RoleListener
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// --- Setters ---

// SetMTU changes the locally configured MTU. Forbidden once established.
func (c *Connection) SetMTU(mtu uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEstablished {
		return ErrAlreadyConnected
	}
	if mtu < MinMTU {
		return errors.Wrapf(ErrInvalidArgument, "mtu %d below minimum %d", mtu, MinMTU)
	}
	c.mtuOwn = mtu
	return nil
}

// SetTimeoutMs changes the per-receive timeout. Forbidden once established.
func (c *Connection) SetTimeoutMs(ms uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEstablished {
		return ErrAlreadyConnected
	}
	if ms < MinTimeoutMs {
		return errors.Wrapf(ErrInvalidArgument, "timeout_ms %d below minimum %d", ms, MinTimeoutMs)
	}
	c.timeoutMs = ms
	return nil
}

// SetMaxRetries changes the retry budget. Forbidden once established.
func (c *Connection) SetMaxRetries(retries uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEstablished {
		return ErrAlreadyConnected
	}
	if retries < MinMaxRetries {
		return errors.Wrapf(ErrInvalidArgument, "max_retries %d below minimum %d", retries, MinMaxRetries)
	}
	c.maxRetries = retries
	return nil
}

// SetDebug toggles debug logging. Valid at any time.
func (c *Connection) SetDebug(debug bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debug = debug
	if debug {
		log.SetLevel(log.DebugLevel)
	}
}

// ForceOwnMTU makes subsequent sends use mtu_own as the effective MTU
// instead of min(mtu_own, mtu_peer). Only valid while established.
func (c *Connection) ForceOwnMTU() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateEstablished {
		return ErrNotConnected
	}
	c.forceOwnMTU = true
	c.mtuPeer = c.mtuOwn
	return nil
}
