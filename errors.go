package rudp

import "github.com/pkg/errors"

// Sentinel errors for the protocol-level result taxonomy (SPEC_FULL.md §7).
// Callers distinguish them with errors.Is/errors.Cause.
var (
	// ErrIoError wraps an underlying OS/socket failure.
	ErrIoError = errors.New("rudp: i/o error")

	// ErrInvalidArgument is returned before any I/O when configuration is
	// below the documented minimums or an address fails to parse.
	ErrInvalidArgument = errors.New("rudp: invalid argument")

	// ErrNotConnected is returned by operations that require State ==
	// StateEstablished.
	ErrNotConnected = errors.New("rudp: not connected")

	// ErrAlreadyConnected is returned by operations forbidden while
	// State == StateEstablished.
	ErrAlreadyConnected = errors.New("rudp: already connected")

	// ErrConnectionRefused is returned when the peer explicitly sent FIN
	// during the handshake.
	ErrConnectionRefused = errors.New("rudp: connection refused")

	// ErrRetriesExhausted is returned when a single fragment/ACK exchange
	// consumed the entire retry budget without success.
	ErrRetriesExhausted = errors.New("rudp: retries exhausted")
)

// wrapIO wraps an OS-level error as ErrIoError, attaching op and the
// original error's text as context; errors.Cause(result) is ErrIoError.
func wrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(ErrIoError, "%s: %v", op, err)
}
