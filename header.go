package rudp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var (
	errFrameTooShort  = errors.New("rudp: frame shorter than header")
	errParamsTooShort = errors.New("rudp: parameter payload shorter than expected")
)

// Header is the fixed 12-byte frame header (SPEC_FULL.md §3). Reserved bytes
// are always written as zero and ignored on parse.
type Header struct {
	SeqNum   uint32
	Length   uint16
	Checksum uint16
	Flags    Flags
}

// Marshal serialises h and payload into a single frame, writing the header
// with the checksum field zeroed, then computing and patching the checksum
// over the whole frame, mirroring the reference implementation's approach.
func (h Header) Marshal(payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	putHeader(frame, h, 0)
	copy(frame[HeaderSize:], payload)
	binary.BigEndian.PutUint16(frame[6:8], Checksum(frame))
	return frame
}

func putHeader(frame []byte, h Header, checksum uint16) {
	binary.BigEndian.PutUint32(frame[0:4], h.SeqNum)
	binary.BigEndian.PutUint16(frame[4:6], h.Length)
	binary.BigEndian.PutUint16(frame[6:8], checksum)
	frame[8] = byte(h.Flags)
	frame[9], frame[10], frame[11] = 0, 0, 0
}

// ParseHeader parses the first HeaderSize bytes of frame. It does not verify
// the checksum or declared length; use validatePacket for a full structural
// check of an inbound datagram.
func ParseHeader(frame []byte) (Header, error) {
	if len(frame) < HeaderSize {
		return Header{}, errFrameTooShort
	}
	return Header{
		SeqNum:   binary.BigEndian.Uint32(frame[0:4]),
		Length:   binary.BigEndian.Uint16(frame[4:6]),
		Checksum: binary.BigEndian.Uint16(frame[6:8]),
		Flags:    Flags(frame[8]),
	}, nil
}

// Checksum computes the one's-complement 16-bit Internet checksum of frame,
// treating it as a sequence of 16-bit big-endian words: sum all such words,
// pad a trailing odd byte with a zero low byte, fold any carry out of the
// low 16 bits back in until none remains, then invert. Callers compute this
// with the frame's checksum field zeroed and patch the result in afterwards.
func Checksum(frame []byte) uint16 {
	var sum uint32
	n := len(frame)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(frame[i])<<8 | uint32(frame[i+1])
	}
	if n%2 == 1 {
		sum += uint32(frame[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// VerifyChecksum reports whether frame's stored checksum field matches the
// checksum recomputed with that field zeroed, per SPEC_FULL.md §4.1.
func VerifyChecksum(frame []byte) bool {
	if len(frame) < HeaderSize {
		return false
	}
	stored := binary.BigEndian.Uint16(frame[6:8])
	scratch := make([]byte, len(frame))
	copy(scratch, frame)
	scratch[6], scratch[7] = 0, 0
	return Checksum(scratch) == stored
}

// MarshalParams serialises the 8-byte parameter-exchange payload carried by
// frames with FlagSYN set.
func MarshalParams(p Params) []byte {
	buf := make([]byte, ParamsSize)
	binary.BigEndian.PutUint16(buf[0:2], p.MTU)
	binary.BigEndian.PutUint16(buf[2:4], p.TimeoutMs)
	binary.BigEndian.PutUint16(buf[4:6], p.MaxRetries)
	binary.BigEndian.PutUint16(buf[6:8], p.Debug)
	return buf
}

// ParseParams parses the 8-byte parameter-exchange payload.
func ParseParams(buf []byte) (Params, error) {
	if len(buf) < ParamsSize {
		return Params{}, errParamsTooShort
	}
	return Params{
		MTU:        binary.BigEndian.Uint16(buf[0:2]),
		TimeoutMs:  binary.BigEndian.Uint16(buf[2:4]),
		MaxRetries: binary.BigEndian.Uint16(buf[4:6]),
		Debug:      binary.BigEndian.Uint16(buf[6:8]),
	}, nil
}
