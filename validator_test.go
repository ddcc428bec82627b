package rudp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePacketValidSYN(t *testing.T) {
	frame := Header{Flags: FlagSYN, Length: ParamsSize}.Marshal(MarshalParams(Params{MTU: 1200}))
	result, hdr := validatePacket(frame, FlagSYN, false, nil)
	require.Equal(t, Valid, result)
	require.Equal(t, FlagSYN, hdr.Flags)
}

func TestValidatePacketTooShort(t *testing.T) {
	result, _ := validatePacket(make([]byte, HeaderSize-1), FlagSYN, false, nil)
	require.Equal(t, Invalid, result)
}

func TestValidatePacketBadChecksum(t *testing.T) {
	frame := Header{Flags: FlagACK}.Marshal(nil)
	frame[0] ^= 0xFF
	result, _ := validatePacket(frame, FlagACK, true, nil)
	require.Equal(t, Invalid, result)
}

func TestValidatePacketLengthMismatch(t *testing.T) {
	frame := Header{Flags: FlagPSH, Length: 10}.Marshal([]byte("short"))
	result, _ := validatePacket(frame, FlagPSH, true, nil)
	require.Equal(t, Invalid, result)
}

func TestValidatePacketDataReceiveAcceptsLast(t *testing.T) {
	frame := Header{Flags: FlagPSH | FlagLAST, Length: 1}.Marshal([]byte("x"))
	result, hdr := validatePacket(frame, FlagPSH, true, nil)
	require.Equal(t, Valid, result)
	require.True(t, hdr.Flags.Has(FlagLAST))
}

func TestValidatePacketFlagsMismatch(t *testing.T) {
	frame := Header{Flags: FlagACK}.Marshal(nil)
	result, _ := validatePacket(frame, FlagSYN, true, nil)
	require.Equal(t, Invalid, result)
}

func TestValidatePacketPeerRefusalDuringHandshake(t *testing.T) {
	frame := Header{Flags: FlagFIN}.Marshal(nil)
	result, _ := validatePacket(frame, FlagSYN|FlagACK, false, nil)
	require.Equal(t, PeerClosed, result)
}

func TestValidatePacketUnsolicitedFINWhileConnected(t *testing.T) {
	frame := Header{Flags: FlagFIN}.Marshal(nil)
	called := false
	result, _ := validatePacket(frame, FlagACK, true, func() { called = true })
	require.Equal(t, PeerClosed, result)
	require.True(t, called)
}

func TestValidatePacketUnsolicitedFINWhileIdle(t *testing.T) {
	frame := Header{Flags: FlagFIN}.Marshal(nil)
	result, _ := validatePacket(frame, FlagACK, false, nil)
	require.Equal(t, Invalid, result)
}

func TestIsFromPeer(t *testing.T) {
	a := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000}
	b := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000}
	c := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9001}

	require.True(t, isFromPeer(a, b))
	require.False(t, isFromPeer(a, c))
	require.False(t, isFromPeer(nil, b))
	require.False(t, isFromPeer(a, nil))
}
