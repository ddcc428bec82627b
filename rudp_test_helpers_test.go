package rudp

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// establishPair opens a listener and an initiator on loopback and drives the
// handshake to completion, returning both established connections.
func establishPair(t *testing.T, mtu uint16, timeoutMs, maxRetries uint16) (*Connection, *Connection) {
	t.Helper()

	listener, err := Open(RoleListener, 0, mtu, timeoutMs, maxRetries, false)
	require.NoError(t, err)

	initiator, err := Open(RoleInitiator, 0, mtu, timeoutMs, maxRetries, false)
	require.NoError(t, err)

	listenAddr := listener.sock.localAddr().(*net.UDPAddr)

	var wg sync.WaitGroup
	wg.Add(1)
	var acceptErr error
	go func() {
		defer wg.Done()
		acceptErr = listener.Accept()
	}()

	require.NoError(t, initiator.Connect("127.0.0.1", uint16(listenAddr.Port)))
	wg.Wait()
	require.NoError(t, acceptErr)

	return initiator, listener
}
