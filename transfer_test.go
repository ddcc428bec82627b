package rudp

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendRecvSingleFragment(t *testing.T) {
	a, b := establishPair(t, DefaultMTU, 50, 20)
	defer a.Close()
	defer b.Close()

	msg := []byte("hello, peer")

	var wg sync.WaitGroup
	wg.Add(1)
	var recvBuf [1024]byte
	var recvN int
	var recvErr error
	go func() {
		defer wg.Done()
		recvN, recvErr = b.Recv(recvBuf[:], len(recvBuf))
	}()

	n, err := a.Send(msg)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)

	wg.Wait()
	require.NoError(t, recvErr)
	require.Equal(t, msg, recvBuf[:recvN])
}

func TestSendRecvMultiFragment(t *testing.T) {
	// Force a small effective MTU so a multi-KB message spans many fragments.
	a, b := establishPair(t, MinMTU+16, 100, 30)
	defer a.Close()
	defer b.Close()

	msg := bytes.Repeat([]byte("0123456789abcdef"), 256) // 4096 bytes

	var wg sync.WaitGroup
	wg.Add(1)
	recvBuf := make([]byte, len(msg)+64)
	var recvN int
	var recvErr error
	go func() {
		defer wg.Done()
		recvN, recvErr = b.Recv(recvBuf, len(recvBuf))
	}()

	n, err := a.Send(msg)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)

	wg.Wait()
	require.NoError(t, recvErr)
	require.Equal(t, msg, recvBuf[:recvN])
}

func TestRecvTruncatesAtCapacity(t *testing.T) {
	a, b := establishPair(t, DefaultMTU, 50, 20)
	defer a.Close()
	defer b.Close()

	msg := bytes.Repeat([]byte("x"), 100)

	var wg sync.WaitGroup
	wg.Add(1)
	recvBuf := make([]byte, 200)
	var recvN int
	var recvErr error
	go func() {
		defer wg.Done()
		recvN, recvErr = b.Recv(recvBuf, 10)
	}()

	_, err := a.Send(msg)
	require.NoError(t, err)

	wg.Wait()
	require.NoError(t, recvErr)
	require.Equal(t, 10, recvN)
	require.Equal(t, msg[:10], recvBuf[:10])
}

func TestSendFailsWhenNotConnected(t *testing.T) {
	c, err := Open(RoleInitiator, 0, DefaultMTU, 50, 20, false)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send([]byte("x"))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestRecvFailsWhenNotConnected(t *testing.T) {
	c, err := Open(RoleInitiator, 0, DefaultMTU, 50, 20, false)
	require.NoError(t, err)
	defer c.Close()

	buf := make([]byte, 16)
	_, err = c.Recv(buf, len(buf))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSendEmptyMessage(t *testing.T) {
	a, b := establishPair(t, DefaultMTU, 50, 20)
	defer a.Close()
	defer b.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	recvBuf := make([]byte, 16)
	var recvN int
	var recvErr error
	go func() {
		defer wg.Done()
		recvN, recvErr = b.Recv(recvBuf, len(recvBuf))
	}()

	n, err := a.Send(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	wg.Wait()
	require.NoError(t, recvErr)
	require.Equal(t, 0, recvN)
}
