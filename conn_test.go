package rudp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenRejectsBelowMinimums(t *testing.T) {
	_, err := Open(RoleInitiator, 0, MinMTU-1, DefaultTimeoutMs, DefaultMaxRetries, false)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Open(RoleInitiator, 0, DefaultMTU, MinTimeoutMs-1, DefaultMaxRetries, false)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Open(RoleInitiator, 0, DefaultMTU, DefaultTimeoutMs, MinMaxRetries-1, false)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDisconnectGracefulShutdown(t *testing.T) {
	a, b := establishPair(t, DefaultMTU, 50, 20)
	defer a.Close()
	defer b.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, 16)
		// Peer's Recv unblocks with no data once it observes the FIN.
		n, err := b.Recv(buf, len(buf))
		require.NoError(t, err)
		require.Equal(t, 0, n)
	}()

	require.NoError(t, a.Disconnect())
	wg.Wait()

	require.Equal(t, StateClosed, a.State())
	require.Equal(t, StateClosed, b.State())
}

func TestDisconnectIsNoOpWhenNotEstablished(t *testing.T) {
	c, err := Open(RoleInitiator, 0, DefaultMTU, 50, 20, false)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Disconnect())
	require.Equal(t, StateIdle, c.State())
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := Open(RoleInitiator, 0, DefaultMTU, 50, 20, false)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestSettersRejectOnceEstablished(t *testing.T) {
	a, b := establishPair(t, DefaultMTU, 50, 20)
	defer a.Close()
	defer b.Close()

	require.ErrorIs(t, a.SetMTU(DefaultMTU), ErrAlreadyConnected)
	require.ErrorIs(t, a.SetTimeoutMs(50), ErrAlreadyConnected)
	require.ErrorIs(t, a.SetMaxRetries(20), ErrAlreadyConnected)
}

func TestSettersRejectBelowMinimums(t *testing.T) {
	c, err := Open(RoleInitiator, 0, DefaultMTU, DefaultTimeoutMs, DefaultMaxRetries, false)
	require.NoError(t, err)
	defer c.Close()

	require.ErrorIs(t, c.SetMTU(MinMTU-1), ErrInvalidArgument)
	require.ErrorIs(t, c.SetTimeoutMs(MinTimeoutMs-1), ErrInvalidArgument)
	require.ErrorIs(t, c.SetMaxRetries(MinMaxRetries-1), ErrInvalidArgument)
}

func TestForceOwnMTU(t *testing.T) {
	a, b := establishPair(t, 1300, 50, 20)
	defer a.Close()
	defer b.Close()

	require.Equal(t, uint16(1300), a.effectiveMTU())

	require.NoError(t, a.ForceOwnMTU())
	require.Equal(t, a.MTU(), a.effectiveMTU())
}

func TestForceOwnMTURequiresEstablished(t *testing.T) {
	c, err := Open(RoleInitiator, 0, DefaultMTU, 50, 20, false)
	require.NoError(t, err)
	defer c.Close()

	require.ErrorIs(t, c.ForceOwnMTU(), ErrNotConnected)
}

func TestSetDebugTogglesFlag(t *testing.T) {
	c, err := Open(RoleInitiator, 0, DefaultMTU, 50, 20, false)
	require.NoError(t, err)
	defer c.Close()

	require.False(t, c.Debug())
	c.SetDebug(true)
	require.True(t, c.Debug())
}

func TestIsListenerReflectsRole(t *testing.T) {
	listener, err := Open(RoleListener, 0, DefaultMTU, 50, 20, false)
	require.NoError(t, err)
	defer listener.Close()
	require.True(t, listener.IsListener())

	initiator, err := Open(RoleInitiator, 0, DefaultMTU, 50, 20, false)
	require.NoError(t, err)
	defer initiator.Close()
	require.False(t, initiator.IsListener())
}
