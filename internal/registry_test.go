package internal

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdeck/promptdeck/pkg/errors"
)

type mockConn struct {
	mu       sync.Mutex
	received [][]byte
	closed   bool
	sendErr  error
}

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func TestRegistry_RegisterAndCount(t *testing.T) {
	r := CreateRegistry(8)

	require.NoError(t, r.Register("a", &mockConn{}, "127.0.0.1:1", true, 100))
	require.NoError(t, r.Register("b", &mockConn{}, "127.0.0.1:2", true, 100))
	assert.Equal(t, 2, r.Count())
	assert.True(t, r.HasConnection("a"))

	r.Unregister("a")
	assert.Equal(t, 1, r.Count())
	assert.False(t, r.HasConnection("a"))
}

func TestRegistry_DuplicateId(t *testing.T) {
	r := CreateRegistry(8)

	require.NoError(t, r.Register("a", &mockConn{}, "", true, 0))
	err := r.Register("a", &mockConn{}, "", true, 0)
	assert.IsType(t, &errors.DuplicateConnectionId{}, err)
}

func TestRegistry_MaxConnections(t *testing.T) {
	r := CreateRegistry(2)

	require.NoError(t, r.Register("a", &mockConn{}, "", true, 0))
	require.NoError(t, r.Register("b", &mockConn{}, "", true, 0))

	err := r.Register("c", &mockConn{}, "", true, 0)
	assert.IsType(t, &errors.TooManyConnections{}, err)
}

func TestRegistry_BroadcastOnlyToAuthenticated(t *testing.T) {
	r := CreateRegistry(8)

	authed := &mockConn{}
	pending := &mockConn{}
	require.NoError(t, r.Register("authed", authed, "", true, 0))
	require.NoError(t, r.Register("pending", pending, "", false, 0))

	delivered := r.Broadcast([]byte("snapshot"))

	assert.Equal(t, 1, delivered)
	assert.Len(t, authed.getReceived(), 1)
	assert.Empty(t, pending.getReceived())
}

func TestRegistry_BroadcastUnregistersFailedSends(t *testing.T) {
	r := CreateRegistry(8)

	healthy := &mockConn{}
	broken := &mockConn{sendErr: fmt.Errorf("socket gone")}
	require.NoError(t, r.Register("healthy", healthy, "", true, 0))
	require.NoError(t, r.Register("broken", broken, "", true, 0))

	delivered := r.Broadcast([]byte("snapshot"))

	// One failure must not abort delivery to the others, and the dead
	// entry must be closed and removed eagerly. Without the close, a
	// client with a full send buffer would keep a live socket whose
	// commands are silently dropped until the pong deadline reaps it.
	assert.Equal(t, 1, delivered)
	assert.Len(t, healthy.getReceived(), 1)
	assert.False(t, r.HasConnection("broken"))
	assert.True(t, broken.isClosed())
	assert.True(t, r.HasConnection("healthy"))
	assert.False(t, healthy.isClosed())
}

func TestRegistry_SendFailureClosesTransport(t *testing.T) {
	r := CreateRegistry(8)

	conn := &mockConn{sendErr: fmt.Errorf("send buffer full")}
	require.NoError(t, r.Register("a", conn, "", true, 0))

	err := r.Send("a", []byte("frame"))

	assert.Error(t, err)
	assert.False(t, r.HasConnection("a"))
	assert.True(t, conn.isClosed())
}

func TestRegistry_SendDirect(t *testing.T) {
	r := CreateRegistry(8)

	conn := &mockConn{}
	require.NoError(t, r.Register("a", conn, "", false, 0))

	require.NoError(t, r.Send("a", []byte("hello")))
	assert.Len(t, conn.getReceived(), 1)

	err := r.Send("missing", []byte("hello"))
	assert.IsType(t, &errors.MissingConnectionId{}, err)
}

func TestRegistry_Authentication(t *testing.T) {
	r := CreateRegistry(8)

	require.NoError(t, r.Register("a", &mockConn{}, "", false, 0))
	assert.False(t, r.IsAuthenticated("a"))

	require.NoError(t, r.SetAuthenticated("a"))
	assert.True(t, r.IsAuthenticated("a"))

	assert.False(t, r.IsAuthenticated("missing"))
	assert.IsType(t, &errors.MissingConnectionId{}, r.SetAuthenticated("missing"))
}

func TestRegistry_CloseAndRemove(t *testing.T) {
	r := CreateRegistry(8)

	conn := &mockConn{}
	require.NoError(t, r.Register("a", conn, "", true, 0))

	r.CloseAndRemove("a")

	assert.True(t, conn.isClosed())
	assert.False(t, r.HasConnection("a"))

	// Removing an unknown id is a harmless no-op.
	r.CloseAndRemove("missing")
}
