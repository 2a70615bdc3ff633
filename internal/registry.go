package internal

import (
	"sync"

	"github.com/promptdeck/promptdeck/pkg/errors"
)

// Conn is the transport half of a registered connection. The WebSocket
// layer provides the real implementation; tests provide mocks.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// ConnectionMetadata tracks one live control connection.
type ConnectionMetadata struct {
	Mut           sync.RWMutex
	Conn          Conn
	Authenticated bool
	RemoteAddr    string
	CreatedTime   int64
	LastMsgTime   int64
}

// Registry owns all live connections. Broadcast fan-out, per-connection
// sends and eager removal of dead entries all go through here.
type Registry struct {
	MaxConnections int

	mut_connections sync.RWMutex
	connections     map[string]*ConnectionMetadata
}

func CreateRegistry(maxConnections int) *Registry {
	return &Registry{
		MaxConnections:  maxConnections,
		mut_connections: sync.RWMutex{},
		connections:     make(map[string]*ConnectionMetadata),
	}
}

func (r *Registry) HasConnection(id string) bool {
	r.mut_connections.RLock()
	defer r.mut_connections.RUnlock()

	_, has := r.connections[id]
	return has
}

// Register adds a connection. authenticated should be true when no
// shared secret is configured (implicit auth on loopback setups).
func (r *Registry) Register(id string, conn Conn, remoteAddr string, authenticated bool, timestamp int64) error {
	r.mut_connections.Lock()
	defer r.mut_connections.Unlock()

	if _, has := r.connections[id]; has {
		return &errors.DuplicateConnectionId{Id: id}
	}

	if r.MaxConnections > 0 && len(r.connections) >= r.MaxConnections {
		return &errors.TooManyConnections{}
	}

	r.connections[id] = &ConnectionMetadata{
		Mut:           sync.RWMutex{},
		Conn:          conn,
		Authenticated: authenticated,
		RemoteAddr:    remoteAddr,
		CreatedTime:   timestamp,
		LastMsgTime:   timestamp,
	}

	return nil
}

func (r *Registry) Unregister(id string) {
	r.mut_connections.Lock()
	defer r.mut_connections.Unlock()
	delete(r.connections, id)
}

// SetAuthenticated marks a connection as having completed the handshake.
func (r *Registry) SetAuthenticated(id string) error {
	r.mut_connections.RLock()
	defer r.mut_connections.RUnlock()

	connection, has := r.connections[id]
	if !has {
		return &errors.MissingConnectionId{Id: id}
	}

	connection.Mut.Lock()
	defer connection.Mut.Unlock()

	connection.Authenticated = true
	return nil
}

func (r *Registry) IsAuthenticated(id string) bool {
	r.mut_connections.RLock()
	defer r.mut_connections.RUnlock()

	connection, has := r.connections[id]
	if !has {
		return false
	}

	connection.Mut.RLock()
	defer connection.Mut.RUnlock()

	return connection.Authenticated
}

func (r *Registry) SetRecvTimestamp(id string, timestamp int64) error {
	r.mut_connections.RLock()
	defer r.mut_connections.RUnlock()

	connection, has := r.connections[id]
	if !has {
		return &errors.MissingConnectionId{Id: id}
	}

	connection.Mut.Lock()
	defer connection.Mut.Unlock()

	connection.LastMsgTime = timestamp
	return nil
}

func (r *Registry) GetRemoteAddr(id string) (string, error) {
	r.mut_connections.RLock()
	defer r.mut_connections.RUnlock()

	connection, has := r.connections[id]
	if !has {
		return "", &errors.MissingConnectionId{Id: id}
	}

	connection.Mut.RLock()
	defer connection.Mut.RUnlock()

	return connection.RemoteAddr, nil
}

func (r *Registry) Count() int {
	r.mut_connections.RLock()
	defer r.mut_connections.RUnlock()
	return len(r.connections)
}

// Send delivers data to a single connection. A send failure closes the
// transport and removes the connection; a socket whose buffer is full
// would otherwise linger half-dead, its commands silently dropped.
func (r *Registry) Send(id string, data []byte) error {
	r.mut_connections.RLock()
	connection, has := r.connections[id]
	r.mut_connections.RUnlock()

	if !has {
		return &errors.MissingConnectionId{Id: id}
	}

	if err := connection.Conn.Send(data); err != nil {
		r.CloseAndRemove(id)
		return err
	}
	return nil
}

// Broadcast fans data out to every authenticated connection. The payload
// is serialized once by the caller and sent identically to everyone. A
// failing connection never blocks delivery to the others; it is closed
// and removed eagerly instead of lingering as a dead entry. Returns the
// number of successful deliveries.
func (r *Registry) Broadcast(data []byte) int {
	type target struct {
		id   string
		conn Conn
	}

	r.mut_connections.RLock()
	targets := make([]target, 0, len(r.connections))
	for id, connection := range r.connections {
		connection.Mut.RLock()
		authed := connection.Authenticated
		connection.Mut.RUnlock()
		if authed {
			targets = append(targets, target{id: id, conn: connection.Conn})
		}
	}
	r.mut_connections.RUnlock()

	delivered := 0
	for _, t := range targets {
		if err := t.conn.Send(data); err != nil {
			r.CloseAndRemove(t.id)
			continue
		}
		delivered++
	}
	return delivered
}

// CloseAndRemove closes the transport and drops the registry entry.
func (r *Registry) CloseAndRemove(id string) {
	r.mut_connections.Lock()
	connection, has := r.connections[id]
	if has {
		delete(r.connections, id)
	}
	r.mut_connections.Unlock()

	if has {
		connection.Conn.Close()
	}
}
