package services

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"uptask/internal/models"
)

// ErrRegistryClosed is returned once the registry has been torn down
var ErrRegistryClosed = errors.New("room registry closed")

// ErrUnknownConnection is returned when a connection id is not registered
var ErrUnknownConnection = errors.New("unknown realtime connection")

// RealtimeConn is a live realtime connection as seen by the registry.
// Events are delivered without blocking; a full buffer drops the event for this connection.
type RealtimeConn struct {
	ID     string
	UserID string

	events    chan models.RealtimeEvent
	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the outbound event stream for the socket writer
func (c *RealtimeConn) Events() <-chan models.RealtimeEvent {
	return c.events
}

// Done is closed when the connection is disconnected or the registry shuts down
func (c *RealtimeConn) Done() <-chan struct{} {
	return c.done
}

func (c *RealtimeConn) deliver(event models.RealtimeEvent) bool {
	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}

func (c *RealtimeConn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// RoomRegistry tracks live connections and the project rooms they joined.
// Membership is process-local and independent of the persisted collaborator sets.
type RoomRegistry struct {
	mu      sync.RWMutex
	conns   map[string]*RealtimeConn
	rooms   map[string]map[string]*RealtimeConn // projectID → connID → conn
	joined  map[string]map[string]struct{}      // connID → projectIDs
	closed  bool
	metrics *Metrics
}

// NewRoomRegistry creates an empty registry
func NewRoomRegistry(metrics *Metrics) *RoomRegistry {
	return &RoomRegistry{
		conns:   make(map[string]*RealtimeConn),
		rooms:   make(map[string]map[string]*RealtimeConn),
		joined:  make(map[string]map[string]struct{}),
		metrics: metrics,
	}
}

// Connect registers a new connection for userID with the given outbound buffer
func (r *RoomRegistry) Connect(userID string, bufSize int) (*RealtimeConn, error) {
	if bufSize <= 0 {
		bufSize = 32
	}
	conn := &RealtimeConn{
		ID:     uuid.New().String(),
		UserID: userID,
		events: make(chan models.RealtimeEvent, bufSize),
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	r.conns[conn.ID] = conn
	r.joined[conn.ID] = make(map[string]struct{})
	r.metrics.RecordConnect()

	log.Printf("[ROOMS] Connect: user=%s conn=%s (total=%d)", userID, conn.ID, len(r.conns))
	return conn, nil
}

// Disconnect removes a connection from every room it joined
func (r *RoomRegistry) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	for projectID := range r.joined[connID] {
		r.removeFromRoomLocked(projectID, connID)
	}
	delete(r.joined, connID)
	delete(r.conns, connID)
	conn.shutdown()
	r.metrics.RecordDisconnect()
	r.metrics.SetRooms(len(r.rooms))

	log.Printf("[ROOMS] Disconnect: user=%s conn=%s (remaining=%d)", conn.UserID, connID, len(r.conns))
}

// Join subscribes a connection to a project room. Joining twice is a no-op.
func (r *RoomRegistry) Join(connID, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	conn, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}

	room, ok := r.rooms[projectID]
	if !ok {
		room = make(map[string]*RealtimeConn)
		r.rooms[projectID] = room
	}
	room[connID] = conn
	r.joined[connID][projectID] = struct{}{}
	r.metrics.SetRooms(len(r.rooms))
	return nil
}

// Leave unsubscribes a connection from a project room
func (r *RoomRegistry) Leave(connID, projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rooms, ok := r.joined[connID]; ok {
		delete(rooms, projectID)
	}
	r.removeFromRoomLocked(projectID, connID)
	r.metrics.SetRooms(len(r.rooms))
}

func (r *RoomRegistry) removeFromRoomLocked(projectID, connID string) {
	room, ok := r.rooms[projectID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, projectID)
	}
}

// Broadcast delivers event to every member of the project room except exceptConnID.
// Returns the number of connections that accepted the event.
func (r *RoomRegistry) Broadcast(projectID string, event models.RealtimeEvent, exceptConnID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for connID, conn := range r.rooms[projectID] {
		if connID == exceptConnID {
			continue
		}
		if conn.deliver(event) {
			delivered++
			r.metrics.RecordEvent(event.Type, "delivered")
		} else {
			r.metrics.RecordEvent(event.Type, "dropped")
			log.Printf("[ROOMS] Dropped %s for conn=%s: buffer full", event.Type, connID)
		}
	}
	return delivered
}

// Send delivers event to a single connection, bypassing rooms
func (r *RoomRegistry) Send(connID string, event models.RealtimeEvent) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	if !ok {
		return false
	}
	return conn.deliver(event)
}

// EvictUser removes every connection of userID from the project room and tells them so
func (r *RoomRegistry) EvictUser(projectID, userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for connID, conn := range r.rooms[projectID] {
		if conn.UserID != userID {
			continue
		}
		delete(r.joined[connID], projectID)
		r.removeFromRoomLocked(projectID, connID)
		conn.deliver(models.RealtimeEvent{Type: models.EventAccessRevoked, ProjectID: projectID})
		evicted++
	}
	r.metrics.SetRooms(len(r.rooms))
	if evicted > 0 {
		log.Printf("[ROOMS] Evicted %d connection(s) of user=%s from project=%s", evicted, userID, projectID)
	}
	return evicted
}

// CloseRoom empties a project room, notifying its members
func (r *RoomRegistry) CloseRoom(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[projectID]
	if !ok {
		return
	}
	for connID, conn := range room {
		delete(r.joined[connID], projectID)
		conn.deliver(models.RealtimeEvent{Type: models.EventAccessRevoked, ProjectID: projectID})
	}
	delete(r.rooms, projectID)
	r.metrics.SetRooms(len(r.rooms))
	log.Printf("[ROOMS] Closed room for project=%s (%d member(s))", projectID, len(room))
}

// IsMember reports whether a connection currently belongs to a project room
func (r *RoomRegistry) IsMember(connID, projectID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[projectID][connID]
	return ok
}

// RoomSize returns the number of connections in a project room
func (r *RoomRegistry) RoomSize(projectID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[projectID])
}

// ConnectionCount returns the number of live connections
func (r *RoomRegistry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// RoomCount returns the number of non-empty rooms
func (r *RoomRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// Close tears down every connection and refuses new ones
func (r *RoomRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, conn := range r.conns {
		conn.shutdown()
		r.metrics.RecordDisconnect()
	}
	count := len(r.conns)
	r.conns = make(map[string]*RealtimeConn)
	r.rooms = make(map[string]map[string]*RealtimeConn)
	r.joined = make(map[string]map[string]struct{})
	r.metrics.SetRooms(0)

	log.Printf("[ROOMS] Registry closed (%d connection(s) dropped)", count)
}
