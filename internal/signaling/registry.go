package signaling

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/parley/parley/internal/metrics"
)

const roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newRoomID returns "room-" plus 8 characters drawn from crypto/rand.
func newRoomID() (string, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	id := make([]byte, len(raw))
	for i, b := range raw {
		id[i] = roomIDAlphabet[int(b)%len(roomIDAlphabet)]
	}
	return "room-" + string(id), nil
}

// Registry tracks every live room. It is plain injected state: the caller
// builds one and shares it between the WebSocket handler and the rooms API.
type Registry struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry(log *slog.Logger, m *metrics.Metrics) *Registry {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		log:     log,
		metrics: m,
		rooms:   make(map[string]*Room),
	}
}

// CreateRoom registers a new empty room under a freshly generated id.
func (reg *Registry) CreateRoom() (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for attempt := 0; attempt < 3; attempt++ {
		id, err := newRoomID()
		if err != nil {
			return nil, fmt.Errorf("generate room id: %w", err)
		}
		if _, exists := reg.rooms[id]; exists {
			continue
		}
		return reg.registerLocked(id), nil
	}
	return nil, errors.New("room id collisions exhausted retries")
}

// GetOrCreateRoom returns the live room with the given id, creating it when
// none exists. A room found closed (its last member just left and its
// removal is in flight) is replaced, so a joiner never lands in a dead room.
func (reg *Registry) GetOrCreateRoom(id string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if room, ok := reg.rooms[id]; ok {
		if !room.isClosed() {
			return room
		}
		// The new entry takes the map slot before removeEmptyRoom runs its
		// identity check, so account for the old room here.
		reg.metrics.RoomClosed()
		reg.log.Info("room_removed", "room_id", id)
	}
	return reg.registerLocked(id)
}

// Room returns the live room with the given id without creating one.
func (reg *Registry) Room(id string) (*Room, bool) {
	reg.mu.Lock()
	room, ok := reg.rooms[id]
	reg.mu.Unlock()
	if !ok || room.isClosed() {
		return nil, false
	}
	return room, true
}

// RoomIDs returns the ids of all live rooms in sorted order.
func (reg *Registry) RoomIDs() []string {
	reg.mu.Lock()
	ids := make([]string, 0, len(reg.rooms))
	for id := range reg.rooms {
		ids = append(ids, id)
	}
	reg.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Close disconnects every client in every room with a going-away frame.
// http.Server.Shutdown only waits for regular handlers; hijacked WebSocket
// connections must be torn down explicitly or they outlive the shutdown.
func (reg *Registry) Close() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.Unlock()

	for _, room := range rooms {
		for _, c := range room.snapshot() {
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
		}
	}
}

func (reg *Registry) registerLocked(id string) *Room {
	room := newRoom(id, reg.metrics, reg.removeEmptyRoom)
	reg.rooms[id] = room
	reg.metrics.RoomCreated()
	reg.log.Info("room_created", "room_id", id)
	return room
}

// removeEmptyRoom forgets a drained room. The identity check makes the
// removal a no-op when GetOrCreateRoom already replaced the entry with a
// fresh room for the same id.
func (reg *Registry) removeEmptyRoom(room *Room) {
	reg.mu.Lock()
	if cur, ok := reg.rooms[room.id]; ok && cur == room {
		delete(reg.rooms, room.id)
		reg.metrics.RoomClosed()
		reg.log.Info("room_removed", "room_id", room.id)
	}
	reg.mu.Unlock()
}
