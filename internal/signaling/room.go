package signaling

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/parley/parley/internal/config"
	"github.com/parley/parley/internal/metrics"
)

// Room holds the live clients for one roomId and announces membership
// changes to them. Join and leave frames are enqueued while the membership
// lock is held so every member observes events in the order membership
// actually changed; enqueue never blocks, which keeps the critical section
// short.
type Room struct {
	id string

	metrics *metrics.Metrics
	onEmpty func(*Room)

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

func newRoom(id string, m *metrics.Metrics, onEmpty func(*Room)) *Room {
	return &Room{
		id:      id,
		metrics: m,
		onEmpty: onEmpty,
		clients: make(map[string]*Client),
	}
}

func (r *Room) ID() string { return r.id }

// add registers c under its clientId and announces the join to everyone
// else. When the id is already connected the collision policy decides:
// evict returns the displaced client for the caller to close, reject
// returns ErrClientIDTaken and leaves the existing connection alone.
// Detection and insertion happen under one lock acquisition so two racing
// connections can never both end up registered.
func (r *Room) add(c *Client, policy config.CollisionPolicy) (*Client, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRoomClosed
	}
	var evicted *Client
	if old, ok := r.clients[c.id]; ok {
		if policy == config.CollisionReject {
			r.mu.Unlock()
			return nil, ErrClientIDTaken
		}
		evicted = old
	}
	r.clients[c.id] = c
	join := Message{Type: TypeJoin, From: c.id, RoomID: r.id, Username: c.username}
	slow := r.notifyLocked(join, c.id)
	r.mu.Unlock()

	r.disconnectSlow(slow)
	return evicted, nil
}

// remove drops c from the room and announces the leave. An evicted client's
// teardown arrives after its replacement took the map slot; the identity
// check keeps that teardown from touching the newcomer. The last member out
// closes the room so joiners cannot land in a room the registry is about to
// forget.
func (r *Room) remove(c *Client) bool {
	r.mu.Lock()
	cur, ok := r.clients[c.id]
	if !ok || cur != c {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, c.id)
	leave := Message{Type: TypeLeave, From: c.id, RoomID: r.id, Username: c.username}
	slow := r.notifyLocked(leave, c.id)
	empty := len(r.clients) == 0
	if empty {
		r.closed = true
	}
	r.mu.Unlock()

	r.disconnectSlow(slow)
	if empty && r.onEmpty != nil {
		r.onEmpty(r)
	}
	return true
}

// member returns the live client registered under id.
func (r *Room) member(id string) (*Client, bool) {
	r.mu.Lock()
	c, ok := r.clients[id]
	r.mu.Unlock()
	return c, ok
}

// snapshot returns the current members. Broadcasts iterate the copy so no
// lock is held while messages are handed to writers.
func (r *Room) snapshot() []*Client {
	r.mu.Lock()
	members := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		members = append(members, c)
	}
	r.mu.Unlock()
	return members
}

func (r *Room) size() int {
	r.mu.Lock()
	n := len(r.clients)
	r.mu.Unlock()
	return n
}

func (r *Room) isClosed() bool {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	return closed
}

// notifyLocked enqueues msg to every member except skipID and returns the
// members whose send queue was full. Callers must hold r.mu.
func (r *Room) notifyLocked(msg Message, skipID string) []*Client {
	var slow []*Client
	for id, peer := range r.clients {
		if id == skipID {
			continue
		}
		switch peer.enqueue(msg) {
		case nil:
			r.metrics.MessageRouted(msg.Type)
		case errSendQueueFull:
			slow = append(slow, peer)
		default:
			r.metrics.MessageDropped("client_closed")
		}
	}
	return slow
}

// disconnectSlow closes clients that could not absorb a broadcast. Called
// without the membership lock: a close frame write may stall for the whole
// write timeout and must not hold up the room.
func (r *Room) disconnectSlow(slow []*Client) {
	for _, peer := range slow {
		r.metrics.MessageDropped("slow_consumer")
		peer.closeWith(websocket.ClosePolicyViolation, "send queue overflow")
	}
}
