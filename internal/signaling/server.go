package signaling

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley/parley/internal/config"
	"github.com/parley/parley/internal/metrics"
	"github.com/parley/parley/internal/ratelimit"
)

// Application close codes in the 4000-4999 private range. Clients use them
// to tell a deliberate replacement apart from an ordinary disconnect.
const (
	wsCloseEvicted  = 4000
	wsCloseRejected = 4001
)

// Server owns the /ws endpoint and the rooms API.
type Server struct {
	cfg      config.Config
	log      *slog.Logger
	registry *Registry
	metrics  *metrics.Metrics

	// clock feeds the per-connection rate limiter; tests substitute a fake.
	clock ratelimit.Clock
}

func NewServer(cfg config.Config, log *slog.Logger, registry *Registry, m *metrics.Metrics) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		cfg:      cfg,
		log:      log,
		registry: registry,
		metrics:  m,
		clock:    ratelimit.RealClock{},
	}
}

// RegisterRoutes attaches the signaling endpoints to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /api/rooms", s.handleListRooms)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	roomID := query.Get("roomId")
	clientID := query.Get("clientId")
	username := query.Get("username")
	if roomID == "" || clientID == "" || username == "" {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "roomId, clientId and username query parameters are required")
		return
	}

	upgrader := websocket.Upgrader{
		// Origin checks are enforced by the outer httpserver origin middleware.
		// For unit tests that don't use httpserver.Server, accept all origins
		// here.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()

	client := newClient(conn, clientID, username, s.cfg.SendQueueSize, s.cfg.WSPingInterval, s.cfg.WSWriteTimeout)

	evicted, err := s.join(client, roomID)
	if err != nil {
		s.log.Info("ws_rejected", "room_id", roomID, "client_id", clientID, "remote_addr", r.RemoteAddr)
		client.closeWith(wsCloseRejected, "clientId already in use")
		return
	}
	if evicted != nil {
		s.log.Info("ws_evicted", "room_id", roomID, "client_id", clientID, "remote_addr", r.RemoteAddr)
		evicted.closeWith(wsCloseEvicted, "replaced by a newer connection")
	}

	s.log.Info("ws_connected", "room_id", roomID, "client_id", clientID, "remote_addr", r.RemoteAddr)
	defer s.log.Info("ws_disconnected", "room_id", roomID, "client_id", clientID, "remote_addr", r.RemoteAddr)

	go client.writeLoop()
	defer client.shutdown()
	defer func() {
		client.room.remove(client)
	}()

	s.readLoop(client)
}

// join installs the client into a live room, retrying when it raced the
// teardown of a draining room.
func (s *Server) join(c *Client, roomID string) (*Client, error) {
	for {
		room := s.registry.GetOrCreateRoom(roomID)
		c.room = room
		evicted, err := room.add(c, s.cfg.ClientIDCollision)
		if errors.Is(err, ErrRoomClosed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return evicted, nil
	}
}

// readLoop pulls frames off the socket until the connection dies or breaks
// a protocol rule. Binary frames and unparseable JSON are dropped without
// killing the connection; size and rate violations close it.
func (s *Server) readLoop(c *Client) {
	c.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	idle := s.cfg.WSIdleTimeout
	_ = c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	// Allow bursts of up to twice the sustained per-second budget.
	rate := int64(s.cfg.MaxMessagesPerSecond)
	bucket := ratelimit.NewBucket(s.clock, 2*rate, rate)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				// gorilla already sent the 1009 close frame.
				s.metrics.MessageDropped("oversized")
			case isTimeout(err):
				c.closeWith(websocket.CloseNormalClosure, "idle timeout")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(idle))

		if !bucket.Allow() {
			s.metrics.MessageDropped("rate_limit")
			c.closeWith(websocket.ClosePolicyViolation, "message rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			s.metrics.MessageDropped("non_text")
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.metrics.MessageDropped("malformed")
			continue
		}
		s.route(c, msg)
	}
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.registry.CreateRoom()
	if err != nil {
		s.log.Error("room_create_failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "failed to create room")
		return
	}
	writeJSON(w, http.StatusOK, createRoomResponse{RoomID: room.id})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listRoomsResponse{Rooms: s.registry.RoomIDs()})
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

type listRoomsResponse struct {
	Rooms []string `json:"rooms"`
}

type httpErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, httpErrorResponse{Code: code, Message: message})
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
