package signaling

import (
	"errors"

	"github.com/gorilla/websocket"
)

// route stamps the sender's identity on one inbound message and dispatches
// it. The server is authoritative for From and RoomID; whatever the client
// put there is overwritten, never trusted.
func (s *Server) route(sender *Client, msg Message) {
	msg.From = sender.id
	msg.RoomID = sender.room.id

	switch {
	case isUnicast(msg.Type):
		s.unicast(sender, msg)
	case msg.Type == TypeChat:
		msg.Username = sender.username
		s.broadcast(sender, msg)
	case msg.Type == TypeJoin || msg.Type == TypeLeave:
		// Membership events are minted by the server alone.
		s.drop(sender, msg.Type, "reserved_type")
	default:
		s.drop(sender, msg.Type, "unknown_type")
	}
}

// unicast delivers to the single peer named by To. Missing or unknown
// recipients drop the message without disturbing the sender's connection;
// the peer may simply have left a moment ago.
func (s *Server) unicast(sender *Client, msg Message) {
	if msg.To == "" {
		s.drop(sender, msg.Type, "no_recipient")
		return
	}
	target, ok := sender.room.member(msg.To)
	if !ok {
		s.drop(sender, msg.Type, "no_recipient")
		return
	}
	s.deliver(target, msg)
}

// broadcast delivers to every room member except the sender.
func (s *Server) broadcast(sender *Client, msg Message) {
	for _, peer := range sender.room.snapshot() {
		if peer.id == sender.id {
			continue
		}
		s.deliver(peer, msg)
	}
}

// deliver enqueues one message for one client. A full send queue means the
// receiver has stopped draining its socket, so it is disconnected rather
// than allowed to stall the room.
func (s *Server) deliver(target *Client, msg Message) {
	switch err := target.enqueue(msg); {
	case err == nil:
		s.metrics.MessageRouted(msg.Type)
	case errors.Is(err, errSendQueueFull):
		s.metrics.MessageDropped("slow_consumer")
		s.log.Warn("ws_slow_consumer", "room_id", msg.RoomID, "client_id", target.id)
		target.closeWith(websocket.ClosePolicyViolation, "send queue overflow")
	default:
		s.metrics.MessageDropped("client_closed")
	}
}

func (s *Server) drop(sender *Client, msgType, reason string) {
	s.metrics.MessageDropped(reason)
	s.log.Debug("ws_message_dropped",
		"room_id", sender.room.id,
		"client_id", sender.id,
		"type", msgType,
		"reason", reason,
	)
}
