package signaling

import "encoding/json"

// Message types understood by the router. Join and leave are generated by the
// server on membership changes; clients that send them are ignored.
const (
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeChat         = "chat"
	TypeJoin         = "join"
	TypeLeave        = "leave"
)

// Message is the wire envelope for every signaling frame, inbound and
// outbound. From and RoomID are stamped by the server; values supplied by the
// client are overwritten before routing.
//
// SDP and Candidate are kept opaque. The relay forwards whatever the client
// produced so browser SDP changes never require a server update.
type Message struct {
	Type      string          `json:"type"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	Username  string          `json:"username,omitempty"`
	Message   string          `json:"message,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// isUnicast reports whether this message type is addressed to a single peer
// via the To field rather than broadcast to the room.
func isUnicast(msgType string) bool {
	switch msgType {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}
