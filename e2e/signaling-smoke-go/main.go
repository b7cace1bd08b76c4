// Command signaling-smoke-go drives a full signaling exchange against a
// running parleyd and exits non-zero when any step misbehaves. Point it at a
// server with PARLEY_URL (defaults to a local dev instance).
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const readTimeout = 5 * time.Second

type message struct {
	Type      string          `json:"type"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	Username  string          `json:"username,omitempty"`
	Message   string          `json:"message,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func main() {
	base := strings.TrimRight(envOrDefault("PARLEY_URL", "http://127.0.0.1:8080"), "/")

	roomID, err := createRoom(base)
	if err != nil {
		fail("create room: %v", err)
	}
	fmt.Printf("room %s\n", roomID)

	alice := dial(base, roomID, "alice", "Alice")
	defer alice.Close()
	bob := dial(base, roomID, "bob", "Bob")
	defer bob.Close()

	join := expect(alice, "join")
	if join.From != "bob" || join.RoomID != roomID || join.Username != "Bob" {
		fail("join not stamped by server: %+v", join)
	}

	send(alice, message{Type: "offer", To: "bob", SDP: json.RawMessage(`{"type":"offer","sdp":"v=0"}`)})
	offer := expect(bob, "offer")
	if offer.From != "alice" || string(offer.SDP) != `{"type":"offer","sdp":"v=0"}` {
		fail("offer not relayed verbatim: %+v", offer)
	}

	send(bob, message{Type: "answer", To: "alice", SDP: json.RawMessage(`{"type":"answer","sdp":"v=0"}`)})
	answer := expect(alice, "answer")
	if answer.From != "bob" {
		fail("answer sender: %+v", answer)
	}

	send(alice, message{Type: "ice-candidate", To: "bob", Candidate: json.RawMessage(`{"candidate":"candidate:0 1 UDP 1 127.0.0.1 9 typ host"}`)})
	cand := expect(bob, "ice-candidate")
	if cand.From != "alice" {
		fail("candidate sender: %+v", cand)
	}

	send(alice, message{Type: "chat", Message: "smoke"})
	chat := expect(bob, "chat")
	if chat.From != "alice" || chat.Username != "Alice" || chat.Message != "smoke" {
		fail("chat not stamped: %+v", chat)
	}

	if err := alice.Close(); err != nil {
		fail("close alice: %v", err)
	}
	leave := expect(bob, "leave")
	if leave.From != "alice" {
		fail("leave sender: %+v", leave)
	}

	fmt.Println("PASS")
}

func createRoom(base string) (string, error) {
	resp, err := http.Post(base+"/api/rooms", "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var body struct {
		RoomID string `json:"roomId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.RoomID == "" {
		return "", fmt.Errorf("empty roomId")
	}
	return body.RoomID, nil
}

func dial(base, roomID, clientID, username string) *websocket.Conn {
	wsBase := "ws" + strings.TrimPrefix(base, "http")
	u := fmt.Sprintf("%s/ws?roomId=%s&clientId=%s&username=%s",
		wsBase, url.QueryEscape(roomID), url.QueryEscape(clientID), url.QueryEscape(username))
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		fail("dial %s: %v", clientID, err)
	}
	return conn
}

func send(conn *websocket.Conn, msg message) {
	if err := conn.WriteJSON(msg); err != nil {
		fail("send %s: %v", msg.Type, err)
	}
}

func expect(conn *websocket.Conn, msgType string) message {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	var msg message
	if err := conn.ReadJSON(&msg); err != nil {
		fail("read (want %s): %v", msgType, err)
	}
	if msg.Type != msgType {
		fail("read type %s, want %s: %+v", msg.Type, msgType, msg)
	}
	return msg
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
