package signaling

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley/parley/internal/config"
)

func TestJoinAndLeaveEvents(t *testing.T) {
	ts, reg := startServer(t, testConfig())

	alice := dialWS(t, ts, "lobby", "alice", "Alice")
	waitForMembers(t, reg, "lobby", 1)
	bob := dialWS(t, ts, "lobby", "bob", "Bob")

	join := expectEnvelope(t, alice, TypeJoin, "bob")
	if join.RoomID != "lobby" || join.Username != "Bob" {
		t.Fatalf("unexpected join envelope: %+v", join)
	}

	_ = bob.Close()

	leave := expectEnvelope(t, alice, TypeLeave, "bob")
	if leave.RoomID != "lobby" || leave.Username != "Bob" {
		t.Fatalf("unexpected leave envelope: %+v", leave)
	}
	_ = alice
}

func TestRoomListingFollowsMembership(t *testing.T) {
	ts, reg := startServer(t, testConfig())

	alice := dialWS(t, ts, "lobby", "alice", "Alice")
	waitForMembers(t, reg, "lobby", 1)
	bob := dialWS(t, ts, "lobby", "bob", "Bob")
	waitForMembers(t, reg, "lobby", 2)

	_ = alice.Close()
	expectEnvelope(t, bob, TypeLeave, "alice")

	if ids := reg.RoomIDs(); len(ids) != 1 || ids[0] != "lobby" {
		t.Fatalf("room should stay listed while a member remains, got %v", ids)
	}

	_ = bob.Close()

	// Teardown runs after the close frame lands, so poll for the removal.
	deadline := time.Now().Add(2 * time.Second)
	for len(reg.RoomIDs()) != 0 {
		if !time.Now().Before(deadline) {
			t.Fatalf("room still listed after last member left: %v", reg.RoomIDs())
		}
		time.Sleep(5 * time.Millisecond)
	}

	res, err := http.Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if !strings.Contains(string(body), `"rooms":[]`) {
		t.Fatalf("expected empty listing, got %s", body)
	}

	// Re-joining the drained id lands in a fresh room.
	carol := dialWS(t, ts, "lobby", "carol", "Carol")
	waitForMembers(t, reg, "lobby", 1)
	_ = carol
}

func TestChatBroadcastSkipsSender(t *testing.T) {
	ts, reg := startServer(t, testConfig())

	alice := dialWS(t, ts, "lobby", "alice", "Alice")
	waitForMembers(t, reg, "lobby", 1)
	bob := dialWS(t, ts, "lobby", "bob", "Bob")
	waitForMembers(t, reg, "lobby", 2)
	carol := dialWS(t, ts, "lobby", "carol", "Carol")
	waitForMembers(t, reg, "lobby", 3)

	expectEnvelope(t, alice, TypeJoin, "bob")
	expectEnvelope(t, alice, TypeJoin, "carol")
	expectEnvelope(t, bob, TypeJoin, "carol")

	if err := alice.WriteJSON(Message{Type: TypeChat, Message: "hi all"}); err != nil {
		t.Fatalf("send chat: %v", err)
	}

	for _, peer := range []*websocket.Conn{bob, carol} {
		chat := expectEnvelope(t, peer, TypeChat, "alice")
		if chat.Message != "hi all" || chat.Username != "Alice" || chat.RoomID != "lobby" {
			t.Fatalf("unexpected chat envelope: %+v", chat)
		}
	}

	// The sender's next frame is bob's marker, so alice never saw her own
	// chat echoed back.
	if err := bob.WriteJSON(Message{Type: TypeChat, Message: "marker"}); err != nil {
		t.Fatalf("send marker: %v", err)
	}
	marker := expectEnvelope(t, alice, TypeChat, "bob")
	if marker.Message != "marker" {
		t.Fatalf("unexpected marker envelope: %+v", marker)
	}
}

func TestOfferUnicastReachesOnlyTarget(t *testing.T) {
	ts, reg := startServer(t, testConfig())

	alice := dialWS(t, ts, "lobby", "alice", "Alice")
	waitForMembers(t, reg, "lobby", 1)
	bob := dialWS(t, ts, "lobby", "bob", "Bob")
	waitForMembers(t, reg, "lobby", 2)
	carol := dialWS(t, ts, "lobby", "carol", "Carol")
	waitForMembers(t, reg, "lobby", 3)

	expectEnvelope(t, alice, TypeJoin, "bob")
	expectEnvelope(t, alice, TypeJoin, "carol")
	expectEnvelope(t, bob, TypeJoin, "carol")

	raw := `{"type":"offer","to":"bob","sdp":{"type":"offer","sdp":"v=0"}}`
	if err := alice.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("send offer: %v", err)
	}

	offer := expectEnvelope(t, bob, TypeOffer, "alice")
	if offer.To != "bob" || string(offer.SDP) != `{"type":"offer","sdp":"v=0"}` {
		t.Fatalf("unexpected offer envelope: %+v sdp=%s", offer, offer.SDP)
	}

	// Carol's first frame after the joins is the chat below, so the offer
	// was not fanned out to the room.
	if err := alice.WriteJSON(Message{Type: TypeChat, Message: "after"}); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	expectEnvelope(t, carol, TypeChat, "alice")
}

func TestServerStampsSenderIdentity(t *testing.T) {
	ts, reg := startServer(t, testConfig())

	alice := dialWS(t, ts, "actual", "alice", "Alice")
	waitForMembers(t, reg, "actual", 1)
	bob := dialWS(t, ts, "actual", "bob", "Bob")
	expectEnvelope(t, alice, TypeJoin, "bob")

	spoofed := `{"type":"answer","from":"mallory","roomId":"elsewhere","to":"alice","sdp":{"type":"answer","sdp":"v=0"}}`
	if err := bob.WriteMessage(websocket.TextMessage, []byte(spoofed)); err != nil {
		t.Fatalf("send answer: %v", err)
	}

	answer := expectEnvelope(t, alice, TypeAnswer, "bob")
	if answer.RoomID != "actual" {
		t.Fatalf("expected stamped room id, got %+v", answer)
	}
}

func TestUnicastToUnknownPeerIsDropped(t *testing.T) {
	ts, reg := startServer(t, testConfig())

	alice := dialWS(t, ts, "lobby", "alice", "Alice")
	waitForMembers(t, reg, "lobby", 1)
	bob := dialWS(t, ts, "lobby", "bob", "Bob")
	expectEnvelope(t, alice, TypeJoin, "bob")

	offers := []Message{
		{Type: TypeOffer, To: "ghost", SDP: []byte(`{"type":"offer","sdp":"v=0"}`)},
		{Type: TypeICECandidate, Candidate: []byte(`{"candidate":"candidate:1"}`)}, // no recipient at all
	}
	for _, msg := range offers {
		if err := alice.WriteJSON(msg); err != nil {
			t.Fatalf("send %s: %v", msg.Type, err)
		}
	}

	// Bob only ever sees the chat, and alice's connection survived the
	// undeliverable frames.
	if err := alice.WriteJSON(Message{Type: TypeChat, Message: "still here"}); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	expectEnvelope(t, bob, TypeChat, "alice")

	if err := bob.WriteJSON(Message{Type: TypeChat, Message: "ack"}); err != nil {
		t.Fatalf("send ack: %v", err)
	}
	expectEnvelope(t, alice, TypeChat, "bob")
}

func TestClientSentJoinLeaveIgnored(t *testing.T) {
	ts, reg := startServer(t, testConfig())

	alice := dialWS(t, ts, "lobby", "alice", "Alice")
	waitForMembers(t, reg, "lobby", 1)
	bob := dialWS(t, ts, "lobby", "bob", "Bob")
	expectEnvelope(t, alice, TypeJoin, "bob")

	for _, msgType := range []string{TypeJoin, TypeLeave} {
		if err := bob.WriteJSON(Message{Type: msgType}); err != nil {
			t.Fatalf("send %s: %v", msgType, err)
		}
	}
	if err := bob.WriteJSON(Message{Type: TypeChat, Message: "marker"}); err != nil {
		t.Fatalf("send marker: %v", err)
	}

	marker := expectEnvelope(t, alice, TypeChat, "bob")
	if marker.Message != "marker" {
		t.Fatalf("forged membership events should be dropped, got %+v", marker)
	}
}

func TestUnparseableFramesAreSkipped(t *testing.T) {
	ts, reg := startServer(t, testConfig())

	alice := dialWS(t, ts, "lobby", "alice", "Alice")
	waitForMembers(t, reg, "lobby", 1)
	bob := dialWS(t, ts, "lobby", "bob", "Bob")
	expectEnvelope(t, alice, TypeJoin, "bob")

	if err := bob.WriteMessage(websocket.TextMessage, []byte("not json{{{")); err != nil {
		t.Fatalf("send garbage: %v", err)
	}
	if err := bob.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("send binary: %v", err)
	}
	if err := bob.WriteMessage(websocket.TextMessage, []byte(`{"type":"warp"}`)); err != nil {
		t.Fatalf("send unknown type: %v", err)
	}
	if err := bob.WriteJSON(Message{Type: TypeChat, Message: "marker"}); err != nil {
		t.Fatalf("send marker: %v", err)
	}

	marker := expectEnvelope(t, alice, TypeChat, "bob")
	if marker.Message != "marker" {
		t.Fatalf("expected marker after skipped frames, got %+v", marker)
	}
}

func TestCollisionEvictClosesOldConnection(t *testing.T) {
	ts, reg := startServer(t, testConfig())

	watcher := dialWS(t, ts, "lobby", "watcher", "W")
	waitForMembers(t, reg, "lobby", 1)
	first := dialWS(t, ts, "lobby", "alice", "Alice")
	expectEnvelope(t, watcher, TypeJoin, "alice")

	second := dialWS(t, ts, "lobby", "alice", "Alice")

	expectCloseCode(t, first, wsCloseEvicted)

	// Peers get a fresh join for the replacement so they renegotiate.
	expectEnvelope(t, watcher, TypeJoin, "alice")

	if err := second.WriteJSON(Message{Type: TypeChat, Message: "back"}); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	chat := expectEnvelope(t, watcher, TypeChat, "alice")
	if chat.Message != "back" {
		t.Fatalf("unexpected chat envelope: %+v", chat)
	}
}

func TestCollisionRejectClosesNewConnection(t *testing.T) {
	cfg := testConfig()
	cfg.ClientIDCollision = config.CollisionReject
	ts, reg := startServer(t, cfg)

	watcher := dialWS(t, ts, "lobby", "watcher", "W")
	waitForMembers(t, reg, "lobby", 1)
	first := dialWS(t, ts, "lobby", "alice", "Alice")
	expectEnvelope(t, watcher, TypeJoin, "alice")

	second := dialWS(t, ts, "lobby", "alice", "Alice")
	expectCloseCode(t, second, wsCloseRejected)

	// The established connection keeps working.
	if err := first.WriteJSON(Message{Type: TypeChat, Message: "untouched"}); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	chat := expectEnvelope(t, watcher, TypeChat, "alice")
	if chat.Message != "untouched" {
		t.Fatalf("unexpected chat envelope: %+v", chat)
	}
}
