package signaling

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newSignalingServer(t *testing.T) *httptest.Server {
	t.Helper()
	hub := New(nil, time.Hour)
	h := NewHandler(hub, nil, time.Minute, time.Hour)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

// TestHandshakeEndToEnd walks a full host/peer session over live websocket
// connections: join both sides, exchange offer/answer, then trickle ICE
// candidates and assert per-sender ordering.
func TestHandshakeEndToEnd(t *testing.T) {
	srv := newSignalingServer(t)

	host := dial(t, srv)
	if err := host.WriteJSON(Envelope{
		Type: TypeJoin, RoomCode: "XYZ123", HostID: "h1",
		Payload: mustMarshal(joinPayload{FileName: "a.bin", FileSize: 42}),
	}); err != nil {
		t.Fatalf("host join: %v", err)
	}
	if env := readEnvelope(t, host); env.Type != TypeReady {
		t.Fatalf("host got %q, want ready", env.Type)
	}

	peer := dial(t, srv)
	if err := peer.WriteJSON(Envelope{Type: TypeJoin, RoomCode: "XYZ123"}); err != nil {
		t.Fatalf("peer join: %v", err)
	}
	env := readEnvelope(t, peer)
	if env.Type != TypeReady {
		t.Fatalf("peer got %q, want ready", env.Type)
	}
	if !strings.Contains(string(env.Payload), `"a.bin"`) {
		t.Errorf("peer ready payload %s should carry the announced file name", env.Payload)
	}
	if env := readEnvelope(t, host); env.Type != TypePeerJoined {
		t.Fatalf("host got %q, want peer-joined", env.Type)
	}

	offer := `{"sdp":"v=0 offer"}`
	if err := host.WriteJSON(Envelope{Type: TypeOffer, RoomCode: "XYZ123", Payload: []byte(offer)}); err != nil {
		t.Fatalf("host offer: %v", err)
	}
	env = readEnvelope(t, peer)
	if env.Type != TypeOffer || string(env.Payload) != offer {
		t.Fatalf("peer got %+v, want verbatim offer", env)
	}

	answer := `{"sdp":"v=0 answer"}`
	if err := peer.WriteJSON(Envelope{Type: TypeAnswer, RoomCode: "XYZ123", Payload: []byte(answer)}); err != nil {
		t.Fatalf("peer answer: %v", err)
	}
	env = readEnvelope(t, host)
	if env.Type != TypeAnswer || string(env.Payload) != answer {
		t.Fatalf("host got %+v, want verbatim answer", env)
	}

	for i, cand := range []string{`{"candidate":"c1"}`, `{"candidate":"c2"}`, `{"candidate":"c3"}`} {
		if err := host.WriteJSON(Envelope{Type: TypeICECandidate, RoomCode: "XYZ123", Payload: []byte(cand)}); err != nil {
			t.Fatalf("host candidate %d: %v", i, err)
		}
	}
	for i, want := range []string{`{"candidate":"c1"}`, `{"candidate":"c2"}`, `{"candidate":"c3"}`} {
		env = readEnvelope(t, peer)
		if env.Type != TypeICECandidate || string(env.Payload) != want {
			t.Fatalf("candidate %d arrived as %+v, want %s in order", i, env, want)
		}
	}
}

func TestFirstMessageMustBeJoin(t *testing.T) {
	srv := newSignalingServer(t)

	conn := dial(t, srv)
	if err := conn.WriteJSON(Envelope{Type: TypeOffer, RoomCode: "XYZ123", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if env := readEnvelope(t, conn); env.Type != TypeError {
		t.Fatalf("got %q, want error", env.Type)
	}
	// The server closes after the protocol violation.
	var env Envelope
	if err := conn.ReadJSON(&env); err == nil {
		t.Error("connection should have been closed after a non-join first message")
	}
}

// TestPeerReconnectAfterLeaving checks that a peer disconnecting returns
// the room to waiting and a fresh peer may join with the same code.
func TestPeerReconnectAfterLeaving(t *testing.T) {
	srv := newSignalingServer(t)

	host := dial(t, srv)
	if err := host.WriteJSON(Envelope{Type: TypeJoin, RoomCode: "ROOM55", HostID: "h1"}); err != nil {
		t.Fatalf("host join: %v", err)
	}
	readEnvelope(t, host) // ready

	peer1 := dial(t, srv)
	if err := peer1.WriteJSON(Envelope{Type: TypeJoin, RoomCode: "ROOM55"}); err != nil {
		t.Fatalf("peer join: %v", err)
	}
	readEnvelope(t, peer1) // ready
	readEnvelope(t, host)  // peer-joined

	_ = peer1.Close()

	if env := readEnvelope(t, host); env.Type != TypePeerLeft {
		t.Fatalf("host got %q, want peer-left", env.Type)
	}

	peer2 := dial(t, srv)
	if err := peer2.WriteJSON(Envelope{Type: TypeJoin, RoomCode: "ROOM55"}); err != nil {
		t.Fatalf("second peer join: %v", err)
	}
	if env := readEnvelope(t, peer2); env.Type != TypeReady {
		t.Fatalf("second peer got %q, want ready", env.Type)
	}
	if env := readEnvelope(t, host); env.Type != TypePeerJoined {
		t.Fatalf("host got %q, want peer-joined again", env.Type)
	}
}
