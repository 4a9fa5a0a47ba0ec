package signaling

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Handler upgrades a request to a websocket and runs its read pump for the
// lifetime of the connection. It is an http.Handler so it mounts
// directly on the chi router alongside the REST file endpoints.
type Handler struct {
	hub         *Hub
	upgrader    websocket.Upgrader
	idleWait    time.Duration
	maxLifetime time.Duration
}

// NewHandler builds a signaling Handler. idleWait is SIGNALING_IDLE_SECONDS;
// maxLifetime bounds a single connection's total lifetime, matching room
// expiry.
func NewHandler(hub *Hub, allowedOrigins []string, idleWait, maxLifetime time.Duration) *Handler {
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(originSet) == 0 {
					return true
				}
				return originSet[origin]
			},
		},
		idleWait:    idleWait,
		maxLifetime: maxLifetime,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("signaling: upgrade failed")
		return
	}
	t := newWSTransport(conn)
	h.run(t)
}

// connState tracks what this connection joined as, so its close handler
// knows which Hub teardown path to take. It is set exactly once, by the
// first (join) message.
type connState struct {
	roomCode string
	role     Role
	joined   bool
}

// run drives one connection's read pump until it closes, then tears down
// whatever room state it held.
func (h *Handler) run(t *wsTransport) {
	deadline := time.Now().Add(h.maxLifetime)
	// readDeadline never extends past the connection's max lifetime, so a
	// connection kept alive only by pongs still ends at that deadline.
	readDeadline := func() time.Time {
		d := time.Now().Add(h.idleWait)
		if d.After(deadline) {
			return deadline
		}
		return d
	}
	t.conn.SetReadDeadline(readDeadline())
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(readDeadline())
		return nil
	})

	stopPing := make(chan struct{})
	go h.pingLoop(t, stopPing)
	defer close(stopPing)

	var st connState
	defer h.teardown(&st, t)

	first := true
	for {
		if time.Now().After(deadline) {
			_ = t.Close(websocket.CloseNormalClosure, "connection max lifetime exceeded")
			return
		}

		var env Envelope
		if err := t.conn.ReadJSON(&env); err != nil {
			return
		}
		t.conn.SetReadDeadline(readDeadline())

		if first {
			first = false
			if env.Type != TypeJoin {
				_ = t.Send(errorEnvelope("first message must be join"))
				_ = t.Close(websocket.CloseProtocolError, "first message must be join")
				return
			}
			if err := h.handleJoin(&st, env, t); err != nil {
				return
			}
			continue
		}

		if !st.joined {
			continue
		}
		h.dispatch(&st, env, t)
	}
}

func (h *Handler) handleJoin(st *connState, env Envelope, t *wsTransport) error {
	if env.RoomCode == "" {
		_ = t.Send(errorEnvelope("join requires roomCode"))
		return nil
	}

	if env.HostID != "" {
		var p joinPayload
		_ = json.Unmarshal(env.Payload, &p)
		if err := h.hub.HostJoin(env.RoomCode, env.HostID, p.FileName, p.FileSize, t); err != nil {
			return err
		}
		st.roomCode, st.role, st.joined = env.RoomCode, RoleHost, true
		return nil
	}

	if err := h.hub.PeerJoin(env.RoomCode, t); err != nil {
		return err
	}
	st.roomCode, st.role, st.joined = env.RoomCode, RolePeer, true
	return nil
}

func (h *Handler) dispatch(st *connState, env Envelope, t *wsTransport) {
	switch env.Type {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		if err := h.hub.Forward(st.roomCode, t, env.Type, env.Payload); err != nil {
			log.Debug().Err(err).Msg("signaling: forward failed")
		}
	case TypeFileInfo:
		if err := h.hub.FileInfo(st.roomCode, t, env.Payload); err != nil {
			log.Debug().Err(err).Msg("signaling: file-info forward failed")
		}
	case TypeJoin:
		_ = t.Send(errorEnvelope("already joined"))
	default:
		_ = t.Send(errorEnvelope("unknown envelope type"))
	}
}

func (h *Handler) teardown(st *connState, t *wsTransport) {
	if st.joined {
		switch st.role {
		case RoleHost:
			h.hub.HostClose(st.roomCode, t)
		case RolePeer:
			h.hub.PeerClose(st.roomCode, t)
		}
	}
	_ = t.Close(websocket.CloseNormalClosure, "")
}

// pingLoop sends periodic ping control frames so an idle-but-alive
// connection's read deadline keeps getting refreshed via the pong handler.
func (h *Handler) pingLoop(t *wsTransport, stop <-chan struct{}) {
	period := h.idleWait * 9 / 10
	if period <= 0 {
		period = 54 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			closed := t.closed
			if !closed {
				_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			}
			t.writeMu.Unlock()
			if closed {
				return
			}
		}
	}
}
