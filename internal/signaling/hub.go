package signaling

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/websoft9/dropcode/internal/catalog"
)

// Transport is the send side of a connected signaling endpoint. The Hub
// only ever calls Send/Close on it; the concrete websocket implementation
// (transport.go) owns its own read loop and serialized writer, so a Send
// here never blocks the caller on network I/O for long.
type Transport interface {
	Send(Envelope) error
	Close(statusCode int, reason string) error
}

// room is the in-memory presence record. At most one
// peer handle is ever set; the host slot is cleared only by tearing the
// whole room down.
type room struct {
	code      string
	hostID    string
	host      Transport
	peer      Transport
	fileName  string
	fileSize  int64
	createdAt time.Time
}

// Hub is a single-process registry: a map from room
// code to presence, guarded by one lock. Every transport task that mutates
// a room slot does so through the Hub's exported methods, so no two tasks
// ever race on the same slot.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room

	catalog *catalog.Catalog
	roomTTL time.Duration
}

// New builds an empty Hub. cat is used for the best-effort durable mirror
// of room state; it may be nil in tests that only exercise in-memory
// presence.
func New(cat *catalog.Catalog, roomTTL time.Duration) *Hub {
	return &Hub{
		rooms:   make(map[string]*room),
		catalog: cat,
		roomTTL: roomTTL,
	}
}

// HostJoin attaches t as the host of roomCode. It is the first message
// handled on a new connection when the join envelope carries a hostId.
// Collision with an already-occupied in-memory slot is fatal to the
// join; a collision at the catalog level is tolerated as long as the
// in-memory slot was free.
func (h *Hub) HostJoin(roomCode, hostID, fileName string, fileSize int64, t Transport) error {
	h.mu.Lock()
	if existing, ok := h.rooms[roomCode]; ok && existing.host != nil {
		h.mu.Unlock()
		return t.Send(errorEnvelope("room already has a host"))
	}
	h.rooms[roomCode] = &room{
		code:      roomCode,
		hostID:    hostID,
		host:      t,
		fileName:  fileName,
		fileSize:  fileSize,
		createdAt: time.Now(),
	}
	h.mu.Unlock()

	h.mirrorCreateRoom(roomCode, hostID, fileName, fileSize)

	return t.Send(Envelope{
		Type:     TypeReady,
		RoomCode: roomCode,
		Payload:  mustMarshal(readyPayload{Role: RoleHost}),
	})
}

// PeerJoin attaches t as the peer of roomCode. No host present is
// a terminal error naming the reason; an already-paired room is also a
// terminal error and no forwarding happens.
func (h *Hub) PeerJoin(roomCode string, t Transport) error {
	h.mu.Lock()
	r, ok := h.rooms[roomCode]
	if !ok || r.host == nil {
		h.mu.Unlock()
		return t.Send(errorEnvelope("Room not found or host disconnected"))
	}
	if r.peer != nil {
		h.mu.Unlock()
		return t.Send(errorEnvelope("Room occupied"))
	}
	r.peer = t
	host := r.host
	fileName, fileSize := r.fileName, r.fileSize
	h.mu.Unlock()

	h.mirrorUpdateStatus(roomCode, catalog.RoomStatusConnected)

	if err := t.Send(Envelope{
		Type:     TypeReady,
		RoomCode: roomCode,
		Payload:  mustMarshal(readyPayload{Role: RolePeer, FileName: fileName, FileSize: fileSize}),
	}); err != nil {
		return err
	}
	return host.Send(Envelope{Type: TypePeerJoined, RoomCode: roomCode})
}

// Forward relays an offer/answer/ice-candidate message from sender to its
// counterparty verbatim. With no counterparty present yet, the message is
// silently dropped; this is the expected waiting-state trickle-ICE case,
// not an error.
func (h *Hub) Forward(roomCode string, sender Transport, msgType string, payload json.RawMessage) error {
	counterparty := h.counterpartyOf(roomCode, sender)
	if counterparty == nil {
		return nil
	}
	return counterparty.Send(Envelope{Type: msgType, RoomCode: roomCode, Payload: payload})
}

// FileInfo updates the host-announced file metadata and forwards it to the
// peer. A file-info envelope from the peer is silently ignored.
func (h *Hub) FileInfo(roomCode string, sender Transport, payload json.RawMessage) error {
	h.mu.Lock()
	r, ok := h.rooms[roomCode]
	if !ok || r.host != sender {
		h.mu.Unlock()
		return nil
	}
	var p joinPayload
	if err := json.Unmarshal(payload, &p); err == nil {
		r.fileName, r.fileSize = p.FileName, p.FileSize
	}
	peer := r.peer
	h.mu.Unlock()

	if peer == nil {
		return nil
	}
	return peer.Send(Envelope{Type: TypeFileInfo, RoomCode: roomCode, Payload: payload})
}

// HostClose tears the room down: the peer (if present) is told peer-left,
// the in-memory slot is removed, and the catalog mirror row is deleted.
func (h *Hub) HostClose(roomCode string, host Transport) {
	h.mu.Lock()
	r, ok := h.rooms[roomCode]
	if !ok || r.host != host {
		h.mu.Unlock()
		return
	}
	peer := r.peer
	delete(h.rooms, roomCode)
	h.mu.Unlock()

	if peer != nil {
		_ = peer.Send(Envelope{Type: TypePeerLeft, RoomCode: roomCode})
	}
	h.mirrorDeleteRoom(roomCode)
}

// PeerClose clears the peer slot and notifies the host, returning the room
// to waiting so a new peer may attach with the same code.
func (h *Hub) PeerClose(roomCode string, peer Transport) {
	h.mu.Lock()
	r, ok := h.rooms[roomCode]
	if !ok || r.peer != peer {
		h.mu.Unlock()
		return
	}
	r.peer = nil
	host := r.host
	h.mu.Unlock()

	if host != nil {
		_ = host.Send(Envelope{Type: TypePeerLeft, RoomCode: roomCode})
	}
	h.mirrorUpdateStatus(roomCode, catalog.RoomStatusWaiting)
}

// counterpartyOf returns the other side's transport for whichever role
// sender occupies, or nil if the room is gone or has no counterparty yet.
func (h *Hub) counterpartyOf(roomCode string, sender Transport) Transport {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomCode]
	if !ok {
		return nil
	}
	switch sender {
	case r.host:
		return r.peer
	case r.peer:
		return r.host
	default:
		return nil
	}
}

// HasHost reports whether roomCode currently has an in-memory host slot
// occupied. Used by the janitor's reconciliation pass.
func (h *Hub) HasHost(roomCode string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomCode]
	return ok && r.host != nil
}

// RoomCodes returns a snapshot of every in-memory room code, for the
// janitor's orphan-reconciliation scan.
func (h *Hub) RoomCodes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	codes := make([]string, 0, len(h.rooms))
	for code := range h.rooms {
		codes = append(codes, code)
	}
	return codes
}

// RoomAge returns how long roomCode has existed in the hub, or false if it
// is not present. Used by the janitor to apply the orphan grace period.
func (h *Hub) RoomAge(roomCode string) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomCode]
	if !ok {
		return 0, false
	}
	return time.Since(r.createdAt), true
}

// TearDown forcibly closes both sides of roomCode and removes the
// in-memory slot, without touching the catalog. Used by the janitor when a
// room has expired or is an orphan with no backing catalog row.
func (h *Hub) TearDown(roomCode string) {
	h.mu.Lock()
	r, ok := h.rooms[roomCode]
	if ok {
		delete(h.rooms, roomCode)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	if r.host != nil {
		_ = r.host.Close(1000, "room expired")
	}
	if r.peer != nil {
		_ = r.peer.Close(1000, "room expired")
	}
}

func errorEnvelope(message string) Envelope {
	return Envelope{Type: TypeError, Payload: mustMarshal(errorPayload{Message: message})}
}

// mirrorCreateRoom asynchronously creates the durable mirror row, so a
// catalog write never blocks forwarding. A collision is expected and
// tolerated whenever a stale row from a previous session with the same code
// still exists.
func (h *Hub) mirrorCreateRoom(roomCode, hostID, fileName string, fileSize int64) {
	if h.catalog == nil {
		return
	}
	go func() {
		_, err := h.catalog.CreateRoom(catalog.CreateRoomParams{
			RoomCode: roomCode,
			HostID:   hostID,
			FileName: fileName,
			FileSize: fileSize,
			TTL:      h.roomTTL,
		})
		if err != nil {
			log.Debug().Err(err).Str("roomCode", roomCode).Msg("signaling: room catalog mirror create (tolerated)")
		}
	}()
}

func (h *Hub) mirrorUpdateStatus(roomCode, status string) {
	if h.catalog == nil {
		return
	}
	go func() {
		if err := h.catalog.UpdateRoomStatus(roomCode, status); err != nil {
			log.Debug().Err(err).Str("roomCode", roomCode).Msg("signaling: room catalog mirror update (tolerated)")
		}
	}()
}

func (h *Hub) mirrorDeleteRoom(roomCode string) {
	if h.catalog == nil {
		return
	}
	go func() {
		if err := h.catalog.DeleteRoom(roomCode); err != nil {
			log.Debug().Err(err).Str("roomCode", roomCode).Msg("signaling: room catalog mirror delete (tolerated)")
		}
	}()
}
