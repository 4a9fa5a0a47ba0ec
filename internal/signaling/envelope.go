// Package signaling implements the in-memory room registry that brokers
// direct browser-to-browser transfers. The hub forwards handshake
// descriptors and connectivity candidates between a host and its peer; it
// never inspects or buffers the file bytes that later flow over the
// endpoint-to-endpoint data channel those messages negotiate.
package signaling

import "encoding/json"

// Envelope is the wire format for every signaling message, both inbound and
// outbound: a typed JSON object with an optional room code, host id,
// and opaque payload.
type Envelope struct {
	Type     string          `json:"type"`
	RoomCode string          `json:"roomCode,omitempty"`
	HostID   string          `json:"hostId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Inbound envelope types.
const (
	TypeJoin         = "join"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeFileInfo     = "file-info"
)

// Outbound envelope types.
const (
	TypeReady      = "ready"
	TypePeerJoined = "peer-joined"
	TypePeerLeft   = "peer-left"
	TypeError      = "error"
)

// Role identifies which side of a room a transport occupies.
type Role string

const (
	RoleHost Role = "host"
	RolePeer Role = "peer"
)

// joinPayload is the payload carried on a host's "join" message, announcing
// the file it intends to send.
type joinPayload struct {
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
}

// readyPayload is sent to a joiner once its room attach succeeds. Peers also
// receive the host-announced file metadata.
type readyPayload struct {
	Role     Role   `json:"role"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
}

// errorPayload is the body of a terminal-on-this-envelope "error" message.
// The connection itself may remain open.
type errorPayload struct {
	Message string `json:"message"`
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Only ever called with the payload types in this file; a marshal
		// failure here means a programming error, not a runtime condition.
		panic("signaling: marshal envelope payload: " + err.Error())
	}
	return b
}
