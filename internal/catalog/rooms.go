package catalog

import (
	"database/sql"
	"time"

	"github.com/pocketbase/dbx"

	"github.com/websoft9/dropcode/internal/apierr"
)

// Room statuses, in lifecycle order. The signaling hub moves a room to
// connected when a peer joins and back to waiting when the peer leaves; the
// hub is authoritative for presence, this table is the durable mirror.
const (
	RoomStatusWaiting      = "waiting"
	RoomStatusConnected    = "connected"
	RoomStatusTransferring = "transferring"
	RoomStatusCompleted    = "completed"
)

// Room is the persistent room record.
type Room struct {
	RoomCode     string `db:"room_code" json:"roomCode"`
	HostID       string `db:"host_id" json:"hostId"`
	FileName     string `db:"file_name" json:"fileName,omitempty"`
	FileSize     int64  `db:"file_size" json:"fileSize,omitempty"`
	Status       string `db:"status" json:"status"`
	CreatedAtRaw string `db:"created_at" json:"-"`
	ExpiresAtRaw string `db:"expires_at" json:"-"`
}

// ExpiresAt parses the room's expiry timestamp.
func (r *Room) ExpiresAt() (time.Time, error) {
	return parseTime(r.ExpiresAtRaw)
}

// CreateRoomParams is the input to CreateRoom.
type CreateRoomParams struct {
	RoomCode string
	HostID   string
	FileName string
	FileSize int64
	TTL      time.Duration
}

// CreateRoom inserts a new room row. A collision at the catalog level is
// tolerated as long as the in-memory hub slot is free; callers treat
// apierr.KindCollision here as non-fatal and proceed.
func (c *Catalog) CreateRoom(p CreateRoomParams) (*Room, error) {
	now := time.Now().UTC()
	_, err := c.db.Insert("p2p_rooms", dbx.Params{
		"room_code":  p.RoomCode,
		"host_id":    p.HostID,
		"file_name":  p.FileName,
		"file_size":  p.FileSize,
		"status":     RoomStatusWaiting,
		"created_at": now.Format(time.RFC3339Nano),
		"expires_at": now.Add(p.TTL).Format(time.RFC3339Nano),
	}).Execute()
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apierr.Collision("room code already exists")
		}
		return nil, apierr.Upstream("create room", err)
	}
	return c.GetRoom(p.RoomCode)
}

// GetRoom returns a room by code.
func (c *Catalog) GetRoom(roomCode string) (*Room, error) {
	var r Room
	err := c.db.Select("*").From("p2p_rooms").Where(dbx.HashExp{"room_code": roomCode}).One(&r)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierr.NotFound("room not found")
		}
		return nil, apierr.Upstream("get room", err)
	}
	return &r, nil
}

// UpdateRoomStatus moves a room to a new status (e.g. back to waiting when
// the peer disconnects). It does not validate the transition; neither does
// the hub, which writes whatever status its own state machine reaches.
func (c *Catalog) UpdateRoomStatus(roomCode, status string) error {
	_, err := c.db.Update("p2p_rooms", dbx.Params{"status": status}, dbx.HashExp{"room_code": roomCode}).Execute()
	if err != nil {
		return apierr.Upstream("update room status", err)
	}
	return nil
}

// DeleteRoom removes a room row. Missing rows are not an error: the hub
// tolerates "room row missing" during close.
func (c *Catalog) DeleteRoom(roomCode string) error {
	_, err := c.db.Delete("p2p_rooms", dbx.HashExp{"room_code": roomCode}).Execute()
	if err != nil {
		return apierr.Upstream("delete room", err)
	}
	return nil
}

// ListExpiredRooms returns rooms whose expiry has passed, for the janitor.
func (c *Catalog) ListExpiredRooms(now time.Time) ([]*Room, error) {
	var rooms []*Room
	err := c.db.Select("*").From("p2p_rooms").
		Where(dbx.NewExp("expires_at <= {:now}", dbx.Params{"now": now.Format(time.RFC3339Nano)})).
		All(&rooms)
	if err != nil {
		return nil, apierr.Upstream("list expired rooms", err)
	}
	return rooms, nil
}
