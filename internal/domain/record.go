package domain

import "time"

// Record is one persisted unit of room content as the durable log stores it.
// Seq is assigned by the log, strictly increasing within a room, and is the
// cursor clients resume from.
type Record struct {
	ID        string    `json:"id"`
	RoomID    RoomID    `json:"roomId"`
	Author    UserID    `json:"userId"`
	Payload   string    `json:"message"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"timestamp"`
}
