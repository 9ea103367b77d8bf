package domain

import "unicode/utf8"

type RoomID string

// MaxRoomIDLen is counted in characters, not bytes.
const MaxRoomIDLen = 64

// Valid reports whether id is a usable room key. Every entry point (frames,
// REST, CLI) checks rooms with this one rule.
func (id RoomID) Valid() bool {
	return id != "" && utf8.ValidString(string(id)) && utf8.RuneCountInString(string(id)) <= MaxRoomIDLen
}

// RoomInfo is a read-only view of a live room for APIs.
type RoomInfo struct {
	ID          RoomID `json:"id"`
	MemberCount int    `json:"member_count"`
}
