package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Board/internal/domain"
)

type RoomJoined struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

// Message is the broadcast envelope of one persisted record. ID and Seq are
// the durable log's identifiers; clients use Seq as their resume cursor.
type Message struct {
	Type      string        `json:"type"`
	RoomID    domain.RoomID `json:"roomId"`
	UserID    domain.UserID `json:"userId"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	ID        string        `json:"id"`
	Seq       int64         `json:"seq"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Pong struct {
	Type string `json:"type"`
}

func NewRoomJoined(room domain.RoomID) RoomJoined {
	return RoomJoined{Type: TypeRoomJoined, RoomID: room}
}

func NewMessage(rec domain.Record) Message {
	return Message{
		Type:      TypeMessage,
		RoomID:    rec.RoomID,
		UserID:    rec.Author,
		Message:   rec.Payload,
		Timestamp: rec.CreatedAt.UTC(),
		ID:        rec.ID,
		Seq:       rec.Seq,
	}
}

func NewError(msg string) Error {
	return Error{Type: TypeError, Message: msg}
}

func NewPong() Pong {
	return Pong{Type: TypePong}
}

func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return b, nil
}

// ParseServer decodes a frame sent by the server into *RoomJoined, *Message,
// *Error or *Pong.
func ParseServer(data []byte) (any, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	var dst any
	switch env.Type {
	case TypeRoomJoined:
		dst = &RoomJoined{}
	case TypeMessage:
		dst = &Message{}
	case TypeError:
		dst = &Error{}
	case TypePong:
		return &Pong{Type: TypePong}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, env.Type)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return dst, nil
}

// Snapshot is the body of GET /api/rooms/:roomId/records: the durable history
// of a room, oldest first. Cursor is the Seq of the last record, or the
// requested after value when there are none.
type Snapshot struct {
	RoomID  domain.RoomID   `json:"roomId"`
	Records []domain.Record `json:"records"`
	Cursor  int64           `json:"cursor"`
}
