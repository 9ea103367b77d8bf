package core

import (
	"context"

	"github.com/dkeye/Board/internal/domain"
)

// DurableLog persists and replays the ordered records of each room.
// Implementations live in adapters/storage.
type DurableLog interface {
	// Append stores payload at the tail of room and returns the stored record
	// with its ID, Seq and CreatedAt filled in.
	Append(ctx context.Context, room domain.RoomID, author domain.UserID, payload string) (domain.Record, error)
	// ListSince returns the records of room with Seq > after, oldest first.
	ListSince(ctx context.Context, room domain.RoomID, after int64) ([]domain.Record, error)
	Close() error
}
