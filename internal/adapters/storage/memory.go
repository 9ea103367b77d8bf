// Package storage holds the durable log backends: an in-process log for
// development and tests, an embedded bbolt file, PostgreSQL and Redis.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Board/internal/domain"
	"github.com/google/uuid"
)

// MemoryLog keeps every room's records in process memory.
type MemoryLog struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID][]domain.Record
	now   func() time.Time
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		rooms: make(map[domain.RoomID][]domain.Record),
		now:   time.Now,
	}
}

func (m *MemoryLog) Append(ctx context.Context, room domain.RoomID, author domain.UserID, payload string) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.rooms[room]
	rec := domain.Record{
		ID:        uuid.NewString(),
		RoomID:    room,
		Author:    author,
		Payload:   payload,
		Seq:       int64(len(recs)) + 1,
		CreatedAt: m.now().UTC(),
	}
	m.rooms[room] = append(recs, rec)
	return rec, nil
}

func (m *MemoryLog) ListSince(ctx context.Context, room domain.RoomID, after int64) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.rooms[room]
	if after < 0 {
		after = 0
	}
	if after >= int64(len(recs)) {
		return []domain.Record{}, nil
	}
	out := make([]domain.Record, len(recs)-int(after))
	copy(out, recs[after:])
	return out, nil
}

func (m *MemoryLog) Close() error { return nil }
