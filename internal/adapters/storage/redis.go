package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Board/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLog keeps each room as a Redis list. RPUSH returns the new length,
// which is the record's Seq; list index i holds Seq i+1.
type RedisLog struct {
	rdb    *redis.Client
	prefix string
}

func OpenRedis(ctx context.Context, addr, password string, db int) (*RedisLog, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &RedisLog{rdb: rdb, prefix: "board:room:"}, nil
}

func (l *RedisLog) key(room domain.RoomID) string {
	return l.prefix + string(room)
}

func (l *RedisLog) Append(ctx context.Context, room domain.RoomID, author domain.UserID, payload string) (domain.Record, error) {
	rec := domain.Record{
		ID:        uuid.NewString(),
		RoomID:    room,
		Author:    author,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return domain.Record{}, err
	}
	n, err := l.rdb.RPush(ctx, l.key(room), data).Result()
	if err != nil {
		return domain.Record{}, fmt.Errorf("redis append %s: %w", room, err)
	}
	rec.Seq = n
	return rec, nil
}

func (l *RedisLog) ListSince(ctx context.Context, room domain.RoomID, after int64) ([]domain.Record, error) {
	if after < 0 {
		after = 0
	}
	items, err := l.rdb.LRange(ctx, l.key(room), after, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", room, err)
	}
	out := make([]domain.Record, 0, len(items))
	for i, item := range items {
		var rec domain.Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", after+int64(i)+1, err)
		}
		rec.Seq = after + int64(i) + 1
		out = append(out, rec)
	}
	return out, nil
}

func (l *RedisLog) Close() error {
	return l.rdb.Close()
}
