package storage

import (
	"context"
	"fmt"

	"github.com/dkeye/Board/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS room_records (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT        NOT NULL UNIQUE,
	room_id    TEXT        NOT NULL,
	author     TEXT        NOT NULL,
	payload    TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS room_records_room_seq ON room_records (room_id, seq);
`

// PostgresLog uses one table for all rooms. Seq comes from a global
// sequence, so it is increasing but not dense within a room.
type PostgresLog struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresLog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &PostgresLog{pool: pool}, nil
}

func (l *PostgresLog) Append(ctx context.Context, room domain.RoomID, author domain.UserID, payload string) (domain.Record, error) {
	rec := domain.Record{
		ID:      uuid.NewString(),
		RoomID:  room,
		Author:  author,
		Payload: payload,
	}
	err := l.pool.QueryRow(ctx,
		`INSERT INTO room_records (id, room_id, author, payload) VALUES ($1, $2, $3, $4) RETURNING seq, created_at`,
		rec.ID, string(room), string(author), payload,
	).Scan(&rec.Seq, &rec.CreatedAt)
	if err != nil {
		return domain.Record{}, fmt.Errorf("postgres append %s: %w", room, err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func (l *PostgresLog) ListSince(ctx context.Context, room domain.RoomID, after int64) ([]domain.Record, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT seq, id, room_id, author, payload, created_at FROM room_records WHERE room_id = $1 AND seq > $2 ORDER BY seq`,
		string(room), after,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres list %s: %w", room, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Record, error) {
		var (
			rec          domain.Record
			roomID, user string
		)
		if err := row.Scan(&rec.Seq, &rec.ID, &roomID, &user, &rec.Payload, &rec.CreatedAt); err != nil {
			return rec, err
		}
		rec.RoomID = domain.RoomID(roomID)
		rec.Author = domain.UserID(user)
		rec.CreatedAt = rec.CreatedAt.UTC()
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres scan %s: %w", room, err)
	}
	if out == nil {
		out = []domain.Record{}
	}
	return out, nil
}

func (l *PostgresLog) Close() error {
	l.pool.Close()
	return nil
}
