package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Board/internal/domain"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var roomsBucket = []byte("rooms")

// BoltLog stores one nested bucket per room, keyed by big-endian Seq.
type BoltLog struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltLog, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(roomsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt: %w", err)
	}
	return &BoltLog{db: db}, nil
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func (l *BoltLog) Append(ctx context.Context, room domain.RoomID, author domain.UserID, payload string) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, err
	}
	rec := domain.Record{
		ID:        uuid.NewString(),
		RoomID:    room,
		Author:    author,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	err := l.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(roomsBucket).CreateBucketIfNotExists([]byte(room))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec.Seq = int64(seq)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return domain.Record{}, fmt.Errorf("bolt append %s: %w", room, err)
	}
	return rec, nil
}

func (l *BoltLog) ListSince(ctx context.Context, room domain.RoomID, after int64) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if after < 0 {
		after = 0
	}
	out := []domain.Record{}
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(roomsBucket).Bucket([]byte(room))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(seqKey(uint64(after) + 1)); k != nil; k, v = c.Next() {
			var rec domain.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt list %s: %w", room, err)
	}
	return out, nil
}

func (l *BoltLog) Close() error {
	return l.db.Close()
}
