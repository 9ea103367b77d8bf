package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dkeye/Board/internal/config"
)

func openMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisLog) {
	t.Helper()
	mr := miniredis.RunT(t)
	l, err := OpenRedis(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return mr, l
}

func TestRedisLog(t *testing.T) {
	_, l := openMiniredis(t)
	exerciseLog(t, l)
}

func TestRedisLogSeqSurvivesReconnect(t *testing.T) {
	mr, l := openMiniredis(t)
	ctx := context.Background()
	for _, p := range []string{"a", "b"} {
		if _, err := l.Append(ctx, "r1", "u1", p); err != nil {
			t.Fatal(err)
		}
	}

	again, err := OpenRedis(ctx, mr.Addr(), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	rec, err := again.Append(ctx, "r1", "u1", "c")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Seq != 3 {
		t.Errorf("seq after reconnect = %d, want 3", rec.Seq)
	}
	if n, _ := mr.List("board:room:r1"); len(n) != 3 {
		t.Errorf("list holds %d entries, want 3", len(n))
	}
}

func TestRedisLogUnavailable(t *testing.T) {
	mr, l := openMiniredis(t)
	mr.Close()
	if _, err := l.Append(context.Background(), "r1", "u1", "x"); err == nil {
		t.Error("Append succeeded with redis down")
	}
	if _, err := OpenRedis(context.Background(), mr.Addr(), "", 0); err == nil {
		t.Error("OpenRedis succeeded with redis down")
	}
}

func TestOpenSelectsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := Open(context.Background(), config.StorageConfig{Driver: "redis", Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("Open redis: %v", err)
	}
	defer l.Close()
	if _, ok := l.(*RedisLog); !ok {
		t.Errorf("Open redis = %T", l)
	}
}
