package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dkeye/Board/internal/config"
	"github.com/dkeye/Board/internal/core"
)

// exerciseLog checks the contract every durable log must honour.
func exerciseLog(t *testing.T, l core.DurableLog) {
	t.Helper()
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		if _, err := l.Append(ctx, "r1", "u1", p); err != nil {
			t.Fatalf("Append(%s): %v", p, err)
		}
	}
	other, err := l.Append(ctx, "r2", "u2", "x")
	if err != nil {
		t.Fatalf("Append r2: %v", err)
	}
	if other.Seq != 1 {
		t.Errorf("first seq in r2 = %d, want 1", other.Seq)
	}
	if other.ID == "" || other.CreatedAt.IsZero() {
		t.Errorf("Append did not fill ID/CreatedAt: %+v", other)
	}

	all, err := l.ListSince(ctx, "r1", 0)
	if err != nil {
		t.Fatalf("ListSince: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(ListSince r1) = %d, want 3", len(all))
	}
	for i, rec := range all {
		if rec.Seq != int64(i+1) {
			t.Errorf("record %d seq = %d", i, rec.Seq)
		}
		if rec.RoomID != "r1" || rec.Author != "u1" {
			t.Errorf("record %d = %+v", i, rec)
		}
	}
	if all[0].Payload != "a" || all[2].Payload != "c" {
		t.Errorf("records out of order: %+v", all)
	}

	tail, err := l.ListSince(ctx, "r1", 2)
	if err != nil {
		t.Fatalf("ListSince after 2: %v", err)
	}
	if len(tail) != 1 || tail[0].Payload != "c" {
		t.Errorf("ListSince after 2 = %+v", tail)
	}

	empty, err := l.ListSince(ctx, "nobody", 0)
	if err != nil {
		t.Fatalf("ListSince unknown room: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListSince unknown room = %#v, want empty slice", empty)
	}
}

func TestMemoryLog(t *testing.T) {
	exerciseLog(t, NewMemoryLog())
}

func TestMemoryLogCanceledContext(t *testing.T) {
	l := NewMemoryLog()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Append(ctx, "r1", "u1", "a"); err == nil {
		t.Fatal("Append with canceled context succeeded")
	}
}

func TestBoltLog(t *testing.T) {
	l, err := OpenBolt(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	defer l.Close()
	exerciseLog(t, l)
}

func TestBoltLogReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.db")
	l, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	if _, err := l.Append(context.Background(), "r1", "u1", "kept"); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l, err = OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()
	recs, err := l.ListSince(context.Background(), "r1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Payload != "kept" {
		t.Fatalf("after reopen = %+v", recs)
	}
	next, err := l.Append(context.Background(), "r1", "u1", "next")
	if err != nil {
		t.Fatal(err)
	}
	if next.Seq != 2 {
		t.Errorf("seq after reopen = %d, want 2", next.Seq)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	l, err := Open(context.Background(), config.StorageConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := l.(*MemoryLog); !ok {
		t.Errorf("Open memory = %T", l)
	}

	l, err = Open(context.Background(), config.StorageConfig{Driver: "bolt", Path: filepath.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatalf("Open bolt: %v", err)
	}
	defer l.Close()
	if _, ok := l.(*BoltLog); !ok {
		t.Errorf("Open bolt = %T", l)
	}

	if _, err := Open(context.Background(), config.StorageConfig{Driver: "cassandra"}); err == nil {
		t.Error("Open unknown driver succeeded")
	}
}
