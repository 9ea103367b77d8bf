package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Board/internal/adapters/storage"
	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/protocol"
)

// failingLog refuses every append.
type failingLog struct{ *storage.MemoryLog }

func (failingLog) Append(context.Context, domain.RoomID, domain.UserID, string) (domain.Record, error) {
	return domain.Record{}, errors.New("disk on fire")
}

// gatedLog blocks appends until release is closed.
type gatedLog struct {
	*storage.MemoryLog
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLog) Append(ctx context.Context, room domain.RoomID, author domain.UserID, payload string) (domain.Record, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return domain.Record{}, ctx.Err()
	}
	return g.MemoryLog.Append(ctx, room, author, payload)
}

func decodeMessages(t *testing.T, frames []core.Frame) []protocol.Message {
	t.Helper()
	out := make([]protocol.Message, 0, len(frames))
	for _, f := range frames {
		var m protocol.Message
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("decode %s: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

func newTestBroker(dl core.DurableLog) *Broker {
	return NewBroker(NewRegistry(), dl, SimplePolicy{}, time.Second)
}

func TestBrokerSenderEchoAndRoomIsolation(t *testing.T) {
	b := newTestBroker(storage.NewMemoryLog())
	c1 := register(t, b.Registry, "c1", "alice")
	c2 := register(t, b.Registry, "c2", "bob")
	c3 := register(t, b.Registry, "c3", "carol")
	if err := b.Join("c1", "r1"); err != nil {
		t.Fatal(err)
	}
	if err := b.Join("c3", "r1"); err != nil {
		t.Fatal(err)
	}
	if err := b.Join("c2", "r2"); err != nil {
		t.Fatal(err)
	}

	res, err := b.Send(context.Background(), "c1", "r1", "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.SentTo != 2 {
		t.Errorf("SentTo = %d, want 2", res.SentTo)
	}

	got := decodeMessages(t, c1.Frames())
	if len(got) != 1 {
		t.Fatalf("sender received %d frames, want 1", len(got))
	}
	m := got[0]
	if m.Type != "message" || m.RoomID != "r1" || m.UserID != "alice" || m.Message != "hi" || m.Seq != 1 {
		t.Errorf("echo = %+v", m)
	}
	if m.Timestamp.IsZero() {
		t.Error("echo has zero timestamp")
	}
	if len(c3.Frames()) != 1 {
		t.Errorf("room mate received %d frames, want 1", len(c3.Frames()))
	}
	if len(c2.Frames()) != 0 {
		t.Errorf("member of another room received %d frames", len(c2.Frames()))
	}
}

func TestBrokerDoubleJoinDeliversOnce(t *testing.T) {
	b := newTestBroker(storage.NewMemoryLog())
	c1 := register(t, b.Registry, "c1", "alice")
	_ = b.Join("c1", "r1")
	_ = b.Join("c1", "r1")

	if _, err := b.Send(context.Background(), "c1", "r1", "once"); err != nil {
		t.Fatal(err)
	}
	if n := len(c1.Frames()); n != 1 {
		t.Errorf("received %d copies, want 1", n)
	}
}

func TestBrokerPersistFailureBlocksBroadcast(t *testing.T) {
	b := newTestBroker(failingLog{storage.NewMemoryLog()})
	c1 := register(t, b.Registry, "c1", "alice")
	c2 := register(t, b.Registry, "c2", "bob")
	_ = b.Join("c1", "r1")
	_ = b.Join("c2", "r1")

	_, err := b.Send(context.Background(), "c1", "r1", "lost")
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("Send error = %v, want ErrPersist", err)
	}
	if len(c1.Frames()) != 0 || len(c2.Frames()) != 0 {
		t.Error("unpersisted message was broadcast")
	}
	if len(b.Registry.MembersOf("r1")) != 2 {
		t.Error("persistence failure changed membership")
	}
}

func TestBrokerPersistTimeout(t *testing.T) {
	g := &gatedLog{MemoryLog: storage.NewMemoryLog(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	b := NewBroker(NewRegistry(), g, SimplePolicy{}, 20*time.Millisecond)
	c1 := register(t, b.Registry, "c1", "alice")
	_ = b.Join("c1", "r1")

	_, err := b.Send(context.Background(), "c1", "r1", "slow")
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("Send error = %v, want ErrPersist", err)
	}
	if len(c1.Frames()) != 0 {
		t.Error("timed-out message was broadcast")
	}
}

func TestBrokerUnregisteredSender(t *testing.T) {
	b := newTestBroker(storage.NewMemoryLog())
	if _, err := b.Send(context.Background(), "ghost", "r1", "x"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Send error = %v, want ErrNotRegistered", err)
	}
	if err := b.Join("ghost", "r1"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Join error = %v, want ErrNotRegistered", err)
	}
}

func TestBrokerDisconnectExcludesFromBroadcast(t *testing.T) {
	b := newTestBroker(storage.NewMemoryLog())
	c1 := register(t, b.Registry, "c1", "alice")
	c2 := register(t, b.Registry, "c2", "bob")
	_ = b.Join("c1", "r1")
	_ = b.Join("c2", "r1")

	b.Disconnect("c2")
	b.Disconnect("c2")

	if _, err := b.Send(context.Background(), "c1", "r1", "after"); err != nil {
		t.Fatal(err)
	}
	if len(c2.Frames()) != 0 {
		t.Error("disconnected connection received broadcast")
	}
	if len(c1.Frames()) != 1 {
		t.Error("sender missed its echo")
	}
}

func TestBrokerInFlightSendAfterDisconnect(t *testing.T) {
	g := &gatedLog{MemoryLog: storage.NewMemoryLog(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	b := NewBroker(NewRegistry(), g, SimplePolicy{}, time.Second)
	c1 := register(t, b.Registry, "c1", "alice")
	c2 := register(t, b.Registry, "c2", "bob")
	_ = b.Join("c1", "r1")
	_ = b.Join("c2", "r1")

	done := make(chan error, 1)
	go func() {
		_, err := b.Send(context.Background(), "c1", "r1", "in flight")
		done <- err
	}()
	<-g.entered

	// Registry operations are not blocked by the pending append.
	b.Disconnect("c1")
	register(t, b.Registry, "c3", "carol")
	_ = b.Join("c3", "r1")

	close(g.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not complete")
	}
	if len(c1.Frames()) != 0 {
		t.Error("removed sender received its echo")
	}
	if len(c2.Frames()) != 1 {
		t.Error("remaining member missed the message")
	}
}

func TestBrokerKicksSlowMember(t *testing.T) {
	b := newTestBroker(storage.NewMemoryLog())
	register(t, b.Registry, "c1", "alice")
	slow := &fakeSignal{full: true}
	kicked := make(chan struct{})
	u, _ := domain.NewUser("bob", "")
	b.Registry.Register("c2", u, slow, func() { close(kicked) })
	_ = b.Join("c1", "r1")
	_ = b.Join("c2", "r1")

	res, err := b.Send(context.Background(), "c1", "r1", "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Dropped) != 1 || res.Dropped[0] != "c2" {
		t.Errorf("Dropped = %v", res.Dropped)
	}
	select {
	case <-kicked:
	case <-time.After(time.Second):
		t.Fatal("slow member was not kicked")
	}
}

func TestBrokerRoomOrderIsPersistOrder(t *testing.T) {
	b := newTestBroker(storage.NewMemoryLog())
	watcher := register(t, b.Registry, "w", "watcher")
	_ = b.Join("w", "r1")
	const senders, perSender = 5, 20
	for i := 0; i < senders; i++ {
		sid := core.SessionID(fmt.Sprintf("s%d", i))
		register(t, b.Registry, string(sid), string(sid))
	}

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		sid := core.SessionID(fmt.Sprintf("s%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				if _, err := b.Send(context.Background(), sid, "r1", "m"); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	msgs := decodeMessages(t, watcher.Frames())
	if len(msgs) != senders*perSender {
		t.Fatalf("watcher got %d messages", len(msgs))
	}
	for i, m := range msgs {
		if m.Seq != int64(i+1) {
			t.Fatalf("message %d has seq %d: delivery order differs from persist order", i, m.Seq)
		}
	}
}
