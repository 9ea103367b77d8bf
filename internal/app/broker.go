package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotRegistered = errors.New("connection not registered")
	ErrPersist       = errors.New("message could not be stored")
)

const DefaultPersistTimeout = 5 * time.Second

// Broker routes room traffic between registered connections.
type Broker struct {
	Registry       *Registry
	Log            core.DurableLog
	Policy         Policy
	PersistTimeout time.Duration

	lanesMu sync.Mutex
	lanes   map[domain.RoomID]*lane
}

// lane serializes persist-then-fanout for one room so every member sees the
// room's messages in the order they were stored.
type lane struct {
	mu   sync.Mutex
	refs int
}

// PublishResult reports delivery stats/backpressure for one fan-out.
type PublishResult struct {
	SentTo  int
	Dropped []core.SessionID
}

func NewBroker(reg *Registry, dl core.DurableLog, policy Policy, persistTimeout time.Duration) *Broker {
	if persistTimeout <= 0 {
		persistTimeout = DefaultPersistTimeout
	}
	return &Broker{
		Registry:       reg,
		Log:            dl,
		Policy:         policy,
		PersistTimeout: persistTimeout,
		lanes:          make(map[domain.RoomID]*lane),
	}
}

func (b *Broker) Join(sid core.SessionID, room domain.RoomID) error {
	if !b.Registry.Join(sid, room) {
		return ErrNotRegistered
	}
	return nil
}

func (b *Broker) Leave(sid core.SessionID, room domain.RoomID) {
	b.Registry.Leave(sid, room)
}

func (b *Broker) Disconnect(sid core.SessionID) {
	b.Registry.Unregister(sid)
}

// Send stores message in room's durable log and then delivers it to every
// current member of room, the sender included. Nothing is delivered when the
// append fails.
func (b *Broker) Send(ctx context.Context, sid core.SessionID, room domain.RoomID, message string) (PublishResult, error) {
	user, ok := b.Registry.UserOf(sid)
	if !ok {
		return PublishResult{}, ErrNotRegistered
	}

	l := b.acquireLane(room)
	res, err := b.persistAndFanOut(ctx, l, user, room, message)
	b.releaseLane(room, l)
	if err != nil {
		return res, err
	}

	b.applyPolicy(room, res.Dropped)
	return res, nil
}

func (b *Broker) persistAndFanOut(
	ctx context.Context,
	l *lane,
	user *domain.User,
	room domain.RoomID,
	message string,
) (PublishResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, b.PersistTimeout)
	defer cancel()
	rec, err := b.Log.Append(pctx, room, user.ID, message)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broker").Str("room", string(room)).Str("user", string(user.ID)).Msg("append failed")
		return PublishResult{}, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	frame, err := protocol.Encode(protocol.NewMessage(rec))
	if err != nil {
		return PublishResult{}, err
	}
	return b.fanOut(room, frame), nil
}

func (b *Broker) fanOut(room domain.RoomID, frame core.Frame) PublishResult {
	res := PublishResult{}
	for _, m := range b.Registry.MembersOf(room) {
		if err := m.Signal.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, m.SID)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "app.broker").Str("room", string(room)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (b *Broker) applyPolicy(room domain.RoomID, dropped []core.SessionID) {
	if b.Policy == nil {
		return
	}
	for _, sid := range dropped {
		switch b.Policy.OnBackPressure(room, sid) {
		case KickMember:
			log.Warn().Str("module", "app.broker").Str("sid", string(sid)).Str("room", string(room)).Msg("kicking slow member")
			b.Registry.Cancel(sid)
		case DropFrame, NoAction:
		}
	}
}

func (b *Broker) acquireLane(room domain.RoomID) *lane {
	b.lanesMu.Lock()
	defer b.lanesMu.Unlock()
	l, ok := b.lanes[room]
	if !ok {
		l = &lane{}
		b.lanes[room] = l
	}
	l.refs++
	return l
}

func (b *Broker) releaseLane(room domain.RoomID, l *lane) {
	b.lanesMu.Lock()
	defer b.lanesMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(b.lanes, room)
	}
}
