package app

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	User   *domain.User
	Signal core.SignalConnection
	Rooms  map[domain.RoomID]struct{}
	Cancel context.CancelFunc
}

// Registry tracks live connections and the rooms each has joined.
// A single RWMutex guards both indexes; it is held only while reading or
// mutating them, never while sending or persisting.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	rooms    map[domain.RoomID]map[core.SessionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		rooms:    make(map[domain.RoomID]map[core.SessionID]struct{}),
	}
}

// Register adds a connection with an empty room set. Registering an existing
// sid replaces its transport and clears its rooms.
func (r *Registry) Register(
	sid core.SessionID,
	user *domain.User,
	sig core.SignalConnection,
	cancel context.CancelFunc,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[sid]; ok {
		r.dropMembershipsLocked(sid, old)
	}
	r.sessions[sid] = &sessionEntry{
		User:   user,
		Signal: sig,
		Rooms:  make(map[domain.RoomID]struct{}),
		Cancel: cancel,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(user.ID)).Msg("registered")
}

// Unregister removes the connection and all of its memberships in one step.
// It reports whether anything was removed; a second call is a no-op.
func (r *Registry) Unregister(sid core.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	r.dropMembershipsLocked(sid, e)
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unregistered")
	return true
}

func (r *Registry) dropMembershipsLocked(sid core.SessionID, e *sessionEntry) {
	for room := range e.Rooms {
		r.removeMemberLocked(room, sid)
	}
	clear(e.Rooms)
}

func (r *Registry) removeMemberLocked(room domain.RoomID, sid core.SessionID) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, sid)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Join adds room to the connection's room set. It reports whether the
// connection is registered; joining twice is not an error.
func (r *Registry) Join(sid core.SessionID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	if _, joined := e.Rooms[room]; joined {
		return true
	}
	e.Rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[core.SessionID]struct{})
		r.rooms[room] = members
	}
	members[sid] = struct{}{}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("joined room")
	return true
}

// Leave removes room from the connection's room set. Leaving a room that was
// never joined is a no-op.
func (r *Registry) Leave(sid core.SessionID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return
	}
	if _, joined := e.Rooms[room]; !joined {
		return
	}
	delete(e.Rooms, room)
	r.removeMemberLocked(room, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("left room")
}

type regSnap struct {
	SID    core.SessionID
	User   *domain.User
	Signal core.SignalConnection
}

// MembersOf returns a snapshot of the room's members taken under the lock.
// Callers iterate the snapshot after the lock is released.
func (r *Registry) MembersOf(room domain.RoomID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]regSnap, 0, len(members))
	for sid := range members {
		e := r.sessions[sid]
		out = append(out, regSnap{SID: sid, User: e.User, Signal: e.Signal})
	}
	return out
}

// RoomsOf returns the rooms sid has joined, sorted.
func (r *Registry) RoomsOf(sid core.SessionID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	out := make([]domain.RoomID, 0, len(e.Rooms))
	for room := range e.Rooms {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) UserOf(sid core.SessionID) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.User, true
	}
	return nil, false
}

// Rooms lists every room with at least one member.
func (r *Registry) Rooms() []domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RoomInfo, 0, len(r.rooms))
	for id, members := range r.rooms {
		out = append(out, domain.RoomInfo{ID: id, MemberCount: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cancel stops the connection's pumps. The adapter unregisters on its way out.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
