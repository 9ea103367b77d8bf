package app

import (
	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, sid core.SessionID) BackpressureAction
}

// SimplePolicy kicks slow members; a kicked client reconnects and resyncs
// from the durable log.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room domain.RoomID, sid core.SessionID) BackpressureAction {
	return KickMember
}
