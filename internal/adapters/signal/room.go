package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Board/internal/app"
	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	f protocol.JoinRoom,
) {
	if err := ctl.Broker.Join(sid, f.RoomID); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join")
		ctl.sendError(conn, "join failed")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(f.RoomID)).Msg("join")
	ctl.sendJSON(conn, protocol.NewRoomJoined(f.RoomID))
}

// handleLeave drops one room; the connection itself stays open.
func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	f protocol.LeaveRoom,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(f.RoomID)).Msg("leave")
	ctl.Broker.Leave(sid, f.RoomID)
}

func (ctl *SignalWSController) handleSend(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	f protocol.SendMessage,
) {
	user, ok := ctl.Broker.Registry.UserOf(sid)
	if !ok {
		return
	}
	if !ctl.Limiter.Allow(user.ID) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("rate limited")
		ctl.sendError(conn, "rate limit exceeded")
		return
	}

	// A send already in flight finishes even if the connection goes away.
	_, err := ctl.Broker.Send(context.WithoutCancel(ctx), sid, f.RoomID, f.Message)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrPersist):
		ctl.sendError(conn, app.ErrPersist.Error())
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("send")
		ctl.sendError(conn, "send failed")
	}
}
