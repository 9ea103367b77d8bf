package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Board/internal/app"
	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit        int64
	PingPeriod       time.Duration
	SendBuffer       int
	RevalidatePeriod time.Duration
	RateLimit        int
	RateInterval     time.Duration
}

func (o Options) withDefaults() Options {
	// A smaller limit would close the socket on a frame the validator accepts.
	if o.ReadLimit < protocol.MaxFrameBytes {
		o.ReadLimit = protocol.MaxFrameBytes
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 20
	}
	if o.RateInterval <= 0 {
		o.RateInterval = time.Second
	}
	return o
}

// pongWait is how long a peer may stay silent before the read fails.
func (o Options) pongWait() time.Duration {
	return o.PingPeriod * 10 / 9
}

type SignalWSController struct {
	Broker  *app.Broker
	Auth    core.Authenticator
	Limiter *RoomRateLimiter
	opts    Options
}

func NewSignalWSController(b *app.Broker, auth core.Authenticator, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		Broker:  b,
		Auth:    auth,
		Limiter: NewRoomRateLimiter(opts.RateLimit, opts.RateInterval),
		opts:    opts,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and admits the peer if its token
// verifies. A rejected peer is closed without any frame.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := TokenFrom(c.Request)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	user, err := ctl.admit(ctx, token)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("remote", c.Request.RemoteAddr).Msg("admission denied")
		_ = ws.Close()
		return
	}

	ws.SetReadLimit(ctl.opts.ReadLimit)
	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}

	sid := core.SessionID(uuid.NewString())
	ctx, cancel := context.WithCancel(ctx)
	ctl.Broker.Registry.Register(sid, user, conn, cancel)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("user", string(user.ID)).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn, cancel)
	if ctl.opts.RevalidatePeriod > 0 {
		go ctl.revalidate(ctx, sid, user.ID, token, cancel)
	}
}
