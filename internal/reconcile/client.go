package reconcile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected = errors.New("client not connected")
	ErrJoinRejected = errors.New("join rejected")
)

const writeWait = 5 * time.Second

type Options struct {
	// ServerURL is the http(s) base of the server, e.g. http://localhost:8080.
	ServerURL    string
	Token        string
	Room         domain.RoomID
	ResyncPeriod time.Duration
	// Source defaults to an HTTPSource on ServerURL.
	Source SnapshotSource
	Dialer *websocket.Dialer
}

// Client keeps a reconciled view of one room: the durable snapshot folded
// together with the live stream of broadcasts.
//
// Every record carries the room's Seq. The client joins before it fetches the
// snapshot and afterwards ignores broadcasts at or below the snapshot cursor,
// so no update between the two is lost or applied twice.
type Client struct {
	opts Options

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	resyncMu sync.Mutex

	mu           sync.Mutex
	state        *State
	cursor       int64
	bootstrapped bool
	tail         []*protocol.Message
	listeners    []func(map[string]string)

	ready     chan struct{}
	readyOnce sync.Once
}

func New(opts Options) *Client {
	if opts.Source == nil {
		opts.Source = NewHTTPSource(opts.ServerURL, opts.Token)
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{
		opts:  opts,
		state: NewState(),
		ready: make(chan struct{}),
	}
}

// OnChange registers fn to receive a copy of the state after every change.
// Listeners run on the goroutine that applied the change.
func (c *Client) OnChange(fn func(map[string]string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Ready is closed once the first snapshot has been folded.
func (c *Client) Ready() <-chan struct{} { return c.ready }

func (c *Client) State() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

func (c *Client) Cursor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.opts.ServerURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u = u.JoinPath("api", "ws")
	u.RawQuery = url.Values{"token": {c.opts.Token}}.Encode()
	return u.String(), nil
}

// Run connects, joins the room, bootstraps the state and then applies live
// broadcasts until ctx is done or the connection fails.
func (c *Client) Run(ctx context.Context) error {
	target, err := c.wsURL()
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("dial: unauthorized: %w", err)
		}
		return fmt.Errorf("dial: %w", err)
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
	}()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	frames := make(chan any, 256)
	done := make(chan struct{})
	defer close(done)
	var readErr error
	go func() {
		defer close(frames)
		readErr = readFrames(conn.ReadMessage, frames, done)
	}()
	closed := func() error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("connection closed: %w", readErr)
	}

	// Broadcasts received from here on are kept until the snapshot lands.
	c.mu.Lock()
	c.tail = []*protocol.Message{}
	c.mu.Unlock()

	if err := c.write(protocol.JoinRoom{RoomID: c.opts.Room}); err != nil {
		return err
	}
	if err := c.awaitJoin(ctx, frames, closed); err != nil {
		return err
	}
	if err := c.Resync(ctx); err != nil {
		return err
	}
	log.Info().Str("module", "reconcile").Str("room", string(c.opts.Room)).Int64("cursor", c.Cursor()).Msg("bootstrapped")

	var tick <-chan time.Time
	if c.opts.ResyncPeriod > 0 {
		t := time.NewTicker(c.opts.ResyncPeriod)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return closed()
			}
			c.handle(f)
		case <-tick:
			if err := c.Resync(ctx); err != nil {
				log.Warn().Err(err).Str("module", "reconcile").Msg("periodic resync")
			}
		}
	}
}

// readFrames parses frames from read into frames until read fails or done is
// closed. It returns the read error, or nil when stopped through done.
func readFrames(read func() (int, []byte, error), frames chan<- any, done <-chan struct{}) error {
	for {
		_, data, err := read()
		if err != nil {
			return err
		}
		f, err := protocol.ParseServer(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "reconcile").Msg("dropping server frame")
			continue
		}
		select {
		case frames <- f:
		case <-done:
			return nil
		}
	}
}

func (c *Client) awaitJoin(ctx context.Context, frames <-chan any, closed func() error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return closed()
			}
			switch v := f.(type) {
			case *protocol.RoomJoined:
				if v.RoomID == c.opts.Room {
					return nil
				}
			case *protocol.Error:
				return fmt.Errorf("%w: %s", ErrJoinRejected, v.Message)
			default:
				c.handle(f)
			}
		}
	}
}

func (c *Client) handle(f any) {
	switch v := f.(type) {
	case *protocol.Message:
		c.applyLive(v)
	case *protocol.Error:
		log.Warn().Str("module", "reconcile").Str("error", v.Message).Msg("server error")
	}
}

func (c *Client) applyLive(m *protocol.Message) {
	if m.RoomID != c.opts.Room {
		return
	}
	c.mu.Lock()
	if c.tail != nil {
		c.tail = append(c.tail, m)
	}
	if !c.bootstrapped || m.Seq <= c.cursor {
		c.mu.Unlock()
		return
	}
	changed := c.state.Apply(FromMessage(m))
	c.cursor = m.Seq
	snap, listeners := c.notifyLocked(changed)
	c.mu.Unlock()
	notify(snap, listeners)
}

// Resync rebuilds the state from a fresh snapshot, then reapplies any
// broadcasts received while it was being fetched that the snapshot does not
// already include. It repairs updates the live stream may have missed.
func (c *Client) Resync(ctx context.Context) error {
	c.resyncMu.Lock()
	defer c.resyncMu.Unlock()

	c.mu.Lock()
	if c.tail == nil {
		c.tail = []*protocol.Message{}
	}
	c.mu.Unlock()

	recs, err := c.opts.Source.ListSince(ctx, c.opts.Room, 0)
	if err != nil {
		c.mu.Lock()
		if c.bootstrapped {
			c.tail = nil
		}
		c.mu.Unlock()
		return err
	}

	st := NewState()
	var cursor int64
	for _, rec := range recs {
		st.Apply(FromRecord(rec))
		cursor = rec.Seq
	}

	c.mu.Lock()
	for _, m := range c.tail {
		if m.Seq > cursor {
			st.Apply(FromMessage(m))
			cursor = m.Seq
		}
	}
	first := !c.bootstrapped
	changed := first || !maps.Equal(st.entries, c.state.entries)
	c.state = st
	c.cursor = cursor
	c.tail = nil
	c.bootstrapped = true
	snap, listeners := c.notifyLocked(changed)
	c.mu.Unlock()

	if first {
		c.readyOnce.Do(func() { close(c.ready) })
	}
	notify(snap, listeners)
	return nil
}

func (c *Client) notifyLocked(changed bool) (map[string]string, []func(map[string]string)) {
	if !changed || len(c.listeners) == 0 {
		return nil, nil
	}
	return c.state.Snapshot(), append(([]func(map[string]string))(nil), c.listeners...)
}

func notify(snap map[string]string, listeners []func(map[string]string)) {
	for _, fn := range listeners {
		fn(snap)
	}
}

// Send publishes message to the room. The resulting broadcast reaches this
// client like any other.
func (c *Client) Send(message string) error {
	return c.write(protocol.SendMessage{RoomID: c.opts.Room, Message: message})
}

// Leave stops live delivery for the room without closing the connection.
func (c *Client) Leave() error {
	return c.write(protocol.LeaveRoom{RoomID: c.opts.Room})
}

func (c *Client) write(f protocol.Inbound) error {
	data, err := protocol.EncodeInbound(f)
	if err != nil {
		return err
	}
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %T: %w", f, err)
	}
	return nil
}
