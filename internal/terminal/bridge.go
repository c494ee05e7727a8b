package terminal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/constants"
)

// writeWait bounds a single WebSocket write.
const writeWait = 10 * time.Second

// Bridge serves the terminal WebSocket. Each connection drives at most one
// shell session; the session closes when the client disconnects.
type Bridge struct {
	attacher Attacher
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(logger zerolog.Logger) BridgeOption {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithOriginCheck replaces the upgrader's origin check.
func WithOriginCheck(check func(r *http.Request) bool) BridgeOption {
	return func(b *Bridge) {
		b.upgrader.CheckOrigin = check
	}
}

// NewBridge creates a bridge starting shells with attacher.
func NewBridge(attacher Attacher, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		attacher: attacher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  constants.TerminalReadBuffer,
			WriteBufferSize: constants.TerminalReadBuffer,
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handler routes the terminal endpoint to the bridge.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(constants.TerminalPath, b)
	return mux
}

// ServeHTTP upgrades the request and runs the session protocol. The sandbox
// may be named by the "sandbox" query parameter or by the start event.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &wsConn{conn: conn}
	defer func() { _ = conn.Close() }()

	b.serve(r.Context(), c, r.URL.Query().Get("sandbox"))
}

// sessionSlot holds the connection's shell. The pump releases it when the
// shell exits so the client may start another.
type sessionSlot struct {
	mu   sync.Mutex
	sess Session
}

func (sl *sessionSlot) get() Session {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.sess
}

func (sl *sessionSlot) busy() bool {
	return sl.get() != nil
}

func (sl *sessionSlot) set(s Session) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.sess = s
}

// release empties the slot if it still holds s.
func (sl *sessionSlot) release(s Session) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.sess == s {
		sl.sess = nil
	}
}

func (b *Bridge) serve(ctx context.Context, c *wsConn, sandboxName string) {
	var slot sessionSlot
	defer func() {
		if s := slot.get(); s != nil {
			_ = s.Close()
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		ev, err := decode(data)
		if err != nil {
			_ = c.send(Event{Type: EventError, Data: "malformed event"})
			continue
		}

		switch ev.Type {
		case EventStart:
			if slot.busy() {
				_ = c.send(Event{Type: EventError, Data: "session already started"})
				continue
			}
			name := ev.Sandbox
			if name == "" {
				name = sandboxName
			}
			if name == "" {
				_ = c.send(Event{Type: EventError, Data: "sandbox is required"})
				continue
			}
			s, err := b.attacher.Attach(ctx, name, Size{Cols: ev.Cols, Rows: ev.Rows})
			if err != nil {
				b.logger.Warn().Err(err).Str("sandbox", name).Msg("attach failed")
				_ = c.send(Event{Type: EventError, Data: err.Error()})
				continue
			}
			b.logger.Info().Str("sandbox", name).Msg("terminal session started")
			slot.set(s)
			go b.pump(c, &slot, s)
		case EventInput:
			sess := slot.get()
			if sess == nil {
				_ = c.send(Event{Type: EventError, Data: "session not started"})
				continue
			}
			if _, err := sess.Write([]byte(ev.Data)); err != nil {
				_ = c.send(Event{Type: EventError, Data: err.Error()})
			}
		case EventResize:
			sess := slot.get()
			if sess == nil {
				continue
			}
			if err := sess.Resize(Size{Cols: ev.Cols, Rows: ev.Rows}); err != nil {
				b.logger.Debug().Err(err).Msg("resize failed")
			}
		case EventDisconnect:
			c.closeNormal()
			return
		case EventOutput, EventExit, EventError:
			_ = c.send(Event{Type: EventError, Data: "unexpected event " + string(ev.Type)})
		default:
			_ = c.send(Event{Type: EventError, Data: "unknown event " + string(ev.Type)})
		}
	}
}

// pump forwards shell output until the shell exits, reaps it, frees the slot,
// then reports the exit code. A failed send ends the shell.
func (b *Bridge) pump(c *wsConn, slot *sessionSlot, s Session) {
	buf := make([]byte, constants.TerminalReadBuffer)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			if werr := c.send(Event{Type: EventOutput, Data: string(buf[:n])}); werr != nil {
				b.logger.Debug().Err(werr).Msg("output send failed")
				_ = s.Close()
				break
			}
		}
		if err != nil {
			break
		}
	}
	code, err := s.Wait()
	if err != nil {
		b.logger.Debug().Err(err).Msg("shell wait failed")
	}
	_ = s.Close()
	slot.release(s)
	_ = c.send(Event{Type: EventExit, Code: code})
}

// wsConn serialises writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(ev Event) error {
	data, err := encode(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) closeNormal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
