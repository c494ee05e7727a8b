package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrz1836/forge/internal/constants"
)

// errRemote is returned for error events sent by the bridge.
var errRemote = errors.New("terminal bridge error")

// Client is an operator-side bridge connection.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// BridgeURL builds the endpoint URL from a host:port or ws(s) URL.
func BridgeURL(addr, sandboxName string) (string, error) {
	if !strings.HasPrefix(addr, "ws://") && !strings.HasPrefix(addr, "wss://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid bridge address %q: %w", addr, err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = constants.TerminalPath
	}
	q := u.Query()
	if sandboxName != "" {
		q.Set("sandbox", sandboxName)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects to the bridge at addr and starts a shell in sandboxName.
func Dial(ctx context.Context, addr, sandboxName string, size Size) (*Client, error) {
	endpoint, err := BridgeURL(addr, sandboxName)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	c := &Client{conn: conn}
	if err := c.Send(Event{Type: EventStart, Sandbox: sandboxName, Cols: size.Cols, Rows: size.Rows}); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Send writes one event.
func (c *Client) Send(ev Event) error {
	data, err := encode(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Input sends keystrokes to the shell.
func (c *Client) Input(data string) error {
	return c.Send(Event{Type: EventInput, Data: data})
}

// Resize reports a new terminal size.
func (c *Client) Resize(size Size) error {
	return c.Send(Event{Type: EventResize, Cols: size.Cols, Rows: size.Rows})
}

// Next reads the next event from the bridge.
func (c *Client) Next() (Event, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Event{}, err
	}
	return decode(data)
}

// Stream copies in to the shell and shell output to out until the shell
// exits, returning its exit code.
func (c *Client) Stream(ctx context.Context, in io.Reader, out io.Writer) (int, error) {
	go func() {
		buf := make([]byte, constants.TerminalReadBuffer)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				if c.Input(string(buf[:n])) != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		ev, err := c.Next()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return -1, ctxErr
			}
			return -1, err
		}
		switch ev.Type {
		case EventOutput:
			if _, err := io.WriteString(out, ev.Data); err != nil {
				return -1, err
			}
		case EventExit:
			return ev.Code, nil
		case EventError:
			return -1, fmt.Errorf("%w: %s", errRemote, ev.Data)
		case EventStart, EventInput, EventResize, EventDisconnect:
		}
	}
}

// Close sends a disconnect and closes the connection.
func (c *Client) Close() error {
	_ = c.Send(Event{Type: EventDisconnect})
	return c.conn.Close()
}
