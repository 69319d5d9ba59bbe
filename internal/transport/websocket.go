package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/geckode/internal/wire"
)

// Settings tunes websocket connections.
type Settings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        16 << 20,
	}
}

type wsConn struct {
	ws       *websocket.Conn
	settings Settings
	writeMu  sync.Mutex
	once     sync.Once
	closed   chan struct{}
}

func newWSConn(ws *websocket.Conn, s Settings) *wsConn {
	if s.ReadLimit > 0 {
		ws.SetReadLimit(s.ReadLimit)
	}
	return &wsConn{ws: ws, settings: s, closed: make(chan struct{})}
}

func (c *wsConn) Send(f wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if c.settings.WriteTimeout > 0 {
		c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (c *wsConn) Recv() (wire.Frame, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return wire.Frame{}, ErrClosed
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return wire.Frame{}, ErrClosed
			}
			return wire.Frame{}, fmt.Errorf("websocket read: %w", err)
		}
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		return wire.Decode(data)
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// WebSocketDialer dials a relay at BaseURL (ws:// or wss://). The channel
// id becomes the path /channels/<id> and the token a query parameter.
type WebSocketDialer struct {
	BaseURL  string
	Settings Settings
}

// NewWebSocketDialer creates a dialer with default settings.
func NewWebSocketDialer(baseURL string) *WebSocketDialer {
	return &WebSocketDialer{BaseURL: baseURL, Settings: DefaultSettings()}
}

// ChannelURL builds the websocket URL for a channel.
func ChannelURL(baseURL, channel, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("relay url scheme %q not supported", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/channels/" + url.PathEscape(channel)
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, channel, token string) (Conn, error) {
	target, err := ChannelURL(d.BaseURL, channel, token)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.Settings.HandshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{Status: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("dial %s: %w", channel, err)
	}
	return newWSConn(ws, d.Settings), nil
}

// HandshakeError reports a refused upgrade, for example a 401 from the
// relay's authorizer.
type HandshakeError struct {
	Status int
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake refused: HTTP %d: %v", e.Status, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is a handshake refused with 401 or 403.
func IsUnauthorized(err error) bool {
	var he *HandshakeError
	if errors.As(err, &he) {
		return he.Status == http.StatusUnauthorized || he.Status == http.StatusForbidden
	}
	return false
}

// Upgrader accepts websocket connections on the relay side.
type Upgrader struct {
	upgrader websocket.Upgrader
	settings Settings
}

// NewUpgrader creates an upgrader. Origins are not checked; access is
// governed by channel tokens.
func NewUpgrader(s Settings) *Upgrader {
	return &Upgrader{
		upgrader: websocket.Upgrader{
			HandshakeTimeout: s.HandshakeTimeout,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		settings: s,
	}
}

// Upgrade switches an HTTP request to a websocket Conn.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (Conn, error) {
	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return newWSConn(ws, u.settings), nil
}
