package wsclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ServicePlayground/sweet-order-sub002/pkg/logger"
)

// Event mirrors the frames the chat gateway speaks.
type Event struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Options configures a chat gateway client.
type Options struct {
	// URL is the gateway endpoint, e.g. wss://host/ws.
	URL string

	// Token is the ID token appended to the handshake query string.
	Token string

	// OnEvent receives every frame pushed by the gateway. Called from
	// the client's read goroutine; must not block.
	OnEvent func(Event)

	// Reconnect backoff. Zero values take the defaults below.
	BackoffBase time.Duration
	BackoffStep time.Duration
	BackoffCap  time.Duration

	// MaxRetries bounds consecutive failed connection attempts before
	// the client gives up. Zero takes the default.
	MaxRetries int
}

const (
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffStep = 500 * time.Millisecond
	defaultBackoffCap  = 10 * time.Second
	defaultMaxRetries  = 10
)

// ErrClosed is reported by Err after a deliberate Close.
var ErrClosed = errors.New("wsclient: closed")

// Client maintains a chat gateway connection on the consumer side. It
// remembers which rooms the caller intends to be joined to, reconnects
// with bounded backoff when the connection drops, and rejoins every
// intended room after each reconnect. Joins requested while offline
// are replayed once the connection is up.
type Client struct {
	opts Options

	mu       sync.Mutex
	conn     *websocket.Conn
	intended map[string]struct{}
	closed   bool
	err      error

	closing chan struct{}
	done    chan struct{}
}

func New(opts Options) *Client {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffStep <= 0 {
		opts.BackoffStep = defaultBackoffStep
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = defaultBackoffCap
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}

	return &Client{
		opts:     opts,
		intended: make(map[string]struct{}),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins connecting in the background. Call once.
func (c *Client) Start() {
	go c.run()
}

// JoinRoom marks the room as intended and, when connected, asks the
// gateway to join it. The intent survives disconnects: the room is
// rejoined automatically after every reconnect.
func (c *Client) JoinRoom(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.intended[roomID] = struct{}{}
	if c.conn != nil {
		return c.writeEvent(Event{Type: "join_room", RoomID: roomID})
	}
	return nil
}

// LeaveRoom drops the intent and, when connected, leaves the room.
func (c *Client) LeaveRoom(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	delete(c.intended, roomID)
	if c.conn != nil {
		return c.writeEvent(Event{Type: "leave_room", RoomID: roomID})
	}
	return nil
}

// Close shuts the client down. No reconnects happen afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.err = ErrClosed
	conn := c.conn
	close(c.closing)
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	return nil
}

// Done is closed once the client has stopped for good, either after
// Close or after exhausting its reconnect attempts.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the client stopped. Nil while it is still running.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) run() {
	defer close(c.done)

	attempts := 0
	for {
		conn, err := c.dial()
		if err != nil {
			attempts++
			if attempts > c.opts.MaxRetries {
				c.fail(fmt.Errorf("wsclient: giving up after %d attempts: %w", attempts-1, err))
				return
			}

			wait := c.backoff(attempts)
			logger.Warn("wsclient: connect failed (attempt %d): %v, retrying in %v", attempts, err, wait)
			if !c.sleep(wait) {
				return
			}
			continue
		}

		attempts = 0
		if !c.attach(conn) {
			conn.Close()
			return
		}
		c.rejoinAll()

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		// Connection dropped; first retry waits the base delay.
		attempts = 1
		wait := c.backoff(attempts)
		logger.Warn("wsclient: connection lost, reconnecting in %v", wait)
		if !c.sleep(wait) {
			return
		}
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", c.opts.Token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return conn, err
}

// attach publishes the live connection, unless Close already won.
func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) rejoinAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for roomID := range c.intended {
		if err := c.writeEvent(Event{Type: "join_room", RoomID: roomID}); err != nil {
			logger.Error("wsclient: rejoin of room %s failed: %v", roomID, err)
			return
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			logger.Warn("wsclient: malformed frame: %v", err)
			continue
		}

		if c.opts.OnEvent != nil {
			c.opts.OnEvent(event)
		}
	}
}

// writeEvent sends a frame on the current connection. Caller holds mu.
func (c *Client) writeEvent(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// backoff grows linearly with the attempt number up to the cap.
func (c *Client) backoff(attempt int) time.Duration {
	wait := c.opts.BackoffBase + time.Duration(attempt-1)*c.opts.BackoffStep
	if wait > c.opts.BackoffCap {
		wait = c.opts.BackoffCap
	}
	return wait
}

// sleep waits out the backoff but wakes early on Close.
func (c *Client) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-c.closing:
		return false
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}
