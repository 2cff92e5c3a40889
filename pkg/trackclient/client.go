package trackclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shoply/tracking/internal/domain"
)

// ConnState is the connection lifecycle of one tracking session.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

const (
	defaultBackoffFloor = time.Second
	defaultMaxRetries   = 5
)

// ErrRetriesExhausted is the terminal error emitted after the last
// close-triggered reconnect attempt. No further attempts are scheduled.
var ErrRetriesExhausted = errors.New("maximum reconnection attempts reached")

// StatusFunc receives status updates for a subscribed order.
type StatusFunc func(status domain.OrderStatus)

type Option func(*Client)

// WithBackoffFloor overrides the 1-second reconnect backoff floor.
func WithBackoffFloor(d time.Duration) Option {
	return func(c *Client) { c.backoffFloor = d }
}

// WithMaxRetries overrides the number of close-triggered reconnect attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// Client owns a single duplex tracking connection and reconnects with
// exponential backoff when it drops. Status updates are delivered to
// per-order listeners; connection events and errors to registered handlers.
type Client struct {
	baseURL string
	dialer  *websocket.Dialer

	backoffFloor time.Duration
	maxRetries   int

	mu             sync.Mutex
	conn           *websocket.Conn
	state          ConnState
	attempts       int
	gen            uint64
	orderID        string
	statuses       map[string]domain.OrderStatus
	listeners      map[string]map[int]StatusFunc
	onConnected    map[int]func()
	onDisconnected map[int]func()
	onError        map[int]func(error)
	nextHandle     int
	reconnectTimer *time.Timer
}

// NewClient creates a client for the given tracking endpoint base URL,
// e.g. "ws://localhost:3003".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        baseURL,
		dialer:         websocket.DefaultDialer,
		backoffFloor:   defaultBackoffFloor,
		maxRetries:     defaultMaxRetries,
		state:          StateDisconnected,
		statuses:       make(map[string]domain.OrderStatus),
		listeners:      make(map[string]map[int]StatusFunc),
		onConnected:    make(map[int]func()),
		onDisconnected: make(map[int]func()),
		onError:        make(map[int]func(error)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GetOrderStatus returns the last status received for the order.
func (c *Client) GetOrderStatus(orderID string) (domain.OrderStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.statuses[orderID]
	return status, ok
}

// OnConnected registers a handler for successful opens. The returned func
// removes it.
func (c *Client) OnConnected(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.nextHandle
	c.nextHandle++
	c.onConnected[h] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onConnected, h)
	}
}

// OnDisconnected registers a handler for connection loss.
func (c *Client) OnDisconnected(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.nextHandle
	c.nextHandle++
	c.onDisconnected[h] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onDisconnected, h)
	}
}

// OnError registers a handler for transport and payload errors.
func (c *Client) OnError(fn func(error)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.nextHandle
	c.nextHandle++
	c.onError[h] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onError, h)
	}
}

// Connect opens a tracking connection for the order. A call while a connect
// is already in flight is a no-op; a live connection is closed first.
func (c *Client) Connect(orderID string) {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateConnecting
	c.orderID = orderID
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.dial(orderID, gen)
}

// Disconnect closes the connection and resets retry state. An explicit
// disconnect is not a failure: no reconnect is scheduled.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++ // orphan any in-flight dial or read loop
	c.attempts = 0
	c.state = StateDisconnected
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Subscribe connects for the order and delivers its status updates to fn.
// The shared update stream is filtered down to the requested order before fn
// is invoked. The returned func removes this listener.
func (c *Client) Subscribe(orderID string, fn StatusFunc) func() {
	c.mu.Lock()
	set, ok := c.listeners[orderID]
	if !ok {
		set = make(map[int]StatusFunc)
		c.listeners[orderID] = set
	}
	h := c.nextHandle
	c.nextHandle++
	set[h] = fn
	c.mu.Unlock()

	c.Connect(orderID)

	return func() {
		c.mu.Lock()
		if set, ok := c.listeners[orderID]; ok {
			delete(set, h)
			if len(set) == 0 {
				delete(c.listeners, orderID)
			}
		}
		c.mu.Unlock()
	}
}

// Unsubscribe removes the order's listeners. Listener storage is keyed per
// order, so other tracked orders keep theirs; the connection is torn down
// only when no listeners remain at all.
func (c *Client) Unsubscribe(orderID string) {
	c.mu.Lock()
	delete(c.listeners, orderID)
	remaining := len(c.listeners)
	c.mu.Unlock()

	if remaining == 0 {
		c.Disconnect()
	}
}

func (c *Client) dial(orderID string, gen uint64) {
	conn, resp, err := c.dialer.Dial(fmt.Sprintf("%s/ws/orders/%s", c.baseURL, orderID), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		// A failed open behaves like a close: the backoff loop drives the
		// next attempt.
		c.state = StateDisconnected
		c.mu.Unlock()
		c.emitDisconnected()
		c.scheduleReconnect(orderID, gen)
		return
	}

	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	c.emitConnected()
	go c.readLoop(conn, orderID, gen)
}

func (c *Client) readLoop(conn *websocket.Conn, orderID string, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()

			c.mu.Lock()
			if gen != c.gen {
				// Replaced or explicitly disconnected; nothing to do.
				c.mu.Unlock()
				return
			}
			c.conn = nil
			c.state = StateDisconnected
			c.mu.Unlock()

			c.emitDisconnected()
			c.scheduleReconnect(orderID, gen)
			return
		}

		c.handleMessage(data)
	}
}

// handleMessage parses one push payload. A malformed payload emits a single
// error and is dropped; the connection state is untouched.
func (c *Client) handleMessage(data []byte) {
	var status domain.OrderStatus
	if err := json.Unmarshal(data, &status); err != nil {
		c.emitError(fmt.Errorf("invalid order status payload: %w", err))
		return
	}
	if status.OrderID == "" || status.Status == "" {
		c.emitError(errors.New("invalid order status payload: missing orderId or status"))
		return
	}

	c.mu.Lock()
	c.statuses[status.OrderID] = status
	var fns []StatusFunc
	for _, fn := range c.listeners[status.OrderID] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(status)
	}
}

func (c *Client) scheduleReconnect(orderID string, gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	if c.attempts >= c.maxRetries {
		c.mu.Unlock()
		c.emitError(ErrRetriesExhausted)
		return
	}

	c.attempts++
	delay := backoffDelay(c.backoffFloor, c.attempts)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		stale := gen != c.gen
		c.mu.Unlock()
		if stale {
			return
		}
		c.Connect(orderID)
	})
	c.mu.Unlock()
}

// backoffDelay is the reconnect delay for the given 1-based attempt:
// floor, 2*floor, 4*floor, ...
func backoffDelay(floor time.Duration, attempt int) time.Duration {
	return floor * (1 << (attempt - 1))
}

func (c *Client) emitConnected() {
	for _, fn := range c.snapshotConnected() {
		fn()
	}
}

func (c *Client) emitDisconnected() {
	for _, fn := range c.snapshotDisconnected() {
		fn()
	}
}

func (c *Client) emitError(err error) {
	c.mu.Lock()
	fns := make([]func(error), 0, len(c.onError))
	for _, fn := range c.onError {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(err)
	}
}

func (c *Client) snapshotConnected() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fns := make([]func(), 0, len(c.onConnected))
	for _, fn := range c.onConnected {
		fns = append(fns, fn)
	}
	return fns
}

func (c *Client) snapshotDisconnected() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fns := make([]func(), 0, len(c.onDisconnected))
	for _, fn := range c.onDisconnected {
		fns = append(fns, fn)
	}
	return fns
}
