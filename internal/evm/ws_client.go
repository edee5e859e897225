package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bsc-token-scout/internal/domain"
)

// ErrClientClosed is returned by operations on a closed client.
var ErrClientClosed = errors.New("client closed")

// LogFilter selects logs for an eth_subscribe "logs" subscription.
type LogFilter struct {
	Addresses []string
	Topics    []string // topic0 alternatives
}

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// MaxReconnectAttempts is the number of consecutive failed reconnects
	// after which the client stays disconnected until Reconnect is called.
	MaxReconnectAttempts int
	// MinReconnectInterval is the minimum time between two dial attempts.
	MinReconnectInterval time.Duration
	// KeepaliveInterval is interval for net_version checks and ping frames.
	KeepaliveInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// OnStateChange is called on every connection state transition.
	OnStateChange func(domain.ConnectionState)
	Logger        zerolog.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:       1 * time.Second,
		MaxReconnectDelay:    30 * time.Second,
		MaxReconnectAttempts: 5,
		MinReconnectInterval: 5 * time.Second,
		KeepaliveInterval:    30 * time.Second,
		ReadTimeout:          90 * time.Second,
		WriteTimeout:         10 * time.Second,
		SubscribeTimeout:     30 * time.Second,
		Logger:               zerolog.Nop(),
	}
}

// WSClient is a JSON-RPC log subscription client over gorilla/websocket.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	log      zerolog.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	state    atomic.Value // domain.ConnectionState
	lastDial atomic.Int64 // Unix nanos

	// subs maps subscription ID to channel
	subs   map[string]chan RawLog
	subsMu sync.RWMutex

	// activeFilters stores filters for resubscription after reconnect
	activeFilters   map[string]LogFilter
	activeFiltersMu sync.RWMutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
	attempts     atomic.Int32
}

type subscribeResult struct {
	id  string
	err error
}

type pendingSub struct {
	filter LogFilter
	ch     chan RawLog
	oldID  string // set when resubscribing after reconnect
	result chan subscribeResult
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint:      endpoint,
		config:        cfg,
		log:           cfg.Logger.With().Str("component", "ws").Logger(),
		subs:          make(map[string]chan RawLog),
		activeFilters: make(map[string]LogFilter),
		pendingSubs:   make(map[uint64]*pendingSub),
		done:          make(chan struct{}),
	}
	c.state.Store(domain.StateDisconnected)

	if err := c.connect(ctx); err != nil {
		c.setState(domain.StateDisconnected)
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.keepaliveLoop()

	return c, nil
}

// State returns the current connection state.
func (c *WSClient) State() domain.ConnectionState {
	return c.state.Load().(domain.ConnectionState)
}

func (c *WSClient) setState(s domain.ConnectionState) {
	if prev := c.state.Swap(s); prev == s {
		return
	}
	c.log.Info().Str("state", string(s)).Msg("connection state changed")
	if c.config.OnStateChange != nil {
		c.config.OnStateChange(s)
	}
}

// connect establishes WebSocket connection.
func (c *WSClient) connect(ctx context.Context) error {
	c.setState(domain.StateConnecting)
	c.lastDial.Store(time.Now().UnixNano())

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.attempts.Store(0)
	c.setState(domain.StateConnected)
	return nil
}

// SubscribeLogs subscribes to logs matching the filter. The returned channel is
// kept across reconnects and closed on Close.
func (c *WSClient) SubscribeLogs(ctx context.Context, filter LogFilter) (<-chan RawLog, error) {
	ch := make(chan RawLog, 1024)
	if _, err := c.subscribe(ctx, &pendingSub{filter: filter, ch: ch}); err != nil {
		return nil, err
	}
	return ch, nil
}

// subscribe sends eth_subscribe and waits for the subscription ID. The
// channel mapping is installed by the read loop before any notification for
// the new ID can be dispatched.
func (c *WSClient) subscribe(ctx context.Context, p *pendingSub) (string, error) {
	if c.closed.Load() {
		return "", ErrClientClosed
	}

	reqID := c.requestID.Add(1)

	params := map[string]interface{}{}
	if len(p.filter.Addresses) > 0 {
		params["address"] = p.filter.Addresses
	}
	if len(p.filter.Topics) > 0 {
		params["topics"] = []interface{}{p.filter.Topics}
	}

	p.result = make(chan subscribeResult, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = p
	c.pendingSubsMu.Unlock()

	forget := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	if err := c.write(wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "eth_subscribe",
		Params:  []interface{}{"logs", params},
	}); err != nil {
		forget()
		return "", fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case res, ok := <-p.result:
		if !ok {
			return "", ErrClientClosed
		}
		return res.id, res.err
	case <-time.After(c.config.SubscribeTimeout):
		forget()
		return "", fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return "", ErrClientClosed
	case <-ctx.Done():
		forget()
		return "", ctx.Err()
	}
}

func (c *WSClient) write(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Reconnect forces a new connection, resetting the attempt counter. It is the
// only way out of the disconnected state once reconnect attempts are exhausted.
func (c *WSClient) Reconnect() {
	if c.closed.Load() {
		return
	}
	c.attempts.Store(0)
	c.dropConn()
	if !c.reconnecting.Swap(true) {
		go c.reconnect()
	}
}

// Attempts returns the consecutive failed reconnect attempts since the last
// successful connection.
func (c *WSClient) Attempts() int {
	return int(c.attempts.Load())
}

// MaxAttempts returns the reconnect ceiling.
func (c *WSClient) MaxAttempts() int {
	return c.config.MaxReconnectAttempts
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.result)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.setState(domain.StateDisconnected)
	return nil
}

func (c *WSClient) dropConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// dropConnIf closes conn only if it is still the active connection.
func (c *WSClient) dropConnIf(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.log.Warn().Err(err).Msg("read failed")
			c.dropConnIf(conn)
			c.setState(domain.StateDisconnected)

			if !c.reconnecting.Swap(true) {
				go c.reconnect()
			}
			continue
		}

		c.handleMessage(message)
	}
}

// reconnect dials with exponential backoff until it succeeds or the attempt
// ceiling is reached.
func (c *WSClient) reconnect() {
	defer c.reconnecting.Store(false)

	for !c.closed.Load() {
		attempt := int(c.attempts.Load())
		if attempt >= c.config.MaxReconnectAttempts {
			c.log.Error().Int("attempts", attempt).Msg("reconnect attempts exhausted, waiting for manual reconnect")
			c.setState(domain.StateDisconnected)
			return
		}

		delay := c.backoff(attempt)
		if wait := time.Until(time.Unix(0, c.lastDial.Load()).Add(c.config.MinReconnectInterval)); wait > delay {
			delay = wait
		}

		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		c.attempts.Add(1)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.connect(ctx)
		cancel()
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("reconnect failed")
			c.setState(domain.StateDisconnected)
			continue
		}

		c.log.Info().Msg("reconnected")
		c.resubscribeAll()
		return
	}
}

// backoff returns min(ReconnectDelay * 2^attempt, MaxReconnectDelay).
func (c *WSClient) backoff(attempt int) time.Duration {
	d := c.config.ReconnectDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.config.MaxReconnectDelay {
			return c.config.MaxReconnectDelay
		}
	}
	return d
}

// resubscribeAll resubscribes to all active filters after reconnect.
func (c *WSClient) resubscribeAll() {
	c.activeFiltersMu.RLock()
	filters := make(map[string]LogFilter, len(c.activeFilters))
	for id, f := range c.activeFilters {
		filters[id] = f
	}
	c.activeFiltersMu.RUnlock()

	for oldSubID, filter := range filters {
		c.subsMu.RLock()
		ch := c.subs[oldSubID]
		c.subsMu.RUnlock()
		if ch == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := c.subscribe(ctx, &pendingSub{filter: filter, ch: ch, oldID: oldSubID})
		cancel()
		if err != nil {
			c.log.Warn().Err(err).Str("subscription", oldSubID).Msg("resubscribe failed")
		}
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClient) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.log.Debug().Err(err).Msg("undecodable message")
		return
	}

	if msg.Method == "eth_subscription" && msg.Params != nil {
		c.handleNotification(msg.Params)
		return
	}

	if msg.ID == nil {
		return
	}

	c.pendingSubsMu.Lock()
	p, ok := c.pendingSubs[*msg.ID]
	if ok {
		delete(c.pendingSubs, *msg.ID)
	}
	c.pendingSubsMu.Unlock()

	if !ok {
		// keepalive replies and unknown ids
		return
	}

	var res subscribeResult
	if msg.Error != nil {
		res.err = fmt.Errorf("rpc error %d: %s", msg.Error.Code, msg.Error.Message)
	} else if err := json.Unmarshal(msg.Result, &res.id); err != nil || res.id == "" {
		res.err = fmt.Errorf("invalid subscription id %s", string(msg.Result))
	}

	if res.err == nil {
		c.subsMu.Lock()
		if p.oldID != "" {
			delete(c.subs, p.oldID)
		}
		c.subs[res.id] = p.ch
		c.subsMu.Unlock()

		c.activeFiltersMu.Lock()
		if p.oldID != "" {
			delete(c.activeFilters, p.oldID)
		}
		c.activeFilters[res.id] = p.filter
		c.activeFiltersMu.Unlock()
	}

	select {
	case p.result <- res:
	default:
	}
}

// handleNotification dispatches a log notification to its subscriber.
func (c *WSClient) handleNotification(params *wsNotificationParams) {
	var l wsLog
	if err := json.Unmarshal(params.Result, &l); err != nil {
		c.log.Warn().Err(err).Msg("malformed log notification")
		return
	}
	if l.Removed {
		return
	}
	raw, err := l.toRaw()
	if err != nil {
		c.log.Warn().Err(err).Str("tx", l.TransactionHash).Msg("malformed log notification")
		return
	}

	c.subsMu.RLock()
	ch, ok := c.subs[params.Subscription]
	c.subsMu.RUnlock()

	if ok {
		select {
		case ch <- raw:
		case <-c.done:
		}
	}
}

// keepaliveLoop sends net_version checks and ping frames.
func (c *WSClient) keepaliveLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			err := c.write(wsRequest{
				JSONRPC: "2.0",
				ID:      c.requestID.Add(1),
				Method:  "net_version",
			})
			if err == nil {
				c.connMu.Lock()
				if c.conn != nil {
					err = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
				}
				c.connMu.Unlock()
			}
			if err != nil {
				c.log.Debug().Err(err).Msg("keepalive failed")
			}
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      *uint64               `json:"id"`
	Method  string                `json:"method"`
	Result  json.RawMessage       `json:"result"`
	Params  *wsNotificationParams `json:"params"`
	Error   *wsError              `json:"error"`
}

type wsNotificationParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
