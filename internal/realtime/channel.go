// Package realtime keeps the per-session websocket subscription that
// delivers match notifications.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"

	"github.com/jnetto23/OmniStack-08/internal/models"
)

// State of the subscription.
type State int

const (
	Disconnected State = iota
	Connecting
	Subscribed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// ChannelError wraps a dial or read failure. It never stops Run.
type ChannelError struct {
	Op     string
	Status int
	Err    error
}

func (e *ChannelError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("realtime %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("realtime %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Message is the envelope pushed by the server.
type Message struct {
	Type string          `json:"type"` // "match" | "info"
	Data json.RawMessage `json:"data,omitempty"`
}

const TypeMatch = "match"

// Handler receives every matched profile.
type Handler func(models.Profile)

// Config controls reconnection and keepalive.
type Config struct {
	InitialDelay time.Duration // first backoff step (default 1s)
	MaxDelay     time.Duration // backoff cap (default 30s)
	MaxJitter    time.Duration // random extra delay per attempt (default 250ms)
	PingInterval time.Duration // default 30s
	ReadTimeout  time.Duration // extended by every pong (default 60s)
}

// DefaultConfig returns the production reconnect/keepalive settings.
func DefaultConfig() Config {
	return Config{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		MaxJitter:    250 * time.Millisecond,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxJitter <= 0 {
		c.MaxJitter = d.MaxJitter
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	return c
}

// Channel is a long-lived subscription keyed by the user identity.
type Channel struct {
	rawURL  string
	user    models.User
	handler Handler
	cfg     Config
	dialer  *websocket.Dialer
	log     *slog.Logger
	onState func(State)

	mu         sync.Mutex
	state      State
	reconnects int
}

// Option configures a Channel.
type Option func(*Channel)

// WithConfig overrides reconnect and keepalive settings.
func WithConfig(cfg Config) Option {
	return func(c *Channel) { c.cfg = cfg.withDefaults() }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// OnStateChange registers a hook called on every state transition. It runs
// on the channel's goroutine.
func OnStateChange(fn func(State)) Option {
	return func(c *Channel) { c.onState = fn }
}

// New creates a channel for user. Nothing is dialled until Run.
func New(rawURL string, user models.User, handler Handler, opts ...Option) *Channel {
	c := &Channel{
		rawURL:  rawURL,
		user:    user,
		handler: handler,
		cfg:     DefaultConfig(),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current subscription state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reconnects counts subscriptions re-established after a drop.
func (c *Channel) Reconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.log.Debug("realtime state", "user", c.user.ID, "state", s.String())
	if c.onState != nil {
		c.onState(s)
	}
}

// errStableDrop marks a drop after a healthy subscription. It ends the
// current backoff schedule so the next dial starts fresh.
var errStableDrop = errors.New("subscription dropped")

// Run keeps the subscription alive until ctx is cancelled. Every drop goes
// back through the backoff schedule and resubscribes with the same user key.
// The schedule only restarts after a subscription that delivered a match or
// stayed up for a full ping interval.
func (c *Channel) Run(ctx context.Context) error {
	defer c.setState(Disconnected)

	subscribed := false
	for {
		err := retry.Do(
			func() error { return c.subscribe(ctx, &subscribed) },
			retry.Context(ctx),
			retry.Attempts(0),
			retry.Delay(c.cfg.InitialDelay),
			retry.MaxDelay(c.cfg.MaxDelay),
			retry.MaxJitter(c.cfg.MaxJitter),
			retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return !errors.Is(err, errStableDrop) && !errors.Is(err, context.Canceled)
			}),
			retry.OnRetry(func(n uint, err error) {
				c.log.Warn("realtime reconnect scheduled", "user", c.user.ID, "attempt", n, "error", err)
			}),
		)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, errStableDrop) {
			return err
		}
	}
}

// subscribe dials once and serves the connection until it drops.
func (c *Channel) subscribe(ctx context.Context, subscribed *bool) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	if *subscribed {
		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
	}
	*subscribed = true
	c.setState(Subscribed)
	c.log.Info("realtime subscribed", "user", c.user.ID)

	start := time.Now()
	matched, err := c.serve(ctx, conn)
	c.setState(Disconnected)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if matched || time.Since(start) >= c.cfg.PingInterval {
		c.log.Warn("realtime connection dropped", "user", c.user.ID, "error", err)
		return fmt.Errorf("%w: %w", errStableDrop, err)
	}
	c.log.Warn("realtime connection dropped right after subscribing", "user", c.user.ID, "error", err)
	return err
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	c.setState(Connecting)

	u, err := url.Parse(c.rawURL)
	if err != nil {
		return nil, retry.Unrecoverable(&ChannelError{Op: "dial", Err: err})
	}
	q := u.Query()
	q.Set("user", c.user.ID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("user", c.user.ID)
	if c.user.Token != "" {
		header.Set("Authorization", "Bearer "+c.user.Token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		c.setState(Disconnected)
		ce := &ChannelError{Op: "dial", Err: err}
		if resp != nil {
			ce.Status = resp.StatusCode
			_ = resp.Body.Close()
		}
		return nil, ce
	}
	return conn, nil
}

// serve reads until the connection fails or ctx ends. matched reports whether
// at least one match was delivered.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) (matched bool, err error) {
	done := make(chan struct{})
	defer close(done)
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return matched, &ChannelError{Op: "read", Err: err}
		}
		if c.dispatch(payload) {
			matched = true
		}
	}
}

// dispatch reports whether payload was a match handed to the handler.
func (c *Channel) dispatch(payload []byte) bool {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.log.Warn("realtime message dropped", "user", c.user.ID, "error", err)
		return false
	}

	switch msg.Type {
	case TypeMatch:
		var p models.Profile
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.log.Warn("realtime match dropped", "user", c.user.ID, "error", err)
			return false
		}
		c.log.Info("match received", "user", c.user.ID, "profile", p.ID)
		if c.handler != nil {
			c.handler(p)
		}
		return true
	default:
		c.log.Debug("realtime message ignored", "user", c.user.ID, "type", msg.Type)
		return false
	}
}

// IsChannelError reports whether err is a *ChannelError.
func IsChannelError(err error) bool {
	var ce *ChannelError
	return errors.As(err, &ce)
}
