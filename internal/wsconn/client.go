// Package wsconn keeps one websocket open to a remote endpoint and
// re-establishes it with exponential backoff when it drops.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// ErrNotConnected is returned by Send while no connection is open.
var ErrNotConnected = errors.New("websocket not connected")

// EventKind names a connection lifecycle change.
type EventKind string

const (
	EventOpen  EventKind = "open"
	EventClose EventKind = "close"
	EventError EventKind = "error"
)

// Event is a lifecycle notification.
type Event struct {
	Kind EventKind
	Err  error
	At   time.Time
}

// Options tune reconnection and I/O.
type Options struct {
	Origin        string
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
	WriteTimeout  time.Duration
	Logger        *slog.Logger
}

// Client owns the connection. Inbound text frames are delivered on
// Messages in arrival order.
type Client struct {
	url  string
	opts Options

	msgs   chan string
	events chan Event

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(url string, opts Options) *Client {
	if opts.Origin == "" {
		opts.Origin = "http://localhost/"
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.RetryMaxDelay < opts.RetryDelay {
		opts.RetryMaxDelay = opts.RetryDelay
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		url:    url,
		opts:   opts,
		msgs:   make(chan string, 64),
		events: make(chan Event, 16),
	}
}

func (c *Client) Messages() <-chan string { return c.msgs }

func (c *Client) Events() <-chan Event { return c.events }

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one text frame.
func (c *Client) Send(ctx context.Context, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return websocket.Message.Send(c.conn, msg)
}

// Run connects and reads until ctx is cancelled, reconnecting after every
// drop with a doubling delay.
func (c *Client) Run(ctx context.Context) error {
	delay := c.opts.RetryDelay
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.opts.Logger.Debug("websocket dial failed", "url", c.url, "retry_in", delay, "error", err)
			c.emit(Event{Kind: EventError, Err: err, At: time.Now()})
		} else {
			// The connection had been up; start the backoff over.
			delay = c.opts.RetryDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.opts.RetryMaxDelay {
			delay = c.opts.RetryMaxDelay
		}
	}
}

// session runs one connection. It returns nil when an established
// connection closed, or the dial error.
func (c *Client) session(ctx context.Context) error {
	cfg, err := websocket.NewConfig(c.url, c.opts.Origin)
	if err != nil {
		return fmt.Errorf("websocket config: %w", err)
	}
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.emit(Event{Kind: EventOpen, At: time.Now()})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	readErr := c.readLoop(ctx, conn)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()
	c.emit(Event{Kind: EventClose, Err: readErr, At: time.Now()})
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var msg string
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			return err
		}
		select {
		case c.msgs <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// emit never blocks: lifecycle events are informational.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.opts.Logger.Debug("websocket event dropped", "kind", ev.Kind)
	}
}
