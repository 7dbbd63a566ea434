// Package soul connects to a remote agent session over a websocket and
// exchanges enveloped events with it.
package soul

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-sync/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const closeGracePeriod = time.Second

var ErrNotConnected = errors.New("not connected to session")

// DeliverFunc receives the channel and raw data of every inbound envelope.
type DeliverFunc func(channel string, data []byte)

type Client struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	connected atomic.Bool
	closeOnce sync.Once

	logger *slog.Logger
}

type dialOptions struct {
	header http.Header
	dialer *websocket.Dialer
	logger *slog.Logger
}

type DialOption func(*dialOptions)

// WithHeader adds headers to the websocket handshake, e.g. for auth.
func WithHeader(header http.Header) DialOption {
	return func(o *dialOptions) { o.header = header }
}

func WithDialer(dialer *websocket.Dialer) DialOption {
	return func(o *dialOptions) {
		if dialer != nil {
			o.dialer = dialer
		}
	}
}

func WithLogger(l *slog.Logger) DialOption {
	return func(o *dialOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Dial opens a websocket connection to the session at url.
func Dial(ctx context.Context, url string, opts ...DialOption) (*Client, error) {
	options := dialOptions{dialer: websocket.DefaultDialer, logger: logger}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "dial session")
	defer span.End()

	conn, resp, err := options.dialer.DialContext(ctx, url, options.header)
	if resp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	if err != nil {
		err = fmt.Errorf("failed to open socket connection to session: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c := &Client{conn: conn, logger: options.logger}
	c.connected.Store(true)
	return c, nil
}

func (c *Client) Connected() bool {
	return c != nil && c.connected.Load()
}

// Listen reads envelopes until the connection closes or ctx is done, handing
// each to deliver on the calling goroutine. Undecodable frames are dropped. A
// normal close returns nil.
func (c *Client) Listen(ctx context.Context, deliver DeliverFunc) error {
	if c == nil || c.conn == nil {
		return ErrNotConnected
	}

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	defer c.connected.Store(false)

	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || !c.connected.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("failed to read from session: %w", err)
		}
		if msgType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", "type", msgType)
			continue
		}

		envelope, err := events.ParseEnvelope(msg)
		if err != nil {
			c.logger.Warn("dropping malformed envelope", "error", err)
			continue
		}
		deliver(envelope.Event, envelope.Data)
	}
}

// Dispatch sends said on the dispatch channel.
func (c *Client) Dispatch(ctx context.Context, said events.Said) error {
	if !c.Connected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(said)
	if err != nil {
		return fmt.Errorf("failed to encode said record: %w", err)
	}
	return c.write(ctx, events.Envelope{Event: events.ChannelDispatch, Data: data})
}

func (c *Client) write(ctx context.Context, envelope events.Envelope) error {
	_, span := tracer.Start(ctx, "write envelope",
		trace.WithAttributes(attribute.String("envelope.event", envelope.Event)))
	defer span.End()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}

	if err := c.conn.WriteJSON(envelope); err != nil {
		err = fmt.Errorf("failed to write to session: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Close sends a close frame and releases the connection. It is safe to call
// more than once.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}
