package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ConfirmHandler applies one confirmation to the owning field cell.
type ConfirmHandler func(value any, atVersion uint64)

// Channel is the client half of the sync transport: one websocket carrying
// mutation frames out and confirmation frames in. Writes go through a
// single writer goroutine; incoming confirmations are dispatched serially,
// so per-field handlers never run concurrently.
type Channel struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]ConfirmHandler // keyed unit + "/" + field
	closed   bool

	out  chan []byte
	done chan struct{}
}

// ChannelConfig configures Dial.
type ChannelConfig struct {
	// WriteTimeout bounds each websocket write. Default 10s.
	WriteTimeout time.Duration

	// Logger receives channel diagnostics. Default slog.Default().
	Logger *slog.Logger
}

// Dial connects the sync channel and starts its read/write loops.
func Dial(ctx context.Context, url string, cfg ChannelConfig) (*Channel, error) {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		conn:     conn,
		logger:   cfg.Logger,
		handlers: make(map[string]ConfirmHandler),
		out:      make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	go c.writeLoop(cfg.WriteTimeout)
	go c.readLoop()
	return c, nil
}

// Bind routes confirmations for unit/field to handler. Typically the
// handler is a closure over a Field's ConfirmedSet.
func (c *Channel) Bind(unit, field string, handler ConfirmHandler) {
	c.mu.Lock()
	c.handlers[unit+"/"+field] = handler
	c.mu.Unlock()
}

// Send queues one mutation frame. Shaped as a SendFunc-compatible method:
//
//	field.SetOptimistic(v, func(ctx context.Context, m sync.Mutation) error {
//	    return ch.Send(ctx, unit, action, m)
//	})
func (c *Channel) Send(ctx context.Context, unit, op string, m Mutation) error {
	data, err := EncodeMutation(&MutationFrame{
		Unit:    unit,
		Field:   m.Field,
		Op:      op,
		Version: m.Version,
		Value:   m.Value,
	})
	if err != nil {
		return err
	}
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return websocket.ErrCloseSent
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the channel down.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Channel) writeLoop(timeout time.Duration) {
	for {
		select {
		case data := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				c.logger.Error("sync channel write failed", "error", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Channel) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				c.logger.Error("sync channel read failed", "error", err)
			}
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}

		switch f := frame.(type) {
		case *ConfirmFrame:
			c.mu.Lock()
			handler := c.handlers[f.Unit+"/"+f.Field]
			c.mu.Unlock()
			if handler == nil {
				c.logger.Debug("confirmation for unbound field", "unit", f.Unit, "field", f.Field)
				continue
			}
			handler(f.Value, f.Version)
		case string:
			if f == FramePing {
				if data, err := encodePong(); err == nil {
					select {
					case c.out <- data:
					case <-c.done:
						return
					}
				}
			}
		}
	}
}

func encodePong() ([]byte, error) {
	return msgpack.Marshal(frameHeader{Type: FramePong})
}
