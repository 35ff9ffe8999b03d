// Package client is a Go signaling client for the Huddle server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/protocol"
)

var ErrClosed = errors.New("client connection closed")

const (
	writeWait    = 5 * time.Second
	eventsBuffer = 256
)

type Options struct {
	Header     http.Header
	PingPeriod time.Duration
}

// Conn correlates requests with responses over one websocket and hands
// notifications to Events.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	events chan protocol.Message
	logger zerolog.Logger

	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan protocol.Message

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, err
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 30 * time.Second
	}
	c := &Conn{
		ws:      ws,
		send:    make(chan []byte, 64),
		events:  make(chan protocol.Message, eventsBuffer),
		logger:  log.With().Str("module", "client").Logger(),
		pending: make(map[uint64]chan protocol.Message),
		done:    make(chan struct{}),
	}
	go c.writePump(opts.PingPeriod)
	go c.readPump()
	return c, nil
}

// Events delivers server notifications. It is closed with the connection.
func (c *Conn) Events() <-chan protocol.Message { return c.events }

func (c *Conn) Done() <-chan struct{} { return c.done }

// Err is the reason the connection ended.
func (c *Conn) Err() error {
	<-c.done
	return c.err
}

// Request sends method and waits for its response, decoding ok data into
// out when out is not nil. Failed responses come back as *protocol.Error.
func (c *Conn) Request(ctx context.Context, method string, data any, out any) error {
	id := c.nextID.Add(1)
	req, err := protocol.NewRequest(id, method, data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}

	ch := make(chan protocol.Message, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	select {
	case c.send <- b:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case resp := <-ch:
		if err := resp.Err(); err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		return resp.Bind(out)
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.shutdown(err)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.shutdown(err)
				return
			}
		}
	}
}

func (c *Conn) readPump() {
	defer close(c.events)
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		m, err := protocol.Decode(raw)
		if err != nil {
			c.logger.Warn().Err(err).Msg("bad frame from server")
			continue
		}
		switch {
		case m.Response:
			c.mu.Lock()
			ch, ok := c.pending[m.ID]
			c.mu.Unlock()
			if ok {
				ch <- m
			}
		case m.Notification:
			select {
			case c.events <- m:
			default:
				c.logger.Warn().Str("method", m.Method).Msg("event buffer full, dropping")
			}
		}
	}
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.shutdown(ErrClosed)
	return nil
}
