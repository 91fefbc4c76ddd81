// Package websocket implements the duplex audio transport over a websocket
// connection carrying raw binary frames in both directions.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voicewire/duplex-core/core/audio"
)

const inboundQueueCapacity = 64

// Client speaks binary audio frames over a single websocket connection.
// Inbound binary messages become capture frames; WriteFrame sends outbound
// binary messages. Text messages are ignored.
type Client struct {
	url          string
	header       http.Header
	encodingInfo audio.EncodingInfo

	conn    *websocket.Conn
	connMu  sync.Mutex
	started bool

	frames   chan audio.Frame
	closeErr chan error
	done     chan struct{}

	seq       uint64
	closeOnce sync.Once
}

type Option func(*Client)

// WithHeader sets extra headers for the dial request, e.g. authorization.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		c.header = header
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) Option {
	return func(c *Client) {
		c.encodingInfo = encodingInfo
	}
}

func NewClient(url string, opts ...Option) *Client {
	client := &Client{
		url:          url,
		encodingInfo: audio.GetDefaultEncodingInfo(),
		frames:       make(chan audio.Frame, inboundQueueCapacity),
		closeErr:     make(chan error, 1),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) Start(ctx context.Context) error {
	select {
	case <-c.done:
		return fmt.Errorf("transport closed")
	default:
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("failed to open socket connection to %s: %w", c.url, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.started = true
	c.connMu.Unlock()

	go c.readFrames(ctx, conn)
	return nil
}

// readFrames owns the frame channel: nothing else may close it while the
// reader can still send.
func (c *Client) readFrames(ctx context.Context, conn *websocket.Conn) {
	defer close(c.frames)
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			c.shutdown(fmt.Errorf("transport stream closed: %w", err))
			return
		}
		if messageType != websocket.BinaryMessage || len(payload) == 0 {
			continue
		}

		c.seq++
		frame := audio.Frame{
			Seq:        c.seq,
			CapturedAt: time.Now(),
			Samples:    payload,
			Duration:   audio.FrameDuration(payload, c.encodingInfo),
		}

		select {
		case c.frames <- frame:
		case <-c.done:
			return
		case <-ctx.Done():
			c.shutdown(ctx.Err())
			return
		}
	}
}

func (c *Client) Frames() <-chan audio.Frame { return c.frames }

func (c *Client) WriteFrame(_ context.Context, frame audio.Frame) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("transport not started")
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame.Samples); err != nil {
		return fmt.Errorf("failed to write frame to transport: %w", err)
	}
	return nil
}

func (c *Client) CloseNotify() <-chan error { return c.closeErr }

func (c *Client) EncodingInfo() audio.EncodingInfo { return c.encodingInfo }

func (c *Client) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		close(c.done)

		c.connMu.Lock()
		started := c.started
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.connMu.Unlock()

		// Without a reader there is no producer left to close the stream.
		if !started {
			close(c.frames)
		}
		c.closeErr <- err
		close(c.closeErr)
	})
}
