package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// ErrChannelUnavailable is returned by Send when the push channel is not
// open. Callers fall back to the pull channel.
var ErrChannelUnavailable = errors.New("push channel unavailable")

// State is the lifecycle state of a push channel instance.
type State string

const (
	StateConnecting State = "CONNECTING"
	StateOpen       State = "OPEN"
	StateClosed     State = "CLOSED"
)

const (
	// readLimit caps inbound frame size; chat frames are small.
	readLimit = 1 << 20

	// inboundChanSize buffers frames between the reader goroutine and the
	// dispatch goroutine.
	inboundChanSize = 64

	// writeTimeout bounds a single frame write.
	writeTimeout = 10 * time.Second
)

// Handlers receive channel callbacks. OnFrame is invoked for every decoded
// frame, in receipt order, from a single goroutine — no concurrent
// re-entrant dispatch. OnClose fires exactly once when the channel leaves
// the Open state for any reason.
type Handlers struct {
	OnFrame func(Frame)
	OnClose func(err error)
}

// wsConn abstracts the WebSocket connection so Channel can be tested
// without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// inboundMsg wraps one raw read handed from the reader goroutine to the
// dispatch goroutine.
type inboundMsg struct {
	data []byte
	err  error
}

// Channel is one push-channel connection. A closed channel is not
// reusable; reconnecting means dialing a new instance.
type Channel struct {
	conn     wsConn
	handlers Handlers
	logger   *zap.Logger

	mu    sync.Mutex
	state State

	inbound   chan inboundMsg
	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens the push channel, sends the authenticate frame as the first
// outbound message, and starts the reader and dispatch goroutines.
func Dial(ctx context.Context, url, token, userID string, h Handlers, logger *zap.Logger) (*Channel, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial push channel: %w", err)
	}
	conn.SetReadLimit(readLimit)

	auth, err := EncodeFrame(NewAuthenticateFrame(token, userID))
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "encode auth")
		return nil, err
	}
	if err := conn.Write(ctx, websocket.MessageText, auth); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "auth write")
		return nil, fmt.Errorf("send authenticate frame: %w", err)
	}

	c := newChannel(conn, h, logger)
	c.start()
	return c, nil
}

// newChannel wraps an already-authenticated connection. Split from Dial for
// tests.
func newChannel(conn wsConn, h Handlers, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		conn:     conn,
		handlers: h,
		logger:   logger,
		state:    StateOpen,
		inbound:  make(chan inboundMsg, inboundChanSize),
		done:     make(chan struct{}),
	}
}

// State returns the channel's current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send writes a frame iff the channel is open; otherwise it fails with
// ErrChannelUnavailable. A write error closes the channel.
func (c *Channel) Send(ctx context.Context, f Frame) error {
	if c.State() != StateOpen {
		return ErrChannelUnavailable
	}
	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.close(fmt.Errorf("write frame: %w", err))
		return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	return nil
}

// Close shuts the channel down cleanly.
func (c *Channel) Close() {
	c.close(nil)
}

func (c *Channel) start() {
	go c.readLoop()
	go c.dispatchLoop()
}

// readLoop is the only reader of the connection. It hands every raw frame
// to the dispatch loop and exits on the first read error.
func (c *Channel) readLoop() {
	for {
		_, data, err := c.conn.Read(context.Background())
		select {
		case c.inbound <- inboundMsg{data: data, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// dispatchLoop decodes frames and invokes the handler sequentially, which
// is what guarantees receipt-order, single-threaded dispatch.
func (c *Channel) dispatchLoop() {
	for {
		select {
		case msg := <-c.inbound:
			if msg.err != nil {
				c.close(msg.err)
				return
			}
			frame, err := DecodeFrame(msg.data)
			if err != nil {
				var unknown *ErrUnknownFrameType
				if errors.As(err, &unknown) {
					c.logger.Warn("dropping unknown frame", zap.String("type", unknown.TypeTag))
					continue
				}
				c.logger.Warn("dropping malformed frame", zap.Error(err))
				continue
			}
			if c.handlers.OnFrame != nil {
				c.handlers.OnFrame(frame)
			}
		case <-c.done:
			return
		}
	}
}

// close transitions to Closed exactly once and notifies the owner.
func (c *Channel) close(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.done)

		if err == nil {
			_ = c.conn.Close(websocket.StatusNormalClosure, "")
		} else {
			_ = c.conn.Close(websocket.StatusInternalError, "channel error")
			c.logger.Warn("push channel closed", zap.Error(err))
		}
		if c.handlers.OnClose != nil {
			c.handlers.OnClose(err)
		}
	})
}
