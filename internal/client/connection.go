// Package client is the control-process side of the transport. A
// Connection performs one request/response exchange at a time over a
// single TCP socket, applying the timeout and settle policy of the
// command's class.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mattjoyce/livebridge/internal/command"
	"github.com/mattjoyce/livebridge/internal/frame"
	"github.com/mattjoyce/livebridge/internal/log"
	"github.com/mattjoyce/livebridge/internal/protocol"
)

// Connection is safe for concurrent use; exchanges are serialized.
type Connection struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *frame.Reader
}

// New creates an unconnected Connection. Send connects lazily.
func New(opts Options) *Connection {
	opts = opts.withDefaults()
	return &Connection{
		opts:   opts,
		logger: log.WithComponent("client").With("address", opts.Address),
	}
}

// Dial creates a Connection and connects it.
func Dial(ctx context.Context, opts Options) (*Connection, error) {
	c := New(opts)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect opens the socket if it is not already open and consumes the
// host's greeting when one arrives.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

// Connected reports whether a socket is currently held.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close drops the socket. The Connection may be used again; the next Send
// reconnects.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// ClassOf returns the class used for name. Unknown names are read_only.
func (c *Connection) ClassOf(name string) command.Class {
	if class, ok := c.opts.Classifier.Class(name); ok {
		return class
	}
	return command.ReadOnly
}

// TimeoutFor returns the receive deadline applied to class.
func (c *Connection) TimeoutFor(class command.Class) time.Duration {
	switch class {
	case command.Mutating:
		return c.opts.MutatingTimeout
	case command.LongRunning:
		return c.opts.LongRunningTimeout
	default:
		return c.opts.ReadOnlyTimeout
	}
}

// Send performs one exchange and returns the host's result value.
//
// Failures are *protocol.Error values: an error envelope keeps the socket
// open and carries the host message; a timeout, lost connection or
// malformed reply discards the socket so the next Send reconnects. Nothing
// is retried.
func (c *Connection) Send(ctx context.Context, name string, params protocol.Params) (json.RawMessage, error) {
	if name == "" {
		return nil, protocol.Validation("command type is required")
	}
	if params == nil {
		params = protocol.Params{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	class := c.ClassOf(name)
	c.logger.Info("sending command", "command", name, "class", class.String(), "params", params)

	if err := c.connectLocked(ctx); err != nil {
		return nil, &protocol.Error{
			Kind:    protocol.KindConnectionLost,
			Command: name,
			Message: "could not connect to host",
			Err:     err,
		}
	}

	settle := class == command.Mutating && c.opts.SettleDelay > 0
	if settle {
		if err := c.opts.Clock.Sleep(ctx, c.opts.SettleDelay); err != nil {
			return nil, err
		}
	}

	started := c.opts.Clock.Now()
	resp, err := c.exchange(ctx, name, class, params)
	if err != nil {
		c.discard()
		c.logger.Error("command failed", "command", name, "error", err)
		return nil, err
	}

	if settle {
		if err := c.opts.Clock.Sleep(ctx, c.opts.SettleDelay); err != nil {
			return nil, err
		}
	}

	if !resp.OK() {
		c.logger.Warn("host reported error", "command", name, "message", resp.Message)
		return nil, &protocol.Error{
			Kind:    protocol.ClassifyRemote(resp.Message),
			Command: name,
			Message: resp.Message,
		}
	}
	c.logger.Debug("command succeeded", "command", name, "elapsed", c.opts.Clock.Now().Sub(started))
	return resp.Result, nil
}

// exchange writes one request and reads one envelope under the class
// deadline. Cancelling ctx interrupts a blocked read or write.
func (c *Connection) exchange(ctx context.Context, name string, class command.Class, params protocol.Params) (*protocol.Response, error) {
	timeout := c.TimeoutFor(class)
	if err := c.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, c.transportError(ctx, name, timeout, err)
	}
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := protocol.EncodeRequest(c.conn, &protocol.Request{Type: name, Params: params}); err != nil {
		var perr *protocol.Error
		if errors.As(err, &perr) {
			perr.Command = name
			return nil, perr
		}
		return nil, c.transportError(ctx, name, timeout, err)
	}

	data, err := c.reader.ReadFrame()
	if err != nil {
		return nil, c.transportError(ctx, name, timeout, err)
	}

	resp, err := protocol.DecodeResponse(data)
	if err != nil {
		return nil, &protocol.Error{
			Kind:    protocol.KindProtocol,
			Command: name,
			Message: "invalid response from host",
			Err:     err,
		}
	}
	return resp, nil
}

// transportError classifies a socket-level failure.
func (c *Connection) transportError(ctx context.Context, name string, timeout time.Duration, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("send %s: %w", name, ctxErr)
	}
	if errors.Is(err, frame.ErrFrameTooLarge) {
		return &protocol.Error{Kind: protocol.KindProtocol, Command: name, Message: "response from host too large", Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &protocol.Error{
			Kind:    protocol.KindTransportTimeout,
			Command: name,
			Message: fmt.Sprintf("timeout waiting for host response after %s", timeout),
			Err:     err,
		}
	}
	return &protocol.Error{Kind: protocol.KindConnectionLost, Command: name, Message: "connection to host lost", Err: err}
}

func (c *Connection) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	conn, err := c.opts.Dialer.DialContext(dctx, "tcp", c.opts.Address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.Address, err)
	}

	reader := frame.NewReader(conn)
	reader.SetLimit(c.opts.MaxFrameSize)
	c.conn = conn
	c.reader = reader
	c.logger.Info("connected to host")

	if c.opts.GreetingTimeout > 0 {
		c.readGreeting()
	}
	return nil
}

// readGreeting consumes the host's greeting if one arrives in time. A
// greeting that is plain text ends the wait as soon as it is read. Its
// absence is not an error.
func (c *Connection) readGreeting() {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.GreetingTimeout))
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	data, err := c.reader.ReadFrameOnce()
	if errors.Is(err, frame.ErrNoFrame) {
		c.logger.Debug("host greeting was not JSON; ignored")
		return
	}
	if err != nil {
		c.reader.Reset()
		c.logger.Warn("no greeting from host", "error", err)
		return
	}
	g, err := protocol.DecodeGreeting(data)
	if err != nil {
		c.logger.Warn("unexpected greeting from host", "error", err)
		return
	}
	c.logger.Debug("host greeting", "message", g.Message)
}

func (c *Connection) discard() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.reader = nil
}
