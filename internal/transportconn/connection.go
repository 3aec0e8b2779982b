// Package transportconn owns the raw TCP socket underneath a session: the
// version-byte handshake, length-prefixed frame reader/writer, and the
// read-half shutdown used to unblock a blocked reader on close.
//
// It is adapted from the teacher's pkg/transport.Connection, which pumped
// websocket frames over a browser connection; here the same read-pump/
// write-pump/closeOnce shape drives a raw net.Conn using internal/wire's
// length-prefixed framing instead of a websocket upgrade.
package transportconn

import (
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/rhythmmp/server/internal/wire"
)

// Conn wraps a single accepted TCP connection, providing frame-level
// read/write primitives and a one-shot close that unblocks any in-flight
// read.
type Conn struct {
	ID uuid.UUID

	conn net.Conn

	closeOnce sync.Once
	closed    chan struct{}

	readCloseOnce sync.Once
	readClosed    chan struct{}

	logger *slog.Logger
}

// New wraps conn. logger is enriched with the connection's id, mirroring the
// teacher's per-connection logger.With(slog.String("connID", ...)) pattern.
func New(conn net.Conn, logger *slog.Logger) *Conn {
	id := uuid.New()
	return &Conn{
		ID:         id,
		conn:       conn,
		closed:     make(chan struct{}),
		readClosed: make(chan struct{}),
		logger:     logger.With(slog.String("connID", id.String())),
	}
}

// ReadVersion performs the one-byte protocol handshake mandated immediately
// after accept, before any framed traffic is read.
func (c *Conn) ReadVersion() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(c.conn, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadCommand blocks for the next length-prefixed frame and decodes it as a
// ClientCommand.
func (c *Conn) ReadCommand() (wire.ClientCommand, error) {
	payload, err := wire.ReadFrame(c.conn)
	if err != nil {
		return wire.ClientCommand{}, err
	}
	r := wire.NewReader(payload)
	cmd, err := r.ReadClientCommand()
	if err != nil {
		return wire.ClientCommand{}, err
	}
	return cmd, nil
}

// WriteCommand encodes cmd and writes it as one length-prefixed frame.
func (c *Conn) WriteCommand(cmd wire.ServerCommand) error {
	w := wire.NewWriter(64)
	w.WriteServerCommand(cmd)
	return wire.WriteFrame(c.conn, w.Bytes())
}

// CloseRead shuts down the read half of the socket, unblocking a reader
// parked in ReadCommand without affecting in-flight writes. Not all net.Conn
// implementations support a half-close; when one doesn't, the full
// connection is closed instead.
func (c *Conn) CloseRead() {
	c.readCloseOnce.Do(func() {
		type readCloser interface {
			CloseRead() error
		}
		if rc, ok := c.conn.(readCloser); ok {
			_ = rc.CloseRead()
		} else {
			_ = c.conn.Close()
		}
		close(c.readClosed)
	})
}

// Close tears down the underlying socket. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
		close(c.closed)
	})
	c.readCloseOnce.Do(func() { close(c.readClosed) })
}

// Done reports a channel closed once CloseRead (and therefore Close, which a
// full teardown always implies having given up on further reads) has run —
// the signal the heartbeat loop waits on to exit promptly instead of waiting
// for its next tick.
func (c *Conn) Done() <-chan struct{} { return c.readClosed }

// RemoteAddr returns the peer address, used for session logging.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
