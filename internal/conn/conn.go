/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package conn

import (
	"errors"
	"net"
	"sync"

	"pgcore/internal/adapt"
	"pgcore/internal/cfg"
	"pgcore/internal/session"
	"pgcore/internal/wire"
)

// Conn is a single PostgreSQL connection. The socket and protocol state are exclusively
// owned by one in-flight operation at a time; direct callers racing an operation get
// ErrConnBusy, the pool serializes through its command channel instead.
type Conn struct {
	conn     net.Conn
	frontend *wire.Frontend
	sess     *session.Machine
	reg      *adapt.Registry

	config *cfg.Config

	mutex  sync.Mutex
	status byte

	copyStatus byte

	peekedMsg wire.BackendMessage

	cleanupDone chan struct{}

	// write buffers; wBuf is reset per exchange, sufBuf holds the pre-encoded
	// Describe/Execute/Sync suffix shared by every extended-protocol exchange.
	wBuf   []byte
	sufBuf []byte
}

// New returns an unconnected Conn using reg for value adaptation.
func New(reg *adapt.Registry) *Conn {
	c := &Conn{
		status: statusUninitialized,
		sess:   session.New(),
		reg:    reg,
		wBuf:   make([]byte, 0, wbufLen),
	}
	c.sufBuf = make([]byte, 0, 22)
	c.sufBuf = (&wire.Describe{ObjectType: 'P'}).Encode(c.sufBuf)
	c.sufBuf = (&wire.Execute{}).Encode(c.sufBuf)
	c.sufBuf = (&wire.Sync{}).Encode(c.sufBuf)
	return c
}

// Registry returns the connection's default adapter registry.
func (c *Conn) Registry() *adapt.Registry {
	return c.reg
}

// lock claims the connection for one operation.
func (c *Conn) lock() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	switch c.status {
	case statusBusy:
		return ErrConnBusy
	case statusClosed:
		return &connLockError{status: "conn closed"}
	case statusUninitialized, statusUnknown:
		return &connLockError{status: "conn uninitialized"}
	}
	c.status = statusBusy
	return nil
}

func (c *Conn) unlock() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.status == statusBusy {
		c.status = statusIdle
	}
}

// Close sends Terminate and closes the socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.status == statusClosed || c.conn == nil {
		return nil
	}
	c.status = statusClosed
	_, _ = c.conn.Write((&wire.Terminate{}).Encode(nil))
	err := c.conn.Close()
	c.sess.Reset()
	return err
}

func (c *Conn) hardClose() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.status == statusClosed {
		return
	}
	c.status = statusClosed
	if c.conn != nil {
		c.conn.Close() // Ignore error as the connection is already broken and there is already an error to return.
	}
	if c.cleanupDone != nil {
		close(c.cleanupDone)
		c.cleanupDone = nil
	}
}

// Closed reports whether the connection has been torn down.
func (c *Conn) Closed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.status == statusClosed
}

// TxStatus returns the transaction status after the last completed exchange.
func (c *Conn) TxStatus() session.TxStatus {
	return c.sess.TxStatus()
}

// Parameter returns a server-reported run-time parameter such as server_version.
func (c *Conn) Parameter(name string) string {
	return c.sess.Parameter(name)
}

// PID returns the backend process ID.
func (c *Conn) PID() uint32 {
	pid, _ := c.sess.BackendKey()
	return pid
}

// Conn returns the underlying net.Conn.
func (c *Conn) Conn() net.Conn {
	return c.conn
}

// peekMessage returns the next backend message without consuming it.
func (c *Conn) peekMessage() (wire.BackendMessage, error) {
	if c.peekedMsg != nil {
		return c.peekedMsg, nil
	}

	msg, err := c.frontend.Receive()
	if err != nil {
		// Close on anything other than timeout error - everything else is fatal.
		var netErr net.Error
		isNetErr := errors.As(err, &netErr)
		if !(isNetErr && netErr.Timeout()) {
			c.hardClose()
		}
		return nil, err
	}

	c.peekedMsg = msg
	return msg, nil
}

// receiveMessage consumes the next backend message, folding connection-level state into
// the session machine.
func (c *Conn) receiveMessage() (wire.BackendMessage, error) {
	msg, err := c.peekMessage()
	if err != nil {
		return nil, err
	}
	c.peekedMsg = nil

	c.sess.Apply(msg)

	if msg, ok := msg.(*wire.ErrorResponse); ok && msg.Severity == "FATAL" {
		c.hardClose()
		return nil, ErrorResponseToPgError(msg)
	}

	return msg, nil
}
