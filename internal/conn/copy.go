/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package conn

import (
	"io"

	"github.com/pkg/errors"

	"pgcore/internal/wire"
)

// CopyFrom runs a COPY ... FROM STDIN command and streams src as the copy payload,
// framed into CopyData messages. Chunk boundaries carry no meaning; src may deliver
// whole records or arbitrary blocks. A read error from src aborts the stream with
// CopyFail and the server's resulting error response is drained, leaving the connection
// ready for the next command once the abort handshake completes.
func (c *Conn) CopyFrom(sql string, src io.Reader) (CommandTag, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.unlock()

	c.wBuf = c.wBuf[:0]
	c.wBuf = (&wire.Query{String: sql}).Encode(c.wBuf)
	if _, err := c.conn.Write(c.wBuf); err != nil {
		c.hardClose()
		return nil, errors.Wrap(err, "copy from: write query")
	}

	// Wait for the server to enter copy-in mode. Anything else concludes the command
	// without a copy phase (e.g. an immediate error).
	for c.copyStatus == copyIdle {
		msg, err := c.receiveMessage()
		if err != nil {
			return nil, err
		}
		switch msg := msg.(type) {
		case *wire.CopyInResponse:
			c.copyStatus = copyInActive
		case *wire.ErrorResponse:
			pgErr := ErrorResponseToPgError(msg)
			c.drainUntilReady()
			return nil, pgErr
		case *wire.ReadyForQuery:
			return nil, errors.New("copy from: server did not enter copy mode")
		}
	}

	buf := make([]byte, copyChunkLen)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			c.wBuf = c.wBuf[:0]
			c.wBuf = (&wire.CopyData{Data: buf[:n]}).Encode(c.wBuf)
			if _, werr := c.conn.Write(c.wBuf); werr != nil {
				c.hardClose()
				c.copyStatus = copyFailed
				return nil, errors.Wrap(werr, "copy from: write data")
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, c.copyFail(err.Error())
		}
	}

	c.wBuf = c.wBuf[:0]
	c.wBuf = (&wire.CopyDone{}).Encode(c.wBuf)
	if _, err := c.conn.Write(c.wBuf); err != nil {
		c.hardClose()
		c.copyStatus = copyFailed
		return nil, errors.Wrap(err, "copy from: write done")
	}

	return c.concludeCopy()
}

// CopyTo runs a COPY ... TO STDOUT command and writes every received chunk to dst.
// The chunk sequence is lazy and finite; its concatenation is exactly the server's
// exported data. Restarting means reissuing the command.
func (c *Conn) CopyTo(sql string, dst io.Writer) (CommandTag, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.unlock()

	c.wBuf = c.wBuf[:0]
	c.wBuf = (&wire.Query{String: sql}).Encode(c.wBuf)
	if _, err := c.conn.Write(c.wBuf); err != nil {
		c.hardClose()
		return nil, errors.Wrap(err, "copy to: write query")
	}

	for c.copyStatus == copyIdle {
		msg, err := c.receiveMessage()
		if err != nil {
			return nil, err
		}
		switch msg := msg.(type) {
		case *wire.CopyOutResponse:
			c.copyStatus = copyOutActive
		case *wire.ErrorResponse:
			pgErr := ErrorResponseToPgError(msg)
			c.drainUntilReady()
			return nil, pgErr
		case *wire.ReadyForQuery:
			return nil, errors.New("copy to: server did not enter copy mode")
		}
	}

	var writeErr error
	for c.copyStatus == copyOutActive {
		msg, err := c.receiveMessage()
		if err != nil {
			c.copyStatus = copyFailed
			return nil, err
		}
		switch msg := msg.(type) {
		case *wire.CopyData:
			if writeErr == nil {
				// A failing sink cannot abort COPY OUT mid-stream; the remaining
				// chunks are drained and discarded.
				_, writeErr = dst.Write(msg.Data)
			}
		case *wire.CopyDone:
			c.copyStatus = copyIdle
		case *wire.ErrorResponse:
			c.copyStatus = copyFailed
			pgErr := ErrorResponseToPgError(msg)
			c.drainUntilReady()
			c.copyStatus = copyIdle
			return nil, pgErr
		}
	}

	tag, err := c.concludeCopy()
	if err != nil {
		return tag, err
	}
	if writeErr != nil {
		return tag, errors.Wrap(writeErr, "copy to: write to destination")
	}
	return tag, nil
}

// copyFail aborts an active COPY IN stream. The server answers the CopyFail with an
// error response; after the handshake drains the connection accepts commands again.
func (c *Conn) copyFail(reason string) error {
	c.copyStatus = copyFailed

	c.wBuf = c.wBuf[:0]
	c.wBuf = (&wire.CopyFail{Message: reason}).Encode(c.wBuf)
	if _, err := c.conn.Write(c.wBuf); err != nil {
		c.hardClose()
		return errors.Wrap(err, "copy fail: write")
	}

	var abortErr error
	for {
		msg, err := c.receiveMessage()
		if err != nil {
			return err
		}
		switch msg := msg.(type) {
		case *wire.ErrorResponse:
			abortErr = ErrorResponseToPgError(msg)
		case *wire.ReadyForQuery:
			c.copyStatus = copyIdle
			if abortErr == nil {
				abortErr = errors.New("copy aborted: " + reason)
			}
			return abortErr
		}
	}
}

// concludeCopy consumes the trailing CommandComplete and ReadyForQuery of a copy
// command.
func (c *Conn) concludeCopy() (CommandTag, error) {
	var tag CommandTag
	var copyErr error
	for {
		msg, err := c.receiveMessage()
		if err != nil {
			c.copyStatus = copyFailed
			return nil, err
		}
		switch msg := msg.(type) {
		case *wire.CommandComplete:
			tag = append(CommandTag(nil), msg.CommandTag...)
		case *wire.ErrorResponse:
			copyErr = ErrorResponseToPgError(msg)
		case *wire.ReadyForQuery:
			c.copyStatus = copyIdle
			return tag, copyErr
		}
	}
}

func (c *Conn) drainUntilReady() {
	for {
		msg, err := c.receiveMessage()
		if err != nil {
			return
		}
		if _, ok := msg.(*wire.ReadyForQuery); ok {
			return
		}
	}
}
