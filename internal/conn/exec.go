/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package conn

import (
	"pgcore/internal/sanitize"
	"pgcore/internal/session"
	"pgcore/internal/wire"
)

// ExecParams runs q through the extended query protocol with the unnamed statement:
// Parse, Bind, Describe, Execute, Sync in one write. Parameters travel in the Bind
// message referencing $n placeholders positionally; they are never interpolated into the
// SQL text. The protocol takes exactly one command per Parse, so a semicolon-separated
// batch with parameters comes back as a syntax error from the server, which is surfaced
// unchanged. The same goes for placeholders where the grammar forbids them (SET, DDL
// defaults) and for parameters whose type the server cannot infer: the caller resolves
// those with an explicit cast next to the placeholder, not the binder.
func (c *Conn) ExecParams(q *Query) error {
	if err := c.lock(); err != nil {
		q.R.concludeCommand(nil, err)
		return err
	}
	defer c.unlock()

	c.wBuf = c.wBuf[:0]
	c.wBuf = (&wire.Parse{
		Query:         q.SQL,
		ParameterOIDs: q.paramOIDs,
	}).Encode(c.wBuf)
	c.wBuf = (&wire.Bind{
		ParameterFormatCodes: q.paramFormats,
		Parameters:           q.paramValues,
		ResultFormatCodes:    q.D.ResultFormats,
	}).Encode(c.wBuf)

	n, err := c.conn.Write(append(c.wBuf, c.sufBuf...))
	if err != nil {
		c.hardClose()
		q.R.concludeCommand(nil, &writeError{err: err, safeToRetry: n == 0})
		return q.R.Error()
	}

	return c.receiveExecResponse(q)
}

// Prepare parses and describes a named statement, filling q.D with the parameter OIDs
// the server resolved and the result columns. The description is owned by the session
// until the statement is closed or the connection reset.
func (c *Conn) Prepare(q *Query) error {
	if err := c.lock(); err != nil {
		q.R.concludeCommand(nil, err)
		return err
	}
	defer c.unlock()

	c.wBuf = c.wBuf[:0]
	c.wBuf = (&wire.Parse{Name: q.D.Name, Query: q.SQL, ParameterOIDs: q.D.ParamOIDs}).Encode(c.wBuf)
	c.wBuf = (&wire.Describe{ObjectType: 'S', Name: q.D.Name}).Encode(c.wBuf)
	c.wBuf = (&wire.Sync{}).Encode(c.wBuf)

	n, err := c.conn.Write(c.wBuf)
	if err != nil {
		c.hardClose()
		q.R.concludeCommand(nil, &writeError{err: err, safeToRetry: n == 0})
		return q.R.Error()
	}

	var parseErr error

	for !q.R.commandConcluded {
		msg, err := c.receiveMessage()
		if err != nil {
			q.R.concludeCommand(nil, err)
			return q.R.Error()
		}

		switch msg := msg.(type) {
		case *wire.ParameterDescription:
			q.D.ParamOIDs = append(q.D.ParamOIDs[:0], msg.ParameterOIDs...)
		case *wire.RowDescription:
			q.D.FieldDescriptions = append(q.D.FieldDescriptions[:0], msg.Fields...)
		case *wire.NoData:
			q.D.FieldDescriptions = q.D.FieldDescriptions[:0]
		case *wire.ErrorResponse:
			parseErr = ErrorResponseToPgError(msg)
		case *wire.ReadyForQuery:
			q.R.commandConcluded = true
		}
	}

	if parseErr != nil {
		q.R.err = parseErr
		return parseErr
	}

	c.sess.PutStatement(&session.Statement{
		Name:          q.D.Name,
		SQL:           q.SQL,
		ParameterOIDs: q.D.ParamOIDs,
		Fields:        q.D.FieldDescriptions,
	})
	return nil
}

// PrepareAsync parses a statement already described on another connection. The
// description is not re-collected; only errors are of interest.
func (c *Conn) PrepareAsync(q *Query) error {
	if err := c.lock(); err != nil {
		q.R.concludeCommand(nil, err)
		return err
	}
	defer c.unlock()

	c.wBuf = c.wBuf[:0]
	c.wBuf = (&wire.Parse{Name: q.D.Name, Query: q.SQL, ParameterOIDs: q.D.ParamOIDs}).Encode(c.wBuf)
	c.wBuf = (&wire.Sync{}).Encode(c.wBuf)

	n, err := c.conn.Write(c.wBuf)
	if err != nil {
		c.hardClose()
		q.R.concludeCommand(nil, &writeError{err: err, safeToRetry: n == 0})
		return q.R.Error()
	}

	var parseErr error

	for !q.R.commandConcluded {
		msg, err := c.receiveMessage()
		if err != nil {
			q.R.concludeCommand(nil, err)
			return q.R.Error()
		}

		switch msg := msg.(type) {
		case *wire.ErrorResponse:
			parseErr = ErrorResponseToPgError(msg)
		case *wire.ReadyForQuery:
			q.R.commandConcluded = true
		}
	}

	if parseErr != nil {
		q.R.err = parseErr
		return parseErr
	}
	c.sess.PutStatement(&session.Statement{
		Name:          q.D.Name,
		SQL:           q.SQL,
		ParameterOIDs: q.D.ParamOIDs,
		Fields:        q.D.FieldDescriptions,
	})
	return nil
}

// ExecPrepared binds q's parameters to the previously prepared statement q.D.Name and
// executes it. The bound parameter OIDs must match the statement description; a
// mismatch fails before anything is written.
func (c *Conn) ExecPrepared(q *Query) error {
	if stmt, ok := c.sess.Statement(q.D.Name); ok {
		if err := stmt.BindCheck(q.paramOIDs); err != nil {
			q.R.concludeCommand(nil, SerializationError(err.Error()))
			return q.R.Error()
		}
	} else if err := q.BindCheck(); err != nil {
		q.R.concludeCommand(nil, err)
		return q.R.Error()
	}

	if err := c.lock(); err != nil {
		q.R.concludeCommand(nil, err)
		return err
	}
	defer c.unlock()

	c.wBuf = c.wBuf[:0]
	c.wBuf = (&wire.Bind{
		PreparedStatement:    q.D.Name,
		ParameterFormatCodes: q.paramFormats,
		Parameters:           q.paramValues,
		ResultFormatCodes:    q.D.ResultFormats,
	}).Encode(c.wBuf)

	n, err := c.conn.Write(append(c.wBuf, c.sufBuf...))
	if err != nil {
		c.hardClose()
		q.R.concludeCommand(nil, &writeError{err: err, safeToRetry: n == 0})
		return q.R.Error()
	}

	return c.receiveExecResponse(q)
}

// ExecLiteral runs q through the simple query protocol with client-side binding: the
// parameters are quoted, merged into the SQL text, and the whole batch travels as one
// Query message. This is the only mode that supports semicolon-separated batches and
// value substitution where the grammar has no placeholders. Note that the server still
// wraps the whole batch in one implicit transaction, so statements that must run outside
// a transaction block fail with SQLSTATE 25001 when batched, autocommit or not.
//
// When the batch returns several row sets the last one is kept.
func (c *Conn) ExecLiteral(q *Query) error {
	sql := q.SQL
	if len(q.Args) > 0 {
		merged, err := sanitize.Interpolate(q.SQL, q.Args...)
		if err != nil {
			q.R.concludeCommand(nil, SerializationError(err.Error()))
			return q.R.Error()
		}
		sql = merged
	}

	if err := c.lock(); err != nil {
		q.R.concludeCommand(nil, err)
		return err
	}
	defer c.unlock()

	c.wBuf = c.wBuf[:0]
	c.wBuf = (&wire.Query{String: sql}).Encode(c.wBuf)

	n, err := c.conn.Write(c.wBuf)
	if err != nil {
		c.hardClose()
		q.R.concludeCommand(nil, &writeError{err: err, safeToRetry: n == 0})
		return q.R.Error()
	}

	for !q.R.commandConcluded {
		msg, err := c.receiveMessage()
		if err != nil {
			q.R.concludeCommand(nil, err)
			q.R.err = err
			return q.R.Error()
		}
		switch msg := msg.(type) {
		case *wire.RowDescription:
			q.R.fields = append(q.R.fields[:0], msg.Fields...)
			q.R.rows = q.R.rows[:0]
			q.R.valuesBuf = q.R.valuesBuf[:0]
		case *wire.DataRow:
			q.R.appendRow(msg.Values)
		case *wire.EmptyQueryResponse:
			q.R.concludeCommand(nil, nil)
		case *wire.ErrorResponse:
			q.R.concludeCommand(nil, ErrorResponseToPgError(msg))
		case *wire.CommandComplete:
			q.R.commandTag = append(CommandTag(nil), msg.CommandTag...)
		case *wire.ReadyForQuery:
			q.R.commandConcluded = true
		}
	}
	return q.R.Error()
}

func (c *Conn) receiveExecResponse(q *Query) error {
	for !q.R.commandConcluded {
		msg, err := c.receiveMessage()
		if err != nil {
			q.R.concludeCommand(nil, err)
			q.R.err = err
			return q.R.Error()
		}
		switch msg := msg.(type) {
		case *wire.RowDescription:
			// Per-execution state only. q.D may be the pool's shared cached
			// description; it is read-only after prepare time.
			q.R.fields = append(q.R.fields[:0], msg.Fields...)
		case *wire.EmptyQueryResponse:
			q.R.concludeCommand(nil, nil)
		case *wire.DataRow:
			q.R.appendRow(msg.Values)
		case *wire.ErrorResponse:
			q.R.concludeCommand(nil, ErrorResponseToPgError(msg))
		case *wire.CommandComplete:
			q.R.concludeCommand(append(CommandTag(nil), msg.CommandTag...), nil)
		case *wire.ReadyForQuery:
			q.R.commandConcluded = true
		}
	}
	return q.R.Error()
}
