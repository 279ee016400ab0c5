/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package conn

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/jackc/chunkreader/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgcore/internal/adapt"
	"pgcore/internal/cfg"
	"pgcore/internal/session"
	"pgcore/internal/wire"
)

// newTestConn returns a connected Conn whose server side is played by script on its own
// goroutine. The script gets a wire.Backend over an in-memory pipe.
func newTestConn(t *testing.T, script func(b *wire.Backend)) *Conn {
	t.Helper()
	client, server := net.Pipe()

	c := New(adapt.NewRegistry())
	c.conn = client
	c.frontend = wire.NewFrontend(chunkreader.New(client), client)
	c.status = statusIdle

	done := make(chan struct{})
	go func() {
		defer close(done)
		script(wire.NewBackend(chunkreader.New(server), server))
	}()

	t.Cleanup(func() {
		client.Close()
		server.Close()
		<-done
	})
	return c
}

func newTestQuery(t *testing.T, c *Conn, sql string, args ...interface{}) *Query {
	t.Helper()
	q := NewQuery(c.reg, nil)
	require.NoError(t, q.Start(sql, args...))
	for i := range q.Args {
		require.NoError(t, q.AppendParam(i))
	}
	return q
}

func receiveAs(t *testing.T, b *wire.Backend, dst interface{}) wire.FrontendMessage {
	msg, err := b.Receive()
	assert.NoError(t, err)
	assert.IsType(t, dst, msg)
	return msg
}

var goodsFields = []wire.FieldDescription{
	{Name: "id", DataTypeOID: adapt.Int4OID, DataTypeSize: 4, TypeModifier: -1, Format: wire.TextFormatCode},
	{Name: "description", DataTypeOID: adapt.TextOID, DataTypeSize: -1, TypeModifier: -1, Format: wire.TextFormatCode},
}

func TestExecParamsCollectsRows(t *testing.T) {
	c := newTestConn(t, func(b *wire.Backend) {
		parse := receiveAs(t, b, &wire.Parse{}).(*wire.Parse)
		assert.Equal(t, "select id, description from goods where id = $1", parse.Query)
		assert.Empty(t, parse.Name)

		bind := receiveAs(t, b, &wire.Bind{}).(*wire.Bind)
		assert.Len(t, bind.Parameters, 1)

		receiveAs(t, b, &wire.Describe{})
		receiveAs(t, b, &wire.Execute{})
		receiveAs(t, b, &wire.Sync{})

		b.Send(&wire.ParseComplete{})
		b.Send(&wire.BindComplete{})
		b.Send(&wire.RowDescription{Fields: goodsFields})
		b.Send(&wire.DataRow{Values: [][]byte{[]byte("7"), []byte("seven")}})
		b.Send(&wire.DataRow{Values: [][]byte{[]byte("8"), nil}})
		b.Send(&wire.CommandComplete{CommandTag: []byte("SELECT 2")})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})

	q := newTestQuery(t, c, "select id, description from goods where id = $1", int64(7))
	require.NoError(t, c.ExecParams(q))

	assert.Equal(t, 2, q.R.RowCount())
	assert.Equal(t, "SELECT 2", q.R.Tag().String())
	assert.EqualValues(t, 2, q.R.Tag().RowsAffected())
	assert.True(t, q.R.Tag().Select())

	v, err := q.R.Value(0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
	v, err = q.R.Value(0, 1)
	require.NoError(t, err)
	assert.Equal(t, "seven", v)
	v, err = q.R.Value(1, 1)
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Equal(t, session.TxIdle, c.TxStatus())
	assert.False(t, c.Closed())
}

func TestExecParamsSurfacesServerSQLState(t *testing.T) {
	// The extended protocol takes one command per Parse; the server rejects a batch
	// with a syntax error which must come through verbatim.
	c := newTestConn(t, func(b *wire.Backend) {
		receiveAs(t, b, &wire.Parse{})
		receiveAs(t, b, &wire.Bind{})
		receiveAs(t, b, &wire.Describe{})
		receiveAs(t, b, &wire.Execute{})
		receiveAs(t, b, &wire.Sync{})

		b.Send(&wire.ErrorResponse{
			Severity: "ERROR",
			Code:     CodeSyntaxError,
			Message:  "cannot insert multiple commands into a prepared statement",
		})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})

	q := newTestQuery(t, c, "select $1; select $2", int64(1), int64(2))
	err := c.ExecParams(q)
	require.Error(t, err)

	var pgErr *PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, CodeSyntaxError, pgErr.SQLState())

	// The sync handshake completed, the connection stays usable.
	assert.False(t, c.Closed())
}

func TestExecParamsIndeterminateType(t *testing.T) {
	c := newTestConn(t, func(b *wire.Backend) {
		receiveAs(t, b, &wire.Parse{})
		receiveAs(t, b, &wire.Bind{})
		receiveAs(t, b, &wire.Describe{})
		receiveAs(t, b, &wire.Execute{})
		receiveAs(t, b, &wire.Sync{})

		b.Send(&wire.ErrorResponse{
			Severity: "ERROR",
			Code:     CodeIndeterminateType,
			Message:  "could not determine data type of parameter $1",
		})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})

	q := newTestQuery(t, c, "select $1", "4")
	err := c.ExecParams(q)

	var pgErr *PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, CodeIndeterminateType, pgErr.SQLState())
}

func TestPrepareFillsDescription(t *testing.T) {
	c := newTestConn(t, func(b *wire.Backend) {
		parse := receiveAs(t, b, &wire.Parse{}).(*wire.Parse)
		assert.Equal(t, "ps_0", parse.Name)
		describe := receiveAs(t, b, &wire.Describe{}).(*wire.Describe)
		assert.Equal(t, byte('S'), describe.ObjectType)
		receiveAs(t, b, &wire.Sync{})

		b.Send(&wire.ParseComplete{})
		b.Send(&wire.ParameterDescription{ParameterOIDs: []uint32{adapt.Int4OID}})
		b.Send(&wire.RowDescription{Fields: goodsFields})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})

	q := newTestQuery(t, c, "select id, description from goods where id = $1")
	q.D.Name = "ps_0"
	require.NoError(t, c.Prepare(q))

	assert.Equal(t, []uint32{adapt.Int4OID}, q.D.ParamOIDs)
	require.Len(t, q.D.FieldDescriptions, 2)
	assert.Equal(t, "id", q.D.FieldDescriptions[0].Name)

	stmt, ok := c.sess.Statement("ps_0")
	require.True(t, ok)
	assert.Equal(t, []uint32{adapt.Int4OID}, stmt.ParameterOIDs)
}

func TestExecPreparedBindCheckRejectsOIDMismatch(t *testing.T) {
	c := New(adapt.NewRegistry())
	c.status = statusIdle
	c.sess.PutStatement(&session.Statement{
		Name:          "ps_0",
		ParameterOIDs: []uint32{adapt.BoolOID},
	})

	q := NewQuery(c.reg, nil)
	require.NoError(t, q.Start("select * from goods where active = $1", int64(1)))
	require.NoError(t, q.AppendParam(0))
	q.D.Name = "ps_0"

	// int8 bound where the statement resolved bool. Nothing is written; the failure
	// is local and never coerced.
	err := c.ExecPrepared(q)
	require.Error(t, err)
	var se SerializationError
	assert.ErrorAs(t, err, &se)
}

func TestExecPreparedRunsStatement(t *testing.T) {
	c := newTestConn(t, func(b *wire.Backend) {
		bind := receiveAs(t, b, &wire.Bind{}).(*wire.Bind)
		assert.Equal(t, "ps_0", bind.PreparedStatement)
		receiveAs(t, b, &wire.Describe{})
		receiveAs(t, b, &wire.Execute{})
		receiveAs(t, b, &wire.Sync{})

		b.Send(&wire.BindComplete{})
		b.Send(&wire.RowDescription{Fields: goodsFields})
		b.Send(&wire.DataRow{Values: [][]byte{[]byte("7"), []byte("seven")}})
		b.Send(&wire.CommandComplete{CommandTag: []byte("SELECT 1")})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})
	c.sess.PutStatement(&session.Statement{
		Name:          "ps_0",
		ParameterOIDs: []uint32{adapt.Int8OID},
	})

	q := newTestQuery(t, c, "select id, description from goods where id = $1", int64(7))
	q.D.Name = "ps_0"
	require.NoError(t, c.ExecPrepared(q))
	assert.Equal(t, 1, q.R.RowCount())
}

func TestRecycledQueryDropsStaleDescription(t *testing.T) {
	c := newTestConn(t, func(b *wire.Backend) {
		receiveAs(t, b, &wire.Parse{})
		bind := receiveAs(t, b, &wire.Bind{}).(*wire.Bind)
		// A zero-column statement must not inherit result formats from whatever
		// statement the recycled query object ran before.
		assert.Empty(t, bind.ResultFormatCodes)
		receiveAs(t, b, &wire.Describe{})
		receiveAs(t, b, &wire.Execute{})
		receiveAs(t, b, &wire.Sync{})

		b.Send(&wire.ParseComplete{})
		b.Send(&wire.BindComplete{})
		b.Send(&wire.NoData{})
		b.Send(&wire.CommandComplete{CommandTag: []byte("BEGIN")})
		b.Send(&wire.ReadyForQuery{TxStatus: 'T'})
	})

	cached := &Description{
		Name:              "ps_0",
		ResultFormats:     []int16{wire.BinaryFormatCode, wire.TextFormatCode},
		FieldDescriptions: append([]wire.FieldDescription(nil), goodsFields...),
	}
	q := NewQuery(c.reg, nil)
	q.D = cached // as the pool leaves it after a prepared execution

	require.NoError(t, q.Start("begin"))
	require.NoError(t, c.ExecParams(q))

	assert.Equal(t, "BEGIN", q.R.Tag().String())
	assert.Equal(t, session.TxActive, c.TxStatus())
	// The cached description belongs to the previous statement and stays untouched.
	assert.Equal(t, []int16{wire.BinaryFormatCode, wire.TextFormatCode}, cached.ResultFormats)
	assert.Len(t, cached.FieldDescriptions, 2)
}

func TestExecutionDoesNotWriteSharedDescription(t *testing.T) {
	c := newTestConn(t, func(b *wire.Backend) {
		receiveAs(t, b, &wire.Bind{})
		receiveAs(t, b, &wire.Describe{})
		receiveAs(t, b, &wire.Execute{})
		receiveAs(t, b, &wire.Sync{})

		b.Send(&wire.BindComplete{})
		b.Send(&wire.RowDescription{Fields: []wire.FieldDescription{
			{Name: "renamed", DataTypeOID: adapt.Int4OID, DataTypeSize: 4, TypeModifier: -1, Format: wire.TextFormatCode},
		}})
		b.Send(&wire.DataRow{Values: [][]byte{[]byte("1")}})
		b.Send(&wire.CommandComplete{CommandTag: []byte("SELECT 1")})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})
	c.sess.PutStatement(&session.Statement{Name: "ps_0"})

	// Shared across workers once cached; execution must treat it as read-only even
	// when the server reports different columns than the description recorded.
	shared := &Description{
		Name:              "ps_0",
		FieldDescriptions: append([]wire.FieldDescription(nil), goodsFields...),
		ResultFormats:     []int16{wire.TextFormatCode, wire.TextFormatCode},
	}
	q := NewQuery(c.reg, nil)
	require.NoError(t, q.Start("select id from goods"))
	q.D = shared

	require.NoError(t, c.ExecPrepared(q))
	assert.Equal(t, 1, q.R.RowCount())
	assert.Equal(t, "renamed", q.R.fields[0].Name)

	require.Len(t, shared.FieldDescriptions, 2)
	assert.Equal(t, "id", shared.FieldDescriptions[0].Name)
	assert.Equal(t, "description", shared.FieldDescriptions[1].Name)
}

func TestExecLiteralInterpolatesArgs(t *testing.T) {
	c := newTestConn(t, func(b *wire.Backend) {
		query := receiveAs(t, b, &wire.Query{}).(*wire.Query)
		assert.Equal(t, "insert into t values ('it''s')", query.String)

		b.Send(&wire.CommandComplete{CommandTag: []byte("INSERT 0 1")})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})

	q := NewQuery(c.reg, nil)
	require.NoError(t, q.Start("insert into t values ($1)", "it's"))
	require.NoError(t, c.ExecLiteral(q))
	assert.EqualValues(t, 1, q.R.Tag().RowsAffected())
	assert.True(t, q.R.Tag().Insert())
}

func TestExecLiteralBatchKeepsLastResult(t *testing.T) {
	c := newTestConn(t, func(b *wire.Backend) {
		receiveAs(t, b, &wire.Query{})

		b.Send(&wire.RowDescription{Fields: goodsFields[:1]})
		b.Send(&wire.DataRow{Values: [][]byte{[]byte("1")}})
		b.Send(&wire.CommandComplete{CommandTag: []byte("SELECT 1")})
		b.Send(&wire.RowDescription{Fields: goodsFields})
		b.Send(&wire.DataRow{Values: [][]byte{[]byte("2"), []byte("two")}})
		b.Send(&wire.DataRow{Values: [][]byte{[]byte("3"), []byte("three")}})
		b.Send(&wire.CommandComplete{CommandTag: []byte("SELECT 2")})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})

	q := NewQuery(c.reg, nil)
	require.NoError(t, q.Start("select id from goods; select id, description from goods"))
	require.NoError(t, c.ExecLiteral(q))

	// Only the last statement's row set survives.
	assert.Equal(t, 2, q.R.RowCount())
	require.Len(t, q.R.Fields(), 2)
	assert.Equal(t, "SELECT 2", q.R.Tag().String())
	v, err := q.R.Value(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "three", v)
}

func TestExecLiteralBatchRunsInImplicitTransaction(t *testing.T) {
	// CREATE DATABASE cannot run inside a transaction block, and a batch is always
	// wrapped in one by the server. The server's 25001 comes through untouched.
	c := newTestConn(t, func(b *wire.Backend) {
		receiveAs(t, b, &wire.Query{})

		b.Send(&wire.CommandComplete{CommandTag: []byte("SELECT 1")})
		b.Send(&wire.ErrorResponse{
			Severity: "ERROR",
			Code:     CodeActiveSQLTransaction,
			Message:  "CREATE DATABASE cannot run inside a transaction block",
		})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})

	q := NewQuery(c.reg, nil)
	require.NoError(t, q.Start("select 1; create database test_db"))
	err := c.ExecLiteral(q)

	var pgErr *PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, CodeActiveSQLTransaction, pgErr.SQLState())
}

func TestExecLiteralEmptyQuery(t *testing.T) {
	c := newTestConn(t, func(b *wire.Backend) {
		receiveAs(t, b, &wire.Query{})
		b.Send(&wire.EmptyQueryResponse{})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})

	q := NewQuery(c.reg, nil)
	require.NoError(t, q.Start(""))
	require.NoError(t, c.ExecLiteral(q))
	assert.Zero(t, q.R.RowCount())
	assert.Empty(t, q.R.Tag().String())
}

func TestConnBusy(t *testing.T) {
	c := New(adapt.NewRegistry())
	c.status = statusBusy

	q := NewQuery(c.reg, nil)
	require.NoError(t, q.Start("select 1"))
	err := c.ExecLiteral(q)
	assert.ErrorIs(t, err, ErrConnBusy)
	assert.True(t, IsConnBusy(err))
	assert.True(t, SafeToRetry(err))
}

func TestIsConnBusyOnlyForContention(t *testing.T) {
	// Other lock failures are not contention and must not report busy.
	c := New(adapt.NewRegistry())
	c.status = statusClosed
	err := c.lock()
	require.Error(t, err)
	assert.False(t, IsConnBusy(err))
	assert.True(t, SafeToRetry(err))

	c.status = statusUninitialized
	err = c.lock()
	require.Error(t, err)
	assert.False(t, IsConnBusy(err))
}

func TestFatalErrorClosesConn(t *testing.T) {
	c := newTestConn(t, func(b *wire.Backend) {
		receiveAs(t, b, &wire.Query{})
		b.Send(&wire.ErrorResponse{
			Severity: "FATAL",
			Code:     "57P01",
			Message:  "terminating connection due to administrator command",
		})
	})

	q := NewQuery(c.reg, nil)
	require.NoError(t, q.Start("select pg_sleep(10)"))
	err := c.ExecLiteral(q)

	var pgErr *PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "57P01", pgErr.Code)
	assert.True(t, c.Closed())
}

func TestCopyFromStreamsSource(t *testing.T) {
	payload := strings.Repeat("1\tone\n2\ttwo\n3\tthree\n", 100)

	var received bytes.Buffer
	c := newTestConn(t, func(b *wire.Backend) {
		receiveAs(t, b, &wire.Query{})
		b.Send(&wire.CopyInResponse{OverallFormat: 0, ColumnFormatCodes: []int16{0, 0}})

		for {
			msg, err := b.Receive()
			assert.NoError(t, err)
			if err != nil {
				return
			}
			if _, done := msg.(*wire.CopyDone); done {
				break
			}
			data, ok := msg.(*wire.CopyData)
			assert.True(t, ok)
			received.Write(data.Data)
		}

		b.Send(&wire.CommandComplete{CommandTag: []byte("COPY 300")})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})

	tag, err := c.CopyFrom("copy goods from stdin", strings.NewReader(payload))
	require.NoError(t, err)
	assert.EqualValues(t, 300, tag.RowsAffected())
	assert.True(t, tag.Copy())
	assert.Equal(t, payload, received.String())
}

type failingReader struct {
	data io.Reader
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	n, err := r.data.Read(p)
	if err == io.EOF {
		return n, r.err
	}
	return n, err
}

func TestCopyFromSourceFailureAborts(t *testing.T) {
	c := newTestConn(t, func(b *wire.Backend) {
		receiveAs(t, b, &wire.Query{})
		b.Send(&wire.CopyInResponse{OverallFormat: 0})

		var sawFail bool
		for !sawFail {
			msg, err := b.Receive()
			assert.NoError(t, err)
			if err != nil {
				return
			}
			switch msg := msg.(type) {
			case *wire.CopyData:
			case *wire.CopyFail:
				assert.Contains(t, msg.Message, "source exploded")
				sawFail = true
			default:
				assert.Failf(t, "unexpected message", "%T", msg)
				return
			}
		}

		b.Send(&wire.ErrorResponse{
			Severity: "ERROR",
			Code:     CodeQueryCanceled,
			Message:  "COPY from stdin failed: source exploded",
		})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})

		// The connection survives the abort handshake and accepts the next command.
		receiveAs(t, b, &wire.Query{})
		b.Send(&wire.CommandComplete{CommandTag: []byte("SELECT 0")})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})

	src := &failingReader{data: strings.NewReader("1\tone\n"), err: errors.New("source exploded")}
	_, err := c.CopyFrom("copy goods from stdin", src)
	require.Error(t, err)

	var pgErr *PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, CodeQueryCanceled, pgErr.SQLState())
	assert.False(t, c.Closed())

	q := NewQuery(c.reg, nil)
	require.NoError(t, q.Start("select id from goods where false"))
	require.NoError(t, c.ExecLiteral(q))
}

func TestCopyToConcatenatesChunks(t *testing.T) {
	chunks := []string{"1\tone\n", "2\ttwo\n", "3\tthree\n"}

	c := newTestConn(t, func(b *wire.Backend) {
		receiveAs(t, b, &wire.Query{})
		b.Send(&wire.CopyOutResponse{OverallFormat: 0, ColumnFormatCodes: []int16{0, 0}})
		for _, chunk := range chunks {
			b.Send(&wire.CopyData{Data: []byte(chunk)})
		}
		b.Send(&wire.CopyDone{})
		b.Send(&wire.CommandComplete{CommandTag: []byte("COPY 3")})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})

	var dst bytes.Buffer
	tag, err := c.CopyTo("copy goods to stdout", &dst)
	require.NoError(t, err)
	assert.EqualValues(t, 3, tag.RowsAffected())
	assert.Equal(t, strings.Join(chunks, ""), dst.String())
}

func TestCopyToImmediateError(t *testing.T) {
	c := newTestConn(t, func(b *wire.Backend) {
		receiveAs(t, b, &wire.Query{})
		b.Send(&wire.ErrorResponse{
			Severity: "ERROR",
			Code:     "42P01",
			Message:  `relation "nope" does not exist`,
		})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	})

	var dst bytes.Buffer
	_, err := c.CopyTo("copy nope to stdout", &dst)
	var pgErr *PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "42P01", pgErr.Code)
	assert.Zero(t, dst.Len())
	assert.False(t, c.Closed())
}

func TestConnectHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b := wire.NewBackend(chunkreader.New(server), server)

		startup, err := b.ReceiveStartupMessage()
		assert.NoError(t, err)
		sm, ok := startup.(*wire.StartupMessage)
		assert.True(t, ok)
		assert.Equal(t, "alice", sm.Parameters["user"])
		assert.Equal(t, "shop", sm.Parameters["database"])

		b.Send(&wire.AuthenticationCleartextPassword{})
		pw, err := b.Receive()
		assert.NoError(t, err)
		assert.Equal(t, &wire.PasswordMessage{Password: "hunter2"}, pw)

		b.Send(&wire.AuthenticationOk{})
		b.Send(&wire.ParameterStatus{Name: "server_version", Value: "14.1"})
		b.Send(&wire.BackendKeyData{ProcessID: 31007, SecretKey: 1013083042})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	}()

	config := testConfig(t, client)
	c := New(adapt.NewRegistry())
	require.NoError(t, c.Connect(config))
	<-done

	assert.Equal(t, "14.1", c.Parameter("server_version"))
	assert.EqualValues(t, 31007, c.PID())
	assert.Equal(t, session.TxIdle, c.TxStatus())
	assert.False(t, c.Closed())
}

func TestConnectAuthFailure(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		b := wire.NewBackend(chunkreader.New(server), server)
		_, err := b.ReceiveStartupMessage()
		assert.NoError(t, err)
		b.Send(&wire.ErrorResponse{
			Severity: "FATAL",
			Code:     "28P01",
			Message:  `password authentication failed for user "alice"`,
		})
	}()

	config := testConfig(t, client)
	c := New(adapt.NewRegistry())
	err := c.Connect(config)
	require.Error(t, err)

	var pgErr *PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "28P01", pgErr.Code)
}

func TestCancelRequestUsesBackendKey(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		b := wire.NewBackend(chunkreader.New(server), server)
		_, err := b.ReceiveStartupMessage()
		assert.NoError(t, err)
		b.Send(&wire.AuthenticationOk{})
		b.Send(&wire.BackendKeyData{ProcessID: 31007, SecretKey: 1013083042})
		b.Send(&wire.ReadyForQuery{TxStatus: 'I'})
	}()

	config := testConfig(t, client)
	c := New(adapt.NewRegistry())
	require.NoError(t, c.Connect(config))

	// The cancel request travels over a fresh connection, not the session one.
	cancelClient, cancelServer := net.Pipe()
	defer cancelClient.Close()
	c.config.DialFunc = func(network, addr string) (net.Conn, error) {
		return cancelClient, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		b := wire.NewBackend(chunkreader.New(cancelServer), cancelServer)
		msg, err := b.ReceiveStartupMessage()
		assert.NoError(t, err)
		cancel, ok := msg.(*wire.CancelRequest)
		assert.True(t, ok)
		assert.EqualValues(t, 31007, cancel.ProcessID)
		assert.EqualValues(t, 1013083042, cancel.SecretKey)
		cancelServer.Close()
	}()

	require.NoError(t, c.CancelRequest())
	<-done
}

func TestCancelRequestWithoutBackendKey(t *testing.T) {
	c := New(adapt.NewRegistry())
	require.Error(t, c.CancelRequest())
}

func testConfig(t *testing.T, clientSide net.Conn) *cfg.Config {
	t.Helper()
	var config cfg.Config
	require.NoError(t, config.ParseConfig("host=localhost user=alice password=hunter2 database=shop sslmode=disable"))
	config.DialFunc = func(network, addr string) (net.Conn, error) {
		return clientSide, nil
	}
	return &config
}
