/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package wire

import (
	"bytes"
	"testing"

	"github.com/jackc/chunkreader/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackendRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  BackendMessage
	}{
		{"AuthenticationOk", &AuthenticationOk{}},
		{"AuthenticationCleartextPassword", &AuthenticationCleartextPassword{}},
		{"AuthenticationMD5Password", &AuthenticationMD5Password{Salt: [4]byte{1, 2, 3, 4}}},
		{"AuthenticationSASL", &AuthenticationSASL{AuthMechanisms: []string{"SCRAM-SHA-256"}}},
		{"AuthenticationSASLContinue", &AuthenticationSASLContinue{Data: []byte("r=abc,s=def,i=4096")}},
		{"AuthenticationSASLFinal", &AuthenticationSASLFinal{Data: []byte("v=xyz")}},
		{"BackendKeyData", &BackendKeyData{ProcessID: 31007, SecretKey: 1013083042}},
		{"ParameterStatus", &ParameterStatus{Name: "server_version", Value: "14.1"}},
		{"ReadyForQueryIdle", &ReadyForQuery{TxStatus: 'I'}},
		{"ReadyForQueryInTx", &ReadyForQuery{TxStatus: 'T'}},
		{"ParseComplete", &ParseComplete{}},
		{"BindComplete", &BindComplete{}},
		{"CloseComplete", &CloseComplete{}},
		{"NoData", &NoData{}},
		{"EmptyQueryResponse", &EmptyQueryResponse{}},
		{"PortalSuspended", &PortalSuspended{}},
		{"ParameterDescription", &ParameterDescription{ParameterOIDs: []uint32{23, 25}}},
		{
			"RowDescription",
			&RowDescription{Fields: []FieldDescription{
				{Name: "id", TableOID: 16384, TableAttributeNumber: 1, DataTypeOID: 23, DataTypeSize: 4, TypeModifier: -1, Format: 1},
				{Name: "description", TableOID: 16384, TableAttributeNumber: 2, DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1, Format: 0},
			}},
		},
		{"DataRow", &DataRow{Values: [][]byte{[]byte("42"), nil, {}}}},
		{"CommandComplete", &CommandComplete{CommandTag: []byte("SELECT 20")}},
		{"CopyInResponse", &CopyInResponse{OverallFormat: 0, ColumnFormatCodes: []int16{0, 0}}},
		{"CopyOutResponse", &CopyOutResponse{OverallFormat: 1, ColumnFormatCodes: []int16{1}}},
		{"CopyData", &CopyData{Data: []byte("1\tone\n")}},
		{"CopyDone", &CopyDone{}},
		{"NotificationResponse", &NotificationResponse{PID: 77, Channel: "jobs", Payload: "wake"}},
		{
			"ErrorResponse",
			&ErrorResponse{
				Severity: "ERROR",
				Code:     "42601",
				Message:  "cannot insert multiple commands into a prepared statement",
				Position: 1,
				File:     "postgres.c",
				Line:     1468,
				Routine:  "exec_parse_message",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.msg.Encode(nil)
			decoded, n, err := ParseBackend(buf)
			require.NoError(t, err)
			require.Equal(t, len(buf), n)
			require.Equal(t, tt.msg, decoded)
		})
	}
}

func TestParseBackendIncompleteBuffer(t *testing.T) {
	full := (&CommandComplete{CommandTag: []byte("INSERT 0 1")}).Encode(nil)

	for i := 0; i < len(full); i++ {
		msg, n, err := ParseBackend(full[:i])
		require.NoError(t, err, "prefix of %d bytes", i)
		require.Nil(t, msg)
		require.Zero(t, n)
	}
}

func TestParseBackendConsumesOneMessage(t *testing.T) {
	buf := (&ParseComplete{}).Encode(nil)
	split := len(buf)
	buf = (&BindComplete{}).Encode(buf)

	msg, n, err := ParseBackend(buf)
	require.NoError(t, err)
	require.Equal(t, split, n)
	require.IsType(t, &ParseComplete{}, msg)

	msg, n, err = ParseBackend(buf[n:])
	require.NoError(t, err)
	require.Equal(t, len(buf)-split, n)
	require.IsType(t, &BindComplete{}, msg)
}

func TestParseBackendRejectsBadLength(t *testing.T) {
	// Length below the 4 bytes of the length field itself.
	_, _, err := ParseBackend([]byte{'Z', 0, 0, 0, 3, 'I'})
	require.Error(t, err)
	assert.IsType(t, ProtocolError(""), err)

	// Length far beyond any sane message.
	_, _, err = ParseBackend([]byte{'Z', 0xff, 0xff, 0xff, 0xff, 'I'})
	require.Error(t, err)
	assert.IsType(t, ProtocolError(""), err)
}

func TestParseBackendRejectsUnknownTag(t *testing.T) {
	_, _, err := ParseBackend([]byte{'~', 0, 0, 0, 4})
	require.Error(t, err)
}

func TestBackendReceivesFrontendMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  FrontendMessage
	}{
		{"Query", &Query{String: "select 1"}},
		{
			"Parse",
			&Parse{Name: "ps_0", Query: "select id from goods where id = $1", ParameterOIDs: []uint32{23}},
		},
		{
			"Bind",
			&Bind{
				PreparedStatement:    "ps_0",
				ParameterFormatCodes: []int16{1},
				Parameters:           [][]byte{{0, 0, 0, 42}},
				ResultFormatCodes:    []int16{1, 0},
			},
		},
		{"DescribeStatement", &Describe{ObjectType: 'S', Name: "ps_0"}},
		{"DescribePortal", &Describe{ObjectType: 'P'}},
		{"Execute", &Execute{MaxRows: 100}},
		{"Close", &Close{ObjectType: 'S', Name: "ps_0"}},
		{"Sync", &Sync{}},
		{"Flush", &Flush{}},
		{"PasswordMessage", &PasswordMessage{Password: "hunter2"}},
		{"CopyData", &CopyData{Data: []byte("1\tone\n")}},
		{"CopyDone", &CopyDone{}},
		{"CopyFail", &CopyFail{Message: "source failed"}},
		{"Terminate", &Terminate{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.msg.Encode(nil)
			backend := NewBackend(chunkreader.New(bytes.NewReader(buf)), &bytes.Buffer{})
			decoded, err := backend.Receive()
			require.NoError(t, err)
			require.Equal(t, tt.msg, decoded)
		})
	}
}

func TestBackendReceiveStartupMessage(t *testing.T) {
	t.Run("StartupMessage", func(t *testing.T) {
		sent := &StartupMessage{
			ProtocolVersion: ProtocolVersionNumber,
			Parameters:      map[string]string{"user": "alice", "database": "shop"},
		}
		backend := NewBackend(chunkreader.New(bytes.NewReader(sent.Encode(nil))), &bytes.Buffer{})
		got, err := backend.ReceiveStartupMessage()
		require.NoError(t, err)
		require.Equal(t, sent, got)
	})

	t.Run("SSLRequest", func(t *testing.T) {
		backend := NewBackend(chunkreader.New(bytes.NewReader((&SSLRequest{}).Encode(nil))), &bytes.Buffer{})
		got, err := backend.ReceiveStartupMessage()
		require.NoError(t, err)
		require.IsType(t, &SSLRequest{}, got)
	})

	t.Run("CancelRequest", func(t *testing.T) {
		sent := &CancelRequest{ProcessID: 31007, SecretKey: 1013083042}
		backend := NewBackend(chunkreader.New(bytes.NewReader(sent.Encode(nil))), &bytes.Buffer{})
		got, err := backend.ReceiveStartupMessage()
		require.NoError(t, err)
		require.Equal(t, sent, got)
	})
}

func TestFrontendReceive(t *testing.T) {
	var wire []byte
	wire = (&AuthenticationOk{}).Encode(wire)
	wire = (&ParameterStatus{Name: "client_encoding", Value: "UTF8"}).Encode(wire)
	wire = (&BackendKeyData{ProcessID: 1, SecretKey: 2}).Encode(wire)
	wire = (&ReadyForQuery{TxStatus: 'I'}).Encode(wire)

	frontend := NewFrontend(chunkreader.New(bytes.NewReader(wire)), &bytes.Buffer{})

	msg, err := frontend.Receive()
	require.NoError(t, err)
	require.IsType(t, &AuthenticationOk{}, msg)

	msg, err = frontend.Receive()
	require.NoError(t, err)
	require.Equal(t, &ParameterStatus{Name: "client_encoding", Value: "UTF8"}, msg)

	msg, err = frontend.Receive()
	require.NoError(t, err)
	require.Equal(t, &BackendKeyData{ProcessID: 1, SecretKey: 2}, msg)

	msg, err = frontend.Receive()
	require.NoError(t, err)
	require.Equal(t, &ReadyForQuery{TxStatus: 'I'}, msg)
}

func TestFrontendSend(t *testing.T) {
	var out bytes.Buffer
	frontend := NewFrontend(chunkreader.New(&bytes.Buffer{}), &out)

	sent := &Query{String: "select 1"}
	require.NoError(t, frontend.Send(sent))

	backend := NewBackend(chunkreader.New(bytes.NewReader(out.Bytes())), &bytes.Buffer{})
	got, err := backend.Receive()
	require.NoError(t, err)
	require.Equal(t, sent, got)
}

func TestErrorResponseFields(t *testing.T) {
	sent := &ErrorResponse{
		Severity:       "ERROR",
		Code:           "42P02",
		Message:        "there is no parameter $1",
		SchemaName:     "public",
		TableName:      "goods",
		ColumnName:     "id",
		DataTypeName:   "int4",
		ConstraintName: "goods_pkey",
		Detail:         "detail",
		Hint:           "hint",
		Where:          "where",
		InternalQuery:  "iq",
		Position:       8,
	}
	msg, n, err := ParseBackend(sent.Encode(nil))
	require.NoError(t, err)
	require.Equal(t, len(sent.Encode(nil)), n)
	require.Equal(t, sent, msg)
}
