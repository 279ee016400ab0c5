/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgcore/internal/wire"
)

func TestMachineFoldsBackendMessages(t *testing.T) {
	m := New()
	assert.Equal(t, "unknown", m.TxStatus().String())

	m.Apply(&wire.ParameterStatus{Name: "server_version", Value: "14.1"})
	m.Apply(&wire.ParameterStatus{Name: "client_encoding", Value: "UTF8"})
	m.Apply(&wire.BackendKeyData{ProcessID: 31007, SecretKey: 1013083042})
	m.Apply(&wire.ReadyForQuery{TxStatus: 'I'})

	assert.Equal(t, TxIdle, m.TxStatus())
	assert.Equal(t, "14.1", m.Parameter("server_version"))
	assert.Equal(t, "UTF8", m.Parameter("client_encoding"))
	pid, key := m.BackendKey()
	assert.Equal(t, uint32(31007), pid)
	assert.Equal(t, uint32(1013083042), key)

	// Parameter changes mid-session overwrite.
	m.Apply(&wire.ParameterStatus{Name: "client_encoding", Value: "LATIN1"})
	assert.Equal(t, "LATIN1", m.Parameter("client_encoding"))
}

func TestTxStatusFollowsReadyForQuery(t *testing.T) {
	m := New()

	// Messages between ReadyForQuery boundaries never change the status.
	m.Apply(&wire.ReadyForQuery{TxStatus: 'I'})
	m.Apply(&wire.CommandComplete{CommandTag: []byte("BEGIN")})
	assert.Equal(t, TxIdle, m.TxStatus())

	m.Apply(&wire.ReadyForQuery{TxStatus: 'T'})
	assert.Equal(t, TxActive, m.TxStatus())
	assert.Equal(t, "in transaction", m.TxStatus().String())

	m.Apply(&wire.ReadyForQuery{TxStatus: 'E'})
	assert.Equal(t, TxFailed, m.TxStatus())
	assert.Equal(t, "in failed transaction", m.TxStatus().String())
}

func TestStatementRegistry(t *testing.T) {
	m := New()

	_, ok := m.Statement("ps_0")
	assert.False(t, ok)

	m.PutStatement(&Statement{Name: "ps_0", SQL: "select 1", ParameterOIDs: []uint32{23}})
	s, ok := m.Statement("ps_0")
	require.True(t, ok)
	assert.Equal(t, "select 1", s.SQL)

	// Re-preparing the same name overwrites.
	m.PutStatement(&Statement{Name: "ps_0", SQL: "select 2"})
	s, _ = m.Statement("ps_0")
	assert.Equal(t, "select 2", s.SQL)

	m.RemoveStatement("ps_0")
	_, ok = m.Statement("ps_0")
	assert.False(t, ok)
}

func TestBindCheck(t *testing.T) {
	s := &Statement{Name: "ps_0", ParameterOIDs: []uint32{23, 25}}

	assert.NoError(t, s.BindCheck([]uint32{23, 25}))
	// Unknown on either side defers to the server.
	assert.NoError(t, s.BindCheck([]uint32{0, 25}))
	assert.NoError(t, s.BindCheck([]uint32{23, 0}))

	assert.Error(t, s.BindCheck([]uint32{23}))
	assert.Error(t, s.BindCheck([]uint32{25, 23}))
}

func TestReset(t *testing.T) {
	m := New()
	m.Apply(&wire.ReadyForQuery{TxStatus: 'T'})
	m.Apply(&wire.ParameterStatus{Name: "server_version", Value: "14.1"})
	m.PutStatement(&Statement{Name: "ps_0"})

	m.Reset()

	assert.Equal(t, "unknown", m.TxStatus().String())
	assert.Empty(t, m.Parameter("server_version"))
	_, ok := m.Statement("ps_0")
	assert.False(t, ok)
	pid, key := m.BackendKey()
	assert.Zero(t, pid)
	assert.Zero(t, key)
}
