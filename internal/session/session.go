/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

// Package session tracks connection-level state derived from backend messages.
//
// The machine is a pure fold over received messages: Apply mutates only in response to
// what the backend actually sent, so the same instance serves a blocking read loop and a
// cooperative driver feeding it decoded messages one at a time. Transaction status
// changes only on ReadyForQuery; the backend wraps every multi-statement exchange in an
// implicit transaction regardless of any client-side autocommit setting, and the machine
// reports whatever the backend decided rather than second-guessing it.
package session

import (
	"fmt"

	"pgcore/internal/wire"
)

// TxStatus is the transaction state reported by the last ReadyForQuery.
type TxStatus byte

const (
	TxIdle    TxStatus = 'I'
	TxActive  TxStatus = 'T'
	TxFailed  TxStatus = 'E'
	txUnknown TxStatus = 0 // before the first ReadyForQuery
)

func (s TxStatus) String() string {
	switch s {
	case TxIdle:
		return "idle"
	case TxActive:
		return "in transaction"
	case TxFailed:
		return "in failed transaction"
	}
	return "unknown"
}

// Statement is a server-side prepared statement owned by the session.
type Statement struct {
	Name          string
	SQL           string
	ParameterOIDs []uint32
	Fields        []wire.FieldDescription
}

// BindCheck verifies that the values bound to the statement match the parameter OIDs the
// server resolved at Parse time. A mismatch is a binding error; it is never coerced.
func (s *Statement) BindCheck(paramOIDs []uint32) error {
	if len(paramOIDs) != len(s.ParameterOIDs) {
		return fmt.Errorf("statement %q expects %d parameters, bound %d", s.Name, len(s.ParameterOIDs), len(paramOIDs))
	}
	for i, oid := range paramOIDs {
		if oid != 0 && s.ParameterOIDs[i] != 0 && oid != s.ParameterOIDs[i] {
			return fmt.Errorf("statement %q parameter %d declared oid %d, bound oid %d", s.Name, i+1, s.ParameterOIDs[i], oid)
		}
	}
	return nil
}

// Machine is the per-connection session state.
type Machine struct {
	txStatus   TxStatus
	parameters map[string]string
	pid        uint32
	secretKey  uint32
	statements map[string]*Statement
}

// New returns a Machine in the pre-startup state.
func New() *Machine {
	return &Machine{
		txStatus:   txUnknown,
		parameters: make(map[string]string),
		statements: make(map[string]*Statement),
	}
}

// Apply folds one backend message into the session state.
func (m *Machine) Apply(msg wire.BackendMessage) {
	switch msg := msg.(type) {
	case *wire.ReadyForQuery:
		m.txStatus = TxStatus(msg.TxStatus)
	case *wire.ParameterStatus:
		m.parameters[msg.Name] = msg.Value
	case *wire.BackendKeyData:
		m.pid = msg.ProcessID
		m.secretKey = msg.SecretKey
	}
}

// TxStatus returns the transaction status from the last ReadyForQuery.
func (m *Machine) TxStatus() TxStatus {
	return m.txStatus
}

// Parameter returns the last reported value of a run-time parameter such as
// server_version or client_encoding.
func (m *Machine) Parameter(name string) string {
	return m.parameters[name]
}

// BackendKey returns the process ID and secret key for CancelRequest.
func (m *Machine) BackendKey() (pid, secretKey uint32) {
	return m.pid, m.secretKey
}

// PutStatement registers a prepared statement. Re-preparing the same name overwrites.
func (m *Machine) PutStatement(s *Statement) {
	m.statements[s.Name] = s
}

// Statement looks up a prepared statement by name.
func (m *Machine) Statement(name string) (*Statement, bool) {
	s, ok := m.statements[name]
	return s, ok
}

// RemoveStatement drops a prepared statement after Close.
func (m *Machine) RemoveStatement(name string) {
	delete(m.statements, name)
}

// Reset clears session state after the connection is torn down.
func (m *Machine) Reset() {
	m.txStatus = txUnknown
	m.parameters = make(map[string]string)
	m.statements = make(map[string]*Statement)
	m.pid = 0
	m.secretKey = 0
}
