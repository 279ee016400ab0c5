/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package pgcore

import (
	"errors"

	"pgcore/internal/conn"
)

var ErrTxClosed = errors.New("tx is closed")

// Tx is a transaction scope pinned to a single pooled connection. Statements issued
// through it run on that connection only, so no other pool traffic can interleave with
// the transaction.
type Tx struct {
	p      *Pool
	cr     int
	closed bool
}

// BeginFunc runs fn inside a transaction. The transaction is committed when fn returns
// nil and rolled back when it returns an error or panics. The pinned connection goes
// back to the pool either way.
func (p *Pool) BeginFunc(fn func(tx *Tx) error) error {
	cr := <-p.connReadyChan
	acquired := make(chan struct{})
	p.conns.list[cr].commandChan <- conn.Command{
		CommandType: conn.CommandAcquire,
		Body:        acquired,
	}
	<-acquired

	tx := &Tx{p: p, cr: cr}
	defer tx.release()

	if err := tx.run(nil, "begin"); err != nil {
		return err
	}

	fnErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = tx.rollback()
				panic(r)
			}
		}()
		return fn(tx)
	}()
	if fnErr != nil {
		if err := tx.rollback(); err != nil {
			return err
		}
		return fnErr
	}

	return tx.run(nil, "commit")
}

func (tx *Tx) rollback() error {
	return tx.run(nil, "rollback")
}

func (tx *Tx) release() {
	tx.closed = true
	tx.p.conns.list[tx.cr].commandChan <- conn.Command{
		CommandType: conn.CommandRelease,
	}
}

// Query runs sql on the transaction's connection with server-side binding through the
// unnamed statement and scans the rows into dest. A nil dest discards the rows.
func (tx *Tx) Query(dest interface{}, sql string, args ...interface{}) error {
	return tx.run(dest, sql, args...)
}

// Exec runs sql on the transaction's connection and returns the command tag.
func (tx *Tx) Exec(sql string, args ...interface{}) (conn.CommandTag, error) {
	if tx.closed {
		return nil, ErrTxClosed
	}
	eq, err := tx.dispatch(sql, args...)
	if err != nil {
		return nil, err
	}
	eq.Mutex.Lock()
	defer eq.Close()
	if !eq.Actual() {
		return nil, ErrResultNotActual
	}
	return eq.R.Tag(), eq.R.Error()
}

func (tx *Tx) run(dest interface{}, sql string, args ...interface{}) error {
	if tx.closed {
		return ErrTxClosed
	}
	eq, err := tx.dispatch(sql, args...)
	if err != nil {
		return err
	}
	eq.Mutex.Lock()
	defer eq.Close()
	if !eq.Actual() {
		return ErrResultNotActual
	}
	if err := eq.R.Error(); err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	return ScanAll(dest, &eq.R)
}

func (tx *Tx) dispatch(sql string, args ...interface{}) (*conn.Query, error) {
	if !checkArgs(len(args)) {
		return nil, ErrArgsLimit
	}
	eq := <-tx.p.emptyQueryChan
	eq.Mutex.Lock()
	err := eq.Start(
		sql,
		args...,
	)
	if err != nil {
		eq.Close()
		return nil, err
	}
	for i := range eq.Args {
		if err := eq.AppendParam(i); err != nil {
			eq.Close()
			return nil, err
		}
	}
	tx.p.conns.list[tx.cr].commandChan <- conn.Command{
		CommandType: conn.CommandQuery,
		Query:       eq,
	}
	return eq, nil
}
