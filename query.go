/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package pgcore

import (
	"errors"

	"pgcore/internal/conn"
)

var ErrResultNotActual = errors.New("result not actual")
var ErrArgsLimit = errors.New("args limit")

// QueryAsync dispatches sql through the extended protocol with server-side parameter
// binding and returns a function that claims the result. The statement is prepared and
// cached on first use. The returned function scans rows into dest; a nil dest discards
// the rows and reports only the execution error.
func (p *Pool) QueryAsync(sql string, args ...interface{}) conn.ResultFunc {
	if !checkArgs(len(args)) {
		return func(dest interface{}) error {
			return ErrArgsLimit
		}
	}
	eq := <-p.emptyQueryChan
	eq.Mutex.Lock()
	err := eq.Start(
		sql,
		args...,
	)
	if err != nil {
		eq.Close()
		return func(dest interface{}) error {
			return err
		}
	}

	eq.D, err = p.checkDescription(eq)

	if err != nil {
		eq.Close()
		return func(dest interface{}) error {
			return err
		}
	}

	for i := range eq.Args {
		err = eq.AppendParam(i)
		if err != nil {
			eq.Close()
			return func(dest interface{}) error {
				return err
			}
		}
	}

	p.queryChan <- eq
	return func(dest interface{}) error {
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
}

// Query is the blocking form of QueryAsync.
func (p *Pool) Query(dest interface{}, sql string, args ...interface{}) error {
	return p.QueryAsync(sql, args...)(dest)
}

// Exec runs sql through the extended protocol and returns the command tag. Rows, if
// any, are discarded.
func (p *Pool) Exec(sql string, args ...interface{}) (conn.CommandTag, error) {
	if !checkArgs(len(args)) {
		return nil, ErrArgsLimit
	}
	eq := <-p.emptyQueryChan
	eq.Mutex.Lock()
	err := eq.Start(
		sql,
		args...,
	)
	if err != nil {
		eq.Close()
		return nil, err
	}

	eq.D, err = p.checkDescription(eq)
	if err != nil {
		eq.Close()
		return nil, err
	}

	for i := range eq.Args {
		err = eq.AppendParam(i)
		if err != nil {
			eq.Close()
			return nil, err
		}
	}

	p.queryChan <- eq
	eq.Mutex.Lock()
	defer eq.Close()
	if !eq.Actual() {
		return nil, ErrResultNotActual
	}
	return eq.R.Tag(), eq.R.Error()
}

// QueryLiteral runs sql through the simple protocol with client-side binding: the
// arguments are quoted and merged into the SQL text before it is sent. This is the
// only mode that accepts multi-statement batches or parameters in DDL. For a
// multi-statement batch the rows of the last statement are scanned into dest.
func (p *Pool) QueryLiteral(dest interface{}, sql string, args ...interface{}) error {
	if !checkArgs(len(args)) {
		return ErrArgsLimit
	}
	eq := <-p.emptyQueryChan
	eq.Mutex.Lock()
	err := eq.Start(
		sql,
		args...,
	)
	if err != nil {
		eq.Close()
		return err
	}
	eq.Literal = true

	p.queryChan <- eq
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

func checkArgs(len int) bool {
	if len>>16 > 0 {
		return false
	}

	return true
}

func (p *Pool) prepare(query *conn.Query) error {
	eq := <-p.emptyQueryChan
	eq.Mutex.Lock()
	err := eq.Start(
		query.SQL,
	)
	if err != nil {
		eq.Close()
		return err
	}
	eq.D = query.D
	cr := <-p.connReadyChan
	p.conns.list[cr].commandChan <- conn.Command{
		CommandType: conn.CommandPrepare,
		Query:       eq,
	}

	p.conns.mutex.RLock()
	for i := range p.conns.list {
		if p.conns.list[i].status == connStatusOnline && i != cr {
			eqq := <-p.emptyQueryChan
			eqq.Mutex.Lock()
			err = eqq.Start(
				query.SQL,
			)
			if err != nil {
				p.conns.mutex.RUnlock()
				eqq.Close()
				return err
			}
			eqq.D = query.D

			p.conns.list[i].commandChan <- conn.Command{
				CommandType: conn.CommandPrepareAsync,
				Query:       eqq,
			}
		}
	}
	p.conns.mutex.RUnlock()
	eq.Mutex.Lock()
	defer eq.Close()
	if !eq.Actual() {
		return ErrResultNotActual
	}
	if err := eq.R.Error(); err != nil {
		return err
	}
	eq.AppendResultFormat()
	return nil
}
