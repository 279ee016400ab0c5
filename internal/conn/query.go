/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

package conn

import (
	"database/sql/driver"
	"reflect"
	"sync"
	"time"

	"pgcore/internal/adapt"
	"pgcore/internal/wire"
)

// Query is a reusable query object. It carries the SQL, the encoded parameters, the
// statement description and the saved result through the connection worker and back to
// the caller. Recycled through the pool's empty query channel.
type Query struct {
	SQL          string
	Args         []interface{}
	paramValues  [][]byte
	paramOIDs    []uint32
	paramFormats []int16

	// Literal selects client-side binding: parameters are quoted and merged into the
	// SQL text and the statement goes through the simple query protocol. This is the
	// only mode that supports multi-statement batches and DDL parameterization. It is
	// chosen by the caller, never inferred from the SQL text.
	Literal bool

	startTime int64

	// D points at the statement description in effect for this execution. Between
	// statements it points at d; the pool repoints it at a cached description after
	// Start when the statement is prepared. The cached description is shared across
	// workers and must never be written after prepare time.
	D *Description
	d Description

	R              Result
	Mutex          sync.Mutex
	emptyQueryChan chan *Query
}

func NewQuery(reg *adapt.Registry, emptyQueryChan chan *Query) *Query {
	q := &Query{
		Args:         make([]interface{}, 0, 16),
		paramValues:  make([][]byte, 0, 16),
		paramOIDs:    make([]uint32, 0, 16),
		paramFormats: make([]int16, 0, 16),
		R: Result{
			reg:       reg,
			rows:      make([][][]byte, 0, 128),
			valuesBuf: make([]byte, 0, 512),
		},
		d: Description{
			FieldDescriptions: make([]wire.FieldDescription, 0, 16),
			ParamOIDs:         make([]uint32, 0, 16),
			ResultFormats:     make([]int16, 0, 16),
		},
		emptyQueryChan: emptyQueryChan,
	}
	q.D = &q.d
	return q
}

// MaxResultSaveDuration bounds how long a saved result stays claimable before the pool
// recycles the query object.
var MaxResultSaveDuration = 500 * time.Second

func (q *Query) Actual() bool {
	return time.Now().UnixNano()-q.startTime < int64(MaxResultSaveDuration)
}

func (q *Query) Close() {
	q.Mutex.Unlock()
	q.Return()
}

func (q *Query) ready() {
	q.Mutex.Unlock()
}

func (q *Query) Return() {
	if q.emptyQueryChan != nil {
		q.emptyQueryChan <- q
	}
}

// Start resets the query object for a new statement. A recycled object may still point
// at the cached description of the statement it ran last; D comes back to the query's
// own blank description so nothing stale leaks into the next Bind.
func (q *Query) Start(sql string, args ...interface{}) error {
	q.paramValues = q.paramValues[:0]
	q.paramOIDs = q.paramOIDs[:0]
	q.paramFormats = q.paramFormats[:0]
	q.Args = q.Args[:0]
	q.Literal = false
	q.R.reset()

	q.d.Name = ""
	q.d.ParamOIDs = q.d.ParamOIDs[:0]
	q.d.ResultFormats = q.d.ResultFormats[:0]
	q.d.FieldDescriptions = q.d.FieldDescriptions[:0]
	q.D = &q.d

	q.startTime = time.Now().UnixNano()
	q.SQL = sql
	q.Args = append(q.Args, args...)
	return q.convertDriverValuers()
}

func (q *Query) convertDriverValuers() error {
	for i := range q.Args {
		if arg, ok := q.Args[i].(driver.Valuer); ok {
			v, err := callValuerValue(arg)
			if err != nil {
				return err
			}
			q.Args[i] = v
		}
	}
	return nil
}

// From database/sql/convert.go

var valuerReflectType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

// callValuerValue returns vr.Value(), with one exception:
// If vr.Value is an auto-generated method on a pointer type and the
// pointer is nil, it would panic at runtime in the panic-wrap
// method. Treat it like nil instead.
// Issue 8415.
//
// This is so people can implement driver.Value on value types and
// still use nil pointers to those types to mean nil/NULL, just like
// string/*string.
//
// This function is mirrored in the database/sql/driver package.
func callValuerValue(vr driver.Valuer) (v driver.Value, err error) {
	if rv := reflect.ValueOf(vr); rv.Kind() == reflect.Ptr &&
		rv.IsNil() &&
		rv.Type().Elem().Implements(valuerReflectType) {
		return nil, nil
	}
	return vr.Value()
}

// AppendParam encodes argument i through the adapter registry and records its wire
// format and OID for the Bind message.
func (q *Query) AppendParam(i int) error {
	data, oid, format, err := q.R.reg.Dump(q.Args[i])
	if err != nil {
		return err
	}
	q.paramValues = append(q.paramValues, data)
	q.paramOIDs = append(q.paramOIDs, oid)
	q.paramFormats = append(q.paramFormats, format)
	return nil
}

// BindCheck verifies the encoded parameters against the described statement before the
// Bind message is sent. An OID mismatch is a binding error, never a silent coercion.
func (q *Query) BindCheck() error {
	if len(q.paramValues) != len(q.D.ParamOIDs) {
		return SerializationError("bound parameter count does not match statement")
	}
	for i, oid := range q.paramOIDs {
		if oid != adapt.UnknownOID && q.D.ParamOIDs[i] != adapt.UnknownOID && oid != q.D.ParamOIDs[i] {
			return SerializationError("bound parameter oid does not match statement description")
		}
	}
	return nil
}

// AppendResultFormat fills the per-column result format codes from the registry's
// preferences for the described columns.
func (q *Query) AppendResultFormat() {
	q.D.ResultFormats = q.D.ResultFormats[:0]
	for i := range q.D.FieldDescriptions {
		q.D.ResultFormats = append(q.D.ResultFormats, q.R.reg.ResultFormatCodeForOID(q.D.FieldDescriptions[i].DataTypeOID))
	}
}
